package conn

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_CreatesLazilyAndRefreshes(t *testing.T) {
	r := NewResolver()

	c := r.Resolve("conn-1", Identity{ClientID: "c1", SessionID: "s1", PlayerID: "p1"})
	assert.Equal(t, Context{ConnID: "conn-1", ClientID: "c1", SessionID: "s1", PlayerID: "p1"}, c)

	c = r.Resolve("conn-1", Identity{ClientID: "c2", SessionID: "s2"})
	assert.Equal(t, "c2", c.ClientID)
	assert.Equal(t, "s2", c.SessionID)
	assert.Equal(t, "p1", c.PlayerID, "empty player id keeps the known one")
	assert.Equal(t, 1, r.Len())
}

func TestResolve_FollowsSessionBinding(t *testing.T) {
	r := NewResolver()
	id := Identity{ClientID: "c1", SessionID: "s1"}

	assert.Empty(t, r.Resolve("conn-1", id).GameID)

	r.Bind("s1", "AAAAAA")
	got, ok := r.Lookup("conn-1")
	require.True(t, ok)
	assert.Equal(t, "AAAAAA", got.GameID)
	assert.Equal(t, "AAAAAA", r.Resolve("conn-1", id).GameID)

	r.Unbind("s1")
	assert.Empty(t, r.Resolve("conn-1", id).GameID)
}

func TestClose_DestroysContext(t *testing.T) {
	r := NewResolver()
	r.Resolve("conn-1", Identity{SessionID: "s1"})
	r.Close("conn-1")

	_, ok := r.Lookup("conn-1")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestResolve_Concurrent(t *testing.T) {
	r := NewResolver()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", i)
			r.Resolve(connID, Identity{SessionID: connID})
			r.Bind(connID, "AAAAAA")
			r.Close(connID)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/broadcast"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/conn"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/dispatch"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/engine"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/hub"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/identity"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/session"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/storage"
)

func newServer(t *testing.T) (*httptest.Server, *hub.Hub) {
	t.Helper()
	log := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b := broadcast.New(ctx, log)
	h := hub.NewHub("srv-1", engine.NewTowers, hub.Config{}, log, hub.WithTickListener(b.Listener()))
	t.Cleanup(func() { _ = h.Dispose(context.Background()) })
	d := dispatch.New(h, b, conn.NewResolver(), storage.NewMemoryPlayers(), identity.Fixed("yipee", "srv-1"), log)

	srv := httptest.NewServer(SetupRoutes(h, d, log, nil))
	t.Cleanup(srv.Close)
	return srv, h
}

func TestCreateAndGetGame(t *testing.T) {
	srv, h := newServer(t)

	res, err := http.Post(srv.URL+"/games", "application/json", nil)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var created struct {
		GameID string `json:"gameId"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	require.Regexp(t, `^[A-Z0-9]{6}$`, created.GameID)
	assert.Equal(t, 1, h.Len())

	res2, err := http.Get(srv.URL + "/games/" + created.GameID)
	require.NoError(t, err)
	defer res2.Body.Close()
	require.Equal(t, http.StatusOK, res2.StatusCode)

	var sum session.Summary
	require.NoError(t, json.NewDecoder(res2.Body).Decode(&sum))
	assert.Equal(t, created.GameID, sum.GameID)
	assert.Len(t, sum.Seats, session.SeatCount)
	assert.True(t, sum.Over)
}

func TestGetGame_NotFound(t *testing.T) {
	srv, _ := newServer(t)
	res, err := http.Get(srv.URL + "/games/NOPE00")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestListGames(t *testing.T) {
	srv, h := newServer(t)
	_, _ = h.NewSession()
	_, _ = h.NewSession()

	res, err := http.Get(srv.URL + "/games")
	require.NoError(t, err)
	defer res.Body.Close()

	var sums []session.Summary
	require.NoError(t, json.NewDecoder(res.Body).Decode(&sums))
	assert.Len(t, sums, 2)
}

func TestHealthz(t *testing.T) {
	srv, _ := newServer(t)
	res, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.Equal(t, "srv-1", body["serverId"])
}

func TestWebsocketRoute(t *testing.T) {
	srv, _ := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer c.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"packetType":"Handshake","payload":{}}`)))
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"packetType":"HandshakeResponse"`)
}

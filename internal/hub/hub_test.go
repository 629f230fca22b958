package hub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/engine"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/session"
)

type stubSim struct{ dead *atomic.Bool }

func (s stubSim) ApplyAction(engine.PlayerAction) error { return nil }
func (s stubSim) Advance(float64, *engine.State)        {}
func (s stubSim) ExportState() engine.State             { return engine.State{Dead: s.dead.Load()} }
func (s stubSim) IsDead() bool                          { return s.dead.Load() }
func (s stubSim) Begin()                                {}
func (s stubSim) End()                                  {}
func (s stubSim) Reset(int64)                           {}

func stubFactory(dead *atomic.Bool) engine.Factory {
	return func() engine.Simulation { return stubSim{dead: dead} }
}

func scriptedCodes(codes ...string) CodeSource {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

func newTestHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	h := NewHub("srv-1", engine.NewTowers, Config{TickInterval: 5 * time.Millisecond}, zaptest.NewLogger(t), opts...)
	t.Cleanup(func() { _ = h.Dispose(context.Background()) })
	return h
}

func TestGenerateCode_Format(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Regexp(t, `^[A-Z0-9]{6}$`, code)
	}
}

func TestNewSession_RetriesOnCollision(t *testing.T) {
	h := newTestHub(t, WithCodeSource(scriptedCodes("AAAAAA", "AAAAAA", "BBBBBB", "BBBBBB", "CCCCCC")))

	ids := make(map[string]struct{})
	for i := 0; i < 3; i++ {
		id, err := h.NewSession()
		require.NoError(t, err)
		ids[id] = struct{}{}
	}

	assert.Len(t, ids, 3)
	assert.Contains(t, ids, "CCCCCC")
	assert.Equal(t, 3, h.Len())
}

func TestNewSession_GivesUpWhenCodesExhausted(t *testing.T) {
	h := newTestHub(t, WithCodeSource(scriptedCodes("AAAAAA")))

	_, err := h.NewSession()
	require.NoError(t, err)
	_, err = h.NewSession()
	assert.ErrorIs(t, err, ErrCodeExhausted)
}

func TestNewSession_PropagatesCodeError(t *testing.T) {
	boom := errors.New("entropy gone")
	h := newTestHub(t, WithCodeSource(func() (string, error) { return "", boom }))

	_, err := h.NewSession()
	assert.ErrorIs(t, err, boom)
}

func TestGet_Unknown(t *testing.T) {
	h := newTestHub(t)
	_, err := h.Get("NOPE00")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestGet_SamePointer(t *testing.T) {
	h := newTestHub(t)
	id, err := h.NewSession()
	require.NoError(t, err)

	a, err := h.Get(id)
	require.NoError(t, err)
	b, err := h.Get(id)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestAll_IsSnapshot(t *testing.T) {
	h := newTestHub(t, WithCodeSource(scriptedCodes("BBBBBB", "AAAAAA")))
	_, _ = h.NewSession()
	_, _ = h.NewSession()

	all := h.All()
	require.Len(t, all, 2)
	assert.Equal(t, "AAAAAA", all[0].ID())
	assert.Equal(t, "BBBBBB", all[1].ID())

	require.NoError(t, h.Remove(context.Background(), "AAAAAA"))
	assert.Len(t, all, 2)
	assert.Len(t, h.All(), 1)
}

func TestRemove_Unknown(t *testing.T) {
	h := newTestHub(t)
	assert.ErrorIs(t, h.Remove(context.Background(), "NOPE00"), ErrSessionNotFound)
}

func TestTick_ReportsEveryGame(t *testing.T) {
	h := newTestHub(t, WithCodeSource(scriptedCodes("AAAAAA", "BBBBBB")))
	_, _ = h.NewSession()
	_, _ = h.NewSession()

	h.Tick(0.016)
	notices := h.Tick(0.016)

	require.Len(t, notices, 2)
	for _, n := range notices {
		assert.Equal(t, uint64(2), n.ServerTick)
		assert.Equal(t, "srv-1", n.ServerID)
	}
}

func TestTick_FailingGameDoesNotStopOthers(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := NewHub("srv-1", engine.NewTowers, Config{}, zap.New(core), WithCodeSource(scriptedCodes("AAAAAA", "BBBBBB")))
	defer h.Dispose(context.Background())
	_, _ = h.NewSession()
	_, _ = h.NewSession()

	broken, err := h.Get("AAAAAA")
	require.NoError(t, err)
	require.NoError(t, broken.Dispose(context.Background()))

	notices := h.Tick(0.016)

	require.Len(t, notices, 1)
	assert.Equal(t, "BBBBBB", notices[0].GameID)
	assert.Equal(t, 1, logs.FilterMessage("game tick failed").Len())
}

func TestSpend_AccumulatesWholeTicks(t *testing.T) {
	var calls atomic.Int32
	h := newTestHub(t, WithTickListener(func([]TickNotice) { calls.Add(1) }))
	_, _ = h.NewSession()
	step := 10 * time.Millisecond

	rest := h.spend(3*step+4*time.Millisecond, step)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, 4*time.Millisecond, rest)
}

func TestSpend_CapsCatchUp(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var calls atomic.Int32
	h := NewHub("srv-1", engine.NewTowers, Config{MaxCatchUpTicks: 2}, zap.New(core),
		WithTickListener(func([]TickNotice) { calls.Add(1) }))
	defer h.Dispose(context.Background())
	_, _ = h.NewSession()
	step := 10 * time.Millisecond

	rest := h.spend(10*step+time.Millisecond, step)

	assert.Equal(t, int32(2), calls.Load())
	assert.Less(t, rest, step)
	assert.Equal(t, 1, logs.FilterMessage("scheduler behind, skipping ticks").Len())
}

func TestRun_EmitsNoticesUntilDisposed(t *testing.T) {
	got := make(chan []TickNotice, 64)
	h := NewHub("srv-1", engine.NewTowers, Config{TickInterval: 2 * time.Millisecond}, zaptest.NewLogger(t),
		WithTickListener(func(n []TickNotice) {
			select {
			case got <- n:
			default:
			}
		}))
	id, err := h.NewSession()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background()) }()

	select {
	case n := <-got:
		require.Len(t, n, 1)
		assert.Equal(t, id, n[0].GameID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tick notice")
	}

	require.NoError(t, h.Dispose(context.Background()))
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Dispose")
	}
}

func TestDispose_Idempotent(t *testing.T) {
	h := NewHub("srv-1", engine.NewTowers, Config{}, zaptest.NewLogger(t))
	_, _ = h.NewSession()

	require.NoError(t, h.Dispose(context.Background()))
	require.NoError(t, h.Dispose(context.Background()))

	assert.Equal(t, 0, h.Len())
	_, err := h.NewSession()
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.ErrorIs(t, h.Run(context.Background()), ErrRegistryClosed)
}

func TestReapFinished(t *testing.T) {
	var dead atomic.Bool
	h := NewHub("srv-1", stubFactory(&dead), Config{}, zaptest.NewLogger(t), WithCodeSource(scriptedCodes("AAAAAA", "BBBBBB")))
	defer h.Dispose(context.Background())
	_, _ = h.NewSession()
	_, _ = h.NewSession()

	played, err := h.Get("AAAAAA")
	require.NoError(t, err)
	require.NoError(t, played.Sit(0, session.Player{ID: "p1", Name: "one"}))
	_, err = played.StartTable()
	require.NoError(t, err)

	ids, err := h.ReapFinished(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids, "live board keeps the game")

	dead.Store(true)
	ids, err = h.ReapFinished(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"AAAAAA"}, ids)

	_, err = h.Get("BBBBBB")
	assert.NoError(t, err, "never started game is kept")
}

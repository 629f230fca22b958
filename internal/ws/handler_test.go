package ws

import (
	"context"
	"encoding/json"
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
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/storage"
	itypes "github.com/blakbro2k/YipeeWebServer-sub000/internal/types"
)

type stack struct {
	hub *hub.Hub
	d   *dispatch.Dispatcher
	url string
}

func newStack(t *testing.T) *stack {
	t.Helper()
	log := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b := broadcast.New(ctx, log)
	h := hub.NewHub("srv-1", engine.NewTowers, hub.Config{}, log, hub.WithTickListener(b.Listener()))
	t.Cleanup(func() { _ = h.Dispose(context.Background()) })
	d := dispatch.New(h, b, conn.NewResolver(), storage.NewMemoryPlayers(), identity.Fixed("yipee", "srv-1"), log)

	srv := httptest.NewServer(Handler(d, log, nil))
	t.Cleanup(srv.Close)
	return &stack{hub: h, d: d, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func sendText(t *testing.T, c *websocket.Conn, s string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(s)))
}

// helper: receive one envelope with a timeout so tests never hang
func recvEnvelope(t *testing.T, c *websocket.Conn) (string, map[string]any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)

	var env itypes.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	var payload map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	return env.PacketType, payload
}

func TestHandler_HandshakeAndTickNotices(t *testing.T) {
	s := newStack(t)
	gameID, err := s.hub.NewSession()
	require.NoError(t, err)
	c := dial(t, s.url)

	sendText(t, c, `{"packetType":"Handshake","payload":{"clientId":"c1","gameId":"`+gameID+`","playerName":"ann"}}`)
	typ, payload := recvEnvelope(t, c)
	require.Equal(t, "HandshakeResponse", typ)
	assert.Equal(t, true, payload["connected"])
	assert.Equal(t, gameID, payload["gameId"])
	assert.Equal(t, "srv-1", payload["serverId"])

	s.hub.Tick(0.016)

	typ, payload = recvEnvelope(t, c)
	require.Equal(t, "TickNotice", typ)
	assert.Equal(t, gameID, payload["gameId"])
	assert.Equal(t, float64(1), payload["serverTick"])
}

func TestHandler_DecodeErrorKeepsConnection(t *testing.T) {
	s := newStack(t)
	c := dial(t, s.url)

	sendText(t, c, `not json`)
	typ, payload := recvEnvelope(t, c)
	require.Equal(t, "ErrorResponse", typ)
	assert.Equal(t, "decode_error", payload["code"])

	sendText(t, c, `{"packetType":"Teleport","payload":{}}`)
	typ, payload = recvEnvelope(t, c)
	require.Equal(t, "ErrorResponse", typ)
	assert.Equal(t, "unknown_packet", payload["code"])

	sendText(t, c, `{"packetType":"Handshake","payload":{}}`)
	typ, _ = recvEnvelope(t, c)
	assert.Equal(t, "HandshakeResponse", typ)
}

func TestHandler_BinaryFrameRejected(t *testing.T) {
	s := newStack(t)
	c := dial(t, s.url)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}))

	typ, payload := recvEnvelope(t, c)
	require.Equal(t, "ErrorResponse", typ)
	assert.Equal(t, "decode_error", payload["code"])
}

func TestHandler_DispatcherCloseDropsConnection(t *testing.T) {
	s := newStack(t)
	c := dial(t, s.url)
	sendText(t, c, `{"packetType":"Handshake","payload":{"clientId":"c1"}}`)
	typ, _ := recvEnvelope(t, c)
	require.Equal(t, "HandshakeResponse", typ)

	s.d.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

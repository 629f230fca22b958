package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/dispatch"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/protocol"
	"github.com/blakbro2k/YipeeWebServer-sub000/pkg/types"
)

const (
	idleTimeout  = 60 * time.Second
	writeTimeout = 3 * time.Second
)

// Handler upgrades to a websocket speaking JSON envelopes. Responses and tick
// notices share one writer goroutine so frames never interleave.
func Handler(d *dispatch.Dispatcher, log *zap.Logger, originPatterns []string) http.HandlerFunc {
	log = log.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			log.Warn("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := dispatch.Conn{ID: uuid.NewString(), Notices: make(chan types.TickNotice, 32)}
		defer d.Drop(c.ID)
		clog := log.With(zap.String("conn", c.ID))
		clog.Debug("connection opened", zap.String("remote", r.RemoteAddr))

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		out := make(chan types.Message, 16)

		// Writer goroutine
		go func() {
			defer cancel()
			for {
				var msg types.Message
				select {
				case <-ctx.Done():
					return
				case <-d.Done():
					_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
					return
				case msg = <-out:
				case n, ok := <-c.Notices:
					if !ok {
						clog.Info("notice stream closed, dropping connection")
						_ = conn.Close(websocket.StatusTryAgainLater, "notice stream closed")
						return
					}
					msg = n
				}
				if err := write(ctx, conn, msg); err != nil {
					clog.Debug("write failed", zap.Error(err))
					return
				}
			}
		}()

		send := func(msg types.Message) {
			if msg == nil {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
			}
		}

		// Reader loop
		for {
			rctx, rcancel := context.WithTimeout(ctx, idleTimeout)
			typ, data, err := conn.Read(rctx)
			rcancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					clog.Debug("connection closed by peer")
				default:
					if !errors.Is(err, context.Canceled) {
						clog.Debug("read failed", zap.Error(err))
					}
				}
				return
			}

			if typ != websocket.MessageText {
				send(d.DecodeFailed(c.ID, protocol.DecodeError(errors.New("text frames only"))))
				continue
			}
			req, err := protocol.DecodeText(data)
			if err != nil {
				send(d.DecodeFailed(c.ID, err))
				continue
			}
			send(d.Handle(ctx, c, req))
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.Message) error {
	payload, err := protocol.EncodeText(msg)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, payload)
}

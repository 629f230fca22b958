package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/conn"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/engine"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/hub"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/identity"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/protocol"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/session"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/storage"
	"github.com/blakbro2k/YipeeWebServer-sub000/pkg/types"
)

// Games is the part of the registry the dispatcher needs.
type Games interface {
	Get(gameID string) (*session.Session, error)
}

// Subscriptions associates connections with a game's tick notices. Leave
// ends one association; Forget is called once the connection itself is gone.
type Subscriptions interface {
	Join(connID, gameID string, outbox chan types.TickNotice)
	Leave(connID string)
	Forget(connID string)
}

// Conn is the transport side of a request: a stable id and the channel tick
// notices for this connection are delivered on.
type Conn struct {
	ID      string
	Notices chan types.TickNotice
}

// Dispatcher turns decoded requests from either transport into session
// operations. Responses go back to the originating connection only.
type Dispatcher struct {
	games   Games
	subs    Subscriptions
	conns   *conn.Resolver
	players storage.Storage[storage.Player]
	ident   identity.ServerIdentity
	log     *zap.Logger
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

func New(games Games, subs Subscriptions, conns *conn.Resolver, players storage.Storage[storage.Player],
	ident identity.ServerIdentity, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		games:   games,
		subs:    subs,
		conns:   conns,
		players: players,
		ident:   ident,
		log:     log,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

// Close stops request handling. Transports watch Done and close their
// connections; Handle returns nil from then on.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.log.Info("dispatcher closed")
	})
}

func (d *Dispatcher) Done() <-chan struct{} { return d.done }

func (d *Dispatcher) closed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Handle never returns an error and never panics: failures come back as an
// ErrorResponse. A closed dispatcher drops the request and returns nil.
func (d *Dispatcher) Handle(ctx context.Context, c Conn, req types.Request) (resp types.Message) {
	if d.closed() {
		return nil
	}
	var gc GameContext
	defer func() {
		if r := recover(); r != nil {
			resp = d.HandleError(gc, protocol.Internal(fmt.Errorf("panic handling %s: %v", req.PacketType(), r)))
		}
	}()

	head := req.Head()
	cc := d.conns.Resolve(c.ID, conn.Identity{ClientID: head.ClientID, SessionID: head.SessionID})
	gc = d.gameContext(cc, d.now())

	var err error
	switch r := req.(type) {
	case types.Handshake:
		resp, err = d.handshake(ctx, c, gc, r)
	case types.Disconnect:
		resp, err = d.disconnect(c, gc)
	case types.KeyConfigUpdate:
		resp, err = d.keyConfig(ctx, gc, r)
	case types.TableStateUpdate:
		resp, err = d.tableState(ctx, gc, r)
	case types.PlayerAction:
		resp, err = d.playerAction(gc, r)
	default:
		err = protocol.UnknownPacket(string(req.PacketType()))
	}
	if err != nil {
		return d.HandleError(gc, err)
	}

	d.log.Debug("handled packet",
		zap.String("conn", c.ID), zap.String("packet_type", string(req.PacketType())),
		zap.String("game_id", gc.GameID), zap.Uint64("tick", gc.ServerTick))
	return resp
}

// HandleError builds the response for a failed request. Client mistakes are
// logged at warn, everything else at error.
func (d *Dispatcher) HandleError(gc GameContext, err error) types.ErrorResponse {
	pe := classify(gc, err)
	fields := []zap.Field{
		zap.String("code", string(pe.Code)),
		zap.String("session_id", gc.SessionID),
		zap.String("game_id", gc.GameID),
		zap.Error(err),
	}
	if pe.Expected {
		d.log.Warn("request rejected", fields...)
	} else {
		d.log.Error("request failed", fields...)
	}
	return types.ErrorResponse{
		ResponseHeader: gc.header(),
		Code:           string(pe.Code),
		Message:        pe.Message,
		Details:        pe.Details,
	}
}

// DecodeFailed reports a packet the transport could not decode. The
// connection's context is used when it already has one.
func (d *Dispatcher) DecodeFailed(connID string, err error) types.ErrorResponse {
	cc, _ := d.conns.Lookup(connID)
	return d.HandleError(d.gameContext(cc, d.now()), err)
}

// Drop forgets a closed connection.
func (d *Dispatcher) Drop(connID string) {
	d.subs.Forget(connID)
	d.conns.Close(connID)
}

func classify(gc GameContext, err error) *protocol.Error {
	var pe *protocol.Error
	switch {
	case errors.As(err, &pe):
		return pe
	case errors.Is(err, session.ErrInvalidSeat),
		errors.Is(err, session.ErrSeatTaken),
		errors.Is(err, session.ErrNoPlayers),
		errors.Is(err, engine.ErrUnsupportedAction),
		errors.Is(err, storage.ErrDuplicate):
		return protocol.InvalidArgument(err.Error(), err)
	case errors.Is(err, hub.ErrSessionNotFound), errors.Is(err, session.ErrSessionClosed):
		return protocol.GameNotFound(gc.GameID, err)
	case errors.Is(err, storage.ErrNotFound):
		return protocol.PlayerNotFound(gc.PlayerID, err)
	}
	return protocol.Internal(err)
}

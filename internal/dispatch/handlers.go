package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/conn"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/engine"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/protocol"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/session"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/storage"
	"github.com/blakbro2k/YipeeWebServer-sub000/pkg/types"
)

func (d *Dispatcher) handshake(ctx context.Context, c Conn, gc GameContext, r types.Handshake) (types.Message, error) {
	if r.GameID != "" {
		if _, err := d.games.Get(r.GameID); err != nil {
			return nil, protocol.GameNotFound(r.GameID, err)
		}
	}

	player, err := d.resolvePlayer(ctx, r)
	if err != nil {
		return nil, err
	}

	sessionID := r.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if r.GameID != "" {
		d.conns.Bind(sessionID, r.GameID)
	}
	cc := d.conns.Resolve(c.ID, conn.Identity{ClientID: r.ClientID, SessionID: sessionID, PlayerID: player.ID})
	if cc.GameID != "" {
		d.subs.Join(c.ID, cc.GameID, c.Notices)
	}

	gc.SessionID = cc.SessionID
	gc.GameID = cc.GameID
	gc.PlayerID = player.ID
	d.log.Info("handshake",
		zap.String("conn", c.ID), zap.String("session_id", gc.SessionID),
		zap.String("game_id", gc.GameID), zap.String("player_id", player.ID))

	return types.HandshakeResponse{ResponseHeader: gc.header(), Connected: true, PlayerID: player.ID}, nil
}

// resolvePlayer finds the player named by the handshake, registering a new
// one for unknown names and a guest when neither id nor name is given.
func (d *Dispatcher) resolvePlayer(ctx context.Context, r types.Handshake) (*storage.Player, error) {
	if r.PlayerID != "" {
		p, err := d.players.GetByID(ctx, r.PlayerID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, protocol.PlayerNotFound(r.PlayerID, err)
		}
		return p, err
	}

	if r.PlayerName != "" {
		p, err := d.players.GetByName(ctx, r.PlayerName)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	id := uuid.NewString()
	p := &storage.Player{ID: id, Name: r.PlayerName}
	if p.Name == "" {
		p.Name = "guest-" + id[:8]
	}
	if err := d.players.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("register player: %w", err)
	}
	return p, nil
}

func (d *Dispatcher) disconnect(c Conn, gc GameContext) (types.Message, error) {
	d.subs.Leave(c.ID)
	if gc.SessionID != "" {
		d.conns.Unbind(gc.SessionID)
	}
	d.conns.Close(c.ID)
	return types.DisconnectResponse{ResponseHeader: gc.header(), Connected: false}, nil
}

func (d *Dispatcher) keyConfig(ctx context.Context, gc GameContext, r types.KeyConfigUpdate) (types.Message, error) {
	playerID := r.PlayerID
	if playerID == "" {
		playerID = gc.PlayerID
	}
	if playerID == "" {
		return nil, protocol.NotHandshaken()
	}
	if len(r.KeyConfig) == 0 || !json.Valid(r.KeyConfig) {
		return nil, protocol.InvalidArgument("keyConfig must be a JSON document", nil)
	}

	p, err := d.players.GetByID(ctx, playerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, protocol.PlayerNotFound(playerID, err)
		}
		return nil, err
	}
	p.KeyConfig = string(r.KeyConfig)
	if err := d.players.Save(ctx, p); err != nil {
		return nil, fmt.Errorf("save key config: %w", err)
	}
	return types.KeyConfigResponse{ResponseHeader: gc.header(), Success: true, PlayerID: playerID}, nil
}

func (d *Dispatcher) boundSession(gc GameContext) (*session.Session, error) {
	if gc.GameID == "" {
		return nil, protocol.NotHandshaken()
	}
	s, err := d.games.Get(gc.GameID)
	if err != nil {
		return nil, protocol.GameNotFound(gc.GameID, err)
	}
	return s, nil
}

func (d *Dispatcher) tableState(ctx context.Context, gc GameContext, r types.TableStateUpdate) (types.Message, error) {
	s, err := d.boundSession(gc)
	if err != nil {
		return nil, err
	}

	resp := types.TableStateResponse{ResponseHeader: gc.header(), Command: r.Command, SeatID: r.SeatID}
	switch r.Command {
	case types.TableSit:
		if gc.PlayerID == "" {
			return nil, protocol.NotHandshaken()
		}
		p, err := d.players.GetByID(ctx, gc.PlayerID)
		if err != nil {
			return nil, err
		}
		if err := s.Sit(r.SeatID, session.Player{ID: p.ID, Name: p.Name}); err != nil {
			return nil, err
		}
	case types.TableLeave:
		occupant, ok, err := s.Player(r.SeatID)
		if err != nil {
			return nil, err
		}
		if ok && occupant.ID != gc.PlayerID {
			return nil, protocol.InvalidArgument(fmt.Sprintf("seat %d is held by another player", r.SeatID), nil)
		}
		if err := s.Leave(r.SeatID); err != nil {
			return nil, err
		}
	case types.TableStart:
		seed, err := s.StartTable()
		if err != nil {
			return nil, err
		}
		resp.Seed = seed
	case types.TableStop:
		s.StopTable()
	case types.TableReset:
		s.ResetTable()
	default:
		return nil, protocol.InvalidArgument(fmt.Sprintf("unknown table command %q", r.Command), nil)
	}

	resp.Success = true
	resp.ServerTick = s.Tick()
	return resp, nil
}

// playerAction enqueues on behalf of the caller's own seat; bad targets are
// dropped when the session drains its queue.
func (d *Dispatcher) playerAction(gc GameContext, r types.PlayerAction) (types.Message, error) {
	s, err := d.boundSession(gc)
	if err != nil {
		return nil, err
	}
	seat, ok := s.SeatOf(gc.PlayerID)
	if !ok {
		return nil, protocol.InvalidArgument("player is not seated in this game", nil)
	}
	if r.InitiatingSeatID != seat {
		return nil, protocol.InvalidArgument(
			fmt.Sprintf("player holds seat %d, not %d", seat, r.InitiatingSeatID), nil)
	}
	s.EnqueueAction(engine.PlayerAction{
		InitiatingSeat: r.InitiatingSeatID,
		TargetSeat:     r.TargetSeatID,
		Type:           engine.ActionType(r.ActionType),
		Payload:        r.Payload,
	})
	return types.PlayerActionResponse{ResponseHeader: gc.header(), Success: true, ServerTick: s.Tick()}, nil
}

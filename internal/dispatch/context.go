package dispatch

import (
	"time"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/conn"
	"github.com/blakbro2k/YipeeWebServer-sub000/pkg/types"
)

// GameContext is the per-request view handed to every handler. It is built
// once after the connection is resolved and never changed.
type GameContext struct {
	ServiceName     string
	ServerID        string
	ServerTick      uint64
	ClientID        string
	GameID          string
	SessionID       string
	PlayerID        string
	TimestampMillis int64
}

func (d *Dispatcher) gameContext(cc conn.Context, now time.Time) GameContext {
	gc := GameContext{
		ServiceName:     d.ident.ServiceName(),
		ServerID:        d.ident.ServerID(),
		ClientID:        cc.ClientID,
		GameID:          cc.GameID,
		SessionID:       cc.SessionID,
		PlayerID:        cc.PlayerID,
		TimestampMillis: now.UnixMilli(),
	}
	if gc.GameID != "" {
		if s, err := d.games.Get(gc.GameID); err == nil {
			gc.ServerTick = s.Tick()
		}
	}
	return gc
}

func (gc GameContext) header() types.ResponseHeader {
	return types.ResponseHeader{
		ServerID:        gc.ServerID,
		ServerTimestamp: gc.TimestampMillis,
		SessionID:       gc.SessionID,
		GameID:          gc.GameID,
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/engine"
)

const SeatCount = 8

var ErrInvalidSeat = errors.New("seat id out of range")

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LoggedAction is one entry of a seat's audit trail.
type LoggedAction struct {
	Tick   uint64
	Action engine.PlayerAction
}

// PartnerOf pairs seats 0-1, 2-3, 4-5 and 6-7.
func PartnerOf(seatID int) int {
	if seatID%2 == 0 {
		return seatID + 1
	}
	return seatID - 1
}

func ValidSeat(seatID int) bool { return seatID >= 0 && seatID < SeatCount }

func checkSeat(seatID int) error {
	if !ValidSeat(seatID) {
		return fmt.Errorf("%w: %d", ErrInvalidSeat, seatID)
	}
	return nil
}

// SeatBoard is one player's slot. mu is held across every mutation of the
// simulation, including the combined apply-advance-snapshot step of a tick.
// The history has its own lock so a partner can read it without taking mu.
type SeatBoard struct {
	id int

	mu      sync.Mutex
	sim     engine.Simulation
	player  *Player
	running bool
	started bool
	actions []LoggedAction

	history *History
}

func newSeatBoard(id int, sim engine.Simulation, maxHistoryTicks int) *SeatBoard {
	return &SeatBoard{
		id:      id,
		sim:     sim,
		history: NewHistory(maxHistoryTicks),
	}
}

func (b *SeatBoard) ID() int        { return b.id }
func (b *SeatBoard) PartnerID() int { return PartnerOf(b.id) }

func (b *SeatBoard) Player() (Player, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.player == nil {
		return Player{}, false
	}
	return *b.player, true
}

func (b *SeatBoard) Occupied() bool {
	_, ok := b.Player()
	return ok
}

func (b *SeatBoard) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Finished reports whether the seat counts toward a finished session: it
// either never started or its board is dead.
func (b *SeatBoard) Finished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.started || b.sim.IsDead()
}

func (b *SeatBoard) History() *History { return b.history }

func (b *SeatBoard) HistoryAt(tick uint64) (engine.State, bool) {
	return b.history.At(tick)
}

func (b *SeatBoard) Latest() (engine.State, bool) {
	_, s, ok := b.history.Latest()
	return s, ok
}

func (b *SeatBoard) ActionLog() []LoggedAction {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LoggedAction, len(b.actions))
	copy(out, b.actions)
	return out
}

func (b *SeatBoard) seat(p Player) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.player != nil && b.player.ID != p.ID {
		return false
	}
	b.player = &p
	return true
}

func (b *SeatBoard) unseat() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.player = nil
	if b.running {
		b.sim.End()
		b.running = false
	}
}

// start re-seeds the simulation and clears history and the action log.
func (b *SeatBoard) start(seed int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sim.Reset(seed)
	b.sim.Begin()
	b.running = true
	b.started = true
	b.actions = nil
	b.history.Clear()
}

// stop halts updates; history is kept until reset.
func (b *SeatBoard) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		b.sim.End()
		b.running = false
	}
}

func (b *SeatBoard) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		b.sim.End()
		b.running = false
	}
	b.started = false
	b.actions = nil
	b.history.Clear()
}

// step applies the seat's queued actions in order, advances the board and
// stores a snapshot at tick, all under the seat lock.
func (b *SeatBoard) step(ctx context.Context, tick uint64, dt float64, actions []engine.PlayerAction, partner *engine.State, log *zap.Logger) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		for _, a := range actions {
			log.Warn("dropping action for idle seat",
				zap.Int("seat", b.id), zap.Uint64("tick", tick), zap.String("action", string(a.Type)))
		}
		return
	}

	for _, a := range actions {
		if ctx.Err() != nil {
			return
		}
		if err := b.apply(a); err != nil {
			if errors.Is(err, errSimulationPanic) {
				log.Error("action failed", zap.Int("seat", b.id), zap.Uint64("tick", tick), zap.Error(err))
			} else {
				log.Warn("dropping action", zap.Int("seat", b.id), zap.Uint64("tick", tick),
					zap.String("action", string(a.Type)), zap.Error(err))
			}
			continue
		}
		b.actions = append(b.actions, LoggedAction{Tick: tick, Action: a})
	}

	if err := b.advance(dt, partner); err != nil {
		log.Error("advance failed", zap.Int("seat", b.id), zap.Uint64("tick", tick), zap.Error(err))
		return
	}
	b.history.Put(tick, b.sim.ExportState())
	b.trimActions()
}

var errSimulationPanic = errors.New("simulation panic")

func (b *SeatBoard) apply(a engine.PlayerAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errSimulationPanic, r)
		}
	}()
	return b.sim.ApplyAction(a)
}

func (b *SeatBoard) advance(dt float64, partner *engine.State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errSimulationPanic, r)
		}
	}()
	b.sim.Advance(dt, partner)
	return nil
}

// trimActions keeps the audit trail to the ticks still present in history.
func (b *SeatBoard) trimActions() {
	ticks := b.history.Ticks()
	if len(ticks) == 0 || len(b.actions) == 0 {
		return
	}
	oldest := ticks[0]
	i := 0
	for i < len(b.actions) && b.actions[i].Tick < oldest {
		i++
	}
	if i > 0 {
		b.actions = append(b.actions[:0], b.actions[i:]...)
	}
}

func (b *SeatBoard) summary() SeatSummary {
	b.mu.Lock()
	sum := SeatSummary{
		SeatID:    b.id,
		PartnerID: PartnerOf(b.id),
		Running:   b.running,
		Dead:      b.started && b.sim.IsDead(),
	}
	if b.player != nil {
		sum.PlayerID = b.player.ID
		sum.PlayerName = b.player.Name
	}
	b.mu.Unlock()

	if tick, s, ok := b.history.Latest(); ok {
		sum.LastTick = tick
		sum.Score = s.Score
		sum.Height = s.Height()
	}
	return sum
}

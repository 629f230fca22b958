package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/engine"
)

var ErrSessionClosed = errors.New("session closed")
var ErrSeatTaken = errors.New("seat already taken")
var ErrNoPlayers = errors.New("no seated players")
var ErrDisposeTimeout = errors.New("session workers did not stop within grace period")

type Config struct {
	MaxHistoryTicks int
	Workers         int
	Grace           time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxHistoryTicks <= 0 {
		c.MaxHistoryTicks = 120
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Grace <= 0 {
		c.Grace = 5 * time.Second
	}
	return c
}

type SeatSummary struct {
	SeatID     int    `json:"seatId"`
	PartnerID  int    `json:"partnerId"`
	PlayerID   string `json:"playerId,omitempty"`
	PlayerName string `json:"playerName,omitempty"`
	Running    bool   `json:"running"`
	Dead       bool   `json:"dead"`
	LastTick   uint64 `json:"lastTick"`
	Score      int    `json:"score"`
	Height     int    `json:"height"`
}

type Summary struct {
	GameID string        `json:"gameId"`
	Tick   uint64        `json:"tick"`
	Seed   int64         `json:"seed"`
	Over   bool          `json:"over"`
	Seats  []SeatSummary `json:"seats"`
}

// Session is one game: eight seats ticked together. Advance is only called
// by the registry's scheduler; everything else may be called from any
// goroutine.
type Session struct {
	id    string
	seats [SeatCount]*SeatBoard
	cfg   Config
	log   *zap.Logger

	queueMu sync.Mutex
	pending []engine.PlayerAction

	tickMu      sync.Mutex
	tick        atomic.Uint64
	seed        atomic.Int64
	startedOnce atomic.Bool

	lifeMu  sync.Mutex
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	dispose sync.Once
}

func New(id string, factory engine.Factory, cfg Config, log *zap.Logger) *Session {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:     id,
		cfg:    cfg,
		log:    log.With(zap.String("game_id", id)),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range s.seats {
		s.seats[i] = newSeatBoard(i, factory(), cfg.MaxHistoryTicks)
	}
	s.seed.Store(rand.Int64())
	return s
}

func (s *Session) ID() string    { return s.id }
func (s *Session) Tick() uint64  { return s.tick.Load() }
func (s *Session) Seed() int64   { return s.seed.Load() }
func (s *Session) Started() bool { return s.startedOnce.Load() }

// EnqueueAction never blocks on the simulation and never rejects: bad
// targets are dropped when the queue is drained.
func (s *Session) EnqueueAction(a engine.PlayerAction) {
	s.queueMu.Lock()
	s.pending = append(s.pending, a)
	s.queueMu.Unlock()
}

func (s *Session) Pending() int {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return len(s.pending)
}

func (s *Session) drain() []engine.PlayerAction {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Advance bumps the tick, drains the pending queue in FIFO order and steps
// every running seat on the session's worker pool.
func (s *Session) Advance(dt float64) (uint64, error) {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return s.tick.Load(), ErrSessionClosed
	}
	s.wg.Add(1)
	s.lifeMu.Unlock()
	defer s.wg.Done()

	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	tick := s.tick.Add(1)

	var bySeat [SeatCount][]engine.PlayerAction
	for _, a := range s.drain() {
		if !ValidSeat(a.TargetSeat) {
			s.log.Warn("dropping action for unknown seat",
				zap.Int("seat", a.TargetSeat), zap.Int("from_seat", a.InitiatingSeat),
				zap.Uint64("tick", tick), zap.String("action", string(a.Type)))
			continue
		}
		bySeat[a.TargetSeat] = append(bySeat[a.TargetSeat], a)
	}

	// Partner snapshots are taken before any seat moves so every seat sees
	// the previous tick regardless of scheduling order.
	var latest [SeatCount]*engine.State
	for i, b := range s.seats {
		if st, ok := b.Latest(); ok {
			latest[i] = &st
		}
	}

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Workers)
	for i, b := range s.seats {
		actions := bySeat[i]
		if !b.Running() {
			for _, a := range actions {
				s.log.Warn("dropping action for idle seat",
					zap.Int("seat", i), zap.Uint64("tick", tick), zap.String("action", string(a.Type)))
			}
			continue
		}
		partner := latest[PartnerOf(i)]
		g.Go(func() error {
			b.step(s.ctx, tick, dt, actions, partner, s.log)
			return nil
		})
	}
	_ = g.Wait()

	return tick, nil
}

func (s *Session) Board(seatID int) (*SeatBoard, error) {
	if err := checkSeat(seatID); err != nil {
		return nil, err
	}
	return s.seats[seatID], nil
}

func (s *Session) Player(seatID int) (Player, bool, error) {
	b, err := s.Board(seatID)
	if err != nil {
		return Player{}, false, err
	}
	p, ok := b.Player()
	return p, ok, nil
}

func (s *Session) HistoryAt(seatID int, tick uint64) (engine.State, bool, error) {
	b, err := s.Board(seatID)
	if err != nil {
		return engine.State{}, false, err
	}
	st, ok := b.HistoryAt(tick)
	return st, ok, nil
}

// PartnerStateFor returns the latest snapshot of the seat paired with seatID.
func (s *Session) PartnerStateFor(seatID int) (engine.State, bool, error) {
	if err := checkSeat(seatID); err != nil {
		return engine.State{}, false, err
	}
	st, ok := s.seats[PartnerOf(seatID)].Latest()
	return st, ok, nil
}

// EnemySeats lists the occupied seats other than seatID and its partner.
func (s *Session) EnemySeats(seatID int) ([]int, error) {
	if err := checkSeat(seatID); err != nil {
		return nil, err
	}
	partner := PartnerOf(seatID)
	var out []int
	for i, b := range s.seats {
		if i == seatID || i == partner || !b.Occupied() {
			continue
		}
		out = append(out, i)
	}
	return out, nil
}

// EnemyStatesFor maps each enemy seat to its latest snapshot. Enemies that
// have not produced a snapshot yet are omitted.
func (s *Session) EnemyStatesFor(seatID int) (map[int]engine.State, error) {
	seats, err := s.EnemySeats(seatID)
	if err != nil {
		return nil, err
	}
	out := make(map[int]engine.State, len(seats))
	for _, i := range seats {
		if st, ok := s.seats[i].Latest(); ok {
			out[i] = st
		}
	}
	return out, nil
}

// IsSessionOver is true when every seat either never started or is dead,
// which includes a session where no seat ever started.
func (s *Session) IsSessionOver() bool {
	for _, b := range s.seats {
		if !b.Finished() {
			return false
		}
	}
	return true
}

func (s *Session) Sit(seatID int, p Player) error {
	b, err := s.Board(seatID)
	if err != nil {
		return err
	}
	for i, other := range s.seats {
		if i == seatID {
			continue
		}
		if op, ok := other.Player(); ok && op.ID == p.ID {
			return fmt.Errorf("%w: player %s already at seat %d", ErrSeatTaken, p.ID, i)
		}
	}
	if !b.seat(p) {
		return fmt.Errorf("%w: %d", ErrSeatTaken, seatID)
	}
	return nil
}

func (s *Session) Leave(seatID int) error {
	b, err := s.Board(seatID)
	if err != nil {
		return err
	}
	b.unseat()
	return nil
}

// SeatOf returns the seat held by playerID.
func (s *Session) SeatOf(playerID string) (int, bool) {
	for i, b := range s.seats {
		if p, ok := b.Player(); ok && p.ID == playerID {
			return i, true
		}
	}
	return -1, false
}

// StartSeat starts one seat with the session's current seed.
func (s *Session) StartSeat(seatID int) error {
	b, err := s.Board(seatID)
	if err != nil {
		return err
	}
	b.start(s.seed.Load())
	s.startedOnce.Store(true)
	return nil
}

func (s *Session) StopSeat(seatID int) error {
	b, err := s.Board(seatID)
	if err != nil {
		return err
	}
	b.stop()
	return nil
}

// StartTable draws a fresh shared seed and starts every occupied seat with
// it so all boards replay the same piece sequence.
func (s *Session) StartTable() (int64, error) {
	var occupied []*SeatBoard
	for _, b := range s.seats {
		if b.Occupied() {
			occupied = append(occupied, b)
		}
	}
	if len(occupied) == 0 {
		return 0, ErrNoPlayers
	}
	seed := rand.Int64()
	s.seed.Store(seed)
	for _, b := range occupied {
		b.start(seed)
	}
	s.startedOnce.Store(true)
	s.log.Info("table started", zap.Int("seats", len(occupied)), zap.Int64("seed", seed))
	return seed, nil
}

func (s *Session) StopTable() {
	for _, b := range s.seats {
		b.stop()
	}
}

func (s *Session) ResetTable() {
	for _, b := range s.seats {
		b.reset()
	}
}

func (s *Session) Summary() Summary {
	sum := Summary{
		GameID: s.id,
		Tick:   s.tick.Load(),
		Seed:   s.seed.Load(),
		Over:   s.IsSessionOver(),
		Seats:  make([]SeatSummary, 0, SeatCount),
	}
	for _, b := range s.seats {
		sum.Seats = append(sum.Seats, b.summary())
	}
	return sum
}

// Dispose stops all per-session work. In-flight ticks get the configured
// grace period; after that the session is abandoned and ErrDisposeTimeout is
// returned. Only the first call does anything.
func (s *Session) Dispose(ctx context.Context) error {
	var err error
	s.dispose.Do(func() {
		s.lifeMu.Lock()
		s.closed = true
		s.cancel()
		s.lifeMu.Unlock()

		done := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(done)
		}()

		timer := time.NewTimer(s.cfg.Grace)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			err = ErrDisposeTimeout
		case <-ctx.Done():
			err = fmt.Errorf("%w: %v", ErrDisposeTimeout, ctx.Err())
		}
		if err != nil {
			s.log.Error("forcing session termination", zap.Error(err))
			return
		}

		s.StopTable()
		s.log.Info("session disposed", zap.Uint64("tick", s.tick.Load()))
	})
	return err
}

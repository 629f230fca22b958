package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/blakbro2k/YipeeWebServer-sub000/internal/engine"
	"github.com/blakbro2k/YipeeWebServer-sub000/internal/session"
	"github.com/blakbro2k/YipeeWebServer-sub000/pkg/types"
)

var ErrSessionNotFound = errors.New("game session not found")
var ErrRegistryClosed = errors.New("registry closed")
var ErrCodeExhausted = errors.New("could not generate a free game code")

const maxCodeAttempts = 32

type TickNotice = types.TickNotice

// TickListener receives the notices of one registry tick. It is called from
// the scheduler goroutine and must not block.
type TickListener func([]TickNotice)

// CodeSource produces candidate game ids.
type CodeSource func() (string, error)

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

type Config struct {
	TickInterval    time.Duration
	MaxCatchUpTicks int
	Session         session.Config
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 16 * time.Millisecond
	}
	if c.MaxCatchUpTicks <= 0 {
		c.MaxCatchUpTicks = 5
	}
	return c
}

type Option func(*Hub)

func WithCodeSource(src CodeSource) Option {
	return func(h *Hub) { h.codes = src }
}

func WithTickListener(l TickListener) Option {
	return func(h *Hub) { h.listener = l }
}

// Hub is the session registry. It owns every live game, hands out ids and
// drives the fixed-timestep clock.
type Hub struct {
	serverID string
	factory  engine.Factory
	cfg      Config
	log      *zap.Logger
	codes    CodeSource
	listener TickListener

	mu       sync.RWMutex
	sessions map[string]*session.Session
	closed   bool

	stop    chan struct{}
	running sync.WaitGroup
	dispose sync.Once
}

func NewHub(serverID string, factory engine.Factory, cfg Config, log *zap.Logger, opts ...Option) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		serverID: serverID,
		factory:  factory,
		cfg:      cfg.withDefaults(),
		log:      log,
		codes:    GenerateCode,
		sessions: make(map[string]*session.Session),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) ServerID() string { return h.serverID }

// NewSession registers a game with eight empty seats and returns its id.
func (h *Hub) NewSession() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := h.codes()
		if err != nil {
			return "", fmt.Errorf("generate game code: %w", err)
		}

		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return "", ErrRegistryClosed
		}
		if _, taken := h.sessions[code]; taken {
			h.mu.Unlock()
			h.log.Debug("collision on code, regenerating", zap.String("game_id", code))
			continue
		}
		h.sessions[code] = session.New(code, h.factory, h.cfg.Session, h.log)
		h.mu.Unlock()

		h.log.Info("game created", zap.String("game_id", code))
		return code, nil
	}
	return "", ErrCodeExhausted
}

func (h *Hub) Get(gameID string) (*session.Session, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, gameID)
	}
	return s, nil
}

// All returns the registered sessions ordered by id. The slice is a copy.
func (h *Hub) All() []*session.Session {
	h.mu.RLock()
	out := make([]*session.Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	h.mu.RUnlock()
	slices.SortFunc(out, func(a, b *session.Session) int {
		switch {
		case a.ID() < b.ID():
			return -1
		case a.ID() > b.ID():
			return 1
		}
		return 0
	})
	return out
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Remove unregisters a game and disposes it.
func (h *Hub) Remove(ctx context.Context, gameID string) error {
	h.mu.Lock()
	s, ok := h.sessions[gameID]
	delete(h.sessions, gameID)
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, gameID)
	}
	return s.Dispose(ctx)
}

// ReapFinished removes every game that has been started at least once and
// whose seats are all idle or dead. It returns the removed ids.
func (h *Hub) ReapFinished(ctx context.Context) ([]string, error) {
	var finished []*session.Session
	h.mu.Lock()
	for id, s := range h.sessions {
		if s.Started() && s.IsSessionOver() {
			finished = append(finished, s)
			delete(h.sessions, id)
		}
	}
	h.mu.Unlock()

	var err error
	ids := make([]string, 0, len(finished))
	for _, s := range finished {
		ids = append(ids, s.ID())
		if derr := s.Dispose(ctx); derr != nil {
			err = multierr.Append(err, fmt.Errorf("game %s: %w", s.ID(), derr))
		}
	}
	slices.Sort(ids)
	if len(ids) > 0 {
		h.log.Info("reaped finished games", zap.Strings("game_ids", ids))
	}
	return ids, err
}

// Tick advances every registered game once. A game that fails or panics is
// logged and skipped; the rest still tick.
func (h *Hub) Tick(dt float64) []TickNotice {
	sessions := h.All()
	notices := make([]TickNotice, 0, len(sessions))
	for _, s := range sessions {
		tick, err := h.advance(s, dt)
		if err != nil {
			h.log.Error("game tick failed", zap.String("game_id", s.ID()), zap.Error(err))
			continue
		}
		notices = append(notices, TickNotice{GameID: s.ID(), ServerTick: tick, ServerID: h.serverID})
	}
	return notices
}

func (h *Hub) advance(s *session.Session, dt float64) (tick uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Advance(dt)
}

// Run is the scheduler. Wall-clock time is accumulated and spent in whole
// fixed ticks; when the loop falls more than MaxCatchUpTicks behind the
// surplus is discarded. Run returns when ctx is done or the hub is disposed.
func (h *Hub) Run(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrRegistryClosed
	}
	h.running.Add(1)
	h.mu.Unlock()
	defer h.running.Done()

	step := h.cfg.TickInterval
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	last := time.Now()
	var acc time.Duration
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-h.stop:
			return nil
		case now := <-ticker.C:
			acc += now.Sub(last)
			last = now
			acc = h.spend(acc, step)
		}
	}
}

// spend runs as many ticks as acc pays for, capped, and returns the
// remainder.
func (h *Hub) spend(acc, step time.Duration) time.Duration {
	ran := 0
	for acc >= step && ran < h.cfg.MaxCatchUpTicks {
		notices := h.Tick(step.Seconds())
		if h.listener != nil && len(notices) > 0 {
			h.listener(notices)
		}
		acc -= step
		ran++
	}
	if acc >= step {
		h.log.Warn("scheduler behind, skipping ticks", zap.Int64("skipped", int64(acc/step)))
		acc %= step
	}
	return acc
}

// Dispose stops the clock and disposes every game. Errors from individual
// games are collected; only the first call does any work.
func (h *Hub) Dispose(ctx context.Context) error {
	var err error
	h.dispose.Do(func() {
		h.mu.Lock()
		h.closed = true
		sessions := make([]*session.Session, 0, len(h.sessions))
		for _, s := range h.sessions {
			sessions = append(sessions, s)
		}
		clear(h.sessions)
		h.mu.Unlock()

		close(h.stop)
		h.running.Wait()

		for _, s := range sessions {
			if derr := s.Dispose(ctx); derr != nil {
				err = multierr.Append(err, fmt.Errorf("game %s: %w", s.ID(), derr))
			}
		}
		h.log.Info("registry disposed", zap.Int("games", len(sessions)), zap.Error(err))
	})
	return err
}

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryPlayers is the store used when no database is configured.
type MemoryPlayers struct {
	mu     sync.RWMutex
	byID   map[string]Player
	byName map[string]string
	now    func() time.Time
}

func NewMemoryPlayers() *MemoryPlayers {
	return &MemoryPlayers{
		byID:   make(map[string]Player),
		byName: make(map[string]string),
		now:    time.Now,
	}
}

func (m *MemoryPlayers) GetByID(_ context.Context, id string) (*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryPlayers) GetByName(_ context.Context, name string) (*Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	p := m.byID[id]
	return &p, nil
}

// Save inserts or updates p and stamps its timestamps. Names are unique.
func (m *MemoryPlayers) Save(_ context.Context, p *Player) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.byName[p.Name]; ok && owner != p.ID {
		return fmt.Errorf("%w: name %q", ErrDuplicate, p.Name)
	}
	now := m.now()
	if old, ok := m.byID[p.ID]; ok {
		delete(m.byName, old.Name)
		p.CreatedAt = old.CreatedAt
	} else if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.byID[p.ID] = *p
	m.byName[p.Name] = p.ID
	return nil
}

func (m *MemoryPlayers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	delete(m.byName, p.Name)
	return nil
}

func (m *MemoryPlayers) Close() error { return nil }

var (
	_ Storage[Player] = (*MemoryPlayers)(nil)
	_ Storage[Player] = (*PlayerStore)(nil)
)

package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")
var ErrDuplicate = errors.New("record already exists")

// Storage is the persistence boundary the dispatcher works against.
type Storage[T any] interface {
	GetByID(ctx context.Context, id string) (*T, error)
	GetByName(ctx context.Context, name string) (*T, error)
	Save(ctx context.Context, v *T) error
	Delete(ctx context.Context, id string) error
	Close() error
}

type Player struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"uniqueIndex;size:64;not null"`
	KeyConfig string `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const uniqueViolation = "23505"

// PlayerStore keeps players in postgres.
type PlayerStore struct {
	db *gorm.DB
}

// OpenPostgres connects and migrates the players table.
func OpenPostgres(dsn string, log *zap.Logger) (*PlayerStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&Player{}); err != nil {
		return nil, fmt.Errorf("migrate players: %w", err)
	}
	log.Info("player store ready", zap.String("dialect", db.Dialector.Name()))
	return NewPlayerStore(db), nil
}

func NewPlayerStore(db *gorm.DB) *PlayerStore {
	return &PlayerStore{db: db}
}

func (s *PlayerStore) GetByID(ctx context.Context, id string) (*Player, error) {
	var p Player
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *PlayerStore) GetByName(ctx context.Context, name string) (*Player, error) {
	var p Player
	if err := s.db.WithContext(ctx).First(&p, "name = ?", name).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *PlayerStore) Save(ctx context.Context, p *Player) error {
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return translate(err)
	}
	return nil
}

func (s *PlayerStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&Player{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PlayerStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

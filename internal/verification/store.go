package verification

import (
	"context"
	"errors"

	"github.com/eleven-am/liveness-backend/internal/shared"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Record{})
}

func (s *Store) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = shared.NewID("vrf_")
	}
	return s.db.WithContext(ctx).Save(rec).Error
}

func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) ListByClient(ctx context.Context, clientID string, limit, offset int) ([]*Record, int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Model(&Record{}).
		Where("client_id = ?", clientID).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var records []*Record
	err = s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").Limit(limit).Offset(offset).
		Find(&records).Error
	return records, total, err
}


// Package store persists reminder notifications.
package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/identifiers"
	"condoku_backend/internals/features/billing/reminders/model"
)

type Store interface {
	identifiers.Lookup

	// Insert fails with billerr.ErrDuplicateIdentifier on a code collision.
	Insert(ctx context.Context, m *model.NotificationModel) error
	ListByApartment(ctx context.Context, apartmentCode string, limit, offset int) ([]model.NotificationModel, int64, error)
}

// ---------------------------------------------------------------------------
// gorm
// ---------------------------------------------------------------------------

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{DB: db} }

func (s *GormStore) MatchPrefix(ctx context.Context, f identifiers.Family, prefix string) ([]string, error) {
	return identifiers.GormLookup{DB: s.DB}.MatchPrefix(ctx, f, prefix)
}

func (s *GormStore) Insert(ctx context.Context, m *model.NotificationModel) error {
	if err := s.DB.WithContext(ctx).Create(m).Error; err != nil {
		if identifiers.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", billerr.ErrDuplicateIdentifier, m.NotificationCode)
		}
		return err
	}
	return nil
}

func (s *GormStore) ListByApartment(ctx context.Context, apartmentCode string, limit, offset int) ([]model.NotificationModel, int64, error) {
	q := s.DB.WithContext(ctx).Model(&model.NotificationModel{}).
		Where("notification_apartment_code = ?", apartmentCode)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []model.NotificationModel
	if err := q.Order("notification_created_at DESC").
		Limit(limit).Offset(offset).
		Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ---------------------------------------------------------------------------
// memory
// ---------------------------------------------------------------------------

type MemoryStore struct {
	mu   sync.RWMutex
	rows []model.NotificationModel
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) MatchPrefix(_ context.Context, f identifiers.Family, prefix string) ([]string, error) {
	if f != model.NotificationCodeFamily {
		return nil, fmt.Errorf("memory store: unknown family %s", f)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, r := range s.rows {
		if strings.HasPrefix(r.NotificationCode, prefix) {
			out = append(out, r.NotificationCode)
		}
	}
	return out, nil
}

func (s *MemoryStore) Insert(_ context.Context, m *model.NotificationModel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.NotificationCode == m.NotificationCode {
			return fmt.Errorf("%w: %s", billerr.ErrDuplicateIdentifier, m.NotificationCode)
		}
	}
	_ = m.BeforeCreate(nil)
	now := time.Now()
	m.NotificationCreatedAt, m.NotificationUpdatedAt = now, now
	s.rows = append(s.rows, *m)
	return nil
}

func (s *MemoryStore) ListByApartment(_ context.Context, apartmentCode string, limit, offset int) ([]model.NotificationModel, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []model.NotificationModel
	for _, r := range s.rows {
		if r.NotificationApartmentCode == apartmentCode {
			list = append(list, r)
		}
	}
	slices.Reverse(list) // newest first
	total := int64(len(list))
	start := min(offset, len(list))
	end := len(list)
	if limit > 0 {
		end = min(start+limit, len(list))
	}
	return list[start:end], total, nil
}

// All returns every stored notification, oldest first.
func (s *MemoryStore) All() []model.NotificationModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.rows)
}

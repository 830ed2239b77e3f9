package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/identifiers"
	"condoku_backend/internals/features/billing/invoices/model"
)

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) MatchPrefix(ctx context.Context, f identifiers.Family, prefix string) ([]string, error) {
	return identifiers.GormLookup{DB: s.DB}.MatchPrefix(ctx, f, prefix)
}

func (s *GormStore) Create(ctx context.Context, inv *model.Invoice) error {
	if err := s.DB.WithContext(ctx).Create(inv).Error; err != nil {
		if identifiers.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", billerr.ErrDuplicateIdentifier, inv.InvoiceID)
		}
		return err
	}
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*model.Invoice, error) {
	var m model.Invoice
	if err := s.DB.WithContext(ctx).First(&m, "invoice_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("invoice %s: %w", id, billerr.ErrNotFound)
		}
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) FindByNaturalKey(ctx context.Context, feeCode, apartmentCode, period string) (*model.Invoice, error) {
	var m model.Invoice
	err := s.DB.WithContext(ctx).
		Where("invoice_fee_code = ? AND invoice_apartment_code = ? AND invoice_billing_period = ?", feeCode, apartmentCode, period).
		Order("invoice_created_at ASC, invoice_id ASC").
		Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, billerr.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *GormStore) List(ctx context.Context, f ListFilter) ([]model.Invoice, int64, error) {
	q := s.DB.WithContext(ctx).Model(&model.Invoice{})
	if f.Status != "" {
		q = q.Where("invoice_status = ?", f.Status)
	}
	if f.FeeCode != "" {
		q = q.Where("invoice_fee_code = ?", f.FeeCode)
	}
	if f.ApartmentCode != "" {
		q = q.Where("invoice_apartment_code = ?", f.ApartmentCode)
	}
	if f.BillingPeriod != "" {
		q = q.Where("invoice_billing_period = ?", f.BillingPeriod)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []model.Invoice
	q = q.Order("invoice_created_at DESC, invoice_id DESC")
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	if err := q.Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (s *GormStore) ListDue(ctx context.Context, asOf time.Time, afterID string, limit int) ([]model.Invoice, error) {
	q := s.DB.WithContext(ctx).
		Where("invoice_status IN ?", []model.InvoiceStatus{model.InvoiceStatusPending, model.InvoiceStatusOverdue}).
		Where("invoice_due_date < ?", asOf)
	if afterID != "" {
		q = q.Where("invoice_id > ?", afterID)
	}
	var list []model.Invoice
	if err := q.Order("invoice_id ASC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

func (s *GormStore) Transition(ctx context.Context, id string, to model.InvoiceStatus, p Patch) (*model.Invoice, error) {
	var m model.Invoice
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&m, "invoice_id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("invoice %s: %w", id, billerr.ErrNotFound)
			}
			return err
		}
		if !m.InvoiceStatus.CanTransitionTo(to) {
			return fmt.Errorf("%w: %s %s -> %s", billerr.ErrInvalidTransition, id, m.InvoiceStatus, to)
		}
		if err := tx.Model(&model.Invoice{}).
			Where("invoice_id = ?", id).
			Updates(p.columns(to)).Error; err != nil {
			if identifiers.IsUniqueViolation(err) {
				return fmt.Errorf("%w: receipt for %s", billerr.ErrDuplicateIdentifier, id)
			}
			return err
		}
		p.apply(&m, to)
		return nil
	})
	if err != nil {
		if errors.Is(err, billerr.ErrInvalidTransition) {
			return &m, err
		}
		return nil, err
	}
	return &m, nil
}

package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/identifiers"
	"condoku_backend/internals/features/billing/invoices/model"
)

// MemoryStore keeps invoices in process. It enforces the same primary key
// and receipt uniqueness as the SQL schema.
type MemoryStore struct {
	mu       sync.RWMutex
	invoices map[string]model.Invoice
	receipts map[string]string // receipt no -> invoice id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invoices: make(map[string]model.Invoice),
		receipts: make(map[string]string),
	}
}

func (s *MemoryStore) MatchPrefix(_ context.Context, f identifiers.Family, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	switch f {
	case model.InvoiceIDFamily:
		for id := range s.invoices {
			if strings.HasPrefix(id, prefix) {
				out = append(out, id)
			}
		}
	case model.ReceiptFamily:
		for no := range s.receipts {
			if strings.HasPrefix(no, prefix) {
				out = append(out, no)
			}
		}
	default:
		return nil, fmt.Errorf("memory store: unknown family %s", f)
	}
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, inv *model.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.InvoiceID]; exists {
		return fmt.Errorf("%w: %s", billerr.ErrDuplicateIdentifier, inv.InvoiceID)
	}
	if inv.InvoiceReceiptNo != nil {
		if _, taken := s.receipts[*inv.InvoiceReceiptNo]; taken {
			return fmt.Errorf("%w: receipt %s", billerr.ErrDuplicateIdentifier, *inv.InvoiceReceiptNo)
		}
		s.receipts[*inv.InvoiceReceiptNo] = inv.InvoiceID
	}

	now := time.Now()
	if inv.InvoiceCreatedAt.IsZero() {
		inv.InvoiceCreatedAt = now
	}
	inv.InvoiceUpdatedAt = now
	if inv.InvoiceStatus == "" {
		inv.InvoiceStatus = model.InvoiceStatusPending
	}
	if inv.InvoiceSource == "" {
		inv.InvoiceSource = model.InvoiceSourceManual
	}
	s.invoices[inv.InvoiceID] = *inv
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", id, billerr.ErrNotFound)
	}
	return &m, nil
}

func (s *MemoryStore) FindByNaturalKey(_ context.Context, feeCode, apartmentCode, period string) (*model.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *model.Invoice
	for _, m := range s.invoices {
		if m.InvoiceFeeCode != feeCode || m.InvoiceApartmentCode != apartmentCode || m.InvoiceBillingPeriod != period {
			continue
		}
		if found == nil || olderFirst(m, *found) < 0 {
			c := m
			found = &c
		}
	}
	if found == nil {
		return nil, billerr.ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) List(_ context.Context, f ListFilter) ([]model.Invoice, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []model.Invoice
	for _, m := range s.invoices {
		if f.Status != "" && m.InvoiceStatus != f.Status {
			continue
		}
		if f.FeeCode != "" && m.InvoiceFeeCode != f.FeeCode {
			continue
		}
		if f.ApartmentCode != "" && m.InvoiceApartmentCode != f.ApartmentCode {
			continue
		}
		if f.BillingPeriod != "" && m.InvoiceBillingPeriod != f.BillingPeriod {
			continue
		}
		list = append(list, m)
	}
	// newest first, like the SQL store
	slices.SortFunc(list, func(a, b model.Invoice) int { return olderFirst(b, a) })

	total := int64(len(list))
	if f.Limit > 0 {
		start := min(f.Offset, len(list))
		end := min(start+f.Limit, len(list))
		list = list[start:end]
	}
	return list, total, nil
}

func (s *MemoryStore) ListDue(_ context.Context, asOf time.Time, afterID string, limit int) ([]model.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []model.Invoice
	for _, m := range s.invoices {
		if m.InvoiceStatus != model.InvoiceStatusPending && m.InvoiceStatus != model.InvoiceStatusOverdue {
			continue
		}
		if !m.InvoiceDueDate.Before(asOf) || m.InvoiceID <= afterID {
			continue
		}
		list = append(list, m)
	}
	slices.SortFunc(list, func(a, b model.Invoice) int { return strings.Compare(a.InvoiceID, b.InvoiceID) })
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (s *MemoryStore) Transition(_ context.Context, id string, to model.InvoiceStatus, p Patch) (*model.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.invoices[id]
	if !ok {
		return nil, fmt.Errorf("invoice %s: %w", id, billerr.ErrNotFound)
	}
	if !m.InvoiceStatus.CanTransitionTo(to) {
		return &m, fmt.Errorf("%w: %s %s -> %s", billerr.ErrInvalidTransition, id, m.InvoiceStatus, to)
	}
	if p.ReceiptNo != nil {
		if owner, taken := s.receipts[*p.ReceiptNo]; taken && owner != id {
			return nil, fmt.Errorf("%w: receipt for %s", billerr.ErrDuplicateIdentifier, id)
		}
		s.receipts[*p.ReceiptNo] = m.InvoiceID
	}
	p.apply(&m, to)
	// key by the stored id; callers may pass request-scoped strings
	s.invoices[m.InvoiceID] = m
	return &m, nil
}

func olderFirst(a, b model.Invoice) int {
	if c := a.InvoiceCreatedAt.Compare(b.InvoiceCreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.InvoiceID, b.InvoiceID)
}

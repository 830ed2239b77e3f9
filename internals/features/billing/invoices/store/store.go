// Package store persists invoices. The gorm store backs production; the
// memory store backs tests and STORE_DRIVER=memory local runs.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"condoku_backend/internals/features/billing/identifiers"
	"condoku_backend/internals/features/billing/invoices/model"
)

// Store is the durable invoice table. It doubles as the identifier lookup for
// the families that live in it (invoice ids, receipt numbers).
type Store interface {
	identifiers.Lookup

	// Create inserts inv. A primary key or receipt collision is
	// billerr.ErrDuplicateIdentifier.
	Create(ctx context.Context, inv *model.Invoice) error
	Get(ctx context.Context, id string) (*model.Invoice, error)
	// FindByNaturalKey returns the oldest invoice for the key.
	FindByNaturalKey(ctx context.Context, feeCode, apartmentCode, period string) (*model.Invoice, error)
	List(ctx context.Context, f ListFilter) ([]model.Invoice, int64, error)
	// ListDue returns unpaid (PENDING, OVERDUE) invoices due before asOf,
	// ordered by id and starting after afterID (keyset paging).
	ListDue(ctx context.Context, asOf time.Time, afterID string, limit int) ([]model.Invoice, error)
	// Transition moves the invoice to status `to` and applies p atomically.
	// When the current status cannot move to `to` it returns the current row
	// together with billerr.ErrInvalidTransition.
	Transition(ctx context.Context, id string, to model.InvoiceStatus, p Patch) (*model.Invoice, error)
}

type ListFilter struct {
	Status        model.InvoiceStatus
	FeeCode       string
	ApartmentCode string
	BillingPeriod string
	Limit         int
	Offset        int
}

// Patch carries the columns that change together with a status transition.
type Patch struct {
	At               time.Time
	PaidAt           *time.Time
	ReceiptNo        *string
	OverdueAt        *time.Time
	LateFeeAmount    *decimal.Decimal
	LateFeeAppliedAt *time.Time
}

func (p Patch) apply(m *model.Invoice, to model.InvoiceStatus) {
	m.InvoiceStatus = to
	m.InvoiceUpdatedAt = p.at()
	if p.PaidAt != nil {
		m.InvoicePaidAt = p.PaidAt
	}
	if p.ReceiptNo != nil {
		m.InvoiceReceiptNo = p.ReceiptNo
	}
	if p.OverdueAt != nil {
		m.InvoiceOverdueAt = p.OverdueAt
	}
	if p.LateFeeAmount != nil {
		m.InvoiceLateFeeAmount = *p.LateFeeAmount
	}
	if p.LateFeeAppliedAt != nil {
		m.InvoiceLateFeeAppliedAt = p.LateFeeAppliedAt
	}
}

func (p Patch) columns(to model.InvoiceStatus) map[string]any {
	cols := map[string]any{
		"invoice_status":     to,
		"invoice_updated_at": p.at(),
	}
	if p.PaidAt != nil {
		cols["invoice_paid_at"] = *p.PaidAt
	}
	if p.ReceiptNo != nil {
		cols["invoice_receipt_no"] = *p.ReceiptNo
	}
	if p.OverdueAt != nil {
		cols["invoice_overdue_at"] = *p.OverdueAt
	}
	if p.LateFeeAmount != nil {
		cols["invoice_late_fee_amount"] = *p.LateFeeAmount
	}
	if p.LateFeeAppliedAt != nil {
		cols["invoice_late_fee_applied_at"] = *p.LateFeeAppliedAt
	}
	return cols
}

func (p Patch) at() time.Time {
	if p.At.IsZero() {
		return time.Now()
	}
	return p.At
}

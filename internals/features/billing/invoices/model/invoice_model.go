// file: internals/features/billing/invoices/model/invoice_model.go
package model

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"condoku_backend/internals/features/billing/identifiers"
)

// =========================================================
// ENUM: invoice status
// =========================================================

type InvoiceStatus string

const (
	InvoiceStatusPending        InvoiceStatus = "PENDING"
	InvoiceStatusOverdue        InvoiceStatus = "OVERDUE"
	InvoiceStatusLateFeeApplied InvoiceStatus = "LATE_FEE_APPLIED"
	InvoiceStatusPaid           InvoiceStatus = "PAID"
)

// forward-only transitions; PAID is terminal
var transitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusPending:        {InvoiceStatusOverdue, InvoiceStatusPaid},
	InvoiceStatusOverdue:        {InvoiceStatusLateFeeApplied, InvoiceStatusPaid},
	InvoiceStatusLateFeeApplied: {InvoiceStatusPaid},
	InvoiceStatusPaid:           nil,
}

func (s InvoiceStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	return slices.Contains(transitions[s], next)
}

// SourcesOf returns every status allowed to move into next.
func SourcesOf(next InvoiceStatus) []InvoiceStatus {
	var out []InvoiceStatus
	for from, tos := range transitions {
		if slices.Contains(tos, next) {
			out = append(out, from)
		}
	}
	slices.Sort(out)
	return out
}

type InvoiceSource string

const (
	InvoiceSourceManual  InvoiceSource = "manual"
	InvoiceSourceVehicle InvoiceSource = "vehicle"
	InvoiceSourceWater   InvoiceSource = "water"
	InvoiceSourceService InvoiceSource = "service"
)

// Fee codes that prefix generated invoice ids.
const (
	FeeCodeService = "PD"
	FeeCodeVehicle = "PX"
	FeeCodeWater   = "PN"
)

// =========================================================
// identifier families living in this table
// =========================================================

var (
	InvoiceIDFamily = identifiers.Family{Table: "invoices", Column: "invoice_id"}
	ReceiptFamily   = identifiers.Family{Table: "invoices", Column: "invoice_receipt_no"}
)

const ReceiptPrefix = "PT"

// =========================================================
// MODEL
// =========================================================

type Invoice struct {
	InvoiceID string `gorm:"column:invoice_id;type:varchar(64);primaryKey" json:"invoice_id"`

	// natural key (fee, apartment, period); not unique, suffixed ids share it
	InvoiceFeeCode       string `gorm:"column:invoice_fee_code;type:varchar(20);not null;index:ix_invoice_natural_key,priority:1" json:"invoice_fee_code"`
	InvoiceApartmentCode string `gorm:"column:invoice_apartment_code;type:varchar(30);not null;index:ix_invoice_natural_key,priority:2" json:"invoice_apartment_code"`
	InvoiceBillingPeriod string `gorm:"column:invoice_billing_period;type:char(6);not null;index:ix_invoice_natural_key,priority:3" json:"invoice_billing_period"` // MMYYYY

	InvoiceAmount        decimal.Decimal `gorm:"column:invoice_amount;type:numeric(14,2);not null" json:"invoice_amount"`
	InvoiceLateFeeAmount decimal.Decimal `gorm:"column:invoice_late_fee_amount;type:numeric(14,2);not null;default:0" json:"invoice_late_fee_amount"`

	InvoiceStatus    InvoiceStatus  `gorm:"column:invoice_status;type:varchar(20);not null;default:'PENDING';index:ix_invoice_status_due,priority:1" json:"invoice_status"`
	InvoiceSource    InvoiceSource  `gorm:"column:invoice_source;type:varchar(20);not null;default:'manual'" json:"invoice_source"`
	InvoiceReceiptNo *string        `gorm:"column:invoice_receipt_no;type:varchar(40);uniqueIndex:uq_invoice_receipt_no" json:"invoice_receipt_no,omitempty"`
	InvoiceMeta      datatypes.JSON `gorm:"column:invoice_meta;type:jsonb" json:"invoice_meta,omitempty"`
	InvoiceNote      *string        `gorm:"column:invoice_note;type:text" json:"invoice_note,omitempty"`

	InvoiceDueDate          time.Time  `gorm:"column:invoice_due_date;type:timestamptz;not null;index:ix_invoice_status_due,priority:2" json:"invoice_due_date"`
	InvoicePaidAt           *time.Time `gorm:"column:invoice_paid_at;type:timestamptz" json:"invoice_paid_at,omitempty"`
	InvoiceOverdueAt        *time.Time `gorm:"column:invoice_overdue_at;type:timestamptz" json:"invoice_overdue_at,omitempty"`
	InvoiceLateFeeAppliedAt *time.Time `gorm:"column:invoice_late_fee_applied_at;type:timestamptz" json:"invoice_late_fee_applied_at,omitempty"`

	InvoiceCreatedAt time.Time `gorm:"column:invoice_created_at;type:timestamptz;not null;default:now()" json:"invoice_created_at"`
	InvoiceUpdatedAt time.Time `gorm:"column:invoice_updated_at;type:timestamptz;not null;default:now()" json:"invoice_updated_at"`
}

func (Invoice) TableName() string { return "invoices" }

// Total is what the resident owes: base amount plus any late fee.
func (m Invoice) Total() decimal.Decimal {
	return m.InvoiceAmount.Add(m.InvoiceLateFeeAmount)
}

// OverdueAt reports whether the invoice is unpaid past its due date at now.
func (m Invoice) OverdueAt(now time.Time) bool {
	return m.InvoiceStatus != InvoiceStatusPaid && now.After(m.InvoiceDueDate)
}

// =========================================================
// HOOKS: explicit timestamps
// =========================================================

func (m *Invoice) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if m.InvoiceCreatedAt.IsZero() {
		m.InvoiceCreatedAt = now
	}
	m.InvoiceUpdatedAt = now
	if m.InvoiceStatus == "" {
		m.InvoiceStatus = InvoiceStatusPending
	}
	if m.InvoiceSource == "" {
		m.InvoiceSource = InvoiceSourceManual
	}
	return nil
}

func (m *Invoice) BeforeUpdate(tx *gorm.DB) error {
	m.InvoiceUpdatedAt = time.Now()
	return nil
}

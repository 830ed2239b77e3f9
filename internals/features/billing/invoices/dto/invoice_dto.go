// File: internals/features/billing/invoices/dto/invoice_dto.go
package dto

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"condoku_backend/internals/features/billing/invoices/model"
	"condoku_backend/internals/features/billing/invoices/service"
)

////////////////////////////////////////////////////////////////////////////////
// INVOICES: DTO
////////////////////////////////////////////////////////////////////////////////

// Create (manual invoice). Period accepts "1/2026", "01/2026" or "012026".
type InvoiceCreateDTO struct {
	InvoiceFeeCode       string          `json:"invoice_fee_code" validate:"required,max=20"`
	InvoiceApartmentCode string          `json:"invoice_apartment_code" validate:"required,max=30"`
	InvoiceBillingPeriod string          `json:"invoice_billing_period" validate:"required"`
	InvoiceAmount        decimal.Decimal `json:"invoice_amount"`
	InvoiceDueDate       time.Time       `json:"invoice_due_date" validate:"required"`
	InvoiceNote          *string         `json:"invoice_note,omitempty" validate:"omitempty,max=500"`
	InvoiceMeta          datatypes.JSON  `json:"invoice_meta,omitempty"`
}

func (in InvoiceCreateDTO) ToInput() service.CreateInput {
	var note *string
	if in.InvoiceNote != nil {
		if n := strings.TrimSpace(*in.InvoiceNote); n != "" {
			note = &n
		}
	}
	return service.CreateInput{
		FeeCode:       in.InvoiceFeeCode,
		ApartmentCode: in.InvoiceApartmentCode,
		BillingPeriod: in.InvoiceBillingPeriod,
		Amount:        in.InvoiceAmount,
		DueDate:       in.InvoiceDueDate,
		Source:        model.InvoiceSourceManual,
		Note:          note,
		Meta:          in.InvoiceMeta,
	}
}

// Pay: paid_at defaults to now.
type InvoicePayDTO struct {
	InvoicePaidAt *time.Time `json:"invoice_paid_at,omitempty"`
}

type InvoiceResponse struct {
	InvoiceID            string              `json:"invoice_id"`
	InvoiceFeeCode       string              `json:"invoice_fee_code"`
	InvoiceApartmentCode string              `json:"invoice_apartment_code"`
	InvoiceBillingPeriod string              `json:"invoice_billing_period"`
	InvoiceAmount        decimal.Decimal     `json:"invoice_amount"`
	InvoiceLateFeeAmount decimal.Decimal     `json:"invoice_late_fee_amount"`
	InvoiceTotal         decimal.Decimal     `json:"invoice_total"`
	InvoiceStatus        model.InvoiceStatus `json:"invoice_status"`
	InvoiceSource        model.InvoiceSource `json:"invoice_source"`
	InvoiceReceiptNo     *string             `json:"invoice_receipt_no,omitempty"`
	InvoiceNote          *string             `json:"invoice_note,omitempty"`
	InvoiceMeta          datatypes.JSON      `json:"invoice_meta,omitempty"`

	InvoiceDueDate          time.Time  `json:"invoice_due_date"`
	InvoicePaidAt           *time.Time `json:"invoice_paid_at,omitempty"`
	InvoiceOverdueAt        *time.Time `json:"invoice_overdue_at,omitempty"`
	InvoiceLateFeeAppliedAt *time.Time `json:"invoice_late_fee_applied_at,omitempty"`
	InvoiceCreatedAt        time.Time  `json:"invoice_created_at"`
	InvoiceUpdatedAt        time.Time  `json:"invoice_updated_at"`
}

func ToInvoiceResponse(m *model.Invoice) InvoiceResponse {
	return InvoiceResponse{
		InvoiceID:               m.InvoiceID,
		InvoiceFeeCode:          m.InvoiceFeeCode,
		InvoiceApartmentCode:    m.InvoiceApartmentCode,
		InvoiceBillingPeriod:    m.InvoiceBillingPeriod,
		InvoiceAmount:           m.InvoiceAmount,
		InvoiceLateFeeAmount:    m.InvoiceLateFeeAmount,
		InvoiceTotal:            m.Total(),
		InvoiceStatus:           m.InvoiceStatus,
		InvoiceSource:           m.InvoiceSource,
		InvoiceReceiptNo:        m.InvoiceReceiptNo,
		InvoiceNote:             m.InvoiceNote,
		InvoiceMeta:             m.InvoiceMeta,
		InvoiceDueDate:          m.InvoiceDueDate,
		InvoicePaidAt:           m.InvoicePaidAt,
		InvoiceOverdueAt:        m.InvoiceOverdueAt,
		InvoiceLateFeeAppliedAt: m.InvoiceLateFeeAppliedAt,
		InvoiceCreatedAt:        m.InvoiceCreatedAt,
		InvoiceUpdatedAt:        m.InvoiceUpdatedAt,
	}
}

func ToInvoiceResponses(list []model.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, 0, len(list))
	for i := range list {
		out = append(out, ToInvoiceResponse(&list[i]))
	}
	return out
}

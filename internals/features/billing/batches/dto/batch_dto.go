// File: internals/features/billing/batches/dto/batch_dto.go
package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"condoku_backend/internals/features/billing/invoices/model"
)

////////////////////////////////////////////////////////////////////////////////
// BATCHES: input rows
////////////////////////////////////////////////////////////////////////////////

// VehicleRow is one registered vehicle. An apartment with several vehicles
// gets one invoice for their sum.
type VehicleRow struct {
	ApartmentCode string           `json:"apartment_code" validate:"required,max=30"`
	PlateNumber   string           `json:"plate_number" validate:"required,max=15"`
	VehicleType   string           `json:"vehicle_type" validate:"required,max=20"`
	MonthlyFee    *decimal.Decimal `json:"monthly_fee,omitempty"` // overrides the tariff
}

// WaterRow is one meter reading for the period. Numbers are decoded straight
// into decimals, quoted or not.
type WaterRow struct {
	ApartmentCode   string          `json:"apartment_code" validate:"required,max=30"`
	PreviousReading decimal.Decimal `json:"previous_reading"`
	CurrentReading  decimal.Decimal `json:"current_reading"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
}

// ServiceRow is the managed area an apartment pays the service fee for.
type ServiceRow struct {
	ApartmentCode string          `json:"apartment_code" validate:"required,max=30"`
	AreaM2        decimal.Decimal `json:"area_m2"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
}

// BatchRequest: exactly the row list matching Source is read.
type BatchRequest struct {
	Source        model.InvoiceSource `json:"source" validate:"required,oneof=vehicle water service"`
	BillingPeriod string              `json:"billing_period" validate:"required"`
	DueDate       *time.Time          `json:"due_date,omitempty"`

	Vehicles []VehicleRow `json:"vehicles,omitempty"`
	Water    []WaterRow   `json:"water,omitempty"`
	Services []ServiceRow `json:"services,omitempty"`
}

func (r BatchRequest) RowCount() int {
	switch r.Source {
	case model.InvoiceSourceVehicle:
		return len(r.Vehicles)
	case model.InvoiceSourceWater:
		return len(r.Water)
	case model.InvoiceSourceService:
		return len(r.Services)
	}
	return 0
}

////////////////////////////////////////////////////////////////////////////////
// BATCHES: result
////////////////////////////////////////////////////////////////////////////////

type ItemStatus string

const (
	ItemProposed    ItemStatus = "proposed"
	ItemCreated     ItemStatus = "created"
	ItemSkipped     ItemStatus = "skipped"
	ItemError       ItemStatus = "error"
	ItemUnprocessed ItemStatus = "unprocessed"
)

type Mode string

const (
	ModePreview Mode = "preview"
	ModeCommit  Mode = "commit"
)

// BatchItem is the outcome for one billable unit (apartment x fee x period).
type BatchItem struct {
	Rows          []int               `json:"rows"` // input row indexes, 0-based
	ApartmentCode string              `json:"apartment_code"`
	FeeCode       string              `json:"fee_code"`
	BillingPeriod string              `json:"billing_period"`
	Amount        decimal.Decimal     `json:"amount"`
	InvoiceID     string              `json:"invoice_id,omitempty"`
	Status        ItemStatus          `json:"status"`
	Error         string              `json:"error,omitempty"`
	Fields        map[string][]string `json:"fields,omitempty"`
	Degraded      bool                `json:"degraded,omitempty"`
}

type BatchResult struct {
	Mode          Mode                `json:"mode"`
	Source        model.InvoiceSource `json:"source"`
	BillingPeriod string              `json:"billing_period"`
	DueDate       time.Time           `json:"due_date"`
	Items         []BatchItem         `json:"items"`

	Proposed    int  `json:"proposed"`
	Created     int  `json:"created"`
	Skipped     int  `json:"skipped"`
	Failed      int  `json:"failed"`
	Unprocessed int  `json:"unprocessed"`
	Aborted     bool `json:"aborted"`
}

func (r *BatchResult) Add(it BatchItem) {
	r.Items = append(r.Items, it)
	switch it.Status {
	case ItemProposed:
		r.Proposed++
	case ItemCreated:
		r.Created++
	case ItemSkipped:
		r.Skipped++
	case ItemError:
		r.Failed++
	case ItemUnprocessed:
		r.Unprocessed++
	}
}

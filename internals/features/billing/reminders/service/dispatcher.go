// Package service delivers reminder events about unpaid invoices.
//
// Delivery transports (email, push) live behind Dispatcher; this package
// ships a structured log sink, persisted notification rows, an async queue
// and a fan-out.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"condoku_backend/internals/features/billing/invoices/model"
)

type EventKind string

const (
	EventOverdue EventKind = "overdue"
	EventLateFee EventKind = "late_fee"
	EventManual  EventKind = "manual"
)

type Event struct {
	Kind          EventKind       `json:"kind"`
	InvoiceID     string          `json:"invoice_id"`
	ApartmentCode string          `json:"apartment_code"`
	FeeCode       string          `json:"fee_code"`
	BillingPeriod string          `json:"billing_period"`
	Amount        decimal.Decimal `json:"amount"`
	LateFee       decimal.Decimal `json:"late_fee"`
	DueDate       time.Time       `json:"due_date"`
	EmittedAt     time.Time       `json:"emitted_at"`
}

func (e Event) Total() decimal.Decimal { return e.Amount.Add(e.LateFee) }

func EventFor(kind EventKind, inv *model.Invoice, at time.Time) Event {
	return Event{
		Kind:          kind,
		InvoiceID:     inv.InvoiceID,
		ApartmentCode: inv.InvoiceApartmentCode,
		FeeCode:       inv.InvoiceFeeCode,
		BillingPeriod: inv.InvoiceBillingPeriod,
		Amount:        inv.InvoiceAmount,
		LateFee:       inv.InvoiceLateFeeAmount,
		DueDate:       inv.InvoiceDueDate,
		EmittedAt:     at,
	}
}

type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// DispatcherFunc adapts a func to Dispatcher.
type DispatcherFunc func(ctx context.Context, ev Event) error

func (f DispatcherFunc) Dispatch(ctx context.Context, ev Event) error { return f(ctx, ev) }

type LogDispatcher struct {
	log zerolog.Logger
}

func NewLogDispatcher(l zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: l}
}

func (d *LogDispatcher) Dispatch(_ context.Context, ev Event) error {
	d.log.Info().
		Str("kind", string(ev.Kind)).
		Str("invoice_id", ev.InvoiceID).
		Str("apartment_code", ev.ApartmentCode).
		Str("total", ev.Total().StringFixed(2)).
		Time("due_date", ev.DueDate).
		Msg("reminder")
	return nil
}

// Multi delivers to every dispatcher and joins their errors.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, ev Event) error {
	var errs []error
	for _, d := range m {
		if err := d.Dispatch(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

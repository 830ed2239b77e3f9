package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/identifiers"
	"condoku_backend/internals/features/billing/reminders/model"
	"condoku_backend/internals/features/billing/reminders/store"
)

// NotificationDispatcher persists each event as a notification row the
// resident app reads.
type NotificationDispatcher struct {
	store       store.Store
	gen         *identifiers.Generator
	mu          sync.Mutex // one code family
	maxAttempts int
	log         zerolog.Logger
}

func NewNotificationDispatcher(st store.Store, now func() time.Time) *NotificationDispatcher {
	if now == nil {
		now = time.Now
	}
	l := log.With().Str("component", "notifications").Logger()
	return &NotificationDispatcher{
		store:       st,
		gen:         identifiers.NewGenerator(st, identifiers.WithClock(now), identifiers.WithLogger(l)),
		maxAttempts: 3,
		log:         l,
	}
}

func (d *NotificationDispatcher) Dispatch(ctx context.Context, ev Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	scheme := identifiers.NewIncremental(model.NotificationCodePrefix, identifiers.DefaultWidth)
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		row := d.render(ev)
		row.NotificationCode = d.gen.Next(ctx, model.NotificationCodeFamily, scheme).ID

		err := d.store.Insert(ctx, row)
		if err == nil {
			d.log.Debug().Str("code", row.NotificationCode).Str("invoice_id", ev.InvoiceID).Msg("notification stored")
			return nil
		}
		if !errors.Is(err, billerr.ErrDuplicateIdentifier) {
			return fmt.Errorf("store notification for %s: %w", ev.InvoiceID, err)
		}
		lastErr = err
	}
	return fmt.Errorf("notification code for %s: %w", ev.InvoiceID, lastErr)
}

func (d *NotificationDispatcher) render(ev Event) *model.NotificationModel {
	var title, desc string
	switch ev.Kind {
	case EventOverdue:
		title = "Invoice overdue"
		desc = fmt.Sprintf("Invoice %s (%s) of %s was due on %s and is now overdue.",
			ev.InvoiceID, ev.FeeCode, ev.Amount.StringFixed(2), ev.DueDate.Format("02 Jan 2006"))
	case EventLateFee:
		title = "Late fee applied"
		desc = fmt.Sprintf("A late fee of %s was added to invoice %s. Amount due: %s.",
			ev.LateFee.StringFixed(2), ev.InvoiceID, ev.Total().StringFixed(2))
	default:
		title = "Payment reminder"
		desc = fmt.Sprintf("Invoice %s for period %s is unpaid. Amount due: %s, due %s.",
			ev.InvoiceID, ev.BillingPeriod, ev.Total().StringFixed(2), ev.DueDate.Format("02 Jan 2006"))
	}
	return &model.NotificationModel{
		NotificationTitle:         title,
		NotificationDescription:   desc,
		NotificationKind:          string(ev.Kind),
		NotificationInvoiceID:     ev.InvoiceID,
		NotificationApartmentCode: ev.ApartmentCode,
		NotificationTags:          pq.StringArray{"billing", string(ev.Kind), ev.FeeCode},
	}
}

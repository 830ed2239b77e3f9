package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/invoices/model"
)

// InvoiceReader is the ledger read the reminder service needs.
type InvoiceReader interface {
	Get(ctx context.Context, id string) (*model.Invoice, error)
}

type OutcomeStatus string

const (
	OutcomeSent        OutcomeStatus = "sent"
	OutcomeSkipped     OutcomeStatus = "skipped" // settled
	OutcomeError       OutcomeStatus = "error"
	OutcomeUnprocessed OutcomeStatus = "unprocessed"
)

type Outcome struct {
	InvoiceID string        `json:"invoice_id"`
	Status    OutcomeStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
}

type BatchOutcome struct {
	Items       []Outcome `json:"items"`
	Sent        int       `json:"sent"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Unprocessed int       `json:"unprocessed"`
	Aborted     bool      `json:"aborted"`
}

func (b *BatchOutcome) add(o Outcome) {
	b.Items = append(b.Items, o)
	switch o.Status {
	case OutcomeSent:
		b.Sent++
	case OutcomeSkipped:
		b.Skipped++
	case OutcomeError:
		b.Failed++
	case OutcomeUnprocessed:
		b.Unprocessed++
	}
}

type Service struct {
	invoices   InvoiceReader
	dispatcher Dispatcher
	now        func() time.Time
	log        zerolog.Logger
}

func NewService(invoices InvoiceReader, d Dispatcher, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		invoices:   invoices,
		dispatcher: d,
		now:        now,
		log:        log.With().Str("component", "reminders").Logger(),
	}
}

// SendReminder dispatches a manual reminder. A PAID invoice is
// billerr.ErrInvoiceSettled.
func (s *Service) SendReminder(ctx context.Context, id string) (*Event, error) {
	inv, err := s.invoices.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.InvoiceStatus == model.InvoiceStatusPaid {
		return nil, billerr.ErrInvoiceSettled
	}
	ev := EventFor(EventManual, inv, s.now())
	if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// SendBatchReminder reminds every id once, in order. Cancellation stops
// between ids; the rest are reported unprocessed.
func (s *Service) SendBatchReminder(ctx context.Context, ids []string) *BatchOutcome {
	out := &BatchOutcome{Items: make([]Outcome, 0, len(ids))}
	seen := make(map[string]struct{}, len(ids))

	for i, id := range ids {
		if ctx.Err() != nil {
			out.Aborted = true
			for _, rest := range ids[i:] {
				if _, dup := seen[rest]; dup {
					continue
				}
				seen[rest] = struct{}{}
				out.add(Outcome{InvoiceID: rest, Status: OutcomeUnprocessed})
			}
			break
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		_, err := s.SendReminder(ctx, id)
		switch {
		case err == nil:
			out.add(Outcome{InvoiceID: id, Status: OutcomeSent})
		case errors.Is(err, billerr.ErrInvoiceSettled):
			out.add(Outcome{InvoiceID: id, Status: OutcomeSkipped, Error: err.Error()})
		default:
			out.add(Outcome{InvoiceID: id, Status: OutcomeError, Error: err.Error()})
		}
	}

	s.log.Info().
		Int("sent", out.Sent).
		Int("skipped", out.Skipped).
		Int("failed", out.Failed).
		Bool("aborted", out.Aborted).
		Msg("batch reminder finished")
	return out
}

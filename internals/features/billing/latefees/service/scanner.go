// Package service sweeps unpaid invoices past their due date: it marks them
// overdue, applies the late fee once the grace period is over and emits a
// reminder for every transition.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/invoices/model"
	reminders "condoku_backend/internals/features/billing/reminders/service"
)

type Ledger interface {
	ListDue(ctx context.Context, asOf time.Time, afterID string, limit int) ([]model.Invoice, error)
	MarkOverdue(ctx context.Context, id string, at time.Time) (*model.Invoice, error)
	ApplyLateFee(ctx context.Context, id string, penalty decimal.Decimal, at time.Time) (*model.Invoice, bool, error)
}

type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

type Action string

const (
	ActionOverdue Action = "overdue"
	ActionLateFee Action = "late_fee"
	ActionSkipped Action = "skipped" // lost a race with payment
	ActionFailed  Action = "failed"
)

type ScanItem struct {
	InvoiceID     string          `json:"invoice_id"`
	Action        Action          `json:"action"`
	LateFee       decimal.Decimal `json:"late_fee"`
	Error         string          `json:"error,omitempty"`
	ReminderError string          `json:"reminder_error,omitempty"`
}

type ScanResult struct {
	Trigger    Trigger   `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Scanned          int  `json:"scanned"`
	MarkedOverdue    int  `json:"marked_overdue"`
	LateFeesApplied  int  `json:"late_fees_applied"`
	Unchanged        int  `json:"unchanged"`
	Skipped          int  `json:"skipped"`
	Failed           int  `json:"failed"`
	ReminderFailures int  `json:"reminder_failures"`
	Aborted          bool `json:"aborted"`

	Items []ScanItem `json:"items"`
}

type Scanner struct {
	ledger     Ledger
	dispatcher reminders.Dispatcher
	policy     Policy
	pageSize   int
	now        func() time.Time
	log        zerolog.Logger

	running sync.Mutex
}

type Option func(*Scanner)

func WithClock(now func() time.Time) Option { return func(s *Scanner) { s.now = now } }

func WithLogger(l zerolog.Logger) Option { return func(s *Scanner) { s.log = l } }

func WithPageSize(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

func NewScanner(l Ledger, d reminders.Dispatcher, p Policy, opts ...Option) *Scanner {
	s := &Scanner{
		ledger:     l,
		dispatcher: d,
		policy:     p,
		pageSize:   200,
		now:        time.Now,
		log:        log.With().Str("component", "late-fee-scanner").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once. Only one sweep runs at a time; a second caller gets
// billerr.ErrScanInProgress. Per invoice failures never stop the sweep.
func (s *Scanner) Run(ctx context.Context, trigger Trigger) (*ScanResult, error) {
	if !s.running.TryLock() {
		return nil, billerr.ErrScanInProgress
	}
	defer s.running.Unlock()

	now := s.now()
	res := &ScanResult{Trigger: trigger, StartedAt: now}

	after := ""
	for {
		if ctx.Err() != nil {
			res.Aborted = true
			break
		}
		page, err := s.ledger.ListDue(ctx, now, after, s.pageSize)
		if err != nil {
			if ctx.Err() != nil {
				res.Aborted = true
				break
			}
			return nil, err
		}
		for i := range page {
			if ctx.Err() != nil {
				res.Aborted = true
				break
			}
			res.Scanned++
			s.scanOne(ctx, &page[i], now, res)
		}
		if res.Aborted || len(page) < s.pageSize {
			break
		}
		after = page[len(page)-1].InvoiceID
	}

	res.FinishedAt = s.now()
	ev := s.log.Info()
	if res.Failed > 0 || res.ReminderFailures > 0 {
		ev = s.log.Warn()
	}
	ev.Str("trigger", string(trigger)).
		Int("scanned", res.Scanned).
		Int("marked_overdue", res.MarkedOverdue).
		Int("late_fees_applied", res.LateFeesApplied).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Int("reminder_failures", res.ReminderFailures).
		Bool("aborted", res.Aborted).
		Msg("late fee scan finished")
	return res, nil
}

func (s *Scanner) scanOne(ctx context.Context, inv *model.Invoice, now time.Time, res *ScanResult) {
	cur := inv
	changed := false

	if cur.InvoiceStatus == model.InvoiceStatusPending {
		updated, err := s.ledger.MarkOverdue(ctx, cur.InvoiceID, now)
		if err != nil {
			s.fail(res, cur.InvoiceID, err)
			return
		}
		cur, changed = updated, true
		res.MarkedOverdue++
		s.record(ctx, res, ScanItem{InvoiceID: cur.InvoiceID, Action: ActionOverdue}, reminders.EventFor(reminders.EventOverdue, cur, now))
	}

	if cur.InvoiceStatus == model.InvoiceStatusOverdue && s.policy.Enabled() && s.policy.PastGrace(cur.InvoiceDueDate, now) {
		penalty := s.policy.Penalty(cur.InvoiceAmount)
		updated, applied, err := s.ledger.ApplyLateFee(ctx, cur.InvoiceID, penalty, now)
		if err != nil {
			s.fail(res, cur.InvoiceID, err)
			return
		}
		if applied {
			changed = true
			res.LateFeesApplied++
			s.record(ctx, res, ScanItem{InvoiceID: cur.InvoiceID, Action: ActionLateFee, LateFee: penalty}, reminders.EventFor(reminders.EventLateFee, updated, now))
		}
	}

	if !changed {
		res.Unchanged++
	}
}

// fail turns a lost race (the invoice moved on) into a skip.
func (s *Scanner) fail(res *ScanResult, id string, err error) {
	if errors.Is(err, billerr.ErrInvalidTransition) {
		res.Skipped++
		res.Items = append(res.Items, ScanItem{InvoiceID: id, Action: ActionSkipped, Error: err.Error()})
		return
	}
	res.Failed++
	res.Items = append(res.Items, ScanItem{InvoiceID: id, Action: ActionFailed, Error: err.Error()})
	s.log.Error().Err(err).Str("invoice_id", id).Msg("late fee scan: invoice failed")
}

func (s *Scanner) record(ctx context.Context, res *ScanResult, it ScanItem, ev reminders.Event) {
	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, ev); err != nil {
			res.ReminderFailures++
			it.ReminderError = err.Error()
		}
	}
	res.Items = append(res.Items, it)
}

package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/invoices/model"
	invsvc "condoku_backend/internals/features/billing/invoices/service"
	"condoku_backend/internals/features/billing/invoices/store"
	reminders "condoku_backend/internals/features/billing/reminders/service"
)

var (
	due        = time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC)
	testPolicy = Policy{
		GraceDays: 7,
		Rate:      decimal.RequireFromString("0.02"),
		Flat:      decimal.NewFromInt(5000),
		Rounding:  decimal.NewFromInt(100),
	}
)

type clock struct{ t atomic.Value }

func newClock(t time.Time) *clock {
	c := &clock{}
	c.t.Store(t)
	return c
}
func (c *clock) now() time.Time       { return c.t.Load().(time.Time) }
func (c *clock) set(t time.Time)      { c.t.Store(t) }
func (c *clock) days(n int) time.Time { return due.AddDate(0, 0, n) }

type events struct{ kinds []reminders.EventKind }

func (e *events) Dispatch(_ context.Context, ev reminders.Event) error {
	e.kinds = append(e.kinds, ev.Kind)
	return nil
}

type fixture struct {
	ledger *invsvc.Ledger
	clock  *clock
	events *events
}

func newFixture(t *testing.T, apts ...string) *fixture {
	t.Helper()
	c := newClock(due.AddDate(0, 0, -20))
	l := invsvc.New(store.NewMemoryStore(), invsvc.WithClock(c.now), invsvc.WithLogger(zerolog.Nop()))
	for _, apt := range apts {
		_, err := l.Create(context.Background(), invsvc.CreateInput{
			FeeCode:       "PD",
			ApartmentCode: apt,
			BillingPeriod: "012026",
			Amount:        decimal.NewFromInt(350000),
			DueDate:       due,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	return &fixture{ledger: l, clock: c, events: &events{}}
}

func (f *fixture) scanner(l Ledger, opts ...Option) *Scanner {
	base := []Option{WithClock(f.clock.now), WithLogger(zerolog.Nop())}
	return NewScanner(l, f.events, testPolicy, append(base, opts...)...)
}

func TestPolicyPenalty(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		base   int64
		want   string
	}{
		{"rate plus flat", testPolicy, 350000, "12000"},
		{"rounded to hundreds", Policy{Rate: decimal.RequireFromString("0.02"), Rounding: decimal.NewFromInt(100)}, 333333, "6700"},
		{"cents by default", Policy{Rate: decimal.RequireFromString("0.015")}, 1001, "15.02"},
		{"flat only", Policy{Flat: decimal.NewFromInt(25000)}, 0, "25000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Penalty(decimal.NewFromInt(tt.base))
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
	if (Policy{}).Enabled() {
		t.Error("zero policy must be disabled")
	}
}

func TestScanTwiceSameLateFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "A101")
	f.clock.set(f.clock.days(10))
	s := f.scanner(f.ledger)

	first, err := s.Run(ctx, TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if first.MarkedOverdue != 1 || first.LateFeesApplied != 1 {
		t.Fatalf("first run: %+v", first)
	}
	inv, _ := f.ledger.Get(ctx, "PD-A101-012026")
	fee := inv.InvoiceLateFeeAmount
	if !fee.Equal(decimal.NewFromInt(12000)) || inv.InvoiceStatus != model.InvoiceStatusLateFeeApplied {
		t.Fatalf("after first run: %s %s", inv.InvoiceStatus, fee)
	}

	second, err := s.Run(ctx, TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if second.LateFeesApplied != 0 || second.MarkedOverdue != 0 {
		t.Errorf("second run changed something: %+v", second)
	}
	inv, _ = f.ledger.Get(ctx, "PD-A101-012026")
	if !inv.InvoiceLateFeeAmount.Equal(fee) {
		t.Errorf("late fee changed from %s to %s", fee, inv.InvoiceLateFeeAmount)
	}

	want := []reminders.EventKind{reminders.EventOverdue, reminders.EventLateFee}
	if len(f.events.kinds) != len(want) || f.events.kinds[0] != want[0] || f.events.kinds[1] != want[1] {
		t.Errorf("events: %v", f.events.kinds)
	}
}

func TestScanRespectsGrace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "A101")
	s := f.scanner(f.ledger)

	f.clock.set(f.clock.days(-1))
	res, _ := s.Run(ctx, TriggerScheduled)
	if res.Scanned != 0 {
		t.Fatalf("not due yet, scanned %d", res.Scanned)
	}

	f.clock.set(f.clock.days(3))
	res, _ = s.Run(ctx, TriggerScheduled)
	if res.MarkedOverdue != 1 || res.LateFeesApplied != 0 {
		t.Fatalf("within grace: %+v", res)
	}

	res, _ = s.Run(ctx, TriggerScheduled)
	if res.Scanned != 1 || res.Unchanged != 1 {
		t.Fatalf("still within grace: %+v", res)
	}

	f.clock.set(f.clock.days(8))
	res, _ = s.Run(ctx, TriggerScheduled)
	if res.LateFeesApplied != 1 {
		t.Fatalf("past grace: %+v", res)
	}
}

// payingLedger settles an invoice right after the scanner listed it.
type payingLedger struct {
	*invsvc.Ledger
	pay string
}

func (l *payingLedger) ListDue(ctx context.Context, asOf time.Time, afterID string, limit int) ([]model.Invoice, error) {
	page, err := l.Ledger.ListDue(ctx, asOf, afterID, limit)
	if err == nil && l.pay != "" {
		if _, err := l.Ledger.MarkPaid(ctx, l.pay, asOf); err != nil {
			return nil, err
		}
		l.pay = ""
	}
	return page, err
}

func TestScanPaymentRaceIsSkip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "A101", "A102")
	f.clock.set(f.clock.days(10))

	s := f.scanner(&payingLedger{Ledger: f.ledger, pay: "PD-A101-012026"})
	res, err := s.Run(ctx, TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 || res.Failed != 0 || res.LateFeesApplied != 1 {
		t.Fatalf("result: %+v", res)
	}
	inv, _ := f.ledger.Get(ctx, "PD-A101-012026")
	if inv.InvoiceStatus != model.InvoiceStatusPaid || !inv.InvoiceLateFeeAmount.IsZero() {
		t.Errorf("paid invoice touched by the scan: %s %s", inv.InvoiceStatus, inv.InvoiceLateFeeAmount)
	}
}

// flakyLedger fails every transition of one invoice.
type flakyLedger struct {
	*invsvc.Ledger
	broken string
}

func (l *flakyLedger) MarkOverdue(ctx context.Context, id string, at time.Time) (*model.Invoice, error) {
	if id == l.broken {
		return nil, errors.New("connection reset")
	}
	return l.Ledger.MarkOverdue(ctx, id, at)
}

func TestScanContinuesAfterFailure(t *testing.T) {
	f := newFixture(t, "A101", "A102", "A103")
	f.clock.set(f.clock.days(1))

	s := f.scanner(&flakyLedger{Ledger: f.ledger, broken: "PD-A102-012026"})
	res, err := s.Run(context.Background(), TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.MarkedOverdue != 2 {
		t.Errorf("result: %+v", res)
	}
}

func TestScanPagesThroughEverything(t *testing.T) {
	f := newFixture(t, "A1", "A2", "A3", "A4", "A5")
	f.clock.set(f.clock.days(1))

	res, err := f.scanner(f.ledger, WithPageSize(2)).Run(context.Background(), TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if res.Scanned != 5 || res.MarkedOverdue != 5 {
		t.Errorf("result: %+v", res)
	}
}

func TestScanReminderFailuresCounted(t *testing.T) {
	f := newFixture(t, "A101")
	f.clock.set(f.clock.days(10))

	failing := reminders.DispatcherFunc(func(context.Context, reminders.Event) error {
		return errors.New("push gateway down")
	})
	s := NewScanner(f.ledger, failing, testPolicy, WithClock(f.clock.now), WithLogger(zerolog.Nop()))
	res, err := s.Run(context.Background(), TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if res.ReminderFailures != 2 || res.LateFeesApplied != 1 || res.Failed != 0 {
		t.Errorf("result: %+v", res)
	}
}

func TestScanCancelled(t *testing.T) {
	f := newFixture(t, "A101")
	f.clock.set(f.clock.days(10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := f.scanner(f.ledger).Run(ctx, TriggerManual)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Aborted || res.Scanned != 0 {
		t.Errorf("result: %+v", res)
	}
}

// blockingLedger parks ListDue until released.
type blockingLedger struct {
	*invsvc.Ledger
	entered chan struct{}
	release chan struct{}
}

func (l *blockingLedger) ListDue(ctx context.Context, asOf time.Time, afterID string, limit int) ([]model.Invoice, error) {
	close(l.entered)
	<-l.release
	return nil, nil
}

func TestScanSingleFlight(t *testing.T) {
	f := newFixture(t)
	bl := &blockingLedger{Ledger: f.ledger, entered: make(chan struct{}), release: make(chan struct{})}
	s := f.scanner(bl)

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), TriggerScheduled)
		done <- err
	}()
	<-bl.entered

	if _, err := s.Run(context.Background(), TriggerManual); !errors.Is(err, billerr.ErrScanInProgress) {
		t.Errorf("expected ErrScanInProgress, got %v", err)
	}
	close(bl.release)
	if err := <-done; err != nil {
		t.Errorf("first run: %v", err)
	}
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"condoku_backend/internals/features/billing/billerr"
	invmodel "condoku_backend/internals/features/billing/invoices/model"
	"condoku_backend/internals/features/billing/reminders/store"
)

type fakeInvoices map[string]*invmodel.Invoice

func (f fakeInvoices) Get(_ context.Context, id string) (*invmodel.Invoice, error) {
	inv, ok := f[id]
	if !ok {
		return nil, billerr.ErrNotFound
	}
	return inv, nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recorder) Dispatch(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

var testDue = time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC)

func invoice(id, apt string, status invmodel.InvoiceStatus) *invmodel.Invoice {
	return &invmodel.Invoice{
		InvoiceID:            id,
		InvoiceFeeCode:       "PD",
		InvoiceApartmentCode: apt,
		InvoiceBillingPeriod: "012026",
		InvoiceAmount:        decimal.NewFromInt(350000),
		InvoiceLateFeeAmount: decimal.Zero,
		InvoiceStatus:        status,
		InvoiceDueDate:       testDue,
	}
}

func testInvoices() fakeInvoices {
	return fakeInvoices{
		"PD-A101-012026": invoice("PD-A101-012026", "A101", invmodel.InvoiceStatusOverdue),
		"PD-A102-012026": invoice("PD-A102-012026", "A102", invmodel.InvoiceStatusPaid),
		"PD-A103-012026": invoice("PD-A103-012026", "A103", invmodel.InvoiceStatusPending),
	}
}

func TestSendReminder(t *testing.T) {
	rec := &recorder{}
	s := NewService(testInvoices(), rec, nil)
	s.log = zerolog.Nop()

	ev, err := s.SendReminder(context.Background(), "PD-A101-012026")
	if err != nil {
		t.Fatal(err)
	}
	if ev.Kind != EventManual || ev.ApartmentCode != "A101" {
		t.Errorf("event: %+v", ev)
	}
	if _, err := s.SendReminder(context.Background(), "PD-A102-012026"); !errors.Is(err, billerr.ErrInvoiceSettled) {
		t.Errorf("paid: expected ErrInvoiceSettled, got %v", err)
	}
	if _, err := s.SendReminder(context.Background(), "nope"); !errors.Is(err, billerr.ErrNotFound) {
		t.Errorf("unknown: expected ErrNotFound, got %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("dispatched %d events", rec.count())
	}
}

func TestSendBatchReminder(t *testing.T) {
	rec := &recorder{}
	s := NewService(testInvoices(), rec, nil)
	s.log = zerolog.Nop()

	out := s.SendBatchReminder(context.Background(), []string{
		"PD-A101-012026", "PD-A102-012026", "missing", "PD-A103-012026", "PD-A101-012026",
	})
	if out.Sent != 2 || out.Skipped != 1 || out.Failed != 1 || len(out.Items) != 4 {
		t.Fatalf("outcome: %+v", out)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out = s.SendBatchReminder(ctx, []string{"PD-A101-012026", "PD-A103-012026"})
	if !out.Aborted || out.Unprocessed != 2 || out.Sent != 0 {
		t.Errorf("cancelled: %+v", out)
	}
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("smtp down")
	ok := &recorder{}
	bad := &recorder{err: boom}

	err := Multi{ok, bad, NewLogDispatcher(zerolog.Nop())}.Dispatch(context.Background(), Event{InvoiceID: "X"})
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error, got %v", err)
	}
	if ok.count() != 1 || bad.count() != 1 {
		t.Errorf("every dispatcher must be called: ok=%d bad=%d", ok.count(), bad.count())
	}
}

func TestNotificationCodesIncrement(t *testing.T) {
	st := store.NewMemoryStore()
	d := NewNotificationDispatcher(st, nil)
	d.log = zerolog.Nop()

	inv := testInvoices()["PD-A101-012026"]
	for _, kind := range []EventKind{EventOverdue, EventLateFee, EventManual} {
		if err := d.Dispatch(context.Background(), EventFor(kind, inv, time.Now())); err != nil {
			t.Fatal(err)
		}
	}

	rows := st.All()
	want := []string{"TB0001", "TB0002", "TB0003"}
	for i, w := range want {
		if rows[i].NotificationCode != w {
			t.Errorf("row %d: code %q, want %q", i, rows[i].NotificationCode, w)
		}
	}
	if rows[1].NotificationKind != "late_fee" || rows[1].NotificationTags[1] != "late_fee" {
		t.Errorf("row 1: %+v", rows[1])
	}

	list, total, err := st.ListByApartment(context.Background(), "A101", 2, 0)
	if err != nil || total != 3 || len(list) != 2 || list[0].NotificationCode != "TB0003" {
		t.Errorf("list: total=%d %+v %v", total, list, err)
	}
}

func TestQueueLifecycle(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec, 4)
	q.log = zerolog.Nop()
	ctx := context.Background()

	if err := q.Dispatch(ctx, Event{InvoiceID: "early"}); !errors.Is(err, ErrQueueStopped) {
		t.Fatalf("before start: expected ErrQueueStopped, got %v", err)
	}

	q.Start()
	q.Start()
	for i := 0; i < 3; i++ {
		if err := q.Dispatch(ctx, Event{InvoiceID: "a"}); err != nil {
			t.Fatal(err)
		}
	}
	q.Stop()
	if rec.count() != 3 {
		t.Fatalf("stop must drain the queue, delivered %d", rec.count())
	}
	q.Stop()

	q.Start()
	if err := q.Dispatch(ctx, Event{InvoiceID: "b"}); err != nil {
		t.Fatalf("after restart: %v", err)
	}
	q.Stop()
	if rec.count() != 4 {
		t.Errorf("after restart delivered %d", rec.count())
	}
}

func TestQueueFull(t *testing.T) {
	block := make(chan struct{})
	slow := DispatcherFunc(func(ctx context.Context, ev Event) error {
		<-block
		return nil
	})
	q := NewQueue(slow, 1)
	q.log = zerolog.Nop()
	q.Start()
	defer func() {
		close(block)
		q.Stop()
	}()

	var full bool
	for i := 0; i < 10 && !full; i++ {
		full = errors.Is(q.Dispatch(context.Background(), Event{}), ErrQueueFull)
	}
	if !full {
		t.Error("expected ErrQueueFull once the buffer is used up")
	}
}

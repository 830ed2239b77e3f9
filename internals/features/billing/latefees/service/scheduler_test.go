package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/invoices/model"
)

type tickLedger struct {
	Ledger
	ticks chan struct{}
}

func (l *tickLedger) ListDue(context.Context, time.Time, string, int) ([]model.Invoice, error) {
	select {
	case l.ticks <- struct{}{}:
	default:
	}
	return nil, nil
}

func TestNewSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler(nil, "every tuesday", time.UTC)
	if !billerr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	s, err := NewScheduler(nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.spec != DefaultSchedule {
		t.Errorf("spec = %q", s.spec)
	}
}

func TestSchedulerRestart(t *testing.T) {
	l := &tickLedger{ticks: make(chan struct{}, 1)}
	sc := NewScanner(l, nil, testPolicy, WithLogger(zerolog.Nop()))
	s, err := NewScheduler(sc, "@every 1s", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	s.log = zerolog.Nop()

	wait := func() {
		t.Helper()
		select {
		case <-l.ticks:
		case <-time.After(3 * time.Second):
			t.Fatal("no scheduled scan within 3s")
		}
	}

	for round := 0; round < 2; round++ {
		if err := s.Start(); err != nil {
			t.Fatal(err)
		}
		if err := s.Start(); err != nil {
			t.Fatalf("second Start: %v", err)
		}
		if !s.Running() {
			t.Fatal("not running after Start")
		}
		wait()
		s.Stop()
		if s.Running() {
			t.Fatal("still running after Stop")
		}
		select {
		case <-l.ticks:
		default:
		}
	}
	s.Stop()
}

package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"condoku_backend/internals/features/billing/billerr"
)

const DefaultSchedule = "0 1 * * *"

// Scheduler runs the scanner on a cron schedule. It owns its cron instance
// and can be stopped and started again.
type Scheduler struct {
	scanner *Scanner
	spec    string
	loc     *time.Location
	timeout time.Duration
	log     zerolog.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewScheduler(s *Scanner, spec string, loc *time.Location) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, billerr.Invalid("late_fee_cron", "%q: %v", spec, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		scanner: s,
		spec:    spec,
		loc:     loc,
		timeout: 30 * time.Minute,
		log:     log.With().Str("component", "late-fee-scheduler").Logger(),
	}, nil
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	cl := cron.PrintfLogger(&s.log)
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.spec, s.tick); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info().Str("schedule", s.spec).Str("tz", s.loc.String()).Msg("late fee scheduler started")
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.log.Info().Msg("late fee scheduler stopped")
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cron != nil
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.scanner.Run(ctx, TriggerScheduled); err != nil {
		if errors.Is(err, billerr.ErrScanInProgress) {
			s.log.Info().Msg("manual scan in progress, skipping tick")
			return
		}
		s.log.Error().Err(err).Msg("scheduled late fee scan failed")
	}
}

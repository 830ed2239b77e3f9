package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrQueueFull    = errors.New("reminders: queue full")
	ErrQueueStopped = errors.New("reminders: queue not running")
)

// Queue hands events to next on a background worker. Dispatch never blocks;
// a full buffer drops the event with ErrQueueFull.
type Queue struct {
	next    Dispatcher
	events  chan Event
	timeout time.Duration
	log     zerolog.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewQueue(next Dispatcher, size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{
		next:    next,
		events:  make(chan Event, size),
		timeout: 10 * time.Second,
		log:     log.With().Str("component", "reminder-queue").Logger(),
	}
}

// Start launches the worker. Calling it on a running queue is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.stop = make(chan struct{})
	q.running = true
	q.wg.Add(1)
	go q.worker(q.stop)
}

// Stop delivers what is already queued, then returns. The queue can be
// started again.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stop)
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) Dispatch(_ context.Context, ev Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.running {
		return ErrQueueStopped
	}
	select {
	case q.events <- ev:
		return nil
	default:
		return ErrQueueFull
	}
}

func (q *Queue) worker(stop <-chan struct{}) {
	defer q.wg.Done()
	for {
		select {
		case ev := <-q.events:
			q.deliver(ev)
		case <-stop:
			for {
				select {
				case ev := <-q.events:
					q.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	if err := q.next.Dispatch(ctx, ev); err != nil {
		q.log.Warn().Err(err).Str("invoice_id", ev.InvoiceID).Str("kind", string(ev.Kind)).Msg("reminder delivery failed")
	}
}

// Package bootstrap wires the billing services from configuration and owns
// their background lifecycle.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"condoku_backend/internals/configs"
	batchService "condoku_backend/internals/features/billing/batches/service"
	invoiceService "condoku_backend/internals/features/billing/invoices/service"
	invoiceStore "condoku_backend/internals/features/billing/invoices/store"
	lateFeeService "condoku_backend/internals/features/billing/latefees/service"
	paymentService "condoku_backend/internals/features/billing/payments/service"
	reminderService "condoku_backend/internals/features/billing/reminders/service"
	reminderStore "condoku_backend/internals/features/billing/reminders/store"
	routes "condoku_backend/internals/route"
)

type Billing struct {
	Ledger        *invoiceService.Ledger
	Builder       *batchService.Builder
	Scanner       *lateFeeService.Scanner
	Scheduler     *lateFeeService.Scheduler
	Queue         *reminderService.Queue
	Reminders     *reminderService.Service
	Notifications reminderStore.Store
	Payments      *paymentService.Service
}

// NewBilling builds every service. db is ignored for the memory driver.
func NewBilling(cfg configs.BillingConfig, db *gorm.DB, midtransServerKey string) (*Billing, error) {
	var (
		invoices      invoiceStore.Store
		notifications reminderStore.Store
	)
	switch cfg.StoreDriver {
	case configs.StoreDriverMemory:
		log.Warn().Msg("STORE_DRIVER=memory: invoices are lost on restart")
		invoices = invoiceStore.NewMemoryStore()
		notifications = reminderStore.NewMemoryStore()
	default:
		if db == nil {
			return nil, fmt.Errorf("store driver %q needs a database", cfg.StoreDriver)
		}
		invoices = invoiceStore.NewGormStore(db)
		notifications = reminderStore.NewGormStore(db)
	}

	ledger := invoiceService.New(invoices, invoiceService.WithMaxAttempts(cfg.MaxAttempts))

	sink := reminderService.Multi{
		reminderService.NewLogDispatcher(log.With().Str("component", "reminders").Logger()),
		reminderService.NewNotificationDispatcher(notifications, ledger.Now),
	}
	queue := reminderService.NewQueue(sink, cfg.ReminderQueueSize)

	scanner := lateFeeService.NewScanner(ledger, queue, lateFeeService.Policy{
		GraceDays: cfg.LateFeeGraceDays,
		Rate:      cfg.LateFeeRate,
		Flat:      cfg.LateFeeFlat,
		Rounding:  cfg.LateFeeRounding,
	}, lateFeeService.WithPageSize(cfg.ScanPageSize))
	scheduler, err := lateFeeService.NewScheduler(scanner, cfg.LateFeeCron, cfg.Location)
	if err != nil {
		return nil, err
	}

	var gw paymentService.Gateway
	if midtransServerKey != "" {
		gw = paymentService.NewMidtransGateway(midtransServerKey, cfg.MidtransProduction, cfg.Location)
	}

	return &Billing{
		Ledger: ledger,
		Builder: batchService.NewBuilder(ledger, batchService.Config{
			DueDay:         cfg.DueDay,
			VehicleTariffs: cfg.VehicleTariffs,
			Location:       cfg.Location,
		}),
		Scanner:       scanner,
		Scheduler:     scheduler,
		Queue:         queue,
		Reminders:     reminderService.NewService(ledger, sink, ledger.Now),
		Notifications: notifications,
		Payments:      paymentService.NewService(ledger, gw),
	}, nil
}

// Start launches the reminder worker and the late fee schedule.
func (b *Billing) Start() error {
	b.Queue.Start()
	if err := b.Scheduler.Start(); err != nil {
		b.Queue.Stop()
		return err
	}
	return nil
}

// Stop waits for a running sweep, then drains pending reminders.
func (b *Billing) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		b.Scheduler.Stop()
		b.Queue.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Warn().Msg("billing shutdown timed out")
	}
}

func (b *Billing) Routes(jwtSecret string, health routes.HealthFunc) routes.Deps {
	return routes.Deps{
		Ledger:        b.Ledger,
		Builder:       b.Builder,
		Scanner:       b.Scanner,
		Reminders:     b.Reminders,
		Notifications: b.Notifications,
		Payments:      b.Payments,
		JWTSecret:     jwtSecret,
		HealthFn:      health,
	}
}

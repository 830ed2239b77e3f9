// Package service is the invoice ledger: the only writer of invoice identity,
// amounts and status.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/identifiers"
	"condoku_backend/internals/features/billing/invoices/model"
	"condoku_backend/internals/features/billing/invoices/store"
)

const DefaultMaxAttempts = 3

// CreateInput is one invoice to be created. BillingPeriod is raw operator
// input ("1/2026", "012026", ...) and is normalized by the ledger.
type CreateInput struct {
	FeeCode       string `validate:"required,max=20"`
	ApartmentCode string `validate:"required,max=30"`
	BillingPeriod string `validate:"required"`
	Amount        decimal.Decimal
	DueDate       time.Time `validate:"required"`
	Source        model.InvoiceSource
	Note          *string
	Meta          datatypes.JSON
}

// Proposal is what Create would write right now.
type Proposal struct {
	Invoice  model.Invoice
	Exists   bool           // natural key already billed
	Existing *model.Invoice // set when Exists
	Degraded bool           // id came from the fallback scheme
}

type Ledger struct {
	store       store.Store
	gen         *identifiers.Generator
	locks       *KeyedLocker
	validate    *validator.Validate
	now         func() time.Time
	log         zerolog.Logger
	maxAttempts int
}

type Option func(*Ledger)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Ledger) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Ledger) { s.now = now }
}

// WithMaxAttempts bounds id re-allocation after a unique violation.
func WithMaxAttempts(n int) Option {
	return func(s *Ledger) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func New(st store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:       st,
		locks:       NewKeyedLocker(),
		validate:    validator.New(),
		now:         time.Now,
		log:         log.With().Str("component", "invoice-ledger").Logger(),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.gen = identifiers.NewGenerator(st,
		identifiers.WithClock(l.now),
		identifiers.WithLogger(l.log),
	)
	return l
}

// Now is the ledger clock.
func (l *Ledger) Now() time.Time { return l.now() }

func (l *Ledger) prepare(in CreateInput) (identifiers.InvoiceIdentity, error) {
	if err := l.validate.Struct(in); err != nil {
		return identifiers.InvoiceIdentity{}, billerr.FromValidator(err)
	}
	if in.Amount.IsNegative() {
		return identifiers.InvoiceIdentity{}, billerr.Invalid("amount", "must be >= 0")
	}
	return identifiers.NewInvoiceIdentity(in.FeeCode, in.ApartmentCode, in.BillingPeriod)
}

func (in CreateInput) toModel(ident identifiers.InvoiceIdentity, id string) *model.Invoice {
	src := in.Source
	if src == "" {
		src = model.InvoiceSourceManual
	}
	return &model.Invoice{
		InvoiceID:            id,
		InvoiceFeeCode:       ident.FeeCode,
		InvoiceApartmentCode: ident.ApartmentCode,
		InvoiceBillingPeriod: ident.Period,
		InvoiceAmount:        in.Amount.Round(2),
		InvoiceLateFeeAmount: decimal.Zero,
		InvoiceStatus:        model.InvoiceStatusPending,
		InvoiceSource:        src,
		InvoiceMeta:          in.Meta,
		InvoiceNote:          in.Note,
		InvoiceDueDate:       in.DueDate,
	}
}

// NextID allocates the id a new invoice for the key would get. Nothing is
// reserved; two callers may see the same value.
func (l *Ledger) NextID(ctx context.Context, feeCode, apartmentCode, rawPeriod string) (identifiers.Allocation, error) {
	ident, err := identifiers.NewInvoiceIdentity(feeCode, apartmentCode, rawPeriod)
	if err != nil {
		return identifiers.Allocation{}, err
	}
	return l.gen.Next(ctx, model.InvoiceIDFamily, ident), nil
}

// Create inserts a PENDING invoice under the next free id of its natural key.
func (l *Ledger) Create(ctx context.Context, in CreateInput) (*model.Invoice, error) {
	ident, err := l.prepare(in)
	if err != nil {
		return nil, err
	}
	unlock := l.locks.Lock(ident.Base())
	defer unlock()
	inv, _, err := l.insert(ctx, ident, in, false)
	return inv, err
}

// CreateIfAbsent returns the existing invoice for the natural key, or creates
// one. created reports which happened.
func (l *Ledger) CreateIfAbsent(ctx context.Context, in CreateInput) (inv *model.Invoice, created bool, err error) {
	ident, err := l.prepare(in)
	if err != nil {
		return nil, false, err
	}
	unlock := l.locks.Lock(ident.Base())
	defer unlock()

	existing, err := l.findNatural(ctx, ident)
	if err != nil || existing != nil {
		return existing, false, err
	}
	return l.insert(ctx, ident, in, true)
}

// findNatural returns nil, nil when no invoice holds the natural key.
func (l *Ledger) findNatural(ctx context.Context, ident identifiers.InvoiceIdentity) (*model.Invoice, error) {
	existing, err := l.store.FindByNaturalKey(ctx, ident.FeeCode, ident.ApartmentCode, ident.Period)
	switch {
	case err == nil:
		return existing, nil
	case errors.Is(err, billerr.ErrNotFound):
		return nil, nil
	default:
		return nil, err
	}
}

// Propose computes the invoice Create would write, without writing.
func (l *Ledger) Propose(ctx context.Context, in CreateInput) (*Proposal, error) {
	ident, err := l.prepare(in)
	if err != nil {
		return nil, err
	}
	existing, err := l.store.FindByNaturalKey(ctx, ident.FeeCode, ident.ApartmentCode, ident.Period)
	switch {
	case err == nil:
		return &Proposal{Invoice: *existing, Exists: true, Existing: existing}, nil
	case !errors.Is(err, billerr.ErrNotFound):
		return nil, err
	}

	alloc := l.gen.Next(ctx, model.InvoiceIDFamily, ident)
	return &Proposal{Invoice: *in.toModel(ident, alloc.ID), Degraded: alloc.Degraded}, nil
}

// insert runs with the base lock held. A unique violation means another
// process won the id; re-read and try again. With ifAbsent set, an invoice
// that process wrote for the same natural key is returned instead.
func (l *Ledger) insert(ctx context.Context, ident identifiers.InvoiceIdentity, in CreateInput, ifAbsent bool) (*model.Invoice, bool, error) {
	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		alloc := l.gen.Next(ctx, model.InvoiceIDFamily, ident)
		inv := in.toModel(ident, alloc.ID)

		err := l.store.Create(ctx, inv)
		if err == nil {
			l.log.Info().
				Str("invoice_id", inv.InvoiceID).
				Str("source", string(inv.InvoiceSource)).
				Str("amount", inv.InvoiceAmount.StringFixed(2)).
				Bool("degraded", alloc.Degraded).
				Msg("invoice created")
			return inv, true, nil
		}
		if !errors.Is(err, billerr.ErrDuplicateIdentifier) {
			return nil, false, err
		}
		lastErr = err
		if ifAbsent {
			existing, ferr := l.findNatural(ctx, ident)
			if ferr != nil {
				return nil, false, ferr
			}
			if existing != nil {
				l.log.Info().Str("invoice_id", existing.InvoiceID).Msg("natural key taken concurrently, reusing invoice")
				return existing, false, nil
			}
		}
		l.log.Warn().Err(err).Int("attempt", attempt).Str("base", ident.Base()).Msg("invoice id taken, re-allocating")
	}
	return nil, false, fmt.Errorf("invoice %s: giving up after %d attempts: %w", ident.Base(), l.maxAttempts, lastErr)
}

// MarkPaid settles an invoice and assigns its receipt number. A settled
// invoice is ErrInvalidTransition; the current row is returned with it.
func (l *Ledger) MarkPaid(ctx context.Context, id string, paidAt time.Time) (*model.Invoice, error) {
	if paidAt.IsZero() {
		paidAt = l.now()
	}
	day := paidAt.Format("02012006")
	unlock := l.locks.Lock("receipt:" + day)
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		receipt := l.gen.Next(ctx, model.ReceiptFamily, identifiers.NewDateBased(model.ReceiptPrefix, paidAt)).ID
		inv, err := l.store.Transition(ctx, id, model.InvoiceStatusPaid, store.Patch{
			At:        l.now(),
			PaidAt:    &paidAt,
			ReceiptNo: &receipt,
		})
		if err == nil {
			l.log.Info().Str("invoice_id", id).Str("receipt_no", receipt).Msg("invoice paid")
			return inv, nil
		}
		if !errors.Is(err, billerr.ErrDuplicateIdentifier) {
			return inv, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("receipt for %s: giving up after %d attempts: %w", id, l.maxAttempts, lastErr)
}

// MarkOverdue moves a PENDING invoice to OVERDUE.
func (l *Ledger) MarkOverdue(ctx context.Context, id string, at time.Time) (*model.Invoice, error) {
	if at.IsZero() {
		at = l.now()
	}
	return l.store.Transition(ctx, id, model.InvoiceStatusOverdue, store.Patch{At: at, OverdueAt: &at})
}

// ApplyLateFee records penalty on an OVERDUE invoice. Applying the same
// penalty again is a no-op (applied=false); a different one is refused.
func (l *Ledger) ApplyLateFee(ctx context.Context, id string, penalty decimal.Decimal, at time.Time) (inv *model.Invoice, applied bool, err error) {
	if penalty.IsNegative() {
		return nil, false, billerr.Invalid("late_fee", "must be >= 0")
	}
	if at.IsZero() {
		at = l.now()
	}
	penalty = penalty.Round(2)

	inv, err = l.store.Transition(ctx, id, model.InvoiceStatusLateFeeApplied, store.Patch{
		At:               at,
		LateFeeAmount:    &penalty,
		LateFeeAppliedAt: &at,
	})
	if err == nil {
		return inv, true, nil
	}
	if errors.Is(err, billerr.ErrInvalidTransition) && inv != nil &&
		inv.InvoiceStatus == model.InvoiceStatusLateFeeApplied &&
		inv.InvoiceLateFeeAmount.Equal(penalty) {
		return inv, false, nil
	}
	return inv, false, err
}

func (l *Ledger) Get(ctx context.Context, id string) (*model.Invoice, error) {
	return l.store.Get(ctx, id)
}

func (l *Ledger) List(ctx context.Context, f store.ListFilter) ([]model.Invoice, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, billerr.Invalid("status", "unknown status %q", f.Status)
	}
	f.FeeCode = strings.ToUpper(strings.TrimSpace(f.FeeCode))
	f.ApartmentCode = strings.ToUpper(strings.TrimSpace(f.ApartmentCode))
	if f.BillingPeriod != "" {
		p, err := identifiers.NormalizePeriod(f.BillingPeriod)
		if err != nil {
			return nil, 0, err
		}
		f.BillingPeriod = p
	}
	return l.store.List(ctx, f)
}

// ListDue pages unpaid invoices due before asOf, keyed on invoice id.
func (l *Ledger) ListDue(ctx context.Context, asOf time.Time, afterID string, limit int) ([]model.Invoice, error) {
	return l.store.ListDue(ctx, asOf, afterID, limit)
}

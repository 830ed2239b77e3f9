// Package service turns vehicle registry snapshots, water meter readings and
// service area rows into invoices, once per (fee, apartment, period).
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"condoku_backend/internals/features/billing/batches/dto"
	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/identifiers"
	"condoku_backend/internals/features/billing/invoices/model"
	invsvc "condoku_backend/internals/features/billing/invoices/service"
)

// Ledger is the part of the invoice ledger a batch needs.
type Ledger interface {
	Propose(ctx context.Context, in invsvc.CreateInput) (*invsvc.Proposal, error)
	CreateIfAbsent(ctx context.Context, in invsvc.CreateInput) (*model.Invoice, bool, error)
}

type Config struct {
	DueDay         int                        // day of the month after the period
	VehicleTariffs map[string]decimal.Decimal // monthly fee per vehicle type
	Location       *time.Location
}

type Builder struct {
	ledger   Ledger
	cfg      Config
	validate *validator.Validate
	log      zerolog.Logger
}

func NewBuilder(l Ledger, cfg Config) *Builder {
	if cfg.DueDay < 1 || cfg.DueDay > 28 {
		cfg.DueDay = 15
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	tariffs := make(map[string]decimal.Decimal, len(cfg.VehicleTariffs))
	for k, v := range cfg.VehicleTariffs {
		tariffs[strings.ToLower(strings.TrimSpace(k))] = v
	}
	cfg.VehicleTariffs = tariffs

	return &Builder{
		ledger:   l,
		cfg:      cfg,
		validate: validator.New(),
		log:      log.With().Str("component", "batch-builder").Logger(),
	}
}

// Preview computes the batch and checks idempotency without writing.
func (b *Builder) Preview(ctx context.Context, req dto.BatchRequest) (*dto.BatchResult, error) {
	return b.run(ctx, req, dto.ModePreview)
}

// Commit writes every billable unit not billed yet. Units commit
// independently; one failing never rolls back another.
func (b *Builder) Commit(ctx context.Context, req dto.BatchRequest) (*dto.BatchResult, error) {
	return b.run(ctx, req, dto.ModeCommit)
}

// unit is one would-be invoice and the input rows it came from.
type unit struct {
	rows      []int
	apartment string
	amount    decimal.Decimal
	meta      any
	err       error
}

func (b *Builder) run(ctx context.Context, req dto.BatchRequest, mode dto.Mode) (*dto.BatchResult, error) {
	if err := b.validate.Struct(req); err != nil {
		return nil, billerr.FromValidator(err)
	}
	period, err := identifiers.NormalizePeriod(req.BillingPeriod)
	if err != nil {
		return nil, err
	}
	due, err := b.dueDate(period, req.DueDate)
	if err != nil {
		return nil, err
	}

	feeCode, units := b.units(req)
	res := &dto.BatchResult{
		Mode:          mode,
		Source:        req.Source,
		BillingPeriod: period,
		DueDate:       due,
		Items:         make([]dto.BatchItem, 0, len(units)),
	}

	for i, u := range units {
		if ctx.Err() != nil {
			res.Aborted = true
			for _, rest := range units[i:] {
				res.Add(dto.BatchItem{
					Rows:          rest.rows,
					ApartmentCode: rest.apartment,
					FeeCode:       feeCode,
					BillingPeriod: period,
					Amount:        rest.amount,
					Status:        dto.ItemUnprocessed,
				})
			}
			break
		}
		res.Add(b.process(ctx, mode, feeCode, period, due, req.Source, u))
	}

	b.log.Info().
		Str("mode", string(mode)).
		Str("source", string(req.Source)).
		Str("period", period).
		Int("proposed", res.Proposed).
		Int("created", res.Created).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Int("unprocessed", res.Unprocessed).
		Bool("aborted", res.Aborted).
		Msg("batch finished")
	return res, nil
}

func (b *Builder) process(ctx context.Context, mode dto.Mode, feeCode, period string, due time.Time, src model.InvoiceSource, u unit) dto.BatchItem {
	it := dto.BatchItem{
		Rows:          u.rows,
		ApartmentCode: u.apartment,
		FeeCode:       feeCode,
		BillingPeriod: period,
		Amount:        u.amount,
	}
	if u.err != nil {
		return failed(it, u.err)
	}

	meta, err := sonic.Marshal(u.meta)
	if err != nil {
		return failed(it, fmt.Errorf("encode meta: %w", err))
	}
	in := invsvc.CreateInput{
		FeeCode:       feeCode,
		ApartmentCode: u.apartment,
		BillingPeriod: period,
		Amount:        u.amount,
		DueDate:       due,
		Source:        src,
		Meta:          datatypes.JSON(meta),
	}

	if mode == dto.ModePreview {
		p, err := b.ledger.Propose(ctx, in)
		if err != nil {
			return failed(it, err)
		}
		it.InvoiceID = p.Invoice.InvoiceID
		it.Degraded = p.Degraded
		if p.Exists {
			it.Status = dto.ItemSkipped
			return it
		}
		it.Status = dto.ItemProposed
		return it
	}

	inv, created, err := b.ledger.CreateIfAbsent(ctx, in)
	if err != nil {
		return failed(it, err)
	}
	it.InvoiceID = inv.InvoiceID
	if created {
		it.Status = dto.ItemCreated
	} else {
		it.Status = dto.ItemSkipped
	}
	return it
}

func failed(it dto.BatchItem, err error) dto.BatchItem {
	it.Status = dto.ItemError
	it.Error = err.Error()
	var ve *billerr.ValidationError
	if errors.As(err, &ve) {
		it.Fields = ve.Fields()
	}
	return it
}

// dueDate: the explicit one, else DueDay of the month after the period.
func (b *Builder) dueDate(period string, explicit *time.Time) (time.Time, error) {
	if explicit != nil && !explicit.IsZero() {
		return *explicit, nil
	}
	start, err := identifiers.PeriodStart(period, b.cfg.Location)
	if err != nil {
		return time.Time{}, err
	}
	return start.AddDate(0, 1, b.cfg.DueDay-1), nil
}

func (b *Builder) units(req dto.BatchRequest) (string, []unit) {
	switch req.Source {
	case model.InvoiceSourceVehicle:
		return model.FeeCodeVehicle, b.vehicleUnits(req.Vehicles)
	case model.InvoiceSourceWater:
		return model.FeeCodeWater, b.waterUnits(req.Water)
	default:
		return model.FeeCodeService, b.serviceUnits(req.Services)
	}
}

func normApartment(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

type vehicleMeta struct {
	Plate string          `json:"plate_number"`
	Type  string          `json:"vehicle_type"`
	Fee   decimal.Decimal `json:"monthly_fee"`
}

func (b *Builder) vehicleUnits(rows []dto.VehicleRow) []unit {
	var order []string
	byApt := map[string]*unit{}
	metas := map[string][]vehicleMeta{}
	plates := map[string]map[string]int{} // apartment -> plate -> first row

	for i, r := range rows {
		apt := normApartment(r.ApartmentCode)
		u, ok := byApt[apt]
		if !ok {
			u = &unit{apartment: apt, amount: decimal.Zero}
			byApt[apt] = u
			plates[apt] = map[string]int{}
			order = append(order, apt)
		}
		u.rows = append(u.rows, i)
		if u.err != nil {
			continue
		}

		fee, err := b.vehicleFee(i, r, plates[apt])
		if err != nil {
			u.err = err
			continue
		}
		u.amount = u.amount.Add(fee)
		metas[apt] = append(metas[apt], vehicleMeta{Plate: normPlate(r.PlateNumber), Type: r.VehicleType, Fee: fee})
	}

	out := make([]unit, 0, len(order))
	for _, apt := range order {
		u := byApt[apt]
		u.meta = map[string]any{"vehicles": metas[apt]}
		out = append(out, *u)
	}
	return out
}

func normPlate(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// vehicleFee checks one row; plates holds the rows already seen for the
// same apartment.
func (b *Builder) vehicleFee(i int, r dto.VehicleRow, plates map[string]int) (decimal.Decimal, error) {
	if err := b.validate.Struct(r); err != nil {
		return decimal.Zero, rowErr(i, billerr.FromValidator(err))
	}
	plate := normPlate(r.PlateNumber)
	if first, dup := plates[plate]; dup {
		return decimal.Zero, rowErr(i, billerr.Invalid("plate_number", "%s already listed at row %d", plate, first))
	}
	plates[plate] = i

	if r.MonthlyFee != nil {
		if r.MonthlyFee.IsNegative() {
			return decimal.Zero, rowErr(i, billerr.Invalid("monthly_fee", "must be >= 0"))
		}
		return *r.MonthlyFee, nil
	}
	fee, ok := b.cfg.VehicleTariffs[strings.ToLower(strings.TrimSpace(r.VehicleType))]
	if !ok {
		return decimal.Zero, rowErr(i, billerr.Invalid("vehicle_type", "no tariff for %q", r.VehicleType))
	}
	return fee, nil
}

func (b *Builder) waterUnits(rows []dto.WaterRow) []unit {
	seen := map[string]int{}
	out := make([]unit, 0, len(rows))
	for i, r := range rows {
		apt := normApartment(r.ApartmentCode)
		u := unit{rows: []int{i}, apartment: apt, amount: decimal.Zero}

		if err := b.validate.Struct(r); err != nil {
			u.err = rowErr(i, billerr.FromValidator(err))
		} else if err := checkWater(r); err != nil {
			u.err = rowErr(i, err)
		} else if first, dup := seen[apt]; dup {
			u.err = rowErr(i, billerr.Invalid("apartment_code", "%s already billed at row %d", apt, first))
		} else {
			seen[apt] = i
			prev, cur, price := r.PreviousReading, r.CurrentReading, r.UnitPrice
			usage := cur.Sub(prev)
			u.amount = usage.Mul(price).Round(2)
			u.meta = map[string]any{
				"previous_reading": prev,
				"current_reading":  cur,
				"usage":            usage,
				"unit_price":       price,
			}
		}
		out = append(out, u)
	}
	return out
}

func (b *Builder) serviceUnits(rows []dto.ServiceRow) []unit {
	seen := map[string]int{}
	out := make([]unit, 0, len(rows))
	for i, r := range rows {
		apt := normApartment(r.ApartmentCode)
		u := unit{rows: []int{i}, apartment: apt, amount: decimal.Zero}

		if err := b.validate.Struct(r); err != nil {
			u.err = rowErr(i, billerr.FromValidator(err))
		} else if err := checkService(r); err != nil {
			u.err = rowErr(i, err)
		} else if first, dup := seen[apt]; dup {
			u.err = rowErr(i, billerr.Invalid("apartment_code", "%s already billed at row %d", apt, first))
		} else {
			seen[apt] = i
			area, price := r.AreaM2, r.UnitPrice
			u.amount = area.Mul(price).Round(2)
			u.meta = map[string]any{"area_m2": area, "unit_price": price}
		}
		out = append(out, u)
	}
	return out
}

func checkWater(r dto.WaterRow) error {
	switch {
	case r.PreviousReading.IsNegative():
		return billerr.Invalid("previous_reading", "must be >= 0")
	case r.CurrentReading.LessThan(r.PreviousReading):
		return billerr.Invalid("current_reading", "must be >= previous_reading")
	case r.UnitPrice.IsNegative():
		return billerr.Invalid("unit_price", "must be >= 0")
	}
	return nil
}

func checkService(r dto.ServiceRow) error {
	switch {
	case !r.AreaM2.IsPositive():
		return billerr.Invalid("area_m2", "must be > 0")
	case r.UnitPrice.IsNegative():
		return billerr.Invalid("unit_price", "must be >= 0")
	}
	return nil
}

// rowErr prefixes a validation message with its row, keeping the fields.
func rowErr(i int, err error) error {
	var ve *billerr.ValidationError
	if errors.As(err, &ve) {
		return &billerr.ValidationError{
			Field:   ve.Field,
			Message: fmt.Sprintf("row %d: %s", i, ve.Message),
			Details: ve.Details,
		}
	}
	return fmt.Errorf("row %d: %w", i, err)
}

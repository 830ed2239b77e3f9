package service

import (
	"time"

	"github.com/shopspring/decimal"
)

// Policy is the late fee rule. The penalty depends on the base amount only,
// so evaluating it again never compounds.
type Policy struct {
	GraceDays int
	Rate      decimal.Decimal // fraction of the base amount, 0.02 = 2%
	Flat      decimal.Decimal
	Rounding  decimal.Decimal // round to a multiple of this; zero means cents
}

// Enabled is false when the policy can only ever produce a zero fee.
func (p Policy) Enabled() bool {
	return p.Rate.IsPositive() || p.Flat.IsPositive()
}

func (p Policy) Penalty(base decimal.Decimal) decimal.Decimal {
	raw := base.Mul(p.Rate).Add(p.Flat)
	if !p.Rounding.IsPositive() {
		return raw.Round(2)
	}
	return raw.Div(p.Rounding).Round(0).Mul(p.Rounding)
}

// PastGrace reports whether now is later than due plus the grace period.
func (p Policy) PastGrace(due, now time.Time) bool {
	return now.After(due.AddDate(0, 0, p.GraceDays))
}

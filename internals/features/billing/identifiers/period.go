package identifiers

import (
	"strconv"
	"strings"
	"time"

	"condoku_backend/internals/features/billing/billerr"
)

// NormalizePeriod turns a raw billing period ("1/2026", "01-2026", "012026")
// into the canonical six digit MMYYYY form.
func NormalizePeriod(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 5 {
		digits = "0" + digits
	}
	if len(digits) != 6 {
		return "", billerr.Invalid("billing_period", "%q is not a MM/YYYY period", raw)
	}
	month, _ := strconv.Atoi(digits[:2])
	if month < 1 || month > 12 {
		return "", billerr.Invalid("billing_period", "%q has month %02d outside 01..12", raw, month)
	}
	return digits, nil
}

// PeriodStart returns the first instant of a normalized MMYYYY period in loc.
func PeriodStart(period string, loc *time.Location) (time.Time, error) {
	p, err := NormalizePeriod(period)
	if err != nil {
		return time.Time{}, err
	}
	month, _ := strconv.Atoi(p[:2])
	year, _ := strconv.Atoi(p[2:])
	if loc == nil {
		loc = time.Local
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc), nil
}

// FormatPeriod renders t as MMYYYY.
func FormatPeriod(t time.Time) string {
	return t.Format("012006")
}

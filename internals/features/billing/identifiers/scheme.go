package identifiers

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"condoku_backend/internals/features/billing/billerr"
)

const DefaultWidth = 4

var (
	errNoNumber  = errors.New("identifiers: no numeric part")
	errExhausted = errors.New("identifiers: counter exhausted")
)

// Scheme computes the successor of a family's existing identifiers.
//
// Prefix is what every candidate in the family starts with; the generator
// loads those candidates, orders them max-first (see OrderCandidates) and
// hands them to Next. Fallback is used when the lookup or Next fails.
type Scheme interface {
	Prefix() string
	Next(existing []string) (string, error)
	Fallback(now time.Time) string
}

// ---------------------------------------------------------------------------
// Incremental: KH0001, KH0002, ...
// ---------------------------------------------------------------------------

type Incremental struct {
	prefix string
	width  int
}

func NewIncremental(prefix string, width int) Incremental {
	if width <= 0 {
		width = DefaultWidth
	}
	return Incremental{prefix: prefix, width: width}
}

func (s Incremental) Prefix() string { return s.prefix }

// Next reads only the maximum candidate. A non-numeric remainder counts as 0;
// if that successor is already taken the generator falls back.
func (s Incremental) Next(existing []string) (string, error) {
	var n int64
	if len(existing) > 0 {
		v, err := parseCounter(strings.TrimPrefix(existing[0], s.prefix))
		switch {
		case err == nil:
			n = v
		case !errors.Is(err, errNoNumber):
			return "", fmt.Errorf("incremental %q: %w", existing[0], err)
		}
	}
	next, err := succ(n)
	if err != nil {
		return "", fmt.Errorf("incremental %s: %w", s.prefix, err)
	}
	return s.prefix + pad(next, s.width), nil
}

func (s Incremental) Fallback(now time.Time) string {
	return s.prefix + strconv.FormatInt(now.UnixMilli(), 10)
}

// ---------------------------------------------------------------------------
// Date based: PT-14102026-0001, restarting every calendar day
// ---------------------------------------------------------------------------

type DateBased struct {
	prefix string
	base   string
}

func NewDateBased(prefix string, day time.Time) DateBased {
	return DateBased{prefix: prefix, base: prefix + "-" + day.Format("02012006") + "-"}
}

func (s DateBased) Prefix() string { return s.base }

func (s DateBased) Next(existing []string) (string, error) {
	var n int64
	if len(existing) > 0 {
		segs := strings.Split(existing[0], "-")
		v, err := parseCounter(segs[len(segs)-1])
		switch {
		case err == nil:
			n = v
		case !errors.Is(err, errNoNumber):
			return "", fmt.Errorf("date sequence %q: %w", existing[0], err)
		}
	}
	next, err := succ(n)
	if err != nil {
		return "", fmt.Errorf("date sequence %s: %w", s.base, err)
	}
	return s.base + pad(next, DefaultWidth), nil
}

func (s DateBased) Fallback(now time.Time) string {
	return s.prefix + strconv.FormatInt(now.UnixMilli(), 10)
}

// ---------------------------------------------------------------------------
// Invoice identity: FEE-APARTMENT-MMYYYY[-N]
// ---------------------------------------------------------------------------

type InvoiceIdentity struct {
	FeeCode       string
	ApartmentCode string
	Period        string
	base          string
}

func NewInvoiceIdentity(feeCode, apartmentCode, rawPeriod string) (InvoiceIdentity, error) {
	fee := strings.ToUpper(strings.TrimSpace(feeCode))
	apt := strings.ToUpper(strings.TrimSpace(apartmentCode))
	if fee == "" {
		return InvoiceIdentity{}, billerr.Invalid("fee_code", "is required")
	}
	if apt == "" {
		return InvoiceIdentity{}, billerr.Invalid("apartment_code", "is required")
	}
	period, err := NormalizePeriod(rawPeriod)
	if err != nil {
		return InvoiceIdentity{}, err
	}
	return InvoiceIdentity{
		FeeCode:       fee,
		ApartmentCode: apt,
		Period:        period,
		base:          fee + "-" + apt + "-" + period,
	}, nil
}

// Base is the unsuffixed id of the natural key.
func (s InvoiceIdentity) Base() string { return s.base }

func (s InvoiceIdentity) Prefix() string { return s.base }

// Next keeps the suffix chain gap tolerant: suffixes are never reused, even
// when older ones were removed out of order. Rows sharing the base only as a
// string prefix (not "base-<digits>") count as found rows but never as suffixes.
func (s InvoiceIdentity) Next(existing []string) (string, error) {
	if len(existing) == 0 {
		return s.base, nil
	}

	exact := false
	found := false
	var maxSuffix int64
	for _, id := range existing {
		if id == s.base {
			exact = true
			continue
		}
		rest, ok := strings.CutPrefix(id, s.base+"-")
		if !ok {
			continue
		}
		n, err := parseCounter(rest)
		if err != nil {
			continue
		}
		found = true
		if n > maxSuffix {
			maxSuffix = n
		}
	}

	if !exact && !found {
		return s.base, nil
	}
	next, err := succ(maxSuffix)
	if err != nil {
		return "", fmt.Errorf("invoice %s: %w", s.base, err)
	}
	return s.base + "-" + strconv.FormatInt(next, 10), nil
}

func (s InvoiceIdentity) Fallback(now time.Time) string {
	return s.base + "-" + strconv.FormatInt(now.UnixMilli(), 10)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// parseCounter accepts digits only; an empty or non-digit string is errNoNumber.
func parseCounter(s string) (int64, error) {
	if s == "" {
		return 0, errNoNumber
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errNoNumber
		}
	}
	return strconv.ParseInt(s, 10, 64)
}

func succ(n int64) (int64, error) {
	if n == math.MaxInt64 {
		return 0, errExhausted
	}
	return n + 1, nil
}

func pad(n int64, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

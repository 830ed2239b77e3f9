package identifiers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"condoku_backend/internals/features/billing/billerr"
)

type sliceLookup struct {
	ids []string
	err error
}

func (l *sliceLookup) MatchPrefix(_ context.Context, _ Family, prefix string) ([]string, error) {
	if l.err != nil {
		return nil, l.err
	}
	var out []string
	for _, id := range l.ids {
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	return out, nil
}

var (
	testFamily = Family{Table: "invoices", Column: "invoice_id"}
	fixedNow   = time.Date(2026, time.January, 31, 9, 30, 0, 0, time.UTC)
)

func newTestGenerator(l Lookup) *Generator {
	return NewGenerator(l, WithClock(func() time.Time { return fixedNow }), WithLogger(zerolog.Nop()))
}

func TestNormalizePeriod(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"1/2026", "012026", false},
		{"01/2026", "012026", false},
		{"012026", "012026", false},
		{"12-2025", "122025", false},
		{" 3.2026 ", "032026", false},
		{"2026", "", true},
		{"13/2026", "", true},
		{"00/2026", "", true},
		{"2026-01", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := NormalizePeriod(tt.raw)
			if tt.wantErr {
				if !billerr.IsValidation(err) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInvoiceIdentityNext(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		want     string
	}{
		{"first invoice", nil, "PD-A101-012026"},
		{"exact base only", []string{"PD-A101-012026"}, "PD-A101-012026-1"},
		{"second suffix", []string{"PD-A101-012026", "PD-A101-012026-1"}, "PD-A101-012026-2"},
		{"gap after deletion", []string{"PD-A101-012026", "PD-A101-012026-2"}, "PD-A101-012026-3"},
		{"suffix without base", []string{"PD-A101-012026-4"}, "PD-A101-012026-5"},
		{"double digit suffix", []string{"PD-A101-012026", "PD-A101-012026-9", "PD-A101-012026-10"}, "PD-A101-012026-11"},
		{"only malformed prefix matches", []string{"PD-A101-012026X", "PD-A101-012026-abc"}, "PD-A101-012026"},
		{"malformed ignored for suffix", []string{"PD-A101-012026", "PD-A101-012026-x9"}, "PD-A101-012026-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewInvoiceIdentity("PD", "A101", "1/2026")
			if err != nil {
				t.Fatalf("scheme: %v", err)
			}
			g := newTestGenerator(&sliceLookup{ids: tt.existing})
			got := g.Next(context.Background(), testFamily, s)
			if got.Degraded {
				t.Fatalf("unexpected degraded allocation %q", got.ID)
			}
			if got.ID != tt.want {
				t.Errorf("got %q, want %q", got.ID, tt.want)
			}
			for _, id := range tt.existing {
				if id == got.ID {
					t.Errorf("allocated %q collides with an existing row", got.ID)
				}
			}
		})
	}
}

func TestInvoiceIdentityNormalizesCodes(t *testing.T) {
	s, err := NewInvoiceIdentity(" pd ", "a101", "01/2026")
	if err != nil {
		t.Fatalf("scheme: %v", err)
	}
	if s.Base() != "PD-A101-012026" {
		t.Errorf("base: got %q", s.Base())
	}
	if _, err := NewInvoiceIdentity("", "A101", "012026"); !billerr.IsValidation(err) {
		t.Errorf("empty fee code: expected ValidationError, got %v", err)
	}
	if _, err := NewInvoiceIdentity("PD", "A101", "2026"); !billerr.IsValidation(err) {
		t.Errorf("bad period: expected ValidationError, got %v", err)
	}
}

func TestIncrementalNext(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		width    int
		want     string
	}{
		{"empty family", nil, 4, "KH0001"},
		{"next after nine", []string{"KH0003", "KH0009", "KH0001"}, 4, "KH0010"},
		{"default width", []string{"KH0041"}, 0, "KH0042"},
		{"grows past width", []string{"KH9999"}, 4, "KH10000"},
		{"length beats lexical", []string{"KH9999", "KH10000"}, 4, "KH10001"},
		{"non numeric maximum counts as zero", []string{"KHLEGACY", "KH0007"}, 4, "KH0001"},
		{"only legacy", []string{"KHX"}, 4, "KH0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(&sliceLookup{ids: tt.existing})
			got := g.Next(context.Background(), testFamily, NewIncremental("KH", tt.width))
			if got.Degraded {
				t.Fatalf("unexpected degraded allocation %q", got.ID)
			}
			if got.ID != tt.want {
				t.Errorf("got %q, want %q", got.ID, tt.want)
			}
		})
	}
}

func TestDateBasedNext(t *testing.T) {
	day := time.Date(2026, time.October, 14, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		existing []string
		want     string
	}{
		{"first of the day", nil, "PT-14102026-0001"},
		{"continues", []string{"PT-14102026-0001", "PT-14102026-0002"}, "PT-14102026-0003"},
		{"other days ignored", []string{"PT-13102026-0040"}, "PT-14102026-0001"},
		{"shorter non numeric tail", []string{"PT-14102026-XX", "PT-14102026-0005"}, "PT-14102026-0006"},
		{"non numeric maximum counts as zero", []string{"PT-14102026-ZZZZ", "PT-14102026-0005"}, "PT-14102026-0001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGenerator(&sliceLookup{ids: tt.existing})
			got := g.Next(context.Background(), testFamily, NewDateBased("PT", day))
			if got.ID != tt.want {
				t.Errorf("got %q, want %q", got.ID, tt.want)
			}
		})
	}
}

func TestGeneratorFallback(t *testing.T) {
	millis := "1769851800000"
	inv, _ := NewInvoiceIdentity("PD", "A101", "012026")

	tests := []struct {
		name   string
		lookup Lookup
		scheme Scheme
		want   string
	}{
		{"incremental lookup failure", &sliceLookup{err: errors.New("db down")}, NewIncremental("KH", 4), "KH" + millis},
		{"date lookup failure", &sliceLookup{err: errors.New("db down")}, NewDateBased("PT", fixedNow), "PT" + millis},
		{"invoice lookup failure", &sliceLookup{err: errors.New("db down")}, inv, "PD-A101-012026-" + millis},
		{"incremental overflow", &sliceLookup{ids: []string{"KH99999999999999999999"}}, NewIncremental("KH", 4), "KH" + millis},
		{"incremental at max counter", &sliceLookup{ids: []string{"KH9223372036854775807"}}, NewIncremental("KH", 4), "KH" + millis},
		{"date at max counter", &sliceLookup{ids: []string{"PT-31012026-9223372036854775807"}}, NewDateBased("PT", fixedNow), "PT" + millis},
		{"non numeric maximum collides", &sliceLookup{ids: []string{"KHLEGACY", "KH0001"}}, NewIncremental("KH", 4), "KH" + millis},
		{"invoice suffix at max counter", &sliceLookup{ids: []string{"PD-A101-012026", "PD-A101-012026-9223372036854775807"}}, inv, "PD-A101-012026-" + millis},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTestGenerator(tt.lookup).Next(context.Background(), testFamily, tt.scheme)
			if !got.Degraded {
				t.Errorf("expected degraded allocation")
			}
			if got.ID != tt.want {
				t.Errorf("got %q, want %q", got.ID, tt.want)
			}
		})
	}
}

func TestOrderCandidates(t *testing.T) {
	ids := []string{"KH0002", "KH10000", "KH0010", "KH9999"}
	OrderCandidates(ids)
	want := []string{"KH10000", "KH9999", "KH0010", "KH0002"}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("order: got %v, want %v", ids, want)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	if got := EscapeLike(`A_1%\`); got != `A\_1\%\\` {
		t.Errorf("got %q", got)
	}
}

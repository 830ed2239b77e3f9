package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"condoku_backend/internals/features/billing/batches/dto"
	"condoku_backend/internals/features/billing/invoices/model"
	invsvc "condoku_backend/internals/features/billing/invoices/service"
	"condoku_backend/internals/features/billing/invoices/store"
)

func newTestBuilder(t *testing.T) (*Builder, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	ledger := invsvc.New(st, invsvc.WithLogger(zerolog.Nop()))
	b := NewBuilder(ledger, Config{
		DueDay:   15,
		Location: time.UTC,
		VehicleTariffs: map[string]decimal.Decimal{
			"car":        decimal.NewFromInt(150000),
			"Motorcycle": decimal.NewFromInt(50000),
		},
	})
	b.log = zerolog.Nop()
	return b, st
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func serviceBatch() dto.BatchRequest {
	return dto.BatchRequest{
		Source:        model.InvoiceSourceService,
		BillingPeriod: "1/2026",
		Services: []dto.ServiceRow{
			{ApartmentCode: "A101", AreaM2: dec("36"), UnitPrice: dec("10000")},
			{ApartmentCode: "A102", AreaM2: dec("54.5"), UnitPrice: dec("10000")},
			{ApartmentCode: "A103", AreaM2: dec("72"), UnitPrice: dec("10000")},
		},
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b, st := newTestBuilder(t)

	first, err := b.Commit(ctx, serviceBatch())
	if err != nil {
		t.Fatal(err)
	}
	if first.Created != 3 || first.Skipped != 0 || first.Failed != 0 {
		t.Fatalf("first run: %+v", first)
	}
	if first.Items[0].InvoiceID != "PD-A101-012026" {
		t.Errorf("id: got %q", first.Items[0].InvoiceID)
	}
	if !first.Items[1].Amount.Equal(decimal.NewFromInt(545000)) {
		t.Errorf("amount: got %s", first.Items[1].Amount)
	}

	second, err := b.Commit(ctx, serviceBatch())
	if err != nil {
		t.Fatal(err)
	}
	if second.Created != 0 || second.Skipped != 3 {
		t.Fatalf("second run: created=%d skipped=%d", second.Created, second.Skipped)
	}
	for i := range second.Items {
		if second.Items[i].InvoiceID != first.Items[i].InvoiceID {
			t.Errorf("item %d: skipped item points at %q, want %q", i, second.Items[i].InvoiceID, first.Items[i].InvoiceID)
		}
	}

	if _, total, _ := st.List(ctx, store.ListFilter{}); total != 3 {
		t.Errorf("expected 3 invoices, got %d", total)
	}
}

func TestWaterRowValidation(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	res, err := b.Commit(ctx, dto.BatchRequest{
		Source:        model.InvoiceSourceWater,
		BillingPeriod: "02/2026",
		Water: []dto.WaterRow{
			{ApartmentCode: "A101", PreviousReading: dec("100"), CurrentReading: dec("120.5"), UnitPrice: dec("5000")},
			{ApartmentCode: "A102", PreviousReading: dec("80"), CurrentReading: dec("79"), UnitPrice: dec("5000")},
			{ApartmentCode: "A103", PreviousReading: dec("10"), CurrentReading: dec("12"), UnitPrice: dec("-1")},
			{ApartmentCode: "a101", PreviousReading: dec("120.5"), CurrentReading: dec("130"), UnitPrice: dec("5000")},
			{ApartmentCode: "A104", PreviousReading: dec("0"), CurrentReading: dec("3"), UnitPrice: dec("4500")},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 2 || res.Failed != 3 {
		t.Fatalf("created=%d failed=%d: %+v", res.Created, res.Failed, res.Items)
	}

	tests := []struct {
		row    int
		status dto.ItemStatus
		field  string
	}{
		{0, dto.ItemCreated, ""},
		{1, dto.ItemError, "current_reading"},
		{2, dto.ItemError, "unit_price"},
		{3, dto.ItemError, "apartment_code"},
		{4, dto.ItemCreated, ""},
	}
	for _, tt := range tests {
		it := res.Items[tt.row]
		if it.Status != tt.status {
			t.Errorf("row %d: status %s, want %s (%s)", tt.row, it.Status, tt.status, it.Error)
			continue
		}
		if tt.field != "" {
			if _, ok := it.Fields[tt.field]; !ok {
				t.Errorf("row %d: expected field %q in %v", tt.row, tt.field, it.Fields)
			}
		}
	}

	if got := res.Items[0].Amount; !got.Equal(decimal.NewFromInt(102500)) {
		t.Errorf("usage amount: got %s", got)
	}
	if res.Items[0].InvoiceID != "PN-A101-022026" {
		t.Errorf("fee code: got %q", res.Items[0].InvoiceID)
	}
}

func TestPreviewWritesNothing(t *testing.T) {
	ctx := context.Background()
	b, st := newTestBuilder(t)

	preview, err := b.Preview(ctx, serviceBatch())
	if err != nil {
		t.Fatal(err)
	}
	if preview.Proposed != 3 || preview.Mode != dto.ModePreview {
		t.Fatalf("preview: %+v", preview)
	}
	if _, total, _ := st.List(ctx, store.ListFilter{}); total != 0 {
		t.Fatalf("preview wrote %d invoices", total)
	}

	commit, err := b.Commit(ctx, serviceBatch())
	if err != nil {
		t.Fatal(err)
	}
	for i := range commit.Items {
		if commit.Items[i].InvoiceID != preview.Items[i].InvoiceID {
			t.Errorf("item %d: committed %q, previewed %q", i, commit.Items[i].InvoiceID, preview.Items[i].InvoiceID)
		}
	}

	again, err := b.Preview(ctx, serviceBatch())
	if err != nil {
		t.Fatal(err)
	}
	if again.Skipped != 3 || again.Proposed != 0 {
		t.Errorf("preview after commit: %+v", again)
	}
}

func TestVehicleRowsGroupPerApartment(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)
	override := decimal.NewFromInt(75000)

	res, err := b.Commit(ctx, dto.BatchRequest{
		Source:        model.InvoiceSourceVehicle,
		BillingPeriod: "012026",
		Vehicles: []dto.VehicleRow{
			{ApartmentCode: "A101", PlateNumber: "B 1234 XY", VehicleType: "car"},
			{ApartmentCode: "A102", PlateNumber: "B 99 Z", VehicleType: "truck"},
			{ApartmentCode: "A101", PlateNumber: "b1234xy", VehicleType: "car"},
			{ApartmentCode: "A101", PlateNumber: "B 5 MM", VehicleType: "motorcycle"},
			{ApartmentCode: "A103", PlateNumber: "D 1 A", VehicleType: "car", MonthlyFee: &override},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Items) != 3 {
		t.Fatalf("expected one item per apartment, got %+v", res.Items)
	}

	// duplicate plate spoils A101
	if it := res.Items[0]; it.Status != dto.ItemError || len(it.Rows) != 3 {
		t.Errorf("A101: %+v", it)
	}
	if it := res.Items[1]; it.Status != dto.ItemError || it.Fields["vehicle_type"] == nil {
		t.Errorf("A102: %+v", it)
	}
	if it := res.Items[2]; it.Status != dto.ItemCreated || !it.Amount.Equal(override) || it.InvoiceID != "PX-A103-012026" {
		t.Errorf("A103: %+v", it)
	}
}

func TestSamePlateInTwoApartments(t *testing.T) {
	b, _ := newTestBuilder(t)
	res, err := b.Preview(context.Background(), dto.BatchRequest{
		Source:        model.InvoiceSourceVehicle,
		BillingPeriod: "012026",
		Vehicles: []dto.VehicleRow{
			{ApartmentCode: "A101", PlateNumber: "B 7 CD", VehicleType: "car"},
			{ApartmentCode: "A102", PlateNumber: "b7cd", VehicleType: "car"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, it := range res.Items {
		if it.Status != dto.ItemProposed {
			t.Errorf("%s: %s (%s)", it.ApartmentCode, it.Status, it.Error)
		}
	}
}

func TestVehicleSum(t *testing.T) {
	b, _ := newTestBuilder(t)
	res, err := b.Preview(context.Background(), dto.BatchRequest{
		Source:        model.InvoiceSourceVehicle,
		BillingPeriod: "012026",
		Vehicles: []dto.VehicleRow{
			{ApartmentCode: "A101", PlateNumber: "B 1 A", VehicleType: "car"},
			{ApartmentCode: "A101", PlateNumber: "B 2 A", VehicleType: "MOTORCYCLE"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if it := res.Items[0]; it.Status != dto.ItemProposed || !it.Amount.Equal(decimal.NewFromInt(200000)) {
		t.Errorf("sum: %+v", it)
	}
}

func TestDueDateDefault(t *testing.T) {
	b, _ := newTestBuilder(t)
	res, err := b.Preview(context.Background(), serviceBatch())
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC)
	if !res.DueDate.Equal(want) {
		t.Errorf("due date: got %s, want %s", res.DueDate, want)
	}

	explicit := time.Date(2026, time.January, 25, 0, 0, 0, 0, time.UTC)
	req := serviceBatch()
	req.DueDate = &explicit
	res, _ = b.Preview(context.Background(), req)
	if !res.DueDate.Equal(explicit) {
		t.Errorf("explicit due date ignored: %s", res.DueDate)
	}
}

func TestBadRequestIsFatal(t *testing.T) {
	b, _ := newTestBuilder(t)
	req := serviceBatch()
	req.BillingPeriod = "2026"
	if _, err := b.Commit(context.Background(), req); err == nil {
		t.Error("expected an error for a malformed period")
	}
	req = serviceBatch()
	req.Source = "electricity"
	if _, err := b.Commit(context.Background(), req); err == nil {
		t.Error("expected an error for an unknown source")
	}
}

// cancellingLedger cancels the batch once n invoices were committed.
type cancellingLedger struct {
	*invsvc.Ledger
	cancel context.CancelFunc
	n      int
}

func (l *cancellingLedger) CreateIfAbsent(ctx context.Context, in invsvc.CreateInput) (*model.Invoice, bool, error) {
	inv, created, err := l.Ledger.CreateIfAbsent(ctx, in)
	l.n--
	if l.n == 0 {
		l.cancel()
	}
	return inv, created, err
}

func TestCommitCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemoryStore()
	l := &cancellingLedger{Ledger: invsvc.New(st, invsvc.WithLogger(zerolog.Nop())), cancel: cancel, n: 1}
	b := NewBuilder(l, Config{Location: time.UTC})
	b.log = zerolog.Nop()

	res, err := b.Commit(ctx, serviceBatch())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Aborted || res.Created != 1 || res.Unprocessed != 2 {
		t.Fatalf("aborted=%v created=%d unprocessed=%d", res.Aborted, res.Created, res.Unprocessed)
	}
	if _, total, _ := st.List(context.Background(), store.ListFilter{}); total != 1 {
		t.Errorf("report says 1 created, store holds %d", total)
	}

	// resuming picks up exactly the unprocessed rows
	resumed, err := NewBuilder(l.Ledger, Config{Location: time.UTC}).Commit(context.Background(), serviceBatch())
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Created != 2 || resumed.Skipped != 1 {
		t.Errorf("resume: created=%d skipped=%d", resumed.Created, resumed.Skipped)
	}
}

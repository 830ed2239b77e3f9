package controller

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"condoku_backend/internals/features/billing/invoices/service"
	"condoku_backend/internals/features/billing/invoices/store"
)

type envelope struct {
	Success   bool                `json:"success"`
	ErrorCode string              `json:"error_code"`
	Errors    map[string][]string `json:"errors"`
	Data      json.RawMessage     `json:"data"`
}

func newTestApp() *fiber.App {
	now := time.Date(2026, time.October, 14, 8, 0, 0, 0, time.UTC)
	h := NewInvoiceHandler(service.New(store.NewMemoryStore(),
		service.WithClock(func() time.Time { return now }),
		service.WithLogger(zerolog.Nop()),
	))

	app := fiber.New()
	app.Post("/invoices", h.Create)
	app.Get("/invoices", h.List)
	app.Get("/invoices/:id", h.Get)
	app.Post("/invoices/:id/pay", h.Pay)
	app.Get("/u/invoices", func(c *fiber.Ctx) error {
		c.Locals("apartment_code", c.Get("X-Apartment"))
		return c.Next()
	}, h.ListMine)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Apartment", "A101")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, env
}

const createBody = `{
	"invoice_fee_code": "PD",
	"invoice_apartment_code": "A101",
	"invoice_billing_period": "1/2026",
	"invoice_amount": "350000",
	"invoice_due_date": "2026-02-15T00:00:00Z"
}`

func TestInvoiceHandlerLifecycle(t *testing.T) {
	app := newTestApp()

	status, env := do(t, app, http.MethodPost, "/invoices", createBody)
	if status != fiber.StatusCreated {
		t.Fatalf("create: status %d", status)
	}
	var created struct {
		InvoiceID string `json:"invoice_id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatal(err)
	}
	if created.InvoiceID != "PD-A101-012026" {
		t.Errorf("id: got %q", created.InvoiceID)
	}

	if status, _ := do(t, app, http.MethodPost, "/invoices", createBody); status != fiber.StatusCreated {
		t.Fatalf("second create: status %d", status)
	}

	status, env = do(t, app, http.MethodPost, "/invoices/PD-A101-012026/pay", "")
	if status != fiber.StatusOK {
		t.Fatalf("pay: status %d", status)
	}
	var paid struct {
		InvoiceStatus    string `json:"invoice_status"`
		InvoiceReceiptNo string `json:"invoice_receipt_no"`
	}
	_ = json.Unmarshal(env.Data, &paid)
	if paid.InvoiceStatus != "PAID" || paid.InvoiceReceiptNo != "PT-14102026-0001" {
		t.Errorf("pay: %+v", paid)
	}

	if status, env := do(t, app, http.MethodPost, "/invoices/PD-A101-012026/pay", ""); status != fiber.StatusConflict || env.ErrorCode != "CONFLICT" {
		t.Errorf("pay twice: status %d code %s", status, env.ErrorCode)
	}
	if status, _ := do(t, app, http.MethodGet, "/invoices/PD-NOPE-012026", ""); status != fiber.StatusNotFound {
		t.Errorf("unknown: status %d", status)
	}

	status, env = do(t, app, http.MethodGet, "/invoices?status=pending&period=01/2026", "")
	if status != fiber.StatusOK {
		t.Fatalf("list: status %d", status)
	}
	var list []struct {
		InvoiceID string `json:"invoice_id"`
	}
	_ = json.Unmarshal(env.Data, &list)
	if len(list) != 1 || list[0].InvoiceID != "PD-A101-012026-1" {
		t.Errorf("list pending: %+v", list)
	}

	status, env = do(t, app, http.MethodGet, "/u/invoices", "")
	_ = json.Unmarshal(env.Data, &list)
	if status != fiber.StatusOK || len(list) != 2 {
		t.Errorf("own invoices: status %d, %d rows", status, len(list))
	}
}

func TestInvoiceHandlerValidation(t *testing.T) {
	app := newTestApp()

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"bad period", strings.Replace(createBody, `"1/2026"`, `"13/2026"`, 1), "billing_period"},
		{"missing fee code", strings.Replace(createBody, `"PD"`, `""`, 1), "invoice_fee_code"},
		{"negative amount", strings.Replace(createBody, `"350000"`, `"-5"`, 1), "amount"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, app, http.MethodPost, "/invoices", tt.body)
			if status != fiber.StatusUnprocessableEntity {
				t.Fatalf("status %d", status)
			}
			if _, ok := env.Errors[tt.field]; !ok {
				t.Errorf("expected %q in %v", tt.field, env.Errors)
			}
		})
	}

	if status, _ := do(t, app, http.MethodPost, "/invoices", "{"); status != fiber.StatusBadRequest {
		t.Errorf("broken json: status %d", status)
	}
}

func TestPaidInvoiceSurvivesLaterRequests(t *testing.T) {
	app := newTestApp()

	if status, _ := do(t, app, http.MethodPost, "/invoices", createBody); status != fiber.StatusCreated {
		t.Fatalf("create: status %d", status)
	}
	if status, _ := do(t, app, http.MethodPost, "/invoices/PD-A101-012026/pay", ""); status != fiber.StatusOK {
		t.Fatalf("pay: status %d", status)
	}
	// reuse the request buffers with paths of other lengths
	do(t, app, http.MethodGet, "/invoices?fee_code=XXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX", "")
	do(t, app, http.MethodGet, "/invoices/QQQQQQQQQQQQQQ", "")

	status, env := do(t, app, http.MethodGet, "/invoices/PD-A101-012026", "")
	if status != fiber.StatusOK {
		t.Fatalf("get after pay: status %d code %s", status, env.ErrorCode)
	}
	var got struct {
		InvoiceStatus string `json:"invoice_status"`
	}
	_ = json.Unmarshal(env.Data, &got)
	if got.InvoiceStatus != "PAID" {
		t.Errorf("status %q", got.InvoiceStatus)
	}
}

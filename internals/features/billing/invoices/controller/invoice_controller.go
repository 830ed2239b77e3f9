// file: internals/features/billing/invoices/controller/invoice_controller.go
package controller

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/invoices/dto"
	"condoku_backend/internals/features/billing/invoices/model"
	"condoku_backend/internals/features/billing/invoices/service"
	"condoku_backend/internals/features/billing/invoices/store"
	helper "condoku_backend/internals/helpers"
)

type InvoiceHandler struct {
	Ledger   *service.Ledger
	Validate *validator.Validate
}

func NewInvoiceHandler(l *service.Ledger) *InvoiceHandler {
	return &InvoiceHandler{Ledger: l, Validate: validator.New()}
}

// -----------------------------------------
// Create (POST /invoices)
// -----------------------------------------
func (h *InvoiceHandler) Create(c *fiber.Ctx) error {
	var in dto.InvoiceCreateDTO
	if err := c.BodyParser(&in); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid json")
	}
	if err := h.Validate.Struct(in); err != nil {
		return helper.JsonFromError(c, billerr.FromValidator(err))
	}

	inv, err := h.Ledger.Create(c.UserContext(), in.ToInput())
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonCreated(c, "invoice created", dto.ToInvoiceResponse(inv))
}

// -----------------------------------------
// List (GET /invoices)
// Query filters (optional): status, fee_code, apartment_code, period,
// page, per_page
// -----------------------------------------
func (h *InvoiceHandler) List(c *fiber.Ctx) error {
	f := store.ListFilter{
		Status:        model.InvoiceStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		FeeCode:       c.Query("fee_code"),
		ApartmentCode: c.Query("apartment_code"),
		BillingPeriod: c.Query("period"),
	}
	return h.list(c, f)
}

// -----------------------------------------
// ListMine (GET /u/invoices): invoices of the caller's apartment
// -----------------------------------------
func (h *InvoiceHandler) ListMine(c *fiber.Ctx) error {
	apt, _ := c.Locals("apartment_code").(string)
	if strings.TrimSpace(apt) == "" {
		return helper.JsonError(c, fiber.StatusForbidden, "token carries no apartment")
	}
	f := store.ListFilter{
		Status:        model.InvoiceStatus(strings.ToUpper(strings.TrimSpace(c.Query("status")))),
		ApartmentCode: apt,
		BillingPeriod: c.Query("period"),
	}
	return h.list(c, f)
}

func (h *InvoiceHandler) list(c *fiber.Ctx, f store.ListFilter) error {
	p := helper.ResolvePaging(c, 20, 200)
	f.Limit, f.Offset = p.Limit, p.Offset

	list, total, err := h.Ledger.List(c.UserContext(), f)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonList(c, "ok", dto.ToInvoiceResponses(list), len(list), helper.BuildPaginationFromPaging(total, p))
}

// -----------------------------------------
// Get (GET /invoices/:id)
// -----------------------------------------
func (h *InvoiceHandler) Get(c *fiber.Ctx) error {
	inv, err := h.Ledger.Get(c.UserContext(), utils.CopyString(c.Params("id")))
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.ToInvoiceResponse(inv))
}

// -----------------------------------------
// Pay (POST /invoices/:id/pay): manual settlement by an admin
// -----------------------------------------
func (h *InvoiceHandler) Pay(c *fiber.Ctx) error {
	var in dto.InvoicePayDTO
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "invalid json")
		}
	}
	paidAt := h.Ledger.Now()
	if in.InvoicePaidAt != nil {
		paidAt = *in.InvoicePaidAt
	}

	inv, err := h.Ledger.MarkPaid(c.UserContext(), utils.CopyString(c.Params("id")), paidAt)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "invoice paid", dto.ToInvoiceResponse(inv))
}

package controller

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/reminders/service"
	"condoku_backend/internals/features/billing/reminders/store"
	helper "condoku_backend/internals/helpers"
)

type ReminderController struct {
	Service       *service.Service
	Notifications store.Store
	Validate      *validator.Validate
}

func NewReminderController(s *service.Service, n store.Store) *ReminderController {
	return &ReminderController{Service: s, Notifications: n, Validate: validator.New()}
}

type BatchReminderRequest struct {
	InvoiceIDs []string `json:"invoice_ids" validate:"required,min=1,max=500"`
}

// 🟢 POST /api/a/reminders/:id
func (ctrl *ReminderController) Send(c *fiber.Ctx) error {
	ev, err := ctrl.Service.SendReminder(c.UserContext(), utils.CopyString(c.Params("id")))
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "reminder sent", ev)
}

// 🟢 POST /api/a/reminders/batch
func (ctrl *ReminderController) SendBatch(c *fiber.Ctx) error {
	var req BatchReminderRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid json")
	}
	if err := ctrl.Validate.Struct(req); err != nil {
		return helper.JsonFromError(c, billerr.FromValidator(err))
	}
	ids := make([]string, 0, len(req.InvoiceIDs))
	for _, id := range req.InvoiceIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return helper.JsonOK(c, "batch reminder finished", ctrl.Service.SendBatchReminder(c.UserContext(), ids))
}

// 🟢 GET /api/u/notifications: reminders stored for the caller's apartment
func (ctrl *ReminderController) ListMine(c *fiber.Ctx) error {
	apt, _ := c.Locals("apartment_code").(string)
	if strings.TrimSpace(apt) == "" {
		return helper.JsonError(c, fiber.StatusForbidden, "token carries no apartment")
	}
	p := helper.ResolvePaging(c, 10, 100)

	list, total, err := ctrl.Notifications.ListByApartment(c.UserContext(), strings.ToUpper(apt), p.Limit, p.Offset)
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonList(c, "ok", list, len(list), helper.BuildPaginationFromPaging(total, p))
}

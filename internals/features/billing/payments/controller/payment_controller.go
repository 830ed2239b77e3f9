// file: internals/features/billing/payments/controller/payment_controller.go
package controller

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog/log"

	"condoku_backend/internals/features/billing/billerr"
	"condoku_backend/internals/features/billing/payments/dto"
	"condoku_backend/internals/features/billing/payments/service"
	helper "condoku_backend/internals/helpers"
)

type PaymentController struct {
	Service  *service.Service
	Validate *validator.Validate
}

func NewPaymentController(s *service.Service) *PaymentController {
	return &PaymentController{Service: s, Validate: validator.New()}
}

// -----------------------------------------
// CreateLink (POST /u/invoices/:id/payment-link)
// -----------------------------------------
func (ctl *PaymentController) CreateLink(c *fiber.Ctx) error {
	apt, _ := c.Locals("apartment_code").(string)
	if strings.TrimSpace(apt) == "" {
		return helper.JsonError(c, fiber.StatusForbidden, "token carries no apartment")
	}

	var in dto.PaymentLinkRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "invalid json")
		}
	}
	if err := ctl.Validate.Struct(in); err != nil {
		return helper.JsonFromError(c, billerr.FromValidator(err))
	}

	link, err := ctl.Service.CreatePaymentLink(c.UserContext(), strings.TrimSpace(utils.CopyString(c.Params("id"))), apt, service.Customer{
		Name:  strings.TrimSpace(in.Name),
		Email: strings.TrimSpace(in.Email),
	})
	if err != nil {
		return helper.JsonFromError(c, err)
	}
	return helper.JsonCreated(c, "payment link created", link)
}

/* ===================== Webhook ===================== */

// -----------------------------------------
// Notification (POST /public/payments/midtrans/notification)
// Body is JSON or form-urlencoded (the dashboard "Test" button sends form).
// Unusable payloads are acknowledged with 200 so the gateway stops retrying;
// transient failures answer 5xx so it retries.
// -----------------------------------------
func (ctl *PaymentController) Notification(c *fiber.Ctx) error {
	var body dto.MidtransNotification
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			log.Warn().Err(err).Str("content_type", string(c.Request().Header.ContentType())).Msg("midtrans notification: unparsable body")
		}
	}
	orderID := strings.TrimSpace(body.OrderID)
	if orderID == "" {
		log.Warn().Str("raw", string(c.Body())).Msg("midtrans notification without order_id")
		return helper.JsonOK(c, "ignored", fiber.Map{"reason": "missing order_id"})
	}

	res, err := ctl.Service.HandleNotification(c.UserContext(), orderID)
	if err != nil {
		if billerr.IsValidation(err) {
			log.Warn().Err(err).Str("order_id", orderID).Msg("midtrans notification ignored")
			return helper.JsonOK(c, "ignored", fiber.Map{"order_id": orderID, "reason": err.Error()})
		}
		return helper.JsonFromError(c, err)
	}
	return helper.JsonOK(c, "notification processed", res)
}

package route

import (
	"github.com/gofiber/fiber/v2"

	"condoku_backend/internals/features/billing/payments/controller"
	"condoku_backend/internals/features/billing/payments/service"
)

// mw runs before the handler (rate limiting).
func PaymentUserRoutes(user fiber.Router, s *service.Service, mw ...fiber.Handler) {
	ctl := controller.NewPaymentController(s)

	handlers := append(append([]fiber.Handler{}, mw...), ctl.CreateLink)
	user.Post("/invoices/:id/payment-link", handlers...)
}

// PaymentPublicRoutes: gateway callbacks, no auth.
func PaymentPublicRoutes(public fiber.Router, s *service.Service) {
	ctl := controller.NewPaymentController(s)

	public.Post("/payments/midtrans/notification", ctl.Notification)
}

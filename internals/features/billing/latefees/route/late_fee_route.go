package route

import (
	"github.com/gofiber/fiber/v2"

	"condoku_backend/internals/features/billing/latefees/controller"
	"condoku_backend/internals/features/billing/latefees/service"
)

func LateFeeAdminRoutes(admin fiber.Router, s *service.Scanner) {
	ctrl := controller.NewLateFeeController(s)

	admin.Post("/late-fees/scan", ctrl.Scan)
}

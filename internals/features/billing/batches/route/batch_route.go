package route

import (
	"github.com/gofiber/fiber/v2"

	"condoku_backend/internals/features/billing/batches/controller"
	"condoku_backend/internals/features/billing/batches/service"
)

func BatchAdminRoutes(admin fiber.Router, b *service.Builder) {
	h := &controller.BatchHandler{Builder: b}

	grp := admin.Group("/batches")
	grp.Post("/preview", h.Preview)
	grp.Post("/commit", h.Commit)
}

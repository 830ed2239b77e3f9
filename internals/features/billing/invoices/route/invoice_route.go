package route

import (
	"github.com/gofiber/fiber/v2"

	"condoku_backend/internals/features/billing/invoices/controller"
	"condoku_backend/internals/features/billing/invoices/service"
)

/*
Admin routes (create, read, manual settlement).
Mounted under a group guarded by the admin role.
*/
func InvoiceAdminRoutes(admin fiber.Router, ledger *service.Ledger) {
	h := controller.NewInvoiceHandler(ledger)

	grp := admin.Group("/invoices")
	grp.Post("/", h.Create)
	grp.Get("/", h.List)
	grp.Get("/:id", h.Get)
	grp.Post("/:id/pay", h.Pay)
}

// InvoiceUserRoutes: residents read their own apartment's invoices.
func InvoiceUserRoutes(user fiber.Router, ledger *service.Ledger) {
	h := controller.NewInvoiceHandler(ledger)

	user.Get("/invoices", h.ListMine)
}

// file: internals/route/index.go
package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	batchRoute "condoku_backend/internals/features/billing/batches/route"
	batchService "condoku_backend/internals/features/billing/batches/service"
	invoiceRoute "condoku_backend/internals/features/billing/invoices/route"
	invoiceService "condoku_backend/internals/features/billing/invoices/service"
	lateFeeRoute "condoku_backend/internals/features/billing/latefees/route"
	lateFeeService "condoku_backend/internals/features/billing/latefees/service"
	paymentRoute "condoku_backend/internals/features/billing/payments/route"
	paymentService "condoku_backend/internals/features/billing/payments/service"
	reminderRoute "condoku_backend/internals/features/billing/reminders/route"
	reminderService "condoku_backend/internals/features/billing/reminders/service"
	reminderStore "condoku_backend/internals/features/billing/reminders/store"

	"condoku_backend/internals/constants"
	"condoku_backend/internals/middlewares"
	authMiddleware "condoku_backend/internals/middlewares/auth"
)

var startTime time.Time

// Deps are the wired billing services.
type Deps struct {
	Ledger        *invoiceService.Ledger
	Builder       *batchService.Builder
	Scanner       *lateFeeService.Scanner
	Reminders     *reminderService.Service
	Notifications reminderStore.Store
	Payments      *paymentService.Service

	JWTSecret string
	HealthFn  HealthFunc
}

func SetupRoutes(app *fiber.App, d Deps) {
	startTime = time.Now()

	BaseRoutes(app, d.HealthFn)

	// ===================== PUBLIC =====================
	log.Info().Msg("mounting PUBLIC group")
	public := app.Group("/api/public")
	paymentRoute.PaymentPublicRoutes(public, d.Payments)

	// ===================== RESIDENT =====================
	log.Info().Msg("mounting RESIDENT group")
	user := app.Group("/api/u",
		authMiddleware.AuthMiddleware(d.JWTSecret),
		authMiddleware.OnlyRoles("residents only", constants.ResidentRoles...),
	)
	invoiceRoute.InvoiceUserRoutes(user, d.Ledger)
	reminderRoute.NotificationUserRoutes(user, d.Reminders, d.Notifications)
	paymentRoute.PaymentUserRoutes(user, d.Payments, middlewares.PaymentLinkRateLimiter())

	// ===================== ADMIN =====================
	log.Info().Msg("mounting ADMIN group")
	admin := app.Group("/api/a",
		authMiddleware.AuthMiddleware(d.JWTSecret),
		authMiddleware.OnlyRoles(constants.RoleErrorStaff("billing"), constants.StaffRoles...),
	)
	invoiceRoute.InvoiceAdminRoutes(admin, d.Ledger)
	batchRoute.BatchAdminRoutes(admin, d.Builder)
	lateFeeRoute.LateFeeAdminRoutes(admin, d.Scanner)
	reminderRoute.ReminderAdminRoutes(admin, d.Reminders, d.Notifications)
}

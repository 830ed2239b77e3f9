package route

import (
	"github.com/gofiber/fiber/v2"

	"condoku_backend/internals/features/billing/reminders/controller"
	"condoku_backend/internals/features/billing/reminders/service"
	"condoku_backend/internals/features/billing/reminders/store"
)

func ReminderAdminRoutes(admin fiber.Router, s *service.Service, n store.Store) {
	ctrl := controller.NewReminderController(s, n)

	reminder := admin.Group("/reminders")
	reminder.Post("/batch", ctrl.SendBatch) // before /:id
	reminder.Post("/:id", ctrl.Send)
}

func NotificationUserRoutes(user fiber.Router, s *service.Service, n store.Store) {
	ctrl := controller.NewReminderController(s, n)

	user.Get("/notifications", ctrl.ListMine)
}

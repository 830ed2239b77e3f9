package routes

import (
	"context"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

func BaseRoutes(app *fiber.App, health HealthFunc) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("condoku billing is running")
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		dbStatus := "Connected"
		serverStatus := "OK"
		httpStatus := fiber.StatusOK

		if health != nil {
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				dbStatus = "Database connection error"
				serverStatus = "DOWN"
				httpStatus = fiber.StatusServiceUnavailable
			}
		} else {
			dbStatus = "memory"
		}

		return c.Status(httpStatus).JSON(fiber.Map{
			"status":         serverStatus,
			"database":       dbStatus,
			"server_time":    time.Now().Format(time.RFC3339),
			"uptime_seconds": int(time.Since(startTime).Seconds()),
			"environment":    os.Getenv("RAILWAY_ENVIRONMENT"),
		})
	})
}

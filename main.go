package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"condoku_backend/internals/bootstrap"
	"condoku_backend/internals/configs"
	database "condoku_backend/internals/databases"
	helper "condoku_backend/internals/helpers"
	middlewares "condoku_backend/internals/middlewares"
	routes "condoku_backend/internals/route"
)

func main() {
	configs.LoadEnv()
	if err := configs.SetupLogger(configs.LogConfigFromEnv()); err != nil {
		log.Warn().Err(err).Msg("bad LOG_LEVEL, keeping defaults")
	}
	cfg := configs.LoadBillingConfig()

	app := fiber.New(fiber.Config{
		JSONEncoder:             sonic.Marshal,
		JSONDecoder:             sonic.ConfigStd.Unmarshal, // copies strings out of the request buffer
		Immutable:               true,
		DisableStartupMessage:   true,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0/0"}, // narrow to the proxy CIDR in production
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return helper.JsonFromError(c, err)
		},
	})
	middlewares.SetupMiddlewares(app)

	var (
		db     *gorm.DB
		health routes.HealthFunc
	)
	if cfg.StoreDriver == configs.StoreDriverPostgres {
		if err := database.ConnectDB(); err != nil {
			log.Fatal().Err(err).Msg("database")
		}
		database.TunePool()
		if configs.GetEnvBool("DB_AUTO_MIGRATE", true) {
			if err := database.Migrate(); err != nil {
				log.Fatal().Err(err).Msg("migrate")
			}
		}
		db, health = database.DB, database.Ping
	}

	billing, err := bootstrap.NewBilling(cfg, db, configs.MidtransServerKey)
	if err != nil {
		log.Fatal().Err(err).Msg("billing setup")
	}
	routes.SetupRoutes(app, billing.Routes(configs.JWTSecret, health))

	if err := billing.Start(); err != nil {
		log.Fatal().Err(err).Msg("billing start")
	}

	app.Server().ReadTimeout = 15 * time.Second
	app.Server().WriteTimeout = 30 * time.Second
	app.Server().IdleTimeout = 90 * time.Second

	port := configs.GetEnv("PORT", "3000")
	go func() {
		log.Info().Str("port", port).Str("store", cfg.StoreDriver).Msg("listening")
		if err := app.Listen("0.0.0.0:" + port); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// graceful shutdown: HTTP first, then background work, then the pool
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_ = app.ShutdownWithContext(ctx)
	billing.Stop(ctx)
	database.Close()
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"condoku_backend/internals/configs"
	invoicemodel "condoku_backend/internals/features/billing/invoices/model"
	remindermodel "condoku_backend/internals/features/billing/reminders/model"
)

var DB *gorm.DB

func ConnectDB() error {
	log.Info().Msg("connecting to PostgreSQL...")

	// For PgBouncer (transaction pooling) point host/port at the bouncer and keep PreferSimpleProtocol.
	dsn := configs.GetEnv("DATABASE_URL")
	if dsn == "" {
		dsn = fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=condoku&options=-c statement_timeout=%d",
			configs.GetEnv("DB_USER"),
			configs.GetEnv("DB_PASSWORD"),
			configs.GetEnv("DB_HOST", "localhost"),
			configs.GetEnv("DB_PORT", "5432"),
			configs.GetEnv("DB_NAME"),
			configs.GetEnv("DB_SSLMODE", "require"),
			configs.GetEnvInt("DB_STATEMENT_TIMEOUT_MS", 3000),
		)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		Logger:         configs.NewGormLogger(),
		TranslateError: true, // unique violations surface as gorm.ErrDuplicatedKey
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	DB = db
	log.Info().Msg("DB connected")
	return nil
}

func TunePool() {
	sqlDB, err := DB.DB()
	if err != nil {
		log.Warn().Err(err).Msg("pool tune")
		return
	}
	sqlDB.SetMaxOpenConns(configs.GetEnvInt("DB_MAX_OPEN_CONNS", 20))
	sqlDB.SetMaxIdleConns(configs.GetEnvInt("DB_MAX_IDLE_CONNS", 10))
	sqlDB.SetConnMaxIdleTime(60 * time.Second)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
}

// Migrate creates or updates the billing tables.
func Migrate() error {
	return DB.AutoMigrate(
		&invoicemodel.Invoice{},
		&remindermodel.NotificationModel{},
	)
}

func Ping(ctx context.Context) error {
	if DB == nil {
		return fmt.Errorf("db not connected")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func Close() {
	if DB == nil {
		return
	}
	if sqlDB, err := DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

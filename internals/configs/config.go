package configs

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	JWTSecret         string
	MidtransServerKey string
)

// =======================
// ENV LOADER
// =======================
func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") == "" {
		if err := godotenv.Load(); err != nil {
			log.Info().Msg("no .env file, using system environment")
		} else {
			log.Info().Msg(".env loaded")
		}
	} else {
		log.Info().Msg("running on Railway, using system environment")
	}

	JWTSecret = GetEnv("JWT_SECRET")
	MidtransServerKey = GetEnv("MIDTRANS_SERVER_KEY")

	if JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is not set, every authenticated route will answer 401")
	}
	if MidtransServerKey == "" {
		log.Warn().Msg("MIDTRANS_SERVER_KEY is not set, online payments disabled")
	}
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if (!exists || strings.TrimSpace(value) == "") && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return strings.TrimSpace(value)
}

// Typed getters fall back to def, with a warning, when the value does not parse.

func GetEnvInt(key string, def int) int {
	raw := GetEnv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Int("default", def).Msg("env is not an integer")
		return def
	}
	return n
}

func GetEnvBool(key string, def bool) bool {
	raw := GetEnv(key)
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Bool("default", def).Msg("env is not a boolean")
		return def
	}
	return b
}

func GetEnvDecimal(key string, def decimal.Decimal) decimal.Decimal {
	raw := GetEnv(key)
	if raw == "" {
		return def
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Str("default", def.String()).Msg("env is not a decimal")
		return def
	}
	return d
}

func GetEnvDuration(key string, def time.Duration) time.Duration {
	raw := GetEnv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Dur("default", def).Msg("env is not a duration")
		return def
	}
	return d
}

package configs

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type BillingConfig struct {
	StoreDriver string
	Location    *time.Location

	DueDay         int
	VehicleTariffs map[string]decimal.Decimal
	MaxAttempts    int

	LateFeeGraceDays int
	LateFeeRate      decimal.Decimal
	LateFeeFlat      decimal.Decimal
	LateFeeRounding  decimal.Decimal
	LateFeeCron      string
	ScanPageSize     int

	ReminderQueueSize int

	MidtransProduction bool
}

// LoadBillingConfig reads the billing settings from the environment.
func LoadBillingConfig() BillingConfig {
	cfg := BillingConfig{
		StoreDriver: strings.ToLower(GetEnv("STORE_DRIVER", StoreDriverPostgres)),
		Location:    loadLocation(GetEnv("BILLING_TZ", "Asia/Jakarta")),

		DueDay:         GetEnvInt("BILLING_DUE_DAY", 15),
		VehicleTariffs: ParseTariffs(GetEnv("VEHICLE_TARIFFS", "car:150000,motorcycle:50000")),
		MaxAttempts:    GetEnvInt("ID_ALLOCATION_RETRIES", 3),

		LateFeeGraceDays: GetEnvInt("LATE_FEE_GRACE_DAYS", 7),
		LateFeeRate:      GetEnvDecimal("LATE_FEE_RATE", decimal.RequireFromString("0.02")),
		LateFeeFlat:      GetEnvDecimal("LATE_FEE_FLAT", decimal.Zero),
		LateFeeRounding:  GetEnvDecimal("LATE_FEE_ROUNDING", decimal.NewFromInt(100)),
		LateFeeCron:      GetEnv("LATE_FEE_CRON", "0 1 * * *"),
		ScanPageSize:     GetEnvInt("SCAN_PAGE_SIZE", 200),

		ReminderQueueSize: GetEnvInt("REMINDER_QUEUE_SIZE", 256),

		MidtransProduction: GetEnvBool("MIDTRANS_PRODUCTION", false),
	}
	if cfg.StoreDriver != StoreDriverPostgres && cfg.StoreDriver != StoreDriverMemory {
		log.Warn().Str("store_driver", cfg.StoreDriver).Msg("unknown STORE_DRIVER, using postgres")
		cfg.StoreDriver = StoreDriverPostgres
	}
	if cfg.LateFeeGraceDays < 0 {
		cfg.LateFeeGraceDays = 0
	}
	return cfg
}

// ParseTariffs reads "car:150000,motorcycle:50000". Bad pairs are skipped.
func ParseTariffs(raw string) map[string]decimal.Decimal {
	out := map[string]decimal.Decimal{}
	for _, pair := range strings.Split(raw, ",") {
		kind, amount, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		kind = strings.ToLower(strings.TrimSpace(kind))
		d, err := decimal.NewFromString(strings.TrimSpace(amount))
		if kind == "" || err != nil || d.IsNegative() {
			log.Warn().Str("pair", pair).Msg("VEHICLE_TARIFFS: skipping bad pair")
			continue
		}
		out[kind] = d
	}
	return out
}

func loadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warn().Err(err).Str("tz", name).Msg("unknown BILLING_TZ, using local time")
		return time.Local
	}
	return loc
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/pos/internal/app"
)

const (
	envGRPCAddr                = "POS_GRPC_ADDR"
	envMetricsAddr             = "POS_METRICS_ADDR"
	envLogLevel                = "POS_LOG_LEVEL"
	envStorageDriver           = "POS_STORAGE_DRIVER"
	envPostgresDSN             = "POS_POSTGRES_DSN"
	envPostgresAutoMigrate     = "POS_POSTGRES_AUTO_MIGRATE"
	envKafkaBrokers            = "KAFKA_BROKERS"
	envOutboxTopic             = "POS_OUTBOX_TOPIC"
	envDLQTopic                = "POS_DLQ_TOPIC"
	envOutboxPollInterval      = "POS_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize         = "POS_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts       = "POS_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay        = "POS_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending        = "POS_OUTBOX_MAX_PENDING"
	envCatalogPath             = "POS_CATALOG_PATH"
	envTaxRate                 = "POS_TAX_RATE"
	envPaymentDelay            = "POS_PAYMENT_DELAY"
	envDeclinedMethods         = "POS_PAYMENT_DECLINE_METHODS"
	envSessionIdleTTL          = "POS_SESSION_IDLE_TTL"
	envSessionCleanupInterval  = "POS_SESSION_CLEANUP_INTERVAL"
	envSessionCleanupBatchSize = "POS_SESSION_CLEANUP_BATCH_SIZE"
)

type envLookup func(string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректные значения не роняют запуск: остаётся значение по умолчанию,
// а в warnings попадает описание проблемы.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
	}

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }
	nonNegativeDuration := func(v time.Duration) bool { return v >= 0 }

	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, valid, rule)
		if err != nil {
			warn(key, err)
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warn(key, err)
			return
		}
		*dst = parsed
	}

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(v)))
	}
	str(envPostgresDSN, &cfg.PostgresDSN)
	if v, ok := lookup(envPostgresAutoMigrate); ok && strings.TrimSpace(v) != "" {
		parsed, err := parseBool(v)
		if err != nil {
			warn(envPostgresAutoMigrate, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}

	str(envKafkaBrokers, &cfg.KafkaBrokers)
	str(envOutboxTopic, &cfg.OutboxTopic)
	str(envDLQTopic, &cfg.DLQTopic)
	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")

	str(envCatalogPath, &cfg.CatalogPath)
	str(envTaxRate, &cfg.TaxRate)
	duration(envPaymentDelay, &cfg.PaymentDelay, nonNegativeDuration, "must be >= 0")
	str(envDeclinedMethods, &cfg.DeclinedMethods)

	duration(envSessionIdleTTL, &cfg.SessionIdleTTL, positiveDuration, "must be > 0")
	duration(envSessionCleanupInterval, &cfg.SessionCleanupInterval, positiveDuration, "must be > 0")
	integer(envSessionCleanupBatchSize, &cfg.SessionCleanupBatchSize, positive, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("%d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("%s %s", value, rule)
	}
	return value, nil
}

func main() {
	setupLogger(os.Getenv(envLogLevel))
	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range warnings {
		log.WithField("config", w).Warn("invalid config value, using default")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"payment_delay":  cfg.PaymentDelay,
	}).Info("starting POS service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("pos-service exited with error")
	}

	log.Info("POS service stopped")
}

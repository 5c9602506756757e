package app

import "time"

// StorageDriver выбирает хранилище чеков, таймлайна и outbox.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска pos-service.
type Config struct {
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	// KafkaBrokers — список брокеров через запятую; пусто — события пишутся в лог.
	KafkaBrokers       string
	OutboxTopic        string
	DLQTopic           string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending — backlog, после которого /healthz сообщает degraded.
	OutboxMaxPending int

	// CatalogPath — YAML/JSON файл каталога; пусто — встроенный каталог.
	CatalogPath string
	// TaxRate — десятичная ставка налога, например "0.08".
	TaxRate      string
	PaymentDelay time.Duration
	// DeclinedMethods — способы оплаты через запятую, которые симулятор отклоняет.
	DeclinedMethods string

	SessionIdleTTL          time.Duration
	SessionCleanupInterval  time.Duration
	SessionCleanupBatchSize int
}

// DefaultConfig возвращает настройки для локального запуска без внешних зависимостей.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:                ":50051",
		MetricsAddr:             ":9090",
		StorageDriver:           StorageDriverMemory,
		PostgresAutoMigrate:     true,
		OutboxTopic:             "pos.checkout.events",
		DLQTopic:                "pos.dlq",
		OutboxPollInterval:      500 * time.Millisecond,
		OutboxBatchSize:         50,
		OutboxMaxAttempts:       3,
		OutboxRetryDelay:        50 * time.Millisecond,
		OutboxMaxPending:        1000,
		TaxRate:                 "0.08",
		PaymentDelay:            1500 * time.Millisecond,
		SessionIdleTTL:          30 * time.Minute,
		SessionCleanupInterval:  time.Minute,
		SessionCleanupBatchSize: 100,
	}
}

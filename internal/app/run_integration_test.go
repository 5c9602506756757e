package app

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pos/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/pos/internal/health"
	"github.com/vladislavdragonenkov/pos/internal/service/outbox"
	"github.com/vladislavdragonenkov/pos/internal/storage/memory"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestRun_InvalidTaxRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TaxRate = "abc"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tax rate")
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	if deps.closeFn != nil {
		defer func() { _ = deps.closeFn() }()
	}

	require.NotNil(t, deps.receipts)
	require.NotNil(t, deps.timeline)
	require.NotNil(t, deps.outbox)
	require.NotNil(t, deps.storageChecker)
	assert.Equal(t, healthcheck.StatusHealthy, deps.storageChecker.Check(context.Background()).Status)
}

func TestHealthHandler_OutboxBacklogDegrades(t *testing.T) {
	storage := memoryStorage(t)
	deps, err := NewDependencies(DefaultConfig(), storage, nil)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.OutboxMaxPending = 1
	for i := 0; i < 2; i++ {
		_, err := storage.outbox.Enqueue(domain.OutboxMessage{AggregateType: "session", AggregateID: "s-1", EventType: "checkout.completed"})
		require.NoError(t, err)
	}

	report := newHealthHandler(cfg, deps, storage).Evaluate(context.Background())
	assert.Equal(t, healthcheck.StatusDegraded, report.Status)
	outboxCheck, ok := report.Lookup("outbox")
	require.True(t, ok)
	assert.Equal(t, healthcheck.StatusDegraded, outboxCheck.Status)
	catalogCheck, ok := report.Lookup("catalog")
	require.True(t, ok)
	assert.Equal(t, healthcheck.StatusHealthy, catalogCheck.Status)
}

func TestShutdownHelpers(t *testing.T) {
	logger := log.WithField("test", "shutdown")

	cancelCalled := false
	done := make(chan struct{})
	close(done)
	shutdownWorkers(func() { cancelCalled = true }, logger, done, nil)
	assert.True(t, cancelCalled, "expected worker cancel func to be called")

	shutdownWorkers(nil, logger)
	closeStorage(runtimeDependencies{}, logger)
	flushOutbox(nil, logger)
}

func TestFlushOutbox_DrainsPending(t *testing.T) {
	repo := memory.NewOutboxRepository()
	_, err := repo.Enqueue(domain.OutboxMessage{AggregateType: "session", AggregateID: "s-1", EventType: "checkout.completed"})
	require.NoError(t, err)

	logger := log.WithField("test", "flush")
	flushOutbox(outbox.NewWorker(repo, outbox.NewLogPublisher(logger)), logger)

	assert.Empty(t, repo.AllPending())
}

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("POS_POSTGRES_TEST_DSN"))
}

package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	healthcheck "github.com/vladislavdragonenkov/pos/internal/health"
	grpcsvc "github.com/vladislavdragonenkov/pos/internal/service/grpc"
	"github.com/vladislavdragonenkov/pos/internal/service/outbox"
	"github.com/vladislavdragonenkov/pos/internal/service/pos"
	"github.com/vladislavdragonenkov/pos/internal/version"
)

const (
	gracefulStopTimeout = 5 * time.Second
	outboxFlushTimeout  = 3 * time.Second
	outboxMaxRetryDelay = 2 * time.Second
)

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.WithFields(version.Fields()).Info("starting pos-service")

	storage, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStorage(storage, logger)

	deps, err := NewDependencies(cfg, storage, logger)
	if err != nil {
		return err
	}

	kafkaProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		kafkaProducer = nil
	}
	defer closeKafka(kafkaProducer, logger)

	publisher, dlqPublisher := outboxPublishers(kafkaProducer, cfg, logger)
	workerOptions := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBackoff(cfg.OutboxRetryDelay, outboxMaxRetryDelay),
	}
	if dlqPublisher != nil {
		workerOptions = append(workerOptions, outbox.WithDLQPublisher(dlqPublisher))
	}
	outboxWorker := outbox.NewWorker(storage.outbox, publisher, workerOptions...)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	outboxDone := startBackground(func() { outboxWorker.Run(workerCtx) })
	cleanupWorker := pos.NewCleanupWorker(deps.Registry,
		pos.WithCleanupLogger(logger.WithField("component", "session-cleanup")),
		pos.WithCleanupInterval(cfg.SessionCleanupInterval),
		pos.WithCleanupBatchSize(cfg.SessionCleanupBatchSize),
		pos.WithIdleTTL(cfg.SessionIdleTTL),
	)
	cleanupDone := startBackground(func() { cleanupWorker.Run(workerCtx) })

	posService := grpcsvc.NewPosService(deps.Registry, logger.WithField("layer", "grpc"))
	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcsvc.RegisterPosServiceServer(grpcServer, posService)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	healthHandler := newHealthHandler(cfg, deps, storage)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		cancelWorkers()
		shutdownHTTP(metricsSrv, logger)
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC server listening on %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, stopping gRPC server")
		healthServer.Shutdown()
		stopGRPC(grpcServer, logger)
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	shutdownHTTP(metricsSrv, logger)
	shutdownWorkers(cancelWorkers, logger, outboxDone, cleanupDone)
	flushOutbox(outboxWorker, logger)
	return runErr
}

func newHealthHandler(cfg Config, deps *Dependencies, storage runtimeDependencies) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())
	handler.RegisterChecker("catalog", healthcheck.NewSimpleChecker("catalog", func(context.Context) error {
		if len(deps.Catalog.Products()) == 0 {
			return errors.New("catalog is empty")
		}
		return nil
	}))
	if storage.storageChecker != nil {
		handler.RegisterChecker("storage", storage.storageChecker)
	}
	handler.RegisterChecker("outbox", healthcheck.NewThresholdChecker("outbox", cfg.OutboxMaxPending, func(context.Context) (int, error) {
		stats, err := storage.outbox.Stats()
		return stats.PendingCount, err
	}))
	return handler
}

func startBackground(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	return done
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(gracefulStopTimeout):
		logger.Warn("graceful stop timed out, forcing stop")
		server.Stop()
	}
}

// shutdownWorkers отменяет фоновые воркеры и ждёт их завершения.
func shutdownWorkers(cancel context.CancelFunc, logger *log.Entry, done ...<-chan struct{}) {
	if cancel == nil {
		return
	}
	cancel()
	for _, ch := range done {
		if ch == nil {
			continue
		}
		select {
		case <-ch:
		case <-time.After(gracefulStopTimeout):
			logger.Warn("background worker did not stop in time")
		}
	}
}

// flushOutbox дописывает накопленные события перед выходом.
func flushOutbox(worker *outbox.Worker, logger *log.Entry) {
	if worker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), outboxFlushTimeout)
	defer cancel()
	if n := worker.Flush(ctx); n > 0 {
		logger.WithField("events", n).Info("outbox flushed on shutdown")
	}
}

func closeStorage(storage runtimeDependencies, logger *log.Entry) {
	if storage.closeFn == nil {
		return
	}
	if err := storage.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}

// startMetricsServer запускает HTTP-обработчики /metrics и health-проверок.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("metrics available at %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), gracefulStopTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}

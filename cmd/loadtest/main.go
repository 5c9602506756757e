package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	grpcsvc "github.com/vladislavdragonenkov/pos/internal/service/grpc"
)

type loadMode string

const (
	// modeBrowse: поиск и фильтрация каталога без корзины.
	modeBrowse loadMode = "browse"
	// modeCart: наполнение корзины, изменение количества и очистка.
	modeCart loadMode = "cart"
	// modeCheckout: полный цикл оплаты с ожиданием исхода платежа.
	modeCheckout loadMode = "checkout"
)

const (
	outcomeCompleted = "completed"
	outcomeDeclined  = "declined"
	outcomeTimeout   = "timeout"
)

var errCheckoutTimeout = errors.New("checkout did not finish in time")

type config struct {
	addr            string
	total           int
	totalSet        bool
	duration        time.Duration
	concurrency     int
	connections     int
	timeout         time.Duration
	mode            loadMode
	productIDs      []int64
	method          string
	search          string
	pollInterval    time.Duration
	checkoutTimeout time.Duration
	customerTag     string
	outputPath      string
}

// posClient — подмножество grpcsvc.Client, которое использует нагрузка.
type posClient interface {
	OpenSession(ctx context.Context, in *grpcsvc.OpenSessionRequest, opts ...grpc.CallOption) (*grpcsvc.SessionResponse, error)
	GetSession(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*grpcsvc.SessionResponse, error)
	CloseSession(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*grpcsvc.CloseSessionResponse, error)
	UpdateCriteria(ctx context.Context, in *grpcsvc.UpdateCriteriaRequest, opts ...grpc.CallOption) (*grpcsvc.SessionResponse, error)
	AddToCart(ctx context.Context, sessionID string, productID int64, opts ...grpc.CallOption) (*grpcsvc.SessionResponse, error)
	ChangeQuantity(ctx context.Context, in *grpcsvc.ChangeQuantityRequest, opts ...grpc.CallOption) (*grpcsvc.SessionResponse, error)
	ClearCart(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*grpcsvc.SessionResponse, error)
	OpenCheckout(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*grpcsvc.SessionResponse, error)
	SelectPaymentMethod(ctx context.Context, sessionID, method string, opts ...grpc.CallOption) (*grpcsvc.SessionResponse, error)
	ConfirmCheckout(ctx context.Context, sessionID string, opts ...grpc.CallOption) (*grpcsvc.SessionResponse, error)
}

var _ posClient = (*grpcsvc.Client)(nil)

func parseConfig() (config, error) {
	var cfg config
	var modeValue, timeoutValue, durationValue, productsValue string

	flag.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC target address")
	flag.IntVar(&cfg.total, "total", 200, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	flag.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 10m, 15m)")
	flag.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 10, "number of gRPC client connections")
	flag.StringVar(&timeoutValue, "timeout", "5s", "per-RPC timeout")
	flag.StringVar(&modeValue, "mode", string(modeCart), "load mode: browse | cart | checkout")
	flag.StringVar(&productsValue, "products", "1,5,9", "comma-separated product ids added to the cart")
	flag.StringVar(&cfg.method, "method", "cash", "payment method used in checkout mode")
	flag.StringVar(&cfg.search, "search", "pro", "search text used in browse mode")
	flag.DurationVar(&cfg.pollInterval, "poll-interval", 100*time.Millisecond, "session polling interval while payment is processing")
	flag.DurationVar(&cfg.checkoutTimeout, "checkout-timeout", 10*time.Second, "max wait for a payment outcome")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "customer label prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	flag.Parse()

	timeout, err := time.ParseDuration(strings.TrimSpace(timeoutValue))
	if err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	cfg.timeout = timeout

	duration, err := time.ParseDuration(strings.TrimSpace(durationValue))
	if err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	cfg.duration = duration

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	if cfg.mode, err = parseMode(modeValue); err != nil {
		return cfg, err
	}
	if cfg.productIDs, err = parseProductIDs(productsValue); err != nil {
		return cfg, err
	}

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.pollInterval <= 0:
		return cfg, errors.New("poll-interval must be > 0")
	case cfg.checkoutTimeout <= 0:
		return cfg, errors.New("checkout-timeout must be > 0")
	case strings.TrimSpace(cfg.method) == "":
		return cfg, errors.New("method is required")
	case strings.TrimSpace(cfg.customerTag) == "":
		return cfg, errors.New("customer-tag is required")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeBrowse, modeCart, modeCheckout:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func parseProductIDs(value string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid product id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("products must contain at least one id")
	}
	return ids, nil
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]posClient, 0, cfg.connections)
	for i := 0; i < cfg.connections; i++ {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to create grpc client connection: %v\n", dialErr)
			os.Exit(1)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var failures int64
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func(cli posClient) {
			defer wg.Done()
			for id := range jobs {
				if runErr := runScenario(cli, cfg, id, runID, col); runErr != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}(clients[workerID%len(clients)])
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.Scenarios.Failed > 0 || failures > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

// scenario связывает клиента, настройки и сборщик статистики одного прогона.
type scenario struct {
	client posClient
	cfg    config
	col    *collector
}

// call выполняет один RPC с таймаутом и записывает его латентность.
func (s scenario) call(method string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.timeout)
	defer cancel()

	err := fn(ctx)
	s.col.record(method, time.Since(start), grpcCode(err))
	return err
}

func runScenario(client posClient, cfg config, index int, runID string, col *collector) (err error) {
	scenarioStart := time.Now()
	defer func() {
		col.record(scenarioMetric, time.Since(scenarioStart), grpcCode(err))
	}()

	s := scenario{client: client, cfg: cfg, col: col}

	var sessionID string
	err = s.call("OpenSession", func(ctx context.Context) error {
		resp, callErr := client.OpenSession(ctx, &grpcsvc.OpenSessionRequest{
			CustomerLabel: fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index),
		})
		if callErr == nil {
			sessionID = resp.Session.ID
		}
		return callErr
	})
	if err != nil {
		return err
	}
	if sessionID == "" {
		return status.Error(codes.Internal, "open session returned empty id")
	}
	defer func() {
		_ = s.call("CloseSession", func(ctx context.Context) error {
			_, callErr := client.CloseSession(ctx, sessionID)
			return callErr
		})
	}()

	switch cfg.mode {
	case modeBrowse:
		return s.browse(sessionID)
	case modeCart:
		return s.fillAndClear(sessionID)
	default:
		return s.checkout(sessionID)
	}
}

func (s scenario) browse(sessionID string) error {
	return s.call("UpdateCriteria", func(ctx context.Context) error {
		_, err := s.client.UpdateCriteria(ctx, &grpcsvc.UpdateCriteriaRequest{
			SessionID: sessionID,
			Search:    s.cfg.search,
			Sort:      "price_asc",
		})
		return err
	})
}

func (s scenario) addProducts(sessionID string) error {
	for _, productID := range s.cfg.productIDs {
		err := s.call("AddToCart", func(ctx context.Context) error {
			_, callErr := s.client.AddToCart(ctx, sessionID, productID)
			return callErr
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s scenario) fillAndClear(sessionID string) error {
	if err := s.addProducts(sessionID); err != nil {
		return err
	}
	err := s.call("ChangeQuantity", func(ctx context.Context) error {
		_, callErr := s.client.ChangeQuantity(ctx, &grpcsvc.ChangeQuantityRequest{
			SessionID: sessionID,
			ProductID: s.cfg.productIDs[0],
			Delta:     1,
		})
		return callErr
	})
	if err != nil {
		return err
	}
	return s.call("ClearCart", func(ctx context.Context) error {
		_, callErr := s.client.ClearCart(ctx, sessionID)
		return callErr
	})
}

// checkout проводит оплату и ждёт её исхода опросом GetSession.
// Отказ платежа является ожидаемым исходом и не считается ошибкой сценария.
func (s scenario) checkout(sessionID string) error {
	if err := s.addProducts(sessionID); err != nil {
		return err
	}
	steps := []struct {
		method string
		fn     func(ctx context.Context) error
	}{
		{"OpenCheckout", func(ctx context.Context) error {
			_, err := s.client.OpenCheckout(ctx, sessionID)
			return err
		}},
		{"SelectPaymentMethod", func(ctx context.Context) error {
			_, err := s.client.SelectPaymentMethod(ctx, sessionID, s.cfg.method)
			return err
		}},
		{"ConfirmCheckout", func(ctx context.Context) error {
			_, err := s.client.ConfirmCheckout(ctx, sessionID)
			return err
		}},
	}
	for _, step := range steps {
		if err := s.call(step.method, step.fn); err != nil {
			return err
		}
	}

	outcome, err := s.awaitOutcome(sessionID)
	s.col.recordOutcome(outcome)
	return err
}

func (s scenario) awaitOutcome(sessionID string) (string, error) {
	deadline := time.Now().Add(s.cfg.checkoutTimeout)
	for {
		var state string
		err := s.call("GetSession", func(ctx context.Context) error {
			resp, callErr := s.client.GetSession(ctx, sessionID)
			if callErr == nil {
				state = resp.Session.Checkout.State
			}
			return callErr
		})
		if err != nil {
			return "", err
		}

		switch state {
		case outcomeCompleted, outcomeDeclined:
			return state, nil
		}
		if time.Now().After(deadline) {
			return outcomeTimeout, status.Error(codes.DeadlineExceeded, errCheckoutTimeout.Error())
		}
		time.Sleep(s.cfg.pollInterval)
	}
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/pos/internal/catalog"
	"github.com/vladislavdragonenkov/pos/internal/scheduler"
	"github.com/vladislavdragonenkov/pos/internal/service/checkout"
	grpcsvc "github.com/vladislavdragonenkov/pos/internal/service/grpc"
	"github.com/vladislavdragonenkov/pos/internal/service/payment"
	"github.com/vladislavdragonenkov/pos/internal/service/pos"
)

// fakePosClient записывает вызовы и отдаёт заданные состояния оплаты.
type fakePosClient struct {
	mu       sync.Mutex
	calls    []string
	failOn   string
	states   []string
	statePos int
}

func (f *fakePosClient) track(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	if method == f.failOn {
		return status.Error(codes.Unavailable, "down")
	}
	return nil
}

func (f *fakePosClient) session() *grpcsvc.SessionResponse {
	return &grpcsvc.SessionResponse{Session: grpcsvc.Session{ID: "s-1"}}
}

func (f *fakePosClient) OpenSession(context.Context, *grpcsvc.OpenSessionRequest, ...grpc.CallOption) (*grpcsvc.SessionResponse, error) {
	if err := f.track("OpenSession"); err != nil {
		return nil, err
	}
	return f.session(), nil
}

func (f *fakePosClient) GetSession(context.Context, string, ...grpc.CallOption) (*grpcsvc.SessionResponse, error) {
	if err := f.track("GetSession"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := f.session()
	if f.statePos < len(f.states) {
		resp.Session.Checkout.State = f.states[f.statePos]
		f.statePos++
	} else {
		resp.Session.Checkout.State = "processing"
	}
	return resp, nil
}

func (f *fakePosClient) CloseSession(context.Context, string, ...grpc.CallOption) (*grpcsvc.CloseSessionResponse, error) {
	return &grpcsvc.CloseSessionResponse{}, f.track("CloseSession")
}

func (f *fakePosClient) UpdateCriteria(context.Context, *grpcsvc.UpdateCriteriaRequest, ...grpc.CallOption) (*grpcsvc.SessionResponse, error) {
	return f.session(), f.track("UpdateCriteria")
}

func (f *fakePosClient) AddToCart(context.Context, string, int64, ...grpc.CallOption) (*grpcsvc.SessionResponse, error) {
	return f.session(), f.track("AddToCart")
}

func (f *fakePosClient) ChangeQuantity(context.Context, *grpcsvc.ChangeQuantityRequest, ...grpc.CallOption) (*grpcsvc.SessionResponse, error) {
	return f.session(), f.track("ChangeQuantity")
}

func (f *fakePosClient) ClearCart(context.Context, string, ...grpc.CallOption) (*grpcsvc.SessionResponse, error) {
	return f.session(), f.track("ClearCart")
}

func (f *fakePosClient) OpenCheckout(context.Context, string, ...grpc.CallOption) (*grpcsvc.SessionResponse, error) {
	return f.session(), f.track("OpenCheckout")
}

func (f *fakePosClient) SelectPaymentMethod(context.Context, string, string, ...grpc.CallOption) (*grpcsvc.SessionResponse, error) {
	return f.session(), f.track("SelectPaymentMethod")
}

func (f *fakePosClient) ConfirmCheckout(context.Context, string, ...grpc.CallOption) (*grpcsvc.SessionResponse, error) {
	return f.session(), f.track("ConfirmCheckout")
}

var _ posClient = (*fakePosClient)(nil)

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"loadtest"}, args...)
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	flag.CommandLine = fs

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

func testConfig(mode loadMode) config {
	return config{
		mode:            mode,
		total:           1,
		timeout:         time.Second,
		productIDs:      []int64{1, 5},
		method:          "cash",
		search:          "pro",
		pollInterval:    time.Millisecond,
		checkoutTimeout: time.Second,
		customerTag:     "test",
	}
}

func TestParseMode(t *testing.T) {
	for _, mode := range []loadMode{modeBrowse, modeCart, modeCheckout} {
		got, err := parseMode(" " + string(mode) + " ")
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}

	_, err := parseMode("create-pay")
	assert.ErrorContains(t, err, "unsupported mode")
}

func TestParseProductIDs(t *testing.T) {
	ids, err := parseProductIDs(" 1, 5,,9 ")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 5, 9}, ids)

	for _, bad := range []string{"", "x", "0", "-3"} {
		_, err := parseProductIDs(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParseConfig(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		withCLIArgs(t, []string{
			"-addr=127.0.0.1:50051",
			"-mode=checkout",
			"-total=12",
			"-concurrency=3",
			"-connections=2",
			"-timeout=2s",
			"-products=9,10",
			"-method=card",
			"-output=/tmp/out.json",
		}, func() {
			cfg, err := parseConfig()
			require.NoError(t, err)
			assert.True(t, cfg.totalSet)
			assert.Zero(t, cfg.duration)
			assert.Equal(t, modeCheckout, cfg.mode)
			assert.Equal(t, 12, cfg.total)
			assert.Equal(t, 3, cfg.concurrency)
			assert.Equal(t, 2, cfg.connections)
			assert.Equal(t, 2*time.Second, cfg.timeout)
			assert.Equal(t, []int64{9, 10}, cfg.productIDs)
			assert.Equal(t, "card", cfg.method)
		})
	})

	t.Run("duration mode", func(t *testing.T) {
		withCLIArgs(t, []string{"-duration=3s", "-concurrency=2", "-connections=1"}, func() {
			cfg, err := parseConfig()
			require.NoError(t, err)
			assert.Equal(t, 3*time.Second, cfg.duration)
			assert.False(t, cfg.totalSet, "-total was not provided")
		})
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name    string
			args    []string
			wantErr string
		}{
			{name: "invalid duration", args: []string{"-duration=bad"}, wantErr: "parse duration"},
			{name: "negative duration", args: []string{"-duration=-1s"}, wantErr: "duration must be >= 0"},
			{name: "empty total", args: []string{"-duration=0s", "-total=0"}, wantErr: "total must be > 0"},
			{name: "bad products", args: []string{"-products=abc"}, wantErr: "invalid product id"},
			{name: "bad poll interval", args: []string{"-poll-interval=0s"}, wantErr: "poll-interval must be > 0"},
			{name: "empty method", args: []string{"-method= "}, wantErr: "method is required"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				withCLIArgs(t, tc.args, func() {
					_, err := parseConfig()
					assert.ErrorContains(t, err, tc.wantErr)
				})
			})
		}
	})
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{total: 5})

		var got []int
		for v := range jobs {
			got = append(got, v)
		}
		assert.True(t, slices.Equal(got, []int{0, 1, 2, 3, 4}), "unexpected jobs sequence: %v", got)
	})

	t.Run("duration mode", func(t *testing.T) {
		jobs := make(chan int, 32)
		done := make(chan struct{})
		go func() {
			dispatchJobs(jobs, config{duration: 20 * time.Millisecond})
			close(done)
		}()

		count := 0
		for range jobs {
			count++
		}
		<-done
		assert.Positive(t, count)
	})

	t.Run("duration with explicit max total", func(t *testing.T) {
		jobs := make(chan int, 16)
		dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		assert.Equal(t, 3, count)
	})
}

func TestRunScenario_Modes(t *testing.T) {
	tests := []struct {
		mode  loadMode
		calls []string
	}{
		{modeBrowse, []string{"OpenSession", "UpdateCriteria", "CloseSession"}},
		{modeCart, []string{"OpenSession", "AddToCart", "AddToCart", "ChangeQuantity", "ClearCart", "CloseSession"}},
	}
	for _, tc := range tests {
		t.Run(string(tc.mode), func(t *testing.T) {
			client := &fakePosClient{}
			col := newCollector()

			require.NoError(t, runScenario(client, testConfig(tc.mode), 0, "run", col))
			assert.Equal(t, tc.calls, client.calls)

			snap, ok := col.snapshot(scenarioMetric)
			require.True(t, ok)
			assert.Equal(t, int64(1), snap.Succeeded())
		})
	}
}

func TestRunScenario_CheckoutPollsUntilOutcome(t *testing.T) {
	client := &fakePosClient{states: []string{"processing", "processing", "declined"}}
	col := newCollector()

	require.NoError(t, runScenario(client, testConfig(modeCheckout), 0, "run", col))

	polls, ok := col.snapshot("GetSession")
	require.True(t, ok)
	assert.Equal(t, int64(3), polls.Calls)

	r := col.buildReport(time.Now(), time.Second)
	require.NotNil(t, r.Checkout)
	assert.Equal(t, int64(1), r.Checkout.Declined)
	assert.Zero(t, r.Checkout.CompletionRate)
	assert.Equal(t, "CloseSession", client.calls[len(client.calls)-1])
}

func TestRunScenario_CheckoutTimeout(t *testing.T) {
	client := &fakePosClient{}
	cfg := testConfig(modeCheckout)
	cfg.checkoutTimeout = 5 * time.Millisecond
	col := newCollector()

	err := runScenario(client, cfg, 0, "run", col)
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))

	r := col.buildReport(time.Now(), time.Second)
	assert.Equal(t, int64(1), r.Scenarios.Failed)
	require.NotNil(t, r.Checkout)
	assert.Equal(t, int64(1), r.Checkout.TimedOut)
}

func TestRunScenario_RPCFailureStopsScenario(t *testing.T) {
	client := &fakePosClient{failOn: "AddToCart"}
	col := newCollector()

	err := runScenario(client, testConfig(modeCart), 0, "run", col)
	assert.Equal(t, codes.Unavailable, status.Code(err))
	assert.NotContains(t, client.calls, "ClearCart")
	assert.Contains(t, client.calls, "CloseSession", "session is closed even on failure")

	snap, ok := col.snapshot(scenarioMetric)
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.Codes[codes.Unavailable.String()])
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record(scenarioMetric, 10*time.Millisecond, codes.OK)
	c.record(scenarioMetric, 20*time.Millisecond, codes.Internal)
	c.record("AddToCart", 15*time.Millisecond, codes.OK)
	c.recordOutcome(outcomeCompleted)

	snap, ok := c.snapshot(scenarioMetric)
	require.True(t, ok)
	assert.Equal(t, int64(2), snap.Calls)
	assert.Equal(t, int64(1), snap.Succeeded())
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, 0.5, snap.FailureRate)

	r := c.buildReport(time.Now(), 2*time.Second)
	assert.Equal(t, int64(2), r.Scenarios.Calls)
	assert.Equal(t, int64(1), r.Scenarios.Failed)
	assert.Equal(t, 1.0, r.Throughput)
	assert.Contains(t, r.RPC, "AddToCart")
	assert.NotContains(t, r.RPC, scenarioMetric)
	require.NotNil(t, r.Checkout)
	assert.Equal(t, checkoutReport{Completed: 1, CompletionRate: 1}, *r.Checkout)

	c.recordOutcome("unknown")
	assert.Equal(t, int64(1), c.buildReport(time.Now(), time.Second).Checkout.Completed)
}

func TestUtilityFunctions(t *testing.T) {
	assert.Equal(t, codes.OK, grpcCode(nil))
	assert.Equal(t, codes.Unavailable, grpcCode(status.Error(codes.Unavailable, "down")))

	assert.Equal(t, 0.25, ratio(1, 4))
	assert.Zero(t, ratio(1, 0))

	summary := summarize([]time.Duration{40 * time.Millisecond, 10 * time.Millisecond, 30 * time.Millisecond, 20 * time.Millisecond})
	assert.Equal(t, latencyMs{Min: 10, Mean: 25, P50: 20, P90: 40, P99: 40, Max: 40}, summary)
	assert.Equal(t, latencyMs{}, summarize(nil))

	assert.Equal(t, "count:50", runTarget(config{total: 50}))
	assert.Equal(t, "duration:2s", runTarget(config{duration: 2 * time.Second}))
	assert.Equal(t, "duration:2s,max-total:10", runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}))
}

func TestWriteJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")

	require.NoError(t, writeJSONReport(path, report{Scenarios: callReport{Calls: 2}}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, int64(2), decoded.Scenarios.Calls)

	assert.Error(t, writeJSONReport("../escape.json", report{}))
}

func TestPrintReport(t *testing.T) {
	c := newCollector()
	c.record(scenarioMetric, time.Millisecond, codes.OK)
	c.record("OpenSession", time.Millisecond, codes.OK)
	c.recordOutcome(outcomeCompleted)
	r := c.buildReport(time.Now(), time.Second)

	var buf bytes.Buffer
	printReport(&buf, r, config{mode: modeCheckout, total: 1})

	out := buf.String()
	assert.Contains(t, out, "pos load test: mode=checkout")
	assert.Contains(t, out, "OpenSession")
	assert.Contains(t, out, "checkout: completed=1 declined=0 timed_out=0 completion=100.00%")
}

func TestMainSmoke(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func(lis net.Listener) {
		if err := lis.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			t.Errorf("close listener: %v", err)
		}
	}(lis)

	registry := pos.NewRegistry(pos.Dependencies{
		Catalog:   catalog.Seed(),
		Processor: checkout.NewProcessor(payment.NewSimulatedGateway(), scheduler.NewTimer(), checkout.WithDelay(10*time.Millisecond)),
	})
	srv := grpc.NewServer()
	grpcsvc.RegisterPosServiceServer(srv, grpcsvc.NewPosService(registry, nil))
	go func() {
		_ = srv.Serve(lis)
	}()
	defer srv.Stop()

	outPath := filepath.Join(t.TempDir(), "main-report.json")
	withCLIArgs(t, []string{
		"-addr=" + lis.Addr().String(),
		"-mode=checkout",
		"-total=4",
		"-concurrency=2",
		"-connections=1",
		"-timeout=2s",
		"-poll-interval=5ms",
		"-output=" + outPath,
	}, func() {
		main()
	})

	data, err := os.ReadFile(outPath)
	require.NoError(t, err, "expected report file from main")

	var decoded report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, int64(4), decoded.Scenarios.Succeeded())
	require.NotNil(t, decoded.Checkout)
	assert.Equal(t, int64(4), decoded.Checkout.Completed)
	assert.Zero(t, registry.Len(), "sessions are closed after each scenario")
}

package main

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"google.golang.org/grpc/codes"
)

// scenarioMetric — псевдо-метод, под которым учитывается сценарий целиком.
const scenarioMetric = "scenario"

type latencyMs struct {
	Min  float64 `json:"min"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P90  float64 `json:"p90"`
	P99  float64 `json:"p99"`
	Max  float64 `json:"max"`
}

type callReport struct {
	Calls       int64            `json:"calls"`
	Failed      int64            `json:"failed"`
	FailureRate float64          `json:"failure_rate"`
	Codes       map[string]int64 `json:"codes"`
	Latency     latencyMs        `json:"latency_ms"`
}

// Succeeded — вызовы, завершившиеся codes.OK.
func (r callReport) Succeeded() int64 {
	return r.Calls - r.Failed
}

// checkoutReport — чем закончились оплаты в режиме checkout.
type checkoutReport struct {
	Completed      int64   `json:"completed"`
	Declined       int64   `json:"declined"`
	TimedOut       int64   `json:"timed_out"`
	CompletionRate float64 `json:"completion_rate"`
}

type report struct {
	StartedAt  time.Time             `json:"started_at"`
	Elapsed    float64               `json:"elapsed_seconds"`
	Throughput float64               `json:"scenarios_per_second"`
	Scenarios  callReport            `json:"scenarios"`
	RPC        map[string]callReport `json:"rpc"`
	Checkout   *checkoutReport       `json:"checkout,omitempty"`
}

type callStats struct {
	failed    int64
	codes     map[codes.Code]int64
	latencies []time.Duration
}

func (s *callStats) report() callReport {
	out := callReport{
		Calls:   int64(len(s.latencies)),
		Failed:  s.failed,
		Codes:   make(map[string]int64, len(s.codes)),
		Latency: summarize(s.latencies),
	}
	out.FailureRate = ratio(out.Failed, out.Calls)
	for code, n := range s.codes {
		out.Codes[code.String()] = n
	}
	return out
}

// collector собирает результаты всех воркеров.
type collector struct {
	mu       sync.Mutex
	calls    map[string]*callStats
	checkout checkoutReport
	outcomes int64
}

func newCollector() *collector {
	return &collector{calls: make(map[string]*callStats)}
}

func (c *collector) record(method string, latency time.Duration, code codes.Code) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.calls[method]
	if stats == nil {
		stats = &callStats{codes: make(map[codes.Code]int64)}
		c.calls[method] = stats
	}
	if code != codes.OK {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, latency)
}

func (c *collector) recordOutcome(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch outcome {
	case outcomeCompleted:
		c.checkout.Completed++
	case outcomeDeclined:
		c.checkout.Declined++
	case outcomeTimeout:
		c.checkout.TimedOut++
	default:
		return
	}
	c.outcomes++
}

func (c *collector) snapshot(method string) (callReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.calls[method]
	if !ok {
		return callReport{}, false
	}
	return stats.report(), true
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := report{
		StartedAt: startedAt.UTC(),
		Elapsed:   elapsed.Seconds(),
		RPC:       make(map[string]callReport, len(c.calls)),
	}
	for method, stats := range c.calls {
		if method == scenarioMetric {
			out.Scenarios = stats.report()
			continue
		}
		out.RPC[method] = stats.report()
	}
	if elapsed > 0 {
		out.Throughput = float64(out.Scenarios.Calls) / elapsed.Seconds()
	}
	if c.outcomes > 0 {
		checkout := c.checkout
		checkout.CompletionRate = ratio(checkout.Completed, c.outcomes)
		out.Checkout = &checkout
	}
	return out
}

func writeJSONReport(path string, result report) error {
	clean := filepath.Clean(path)
	switch {
	case clean == "." || clean == string(filepath.Separator):
		return errors.New("output path must point to a file")
	case clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)):
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(body, '\n'), 0o600)
}

func printReport(w io.Writer, result report, cfg config) {
	s := result.Scenarios
	_, _ = fmt.Fprintf(w, "pos load test: mode=%s run=%s\n", cfg.mode, runTarget(cfg))
	_, _ = fmt.Fprintf(w, "scenarios=%d ok=%d failed=%d (%.2f%%) in %.2fs, %.2f/s\n",
		s.Calls, s.Succeeded(), s.Failed, s.FailureRate*100, result.Elapsed, result.Throughput)
	if c := result.Checkout; c != nil {
		_, _ = fmt.Fprintf(w, "checkout: completed=%d declined=%d timed_out=%d completion=%.2f%%\n",
			c.Completed, c.Declined, c.TimedOut, c.CompletionRate*100)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintln(tw, "call\tcalls\tfailed\tp50 ms\tp90 ms\tp99 ms\tmax ms\t")
	row := func(name string, r callReport) {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			name, r.Calls, r.Failed, r.Latency.P50, r.Latency.P90, r.Latency.P99, r.Latency.Max)
	}
	row(scenarioMetric, s)
	for _, method := range slices.Sorted(maps.Keys(result.RPC)) {
		row(method, result.RPC[method])
	}
	_ = tw.Flush()
}

// summarize считает перцентили по методу nearest-rank.
func summarize(latencies []time.Duration) latencyMs {
	if len(latencies) == 0 {
		return latencyMs{}
	}
	sorted := slices.Clone(latencies)
	slices.SortFunc(sorted, cmp.Compare[time.Duration])

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return latencyMs{
		Min:  ms(sorted[0]),
		Mean: ms(total / time.Duration(len(sorted))),
		P50:  ms(nearestRank(sorted, 50)),
		P90:  ms(nearestRank(sorted, 90)),
		P99:  ms(nearestRank(sorted, 99)),
		Max:  ms(sorted[len(sorted)-1]),
	}
}

func nearestRank(sorted []time.Duration, p int) time.Duration {
	rank := (p*len(sorted) + 99) / 100
	return sorted[max(rank, 1)-1]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ledger/internal/service/httpapi"
)

const (
	idempotencyHeader = "Idempotency-Key"
	defaultTotalMinor = int64(10000)
	scenarioMethod    = "scenario"
	transportError    = "transport_error"
)

type loadMode string

const (
	modeCreate       loadMode = "create"
	modeCreateSettle loadMode = "create-settle"
	modeCreateCancel loadMode = "create-cancel"
)

type config struct {
	baseURL        string
	total          int
	totalSet       bool
	duration       time.Duration
	concurrency    int
	timeout        time.Duration
	mode           loadMode
	cancelRate     int
	installments   int
	currency       string
	totalMinor     int64
	counterparties []string
	outputPath     string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time               `json:"started_at"`
	DurationSeconds   float64                 `json:"duration_seconds"`
	TotalScenarios    int64                   `json:"total_scenarios"`
	SuccessScenarios  int64                   `json:"success_scenarios"`
	FailedScenarios   int64                   `json:"failed_scenarios"`
	ErrorRate         float64                 `json:"error_rate"`
	RPS               float64                 `json:"rps"`
	ScenarioLatencyMs latencySummary          `json:"scenario_latency_ms"`
	Methods           map[string]methodReport `json:"methods"`
}

type methodStats struct {
	calls     int64
	success   int64
	failed    int64
	codes     map[string]int64
	latencies []float64
}

type collector struct {
	mu      sync.Mutex
	methods map[string]*methodStats
}

func newCollector() *collector {
	return &collector{methods: make(map[string]*methodStats)}
}

// record учитывает вызов; code — HTTP-статус строкой или transport_error.
func (c *collector) record(method string, latency time.Duration, code string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, exists := c.methods[method]
	if !exists {
		stats = &methodStats{codes: make(map[string]int64)}
		c.methods[method] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.codes[code]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Methods:         make(map[string]methodReport, len(c.methods)),
	}

	if scenario := c.methods[scenarioMethod]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.methods {
		codes := make(map[string]int64, len(stats.codes))
		for code, count := range stats.codes {
			codes[code] = count
		}
		result.Methods[name] = methodReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Codes:     codes,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}
	return result
}

func parseConfig(fs *flag.FlagSet, args []string) (config, error) {
	var (
		cfg            config
		modeValue      string
		amountValue    string
		counterparties string
	)

	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "ledger-service base URL")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-settle | create-cancel")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "share of create-settle scenarios cancelled instead of settled, percent (0..100)")
	fs.IntVar(&cfg.installments, "installments", 2, "settlements per obligation in create-settle mode")
	fs.StringVar(&cfg.currency, "currency", "USD", "obligation currency")
	fs.StringVar(&amountValue, "amount", "", "obligation total as decimal, e.g. 100.00 (default 10000 minor units)")
	fs.StringVar(&counterparties, "counterparties", "load-1", "counterparty refs used round-robin, comma-separated")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	cfg.currency = strings.ToUpper(strings.TrimSpace(cfg.currency))
	if cfg.currency == "" {
		return cfg, errors.New("currency is required")
	}
	cfg.totalMinor = defaultTotalMinor
	if strings.TrimSpace(amountValue) != "" {
		if cfg.totalMinor, err = httpapi.ParseAmount(amountValue, cfg.currency); err != nil {
			return cfg, fmt.Errorf("parse amount: %w", err)
		}
	}
	for _, ref := range strings.Split(counterparties, ",") {
		if ref = strings.TrimSpace(ref); ref != "" {
			cfg.counterparties = append(cfg.counterparties, ref)
		}
	}

	switch {
	case strings.TrimSpace(cfg.baseURL) == "":
		return cfg, errors.New("url is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.totalMinor <= 0:
		return cfg, errors.New("amount must be > 0")
	case cfg.cancelRate < 0 || cfg.cancelRate > 100:
		return cfg, errors.New("cancel-rate must be between 0 and 100")
	case cfg.installments <= 0 || int64(cfg.installments) > cfg.totalMinor:
		return cfg, errors.New("installments must be between 1 and the amount in minor units")
	case len(cfg.counterparties) == 0:
		return cfg, errors.New("at least one counterparty is required")
	}
	cfg.baseURL = strings.TrimRight(cfg.baseURL, "/")
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateSettle, modeCreateCancel:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := newLedgerClient(cfg.baseURL, &http.Client{Timeout: cfg.timeout})
	result := run(context.Background(), cfg, client)

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

// run прогоняет сценарии пулом воркеров и собирает отчёт.
func run(ctx context.Context, cfg config, client *ledgerClient) report {
	startedAt := time.Now()
	runID := uuid.NewString()
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var (
		failures int64
		wg       sync.WaitGroup
	)
	for range cfg.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				if err := runScenario(ctx, client, cfg, id, runID, col); err != nil {
					atomic.AddInt64(&failures, 1)
				}
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	result := col.buildReport(startedAt, time.Since(startedAt))
	if result.FailedScenarios == 0 && failures > 0 {
		result.FailedScenarios = failures
		result.ErrorRate = ratio(result.FailedScenarios, result.TotalScenarios)
	}
	return result
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

func runScenario(ctx context.Context, client *ledgerClient, cfg config, index int, runID string, col *collector) (err error) {
	started := time.Now()
	code := strconv.Itoa(http.StatusOK)
	defer func() {
		if err != nil {
			code = errorCode(err)
		}
		col.record(scenarioMethod, time.Since(started), code, err == nil)
	}()

	created, err := client.createObligation(ctx, createBody{
		Kind:            "invoice",
		CounterpartyRef: cfg.counterparties[index%len(cfg.counterparties)],
		Currency:        cfg.currency,
		Total:           httpapi.FormatAmount(cfg.totalMinor, cfg.currency),
	}, fmt.Sprintf("lt-create-%s-%d", runID, index), col)
	if err != nil {
		return err
	}
	if created.ID == "" {
		return errors.New("create response returned empty obligation id")
	}

	switch {
	case cfg.mode == modeCreate:
		return nil
	case cfg.mode == modeCreateCancel || shouldCancelScenario(index, cfg.cancelRate):
		return client.cancelObligation(ctx, created.ID, fmt.Sprintf("lt-cancel-%s-%d", runID, index), col)
	}

	for i, part := range splitInstallments(cfg.totalMinor, cfg.installments) {
		key := fmt.Sprintf("lt-settle-%s-%d-%d", runID, index, i)
		status, err := client.recordSettlement(ctx, created.ID, httpapi.FormatAmount(part, cfg.currency), key, col)
		if err != nil {
			return err
		}
		if i == cfg.installments-1 && status != "settled" {
			return fmt.Errorf("obligation %s ended in status %s after full settlement", created.ID, status)
		}
	}
	return nil
}

// splitInstallments делит сумму на n частей; остаток уходит в последнюю.
func splitInstallments(total int64, n int) []int64 {
	parts := make([]int64, n)
	base := total / int64(n)
	for i := range parts {
		parts[i] = base
	}
	parts[n-1] += total - base*int64(n)
	return parts
}

func shouldCancelScenario(index, cancelRate int) bool {
	if cancelRate <= 0 {
		return false
	}
	if cancelRate >= 100 {
		return true
	}
	return index%100 < cancelRate
}

// statusError — ответ API с кодом вне 2xx.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, e.body)
}

func errorCode(err error) string {
	var se *statusError
	if errors.As(err, &se) {
		return strconv.Itoa(se.status)
	}
	return transportError
}

type ledgerClient struct {
	baseURL string
	http    *http.Client
}

func newLedgerClient(baseURL string, client *http.Client) *ledgerClient {
	return &ledgerClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

type createBody struct {
	Kind            string `json:"kind"`
	CounterpartyRef string `json:"counterparty_ref"`
	Currency        string `json:"currency"`
	Total           string `json:"total"`
}

type obligationBody struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (c *ledgerClient) createObligation(ctx context.Context, body createBody, key string, col *collector) (obligationBody, error) {
	var out obligationBody
	err := c.do(ctx, "CreateObligation", http.MethodPost, "/api/v1/obligations", key, body, &out, col)
	return out, err
}

func (c *ledgerClient) recordSettlement(ctx context.Context, id, amount, key string, col *collector) (string, error) {
	var out struct {
		Obligation obligationBody `json:"obligation"`
	}
	err := c.do(ctx, "RecordSettlement", http.MethodPost, "/api/v1/obligations/"+id+"/settlements", key,
		map[string]string{"amount": amount, "method": "bank_transfer", "recorded_by": "loadtest"}, &out, col)
	return out.Obligation.Status, err
}

func (c *ledgerClient) cancelObligation(ctx context.Context, id, key string, col *collector) error {
	return c.do(ctx, "CancelObligation", http.MethodPost, "/api/v1/obligations/"+id+"/cancel", key,
		map[string]string{"reason": "load-cancel"}, nil, col)
}

func (c *ledgerClient) do(ctx context.Context, method, verb, path, key string, body, out any, col *collector) (err error) {
	started := time.Now()
	code := transportError
	defer func() {
		col.record(method, time.Since(started), code, err == nil)
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, verb, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyHeader, key)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	code = strconv.Itoa(resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(w io.Writer, result report, cfg config) {
	fmt.Fprintln(w, "Load test summary")
	fmt.Fprintf(w, "mode=%s run=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode, runTarget(cfg), result.TotalScenarios, result.SuccessScenarios, result.FailedScenarios, result.ErrorRate)
	fmt.Fprintf(w, "duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Fprintf(w, "scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	names := make([]string, 0, len(result.Methods))
	for name := range result.Methods {
		if name != scenarioMethod {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Methods[name]
		fmt.Fprintf(w, "%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
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

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/service/httpapi"
	"github.com/vladislavdragonenkov/ledger/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ledger/internal/service/ledger"
	"github.com/vladislavdragonenkov/ledger/internal/storage/memory"
)

func parseArgs(t *testing.T, args ...string) (config, error) {
	t.Helper()
	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return parseConfig(fs, args)
}

// newLedgerServer поднимает настоящий HTTP API поверх in-memory хранилища.
func newLedgerServer(t *testing.T) (*httptest.Server, *memory.LedgerStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	quiet := log.New()
	quiet.SetOutput(io.Discard)
	logger := quiet.WithField("component", "loadtest-server")

	store := memory.NewLedgerStore()
	service := ledger.NewService(store, ledger.WithLogger(logger))
	guard := idempotency.NewGuard(memory.NewIdempotencyRepository(), idempotency.WithGuardLogger(logger))
	api := httpapi.New(service, httpapi.WithLogger(logger), httpapi.WithIdempotency(guard))

	server := httptest.NewServer(api.Router())
	t.Cleanup(server.Close)
	return server, store
}

func TestParseMode(t *testing.T) {
	for _, mode := range []loadMode{modeCreate, modeCreateSettle, modeCreateCancel} {
		got, err := parseMode(" " + string(mode) + " ")
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}
	_, err := parseMode("create-pay")
	require.ErrorContains(t, err, "unsupported mode")
}

func TestParseConfig(t *testing.T) {
	t.Run("count mode", func(t *testing.T) {
		cfg, err := parseArgs(t,
			"-url=http://ledger:8080/",
			"-mode=create-settle",
			"-total=12",
			"-concurrency=3",
			"-timeout=2s",
			"-cancel-rate=10",
			"-installments=3",
			"-currency=jpy",
			"-amount=1500",
			"-counterparties=user-1, trader-1",
			"-output=/tmp/out.json",
		)
		require.NoError(t, err)
		assert.True(t, cfg.totalSet)
		assert.Equal(t, "http://ledger:8080", cfg.baseURL)
		assert.Equal(t, modeCreateSettle, cfg.mode)
		assert.Equal(t, 12, cfg.total)
		assert.Equal(t, 3, cfg.concurrency)
		assert.Equal(t, 2*time.Second, cfg.timeout)
		assert.Equal(t, "JPY", cfg.currency)
		assert.Equal(t, int64(1500), cfg.totalMinor)
		assert.Equal(t, []string{"user-1", "trader-1"}, cfg.counterparties)
	})

	t.Run("duration mode", func(t *testing.T) {
		cfg, err := parseArgs(t, "-duration=3s", "-concurrency=2")
		require.NoError(t, err)
		assert.Equal(t, 3*time.Second, cfg.duration)
		assert.False(t, cfg.totalSet)
		assert.Equal(t, defaultTotalMinor, cfg.totalMinor)
	})

	t.Run("validation errors", func(t *testing.T) {
		tests := []struct {
			name    string
			args    []string
			wantErr string
		}{
			{"invalid duration", []string{"-duration=bad"}, "invalid value"},
			{"negative duration", []string{"-duration=-1s"}, "duration must be >= 0"},
			{"invalid cancel rate", []string{"-cancel-rate=101"}, "cancel-rate must be between 0 and 100"},
			{"empty total", []string{"-total=0"}, "total must be > 0"},
			{"explicit zero total with duration", []string{"-duration=1s", "-total=0"}, "explicitly set"},
			{"zero concurrency", []string{"-concurrency=0"}, "concurrency must be > 0"},
			{"precise amount", []string{"-amount=1.001"}, "parse amount"},
			{"negative amount", []string{"-amount=-5"}, "amount must be > 0"},
			{"too many installments", []string{"-amount=0.02", "-installments=3"}, "installments"},
			{"no counterparties", []string{"-counterparties= , "}, "counterparty"},
			{"no currency", []string{"-currency= "}, "currency is required"},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := parseArgs(t, tc.args...)
				require.ErrorContains(t, err, tc.wantErr)
			})
		}
	})
}

func TestDispatchJobs(t *testing.T) {
	t.Run("count", func(t *testing.T) {
		jobs := make(chan int, 5)
		dispatchJobs(jobs, config{total: 5})
		var got []int
		for id := range jobs {
			got = append(got, id)
		}
		assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
	})

	t.Run("duration capped by total", func(t *testing.T) {
		jobs := make(chan int, 10)
		dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})
		count := 0
		for range jobs {
			count++
		}
		assert.Equal(t, 3, count)
	})

	t.Run("duration", func(t *testing.T) {
		jobs := make(chan int)
		done := make(chan struct{})
		go func() {
			dispatchJobs(jobs, config{duration: 30 * time.Millisecond})
			close(done)
		}()
		for range jobs {
		}
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("dispatchJobs did not stop after duration")
		}
	})
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record(scenarioMethod, 10*time.Millisecond, "200", true)
	c.record(scenarioMethod, 20*time.Millisecond, "409", false)
	c.record("CreateObligation", 15*time.Millisecond, "201", true)

	r := c.buildReport(time.Now(), 2*time.Second)
	assert.Equal(t, int64(2), r.TotalScenarios)
	assert.Equal(t, int64(1), r.FailedScenarios)
	assert.Equal(t, 0.5, r.ErrorRate)
	assert.Equal(t, 1.0, r.RPS)
	assert.Equal(t, int64(1), r.Methods[scenarioMethod].Codes["409"])
	assert.Contains(t, r.Methods, "CreateObligation")
}

func TestUtilityFunctions(t *testing.T) {
	assert.Equal(t, 0.25, ratio(1, 4))
	assert.Zero(t, ratio(1, 0))

	values := []float64{10, 20, 30, 40}
	summary := buildLatencySummary(values)
	assert.Equal(t, 10.0, summary.Min)
	assert.Equal(t, 40.0, summary.Max)
	assert.Equal(t, 25.0, summary.P50)
	assert.Equal(t, latencySummary{}, buildLatencySummary(nil))

	assert.Equal(t, "count:50", runTarget(config{total: 50}))
	assert.Equal(t, "duration:2s", runTarget(config{duration: 2 * time.Second}))
	assert.Equal(t, "duration:2s,max-total:10", runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}))

	assert.Equal(t, []int64{3333, 3333, 3334}, splitInstallments(10000, 3))
	assert.Equal(t, []int64{7}, splitInstallments(7, 1))

	assert.False(t, shouldCancelScenario(5, 0))
	assert.True(t, shouldCancelScenario(5, 100))
	assert.True(t, shouldCancelScenario(105, 10))
	assert.False(t, shouldCancelScenario(15, 10))

	assert.Equal(t, "422", errorCode(&statusError{status: 422}))
	assert.Equal(t, transportError, errorCode(errors.New("dial tcp: refused")))
}

func TestWriteJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, writeJSONReport(path, report{TotalScenarios: 2, SuccessScenarios: 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, int64(2), decoded.SuccessScenarios)

	require.Error(t, writeJSONReport(".", report{}))
	require.Error(t, writeJSONReport("../escape.json", report{}))
}

func TestRun_AgainstLedgerAPI(t *testing.T) {
	tests := []struct {
		name       string
		mode       loadMode
		cancelRate int
		wantStatus domain.ObligationStatus
		wantCalls  map[string]int64
	}{
		{"create", modeCreate, 0, domain.ObligationStatusPending, map[string]int64{"CreateObligation": 4}},
		{"create-settle", modeCreateSettle, 0, domain.ObligationStatusSettled, map[string]int64{"CreateObligation": 4, "RecordSettlement": 8}},
		{"create-cancel", modeCreateCancel, 0, domain.ObligationStatusCancelled, map[string]int64{"CreateObligation": 4, "CancelObligation": 4}},
		{"settle with cancel rate", modeCreateSettle, 100, domain.ObligationStatusCancelled, map[string]int64{"CreateObligation": 4, "CancelObligation": 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, store := newLedgerServer(t)
			cfg := config{
				baseURL:        server.URL,
				total:          4,
				concurrency:    2,
				timeout:        time.Second,
				mode:           tt.mode,
				cancelRate:     tt.cancelRate,
				installments:   2,
				currency:       "USD",
				totalMinor:     10001,
				counterparties: []string{"user-1", "trader-1"},
			}

			result := run(context.Background(), cfg, newLedgerClient(server.URL, server.Client()))
			assert.Equal(t, int64(4), result.SuccessScenarios)
			assert.Zero(t, result.FailedScenarios)
			for method, calls := range tt.wantCalls {
				assert.Equal(t, calls, result.Methods[method].Calls, method)
			}

			for _, ref := range cfg.counterparties {
				items, err := store.ListByCounterparty(context.Background(), ref, domain.ObligationFilter{})
				require.NoError(t, err)
				require.Len(t, items, 2)
				for _, o := range items {
					assert.Equal(t, tt.wantStatus, o.Status)
					assert.Equal(t, int64(10001), o.TotalMinor)
				}
			}
		})
	}
}

func TestRun_RecordsHTTPFailures(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.NotEmpty(t, r.Header.Get(idempotencyHeader))
		w.Header().Set("Content-Type", httpapi.ContentTypeProblemJSON)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"code":"sequence_exhausted"}`))
	}))
	t.Cleanup(server.Close)

	cfg := config{baseURL: server.URL, total: 3, concurrency: 1, timeout: time.Second, mode: modeCreate, installments: 1, currency: "USD", totalMinor: 100, counterparties: []string{"user-1"}}
	result := run(context.Background(), cfg, newLedgerClient(server.URL, server.Client()))

	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, int64(3), result.FailedScenarios)
	assert.Equal(t, int64(3), result.Methods["CreateObligation"].Codes["503"])
	assert.Equal(t, int64(3), result.Methods[scenarioMethod].Codes["503"])
}

func TestRun_TransportError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	cfg := config{baseURL: url, total: 1, concurrency: 1, timeout: 200 * time.Millisecond, mode: modeCreate, installments: 1, currency: "USD", totalMinor: 100, counterparties: []string{"user-1"}}
	result := run(context.Background(), cfg, newLedgerClient(url, &http.Client{Timeout: cfg.timeout}))

	assert.Equal(t, int64(1), result.FailedScenarios)
	assert.Equal(t, int64(1), result.Methods["CreateObligation"].Codes[transportError])
}

func TestPrintReport(t *testing.T) {
	var out bytes.Buffer
	printReport(&out, report{
		TotalScenarios:   2,
		SuccessScenarios: 2,
		Methods: map[string]methodReport{
			scenarioMethod:     {Calls: 2},
			"RecordSettlement": {Calls: 4, Success: 4},
			"CreateObligation": {Calls: 2, Success: 2},
		},
	}, config{mode: modeCreateSettle, total: 2})

	text := out.String()
	assert.Contains(t, text, "mode=create-settle run=count:2")
	assert.NotContains(t, text, "scenario: calls")
	assert.Less(t, strings.Index(text, "CreateObligation:"), strings.Index(text, "RecordSettlement:"))
}

package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/version"
)

// Status — состояние компонента леджера.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

var statusRank = map[Status]int{
	StatusHealthy:   0,
	StatusDegraded:  1,
	StatusUnhealthy: 2,
}

// Check — результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Response — тело /healthz.
type Response struct {
	Status        Status           `json:"status"`
	Service       string           `json:"service"`
	Version       string           `json:"version,omitempty"`
	Commit        string           `json:"commit,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Checks        map[string]Check `json:"checks,omitempty"`
}

// ReadinessResponse — тело /readyz. Degraded-компоненты не снимают готовность:
// леджер принимает погашения, даже когда outbox отстаёт.
type ReadinessResponse struct {
	Ready    bool     `json:"ready"`
	Failing  []string `json:"failing,omitempty"`
	Degraded []string `json:"degraded,omitempty"`
}

// Checker — проверка одного компонента.
type Checker interface {
	Check() Check
}

// Option настраивает Handler.
type Option func(*Handler)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// Handler отдаёт /healthz и /readyz по зарегистрированным проверкам.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	build    version.Build
	now      func() time.Time
	started  time.Time
}

// NewHandler создаёт handler для бинарника build.
func NewHandler(build version.Build, options ...Option) *Handler {
	h := &Handler{
		checkers: make(map[string]Checker),
		build:    build,
		now:      time.Now,
	}
	for _, option := range options {
		option(h)
	}
	h.started = h.now()
	return h
}

// RegisterChecker регистрирует проверку под именем name; повторная регистрация заменяет её.
func (h *Handler) RegisterChecker(name string, checker Checker) {
	if checker == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers[name] = checker
}

// run выполняет проверки в порядке имён и возвращает худший статус.
func (h *Handler) run() (Status, map[string]Check) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checkers))
	checkers := make(map[string]Checker, len(h.checkers))
	for name, checker := range h.checkers {
		names = append(names, name)
		checkers[name] = checker
	}
	h.mu.RUnlock()
	sort.Strings(names)

	overall := StatusHealthy
	checks := make(map[string]Check, len(names))
	for _, name := range names {
		check := checkers[name].Check()
		if check.Name == "" {
			check.Name = name
		}
		if statusRank[check.Status] > statusRank[overall] {
			overall = check.Status
		}
		checks[name] = check
	}
	return overall, checks
}

// ServeHTTP отвечает 503 только при unhealthy; degraded отдаётся с 200.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	overall, checks := h.run()
	now := h.now()

	code := http.StatusOK
	if overall == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, Response{
		Status:        overall,
		Service:       h.build.Service,
		Version:       h.build.Version,
		Commit:        h.build.Commit,
		Timestamp:     now.UTC(),
		UptimeSeconds: int64(now.Sub(h.started).Seconds()),
		Checks:        checks,
	})
}

// ReadinessHandler снимает готовность, если хотя бы одна проверка unhealthy.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	_, checks := h.run()

	resp := ReadinessResponse{Ready: true}
	for name, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			resp.Ready = false
			resp.Failing = append(resp.Failing, name)
		case StatusDegraded:
			resp.Degraded = append(resp.Degraded, name)
		}
	}
	sort.Strings(resp.Failing)
	sort.Strings(resp.Degraded)

	code := http.StatusOK
	if !resp.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// LivenessHandler всегда отвечает 200, пока процесс обслуживает HTTP.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

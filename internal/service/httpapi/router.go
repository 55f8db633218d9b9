package httpapi

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/service/idempotency"
	"github.com/vladislavdragonenkov/ledger/internal/service/ledger"
	"github.com/vladislavdragonenkov/ledger/internal/service/sweeper"
)

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "ledger_http_request_duration_seconds",
	Help:    "Duration of ledger HTTP API requests.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route", "status"})

// Sweeper — ручной запуск свипа просрочки.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (sweeper.Report, error)
}

// API — HTTP-транспорт поверх сервиса леджера.
type API struct {
	ledger    *ledger.Service
	sweeper   Sweeper
	guard     *idempotency.Guard
	responder *Responder
	logger    *log.Entry
	now       func() time.Time
}

// Option настраивает API.
type Option func(*API)

// WithSweeper включает POST /api/v1/admin/sweep.
func WithSweeper(s Sweeper) Option {
	return func(api *API) {
		api.sweeper = s
	}
}

// WithIdempotency включает обработку заголовка Idempotency-Key.
func WithIdempotency(guard *idempotency.Guard) Option {
	return func(api *API) {
		api.guard = guard
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(api *API) {
		if logger != nil {
			api.logger = logger
		}
	}
}

// WithClock подменяет источник времени для свипа.
func WithClock(now func() time.Time) Option {
	return func(api *API) {
		if now != nil {
			api.now = now
		}
	}
}

// New создаёт API.
func New(service *ledger.Service, options ...Option) *API {
	api := &API{
		ledger: service,
		logger: log.WithField("component", "http-api"),
		now:    time.Now,
	}
	for _, option := range options {
		option(api)
	}
	api.responder = NewResponder(api.logger, MapLedgerError)
	return api
}

// Router собирает gin.Engine со всеми маршрутами леджера.
func (api *API) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), api.accessLog())

	v1 := router.Group("/api/v1")
	mutating := v1.Group("", api.idempotent())

	mutating.POST("/obligations", api.createObligation)
	v1.GET("/obligations/:id", api.getObligation)
	v1.GET("/obligations/:id/snapshot", api.getSnapshot)
	mutating.PUT("/obligations/:id/line-items", api.updateLineItems)
	mutating.POST("/obligations/:id/cancel", api.cancelObligation)
	mutating.POST("/obligations/:id/settlements", api.recordSettlement)
	v1.GET("/obligations/:id/settlements", api.listSettlements)
	v1.GET("/counterparties/:ref/obligations", api.listByCounterparty)
	mutating.POST("/sequences/:kind/next", api.nextNumber)

	mutating.POST("/accounts", api.openAccount)
	v1.GET("/accounts/:id", api.getAccount)
	v1.GET("/accounts/:id/standing", api.getStanding)
	mutating.POST("/accounts/:id/charge", api.charge)
	mutating.POST("/accounts/:id/release", api.release)
	mutating.PUT("/accounts/:id/credit-limit", api.setCreditLimit)
	mutating.PUT("/accounts/:id/status", api.setAccountStatus)

	v1.GET("/reports/overdue", api.listOverdue)
	v1.GET("/reports/statistics", api.statistics)
	v1.GET("/reports/aging", api.aging)
	v1.GET("/reports/revenue", api.revenue)
	v1.GET("/reports/standings", api.standings)
	v1.GET("/reports/overview", api.overview)

	if api.sweeper != nil {
		v1.POST("/admin/sweep", api.sweep)
	}

	return router
}

func (api *API) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(started)
		httpRequestDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())

		entry := api.logger.WithFields(log.Fields{
			"method":      c.Request.Method,
			"route":       route,
			"status":      status,
			"duration_ms": elapsed.Milliseconds(),
		})
		if status >= 500 {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	}
}

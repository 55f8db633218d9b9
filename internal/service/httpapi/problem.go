package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/service/directory"
	"github.com/vladislavdragonenkov/ledger/internal/service/idempotency"
)

// ContentTypeProblemJSON — media type ответов RFC 7807.
const ContentTypeProblemJSON = "application/problem+json"

// ProblemDetail — ответ об ошибке в формате RFC 7807 с расширением code.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Code — стабильный машинный код ошибки.
	Code string `json:"code"`
}

func (p ProblemDetail) Error() string {
	if p.Detail != "" {
		return fmt.Sprintf("%s: %s", p.Title, p.Detail)
	}
	return p.Title
}

// WithDetail возвращает копию с пояснением.
func (p ProblemDetail) WithDetail(detail string) ProblemDetail {
	p.Detail = detail
	return p
}

func problem(status int, code, title string) ProblemDetail {
	return ProblemDetail{
		Type:   "/problems/" + code,
		Title:  title,
		Status: status,
		Code:   code,
	}
}

var (
	problemBadRequest = problem(http.StatusBadRequest, "bad_request", "Bad Request")
	problemInternal   = problem(http.StatusInternalServerError, "internal_error", "Internal Server Error")
)

type errorRule struct {
	target  error
	problem ProblemDetail
}

// ledgerErrorRules сопоставляет доменные ошибки со статусом и кодом.
// Порядок важен: первое совпадение по errors.Is выигрывает.
var ledgerErrorRules = []errorRule{
	{domain.ErrObligationNotFound, problem(http.StatusNotFound, "obligation_not_found", "Obligation Not Found")},
	{domain.ErrAccountNotFound, problem(http.StatusNotFound, "account_not_found", "Credit Account Not Found")},
	{domain.ErrSettlementNotFound, problem(http.StatusNotFound, "settlement_not_found", "Settlement Not Found")},

	{domain.ErrObligationLocked, problem(http.StatusConflict, "obligation_locked", "Obligation Locked")},
	{domain.ErrHasSettlements, problem(http.StatusConflict, "has_settlements", "Obligation Has Settlements")},
	{domain.ErrInvalidTransition, problem(http.StatusConflict, "invalid_transition", "Invalid Status Transition")},
	{domain.ErrAccountInactive, problem(http.StatusConflict, "account_inactive", "Credit Account Inactive")},
	{domain.ErrVersionConflict, problem(http.StatusConflict, "version_conflict", "Concurrent Modification")},
	{idempotency.ErrRequestInProgress, problem(http.StatusConflict, "request_in_progress", "Request In Progress")},

	{domain.ErrOversettlementRejected, problem(http.StatusUnprocessableEntity, "oversettlement_rejected", "Oversettlement Rejected")},
	{domain.ErrCreditLimitExceeded, problem(http.StatusUnprocessableEntity, "credit_limit_exceeded", "Credit Limit Exceeded")},
	{domain.ErrCurrencyMismatch, problem(http.StatusUnprocessableEntity, "currency_mismatch", "Currency Mismatch")},
	{domain.ErrCounterpartyUnknown, problem(http.StatusUnprocessableEntity, "counterparty_unknown", "Unknown Counterparty")},
	{domain.ErrIdempotencyHashMismatch, problem(http.StatusUnprocessableEntity, "idempotency_key_reused", "Idempotency Key Reused")},

	{domain.ErrSequenceExhausted, problem(http.StatusServiceUnavailable, "sequence_exhausted", "Sequence Exhausted")},
	{directory.ErrUnavailable, problem(http.StatusServiceUnavailable, "directory_unavailable", "Counterparty Directory Unavailable")},

	{domain.ErrInvalidAmount, problem(http.StatusBadRequest, "invalid_amount", "Invalid Amount")},
	{domain.ErrAmountMismatch, problem(http.StatusBadRequest, "amount_mismatch", "Amount Mismatch")},
	{domain.ErrAccountNotAllowed, problem(http.StatusBadRequest, "account_not_allowed", "Account Not Allowed")},
	{domain.ErrIdempotencyKeyRequired, problem(http.StatusBadRequest, "idempotency_key_required", "Idempotency Key Required")},
}

// MapLedgerError переводит ошибку леджера в ProblemDetail.
func MapLedgerError(err error) (ProblemDetail, bool) {
	var p ProblemDetail
	if errors.As(err, &p) {
		return p, true
	}
	for _, rule := range ledgerErrorRules {
		if errors.Is(err, rule.target) {
			return rule.problem.WithDetail(err.Error()), true
		}
	}
	if domain.IsValidation(err) {
		return problem(http.StatusBadRequest, "validation_error", "Validation Error").WithDetail(err.Error()), true
	}
	return ProblemDetail{}, false
}

// ErrorMapper переводит ошибку в ProblemDetail.
type ErrorMapper func(err error) (ProblemDetail, bool)

// Responder пишет ответы об ошибках, перебирая цепочку мапперов.
type Responder struct {
	mappers []ErrorMapper
	logger  *log.Entry
}

// NewResponder создаёт Responder с мапперами в порядке приоритета.
func NewResponder(logger *log.Entry, mappers ...ErrorMapper) *Responder {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Responder{mappers: mappers, logger: logger}
}

// Respond отправляет ProblemDetail.
func (r *Responder) Respond(c *gin.Context, p ProblemDetail) {
	if p.Instance == "" {
		p.Instance = c.Request.URL.Path
	}
	c.Header("Content-Type", ContentTypeProblemJSON)
	c.JSON(p.Status, p)
}

// RespondError отправляет ошибку; неизвестные ошибки логируются и отдаются как 500 без деталей.
func (r *Responder) RespondError(c *gin.Context, err error) {
	for _, mapper := range r.mappers {
		if p, ok := mapper(err); ok {
			r.Respond(c, p)
			return
		}
	}
	r.logger.WithError(err).WithFields(log.Fields{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
	}).Error("unhandled ledger error")
	r.Respond(c, problemInternal)
}

// BadRequest отправляет 400 с пояснением.
func (r *Responder) BadRequest(c *gin.Context, detail string) {
	r.Respond(c, problemBadRequest.WithDetail(detail))
}

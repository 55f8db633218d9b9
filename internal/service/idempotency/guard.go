package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

const defaultKeyTTL = 24 * time.Hour

// ErrRequestInProgress — запрос с тем же ключом ещё выполняется.
var ErrRequestInProgress = errors.New("request with the same idempotency key is already processing")

// Response — ответ мутирующего запроса, который сохраняется для повторов.
type Response struct {
	Status int
	Body   []byte
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithTTL задаёт срок жизни ключа.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithGuardLogger задаёт logger для Guard.
func WithGuardLogger(logger *log.Entry) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardClock подменяет источник времени.
func WithGuardClock(clock func() time.Time) GuardOption {
	return func(g *Guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// Guard выполняет мутацию не более одного раза на ключ идемпотентности
// и отдаёт сохранённый ответ на повторы.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
	clock  func() time.Time
}

// NewGuard создаёт Guard поверх хранилища ключей.
func NewGuard(repo domain.IdempotencyRepository, options ...GuardOption) *Guard {
	g := &Guard{
		repo:   repo,
		ttl:    defaultKeyTTL,
		logger: log.WithField("component", "idempotency-guard"),
		clock:  time.Now,
	}
	for _, option := range options {
		option(g)
	}
	return g
}

// RequestHash строит отпечаток запроса из операции и тела.
func RequestHash(operation string, body []byte) string {
	payload := make([]byte, 0, len(operation)+1+len(body))
	payload = append(payload, operation...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Execute занимает ключ и вызывает handler. Если ключ уже занят тем же запросом,
// возвращается сохранённый ответ и replayed=true.
// Сохраняются и ошибки: повтор запроса, получившего отказ, получает тот же отказ.
func (g *Guard) Execute(key, requestHash string, handler func() Response) (resp Response, replayed bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Response{}, false, domain.ErrIdempotencyKeyRequired
	}

	now := g.clock().UTC()
	record, err := g.repo.CreateProcessing(key, requestHash, now, now.Add(g.ttl))
	if err != nil {
		return g.replay(record, err)
	}

	resp = handler()
	if resp.Status >= 200 && resp.Status < 300 {
		err = g.repo.MarkDone(key, resp.Body, resp.Status)
	} else {
		err = g.repo.MarkFailed(key, resp.Body, resp.Status)
	}
	if err != nil {
		g.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
	}
	return resp, false, nil
}

func (g *Guard) replay(record domain.IdempotencyRecord, createErr error) (Response, bool, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, false, domain.ErrIdempotencyHashMismatch
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if record.Replayable() {
			return Response{Status: record.HTTPStatus, Body: record.ResponseBody}, true, nil
		}
		if record.Status == domain.IdempotencyStatusProcessing {
			return Response{}, false, ErrRequestInProgress
		}
		return Response{}, false, domain.ErrIdempotencyKeyAlreadyExists
	default:
		return Response{}, false, fmt.Errorf("claim idempotency key: %w", createErr)
	}
}

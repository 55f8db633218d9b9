package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/service/directory"
	"github.com/vladislavdragonenkov/ledger/internal/service/idempotency"
)

func TestMapLedgerError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrObligationNotFound, http.StatusNotFound, "obligation_not_found"},
		{fmt.Errorf("load: %w", domain.ErrAccountNotFound), http.StatusNotFound, "account_not_found"},
		{domain.ErrObligationLocked, http.StatusConflict, "obligation_locked"},
		{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{idempotency.ErrRequestInProgress, http.StatusConflict, "request_in_progress"},
		{domain.ErrOversettlementRejected, http.StatusUnprocessableEntity, "oversettlement_rejected"},
		{domain.ErrCreditLimitExceeded, http.StatusUnprocessableEntity, "credit_limit_exceeded"},
		{domain.ErrIdempotencyHashMismatch, http.StatusUnprocessableEntity, "idempotency_key_reused"},
		{domain.ErrSequenceExhausted, http.StatusServiceUnavailable, "sequence_exhausted"},
		{directory.ErrUnavailable, http.StatusServiceUnavailable, "directory_unavailable"},
		{domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{domain.ErrAccountNotAllowed, http.StatusBadRequest, "account_not_allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			p, ok := MapLedgerError(tt.err)
			require.True(t, ok)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.code, p.Code)
			assert.Equal(t, "/problems/"+tt.code, p.Type)
			assert.Equal(t, tt.err.Error(), p.Detail)
		})
	}
}

func TestMapLedgerError_Unknown(t *testing.T) {
	_, ok := MapLedgerError(errors.New("disk on fire"))
	assert.False(t, ok)
}

func TestMapLedgerError_PassesProblemThrough(t *testing.T) {
	want := problemBadRequest.WithDetail("limit is broken")
	p, ok := MapLedgerError(fmt.Errorf("wrap: %w", want))
	require.True(t, ok)
	assert.Equal(t, want, p)
}

package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// POST /api/v1/accounts
func (api *API) openAccount(c *gin.Context) {
	var req openAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.responder.BadRequest(c, err.Error())
		return
	}
	spec := domain.AccountSpec{
		HolderRef:  req.HolderRef,
		HolderKind: domain.HolderKind(strings.TrimSpace(req.HolderKind)),
		Currency:   req.Currency,
	}
	if strings.TrimSpace(req.CreditLimit) != "" {
		limit, err := ParseAmount(req.CreditLimit, req.Currency)
		if err != nil {
			api.responder.RespondError(c, err)
			return
		}
		spec.CreditLimitMinor = limit
	}

	account, err := api.ledger.OpenAccount(c.Request.Context(), spec)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAccountResponse(account))
}

// GET /api/v1/accounts/:id
func (api *API) getAccount(c *gin.Context) {
	account, err := api.ledger.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(account))
}

// GET /api/v1/accounts/:id/standing
func (api *API) getStanding(c *gin.Context) {
	standing, err := api.ledger.GetStanding(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStandingResponse(standing))
}

// POST /api/v1/accounts/:id/charge
func (api *API) charge(c *gin.Context) {
	account, amount, ok := api.accountAmount(c)
	if !ok {
		return
	}
	updated, err := api.ledger.Charge(c.Request.Context(), account.ID, amount)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(updated))
}

// POST /api/v1/accounts/:id/release
func (api *API) release(c *gin.Context) {
	account, amount, ok := api.accountAmount(c)
	if !ok {
		return
	}
	updated, err := api.ledger.Release(c.Request.Context(), account.ID, amount)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(updated))
}

// PUT /api/v1/accounts/:id/credit-limit
func (api *API) setCreditLimit(c *gin.Context) {
	var req creditLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.responder.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	account, err := api.ledger.GetAccount(ctx, c.Param("id"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	limit, err := ParseAmount(req.CreditLimit, account.Currency)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}

	updated, err := api.ledger.SetCreditLimit(ctx, account.ID, limit)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(updated))
}

// PUT /api/v1/accounts/:id/status
func (api *API) setAccountStatus(c *gin.Context) {
	var req accountStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.responder.BadRequest(c, err.Error())
		return
	}
	updated, err := api.ledger.SetAccountStatus(c.Request.Context(), c.Param("id"), domain.AccountStatus(strings.TrimSpace(req.Status)))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAccountResponse(updated))
}

func (api *API) accountAmount(c *gin.Context) (domain.CreditAccount, int64, bool) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.responder.BadRequest(c, err.Error())
		return domain.CreditAccount{}, 0, false
	}
	account, err := api.ledger.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.responder.RespondError(c, err)
		return domain.CreditAccount{}, 0, false
	}
	amount, err := ParseAmount(req.Amount, account.Currency)
	if err != nil {
		api.responder.RespondError(c, err)
		return domain.CreditAccount{}, 0, false
	}
	return account, amount, true
}

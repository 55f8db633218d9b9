package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/service/ledger"
)

const maxListLimit = 1000

// POST /api/v1/obligations
func (api *API) createObligation(c *gin.Context) {
	var req createObligationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.responder.BadRequest(c, err.Error())
		return
	}

	input := ledger.CreateObligationInput{
		Kind:            domain.ObligationKind(strings.TrimSpace(req.Kind)),
		CounterpartyRef: req.CounterpartyRef,
		Currency:        req.Currency,
		DueDate:         req.DueDate,
		AccountID:       req.AccountID,
	}
	if strings.TrimSpace(req.Total) != "" {
		total, err := ParseAmount(req.Total, req.Currency)
		if err != nil {
			api.responder.RespondError(c, err)
			return
		}
		input.TotalMinor = total
	}
	items, err := parseLineItems(req.LineItems, req.Currency)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	input.LineItems = items

	o, err := api.ledger.CreateObligation(c.Request.Context(), input)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toObligationResponse(o))
}

// GET /api/v1/obligations/:id
func (api *API) getObligation(c *gin.Context) {
	o, err := api.ledger.GetObligation(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toObligationResponse(o))
}

// GET /api/v1/obligations/:id/snapshot
func (api *API) getSnapshot(c *gin.Context) {
	snapshot, err := api.ledger.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSnapshotResponse(snapshot))
}

// PUT /api/v1/obligations/:id/line-items
func (api *API) updateLineItems(c *gin.Context) {
	var req updateLineItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.responder.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	current, err := api.ledger.GetObligation(ctx, c.Param("id"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	items, err := parseLineItems(req.LineItems, current.Currency)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}

	o, err := api.ledger.UpdateLineItems(ctx, current.ID, items)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toObligationResponse(o))
}

// POST /api/v1/obligations/:id/cancel
func (api *API) cancelObligation(c *gin.Context) {
	var req cancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			api.responder.BadRequest(c, err.Error())
			return
		}
	}
	o, err := api.ledger.CancelObligation(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toObligationResponse(o))
}

// POST /api/v1/obligations/:id/settlements
func (api *API) recordSettlement(c *gin.Context) {
	var req settlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.responder.BadRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	current, err := api.ledger.GetObligation(ctx, c.Param("id"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	amount, err := ParseAmount(req.Amount, current.Currency)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}

	result, err := api.ledger.RecordSettlement(ctx, domain.SettlementRequest{
		ObligationID: current.ID,
		AmountMinor:  amount,
		Method:       domain.SettlementMethod(strings.TrimSpace(req.Method)),
		RecordedBy:   req.RecordedBy,
		Reference:    req.Reference,
	})
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, settlementResultResponse{
		Settlement: toSettlementResponse(result.Settlement, result.Obligation.Currency),
		Obligation: toObligationResponse(result.Obligation),
	})
}

// GET /api/v1/obligations/:id/settlements
func (api *API) listSettlements(c *gin.Context) {
	ctx := c.Request.Context()
	o, err := api.ledger.GetObligation(ctx, c.Param("id"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	settlements, err := api.ledger.ListSettlements(ctx, o.ID)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSettlementList(settlements, o.Currency))
}

// GET /api/v1/counterparties/:ref/obligations?kind=&status=&limit=
func (api *API) listByCounterparty(c *gin.Context) {
	limit, ok := api.limitParam(c)
	if !ok {
		return
	}
	filter := domain.ObligationFilter{
		Kind:  domain.ObligationKind(c.Query("kind")),
		Limit: limit,
	}
	for _, raw := range c.QueryArray("status") {
		status := domain.ObligationStatus(raw)
		if !status.Valid() {
			api.responder.BadRequest(c, fmt.Sprintf("unknown status %q", raw))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	items, err := api.ledger.ListByCounterparty(c.Request.Context(), c.Param("ref"), filter)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toObligationList(items))
}

// GET /api/v1/reports/overdue?limit=
func (api *API) listOverdue(c *gin.Context) {
	limit, ok := api.limitParam(c)
	if !ok {
		return
	}
	items, err := api.ledger.ListOverdue(c.Request.Context(), limit)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toObligationList(items))
}

// POST /api/v1/sequences/:kind/next?period=
func (api *API) nextNumber(c *gin.Context) {
	kind := domain.ObligationKind(c.Param("kind"))
	number, err := api.ledger.NextNumber(c.Request.Context(), kind, c.Query("period"))
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, numberResponse{Kind: string(kind), Number: number})
}

// POST /api/v1/admin/sweep
func (api *API) sweep(c *gin.Context) {
	report, err := api.sweeper.Sweep(c.Request.Context(), api.now().UTC())
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSweepResponse(report))
}

func parseLineItems(items []lineItemRequest, currency string) ([]domain.LineItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]domain.LineItem, 0, len(items))
	for i, item := range items {
		price, err := ParseAmount(item.UnitPrice, currency)
		if err != nil {
			return nil, fmt.Errorf("line_items[%d].unit_price: %w", i, err)
		}
		out = append(out, domain.LineItem{
			Description:    item.Description,
			Qty:            item.Qty,
			UnitPriceMinor: price,
		})
	}
	return out, nil
}

// limitParam читает ?limit=; 0 означает лимит по умолчанию сервиса.
func (api *API) limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 || limit > maxListLimit {
		api.responder.BadRequest(c, fmt.Sprintf("limit must be an integer between 0 and %d", maxListLimit))
		return 0, false
	}
	return limit, true
}

// timeParam читает RFC 3339 или дату YYYY-MM-DD (полночь UTC).
func (api *API) timeParam(c *gin.Context, name string) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t, true
	}
	api.responder.BadRequest(c, fmt.Sprintf("%s must be RFC 3339 or YYYY-MM-DD", name))
	return time.Time{}, false
}

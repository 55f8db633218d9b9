package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
)

// GET /api/v1/reports/statistics?kind=&counterparty=&currency=&from=&to=
func (api *API) statistics(c *gin.Context) {
	from, ok := api.timeParam(c, "from")
	if !ok {
		return
	}
	to, ok := api.timeParam(c, "to")
	if !ok {
		return
	}
	stats, err := api.ledger.Statistics(c.Request.Context(), domain.StatisticsFilter{
		Kind:            domain.ObligationKind(c.Query("kind")),
		CounterpartyRef: c.Query("counterparty"),
		Currency:        c.Query("currency"),
		CreatedFrom:     from,
		CreatedTo:       to,
	})
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStatisticsResponse(stats))
}

// GET /api/v1/reports/aging?as_of=
func (api *API) aging(c *gin.Context) {
	asOf, ok := api.timeParam(c, "as_of")
	if !ok {
		return
	}
	report, err := api.ledger.Aging(c.Request.Context(), asOf)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAgingResponse(report))
}

// GET /api/v1/reports/revenue?from=&to=&granularity=&currency=
func (api *API) revenue(c *gin.Context) {
	from, ok := api.timeParam(c, "from")
	if !ok {
		return
	}
	to, ok := api.timeParam(c, "to")
	if !ok {
		return
	}
	points, err := api.ledger.RevenueByPeriod(c.Request.Context(), domain.RevenueQuery{
		From:        from,
		To:          to,
		Granularity: domain.PeriodGranularity(c.Query("granularity")),
		Currency:    c.Query("currency"),
	})
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRevenueResponse(points))
}

// GET /api/v1/reports/standings
func (api *API) standings(c *gin.Context) {
	standings, err := api.ledger.AccountStandings(c.Request.Context())
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toStandingList(standings))
}

// GET /api/v1/reports/overview?as_of=
func (api *API) overview(c *gin.Context) {
	asOf, ok := api.timeParam(c, "as_of")
	if !ok {
		return
	}
	overview, err := api.ledger.Overview(c.Request.Context(), asOf)
	if err != nil {
		api.responder.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overviewResponse{
		Statistics: toStatisticsResponse(overview.Statistics),
		Aging:      toAgingResponse(overview.Aging),
		Standings:  toStandingList(overview.Standings),
	})
}

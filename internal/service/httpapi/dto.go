package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/ledger/internal/domain"
	"github.com/vladislavdragonenkov/ledger/internal/service/ledger"
	"github.com/vladislavdragonenkov/ledger/internal/service/sweeper"
)

type lineItemRequest struct {
	Description string `json:"description"`
	Qty         int64  `json:"qty"`
	UnitPrice   string `json:"unit_price"`
}

type createObligationRequest struct {
	Kind            string            `json:"kind"`
	CounterpartyRef string            `json:"counterparty_ref"`
	Currency        string            `json:"currency"`
	Total           string            `json:"total"`
	LineItems       []lineItemRequest `json:"line_items"`
	DueDate         *time.Time        `json:"due_date"`
	AccountID       string            `json:"account_id"`
}

type updateLineItemsRequest struct {
	LineItems []lineItemRequest `json:"line_items"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type settlementRequest struct {
	Amount     string `json:"amount"`
	Method     string `json:"method"`
	RecordedBy string `json:"recorded_by"`
	Reference  string `json:"reference"`
}

type openAccountRequest struct {
	HolderRef   string `json:"holder_ref"`
	HolderKind  string `json:"holder_kind"`
	Currency    string `json:"currency"`
	CreditLimit string `json:"credit_limit"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type creditLimitRequest struct {
	CreditLimit string `json:"credit_limit"`
}

type accountStatusRequest struct {
	Status string `json:"status"`
}

type lineItemResponse struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Qty         int64  `json:"qty"`
	UnitPrice   string `json:"unit_price"`
	Total       string `json:"total"`
}

type obligationResponse struct {
	ID              string             `json:"id"`
	Number          string             `json:"number"`
	Kind            string             `json:"kind"`
	CounterpartyRef string             `json:"counterparty_ref"`
	Currency        string             `json:"currency"`
	Total           string             `json:"total"`
	Settled         string             `json:"settled"`
	Remaining       string             `json:"remaining"`
	TotalMinor      int64              `json:"total_minor"`
	SettledMinor    int64              `json:"settled_minor"`
	RemainingMinor  int64              `json:"remaining_minor"`
	Status          string             `json:"status"`
	DueDate         *time.Time         `json:"due_date,omitempty"`
	AccountID       string             `json:"account_id,omitempty"`
	LineItems       []lineItemResponse `json:"line_items,omitempty"`
	CancelReason    string             `json:"cancel_reason,omitempty"`
	Version         int64              `json:"version"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	SettledAt       *time.Time         `json:"settled_at,omitempty"`
	CancelledAt     *time.Time         `json:"cancelled_at,omitempty"`
}

type settlementResponse struct {
	ID           string    `json:"id"`
	ObligationID string    `json:"obligation_id"`
	Amount       string    `json:"amount"`
	AmountMinor  int64     `json:"amount_minor"`
	Method       string    `json:"method"`
	RecordedBy   string    `json:"recorded_by"`
	Reference    string    `json:"reference,omitempty"`
	SettledAt    time.Time `json:"settled_at"`
}

type settlementResultResponse struct {
	Settlement settlementResponse `json:"settlement"`
	Obligation obligationResponse `json:"obligation"`
}

type counterpartyResponse struct {
	Ref         string `json:"ref"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
}

type snapshotResponse struct {
	Obligation   obligationResponse   `json:"obligation"`
	Settlements  []settlementResponse `json:"settlements"`
	Counterparty counterpartyResponse `json:"counterparty"`
}

type accountResponse struct {
	ID               string    `json:"id"`
	HolderRef        string    `json:"holder_ref"`
	HolderKind       string    `json:"holder_kind"`
	Currency         string    `json:"currency"`
	CreditLimit      string    `json:"credit_limit"`
	Balance          string    `json:"balance"`
	Available        string    `json:"available"`
	CreditLimitMinor int64     `json:"credit_limit_minor"`
	BalanceMinor     int64     `json:"balance_minor"`
	Status           string    `json:"status"`
	Version          int64     `json:"version"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type standingResponse struct {
	AccountID      string `json:"account_id"`
	HolderRef      string `json:"holder_ref"`
	HolderKind     string `json:"holder_kind"`
	DisplayName    string `json:"display_name,omitempty"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	Balance        string `json:"balance"`
	Limit          string `json:"limit"`
	Available      string `json:"available"`
	BalanceMinor   int64  `json:"balance_minor"`
	LimitMinor     int64  `json:"limit_minor"`
	AvailableMinor int64  `json:"available_minor"`
}

type statusTotalsResponse struct {
	Status         string `json:"status"`
	Count          int    `json:"count"`
	TotalMinor     int64  `json:"total_minor"`
	SettledMinor   int64  `json:"settled_minor"`
	RemainingMinor int64  `json:"remaining_minor"`
}

type currencyStatisticsResponse struct {
	Currency       string                 `json:"currency"`
	Count          int                    `json:"count"`
	Total          string                 `json:"total"`
	Settled        string                 `json:"settled"`
	Remaining      string                 `json:"remaining"`
	TotalMinor     int64                  `json:"total_minor"`
	SettledMinor   int64                  `json:"settled_minor"`
	RemainingMinor int64                  `json:"remaining_minor"`
	ByStatus       []statusTotalsResponse `json:"by_status"`
}

type statisticsResponse struct {
	Count      int                          `json:"count"`
	ByCurrency []currencyStatisticsResponse `json:"by_currency"`
}

type agingLineResponse struct {
	Bucket         string `json:"bucket"`
	Count          int    `json:"count"`
	RemainingMinor int64  `json:"remaining_minor"`
}

type currencyAgingResponse struct {
	Currency string              `json:"currency"`
	Lines    []agingLineResponse `json:"lines"`
}

type agingResponse struct {
	AsOf       time.Time               `json:"as_of"`
	ByCurrency []currencyAgingResponse `json:"by_currency"`
}

type revenuePointResponse struct {
	Period           string `json:"period"`
	SettlementsCount int    `json:"settlements_count"`
	AmountMinor      int64  `json:"amount_minor"`
}

type overviewResponse struct {
	Statistics statisticsResponse `json:"statistics"`
	Aging      agingResponse      `json:"aging"`
	Standings  []standingResponse `json:"standings"`
}

type sweepFailureResponse struct {
	ObligationID string `json:"obligation_id"`
	Error        string `json:"error"`
}

type sweepResponse struct {
	Promoted int                    `json:"promoted"`
	Failures []sweepFailureResponse `json:"failures"`
}

type numberResponse struct {
	Kind   string `json:"kind"`
	Number string `json:"number"`
}

func toObligationResponse(o domain.Obligation) obligationResponse {
	resp := obligationResponse{
		ID:              o.ID,
		Number:          o.Number,
		Kind:            string(o.Kind),
		CounterpartyRef: o.CounterpartyRef,
		Currency:        o.Currency,
		Total:           FormatAmount(o.TotalMinor, o.Currency),
		Settled:         FormatAmount(o.SettledMinor, o.Currency),
		Remaining:       FormatAmount(o.RemainingMinor(), o.Currency),
		TotalMinor:      o.TotalMinor,
		SettledMinor:    o.SettledMinor,
		RemainingMinor:  o.RemainingMinor(),
		Status:          string(o.Status),
		DueDate:         o.DueDate,
		AccountID:       o.AccountID,
		CancelReason:    o.CancelReason,
		Version:         o.Version,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		SettledAt:       o.SettledAt,
		CancelledAt:     o.CancelledAt,
	}
	for _, item := range o.LineItems {
		resp.LineItems = append(resp.LineItems, lineItemResponse{
			ID:          item.ID,
			Description: item.Description,
			Qty:         item.Qty,
			UnitPrice:   FormatAmount(item.UnitPriceMinor, o.Currency),
			Total:       FormatAmount(item.TotalMinor(), o.Currency),
		})
	}
	return resp
}

func toObligationList(items []domain.Obligation) []obligationResponse {
	out := make([]obligationResponse, 0, len(items))
	for _, o := range items {
		out = append(out, toObligationResponse(o))
	}
	return out
}

func toSettlementResponse(s domain.Settlement, currency string) settlementResponse {
	return settlementResponse{
		ID:           s.ID,
		ObligationID: s.ObligationID,
		Amount:       FormatAmount(s.AmountMinor, currency),
		AmountMinor:  s.AmountMinor,
		Method:       string(s.Method),
		RecordedBy:   s.RecordedBy,
		Reference:    s.Reference,
		SettledAt:    s.SettledAt,
	}
}

func toSettlementList(items []domain.Settlement, currency string) []settlementResponse {
	out := make([]settlementResponse, 0, len(items))
	for _, s := range items {
		out = append(out, toSettlementResponse(s, currency))
	}
	return out
}

func toSnapshotResponse(snapshot ledger.ObligationSnapshot) snapshotResponse {
	return snapshotResponse{
		Obligation:  toObligationResponse(snapshot.Obligation),
		Settlements: toSettlementList(snapshot.Settlements, snapshot.Obligation.Currency),
		Counterparty: counterpartyResponse{
			Ref:         snapshot.Counterparty.Ref,
			DisplayName: snapshot.Counterparty.DisplayName,
			Email:       snapshot.Counterparty.Email,
		},
	}
}

func toAccountResponse(a domain.CreditAccount) accountResponse {
	return accountResponse{
		ID:               a.ID,
		HolderRef:        a.HolderRef,
		HolderKind:       string(a.HolderKind),
		Currency:         a.Currency,
		CreditLimit:      FormatAmount(a.CreditLimitMinor, a.Currency),
		Balance:          FormatAmount(a.BalanceMinor, a.Currency),
		Available:        FormatAmount(a.AvailableMinor(), a.Currency),
		CreditLimitMinor: a.CreditLimitMinor,
		BalanceMinor:     a.BalanceMinor,
		Status:           string(a.Status),
		Version:          a.Version,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toStandingResponse(s domain.AccountStanding) standingResponse {
	return standingResponse{
		AccountID:      s.AccountID,
		HolderRef:      s.HolderRef,
		HolderKind:     string(s.HolderKind),
		DisplayName:    s.DisplayName,
		Currency:       s.Currency,
		Status:         string(s.Status),
		Balance:        FormatAmount(s.BalanceMinor, s.Currency),
		Limit:          FormatAmount(s.LimitMinor, s.Currency),
		Available:      FormatAmount(s.AvailableMinor, s.Currency),
		BalanceMinor:   s.BalanceMinor,
		LimitMinor:     s.LimitMinor,
		AvailableMinor: s.AvailableMinor,
	}
}

func toStandingList(items []domain.AccountStanding) []standingResponse {
	out := make([]standingResponse, 0, len(items))
	for _, s := range items {
		out = append(out, toStandingResponse(s))
	}
	return out
}

func toStatisticsResponse(stats domain.LedgerStatistics) statisticsResponse {
	resp := statisticsResponse{
		Count:      stats.Count,
		ByCurrency: make([]currencyStatisticsResponse, 0, len(stats.ByCurrency)),
	}
	for _, c := range stats.ByCurrency {
		line := currencyStatisticsResponse{
			Currency:       c.Currency,
			Count:          c.Count,
			Total:          FormatAmount(c.TotalMinor, c.Currency),
			Settled:        FormatAmount(c.SettledMinor, c.Currency),
			Remaining:      FormatAmount(c.RemainingMinor, c.Currency),
			TotalMinor:     c.TotalMinor,
			SettledMinor:   c.SettledMinor,
			RemainingMinor: c.RemainingMinor,
			ByStatus:       make([]statusTotalsResponse, 0, len(c.ByStatus)),
		}
		for _, t := range c.ByStatus {
			line.ByStatus = append(line.ByStatus, statusTotalsResponse{
				Status:         string(t.Status),
				Count:          t.Count,
				TotalMinor:     t.TotalMinor,
				SettledMinor:   t.SettledMinor,
				RemainingMinor: t.RemainingMinor,
			})
		}
		resp.ByCurrency = append(resp.ByCurrency, line)
	}
	return resp
}

func toAgingResponse(report domain.AgingReport) agingResponse {
	resp := agingResponse{AsOf: report.AsOf, ByCurrency: make([]currencyAgingResponse, 0, len(report.ByCurrency))}
	for _, c := range report.ByCurrency {
		aging := currencyAgingResponse{Currency: c.Currency, Lines: make([]agingLineResponse, 0, len(c.Lines))}
		for _, line := range c.Lines {
			aging.Lines = append(aging.Lines, agingLineResponse{
				Bucket:         string(line.Bucket),
				Count:          line.Count,
				RemainingMinor: line.RemainingMinor,
			})
		}
		resp.ByCurrency = append(resp.ByCurrency, aging)
	}
	return resp
}

func toRevenueResponse(points []domain.RevenuePoint) []revenuePointResponse {
	out := make([]revenuePointResponse, 0, len(points))
	for _, p := range points {
		out = append(out, revenuePointResponse{
			Period:           p.Period,
			SettlementsCount: p.SettlementsCount,
			AmountMinor:      p.AmountMinor,
		})
	}
	return out
}

func toSweepResponse(report sweeper.Report) sweepResponse {
	resp := sweepResponse{Promoted: report.Promoted, Failures: make([]sweepFailureResponse, 0, len(report.Failures))}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, sweepFailureResponse{ObligationID: f.ObligationID, Error: f.Err.Error()})
	}
	return resp
}

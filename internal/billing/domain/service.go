package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/pkg/db/pagination"
)

// BalanceStatus is the advisory pre-flight gate result. The gate is not
// a reservation; concurrent requests may both pass and drive the
// balance negative, which is accepted behavior.
type BalanceStatus struct {
	HasBalance bool    `json:"has_balance"`
	Balance    float64 `json:"balance"`
}

type CreditRequest struct {
	TenantID  snowflake.ID `json:"-"`
	Reference string       `json:"reference"`
	Amount    float64      `json:"amount"`
}

type CreditResult struct {
	AlreadyProcessed bool    `json:"already_processed"`
	Balance          float64 `json:"balance"`
}

type ListTransactionRequest struct {
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=10"`
}

type ListTransactionResponse struct {
	pagination.PageInfo
	Transactions []BillingTransaction `json:"transactions"`
}

type UsageReportRequest struct {
	// Month in YYYY-MM form. Defaults to the current month.
	Month string `form:"month"`
}

type UsageReportResponse struct {
	Month                 string       `json:"month"`
	Rows                  []TokenUsage `json:"rows"`
	TotalPromptTokens     int64        `json:"total_prompt_tokens"`
	TotalCompletionTokens int64        `json:"total_completion_tokens"`
	TotalCost             float64      `json:"total_cost"`
	TotalRequests         int64        `json:"total_requests"`
}

type Service interface {
	CalculateCost(model string, promptTokens, completionTokens int) float64
	CheckBalance(ctx context.Context, tenantID snowflake.ID) (BalanceStatus, error)
	// TrackTokenUsage settles one billed call: it increments the usage
	// aggregate, appends a CHARGE entry, and debits the tenant in a
	// single transaction. Returns the charged cost.
	TrackTokenUsage(ctx context.Context, tenantID snowflake.ID, model string, promptTokens, completionTokens int) (float64, error)
	// Credit applies a top-up exactly once per (tenant, reference).
	Credit(ctx context.Context, req CreditRequest) (CreditResult, error)
	ListTransactions(ctx context.Context, req ListTransactionRequest) (ListTransactionResponse, error)
	UsageReport(ctx context.Context, req UsageReportRequest) (UsageReportResponse, error)
}

var (
	ErrInvalidTenant       = errors.New("invalid_tenant")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidReference    = errors.New("invalid_reference")
	ErrInvalidMonth        = errors.New("invalid_month")
	ErrTenantNotFound      = errors.New("tenant_not_found")
	ErrInsufficientBalance = errors.New("insufficient_balance")
)

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	billingdomain "github.com/lorekeep/lorekeep/internal/billing/domain"
)

type fakeBillingService struct {
	seen map[string]bool
}

func (f *fakeBillingService) CalculateCost(model string, promptTokens, completionTokens int) float64 {
	return 0
}

func (f *fakeBillingService) CheckBalance(ctx context.Context, tenantID snowflake.ID) (billingdomain.BalanceStatus, error) {
	return billingdomain.BalanceStatus{}, nil
}

func (f *fakeBillingService) TrackTokenUsage(ctx context.Context, tenantID snowflake.ID, model string, promptTokens, completionTokens int) (float64, error) {
	return 0, nil
}

func (f *fakeBillingService) Credit(ctx context.Context, req billingdomain.CreditRequest) (billingdomain.CreditResult, error) {
	if req.Reference == "" {
		return billingdomain.CreditResult{}, billingdomain.ErrInvalidReference
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	if f.seen[req.Reference] {
		return billingdomain.CreditResult{AlreadyProcessed: true, Balance: req.Amount}, nil
	}
	f.seen[req.Reference] = true
	return billingdomain.CreditResult{Balance: req.Amount}, nil
}

func (f *fakeBillingService) ListTransactions(ctx context.Context, req billingdomain.ListTransactionRequest) (billingdomain.ListTransactionResponse, error) {
	return billingdomain.ListTransactionResponse{}, nil
}

func (f *fakeBillingService) UsageReport(ctx context.Context, req billingdomain.UsageReportRequest) (billingdomain.UsageReportResponse, error) {
	return billingdomain.UsageReportResponse{}, nil
}

func newWebhookRouter(billing *fakeBillingService) *gin.Engine {
	gin.SetMode(gin.TestMode)

	srv := &Server{billingSvc: billing}

	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	router.POST("/v1/webhooks/payment", srv.PaymentWebhook)
	return router
}

func postWebhook(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payment", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestPaymentWebhookIdempotentRedelivery(t *testing.T) {
	router := newWebhookRouter(&fakeBillingService{})
	body := `{"reference":"pay_123","tenant_id":"42","amount":10}`

	resp := postWebhook(router, body)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}

	var first billingdomain.CreditResult
	if err := json.Unmarshal(resp.Body.Bytes(), &first); err != nil {
		t.Fatal(err)
	}
	if first.AlreadyProcessed {
		t.Fatal("first delivery must not be marked already processed")
	}

	// Redelivery still returns 200 so the provider stops retrying.
	resp = postWebhook(router, body)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 on redelivery, got %d", resp.Code)
	}

	var second billingdomain.CreditResult
	if err := json.Unmarshal(resp.Body.Bytes(), &second); err != nil {
		t.Fatal(err)
	}
	if !second.AlreadyProcessed {
		t.Fatal("redelivery must be marked already processed")
	}
}

func TestPaymentWebhookValidation(t *testing.T) {
	router := newWebhookRouter(&fakeBillingService{})

	resp := postWebhook(router, `{"reference":"pay_123","tenant_id":"not-an-id","amount":10}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}

	resp = postWebhook(router, `{"reference":"","tenant_id":"42","amount":10}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	billingdomain "github.com/lorekeep/lorekeep/internal/billing/domain"
)

type paymentWebhookRequest struct {
	Reference string  `json:"reference"`
	TenantID  string  `json:"tenant_id"`
	Amount    float64 `json:"amount"`
}

// PaymentWebhook credits a tenant after a successful payment. Redelivery
// of the same reference is a no-op returning the current balance.
func (s *Server) PaymentWebhook(c *gin.Context) {
	var req paymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	tenantID, err := snowflake.ParseString(strings.TrimSpace(req.TenantID))
	if err != nil {
		AbortWithError(c, newValidationError("tenant_id", "invalid", "invalid tenant id"))
		return
	}

	result, err := s.billingSvc.Credit(c.Request.Context(), billingdomain.CreditRequest{
		TenantID:  tenantID,
		Reference: req.Reference,
		Amount:    req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

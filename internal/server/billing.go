package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	billingdomain "github.com/lorekeep/lorekeep/internal/billing/domain"
	"github.com/lorekeep/lorekeep/internal/tenantctx"
)

func (s *Server) GetBalance(c *gin.Context) {
	tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	status, err := s.billingSvc.CheckBalance(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) ListTransactions(c *gin.Context) {
	var req billingdomain.ListTransactionRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.billingSvc.ListTransactions(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) UsageReport(c *gin.Context) {
	var req billingdomain.UsageReportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	report, err := s.billingSvc.UsageReport(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	answerdomain "github.com/lorekeep/lorekeep/internal/answer/domain"
	"github.com/lorekeep/lorekeep/internal/tenantctx"
)

type queryRequest struct {
	Query               string                     `json:"query"`
	ConversationHistory []answerdomain.ChatMessage `json:"conversation_history"`
}

func (s *Server) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	ctx := c.Request.Context()
	tenantID, _ := tenantctx.TenantIDFromContext(ctx)
	credential := c.GetString("api_key_id")

	limit, err := s.limiter.Allow(ctx, tenantID.String(), credential)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !limit.Allowed {
		c.Header("Retry-After", strconv.Itoa(int(limit.RetryAfter.Seconds())+1))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}})
		return
	}

	resp, err := s.answerSvc.Ask(ctx, answerdomain.AskRequest{
		Query:               req.Query,
		ConversationHistory: req.ConversationHistory,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

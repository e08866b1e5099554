package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/lorekeep/lorekeep/internal/access"
	obscontext "github.com/lorekeep/lorekeep/internal/observability/context"
	"github.com/lorekeep/lorekeep/internal/tenantctx"
)

const (
	HeaderTenant = "X-Tenant-Id"
	HeaderUser   = "X-User-Id"
)

// TenantContext resolves the acting tenant for management endpoints.
// Session mechanics live outside this service; the upstream gateway
// forwards tenant and user identity in headers.
func (s *Server) TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := s.cfg.DefaultTenantID
		if header := strings.TrimSpace(c.GetHeader(HeaderTenant)); header != "" {
			parsed, err := snowflake.ParseString(header)
			if err != nil {
				AbortWithError(c, newValidationError("tenant_id", "invalid", "invalid tenant id"))
				return
			}
			tenantID = int64(parsed)
		}
		if tenantID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)

		if header := strings.TrimSpace(c.GetHeader(HeaderUser)); header != "" {
			userID, err := snowflake.ParseString(header)
			if err != nil {
				AbortWithError(c, newValidationError("user_id", "invalid", "invalid user id"))
				return
			}
			ctx = access.WithPrincipal(ctx, &access.Principal{
				Type:   access.PrincipalTypeUser,
				UserID: userID,
			})
			ctx = obscontext.WithActor(ctx, "user", userID.String())
		}

		ctx = obscontext.WithTenantID(ctx, snowflake.ID(tenantID).String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// APIKeyRequired authenticates query requests by bearer API key. Tenant
// identity and access grants derive solely from the key record.
func (s *Server) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		key, err := s.apiKeySvc.Authenticate(c.Request.Context(), parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), int64(key.TenantID))
		ctx = access.WithPrincipal(ctx, &access.Principal{
			Type:     access.PrincipalTypeAPIKey,
			APIKeyID: key.ID,
			TagIDs:   key.TagGrants(),
		})
		ctx = obscontext.WithTenantID(ctx, key.TenantID.String())
		ctx = obscontext.WithActor(ctx, "api_key", key.KeyID)

		c.Set("api_key_id", key.KeyID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

package access

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// PrincipalType identifies who a scoped operation runs on behalf of.
type PrincipalType string

const (
	PrincipalTypeUser   PrincipalType = "user"
	PrincipalTypeAPIKey PrincipalType = "api_key"
	PrincipalTypeWidget PrincipalType = "widget"
)

// Principal is the caller identity for access-scoped operations.
// A nil *Principal means an anonymous caller: only untagged documents
// are visible to it.
type Principal struct {
	Type     PrincipalType
	UserID   snowflake.ID
	APIKeyID snowflake.ID
	TagIDs   []snowflake.ID
}

type principalContextKey struct{}

// WithPrincipal stores the principal in the context.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal from context, if set.
func PrincipalFromContext(ctx context.Context) *Principal {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}

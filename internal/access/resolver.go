package access

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/cache"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const scopeCacheTTL = 30 * time.Second

type ResolverParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

// Resolver computes the document visibility scope for a principal.
type Resolver struct {
	db    *gorm.DB
	log   *zap.Logger
	cache cache.Cache[string, Scope]
}

func NewResolver(p ResolverParam) *Resolver {
	return &Resolver{
		db:    p.DB,
		log:   p.Log.Named("access.resolver"),
		cache: cache.NewTTLCache[string, Scope](),
	}
}

// ScopeFor resolves the visibility scope of a principal within a tenant.
// Anonymous callers and API keys without tag grants see untagged
// documents only; admins and owners see everything.
func (r *Resolver) ScopeFor(ctx context.Context, tenantID snowflake.ID, principal *Principal) (Scope, error) {
	if principal == nil {
		return PublicScope(), nil
	}

	switch principal.Type {
	case PrincipalTypeWidget:
		return PublicScope(), nil
	case PrincipalTypeAPIKey:
		return TaggedScope(principal.TagIDs), nil
	case PrincipalTypeUser:
		return r.userScope(ctx, tenantID, principal.UserID)
	default:
		return PublicScope(), nil
	}
}

func (r *Resolver) userScope(ctx context.Context, tenantID, userID snowflake.ID) (Scope, error) {
	if userID == 0 {
		return PublicScope(), nil
	}

	key := fmt.Sprintf("%d:%d", tenantID, userID)
	if scope, ok := r.cache.Get(key); ok {
		return scope, nil
	}

	admin, err := r.IsAdminOrOwner(ctx, userID, tenantID)
	if err != nil {
		return Scope{}, err
	}

	var scope Scope
	if admin {
		scope = AllScope()
	} else {
		tagIDs, err := r.UserTagIDs(ctx, userID, tenantID)
		if err != nil {
			return Scope{}, err
		}
		scope = TaggedScope(tagIDs)
	}

	r.cache.Set(key, scope, scopeCacheTTL)
	return scope, nil
}

// IsAdminOrOwner reports whether the user holds an admin or owner role
// in the tenant.
func (r *Resolver) IsAdminOrOwner(ctx context.Context, userID, tenantID snowflake.ID) (bool, error) {
	var role string
	err := r.db.WithContext(ctx).Raw(
		`SELECT role FROM users WHERE id = ? AND tenant_id = ?`,
		userID,
		tenantID,
	).Scan(&role).Error
	if err != nil {
		return false, err
	}
	return role == "admin" || role == "owner", nil
}

// UserTagIDs returns the tag grants of a user within the tenant.
func (r *Resolver) UserTagIDs(ctx context.Context, userID, tenantID snowflake.ID) ([]snowflake.ID, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Raw(
		`SELECT ut.tag_id FROM user_tags ut
		 JOIN tags t ON t.id = ut.tag_id
		 WHERE ut.user_id = ? AND t.tenant_id = ?`,
		userID,
		tenantID,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}

	tagIDs := make([]snowflake.ID, 0, len(ids))
	for _, id := range ids {
		tagIDs = append(tagIDs, snowflake.ID(id))
	}
	return tagIDs, nil
}

// Invalidate drops the cached scope for a user, e.g. after tag grants
// change.
func (r *Resolver) Invalidate(tenantID, userID snowflake.ID) {
	r.cache.Delete(fmt.Sprintf("%d:%d", tenantID, userID))
}

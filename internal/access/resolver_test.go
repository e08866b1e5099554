package access

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	documentdomain "github.com/lorekeep/lorekeep/internal/document/domain"
	tenantdomain "github.com/lorekeep/lorekeep/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupResolver(t *testing.T) (*Resolver, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(
		&tenantdomain.User{},
		&tenantdomain.UserTag{},
		&documentdomain.Tag{},
	); err != nil {
		t.Fatal(err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}

	resolver := NewResolver(ResolverParam{DB: db, Log: zap.NewNop()})
	return resolver, db, node
}

func createUser(t *testing.T, db *gorm.DB, node *snowflake.Node, tenantID snowflake.ID, role tenantdomain.UserRole) snowflake.ID {
	t.Helper()
	user := tenantdomain.User{
		ID:       node.Generate(),
		TenantID: tenantID,
		Email:    uniqueEmail(node),
		Role:     role,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatal(err)
	}
	return user.ID
}

func uniqueEmail(node *snowflake.Node) string {
	return node.Generate().String() + "@example.com"
}

func grantTag(t *testing.T, db *gorm.DB, node *snowflake.Node, tenantID, userID snowflake.ID, name string) snowflake.ID {
	t.Helper()
	tag := documentdomain.Tag{
		ID:        node.Generate(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.Create(&tag).Error; err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&tenantdomain.UserTag{UserID: userID, TagID: tag.ID}).Error; err != nil {
		t.Fatal(err)
	}
	return tag.ID
}

func TestScopeForAnonymousAndWidget(t *testing.T) {
	resolver, _, node := setupResolver(t)
	tenantID := node.Generate()
	ctx := context.Background()

	scope, err := resolver.ScopeFor(ctx, tenantID, nil)
	assert.NoError(t, err)
	assert.Equal(t, ScopeKindPublic, scope.Kind)

	scope, err = resolver.ScopeFor(ctx, tenantID, &Principal{Type: PrincipalTypeWidget})
	assert.NoError(t, err)
	assert.Equal(t, ScopeKindPublic, scope.Kind)
}

func TestScopeForAPIKey(t *testing.T) {
	resolver, _, node := setupResolver(t)
	tenantID := node.Generate()
	tagID := node.Generate()
	ctx := context.Background()

	scope, err := resolver.ScopeFor(ctx, tenantID, &Principal{
		Type:   PrincipalTypeAPIKey,
		TagIDs: []snowflake.ID{tagID},
	})
	assert.NoError(t, err)
	assert.Equal(t, ScopeKindTagged, scope.Kind)
	assert.Equal(t, []snowflake.ID{tagID}, scope.TagIDs)

	// A key without tag grants sees public documents only.
	scope, err = resolver.ScopeFor(ctx, tenantID, &Principal{Type: PrincipalTypeAPIKey})
	assert.NoError(t, err)
	assert.Equal(t, ScopeKindPublic, scope.Kind)
}

func TestScopeForAdminBypassesTags(t *testing.T) {
	resolver, db, node := setupResolver(t)
	tenantID := node.Generate()
	ctx := context.Background()

	adminID := createUser(t, db, node, tenantID, tenantdomain.UserRoleAdmin)
	ownerID := createUser(t, db, node, tenantID, tenantdomain.UserRoleOwner)

	for _, userID := range []snowflake.ID{adminID, ownerID} {
		scope, err := resolver.ScopeFor(ctx, tenantID, &Principal{Type: PrincipalTypeUser, UserID: userID})
		assert.NoError(t, err)
		assert.Equal(t, ScopeKindAll, scope.Kind)
	}
}

func TestScopeForMember(t *testing.T) {
	resolver, db, node := setupResolver(t)
	tenantID := node.Generate()
	ctx := context.Background()

	memberID := createUser(t, db, node, tenantID, tenantdomain.UserRoleMember)

	scope, err := resolver.ScopeFor(ctx, tenantID, &Principal{Type: PrincipalTypeUser, UserID: memberID})
	assert.NoError(t, err)
	assert.Equal(t, ScopeKindPublic, scope.Kind)

	taggedID := createUser(t, db, node, tenantID, tenantdomain.UserRoleMember)
	tagID := grantTag(t, db, node, tenantID, taggedID, "engineering-"+taggedID.String())

	scope, err = resolver.ScopeFor(ctx, tenantID, &Principal{Type: PrincipalTypeUser, UserID: taggedID})
	assert.NoError(t, err)
	assert.Equal(t, ScopeKindTagged, scope.Kind)
	assert.Equal(t, []snowflake.ID{tagID}, scope.TagIDs)
}

func TestScopeForCachesUntilInvalidated(t *testing.T) {
	resolver, db, node := setupResolver(t)
	tenantID := node.Generate()
	ctx := context.Background()

	memberID := createUser(t, db, node, tenantID, tenantdomain.UserRoleMember)
	principal := &Principal{Type: PrincipalTypeUser, UserID: memberID}

	scope, err := resolver.ScopeFor(ctx, tenantID, principal)
	assert.NoError(t, err)
	assert.Equal(t, ScopeKindPublic, scope.Kind)

	grantTag(t, db, node, tenantID, memberID, "support-"+memberID.String())

	// Still the cached pre-grant scope.
	scope, err = resolver.ScopeFor(ctx, tenantID, principal)
	assert.NoError(t, err)
	assert.Equal(t, ScopeKindPublic, scope.Kind)

	resolver.Invalidate(tenantID, memberID)

	scope, err = resolver.ScopeFor(ctx, tenantID, principal)
	assert.NoError(t, err)
	assert.Equal(t, ScopeKindTagged, scope.Kind)
}

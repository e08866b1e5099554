package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListDocumentFilter struct {
	TagID snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, doc *Document) error
	FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Document, error)
	List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter ListDocumentFilter, page pagination.Pagination) ([]*Document, error)
	Update(ctx context.Context, db *gorm.DB, doc *Document) error
	Delete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error

	ReplaceDocumentTags(ctx context.Context, db *gorm.DB, documentID snowflake.ID, tagIDs []snowflake.ID) error
	TagsForDocument(ctx context.Context, db *gorm.DB, documentID snowflake.ID) ([]Tag, error)

	InsertVersion(ctx context.Context, db *gorm.DB, version *DocumentVersion) error
	FindVersion(ctx context.Context, db *gorm.DB, documentID, versionID snowflake.ID) (*DocumentVersion, error)
	ListVersions(ctx context.Context, db *gorm.DB, documentID snowflake.ID) ([]DocumentVersion, error)
	NextVersionNumber(ctx context.Context, db *gorm.DB, documentID snowflake.ID) (int, error)
	UpdateVersionStatus(ctx context.Context, db *gorm.DB, versionID snowflake.ID, status VersionStatus) error
	SetActiveVersion(ctx context.Context, db *gorm.DB, documentID snowflake.ID, versionID *snowflake.ID) error

	InsertTag(ctx context.Context, db *gorm.DB, tag *Tag) error
	FindTag(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*Tag, error)
	ListTags(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]Tag, error)
	DeleteTag(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error
	GrantUserTag(ctx context.Context, db *gorm.DB, userID, tagID snowflake.ID) error
	RevokeUserTag(ctx context.Context, db *gorm.DB, userID, tagID snowflake.ID) error
}

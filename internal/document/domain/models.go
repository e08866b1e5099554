package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// VersionStatus tracks the review lifecycle of a document version.
type VersionStatus string

const (
	VersionStatusPending  VersionStatus = "PENDING"
	VersionStatusApproved VersionStatus = "APPROVED"
	VersionStatusRejected VersionStatus = "REJECTED"
)

// Document is a logical artifact owned by a tenant. Visibility is
// driven by its tag set: zero tags means public within the tenant.
type Document struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID        snowflake.ID      `gorm:"not null;index" json:"tenant_id"`
	Name            string            `gorm:"not null" json:"name"`
	SourceURL       string            `gorm:"type:text" json:"source_url,omitempty"`
	ActiveVersionID *snowflake.ID     `gorm:"index" json:"active_version_id,omitempty"`
	Metadata        datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Document) TableName() string { return "documents" }

// DocumentVersion is an immutable content snapshot. Only an APPROVED
// version may become the document's active version; everything else is
// excluded from retrieval.
type DocumentVersion struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	DocumentID snowflake.ID  `gorm:"not null;index" json:"document_id"`
	Version    int           `gorm:"not null" json:"version"`
	Status     VersionStatus `gorm:"type:text;not null;default:'PENDING'" json:"status"`
	FileRef    string        `gorm:"type:text;not null" json:"file_ref"`
	CreatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (DocumentVersion) TableName() string { return "document_versions" }

// DocumentChunk is a bounded span of a version's extracted text plus
// its embedding vector. Chunks are replaced wholesale when a version is
// reprocessed, never merged.
type DocumentChunk struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	VersionID  snowflake.ID      `gorm:"not null;index" json:"version_id"`
	ChunkIndex int               `gorm:"not null" json:"chunk_index"`
	Content    string            `gorm:"type:text;not null" json:"content"`
	Embedding  []float64         `gorm:"serializer:json" json:"-"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (DocumentChunk) TableName() string { return "document_chunks" }

// Tag is a tenant-scoped access label shared between documents and
// users.
type Tag struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_tags_tenant_name,priority:1" json:"tenant_id"`
	Name      string       `gorm:"not null;uniqueIndex:ux_tags_tenant_name,priority:2" json:"name"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Tag) TableName() string { return "tags" }

// DocumentTag restricts a document's visibility to principals sharing
// the tag.
type DocumentTag struct {
	DocumentID snowflake.ID `gorm:"primaryKey" json:"document_id"`
	TagID      snowflake.ID `gorm:"primaryKey" json:"tag_id"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (DocumentTag) TableName() string { return "document_tags" }

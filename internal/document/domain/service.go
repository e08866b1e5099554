package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/pkg/db/pagination"
)

type CreateDocumentRequest struct {
	Name      string         `json:"name"`
	SourceURL string         `json:"source_url"`
	TagIDs    []string       `json:"tag_ids"`
	Metadata  map[string]any `json:"metadata"`
}

type UpdateDocumentRequest struct {
	ID       string         `json:"-"`
	Name     *string        `json:"name"`
	TagIDs   *[]string      `json:"tag_ids"`
	Metadata map[string]any `json:"metadata"`
}

type ListDocumentRequest struct {
	TagID     string `form:"tag_id"`
	PageToken string `form:"page_token"`
	PageSize  int    `form:"page_size,default=10"`
}

type ListDocumentResponse struct {
	pagination.PageInfo
	Documents []DocumentDetail `json:"documents"`
}

// DocumentDetail is a document with its tag set hydrated.
type DocumentDetail struct {
	Document
	Tags []Tag `json:"tags"`
}

type CreateVersionRequest struct {
	DocumentID string `json:"-"`
	FileRef    string `json:"file_ref"`
}

type CreateTagRequest struct {
	Name string `json:"name"`
}

type Service interface {
	Create(context.Context, CreateDocumentRequest) (DocumentDetail, error)
	List(context.Context, ListDocumentRequest) (ListDocumentResponse, error)
	GetByID(context.Context, string) (DocumentDetail, error)
	Update(context.Context, UpdateDocumentRequest) (DocumentDetail, error)
	Delete(context.Context, string) error

	CreateVersion(context.Context, CreateVersionRequest) (DocumentVersion, error)
	ListVersions(context.Context, string) ([]DocumentVersion, error)
	ApproveVersion(ctx context.Context, documentID, versionID string) (DocumentVersion, error)
	RejectVersion(ctx context.Context, documentID, versionID string) (DocumentVersion, error)
	ActivateVersion(ctx context.Context, documentID, versionID string) (DocumentVersion, error)

	CreateTag(context.Context, CreateTagRequest) (Tag, error)
	ListTags(context.Context) ([]Tag, error)
	DeleteTag(context.Context, string) error
	GrantUserTag(ctx context.Context, userID, tagID string) error
	RevokeUserTag(ctx context.Context, userID, tagID string) error
}

// VersionProcessor runs the chunk-and-embed pipeline for an approved
// version. Implemented by the ingest package.
type VersionProcessor interface {
	ProcessVersion(ctx context.Context, tenantID, documentID, versionID snowflake.ID) (int, error)
}

var (
	ErrInvalidTenant      = errors.New("invalid_tenant")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidFileRef     = errors.New("invalid_file_ref")
	ErrInvalidTag         = errors.New("invalid_tag")
	ErrNotFound           = errors.New("not_found")
	ErrVersionNotFound    = errors.New("version_not_found")
	ErrVersionNotApproved = errors.New("version_not_approved")
	ErrVersionDecided     = errors.New("version_already_decided")
	ErrAccessDenied       = errors.New("access_denied")
)

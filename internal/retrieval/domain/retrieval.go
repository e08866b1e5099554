package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/access"
	document "github.com/lorekeep/lorekeep/internal/document/domain"
	"gorm.io/gorm"
)

// Candidate is a chunk eligible for similarity scoring. Only chunks of
// APPROVED versions that are currently active on their document qualify.
type Candidate struct {
	ChunkID      snowflake.ID `json:"chunk_id"`
	DocumentID   snowflake.ID `json:"document_id"`
	DocumentName string       `json:"document_name"`
	SourceURL    string       `json:"source_url,omitempty"`
	VersionID    snowflake.ID `json:"version_id"`
	ChunkIndex   int          `json:"chunk_index"`
	Content      string       `json:"content"`
	Embedding    []float64    `gorm:"serializer:json" json:"-"`
}

// Result is a scored candidate.
type Result struct {
	Candidate
	Score float64 `json:"score"`
}

// Source attributes an answer to a document.
type Source struct {
	DocumentID   snowflake.ID `json:"document_id"`
	DocumentName string       `json:"document_name"`
	SourceURL    string       `json:"source_url,omitempty"`
	ChunkIndex   int          `json:"chunk_index"`
	Score        float64      `json:"score"`
}

type Repository interface {
	// ReplaceChunks swaps the chunk set of a version in one
	// transaction so retrieval never observes a half-written version.
	ReplaceChunks(ctx context.Context, db *gorm.DB, versionID snowflake.ID, chunks []document.DocumentChunk) error
	Candidates(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, scope access.Scope) ([]Candidate, error)
}

// Retriever ranks the visible chunk set of a tenant against a query
// vector.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID snowflake.ID, scope access.Scope, query []float64, topK int) ([]Result, error)
}

var ErrInvalidQueryVector = errors.New("invalid_query_vector")

package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/access"
	document "github.com/lorekeep/lorekeep/internal/document/domain"
	"github.com/lorekeep/lorekeep/internal/retrieval/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) ReplaceChunks(ctx context.Context, db *gorm.DB, versionID snowflake.ID, chunks []document.DocumentChunk) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM document_chunks WHERE version_id = ?`, versionID).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(&chunks, 200).Error
	})
}

// Candidates loads the chunks visible to the caller. The visibility
// predicate is pushed into SQL together with the active-version and
// approval constraints.
func (r *repo) Candidates(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, scope access.Scope) ([]domain.Candidate, error) {
	var candidates []domain.Candidate
	stmt := db.WithContext(ctx).
		Table("document_chunks").
		Select(`document_chunks.id AS chunk_id,
			documents.id AS document_id,
			documents.name AS document_name,
			documents.source_url,
			document_versions.id AS version_id,
			document_chunks.chunk_index,
			document_chunks.content,
			document_chunks.embedding`).
		Joins("JOIN document_versions ON document_versions.id = document_chunks.version_id").
		Joins("JOIN documents ON documents.id = document_versions.document_id").
		Where("documents.tenant_id = ?", tenantID).
		Where("documents.active_version_id = document_versions.id").
		Where("document_versions.status = ?", document.VersionStatusApproved)
	stmt = scope.Apply(stmt)

	if err := stmt.Scan(&candidates).Error; err != nil {
		return nil, err
	}
	return candidates, nil
}

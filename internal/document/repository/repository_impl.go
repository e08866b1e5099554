package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/document/domain"
	"github.com/lorekeep/lorekeep/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, doc *domain.Document) error {
	return db.WithContext(ctx).Create(doc).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Document, error) {
	var doc domain.Document
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Limit(1).
		Find(&doc).Error
	if err != nil {
		return nil, err
	}
	if doc.ID == 0 {
		return nil, nil
	}
	return &doc, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, filter domain.ListDocumentFilter, page pagination.Pagination) ([]*domain.Document, error) {
	var docs []*domain.Document
	stmt := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("tenant_id = ?", tenantID)
	if filter.TagID != 0 {
		stmt = stmt.Where(
			"EXISTS (SELECT 1 FROM document_tags dt WHERE dt.document_id = documents.id AND dt.tag_id = ?)",
			filter.TagID,
		)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err == nil && cursor.ID != "" {
			if id, parseErr := snowflake.ParseString(cursor.ID); parseErr == nil {
				stmt = stmt.Where("id < ?", id)
			}
		}
	}
	limit := page.PageSize
	if limit <= 0 {
		limit = 10
	}
	err := stmt.
		Order("id desc").
		Limit(limit + 1).
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, doc *domain.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	return db.WithContext(ctx).Save(doc).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`DELETE FROM document_chunks WHERE version_id IN (
				SELECT id FROM document_versions WHERE document_id = ?
			)`, id).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM document_versions WHERE document_id = ?`, id).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM document_tags WHERE document_id = ?`, id).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM documents WHERE tenant_id = ? AND id = ?`, tenantID, id).Error
	})
}

func (r *repo) ReplaceDocumentTags(ctx context.Context, db *gorm.DB, documentID snowflake.ID, tagIDs []snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM document_tags WHERE document_id = ?`, documentID).Error; err != nil {
			return err
		}
		if len(tagIDs) == 0 {
			return nil
		}
		now := time.Now().UTC()
		rows := make([]domain.DocumentTag, 0, len(tagIDs))
		for _, tagID := range tagIDs {
			rows = append(rows, domain.DocumentTag{
				DocumentID: documentID,
				TagID:      tagID,
				CreatedAt:  now,
			})
		}
		return tx.Create(&rows).Error
	})
}

func (r *repo) TagsForDocument(ctx context.Context, db *gorm.DB, documentID snowflake.ID) ([]domain.Tag, error) {
	var tags []domain.Tag
	err := db.WithContext(ctx).Raw(
		`SELECT t.id, t.tenant_id, t.name, t.created_at
		 FROM tags t
		 JOIN document_tags dt ON dt.tag_id = t.id
		 WHERE dt.document_id = ?
		 ORDER BY t.name`,
		documentID,
	).Scan(&tags).Error
	if err != nil {
		return nil, err
	}
	return tags, nil
}

func (r *repo) InsertVersion(ctx context.Context, db *gorm.DB, version *domain.DocumentVersion) error {
	return db.WithContext(ctx).Create(version).Error
}

func (r *repo) FindVersion(ctx context.Context, db *gorm.DB, documentID, versionID snowflake.ID) (*domain.DocumentVersion, error) {
	var version domain.DocumentVersion
	err := db.WithContext(ctx).
		Where("document_id = ? AND id = ?", documentID, versionID).
		Limit(1).
		Find(&version).Error
	if err != nil {
		return nil, err
	}
	if version.ID == 0 {
		return nil, nil
	}
	return &version, nil
}

func (r *repo) ListVersions(ctx context.Context, db *gorm.DB, documentID snowflake.ID) ([]domain.DocumentVersion, error) {
	var versions []domain.DocumentVersion
	err := db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("version desc").
		Find(&versions).Error
	if err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *repo) NextVersionNumber(ctx context.Context, db *gorm.DB, documentID snowflake.ID) (int, error) {
	var max int
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(version), 0) FROM document_versions WHERE document_id = ?`,
		documentID,
	).Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (r *repo) UpdateVersionStatus(ctx context.Context, db *gorm.DB, versionID snowflake.ID, status domain.VersionStatus) error {
	return db.WithContext(ctx).
		Model(&domain.DocumentVersion{}).
		Where("id = ?", versionID).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repo) SetActiveVersion(ctx context.Context, db *gorm.DB, documentID snowflake.ID, versionID *snowflake.ID) error {
	return db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("id = ?", documentID).
		Updates(map[string]any{
			"active_version_id": versionID,
			"updated_at":        time.Now().UTC(),
		}).Error
}

func (r *repo) InsertTag(ctx context.Context, db *gorm.DB, tag *domain.Tag) error {
	return db.WithContext(ctx).Create(tag).Error
}

func (r *repo) FindTag(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) (*domain.Tag, error) {
	var tag domain.Tag
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Limit(1).
		Find(&tag).Error
	if err != nil {
		return nil, err
	}
	if tag.ID == 0 {
		return nil, nil
	}
	return &tag, nil
}

func (r *repo) ListTags(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.Tag, error) {
	var tags []domain.Tag
	err := db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name").
		Find(&tags).Error
	if err != nil {
		return nil, err
	}
	return tags, nil
}

func (r *repo) DeleteTag(ctx context.Context, db *gorm.DB, tenantID, id snowflake.ID) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(`DELETE FROM document_tags WHERE tag_id = ?`, id).Error; err != nil {
			return err
		}
		if err := tx.Exec(`DELETE FROM user_tags WHERE tag_id = ?`, id).Error; err != nil {
			return err
		}
		return tx.Exec(`DELETE FROM tags WHERE tenant_id = ? AND id = ?`, tenantID, id).Error
	})
}

func (r *repo) GrantUserTag(ctx context.Context, db *gorm.DB, userID, tagID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO user_tags (user_id, tag_id, created_at) VALUES (?, ?, ?)`,
		userID,
		tagID,
		time.Now().UTC(),
	).Error
}

func (r *repo) RevokeUserTag(ctx context.Context, db *gorm.DB, userID, tagID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM user_tags WHERE user_id = ? AND tag_id = ?`,
		userID,
		tagID,
	).Error
}

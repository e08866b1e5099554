package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/access"
	"github.com/lorekeep/lorekeep/internal/document/domain"
	"github.com/lorekeep/lorekeep/internal/tenantctx"
	"github.com/lorekeep/lorekeep/pkg/db"
	"github.com/lorekeep/lorekeep/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Resolver  *access.Resolver
	Processor domain.VersionProcessor
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	resolver  *access.Resolver
	processor domain.VersionProcessor
}

func New(p ServiceParam) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("document.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		resolver:  p.Resolver,
		processor: p.Processor,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateDocumentRequest) (domain.DocumentDetail, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.DocumentDetail{}, domain.ErrInvalidTenant
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.DocumentDetail{}, domain.ErrInvalidName
	}

	tagIDs, err := s.resolveTagIDs(ctx, tenantID, req.TagIDs)
	if err != nil {
		return domain.DocumentDetail{}, err
	}

	now := time.Now().UTC()
	doc := domain.Document{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Name:      name,
		SourceURL: strings.TrimSpace(req.SourceURL),
		Metadata:  datatypes.JSONMap(req.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &doc); err != nil {
			return err
		}
		return s.repo.ReplaceDocumentTags(ctx, tx, doc.ID, tagIDs)
	})
	if err != nil {
		return domain.DocumentDetail{}, err
	}

	return s.hydrate(ctx, doc)
}

func (s *Service) List(ctx context.Context, req domain.ListDocumentRequest) (domain.ListDocumentResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.ListDocumentResponse{}, domain.ErrInvalidTenant
	}

	scope, err := s.resolver.ScopeFor(ctx, tenantID, access.PrincipalFromContext(ctx))
	if err != nil {
		return domain.ListDocumentResponse{}, err
	}

	filter := domain.ListDocumentFilter{}
	if strings.TrimSpace(req.TagID) != "" {
		tagID, err := snowflake.ParseString(strings.TrimSpace(req.TagID))
		if err != nil {
			return domain.ListDocumentResponse{}, domain.ErrInvalidTag
		}
		filter.TagID = tagID
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	if page.PageSize <= 0 {
		page.PageSize = 10
	}
	docs, err := s.listScoped(ctx, tenantID, scope, filter, page)
	if err != nil {
		return domain.ListDocumentResponse{}, err
	}

	docs, pageInfo := pagination.BuildCursorPageInfo(docs, page.PageSize, func(d *domain.Document) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: d.ID.String()})
		return token
	})

	details := make([]domain.DocumentDetail, 0, len(docs))
	for _, doc := range docs {
		detail, err := s.hydrate(ctx, *doc)
		if err != nil {
			return domain.ListDocumentResponse{}, err
		}
		details = append(details, detail)
	}

	return domain.ListDocumentResponse{PageInfo: pageInfo, Documents: details}, nil
}

// listScoped mirrors repo.List but pushes the visibility predicate into
// the query so restricted principals never see hidden rows.
func (s *Service) listScoped(ctx context.Context, tenantID snowflake.ID, scope access.Scope, filter domain.ListDocumentFilter, page pagination.Pagination) ([]*domain.Document, error) {
	var docs []*domain.Document
	stmt := s.db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("tenant_id = ?", tenantID)
	stmt = scope.Apply(stmt)
	if filter.TagID != 0 {
		stmt = stmt.Where(
			"EXISTS (SELECT 1 FROM document_tags dt2 WHERE dt2.document_id = documents.id AND dt2.tag_id = ?)",
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
	if err := stmt.Order("id desc").Limit(limit + 1).Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.DocumentDetail, error) {
	tenantID, doc, err := s.findDocument(ctx, id)
	if err != nil {
		return domain.DocumentDetail{}, err
	}

	detail, err := s.hydrate(ctx, *doc)
	if err != nil {
		return domain.DocumentDetail{}, err
	}

	scope, err := s.resolver.ScopeFor(ctx, tenantID, access.PrincipalFromContext(ctx))
	if err != nil {
		return domain.DocumentDetail{}, err
	}
	if !scope.Allows(tagIDsOf(detail.Tags)) {
		// A hidden document looks absent rather than forbidden.
		return domain.DocumentDetail{}, domain.ErrNotFound
	}
	return detail, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateDocumentRequest) (domain.DocumentDetail, error) {
	tenantID, doc, err := s.findDocument(ctx, req.ID)
	if err != nil {
		return domain.DocumentDetail{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.DocumentDetail{}, domain.ErrInvalidName
		}
		doc.Name = name
	}
	if req.Metadata != nil {
		doc.Metadata = datatypes.JSONMap(req.Metadata)
	}

	var tagIDs []snowflake.ID
	if req.TagIDs != nil {
		tagIDs, err = s.resolveTagIDs(ctx, tenantID, *req.TagIDs)
		if err != nil {
			return domain.DocumentDetail{}, err
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, doc); err != nil {
			return err
		}
		if req.TagIDs != nil {
			return s.repo.ReplaceDocumentTags(ctx, tx, doc.ID, tagIDs)
		}
		return nil
	})
	if err != nil {
		return domain.DocumentDetail{}, err
	}

	return s.hydrate(ctx, *doc)
}

func (s *Service) Delete(ctx context.Context, id string) error {
	tenantID, doc, err := s.findDocument(ctx, id)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, s.db, tenantID, doc.ID)
}

func (s *Service) CreateVersion(ctx context.Context, req domain.CreateVersionRequest) (domain.DocumentVersion, error) {
	_, doc, err := s.findDocument(ctx, req.DocumentID)
	if err != nil {
		return domain.DocumentVersion{}, err
	}

	fileRef := strings.TrimSpace(req.FileRef)
	if fileRef == "" {
		return domain.DocumentVersion{}, domain.ErrInvalidFileRef
	}

	var version domain.DocumentVersion
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.repo.NextVersionNumber(ctx, tx, doc.ID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		version = domain.DocumentVersion{
			ID:         s.genID.Generate(),
			DocumentID: doc.ID,
			Version:    number,
			Status:     domain.VersionStatusPending,
			FileRef:    fileRef,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		return s.repo.InsertVersion(ctx, tx, &version)
	})
	if err != nil {
		return domain.DocumentVersion{}, err
	}
	return version, nil
}

func (s *Service) ListVersions(ctx context.Context, documentID string) ([]domain.DocumentVersion, error) {
	_, doc, err := s.findDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, s.db, doc.ID)
}

func (s *Service) ApproveVersion(ctx context.Context, documentID, versionID string) (domain.DocumentVersion, error) {
	tenantID, doc, version, err := s.findVersion(ctx, documentID, versionID)
	if err != nil {
		return domain.DocumentVersion{}, err
	}
	if version.Status != domain.VersionStatusPending {
		return domain.DocumentVersion{}, domain.ErrVersionDecided
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateVersionStatus(ctx, tx, version.ID, domain.VersionStatusApproved); err != nil {
			return err
		}
		// A document with no active version serves nothing, so the
		// first approval goes live immediately. Switching between
		// approved versions stays an explicit activate call.
		if doc.ActiveVersionID == nil {
			id := version.ID
			return s.repo.SetActiveVersion(ctx, tx, doc.ID, &id)
		}
		return nil
	})
	if err != nil {
		return domain.DocumentVersion{}, err
	}
	version.Status = domain.VersionStatusApproved

	chunks, err := s.processor.ProcessVersion(ctx, tenantID, doc.ID, version.ID)
	if err != nil {
		// Approval stands; the version can be reprocessed by
		// approving a fresh upload.
		s.log.Error("version processing failed",
			zap.String("document_id", doc.ID.String()),
			zap.String("version_id", version.ID.String()),
			zap.Error(err),
		)
		return *version, err
	}

	s.log.Info("version processed",
		zap.String("document_id", doc.ID.String()),
		zap.String("version_id", version.ID.String()),
		zap.Int("chunks", chunks),
	)
	return *version, nil
}

func (s *Service) RejectVersion(ctx context.Context, documentID, versionID string) (domain.DocumentVersion, error) {
	_, doc, version, err := s.findVersion(ctx, documentID, versionID)
	if err != nil {
		return domain.DocumentVersion{}, err
	}
	if version.Status != domain.VersionStatusPending {
		return domain.DocumentVersion{}, domain.ErrVersionDecided
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateVersionStatus(ctx, tx, version.ID, domain.VersionStatusRejected); err != nil {
			return err
		}
		if doc.ActiveVersionID != nil && *doc.ActiveVersionID == version.ID {
			return s.repo.SetActiveVersion(ctx, tx, doc.ID, nil)
		}
		return nil
	})
	if err != nil {
		return domain.DocumentVersion{}, err
	}
	version.Status = domain.VersionStatusRejected
	return *version, nil
}

func (s *Service) ActivateVersion(ctx context.Context, documentID, versionID string) (domain.DocumentVersion, error) {
	_, doc, version, err := s.findVersion(ctx, documentID, versionID)
	if err != nil {
		return domain.DocumentVersion{}, err
	}
	if version.Status != domain.VersionStatusApproved {
		return domain.DocumentVersion{}, domain.ErrVersionNotApproved
	}

	id := version.ID
	if err := s.repo.SetActiveVersion(ctx, s.db, doc.ID, &id); err != nil {
		return domain.DocumentVersion{}, err
	}
	return *version, nil
}

func (s *Service) CreateTag(ctx context.Context, req domain.CreateTagRequest) (domain.Tag, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.Tag{}, domain.ErrInvalidTenant
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Tag{}, domain.ErrInvalidName
	}

	tag := domain.Tag{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.InsertTag(ctx, s.db, &tag); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Tag{}, domain.ErrInvalidTag
		}
		return domain.Tag{}, err
	}
	return tag, nil
}

func (s *Service) ListTags(ctx context.Context) ([]domain.Tag, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	return s.repo.ListTags(ctx, s.db, tenantID)
}

func (s *Service) DeleteTag(ctx context.Context, id string) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidTenant
	}

	tagID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return domain.ErrInvalidID
	}

	tag, err := s.repo.FindTag(ctx, s.db, tenantID, tagID)
	if err != nil {
		return err
	}
	if tag == nil {
		return domain.ErrNotFound
	}
	return s.repo.DeleteTag(ctx, s.db, tenantID, tagID)
}

func (s *Service) GrantUserTag(ctx context.Context, userID, tagID string) error {
	tenantID, user, tag, err := s.findUserTagPair(ctx, userID, tagID)
	if err != nil {
		return err
	}

	if err := s.repo.GrantUserTag(ctx, s.db, user, tag); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil
		}
		return err
	}
	s.resolver.Invalidate(tenantID, user)
	return nil
}

func (s *Service) RevokeUserTag(ctx context.Context, userID, tagID string) error {
	tenantID, user, tag, err := s.findUserTagPair(ctx, userID, tagID)
	if err != nil {
		return err
	}

	if err := s.repo.RevokeUserTag(ctx, s.db, user, tag); err != nil {
		return err
	}
	s.resolver.Invalidate(tenantID, user)
	return nil
}

func (s *Service) findDocument(ctx context.Context, id string) (snowflake.ID, *domain.Document, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return 0, nil, domain.ErrInvalidTenant
	}

	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return 0, nil, domain.ErrInvalidID
	}

	doc, err := s.repo.FindByID(ctx, s.db, tenantID, parsed)
	if err != nil {
		return 0, nil, err
	}
	if doc == nil {
		return 0, nil, domain.ErrNotFound
	}
	return tenantID, doc, nil
}

func (s *Service) findVersion(ctx context.Context, documentID, versionID string) (snowflake.ID, *domain.Document, *domain.DocumentVersion, error) {
	tenantID, doc, err := s.findDocument(ctx, documentID)
	if err != nil {
		return 0, nil, nil, err
	}

	parsed, err := snowflake.ParseString(strings.TrimSpace(versionID))
	if err != nil {
		return 0, nil, nil, domain.ErrInvalidID
	}

	version, err := s.repo.FindVersion(ctx, s.db, doc.ID, parsed)
	if err != nil {
		return 0, nil, nil, err
	}
	if version == nil {
		return 0, nil, nil, domain.ErrVersionNotFound
	}
	return tenantID, doc, version, nil
}

func (s *Service) findUserTagPair(ctx context.Context, userID, tagID string) (snowflake.ID, snowflake.ID, snowflake.ID, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return 0, 0, 0, domain.ErrInvalidTenant
	}

	user, err := snowflake.ParseString(strings.TrimSpace(userID))
	if err != nil {
		return 0, 0, 0, domain.ErrInvalidID
	}
	parsedTag, err := snowflake.ParseString(strings.TrimSpace(tagID))
	if err != nil {
		return 0, 0, 0, domain.ErrInvalidID
	}

	tag, err := s.repo.FindTag(ctx, s.db, tenantID, parsedTag)
	if err != nil {
		return 0, 0, 0, err
	}
	if tag == nil {
		return 0, 0, 0, domain.ErrNotFound
	}
	return tenantID, user, parsedTag, nil
}

func (s *Service) resolveTagIDs(ctx context.Context, tenantID snowflake.ID, raw []string) ([]snowflake.ID, error) {
	tagIDs := make([]snowflake.ID, 0, len(raw))
	for _, value := range raw {
		tagID, err := snowflake.ParseString(strings.TrimSpace(value))
		if err != nil {
			return nil, domain.ErrInvalidTag
		}
		tag, err := s.repo.FindTag(ctx, s.db, tenantID, tagID)
		if err != nil {
			return nil, err
		}
		if tag == nil {
			return nil, domain.ErrInvalidTag
		}
		tagIDs = append(tagIDs, tagID)
	}
	return tagIDs, nil
}

func (s *Service) hydrate(ctx context.Context, doc domain.Document) (domain.DocumentDetail, error) {
	tags, err := s.repo.TagsForDocument(ctx, s.db, doc.ID)
	if err != nil {
		return domain.DocumentDetail{}, err
	}
	return domain.DocumentDetail{Document: doc, Tags: tags}, nil
}

func tagIDsOf(tags []domain.Tag) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(tags))
	for _, tag := range tags {
		ids = append(ids, tag.ID)
	}
	return ids
}

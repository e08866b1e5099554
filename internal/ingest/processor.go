package ingest

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/chunker"
	document "github.com/lorekeep/lorekeep/internal/document/domain"
	"github.com/lorekeep/lorekeep/internal/providers/openai"
	retrieval "github.com/lorekeep/lorekeep/internal/retrieval/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ProcessorParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Chunker   *chunker.Chunker
	Embedder  openai.EmbeddingClient
	Extractor Extractor
	Docs      document.Repository
	Chunks    retrieval.Repository
}

// Processor runs the chunk-and-embed pipeline for an approved version.
type Processor struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	chunker   *chunker.Chunker
	embedder  openai.EmbeddingClient
	extractor Extractor
	docs      document.Repository
	chunks    retrieval.Repository
}

func New(p ProcessorParam) document.VersionProcessor {
	return &Processor{
		db:        p.DB,
		log:       p.Log.Named("ingest.processor"),
		genID:     p.GenID,
		chunker:   p.Chunker,
		embedder:  p.Embedder,
		extractor: p.Extractor,
		docs:      p.Docs,
		chunks:    p.Chunks,
	}
}

// ProcessVersion extracts, chunks, and embeds a version's content, then
// swaps the stored chunk set. Returns the number of chunks written.
func (p *Processor) ProcessVersion(ctx context.Context, tenantID, documentID, versionID snowflake.ID) (int, error) {
	version, err := p.docs.FindVersion(ctx, p.db, documentID, versionID)
	if err != nil {
		return 0, err
	}
	if version == nil {
		return 0, document.ErrVersionNotFound
	}

	text, err := p.extractor.Extract(ctx, version.FileRef)
	if err != nil {
		return 0, err
	}

	pieces := p.chunker.Split(text)
	if len(pieces) == 0 {
		// An empty source still clears stale chunks.
		return 0, p.chunks.ReplaceChunks(ctx, p.db, versionID, nil)
	}

	texts := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		texts = append(texts, piece.Content)
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	rows := make([]document.DocumentChunk, 0, len(pieces))
	for i, piece := range pieces {
		rows = append(rows, document.DocumentChunk{
			ID:         p.genID.Generate(),
			VersionID:  versionID,
			ChunkIndex: piece.Index,
			Content:    piece.Content,
			Embedding:  vectors[i],
			CreatedAt:  now,
		})
	}

	if err := p.chunks.ReplaceChunks(ctx, p.db, versionID, rows); err != nil {
		return 0, err
	}

	p.log.Info("version ingested",
		zap.String("tenant_id", tenantID.String()),
		zap.String("document_id", documentID.String()),
		zap.String("version_id", versionID.String()),
		zap.Int("chunks", len(rows)),
		zap.String("embedding_model", p.embedder.Model()),
	)
	return len(rows), nil
}

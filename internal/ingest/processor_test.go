package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/lorekeep/lorekeep/internal/chunker"
	"github.com/lorekeep/lorekeep/internal/config"
	document "github.com/lorekeep/lorekeep/internal/document/domain"
	documentrepo "github.com/lorekeep/lorekeep/internal/document/repository"
	"github.com/lorekeep/lorekeep/internal/migration"
	retrievalrepo "github.com/lorekeep/lorekeep/internal/retrieval/repository"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type batchEmbedderFake struct {
	gotTexts []string
	err      error
}

func (e *batchEmbedderFake) Embed(ctx context.Context, text string) ([]float64, error) {
	return []float64{1, 0}, e.err
}

func (e *batchEmbedderFake) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	e.gotTexts = texts
	if e.err != nil {
		return nil, e.err
	}
	vectors := make([][]float64, 0, len(texts))
	for i := range texts {
		vectors = append(vectors, []float64{float64(i), 1})
	}
	return vectors, nil
}

func (e *batchEmbedderFake) Model() string { return "text-embedding-3-small" }

type ingestFixture struct {
	processor document.VersionProcessor
	embedder  *batchEmbedderFake
	db        *gorm.DB
	node      *snowflake.Node
}

func setupProcessor(t *testing.T) *ingestFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := migration.AutoMigrate(db); err != nil {
		t.Fatal(err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}

	embedder := &batchEmbedderFake{}
	processor := New(ProcessorParam{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Chunker:   chunker.New(config.ChunkerConfig{MaxChunkSize: 50, ChunkOverlap: 10}),
		Embedder:  embedder,
		Extractor: NewHTTPExtractor(),
		Docs:      documentrepo.Provide(),
		Chunks:    retrievalrepo.Provide(),
	})

	return &ingestFixture{processor: processor, embedder: embedder, db: db, node: node}
}

func (f *ingestFixture) addVersion(t *testing.T, fileRef string) (snowflake.ID, snowflake.ID, snowflake.ID) {
	t.Helper()

	tenantID := f.node.Generate()
	doc := document.Document{ID: f.node.Generate(), TenantID: tenantID, Name: "Handbook"}
	if err := f.db.Create(&doc).Error; err != nil {
		t.Fatal(err)
	}
	version := document.DocumentVersion{
		ID:         f.node.Generate(),
		DocumentID: doc.ID,
		Version:    1,
		Status:     document.VersionStatusApproved,
		FileRef:    fileRef,
	}
	if err := f.db.Create(&version).Error; err != nil {
		t.Fatal(err)
	}
	return tenantID, doc.ID, version.ID
}

func (f *ingestFixture) storedChunks(t *testing.T, versionID snowflake.ID) []document.DocumentChunk {
	t.Helper()
	var chunks []document.DocumentChunk
	if err := f.db.Where("version_id = ?", versionID).Order("chunk_index").Find(&chunks).Error; err != nil {
		t.Fatal(err)
	}
	return chunks
}

func TestProcessVersionWritesChunks(t *testing.T) {
	fixture := setupProcessor(t)
	text := "First paragraph of the handbook.\n\nSecond paragraph, a bit longer than the first one."
	tenantID, docID, versionID := fixture.addVersion(t, text)

	count, err := fixture.processor.ProcessVersion(context.Background(), tenantID, docID, versionID)
	assert.NoError(t, err)
	assert.Greater(t, count, 1)

	chunks := fixture.storedChunks(t, versionID)
	assert.Len(t, chunks, count)
	assert.Len(t, fixture.embedder.gotTexts, count)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, []float64{float64(i), 1}, chunk.Embedding)
	}
}

func TestProcessVersionReplacesStaleChunks(t *testing.T) {
	fixture := setupProcessor(t)
	tenantID, docID, versionID := fixture.addVersion(t, "Fresh content.")

	stale := document.DocumentChunk{
		ID:        fixture.node.Generate(),
		VersionID: versionID,
		Content:   "stale",
	}
	if err := fixture.db.Create(&stale).Error; err != nil {
		t.Fatal(err)
	}

	count, err := fixture.processor.ProcessVersion(context.Background(), tenantID, docID, versionID)
	assert.NoError(t, err)
	assert.Equal(t, 1, count)

	chunks := fixture.storedChunks(t, versionID)
	if assert.Len(t, chunks, 1) {
		assert.Equal(t, "Fresh content.", chunks[0].Content)
	}
}

func TestProcessVersionEmptySourceClearsChunks(t *testing.T) {
	fixture := setupProcessor(t)
	tenantID, docID, versionID := fixture.addVersion(t, "   ")

	stale := document.DocumentChunk{
		ID:        fixture.node.Generate(),
		VersionID: versionID,
		Content:   "stale",
	}
	if err := fixture.db.Create(&stale).Error; err != nil {
		t.Fatal(err)
	}

	count, err := fixture.processor.ProcessVersion(context.Background(), tenantID, docID, versionID)
	assert.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, fixture.storedChunks(t, versionID))
}

func TestProcessVersionUnknownVersion(t *testing.T) {
	fixture := setupProcessor(t)
	tenantID, docID, _ := fixture.addVersion(t, "content")

	_, err := fixture.processor.ProcessVersion(context.Background(), tenantID, docID, fixture.node.Generate())
	assert.ErrorIs(t, err, document.ErrVersionNotFound)
}

func TestExtractInlineText(t *testing.T) {
	extractor := NewHTTPExtractor()

	text, err := extractor.Extract(context.Background(), "plain inline reference")
	assert.NoError(t, err)
	assert.Equal(t, "plain inline reference", text)
	assert.False(t, strings.HasPrefix(text, "http"))
}

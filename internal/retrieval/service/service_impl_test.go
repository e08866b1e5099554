package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/access"
	document "github.com/lorekeep/lorekeep/internal/document/domain"
	"github.com/lorekeep/lorekeep/internal/retrieval/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type repoStub struct {
	candidates []domain.Candidate
	err        error
}

func (r *repoStub) ReplaceChunks(ctx context.Context, db *gorm.DB, versionID snowflake.ID, chunks []document.DocumentChunk) error {
	return nil
}

func (r *repoStub) Candidates(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, scope access.Scope) ([]domain.Candidate, error) {
	return r.candidates, r.err
}

func newTestRetriever(candidates []domain.Candidate) domain.Retriever {
	return New(RetrieverParam{
		Log:  zap.NewNop(),
		Repo: &repoStub{candidates: candidates},
	})
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2, 3}, []float64{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float64{1, 0}, []float64{-1, 0}), 1e-9)

	// Malformed chunk vectors score zero instead of erroring.
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 2}, []float64{1, 2, 3}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1, 2}, []float64{0, 0}))
	assert.Equal(t, 0.0, CosineSimilarity(nil, nil))
}

func TestRetrieveEmptyQueryVector(t *testing.T) {
	retriever := newTestRetriever(nil)

	_, err := retriever.Retrieve(context.Background(), 1, access.AllScope(), nil, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidQueryVector)
}

func TestRetrieveRanksByScore(t *testing.T) {
	candidates := []domain.Candidate{
		{ChunkID: 1, DocumentID: 10, ChunkIndex: 0, Embedding: []float64{0, 1}},
		{ChunkID: 2, DocumentID: 20, ChunkIndex: 0, Embedding: []float64{1, 0}},
		{ChunkID: 3, DocumentID: 30, ChunkIndex: 0, Embedding: []float64{1, 1}},
	}
	retriever := newTestRetriever(candidates)

	results, err := retriever.Retrieve(context.Background(), 1, access.AllScope(), []float64{1, 0}, 5)
	assert.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, snowflake.ID(2), results[0].ChunkID)
	assert.Equal(t, snowflake.ID(3), results[1].ChunkID)
	assert.Equal(t, snowflake.ID(1), results[2].ChunkID)
}

func TestRetrieveTieBreakIsDeterministic(t *testing.T) {
	// All candidates score identically; order must fall back to
	// document then chunk position.
	candidates := []domain.Candidate{
		{ChunkID: 1, DocumentID: 20, ChunkIndex: 1, Embedding: []float64{1, 0}},
		{ChunkID: 2, DocumentID: 10, ChunkIndex: 1, Embedding: []float64{1, 0}},
		{ChunkID: 3, DocumentID: 10, ChunkIndex: 0, Embedding: []float64{1, 0}},
	}
	retriever := newTestRetriever(candidates)

	for i := 0; i < 5; i++ {
		results, err := retriever.Retrieve(context.Background(), 1, access.AllScope(), []float64{1, 0}, 5)
		assert.NoError(t, err)
		assert.Len(t, results, 3)
		assert.Equal(t, snowflake.ID(3), results[0].ChunkID)
		assert.Equal(t, snowflake.ID(2), results[1].ChunkID)
		assert.Equal(t, snowflake.ID(1), results[2].ChunkID)
	}
}

func TestRetrieveTopK(t *testing.T) {
	candidates := make([]domain.Candidate, 0, 8)
	for i := 0; i < 8; i++ {
		candidates = append(candidates, domain.Candidate{
			ChunkID:    snowflake.ID(i + 1),
			DocumentID: snowflake.ID(i + 1),
			Embedding:  []float64{1, float64(i)},
		})
	}
	retriever := newTestRetriever(candidates)

	results, err := retriever.Retrieve(context.Background(), 1, access.AllScope(), []float64{1, 0}, 3)
	assert.NoError(t, err)
	assert.Len(t, results, 3)

	// Non-positive topK falls back to the default of 5.
	results, err = retriever.Retrieve(context.Background(), 1, access.AllScope(), []float64{1, 0}, 0)
	assert.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestRetrieveNoCandidates(t *testing.T) {
	retriever := newTestRetriever(nil)

	results, err := retriever.Retrieve(context.Background(), 1, access.PublicScope(), []float64{1, 0}, 5)
	assert.NoError(t, err)
	assert.Empty(t, results)
}

package service

import (
	"context"
	"math"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/access"
	"github.com/lorekeep/lorekeep/internal/retrieval/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type RetrieverParam struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo domain.Repository
}

// Retriever scores candidates by cosine similarity with a linear scan.
// Corpora here are small enough that an approximate index would cost
// more than it saves.
type Retriever struct {
	db   *gorm.DB
	log  *zap.Logger
	repo domain.Repository
}

func New(p RetrieverParam) domain.Retriever {
	return &Retriever{
		db:   p.DB,
		log:  p.Log.Named("retrieval.service"),
		repo: p.Repo,
	}
}

func (r *Retriever) Retrieve(ctx context.Context, tenantID snowflake.ID, scope access.Scope, query []float64, topK int) ([]domain.Result, error) {
	if len(query) == 0 {
		return nil, domain.ErrInvalidQueryVector
	}
	if topK <= 0 {
		topK = 5
	}

	candidates, err := r.repo.Candidates(ctx, r.db, tenantID, scope)
	if err != nil {
		return nil, err
	}

	results := make([]domain.Result, 0, len(candidates))
	for _, candidate := range candidates {
		results = append(results, domain.Result{
			Candidate: candidate,
			Score:     CosineSimilarity(query, candidate.Embedding),
		})
	}

	// Ties break on document then chunk position so identical inputs
	// always produce identical rankings.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].DocumentID != results[j].DocumentID {
			return results[i].DocumentID < results[j].DocumentID
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// CosineSimilarity returns the cosine of the angle between two vectors.
// Mismatched dimensions or a zero-norm vector score zero rather than
// erroring, so one malformed chunk cannot fail a whole query.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

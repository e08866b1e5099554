package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/lorekeep/lorekeep/internal/access"
	"github.com/lorekeep/lorekeep/internal/answer/domain"
	billing "github.com/lorekeep/lorekeep/internal/billing/domain"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/observability/metrics"
	"github.com/lorekeep/lorekeep/internal/providers/openai"
	retrieval "github.com/lorekeep/lorekeep/internal/retrieval/domain"
	"github.com/lorekeep/lorekeep/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// fallbackAnswer is returned verbatim when retrieval comes back
	// empty. No provider call is made and nothing is charged.
	fallbackAnswer = "I could not find relevant information in the knowledge base to answer that question."

	systemPrompt = "You are a helpful assistant answering questions using only the provided context. " +
		"If the context does not contain the answer, say you do not know. " +
		"Never mention chunk numbers or the existence of the context block in your reply."

	maxHistoryMessages = 10
)

type ServiceParam struct {
	fx.In

	Config    config.Config
	Log       *zap.Logger
	Resolver  *access.Resolver
	Embedder  openai.EmbeddingClient
	Chat      openai.ChatClient
	Retriever retrieval.Retriever
	Billing   billing.Service
	Metrics   *metrics.Metrics
}

type Service struct {
	cfg       config.Config
	log       *zap.Logger
	resolver  *access.Resolver
	embedder  openai.EmbeddingClient
	chat      openai.ChatClient
	retriever retrieval.Retriever
	billing   billing.Service
	metrics   *metrics.Metrics
}

func New(p ServiceParam) domain.Service {
	return &Service{
		cfg:       p.Config,
		log:       p.Log.Named("answer.service"),
		resolver:  p.Resolver,
		embedder:  p.Embedder,
		chat:      p.Chat,
		retriever: p.Retriever,
		billing:   p.Billing,
		metrics:   p.Metrics,
	}
}

func (s *Service) Ask(ctx context.Context, req domain.AskRequest) (domain.AskResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.AskResponse{}, domain.ErrInvalidTenant
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return domain.AskResponse{}, domain.ErrInvalidQuery
	}

	// Missing credentials fail before any retrieval work starts.
	if !s.cfg.OpenAI.Configured() {
		return domain.AskResponse{}, openai.ErrNotConfigured
	}

	// Advisory gate: evaluated before the expensive provider calls.
	// Concurrent requests can both pass and drive the balance
	// negative, which is the documented behavior.
	status, err := s.billing.CheckBalance(ctx, tenantID)
	if err != nil {
		return domain.AskResponse{}, err
	}
	if !status.HasBalance {
		s.metrics.RecordQuery(ctx, "insufficient_balance")
		return domain.AskResponse{}, &domain.InsufficientBalanceError{Balance: status.Balance}
	}

	scope, err := s.resolver.ScopeFor(ctx, tenantID, access.PrincipalFromContext(ctx))
	if err != nil {
		return domain.AskResponse{}, err
	}

	queryVector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		s.metrics.RecordProviderError(ctx, "openai", "embed")
		return domain.AskResponse{}, err
	}

	results, err := s.retriever.Retrieve(ctx, tenantID, scope, queryVector, s.cfg.Retrieval.TopK)
	if err != nil {
		return domain.AskResponse{}, err
	}
	if len(results) == 0 {
		s.metrics.RecordQuery(ctx, "no_context")
		return domain.AskResponse{Answer: fallbackAnswer}, nil
	}

	completion, err := s.chat.Complete(ctx, s.buildMessages(query, req.ConversationHistory, results))
	if err != nil {
		s.metrics.RecordProviderError(ctx, "openai", "complete")
		return domain.AskResponse{}, err
	}

	// The completion happened, so its cost must be recorded even if
	// the caller has gone away by now.
	chargeCtx := context.WithoutCancel(ctx)
	cost, err := s.billing.TrackTokenUsage(chargeCtx, tenantID, completion.Model, completion.Usage.PromptTokens, completion.Usage.CompletionTokens)
	if err != nil {
		s.log.Error("charge failed after completion",
			zap.String("tenant_id", tenantID.String()),
			zap.String("model", completion.Model),
			zap.Error(err),
		)
		return domain.AskResponse{}, err
	}

	s.metrics.RecordQuery(ctx, "answered")
	return domain.AskResponse{
		Answer:  completion.Content,
		Sources: dedupeSources(results),
		Usage: &domain.Usage{
			PromptTokens:     completion.Usage.PromptTokens,
			CompletionTokens: completion.Usage.CompletionTokens,
			TotalTokens:      completion.Usage.TotalTokens,
			Cost:             cost,
		},
	}, nil
}

// buildMessages assembles the prompt: system instructions, a numbered
// context block, the most recent history, then the question.
func (s *Service) buildMessages(query string, history []domain.ChatMessage, results []retrieval.Result) []openai.Message {
	var contextBlock strings.Builder
	for i, result := range results {
		fmt.Fprintf(&contextBlock, "[Chunk %d] (from %q)\n%s\n\n", i+1, result.DocumentName, result.Content)
	}

	messages := make([]openai.Message, 0, len(history)+3)
	messages = append(messages, openai.Message{
		Role:    "system",
		Content: systemPrompt + "\n\nContext:\n" + contextBlock.String(),
	})

	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	for _, message := range history {
		role := message.Role
		if role != "user" && role != "assistant" {
			continue
		}
		messages = append(messages, openai.Message{Role: role, Content: message.Content})
	}

	messages = append(messages, openai.Message{Role: "user", Content: query})
	return messages
}

// dedupeSources keeps the first-seen (highest ranked) chunk per
// document.
func dedupeSources(results []retrieval.Result) []retrieval.Source {
	seen := make(map[int64]struct{}, len(results))
	sources := make([]retrieval.Source, 0, len(results))
	for _, result := range results {
		if _, ok := seen[int64(result.DocumentID)]; ok {
			continue
		}
		seen[int64(result.DocumentID)] = struct{}{}
		sources = append(sources, retrieval.Source{
			DocumentID:   result.DocumentID,
			DocumentName: result.DocumentName,
			SourceURL:    result.SourceURL,
			ChunkIndex:   result.ChunkIndex,
			Score:        result.Score,
		})
	}
	return sources
}

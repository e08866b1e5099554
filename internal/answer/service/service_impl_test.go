package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/access"
	"github.com/lorekeep/lorekeep/internal/answer/domain"
	billing "github.com/lorekeep/lorekeep/internal/billing/domain"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/observability/metrics"
	"github.com/lorekeep/lorekeep/internal/providers/openai"
	retrieval "github.com/lorekeep/lorekeep/internal/retrieval/domain"
	"github.com/lorekeep/lorekeep/internal/tenantctx"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

// -- Fakes --

type embedderFake struct {
	vector []float64
	err    error
	calls  int
}

func (e *embedderFake) Embed(ctx context.Context, text string) ([]float64, error) {
	e.calls++
	return e.vector, e.err
}

func (e *embedderFake) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	return nil, e.err
}

func (e *embedderFake) Model() string { return "text-embedding-3-small" }

type chatFake struct {
	completion  openai.Completion
	err         error
	calls       int
	gotMessages []openai.Message
}

func (c *chatFake) Complete(ctx context.Context, messages []openai.Message) (openai.Completion, error) {
	c.calls++
	c.gotMessages = messages
	return c.completion, c.err
}

func (c *chatFake) ChatModel() string { return "gpt-4o-mini" }

type retrieverFake struct {
	results []retrieval.Result
	err     error
}

func (r *retrieverFake) Retrieve(ctx context.Context, tenantID snowflake.ID, scope access.Scope, query []float64, topK int) ([]retrieval.Result, error) {
	return r.results, r.err
}

type billingFake struct {
	status      billing.BalanceStatus
	cost        float64
	trackCalls  int
	trackedMdl  string
	trackErr    error
	balanceErr  error
}

func (b *billingFake) CalculateCost(model string, promptTokens, completionTokens int) float64 {
	return b.cost
}

func (b *billingFake) CheckBalance(ctx context.Context, tenantID snowflake.ID) (billing.BalanceStatus, error) {
	return b.status, b.balanceErr
}

func (b *billingFake) TrackTokenUsage(ctx context.Context, tenantID snowflake.ID, model string, promptTokens, completionTokens int) (float64, error) {
	b.trackCalls++
	b.trackedMdl = model
	return b.cost, b.trackErr
}

func (b *billingFake) Credit(ctx context.Context, req billing.CreditRequest) (billing.CreditResult, error) {
	return billing.CreditResult{}, nil
}

func (b *billingFake) ListTransactions(ctx context.Context, req billing.ListTransactionRequest) (billing.ListTransactionResponse, error) {
	return billing.ListTransactionResponse{}, nil
}

func (b *billingFake) UsageReport(ctx context.Context, req billing.UsageReportRequest) (billing.UsageReportResponse, error) {
	return billing.UsageReportResponse{}, nil
}

// -- Setup --

type answerFixture struct {
	service   domain.Service
	embedder  *embedderFake
	chat      *chatFake
	retriever *retrieverFake
	billing   *billingFake
}

func setupAnswerService(t *testing.T, cfg config.Config) *answerFixture {
	t.Helper()

	m, err := metrics.New(metrics.Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}

	fixture := &answerFixture{
		embedder: &embedderFake{vector: []float64{1, 0}},
		chat: &chatFake{completion: openai.Completion{
			Content: "The answer.",
			Model:   "gpt-4o-mini",
			Usage:   openai.Usage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500},
		}},
		retriever: &retrieverFake{},
		billing:   &billingFake{status: billing.BalanceStatus{HasBalance: true, Balance: 10}, cost: 0.00045},
	}

	fixture.service = New(ServiceParam{
		Config:    cfg,
		Log:       zap.NewNop(),
		Resolver:  access.NewResolver(access.ResolverParam{Log: zap.NewNop()}),
		Embedder:  fixture.embedder,
		Chat:      fixture.chat,
		Retriever: fixture.retriever,
		Billing:   fixture.billing,
		Metrics:   m,
	})
	return fixture
}

func configuredConfig() config.Config {
	return config.Config{
		OpenAI:    config.OpenAIConfig{APIKey: "sk-test"},
		Retrieval: config.RetrievalConfig{TopK: 5},
	}
}

func answerContext() context.Context {
	return tenantctx.WithTenantID(context.Background(), 1)
}

func sampleResults() []retrieval.Result {
	return []retrieval.Result{
		{Candidate: retrieval.Candidate{ChunkID: 1, DocumentID: 10, DocumentName: "Handbook", SourceURL: "https://kb.example.com/handbook", ChunkIndex: 2, Content: "Alpha"}, Score: 0.9},
		{Candidate: retrieval.Candidate{ChunkID: 2, DocumentID: 10, DocumentName: "Handbook", SourceURL: "https://kb.example.com/handbook", ChunkIndex: 5, Content: "Beta"}, Score: 0.8},
		{Candidate: retrieval.Candidate{ChunkID: 3, DocumentID: 20, DocumentName: "FAQ", ChunkIndex: 0, Content: "Gamma"}, Score: 0.7},
	}
}

// -- Tests --

func TestAskRequiresTenantAndQuery(t *testing.T) {
	fixture := setupAnswerService(t, configuredConfig())

	_, err := fixture.service.Ask(context.Background(), domain.AskRequest{Query: "hello"})
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)

	_, err = fixture.service.Ask(answerContext(), domain.AskRequest{Query: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}

func TestAskFailsWhenProviderUnconfigured(t *testing.T) {
	fixture := setupAnswerService(t, config.Config{})

	_, err := fixture.service.Ask(answerContext(), domain.AskRequest{Query: "hello"})
	assert.ErrorIs(t, err, openai.ErrNotConfigured)
	assert.Zero(t, fixture.embedder.calls)
}

func TestAskRejectsWithoutBalance(t *testing.T) {
	fixture := setupAnswerService(t, configuredConfig())
	fixture.billing.status = billing.BalanceStatus{HasBalance: false, Balance: -0.5}

	_, err := fixture.service.Ask(answerContext(), domain.AskRequest{Query: "hello"})

	var insufficient *domain.InsufficientBalanceError
	assert.ErrorAs(t, err, &insufficient)
	assert.InDelta(t, -0.5, insufficient.Balance, 1e-9)

	// The gate runs before any provider call.
	assert.Zero(t, fixture.embedder.calls)
	assert.Zero(t, fixture.chat.calls)
}

func TestAskFallsBackWithoutContext(t *testing.T) {
	fixture := setupAnswerService(t, configuredConfig())
	fixture.retriever.results = nil

	resp, err := fixture.service.Ask(answerContext(), domain.AskRequest{Query: "hello"})
	assert.NoError(t, err)
	assert.Equal(t, fallbackAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Nil(t, resp.Usage)

	// No completion happened, so nothing is charged.
	assert.Zero(t, fixture.chat.calls)
	assert.Zero(t, fixture.billing.trackCalls)
}

func TestAskAnswersAndCharges(t *testing.T) {
	fixture := setupAnswerService(t, configuredConfig())
	fixture.retriever.results = sampleResults()

	resp, err := fixture.service.Ask(answerContext(), domain.AskRequest{Query: "What is alpha?"})
	assert.NoError(t, err)
	assert.Equal(t, "The answer.", resp.Answer)

	assert.Equal(t, 1, fixture.billing.trackCalls)
	assert.Equal(t, "gpt-4o-mini", fixture.billing.trackedMdl)
	if assert.NotNil(t, resp.Usage) {
		assert.Equal(t, 1000, resp.Usage.PromptTokens)
		assert.Equal(t, 500, resp.Usage.CompletionTokens)
		assert.InDelta(t, 0.00045, resp.Usage.Cost, 1e-9)
	}
}

func TestAskDedupesSourcesPerDocument(t *testing.T) {
	fixture := setupAnswerService(t, configuredConfig())
	fixture.retriever.results = sampleResults()

	resp, err := fixture.service.Ask(answerContext(), domain.AskRequest{Query: "hello"})
	assert.NoError(t, err)

	// Two chunks of the Handbook collapse into its best-ranked one.
	assert.Len(t, resp.Sources, 2)
	assert.Equal(t, snowflake.ID(10), resp.Sources[0].DocumentID)
	assert.Equal(t, "https://kb.example.com/handbook", resp.Sources[0].SourceURL)
	assert.Equal(t, 2, resp.Sources[0].ChunkIndex)
	assert.InDelta(t, 0.9, resp.Sources[0].Score, 1e-9)
	assert.Equal(t, snowflake.ID(20), resp.Sources[1].DocumentID)
	assert.Empty(t, resp.Sources[1].SourceURL)
}

func TestAskTrimsAndFiltersHistory(t *testing.T) {
	fixture := setupAnswerService(t, configuredConfig())
	fixture.retriever.results = sampleResults()

	history := make([]domain.ChatMessage, 0, 15)
	for i := 0; i < 14; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		history = append(history, domain.ChatMessage{Role: role, Content: "turn"})
	}
	history = append(history, domain.ChatMessage{Role: "system", Content: "ignore me"})

	_, err := fixture.service.Ask(answerContext(), domain.AskRequest{Query: "hello", ConversationHistory: history})
	assert.NoError(t, err)

	// One system message, at most ten history turns minus the foreign
	// role, then the question.
	messages := fixture.chat.gotMessages
	assert.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[0].Content, "Alpha")
	assert.Equal(t, "user", messages[len(messages)-1].Role)
	assert.Equal(t, "hello", messages[len(messages)-1].Content)
	assert.Len(t, messages, 1+9+1)
}

func TestAskPropagatesChargeFailure(t *testing.T) {
	fixture := setupAnswerService(t, configuredConfig())
	fixture.retriever.results = sampleResults()
	fixture.billing.trackErr = billing.ErrTenantNotFound

	_, err := fixture.service.Ask(answerContext(), domain.AskRequest{Query: "hello"})
	assert.ErrorIs(t, err, billing.ErrTenantNotFound)
}

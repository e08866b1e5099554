package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/billing/domain"
	"github.com/lorekeep/lorekeep/internal/clock"
	"github.com/lorekeep/lorekeep/internal/observability/metrics"
	tenantdomain "github.com/lorekeep/lorekeep/internal/tenant/domain"
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

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Tenants tenantdomain.Repository
	Metrics *metrics.Metrics
	Clock   clock.Clock
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	tenants tenantdomain.Repository
	metrics *metrics.Metrics
	clock   clock.Clock
}

func New(p ServiceParam) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("billing.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		tenants: p.Tenants,
		metrics: p.Metrics,
		clock:   p.Clock,
	}
}

// CalculateCost prices a call from the per-model rate table. Rates are
// per 1000 tokens.
func (s *Service) CalculateCost(model string, promptTokens, completionTokens int) float64 {
	rate := domain.RateFor(model)
	return float64(promptTokens)/1000*rate.Prompt + float64(completionTokens)/1000*rate.Completion
}

// CheckBalance is the advisory pre-flight gate. It reads the balance
// without reserving anything; see BalanceStatus.
func (s *Service) CheckBalance(ctx context.Context, tenantID snowflake.ID) (domain.BalanceStatus, error) {
	tenant, err := s.tenants.FindByID(ctx, s.db, tenantID)
	if err != nil {
		return domain.BalanceStatus{}, err
	}
	if tenant == nil {
		return domain.BalanceStatus{}, domain.ErrTenantNotFound
	}
	return domain.BalanceStatus{
		HasBalance: tenant.Balance > 0,
		Balance:    tenant.Balance,
	}, nil
}

func (s *Service) TrackTokenUsage(ctx context.Context, tenantID snowflake.ID, model string, promptTokens, completionTokens int) (float64, error) {
	cost := s.CalculateCost(model, promptTokens, completionTokens)
	now := s.clock.Now()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		usage := domain.TokenUsage{
			ID:               s.genID.Generate(),
			TenantID:         tenantID,
			Day:              datatypes.Date(day),
			Model:            model,
			PromptTokens:     int64(promptTokens),
			CompletionTokens: int64(completionTokens),
			TotalTokens:      int64(promptTokens + completionTokens),
			Cost:             cost,
			RequestCount:     1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := s.repo.UpsertUsage(ctx, tx, &usage); err != nil {
			return err
		}

		charge := domain.BillingTransaction{
			ID:          s.genID.Generate(),
			TenantID:    tenantID,
			Type:        domain.TransactionTypeCharge,
			Status:      domain.TransactionStatusCompleted,
			Amount:      cost,
			Description: "token usage " + model,
			CreatedAt:   now,
		}
		if err := s.repo.InsertTransaction(ctx, tx, &charge); err != nil {
			return err
		}

		return s.tenants.AddBalance(ctx, tx, tenantID, -cost, cost)
	})
	if err != nil {
		return 0, err
	}

	s.metrics.RecordTokensBilled(ctx, model, int64(promptTokens), int64(completionTokens))
	s.log.Info("usage charged",
		zap.String("tenant_id", tenantID.String()),
		zap.String("model", model),
		zap.Int("prompt_tokens", promptTokens),
		zap.Int("completion_tokens", completionTokens),
		zap.Float64("cost", cost),
	)
	return cost, nil
}

// Credit applies a top-up at most once per (tenant, reference). The
// unique index on the ledger makes the duplicate insert fail, which is
// treated as the already-processed case.
func (s *Service) Credit(ctx context.Context, req domain.CreditRequest) (domain.CreditResult, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return domain.CreditResult{}, domain.ErrInvalidReference
	}
	if req.Amount <= 0 {
		return domain.CreditResult{}, domain.ErrInvalidAmount
	}

	tenant, err := s.tenants.FindByID(ctx, s.db, req.TenantID)
	if err != nil {
		return domain.CreditResult{}, err
	}
	if tenant == nil {
		return domain.CreditResult{}, domain.ErrTenantNotFound
	}

	now := s.clock.Now()
	topUp := domain.BillingTransaction{
		ID:        s.genID.Generate(),
		TenantID:  req.TenantID,
		Type:      domain.TransactionTypeTopUp,
		Status:    domain.TransactionStatusCompleted,
		Amount:    req.Amount,
		Reference: &reference,
		CreatedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertTransaction(ctx, tx, &topUp); err != nil {
			return err
		}
		return s.tenants.AddBalance(ctx, tx, req.TenantID, req.Amount, 0)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			s.metrics.RecordCreditEvent(ctx, "duplicate")
			s.log.Info("duplicate top-up ignored",
				zap.String("tenant_id", req.TenantID.String()),
				zap.String("reference", reference),
			)
			return domain.CreditResult{AlreadyProcessed: true, Balance: s.currentBalance(ctx, req.TenantID, tenant.Balance)}, nil
		}
		return domain.CreditResult{}, err
	}

	s.metrics.RecordCreditEvent(ctx, "completed")
	s.log.Info("balance credited",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("reference", reference),
		zap.Float64("amount", req.Amount),
	)
	return domain.CreditResult{Balance: s.currentBalance(ctx, req.TenantID, tenant.Balance+req.Amount)}, nil
}

// currentBalance re-reads the balance after a ledger write so the caller
// sees the committed value, not the pre-transaction snapshot. A failed
// re-read falls back to the computed value.
func (s *Service) currentBalance(ctx context.Context, tenantID snowflake.ID, fallback float64) float64 {
	tenant, err := s.tenants.FindByID(ctx, s.db, tenantID)
	if err != nil || tenant == nil {
		return fallback
	}
	return tenant.Balance
}

func (s *Service) ListTransactions(ctx context.Context, req domain.ListTransactionRequest) (domain.ListTransactionResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.ListTransactionResponse{}, domain.ErrInvalidTenant
	}

	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}
	if page.PageSize <= 0 {
		page.PageSize = 10
	}
	transactions, err := s.repo.ListTransactions(ctx, s.db, tenantID, page)
	if err != nil {
		return domain.ListTransactionResponse{}, err
	}

	transactions, pageInfo := pagination.BuildCursorPageInfo(transactions, page.PageSize, func(t *domain.BillingTransaction) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: t.ID.String()})
		return token
	})

	items := make([]domain.BillingTransaction, 0, len(transactions))
	for _, transaction := range transactions {
		items = append(items, *transaction)
	}
	return domain.ListTransactionResponse{PageInfo: pageInfo, Transactions: items}, nil
}

func (s *Service) UsageReport(ctx context.Context, req domain.UsageReportRequest) (domain.UsageReportResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.UsageReportResponse{}, domain.ErrInvalidTenant
	}

	month := strings.TrimSpace(req.Month)
	var from time.Time
	if month == "" {
		now := s.clock.Now()
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		month = from.Format("2006-01")
	} else {
		parsed, err := time.Parse("2006-01", month)
		if err != nil {
			return domain.UsageReportResponse{}, domain.ErrInvalidMonth
		}
		from = parsed
	}
	to := from.AddDate(0, 1, 0)

	rows, err := s.repo.UsageRows(ctx, s.db, tenantID, from, to)
	if err != nil {
		return domain.UsageReportResponse{}, err
	}

	report := domain.UsageReportResponse{Month: month, Rows: rows}
	for _, row := range rows {
		report.TotalPromptTokens += row.PromptTokens
		report.TotalCompletionTokens += row.CompletionTokens
		report.TotalCost += row.Cost
		report.TotalRequests += row.RequestCount
	}
	return report, nil
}

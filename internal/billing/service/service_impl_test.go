package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/lorekeep/lorekeep/internal/billing/domain"
	billingrepo "github.com/lorekeep/lorekeep/internal/billing/repository"
	"github.com/lorekeep/lorekeep/internal/clock"
	"github.com/lorekeep/lorekeep/internal/observability/metrics"
	tenantdomain "github.com/lorekeep/lorekeep/internal/tenant/domain"
	tenantrepo "github.com/lorekeep/lorekeep/internal/tenant/repository"
	"github.com/lorekeep/lorekeep/internal/tenantctx"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupBillingService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock, snowflake.ID) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.AutoMigrate(
		&tenantdomain.Tenant{},
		&domain.TokenUsage{},
		&domain.BillingTransaction{},
	); err != nil {
		t.Fatal(err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatal(err)
	}

	tenant := tenantdomain.Tenant{ID: node.Generate(), Name: "Acme"}
	if err := db.Create(&tenant).Error; err != nil {
		t.Fatal(err)
	}

	m, err := metrics.New(metrics.Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}

	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	service := New(ServiceParam{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    billingrepo.Provide(),
		Tenants: tenantrepo.Provide(),
		Metrics: m,
		Clock:   fakeClock,
	})
	return service, db, fakeClock, tenant.ID
}

func tenantBalance(t *testing.T, db *gorm.DB, id snowflake.ID) float64 {
	t.Helper()
	var tenant tenantdomain.Tenant
	if err := db.First(&tenant, "id = ?", id).Error; err != nil {
		t.Fatal(err)
	}
	return tenant.Balance
}

func TestCalculateCost(t *testing.T) {
	service, _, _, _ := setupBillingService(t)

	// gpt-4o-mini: 0.00015/1K prompt, 0.0006/1K completion.
	cost := service.CalculateCost("gpt-4o-mini", 1000, 500)
	assert.InDelta(t, 0.00045, cost, 1e-9)

	// Unknown models price at the conservative default rate.
	cost = service.CalculateCost("some-future-model", 1000, 1000)
	assert.InDelta(t, 0.0125, cost, 1e-9)

	assert.Equal(t, 0.0, service.CalculateCost("gpt-4o-mini", 0, 0))
}

func TestCheckBalance(t *testing.T) {
	service, db, _, tenantID := setupBillingService(t)
	ctx := context.Background()

	status, err := service.CheckBalance(ctx, tenantID)
	assert.NoError(t, err)
	assert.False(t, status.HasBalance)
	assert.Equal(t, 0.0, status.Balance)

	assert.NoError(t, db.Model(&tenantdomain.Tenant{}).Where("id = ?", tenantID).Update("balance", 2.5).Error)

	status, err = service.CheckBalance(ctx, tenantID)
	assert.NoError(t, err)
	assert.True(t, status.HasBalance)
	assert.InDelta(t, 2.5, status.Balance, 1e-9)

	_, err = service.CheckBalance(ctx, snowflake.ID(999))
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestTrackTokenUsageAggregatesPerDay(t *testing.T) {
	service, db, _, tenantID := setupBillingService(t)
	ctx := context.Background()

	cost1, err := service.TrackTokenUsage(ctx, tenantID, "gpt-4o-mini", 1000, 500)
	assert.NoError(t, err)
	assert.InDelta(t, 0.00045, cost1, 1e-9)

	cost2, err := service.TrackTokenUsage(ctx, tenantID, "gpt-4o-mini", 500, 250)
	assert.NoError(t, err)

	// Same tenant, day, and model lands in one aggregate row.
	var usages []domain.TokenUsage
	assert.NoError(t, db.Where("tenant_id = ?", tenantID).Find(&usages).Error)
	assert.Len(t, usages, 1)
	assert.Equal(t, int64(1500), usages[0].PromptTokens)
	assert.Equal(t, int64(750), usages[0].CompletionTokens)
	assert.Equal(t, int64(2250), usages[0].TotalTokens)
	assert.Equal(t, int64(2), usages[0].RequestCount)
	assert.InDelta(t, cost1+cost2, usages[0].Cost, 1e-9)

	// Each call appends its own ledger entry and debits the balance.
	var charges []domain.BillingTransaction
	assert.NoError(t, db.Where("tenant_id = ? AND type = ?", tenantID, domain.TransactionTypeCharge).Find(&charges).Error)
	assert.Len(t, charges, 2)
	assert.InDelta(t, -(cost1 + cost2), tenantBalance(t, db, tenantID), 1e-9)
}

func TestTrackTokenUsageSplitsByDay(t *testing.T) {
	service, db, fakeClock, tenantID := setupBillingService(t)
	ctx := context.Background()

	_, err := service.TrackTokenUsage(ctx, tenantID, "gpt-4o-mini", 100, 100)
	assert.NoError(t, err)

	fakeClock.Advance(24 * time.Hour)

	_, err = service.TrackTokenUsage(ctx, tenantID, "gpt-4o-mini", 100, 100)
	assert.NoError(t, err)

	var count int64
	assert.NoError(t, db.Model(&domain.TokenUsage{}).Where("tenant_id = ?", tenantID).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestCreditIsIdempotentPerReference(t *testing.T) {
	service, db, _, tenantID := setupBillingService(t)
	ctx := context.Background()

	req := domain.CreditRequest{TenantID: tenantID, Reference: "pay_abc123", Amount: 10}

	first, err := service.Credit(ctx, req)
	assert.NoError(t, err)
	assert.False(t, first.AlreadyProcessed)
	assert.InDelta(t, 10.0, first.Balance, 1e-9)

	// Webhook redelivery with the same reference credits nothing.
	second, err := service.Credit(ctx, req)
	assert.NoError(t, err)
	assert.True(t, second.AlreadyProcessed)
	assert.InDelta(t, 10.0, second.Balance, 1e-9)

	var count int64
	assert.NoError(t, db.Model(&domain.BillingTransaction{}).
		Where("tenant_id = ? AND type = ?", tenantID, domain.TransactionTypeTopUp).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.InDelta(t, 10.0, tenantBalance(t, db, tenantID), 1e-9)
}

func TestCreditConcurrentRedelivery(t *testing.T) {
	service, db, _, tenantID := setupBillingService(t)

	// A single pooled connection serializes the writes the way a real
	// database would while both deliveries still race end to end.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)

	req := domain.CreditRequest{TenantID: tenantID, Reference: "pay_race", Amount: 10}

	var wg sync.WaitGroup
	results := make([]domain.CreditResult, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = service.Credit(context.Background(), req)
		}(i)
	}
	wg.Wait()

	processed := 0
	for i := range results {
		assert.NoError(t, errs[i])
		if !results[i].AlreadyProcessed {
			processed++
		}
		// Each delivery reports the committed balance, not whatever it
		// read before its own transaction.
		assert.InDelta(t, 10.0, results[i].Balance, 1e-9)
	}
	assert.Equal(t, 1, processed)

	var count int64
	assert.NoError(t, db.Model(&domain.BillingTransaction{}).
		Where("tenant_id = ? AND type = ?", tenantID, domain.TransactionTypeTopUp).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.InDelta(t, 10.0, tenantBalance(t, db, tenantID), 1e-9)
}

func TestCreditValidation(t *testing.T) {
	service, _, _, tenantID := setupBillingService(t)
	ctx := context.Background()

	_, err := service.Credit(ctx, domain.CreditRequest{TenantID: tenantID, Reference: "  ", Amount: 5})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	_, err = service.Credit(ctx, domain.CreditRequest{TenantID: tenantID, Reference: "pay_x", Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = service.Credit(ctx, domain.CreditRequest{TenantID: snowflake.ID(999), Reference: "pay_x", Amount: 5})
	assert.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestUsageReportFiltersByMonth(t *testing.T) {
	service, _, fakeClock, tenantID := setupBillingService(t)
	ctx := tenantctx.WithTenantID(context.Background(), int64(tenantID))

	_, err := service.TrackTokenUsage(ctx, tenantID, "gpt-4o-mini", 1000, 500)
	assert.NoError(t, err)

	fakeClock.Advance(31 * 24 * time.Hour)

	_, err = service.TrackTokenUsage(ctx, tenantID, "gpt-4o-mini", 200, 100)
	assert.NoError(t, err)

	report, err := service.UsageReport(ctx, domain.UsageReportRequest{Month: "2026-03"})
	assert.NoError(t, err)
	assert.Equal(t, "2026-03", report.Month)
	assert.Len(t, report.Rows, 1)
	assert.Equal(t, int64(1000), report.TotalPromptTokens)
	assert.Equal(t, int64(500), report.TotalCompletionTokens)
	assert.Equal(t, int64(1), report.TotalRequests)

	_, err = service.UsageReport(ctx, domain.UsageReportRequest{Month: "March 2026"})
	assert.ErrorIs(t, err, domain.ErrInvalidMonth)
}

func TestListTransactionsPaginates(t *testing.T) {
	service, _, _, tenantID := setupBillingService(t)
	ctx := tenantctx.WithTenantID(context.Background(), int64(tenantID))

	for i := 0; i < 3; i++ {
		_, err := service.TrackTokenUsage(ctx, tenantID, "gpt-4o-mini", 100, 100)
		assert.NoError(t, err)
	}

	page, err := service.ListTransactions(ctx, domain.ListTransactionRequest{PageSize: 2})
	assert.NoError(t, err)
	assert.Len(t, page.Transactions, 2)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.NextPageToken)

	rest, err := service.ListTransactions(ctx, domain.ListTransactionRequest{PageSize: 2, PageToken: page.NextPageToken})
	assert.NoError(t, err)
	assert.Len(t, rest.Transactions, 1)
	assert.False(t, rest.HasMore)
}

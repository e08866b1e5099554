package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TransactionTypeTopUp      TransactionType = "TOP_UP"
	TransactionTypeCharge     TransactionType = "CHARGE"
	TransactionTypeRefund     TransactionType = "REFUND"
	TransactionTypeAdjustment TransactionType = "ADJUSTMENT"
)

// TransactionStatus is the settlement state of a ledger entry.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// TokenUsage is the per-tenant, per-day, per-model consumption
// aggregate. Rows are incremented in place on every billed call.
type TokenUsage struct {
	ID               snowflake.ID   `gorm:"primaryKey" json:"id"`
	TenantID         snowflake.ID   `gorm:"not null;uniqueIndex:ux_token_usage_key,priority:1" json:"tenant_id"`
	Day              datatypes.Date `gorm:"not null;uniqueIndex:ux_token_usage_key,priority:2" json:"day"`
	Model            string         `gorm:"not null;uniqueIndex:ux_token_usage_key,priority:3" json:"model"`
	PromptTokens     int64          `gorm:"not null;default:0" json:"prompt_tokens"`
	CompletionTokens int64          `gorm:"not null;default:0" json:"completion_tokens"`
	TotalTokens      int64          `gorm:"not null;default:0" json:"total_tokens"`
	Cost             float64        `gorm:"not null;default:0" json:"cost"`
	RequestCount     int64          `gorm:"not null;default:0" json:"request_count"`
	CreatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (TokenUsage) TableName() string { return "token_usages" }

// BillingTransaction is an append-only ledger entry. Top-ups carry an
// external reference; the unique index on (tenant_id, reference) is the
// idempotency guard, so only settled rows are ever written with a
// reference.
type BillingTransaction struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_billing_tx_reference,priority:1" json:"tenant_id"`
	Type        TransactionType   `gorm:"type:text;not null" json:"type"`
	Status      TransactionStatus `gorm:"type:text;not null" json:"status"`
	Amount      float64           `gorm:"not null" json:"amount"`
	Reference   *string           `gorm:"uniqueIndex:ux_billing_tx_reference,priority:2" json:"reference,omitempty"`
	Description string            `gorm:"type:text" json:"description,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (BillingTransaction) TableName() string { return "billing_transactions" }

package domain

import (
	"context"
	"errors"
	"fmt"

	retrieval "github.com/lorekeep/lorekeep/internal/retrieval/domain"
)

// ChatMessage is a single turn of the caller's conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type AskRequest struct {
	Query               string        `json:"query"`
	ConversationHistory []ChatMessage `json:"conversation_history"`
}

// Usage reports the token consumption of an answered query.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

type AskResponse struct {
	Answer  string             `json:"answer"`
	Sources []retrieval.Source `json:"sources,omitempty"`
	Usage   *Usage             `json:"usage,omitempty"`
}

// Service answers a question against the tenant's visible knowledge
// base, metering and charging the tokens it consumes.
type Service interface {
	Ask(ctx context.Context, req AskRequest) (AskResponse, error)
}

var (
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidQuery  = errors.New("invalid_query")
)

// InsufficientBalanceError carries the current balance so the caller
// can surface it alongside the rejection.
type InsufficientBalanceError struct {
	Balance float64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: %.6f", e.Balance)
}

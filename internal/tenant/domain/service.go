package domain

import (
	"context"
	"errors"
)

type CreateTenantRequest struct {
	Name string `json:"name"`
}

type Service interface {
	Create(context.Context, CreateTenantRequest) (Tenant, error)
	GetByID(context.Context, string) (Tenant, error)
}

var (
	ErrInvalidName = errors.New("invalid_name")
	ErrInvalidID   = errors.New("invalid_id")
	ErrNotFound    = errors.New("not_found")
)

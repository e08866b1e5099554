package billing

import (
	"github.com/lorekeep/lorekeep/internal/billing/repository"
	"github.com/lorekeep/lorekeep/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

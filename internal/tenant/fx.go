package tenant

import (
	"github.com/lorekeep/lorekeep/internal/tenant/repository"
	"github.com/lorekeep/lorekeep/internal/tenant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

package apikey

import (
	"github.com/lorekeep/lorekeep/internal/apikey/repository"
	"github.com/lorekeep/lorekeep/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

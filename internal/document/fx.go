package document

import (
	"github.com/lorekeep/lorekeep/internal/document/repository"
	"github.com/lorekeep/lorekeep/internal/document/service"
	"go.uber.org/fx"
)

var Module = fx.Module("document.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

package retrieval

import (
	"github.com/lorekeep/lorekeep/internal/retrieval/repository"
	"github.com/lorekeep/lorekeep/internal/retrieval/service"
	"go.uber.org/fx"
)

var Module = fx.Module("retrieval.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

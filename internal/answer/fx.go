package answer

import (
	"github.com/lorekeep/lorekeep/internal/answer/service"
	"go.uber.org/fx"
)

var Module = fx.Module("answer.service",
	fx.Provide(service.New),
)

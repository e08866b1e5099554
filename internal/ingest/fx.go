package ingest

import (
	"github.com/lorekeep/lorekeep/internal/chunker"
	"github.com/lorekeep/lorekeep/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("ingest",
	fx.Provide(func(cfg config.Config) *chunker.Chunker {
		return chunker.New(cfg.Chunker)
	}),
	fx.Provide(func() Extractor { return NewHTTPExtractor() }),
	fx.Provide(New),
)

package openai

import (
	"github.com/lorekeep/lorekeep/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.openai",
	fx.Provide(func(cfg config.Config, log *zap.Logger) *Client {
		return NewClient(cfg.OpenAI, log)
	}),
	fx.Provide(func(c *Client) EmbeddingClient { return c }),
	fx.Provide(func(c *Client) ChatClient { return c }),
)

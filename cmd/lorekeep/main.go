package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/lorekeep/lorekeep/internal/access"
	"github.com/lorekeep/lorekeep/internal/answer"
	"github.com/lorekeep/lorekeep/internal/apikey"
	"github.com/lorekeep/lorekeep/internal/billing"
	"github.com/lorekeep/lorekeep/internal/clock"
	"github.com/lorekeep/lorekeep/internal/config"
	"github.com/lorekeep/lorekeep/internal/document"
	"github.com/lorekeep/lorekeep/internal/ingest"
	"github.com/lorekeep/lorekeep/internal/migration"
	"github.com/lorekeep/lorekeep/internal/observability"
	"github.com/lorekeep/lorekeep/internal/providers/openai"
	"github.com/lorekeep/lorekeep/internal/ratelimit"
	"github.com/lorekeep/lorekeep/internal/retrieval"
	"github.com/lorekeep/lorekeep/internal/server"
	"github.com/lorekeep/lorekeep/internal/tenant"
	"github.com/lorekeep/lorekeep/pkg/db"
	"github.com/lorekeep/lorekeep/pkg/redisconn"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(newSnowflakeNode),
		clock.Module,
		db.Module,
		redisconn.Module,
		migration.Module,

		tenant.Module,
		document.Module,
		apikey.Module,
		access.Module,
		openai.Module,
		ingest.Module,
		retrieval.Module,
		answer.Module,
		billing.Module,
		ratelimit.Module,

		server.Module,
	)
	app.Run()
}

func newSnowflakeNode() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

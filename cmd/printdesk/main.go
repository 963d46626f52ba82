package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/printdesk/internal/clock"
	"github.com/smallbiznis/printdesk/internal/config"
	"github.com/smallbiznis/printdesk/internal/migration"
	"github.com/smallbiznis/printdesk/internal/observability"
	"github.com/smallbiznis/printdesk/internal/seed"
	"github.com/smallbiznis/printdesk/internal/server"
	"github.com/smallbiznis/printdesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		seed.Module,

		// HTTP surface and the domain modules behind it
		server.Module,
	)
	app.Run()
}

// RegisterSnowflake builds the id generator. Each replica needs its own
// SNOWFLAKE_NODE.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/openutility/wattshare/internal/clock"
	"github.com/openutility/wattshare/internal/config"
	"github.com/openutility/wattshare/internal/migration"
	"github.com/openutility/wattshare/internal/observability"
	"github.com/openutility/wattshare/internal/seed"
	"github.com/openutility/wattshare/internal/server"
	"github.com/openutility/wattshare/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		migration.Module,
		seed.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

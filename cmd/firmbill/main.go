package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/firmbill/internal/config"
	"github.com/smallbiznis/firmbill/internal/logger"
	"github.com/smallbiznis/firmbill/internal/migration"
	"github.com/smallbiznis/firmbill/internal/server"
	"github.com/smallbiznis/firmbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
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

package main

import (
	"github.com/callpoint-health/triage/backend/internal/server"
	"github.com/callpoint-health/triage/backend/internal/util"
	"github.com/callpoint-health/triage/backend/pkg/logger"
	"github.com/callpoint-health/triage/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  debug,
		Prefix: "server",
	})
	logger.Init(consoleLogger)

	server.Init()
}

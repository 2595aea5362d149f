package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/config"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/logger"
)

var CLI struct {
	config.Config

	Serve   ServeCmd   `cmd:"" help:"Run the HTTP API." default:"1"`
	Migrate MigrateCmd `cmd:"" help:"Apply pending database migrations."`
}

func main() {
	config.LoadDotEnv()

	ctx := kong.Parse(&CLI,
		kong.Name("kanso"),
		kong.Description("Habit completion and goal progress engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	if err := logger.Init(CLI.LoggerConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := ctx.Run(&CLI.Config); err != nil {
		logger.Error("command failed", "command", ctx.Command(), "err", err)
		os.Exit(1)
	}
}

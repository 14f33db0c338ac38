package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/packratbot/packrat/internal/pkg/logs"
)

func main() {
	// a local .env can carry the bot token and AI key during development
	_ = godotenv.Load()

	cmd := &cli.Command{
		Name:  "packrat",
		Usage: "Your personal archiving bot: forward it, it keeps it",
		Commands: []*cli.Command{
			gwHwd.cmd(),
			archiveHwd.cmd(),
			versionHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}

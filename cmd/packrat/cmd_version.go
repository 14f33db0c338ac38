package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/urfave/cli/v3"

	"github.com/packratbot/packrat"
)

var versionHwd = &VersionRunner{}

type VersionRunner struct{}

func (r *VersionRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Print the version",
		Action: r.run,
	}
}

func (r *VersionRunner) run(_ context.Context, _ *cli.Command) error {
	fmt.Printf("packrat %s (%s/%s)\n", packrat.VERSION, runtime.GOOS, runtime.GOARCH)
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/packratbot/packrat/internal/config"
	"github.com/packratbot/packrat/internal/consts"
	"github.com/packratbot/packrat/internal/gateway"
	"github.com/packratbot/packrat/internal/pkg/logs"
)

var gwHwd = &GatewayRunner{}

type GatewayRunner struct{}

func (r *GatewayRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "gateway",
		Usage: "Manage the gateway runtime",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the gateway runtime with configured channels and the archive pipeline",
				Action: r.run,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config",
						Usage: "Path to the config file",
						Value: consts.DefaultConfigPath(),
					},
				},
			},
		},
	}
}

func (r *GatewayRunner) run(ctx context.Context, cmd *cli.Command) error {
	cfgPath := cmd.String("config")

	cfg, created, err := config.LoadOrInit(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config error: %w", err)
	}
	if created {
		fmt.Printf("Created a starter config at %s.\n", cfgPath)
		fmt.Println("Fill in your channel token, enable the channel, and run again.")
		return nil
	}

	if err = r.initLogger(cfg.Logging); err != nil {
		return fmt.Errorf("init logger error: %w", err)
	}
	defer logs.Flush()

	logs.CtxInfo(ctx, "booting Packrat runtime, using config file: %s...", cfgPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gw, err := gateway.NewGateway(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}
	if err = gw.Start(ctx); err != nil {
		cancel()
		_ = gw.Stop(context.Background())
		return fmt.Errorf("start gateway: %w", err)
	}

	logs.CtxInfo(ctx, "ALL IS WELL!!! Press Ctrl+C to stop.")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case sig := <-signalCh:
		logs.CtxInfo(ctx, "Received shutdown signal (%s). Stopping runtime...", sig.String())
	case <-ctx.Done():
		logs.CtxInfo(ctx, "Context canceled. Stopping runtime...")
	}

	if err = gw.Stop(context.Background()); err != nil {
		logs.CtxError(ctx, "stop gateway error: %v", err)
	}

	logs.CtxInfo(ctx, "all stopped, good bye!")
	return nil
}

func (r *GatewayRunner) initLogger(cfg config.LoggingConfig) error {
	return logs.Init(logs.Options{
		Level:      cfg.Level,
		Format:     cfg.Format,
		Output:     cfg.Output,
		File:       cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
	})
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rxtech-lab/marketboard/internal/app"
	"github.com/rxtech-lab/marketboard/internal/config"
	"github.com/rxtech-lab/marketboard/internal/logger"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/urfave/cli/v3"
)

func dashboardAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	if mode := cmd.String("mode"); mode != "" {
		cfg.Mode = types.Mode(mode)
	}

	if symbol := cmd.String("symbol"); symbol != "" {
		cfg.Symbol = symbol
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	// the terminal belongs to the dashboard, logs go to a file or nowhere
	appLog := logger.NewNopLogger()
	if path := cmd.String("log-file"); path != "" {
		appLog, err = logger.NewFileLogger(cfg.Log.Level, path)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
	}

	defer func() { _ = appLog.Sync() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := app.New(ctx, *cfg, appLog)
	if err != nil {
		return err
	}
	defer a.Close()

	model := NewModel(ctx, a.Orchestrator, a.Scheduler)

	if err := a.Start(ctx); err != nil {
		return err
	}

	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("dashboard failed: %w", err)
	}

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "dashboard",
		Usage: "Terminal order book and ticker dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
			},
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "Data mode: live or mock",
			},
			&cli.StringFlag{
				Name:    "symbol",
				Aliases: []string{"s"},
				Usage:   "Symbol to show, e.g. BTC-USDT",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "Write logs to this file",
			},
		},
		Action: dashboardAction,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

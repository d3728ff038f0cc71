package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rxtech-lab/marketboard/internal/app"
	"github.com/rxtech-lab/marketboard/internal/config"
	"github.com/rxtech-lab/marketboard/internal/logger"
	"github.com/rxtech-lab/marketboard/internal/server"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/internal/version"
	"github.com/rxtech-lab/marketboard/pkg/marketdata/provider"
	"github.com/rxtech-lab/marketboard/pkg/mockproxy"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	schemaFileName = "marketboard-config.json"
	sampleFileName = "marketboard-config.yaml"
)

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "marketboard",
		Usage: "Crypto market data aggregation and order book depth service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the scheduler and serve the HTTP and websocket API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Listen address, overrides server.address"},
					&cli.StringFlag{Name: "mode", Usage: "Data mode: live or mock"},
				},
				Action: serveAction,
			},
			{
				Name:  "snapshot",
				Usage: "Fetch every data kind once and print the result as JSON",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "Symbol, e.g. ETH-USDT"},
					&cli.StringFlag{Name: "mode", Usage: "Data mode: live or mock"},
					&cli.DurationFlag{Name: "timeout", Usage: "Overall deadline", Value: 15 * time.Second},
				},
				Action: snapshotAction,
			},
			{
				Name:  "mockproxy",
				Usage: "Serve synthetic data over the proxy contract",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "Listen address", Value: "127.0.0.1:3001"},
					&cli.StringSliceFlag{Name: "fault", Usage: "Inject a fault as `endpoint=fault`, e.g. depth=http_error"},
					&cli.DurationFlag{Name: "delay", Usage: "Delay every response"},
				},
				Action: mockProxyAction,
			},
			{
				Name:  "config",
				Usage: "Inspect configuration",
				Commands: []*cli.Command{
					{
						Name:  "schema",
						Usage: "Print the JSON schema, or write schema and sample config to --out",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Output directory"},
						},
						Action: schemaAction,
					},
					{
						Name:   "validate",
						Usage:  "Load and validate the configuration",
						Action: validateAction,
					},
				},
			},
			{
				Name:  "providers",
				Usage: "List market data providers, or print one provider's config schema",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "schema", Usage: "Provider whose config schema to print"},
				},
				Action: providersAction,
			},
			{
				Name:  "version",
				Usage: "Print version information",
				Action: func(_ context.Context, cmd *cli.Command) error {
					_, err := fmt.Fprintf(cmd.Root().Writer, "marketboard %s (proxy api %s)\n", version.Version, version.ProxyAPIVersion)

					return err
				},
			},
		},
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	if mode := cmd.String("mode"); mode != "" {
		cfg.Mode = types.Mode(mode)
	}

	if symbol := cmd.String("symbol"); symbol != "" {
		cfg.Symbol = symbol
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.NewLoggerWithLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	defer func() { _ = log.Sync() }()

	a, err := app.New(ctx, *cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.NewServer(a.Orchestrator, a.Scheduler, a.Recorder, log)
	srv.Start(ctx)

	if err := a.Start(ctx); err != nil {
		return err
	}

	address := cfg.Server.Address
	if addr := cmd.String("addr"); addr != "" {
		address = addr
	}

	err = srv.ListenAndServe(ctx, address)
	log.Info("shutting down", zap.Error(err))

	return err
}

func snapshotAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log, err := logger.NewLoggerWithLevel(cfg.Log.Level)
	if err != nil {
		return err
	}

	defer func() { _ = log.Sync() }()

	a, err := app.New(ctx, *cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	defer cancel()

	view := a.Orchestrator.RefreshAllAndWait(ctx)

	out, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = fmt.Fprintln(cmd.Root().Writer, string(out))

	return err
}

func mockProxyAction(ctx context.Context, cmd *cli.Command) error {
	proxy := mockproxy.New(nil)

	for _, spec := range cmd.StringSlice("fault") {
		endpoint, fault, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("invalid fault %q, expected endpoint=fault", spec)
		}

		proxy.SetFault(mockproxy.Endpoint(endpoint), mockproxy.Fault(fault))
	}

	if delay := cmd.Duration("delay"); delay > 0 {
		for _, endpoint := range []mockproxy.Endpoint{
			mockproxy.EndpointTicker, mockproxy.EndpointDepth, mockproxy.EndpointTrades, mockproxy.EndpointAllTickers,
		} {
			proxy.SetDelay(endpoint, delay)
		}
	}

	if err := proxy.Start(cmd.String("addr")); err != nil {
		return err
	}

	fmt.Fprintf(cmd.Root().Writer, "mock proxy listening on %s\n", proxy.BaseURL())

	<-ctx.Done()

	return proxy.Stop()
}

// schemaAction prints the schema, or with --out writes it next to a sample
// config that references it.
func schemaAction(_ context.Context, cmd *cli.Command) error {
	schema, err := config.Schema()
	if err != nil {
		return err
	}

	dir := cmd.String("out")
	if dir == "" {
		_, err = fmt.Fprintln(cmd.Root().Writer, schema)

		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	schemaPath := filepath.Join(dir, schemaFileName)
	if err := os.WriteFile(schemaPath, []byte(schema), 0o644); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}

	samplePath := filepath.Join(dir, sampleFileName)
	if _, err := os.Stat(samplePath); os.IsNotExist(err) {
		sample, err := yaml.Marshal(config.Default())
		if err != nil {
			return fmt.Errorf("failed to marshal sample config: %w", err)
		}

		sample = append([]byte("# yaml-language-server: $schema="+schemaFileName+"\n"), sample...)
		if err := os.WriteFile(samplePath, sample, 0o644); err != nil {
			return fmt.Errorf("failed to write sample config: %w", err)
		}
	}

	_, err = fmt.Fprintf(cmd.Root().Writer, "schema written to %s\n", schemaPath)

	return err
}

func validateAction(_ context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.Root().Writer, "configuration is valid (mode %s, provider %s, symbol %s)\n",
		cfg.Mode, cfg.Provider, cfg.Symbol)

	return err
}

func providersAction(_ context.Context, cmd *cli.Command) error {
	out := cmd.Root().Writer

	if name := cmd.String("schema"); name != "" {
		schema, err := provider.GetConfigSchema(name)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(out, schema)

		return err
	}

	for _, name := range provider.GetSupportedProviders() {
		info, err := provider.GetProviderInfo(name)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "%-10s %s: %s\n", info.Name, info.DisplayName, info.Description)
	}

	return nil
}

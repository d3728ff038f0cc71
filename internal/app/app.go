// Package app assembles the orchestrator, scheduler and their listeners from
// a Config.
package app

import (
	"context"
	"sync"

	"github.com/rxtech-lab/marketboard/internal/config"
	"github.com/rxtech-lab/marketboard/internal/logger"
	"github.com/rxtech-lab/marketboard/internal/market"
	"github.com/rxtech-lab/marketboard/internal/metrics"
	"github.com/rxtech-lab/marketboard/internal/publish"
	"github.com/rxtech-lab/marketboard/internal/scheduler"
	"github.com/rxtech-lab/marketboard/internal/synthetic"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/pkg/marketdata/provider"
	"go.uber.org/zap"
)

// App owns every long-lived component of a marketboard process.
type App struct {
	Config       config.Config
	Generator    *synthetic.Generator
	Orchestrator *market.Orchestrator
	Scheduler    *scheduler.Scheduler
	Recorder     *metrics.Recorder
	// Bridge is nil unless redis publishing is enabled.
	Bridge *publish.Bridge

	log          *logger.Logger
	unsubscribes []func()
	closeOnce    sync.Once
}

// New builds the components described by cfg. Nothing runs until Start.
// When redis is enabled the connection is checked with ctx.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	gen := synthetic.NewGenerator(cfg.Synthetic)
	recorder := metrics.NewRecorder()

	var source provider.Provider

	if cfg.Mode == types.ModeLive {
		providers := cfg.Providers
		providers.Generator = gen

		p, err := provider.NewMarketDataProvider(cfg.Provider, providers)
		if err != nil {
			return nil, err
		}

		source = p
	}

	orch, err := market.NewOrchestrator(source, gen, market.Options{
		Symbol:       cfg.Symbol,
		Mode:         cfg.Mode,
		FetchTimeout: cfg.Market.FetchTimeout,
		DepthLimit:   cfg.Market.DepthLimit,
		TradeLimit:   cfg.Market.TradeLimit,
		MaxLevels:    cfg.Market.MaxLevels,
		Observer:     recorder,
	}, log)
	if err != nil {
		return nil, err
	}

	scope, err := scheduler.ParseScope(cfg.Scheduler.Scope)
	if err != nil {
		return nil, err
	}

	sched, err := scheduler.New(orch, scheduler.Options{
		AutoRefresh:      cfg.Scheduler.AutoRefresh,
		Interval:         cfg.Scheduler.Interval,
		Scope:            scope,
		LiveTick:         cfg.Scheduler.LiveTick,
		LiveTickInterval: cfg.Scheduler.LiveTickInterval,
		SkipWhileLoading: cfg.Scheduler.SkipWhileLoading,
		MarketListCron:   cfg.Scheduler.MarketListCron,
		Observer:         recorder,
	}, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:       cfg,
		Generator:    gen,
		Orchestrator: orch,
		Scheduler:    sched,
		Recorder:     recorder,
		Bridge:       nil,
		log:          log.Named("app"),
		unsubscribes: nil,
		closeOnce:    sync.Once{},
	}

	a.unsubscribes = append(a.unsubscribes, orch.Subscribe(recorder.OnUpdate))

	if cfg.Redis.Enabled {
		pub, err := publish.NewRedisPublisher(ctx, publish.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.Close()

			return nil, err
		}

		a.Bridge = publish.NewBridge(pub, publish.BridgeOptions{
			Prefix:    cfg.Redis.Prefix,
			QueueSize: cfg.Redis.QueueSize,
			Timeout:   0,
			Observer:  recorder,
		}, log)
		a.unsubscribes = append(a.unsubscribes, orch.Subscribe(a.Bridge.OnUpdate))
	}

	return a, nil
}

// Start begins publishing and scheduling. Everything stops when ctx is done
// or Close is called.
func (a *App) Start(ctx context.Context) error {
	if a.Bridge != nil {
		a.Bridge.Start(ctx)
	}

	if err := a.Scheduler.Start(ctx); err != nil {
		return err
	}

	a.log.Info("started",
		zap.String("mode", string(a.Config.Mode)),
		zap.String("source", a.Orchestrator.SourceName()),
		zap.String("symbol", a.Orchestrator.Symbol()),
	)

	return nil
}

// Close stops the scheduler, discards in-flight results and flushes the bridge.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.Scheduler.Stop()
		a.Orchestrator.Close()

		for _, unsubscribe := range a.unsubscribes {
			unsubscribe()
		}

		if a.Bridge != nil {
			if err := a.Bridge.Close(); err != nil {
				a.log.Warn("failed to close publisher", zap.Error(err))
			}
		}
	})
}

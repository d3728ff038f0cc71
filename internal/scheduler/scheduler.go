// Package scheduler owns refresh timing: a repeating refresh timer, a fast
// live-tick timer nudging the last price, and a cron job refreshing the
// market list.
package scheduler

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/robfig/cron"
	"github.com/rxtech-lab/marketboard/internal/logger"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Default configuration values.
const (
	DefaultInterval         = 30 * time.Second
	DefaultLiveTickInterval = 2 * time.Second
	DefaultMarketListSpec   = "@every 5m"
	MinInterval             = time.Second
)

// minInterval is the lower bound enforced on refresh intervals.
var minInterval = MinInterval

// Presets are the refresh intervals offered to users.
var Presets = []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second, 60 * time.Second}

// State is the state of the refresh timer.
type State string

const (
	StateIdle      State = "idle"
	StateScheduled State = "scheduled"
	StateFiring    State = "firing"
)

// Scope selects what a refresh fire fetches.
type Scope string

const (
	ScopeAll    Scope = "all"
	ScopeTicker Scope = "ticker"
	ScopeDepth  Scope = "depth"
	ScopeTrades Scope = "trades"
)

// ParseScope converts a string into a Scope.
func ParseScope(s string) (Scope, error) {
	switch scope := Scope(s); scope {
	case ScopeAll, ScopeTicker, ScopeDepth, ScopeTrades:
		return scope, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unknown refresh scope %q", s)
	}
}

// Kinds returns the data kinds fetched for the scope.
func (s Scope) Kinds() []types.DataKind {
	switch s {
	case ScopeTicker:
		return []types.DataKind{types.DataKindTicker}
	case ScopeDepth:
		return []types.DataKind{types.DataKindDepth}
	case ScopeTrades:
		return []types.DataKind{types.DataKindTrades}
	default:
		return slices.Clone(types.AllDataKinds)
	}
}

// Trigger names what caused a fire.
type Trigger string

const (
	TriggerStart      Trigger = "start"
	TriggerInterval   Trigger = "interval"
	TriggerLiveTick   Trigger = "live_tick"
	TriggerMarketList Trigger = "market_list"
)

// Target is driven by the scheduler. *market.Orchestrator implements it.
type Target interface {
	Fetch(ctx context.Context, kind types.DataKind)
	NudgeLastPrice(ctx context.Context) bool
	State() types.RefreshState
	// Quiesce returns once no cache write is in progress.
	Quiesce()
}

// FireObserver is told about every fire and skipped fetch.
type FireObserver interface {
	ObserveFire(trigger Trigger)
	ObserveSkip(kind types.DataKind)
}

// Options configures a Scheduler.
type Options struct {
	AutoRefresh      bool
	Interval         time.Duration
	Scope            Scope
	LiveTick         bool
	LiveTickInterval time.Duration
	// SkipWhileLoading skips fetching a kind that is already in flight.
	SkipWhileLoading bool
	// MarketListCron refreshes all tickers on its own schedule. Empty disables it.
	MarketListCron string
	Observer       FireObserver
}

// DefaultOptions returns auto refresh every 30s with the live tick off.
func DefaultOptions() Options {
	return Options{
		AutoRefresh:      true,
		Interval:         DefaultInterval,
		Scope:            ScopeAll,
		LiveTick:         false,
		LiveTickInterval: DefaultLiveTickInterval,
		SkipWhileLoading: false,
		MarketListCron:   DefaultMarketListSpec,
		Observer:         nil,
	}
}

// Status is a snapshot of the scheduler.
type Status struct {
	Running          bool
	State            State
	AutoRefresh      bool
	Interval         time.Duration
	Scope            Scope
	LiveTick         bool
	LiveTickInterval time.Duration
	SkipWhileLoading bool
	MarketListCron   string
	// Generation increases every time the refresh timer is re-armed.
	Generation uint64
	Fires      uint64
	LastFire   optional.Option[time.Time]
}

// MarshalJSON renders durations as strings.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Running          bool                       `json:"running"`
		State            State                      `json:"state"`
		AutoRefresh      bool                       `json:"autoRefresh"`
		Interval         string                     `json:"interval"`
		Scope            Scope                      `json:"scope"`
		LiveTick         bool                       `json:"liveTick"`
		LiveTickInterval string                     `json:"liveTickInterval"`
		SkipWhileLoading bool                       `json:"skipWhileLoading"`
		MarketListCron   string                     `json:"marketListCron"`
		Generation       uint64                     `json:"generation"`
		Fires            uint64                     `json:"fires"`
		LastFire         optional.Option[time.Time] `json:"lastFire"`
	}{
		Running:          s.Running,
		State:            s.State,
		AutoRefresh:      s.AutoRefresh,
		Interval:         s.Interval.String(),
		Scope:            s.Scope,
		LiveTick:         s.LiveTick,
		LiveTickInterval: s.LiveTickInterval.String(),
		SkipWhileLoading: s.SkipWhileLoading,
		MarketListCron:   s.MarketListCron,
		Generation:       s.Generation,
		Fires:            s.Fires,
		LastFire:         s.LastFire,
	})
}

// loop is one armed timer goroutine.
type loop struct {
	generation uint64
	stop       chan struct{}
}

// Scheduler drives a Target on timers. Re-arming a timer stops the previous
// goroutine and bumps its generation, so a tick already in flight from the
// old timer is dropped and timers never stack.
type Scheduler struct {
	mu     sync.Mutex
	target Target
	opts   Options
	log    *logger.Logger

	running  bool
	lifetime context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	refresh    optional.Option[loop]
	tick       optional.Option[loop]
	generation uint64
	tickGen    uint64
	firing     int
	cron       *cron.Cron

	fires    uint64
	lastFire optional.Option[time.Time]
}

// New creates a stopped scheduler.
func New(target Target, opts Options, log *logger.Logger) (*Scheduler, error) {
	if target == nil {
		return nil, errors.New(errors.ErrCodeMissingParameter, "scheduler target is required")
	}

	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}

	if opts.Interval < minInterval {
		return nil, errors.Newf(errors.ErrCodeInvalidInterval, "refresh interval must be at least %s, got %s", minInterval, opts.Interval)
	}

	if opts.LiveTickInterval <= 0 {
		opts.LiveTickInterval = DefaultLiveTickInterval
	}

	if opts.Scope == "" {
		opts.Scope = ScopeAll
	}

	if _, err := ParseScope(string(opts.Scope)); err != nil {
		return nil, err
	}

	if opts.MarketListCron != "" {
		if _, err := cron.Parse(opts.MarketListCron); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err, "invalid market list cron %q", opts.MarketListCron)
		}
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Scheduler{
		mu:         sync.Mutex{},
		target:     target,
		opts:       opts,
		log:        log.Named("scheduler"),
		running:    false,
		lifetime:   nil,
		cancel:     nil,
		wg:         sync.WaitGroup{},
		refresh:    optional.None[loop](),
		tick:       optional.None[loop](),
		generation: 0,
		tickGen:    0,
		firing:     0,
		cron:       nil,
		fires:      0,
		lastFire:   optional.None[time.Time](),
	}, nil
}

// Start fires one refresh immediately and arms the configured timers.
// Every fetch it issues runs under a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New(errors.ErrCodeSchedulerRunning, "scheduler is already running")
	}

	s.lifetime, s.cancel = context.WithCancel(ctx)
	s.running = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.fireRefresh(0, TriggerStart)
	}()

	if s.opts.AutoRefresh {
		s.armRefreshLocked()
	}

	if s.opts.LiveTick {
		s.armTickLocked()
	}

	if s.opts.MarketListCron != "" {
		c := cron.New()
		if err := c.AddFunc(s.opts.MarketListCron, s.fireMarketList); err != nil {
			s.log.Error("failed to schedule market list refresh", zap.String("spec", s.opts.MarketListCron), zap.Error(err))
		} else {
			c.Start()
			s.cron = c
		}
	}

	s.log.Info("scheduler started",
		zap.Bool("auto_refresh", s.opts.AutoRefresh),
		zap.Duration("interval", s.opts.Interval),
		zap.String("scope", string(s.opts.Scope)),
		zap.Bool("live_tick", s.opts.LiveTick),
	)

	return nil
}

// Stop cancels every timer and every fetch issued by the scheduler. After it
// returns the target's cache is not written again by anything the scheduler
// started, even if a fetch resolves later. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()

		return
	}

	s.running = false
	s.cancel()
	s.disarmRefreshLocked()
	s.disarmTickLocked()

	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		c.Stop()
	}

	s.wg.Wait()
	s.target.Quiesce()

	s.log.Info("scheduler stopped")
}

// SetInterval changes the refresh interval and re-arms the refresh timer.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d < minInterval {
		return errors.Newf(errors.ErrCodeInvalidInterval, "refresh interval must be at least %s, got %s", minInterval, d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.opts.Interval = d
	if s.running && s.opts.AutoRefresh {
		s.armRefreshLocked()
	}

	return nil
}

// SetAutoRefresh arms or disarms the refresh timer. Enabling it while it is
// already enabled re-arms from scratch.
func (s *Scheduler) SetAutoRefresh(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opts.AutoRefresh = enabled
	if !s.running {
		return
	}

	if enabled {
		s.armRefreshLocked()
	} else {
		s.disarmRefreshLocked()
	}
}

// SetScope changes what the next fires fetch.
func (s *Scheduler) SetScope(scope Scope) error {
	if _, err := ParseScope(string(scope)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.opts.Scope = scope

	return nil
}

// SetLiveTick arms or disarms the live-tick timer.
func (s *Scheduler) SetLiveTick(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opts.LiveTick = enabled
	if !s.running {
		return
	}

	if enabled {
		s.armTickLocked()
	} else {
		s.disarmTickLocked()
	}
}

// Status returns the current status.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Status{
		Running:          s.running,
		State:            s.stateLocked(),
		AutoRefresh:      s.opts.AutoRefresh,
		Interval:         s.opts.Interval,
		Scope:            s.opts.Scope,
		LiveTick:         s.opts.LiveTick,
		LiveTickInterval: s.opts.LiveTickInterval,
		SkipWhileLoading: s.opts.SkipWhileLoading,
		MarketListCron:   s.opts.MarketListCron,
		Generation:       s.generation,
		Fires:            s.fires,
		LastFire:         s.lastFire,
	}
}

func (s *Scheduler) stateLocked() State {
	switch {
	case !s.running:
		return StateIdle
	case s.firing > 0:
		return StateFiring
	case s.refresh.IsSome():
		return StateScheduled
	default:
		return StateIdle
	}
}

func (s *Scheduler) armRefreshLocked() {
	s.disarmRefreshLocked()

	s.generation++
	l := loop{generation: s.generation, stop: make(chan struct{})}
	s.refresh = optional.Some(l)

	s.wg.Add(1)
	go s.run(l, s.opts.Interval, func(gen uint64) { s.fireRefresh(gen, TriggerInterval) })
}

func (s *Scheduler) disarmRefreshLocked() {
	if s.refresh.IsSome() {
		close(s.refresh.Unwrap().stop)
		s.refresh = optional.None[loop]()
	}
}

func (s *Scheduler) armTickLocked() {
	s.disarmTickLocked()

	s.tickGen++
	l := loop{generation: s.tickGen, stop: make(chan struct{})}
	s.tick = optional.Some(l)

	s.wg.Add(1)
	go s.run(l, s.opts.LiveTickInterval, s.fireTick)
}

func (s *Scheduler) disarmTickLocked() {
	if s.tick.IsSome() {
		close(s.tick.Unwrap().stop)
		s.tick = optional.None[loop]()
	}
}

func (s *Scheduler) run(l loop, interval time.Duration, fire func(gen uint64)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			fire(l.generation)
		}
	}
}

// fireRefresh starts the fetches of the current scope. The scheduler stays
// in StateFiring until they complete. Armed generations start at 1; gen 0
// fires regardless of the armed timer.
func (s *Scheduler) fireRefresh(gen uint64, trigger Trigger) {
	s.mu.Lock()
	if !s.running || (gen != 0 && gen != s.generation) {
		s.mu.Unlock()

		return
	}

	ctx := s.lifetime
	kinds := s.opts.Scope.Kinds()
	skipWhileLoading := s.opts.SkipWhileLoading
	s.firing++
	s.recordFireLocked(trigger)
	s.mu.Unlock()

	loading := s.target.State().Loading

	var g errgroup.Group

	for _, kind := range kinds {
		if skipWhileLoading && loading.Get(kind) {
			s.log.Debug("skipping fetch already in flight", zap.String("kind", string(kind)))
			s.observeSkip(kind)

			continue
		}

		g.Go(func() error {
			s.target.Fetch(ctx, kind)

			return nil
		})
	}

	// Fetches are not tracked by wg: Stop cancels ctx and quiesces the
	// target instead of waiting for slow sources.
	go func() {
		_ = g.Wait()

		s.mu.Lock()
		s.firing--
		s.mu.Unlock()
	}()
}

func (s *Scheduler) fireTick(gen uint64) {
	s.mu.Lock()
	if !s.running || gen != s.tickGen {
		s.mu.Unlock()

		return
	}

	ctx := s.lifetime
	s.recordFireLocked(TriggerLiveTick)
	s.mu.Unlock()

	s.target.NudgeLastPrice(ctx)
}

// fireMarketList runs on the cron goroutine, outside wg. The fetch uses the
// lifetime context, so once Stop has cancelled it nothing is written.
func (s *Scheduler) fireMarketList() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()

		return
	}

	ctx := s.lifetime
	s.recordFireLocked(TriggerMarketList)
	s.mu.Unlock()

	s.target.Fetch(ctx, types.DataKindAllTickers)
}

func (s *Scheduler) recordFireLocked(trigger Trigger) {
	if trigger != TriggerLiveTick {
		s.fires++
		s.lastFire = optional.Some(time.Now())
	}

	if s.opts.Observer != nil {
		s.opts.Observer.ObserveFire(trigger)
	}
}

func (s *Scheduler) observeSkip(kind types.DataKind) {
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveSkip(kind)
	}
}

package scheduler

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rxtech-lab/marketboard/internal/market"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/mocks"
	"github.com/rxtech-lab/marketboard/pkg/errors"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

// fakeTarget records what the scheduler asks for.
type fakeTarget struct {
	mu       sync.Mutex
	fetches  map[types.DataKind]int
	nudges   int
	quiesced int
	loading  types.LoadingFlags
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{fetches: make(map[types.DataKind]int)}
}

func (f *fakeTarget) Fetch(ctx context.Context, kind types.DataKind) {
	if ctx.Err() != nil {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[kind]++
}

func (f *fakeTarget) NudgeLastPrice(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.nudges++

	return true
}

func (f *fakeTarget) State() types.RefreshState {
	f.mu.Lock()
	defer f.mu.Unlock()

	return types.RefreshState{Loading: f.loading}
}

func (f *fakeTarget) Quiesce() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quiesced++
}

func (f *fakeTarget) count(kind types.DataKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.fetches[kind]
}

func (f *fakeTarget) quiesceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.quiesced
}

func (f *fakeTarget) nudgeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.nudges
}

type countingObserver struct {
	mu    sync.Mutex
	fires map[Trigger]int
	skips map[types.DataKind]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{fires: make(map[Trigger]int), skips: make(map[types.DataKind]int)}
}

func (c *countingObserver) ObserveFire(trigger Trigger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fires[trigger]++
}

func (c *countingObserver) ObserveSkip(kind types.DataKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skips[kind]++
}

func (c *countingObserver) fireCount(trigger Trigger) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fires[trigger]
}

func (c *countingObserver) skipCount(kind types.DataKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.skips[kind]
}

type SchedulerTestSuite struct {
	suite.Suite
	target *fakeTarget
}

func TestSchedulerSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (suite *SchedulerTestSuite) SetupSuite() {
	minInterval = time.Millisecond
}

func (suite *SchedulerTestSuite) TearDownSuite() {
	minInterval = MinInterval
}

func (suite *SchedulerTestSuite) SetupTest() {
	suite.target = newFakeTarget()
}

func (suite *SchedulerTestSuite) newScheduler(opts Options) *Scheduler {
	s, err := New(suite.target, opts, nil)
	suite.Require().NoError(err)
	suite.T().Cleanup(s.Stop)

	return s
}

func (suite *SchedulerTestSuite) TestDefaults() {
	s := suite.newScheduler(Options{})
	status := s.Status()

	suite.Equal(DefaultInterval, status.Interval)
	suite.Equal(ScopeAll, status.Scope)
	suite.Equal(DefaultLiveTickInterval, status.LiveTickInterval)
	suite.Equal(StateIdle, status.State)
	suite.False(status.Running)
	suite.Equal([]time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second, 60 * time.Second}, Presets)
}

func (suite *SchedulerTestSuite) TestNewValidation() {
	_, err := New(nil, Options{}, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeMissingParameter))

	_, err = New(suite.target, Options{Interval: -time.Second}, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidInterval))

	_, err = New(suite.target, Options{Scope: "everything"}, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	_, err = New(suite.target, Options{MarketListCron: "every tuesday"}, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *SchedulerTestSuite) TestStartFiresImmediately() {
	s := suite.newScheduler(Options{AutoRefresh: true, Interval: time.Hour})
	suite.Require().NoError(s.Start(context.Background()))

	suite.Eventually(func() bool {
		for _, kind := range types.AllDataKinds {
			if suite.target.count(kind) != 1 {
				return false
			}
		}

		return true
	}, time.Second, 5*time.Millisecond)

	suite.Eventually(func() bool {
		return s.Status().State == StateScheduled
	}, time.Second, 5*time.Millisecond)
	suite.True(s.Status().Running)

	err := s.Start(context.Background())
	suite.True(errors.HasCode(err, errors.ErrCodeSchedulerRunning))
}

func (suite *SchedulerTestSuite) TestIntervalFires() {
	observer := newCountingObserver()
	s := suite.newScheduler(Options{AutoRefresh: true, Interval: 20 * time.Millisecond, Scope: ScopeTicker, Observer: observer})
	suite.Require().NoError(s.Start(context.Background()))

	suite.Eventually(func() bool {
		return suite.target.count(types.DataKindTicker) >= 4
	}, 2*time.Second, 5*time.Millisecond)

	suite.Equal(0, suite.target.count(types.DataKindDepth))
	suite.Equal(1, observer.fireCount(TriggerStart))
	suite.GreaterOrEqual(observer.fireCount(TriggerInterval), 3)
	suite.True(s.Status().LastFire.IsSome())
}

func (suite *SchedulerTestSuite) TestRearmDoesNotStack() {
	s := suite.newScheduler(Options{AutoRefresh: true, Interval: 40 * time.Millisecond, Scope: ScopeDepth})
	suite.Require().NoError(s.Start(context.Background()))

	for range 10 {
		suite.Require().NoError(s.SetInterval(40 * time.Millisecond))
	}

	for range 5 {
		s.SetAutoRefresh(true)
	}

	suite.Equal(uint64(16), s.Status().Generation)

	before := suite.target.count(types.DataKindDepth)
	time.Sleep(400 * time.Millisecond)
	fired := suite.target.count(types.DataKindDepth) - before

	// one timer fires about 10 times in 400ms; stacked timers would fire 16x that
	suite.LessOrEqual(fired, 20)
	suite.GreaterOrEqual(fired, 3)
}

func (suite *SchedulerTestSuite) TestDisableAutoRefresh() {
	s := suite.newScheduler(Options{AutoRefresh: true, Interval: 10 * time.Millisecond, Scope: ScopeTrades})
	suite.Require().NoError(s.Start(context.Background()))

	suite.Eventually(func() bool {
		return suite.target.count(types.DataKindTrades) >= 2
	}, time.Second, 5*time.Millisecond)

	s.SetAutoRefresh(false)
	time.Sleep(20 * time.Millisecond)
	settled := suite.target.count(types.DataKindTrades)
	time.Sleep(80 * time.Millisecond)

	suite.Equal(settled, suite.target.count(types.DataKindTrades))
	suite.Equal(StateIdle, s.Status().State)
	suite.True(s.Status().Running)
}

func (suite *SchedulerTestSuite) TestSetScope() {
	s := suite.newScheduler(Options{AutoRefresh: true, Interval: 10 * time.Millisecond, Scope: ScopeTicker})
	suite.Require().NoError(s.Start(context.Background()))

	suite.Require().NoError(s.SetScope(ScopeDepth))
	suite.Eventually(func() bool {
		return suite.target.count(types.DataKindDepth) >= 2
	}, time.Second, 5*time.Millisecond)

	suite.True(errors.HasCode(s.SetScope("orders"), errors.ErrCodeInvalidParameter))
	suite.Equal(ScopeDepth, s.Status().Scope)
}

func (suite *SchedulerTestSuite) TestSkipWhileLoading() {
	observer := newCountingObserver()
	suite.target.loading = types.LoadingFlags{Depth: true}

	s := suite.newScheduler(Options{AutoRefresh: false, SkipWhileLoading: true, Observer: observer})
	suite.Require().NoError(s.Start(context.Background()))

	suite.Eventually(func() bool {
		return suite.target.count(types.DataKindTicker) == 1
	}, time.Second, 5*time.Millisecond)

	suite.Eventually(func() bool {
		return observer.skipCount(types.DataKindDepth) == 1
	}, time.Second, 5*time.Millisecond)
	suite.Equal(0, suite.target.count(types.DataKindDepth))
}

func (suite *SchedulerTestSuite) TestLiveTick() {
	s := suite.newScheduler(Options{AutoRefresh: false, LiveTick: true, LiveTickInterval: 10 * time.Millisecond})
	suite.Require().NoError(s.Start(context.Background()))

	suite.Eventually(func() bool {
		return suite.target.nudgeCount() >= 3
	}, time.Second, 5*time.Millisecond)

	s.SetLiveTick(false)
	time.Sleep(20 * time.Millisecond)
	settled := suite.target.nudgeCount()
	time.Sleep(50 * time.Millisecond)
	suite.Equal(settled, suite.target.nudgeCount())
}

func (suite *SchedulerTestSuite) TestStopIsIdempotentAndRestartable() {
	s := suite.newScheduler(Options{AutoRefresh: true, Interval: 10 * time.Millisecond})
	suite.Require().NoError(s.Start(context.Background()))

	s.Stop()
	s.Stop()

	suite.Equal(StateIdle, s.Status().State)
	suite.Equal(1, suite.target.quiesceCount())

	stopped := suite.target.count(types.DataKindTicker)
	time.Sleep(50 * time.Millisecond)
	suite.Equal(stopped, suite.target.count(types.DataKindTicker))

	suite.Require().NoError(s.Start(context.Background()))
	suite.Eventually(func() bool {
		return suite.target.count(types.DataKindTicker) > stopped
	}, time.Second, 5*time.Millisecond)
}

func (suite *SchedulerTestSuite) TestMarketListCron() {
	observer := newCountingObserver()
	s := suite.newScheduler(Options{AutoRefresh: false, MarketListCron: "@every 1s", Observer: observer})
	suite.Require().NoError(s.Start(context.Background()))

	suite.Eventually(func() bool {
		return observer.fireCount(TriggerMarketList) >= 1
	}, 3*time.Second, 20*time.Millisecond)

	suite.Eventually(func() bool {
		return suite.target.count(types.DataKindAllTickers) >= 2
	}, time.Second, 5*time.Millisecond)
}

// A fetch that resolves after Stop must not reach the cache.
func (suite *SchedulerTestSuite) TestStopDiscardsLateFetch() {
	ctrl := gomock.NewController(suite.T())
	provider := mocks.NewMockProvider(ctrl)
	provider.EXPECT().Name().Return("proxy").AnyTimes()

	orch, err := market.NewOrchestrator(provider, nil, market.Options{Symbol: "ETH-USDT"}, nil)
	suite.Require().NoError(err)

	release := make(chan struct{})
	started := make(chan struct{})
	resolved := make(chan struct{})

	provider.EXPECT().FetchDepth(gomock.Any(), "ETH-USDT", market.DefaultDepthLimit).DoAndReturn(
		func(context.Context, string, int) (types.DepthSnapshot, error) {
			defer close(resolved)
			close(started)
			// ignores cancellation on purpose
			<-release

			return types.DepthSnapshot{
				Symbol: "ETH-USDT",
				Bids:   []types.PriceLevel{types.NewPriceLevel(3000, 1)},
				Asks:   []types.PriceLevel{types.NewPriceLevel(3001, 1)},
			}, nil
		})

	s, err := New(orch, Options{AutoRefresh: true, Interval: time.Hour, Scope: ScopeDepth}, nil)
	suite.Require().NoError(err)
	suite.Require().NoError(s.Start(context.Background()))

	<-started
	s.Stop()
	close(release)
	<-resolved

	suite.Eventually(func() bool {
		return !orch.State().Loading.Depth
	}, time.Second, 5*time.Millisecond)

	view := orch.View()
	suite.True(view.Depth.IsNone())
	suite.True(view.State.LastUpdated.IsZero())
	suite.True(view.State.LastError.IsNone())
}

func (suite *SchedulerTestSuite) TestStatusJSON() {
	s := suite.newScheduler(Options{Interval: 15 * time.Second})

	data, err := json.Marshal(s.Status())
	suite.Require().NoError(err)

	var doc map[string]any
	suite.Require().NoError(json.Unmarshal(data, &doc))
	suite.Equal("15s", doc["interval"])
	suite.Equal("idle", doc["state"])
	suite.Nil(doc["lastFire"])
}

func TestScope(t *testing.T) {
	tests := []struct {
		input    string
		expected []types.DataKind
		wantErr  bool
	}{
		{input: "all", expected: types.AllDataKinds},
		{input: "ticker", expected: []types.DataKind{types.DataKindTicker}},
		{input: "depth", expected: []types.DataKind{types.DataKindDepth}},
		{input: "trades", expected: []types.DataKind{types.DataKindTrades}},
		{input: "orders", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			scope, err := ParseScope(tt.input)
			if tt.wantErr {
				if !errors.HasCode(err, errors.ErrCodeInvalidParameter) {
					t.Fatalf("expected invalid parameter, got %v", err)
				}

				return
			}

			got := scope.Kinds()
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %v, got %v", tt.expected, got)
			}

			for i := range got {
				if got[i] != tt.expected[i] {
					t.Fatalf("expected %v, got %v", tt.expected, got)
				}
			}
		})
	}
}

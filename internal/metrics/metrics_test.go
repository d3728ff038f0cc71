package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rxtech-lab/marketboard/internal/depth"
	"github.com/rxtech-lab/marketboard/internal/market"
	"github.com/rxtech-lab/marketboard/internal/scheduler"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type MetricsTestSuite struct {
	suite.Suite
	recorder *Recorder
}

func TestMetricsSuite(t *testing.T) {
	suite.Run(t, new(MetricsTestSuite))
}

func (suite *MetricsTestSuite) SetupTest() {
	suite.recorder = NewRecorder()
}

func (suite *MetricsTestSuite) TestOutcome() {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, "ok"},
		{context.DeadlineExceeded, "timeout"},
		{context.Canceled, "canceled"},
		{errors.New(errors.ErrCodeMalformedResponse, "bad"), "malformed"},
		{errors.New(errors.ErrCodeIncompatibleSource, "v2"), "incompatible"},
		{errors.New(errors.ErrCodeTransport, "502"), "transport"},
		{io.EOF, "transport"},
		{errors.New(errors.ErrCodeUnknown, "?"), "error"},
	}

	for _, tt := range tests {
		suite.Equal(tt.expected, Outcome(tt.err))
	}
}

func (suite *MetricsTestSuite) TestObserveFetch() {
	suite.recorder.ObserveFetch(types.DataKindDepth, "proxy", nil, 20*time.Millisecond)
	suite.recorder.ObserveFetch(types.DataKindDepth, "proxy", context.DeadlineExceeded, time.Second)
	suite.recorder.ObserveFetch(types.DataKindDepth, "proxy", nil, 10*time.Millisecond)

	suite.InDelta(2, testutil.ToFloat64(suite.recorder.fetches.WithLabelValues("depth", "proxy", "ok")), 0)
	suite.InDelta(1, testutil.ToFloat64(suite.recorder.fetches.WithLabelValues("depth", "proxy", "timeout")), 0)
	suite.Equal(1, testutil.CollectAndCount(suite.recorder.fetchDuration))
}

func (suite *MetricsTestSuite) TestSchedulerObserver() {
	suite.recorder.ObserveFire(scheduler.TriggerInterval)
	suite.recorder.ObserveFire(scheduler.TriggerInterval)
	suite.recorder.ObserveSkip(types.DataKindTrades)

	suite.InDelta(2, testutil.ToFloat64(suite.recorder.fires.WithLabelValues("interval")), 0)
	suite.InDelta(1, testutil.ToFloat64(suite.recorder.skips.WithLabelValues("trades")), 0)
}

func (suite *MetricsTestSuite) TestOnUpdate() {
	snapshot := types.DepthSnapshot{
		Bids: []types.PriceLevel{types.NewPriceLevel(100, 2)},
		Asks: []types.PriceLevel{types.NewPriceLevel(101, 1)},
	}

	suite.recorder.OnUpdate(market.Update{
		Kind: types.DataKindDepth,
		View: market.View{
			Book: optional.Some(depth.Normalize(snapshot, 0)),
			State: types.RefreshState{
				LastUpdated:       time.Unix(1700000000, 0),
				UsingFallbackData: true,
			},
		},
	})

	suite.InDelta(1, testutil.ToFloat64(suite.recorder.usingFallback), 0)
	suite.InDelta(1700000000, testutil.ToFloat64(suite.recorder.lastUpdate), 0)
	suite.InDelta(1, testutil.ToFloat64(suite.recorder.spread), 1e-9)

	suite.recorder.OnUpdate(market.Update{Kind: types.DataKindTicker})
	suite.InDelta(0, testutil.ToFloat64(suite.recorder.usingFallback), 0)
}

func (suite *MetricsTestSuite) TestHandler() {
	suite.recorder.SetWebsocketClients(3)
	suite.recorder.ObservePublish(PublishDropped)

	rec := httptest.NewRecorder()
	suite.recorder.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	suite.Contains(body, "marketboard_websocket_clients 3")
	suite.Contains(body, `marketboard_redis_messages_total{outcome="dropped"} 1`)
}

// Package metrics exposes Prometheus metrics about fetches, fallbacks,
// scheduler fires and the push surfaces.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rxtech-lab/marketboard/internal/market"
	"github.com/rxtech-lab/marketboard/internal/scheduler"
	"github.com/rxtech-lab/marketboard/internal/types"
	"github.com/rxtech-lab/marketboard/pkg/errors"
)

const namespace = "marketboard"

// Publish outcomes.
const (
	PublishSent    = "sent"
	PublishDropped = "dropped"
	PublishFailed  = "failed"
)

// Recorder owns a private registry so several recorders can coexist in tests.
type Recorder struct {
	registry *prometheus.Registry

	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	usingFallback prometheus.Gauge
	lastUpdate    prometheus.Gauge
	spread        prometheus.Gauge
	fires         *prometheus.CounterVec
	skips         *prometheus.CounterVec
	wsClients     prometheus.Gauge
	published     *prometheus.CounterVec
}

// NewRecorder creates a Recorder with all metrics registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Provider calls by data kind, provider and outcome.",
		}, []string{"kind", "source", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of provider calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"kind", "source"}),
		usingFallback: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "using_fallback_data",
			Help:      "1 while synthetic data is shown.",
		}),
		lastUpdate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_update_timestamp_seconds",
			Help:      "Unix time of the last applied update.",
		}),
		spread: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spread_percent",
			Help:      "Spread of the current book as a percent of the best bid.",
		}),
		fires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_fires_total",
			Help:      "Scheduler fires by trigger.",
		}, []string{"trigger"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_skipped_fetches_total",
			Help:      "Fetches skipped because the kind was already in flight.",
		}, []string{"kind"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_messages_total",
			Help:      "Updates handed to the redis bridge by outcome.",
		}, []string{"outcome"}),
	}

	r.registry.MustRegister(
		r.fetches,
		r.fetchDuration,
		r.usingFallback,
		r.lastUpdate,
		r.spread,
		r.fires,
		r.skips,
		r.wsClients,
		r.published,
	)

	return r
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveFetch implements market.FetchObserver.
func (r *Recorder) ObserveFetch(kind types.DataKind, source string, err error, elapsed time.Duration) {
	r.fetches.WithLabelValues(string(kind), source, Outcome(err)).Inc()
	r.fetchDuration.WithLabelValues(string(kind), source).Observe(elapsed.Seconds())
}

// ObserveFire implements scheduler.FireObserver.
func (r *Recorder) ObserveFire(trigger scheduler.Trigger) {
	r.fires.WithLabelValues(string(trigger)).Inc()
}

// ObserveSkip implements scheduler.FireObserver.
func (r *Recorder) ObserveSkip(kind types.DataKind) {
	r.skips.WithLabelValues(string(kind)).Inc()
}

// OnUpdate is a market.Listener keeping the state gauges current.
func (r *Recorder) OnUpdate(update market.Update) {
	state := update.View.State
	if state.UsingFallbackData {
		r.usingFallback.Set(1)
	} else {
		r.usingFallback.Set(0)
	}

	if !state.LastUpdated.IsZero() {
		r.lastUpdate.Set(float64(state.LastUpdated.UnixMilli()) / 1000)
	}

	if update.View.Book.IsSome() {
		if spread := update.View.Book.Unwrap().Spread; spread.IsSome() {
			r.spread.Set(spread.Unwrap().Percent)
		}
	}
}

// SetWebsocketClients records the number of connected websocket clients.
func (r *Recorder) SetWebsocketClients(n int) {
	r.wsClients.Set(float64(n))
}

// ObservePublish counts one redis bridge outcome.
func (r *Recorder) ObservePublish(outcome string) {
	r.published.WithLabelValues(outcome).Inc()
}

// Outcome maps a fetch error onto a low-cardinality label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}

	switch errors.GetCode(errors.FromContext(err, "")) {
	case errors.ErrCodeTimeout:
		return "timeout"
	case errors.ErrCodeCanceled:
		return "canceled"
	case errors.ErrCodeMalformedResponse:
		return "malformed"
	case errors.ErrCodeIncompatibleSource:
		return "incompatible"
	case errors.ErrCodeTransport:
		return "transport"
	default:
		return "error"
	}
}

var (
	_ market.FetchObserver   = (*Recorder)(nil)
	_ scheduler.FireObserver = (*Recorder)(nil)
)

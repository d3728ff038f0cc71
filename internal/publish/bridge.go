// Package publish forwards orchestrator updates to other processes.
package publish

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rxtech-lab/marketboard/internal/logger"
	"github.com/rxtech-lab/marketboard/internal/market"
	"github.com/rxtech-lab/marketboard/internal/metrics"
	"github.com/rxtech-lab/marketboard/internal/types"
	"go.uber.org/zap"
)

// Default configuration values.
const (
	DefaultQueueSize      = 256
	DefaultPublishTimeout = 2 * time.Second
)

// Publisher sends a payload on a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}

// Observer is told the outcome of every update handed to the bridge.
type Observer interface {
	ObservePublish(outcome string)
}

// Message is the JSON payload published for an update.
type Message struct {
	Kind              types.DataKind `json:"kind"`
	Symbol            string         `json:"symbol"`
	Data              any            `json:"data"`
	UsingFallbackData bool           `json:"usingFallbackData"`
	Timestamp         int64          `json:"timestamp"`
}

type outgoing struct {
	channel string
	payload []byte
}

// Bridge is a market.Listener that publishes updates through a bounded
// queue. Updates are dropped, not blocked on, when the queue is full.
type Bridge struct {
	publisher Publisher
	prefix    string
	timeout   time.Duration
	observer  Observer
	log       *logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan outgoing
	wg     sync.WaitGroup
}

// BridgeOptions configures a Bridge.
type BridgeOptions struct {
	Prefix    string
	QueueSize int
	Timeout   time.Duration
	Observer  Observer
}

// NewBridge creates a bridge. Call Start to begin publishing.
func NewBridge(publisher Publisher, opts BridgeOptions, log *logger.Logger) *Bridge {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultPublishTimeout
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Bridge{
		publisher: publisher,
		prefix:    strings.TrimSuffix(opts.Prefix, ":"),
		timeout:   opts.Timeout,
		observer:  opts.Observer,
		log:       log.Named("publish"),
		mu:        sync.RWMutex{},
		closed:    false,
		queue:     make(chan outgoing, opts.QueueSize),
		wg:        sync.WaitGroup{},
	}
}

// Channel returns the channel an update of kind for symbol is published on.
// The market list is not tied to a symbol and uses "all".
func Channel(prefix, symbol string, kind types.DataKind) string {
	if kind == types.DataKindAllTickers {
		symbol = "all"
	}

	if prefix == "" {
		return symbol + ":" + string(kind)
	}

	return prefix + ":" + symbol + ":" + string(kind)
}

// Start runs the publishing worker until ctx is done or Close is called.
func (b *Bridge) Start(ctx context.Context) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-b.queue:
				if !ok {
					return
				}

				b.send(ctx, msg)
			}
		}
	}()
}

// OnUpdate implements market.Listener.
func (b *Bridge) OnUpdate(update market.Update) {
	payload, err := json.Marshal(NewMessage(update))
	if err != nil {
		b.log.Error("failed to encode update", zap.String("kind", string(update.Kind)), zap.Error(err))
		b.observe(metrics.PublishFailed)

		return
	}

	msg := outgoing{
		channel: Channel(b.prefix, update.View.Symbol, update.Kind),
		payload: payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	select {
	case b.queue <- msg:
	default:
		b.log.Warn("publish queue full, dropping update", zap.String("channel", msg.channel))
		b.observe(metrics.PublishDropped)
	}
}

// Close stops accepting updates, drains the queue and closes the publisher.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()

		return nil
	}

	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()

	return b.publisher.Close()
}

// NewMessage picks the part of the view that changed.
func NewMessage(update market.Update) Message {
	view := update.View

	var data any

	switch update.Kind {
	case types.DataKindTicker:
		data = view.Ticker
	case types.DataKindDepth:
		data = struct {
			Snapshot any `json:"snapshot"`
			Book     any `json:"book"`
		}{view.Depth, view.Book}
	case types.DataKindTrades:
		data = view.Trades
	case types.DataKindAllTickers:
		data = view.AllTickers
	}

	return Message{
		Kind:              update.Kind,
		Symbol:            view.Symbol,
		Data:              data,
		UsingFallbackData: view.State.UsingFallbackData,
		Timestamp:         view.State.LastUpdated.UnixMilli(),
	}
}

func (b *Bridge) send(ctx context.Context, msg outgoing) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.publisher.Publish(ctx, msg.channel, msg.payload); err != nil {
		b.log.Warn("publish failed", zap.String("channel", msg.channel), zap.Error(err))
		b.observe(metrics.PublishFailed)

		return
	}

	b.observe(metrics.PublishSent)
}

func (b *Bridge) observe(outcome string) {
	if b.observer != nil {
		b.observer.ObservePublish(outcome)
	}
}

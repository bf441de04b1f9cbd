// Package stream distributes monitor snapshots to in-process subscribers such
// as websocket clients and the Redis bus.
package stream

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"breakout-trader/internal/logging"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/models"
	"breakout-trader/internal/trading"
)

// HubConfig holds configuration for the snapshot hub.
type HubConfig struct {
	// BufferSize is the size of the internal snapshot channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
	Logger               zerolog.Logger
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           64,
		SubscriberBufferSize: 16,
		Logger:               zerolog.Nop(),
	}
}

// Hub fans snapshots out to subscribers. Publish never blocks the caller: a
// full buffer drops the snapshot, and a slow subscriber misses snapshots
// rather than delaying the others. The latest snapshot is always retained.
//
// Snapshots are shared read-only between subscribers.
type Hub struct {
	config HubConfig
	logger zerolog.Logger

	mu          sync.RWMutex
	subscribers map[<-chan models.Snapshot]*subscriber
	latest      *models.Snapshot
	snapChan    chan models.Snapshot
	done        chan struct{}
	started     bool

	metricsMu sync.Mutex
	received  uint64
	broadcast uint64
	dropped   uint64
}

type subscriber struct {
	id      string
	ch      chan models.Snapshot
	dropped int
}

// NewHub creates a hub with the default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	if config.BufferSize <= 0 {
		config.BufferSize = 64
	}
	if config.SubscriberBufferSize <= 0 {
		config.SubscriberBufferSize = 16
	}
	return &Hub{
		config:      config,
		logger:      logging.WithOperation(config.Logger, "hub"),
		subscribers: make(map[<-chan models.Snapshot]*subscriber),
		snapChan:    make(chan models.Snapshot, config.BufferSize),
	}
}

// Start begins the distribution loop.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return
	}
	h.started = true
	h.done = make(chan struct{})
	go h.broadcastLoop(ctx, h.done)
}

// Stop ends the distribution loop and closes every subscriber channel.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}
	close(h.done)
	h.started = false

	for key, sub := range h.subscribers {
		close(sub.ch)
		delete(h.subscribers, key)
	}
}

func (h *Hub) broadcastLoop(ctx context.Context, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case snap := <-h.snapChan:
			h.metricsMu.Lock()
			h.received++
			h.metricsMu.Unlock()
			h.fanOut(snap)
		}
	}
}

// Publish records snap as the latest state and queues it for subscribers.
// It never blocks and never fails.
func (h *Hub) Publish(_ context.Context, snap models.Snapshot) error {
	h.mu.Lock()
	h.latest = &snap
	h.mu.Unlock()

	select {
	case h.snapChan <- snap:
	default:
		h.drop()
	}
	return nil
}

// Latest returns the most recently published snapshot.
func (h *Hub) Latest() (models.Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.latest == nil {
		return models.Snapshot{}, false
	}
	return *h.latest, true
}

// Subscribe registers a subscriber and returns its channel. The channel is
// closed by Unsubscribe or Stop.
func (h *Hub) Subscribe(id string) <-chan models.Snapshot {
	ch := make(chan models.Snapshot, h.config.SubscriberBufferSize)

	h.mu.Lock()
	h.subscribers[ch] = &subscriber{id: id, ch: ch}
	n := len(h.subscribers)
	h.mu.Unlock()

	h.logger.Debug().Str("subscriber", id).Int("subscribers", n).Msg("Subscriber added")
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(ch <-chan models.Snapshot) {
	h.mu.Lock()
	sub, ok := h.subscribers[ch]
	if ok {
		close(sub.ch)
		delete(h.subscribers, ch)
	}
	n := len(h.subscribers)
	h.mu.Unlock()

	if ok {
		h.logger.Debug().Str("subscriber", sub.id).Int("dropped", sub.dropped).Int("subscribers", n).Msg("Subscriber removed")
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

func (h *Hub) fanOut(snap models.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subscribers {
		select {
		case sub.ch <- snap:
			h.metricsMu.Lock()
			h.broadcast++
			h.metricsMu.Unlock()
		default:
			sub.dropped++
			h.drop()
		}
	}
}

func (h *Hub) drop() {
	h.metricsMu.Lock()
	h.dropped++
	h.metricsMu.Unlock()
	metrics.RecordPublishDropped()
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	Received    uint64
	Broadcast   uint64
	Dropped     uint64
	Subscribers int
}

// Metrics returns hub counters.
func (h *Hub) Metrics() HubMetrics {
	h.metricsMu.Lock()
	m := HubMetrics{Received: h.received, Broadcast: h.broadcast, Dropped: h.dropped}
	h.metricsMu.Unlock()
	m.Subscribers = h.SubscriberCount()
	return m
}

var _ trading.StatePublisher = (*Hub)(nil)

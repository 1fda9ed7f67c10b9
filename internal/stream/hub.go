// Package stream distributes engine output to observers: one FinalDecision
// emission per evaluation cycle and one EquitySnapshot emission per fill.
package stream

import (
	"sync"
	"time"

	"tradepilot/internal/models"
)

// Event is the union of everything published on the hub. Exactly one of
// Decision or Equity is set.
type Event struct {
	Symbol    string
	Decision  *models.FinalDecision
	Equity    *models.EquitySnapshot
	Timestamp time.Time
}

// HubConfig holds configuration for the event hub.
type HubConfig struct {
	// BufferSize is the size of the internal event channel buffer.
	BufferSize int
	// SubscriberBufferSize is the size of each subscriber's channel buffer.
	SubscriberBufferSize int
}

// DefaultHubConfig returns the default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:           1000,
		SubscriberBufferSize: 100,
	}
}

// Hub fans engine events out to multiple subscribers via channels.
// Broadcasts never block: a slow consumer drops events instead of stalling
// the engine.
type Hub struct {
	config HubConfig

	mu          sync.RWMutex
	subscribers map[string][]*Subscriber
	eventChan   chan Event
	done        chan struct{}
	started     bool

	metricsMu       sync.RWMutex
	eventsReceived  uint64
	eventsBroadcast uint64
	eventsDropped   uint64
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	Channel      chan Event
	DroppedCount int
	CreatedAt    time.Time
}

// NewHub creates a new event hub with default configuration.
func NewHub() *Hub {
	return NewHubWithConfig(DefaultHubConfig())
}

// NewHubWithConfig creates a new event hub with custom configuration.
func NewHubWithConfig(config HubConfig) *Hub {
	return &Hub{
		config:      config,
		subscribers: make(map[string][]*Subscriber),
		eventChan:   make(chan Event, config.BufferSize),
		done:        make(chan struct{}),
	}
}

// Start begins the hub's distribution loop.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	go h.broadcastLoop()
}

func (h *Hub) broadcastLoop() {
	for {
		select {
		case <-h.done:
			return
		case event := <-h.eventChan:
			h.metricsMu.Lock()
			h.eventsReceived++
			h.metricsMu.Unlock()

			h.broadcast(event)
		}
	}
}

// Stop stops the hub and closes all subscriber channels.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return
	}

	close(h.done)
	h.started = false

	for symbol, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.Channel)
		}
		delete(h.subscribers, symbol)
	}
}

// Subscribe adds a subscriber for a symbol and returns a channel to receive
// events. An empty symbol subscribes to all symbols.
func (h *Hub) Subscribe(symbol string) <-chan Event {
	ch := make(chan Event, h.config.SubscriberBufferSize)
	sub := &Subscriber{
		Channel:   ch,
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	h.subscribers[symbol] = append(h.subscribers[symbol], sub)
	h.mu.Unlock()

	return ch
}

// Unsubscribe removes a subscriber channel for a symbol.
func (h *Hub) Unsubscribe(symbol string, ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[symbol]
	for i, sub := range subs {
		if sub.Channel == ch {
			close(sub.Channel)
			h.subscribers[symbol] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subscribers[symbol]) == 0 {
		delete(h.subscribers, symbol)
	}
}

// PublishDecision publishes a final decision. Non-blocking: if the internal
// buffer is full, the event is dropped and counted.
func (h *Hub) PublishDecision(decision models.FinalDecision) {
	h.publish(Event{
		Symbol:    decision.Symbol,
		Decision:  &decision,
		Timestamp: time.Now(),
	})
}

// PublishEquity publishes an equity snapshot update.
func (h *Hub) PublishEquity(snapshot models.EquitySnapshot) {
	h.publish(Event{
		Symbol:    snapshot.Symbol,
		Equity:    &snapshot,
		Timestamp: time.Now(),
	})
}

func (h *Hub) publish(event Event) {
	select {
	case h.eventChan <- event:
	default:
		h.metricsMu.Lock()
		h.eventsDropped++
		h.metricsMu.Unlock()
	}
}

// broadcast sends an event to the symbol's subscribers and to wildcard
// subscribers. Non-blocking sends protect against slow consumers.
func (h *Hub) broadcast(event Event) {
	h.mu.RLock()
	subs := append([]*Subscriber(nil), h.subscribers[event.Symbol]...)
	subs = append(subs, h.subscribers[""]...)
	h.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.Channel <- event:
			h.metricsMu.Lock()
			h.eventsBroadcast++
			h.metricsMu.Unlock()
		default:
			sub.DroppedCount++
			h.metricsMu.Lock()
			h.eventsDropped++
			h.metricsMu.Unlock()
		}
	}
}

// GetSubscriberCount returns the number of subscribers for a symbol.
func (h *Hub) GetSubscriberCount(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[symbol])
}

// IsStarted returns whether the hub is running.
func (h *Hub) IsStarted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}

// GetMetrics returns hub metrics.
func (h *Hub) GetMetrics() HubMetrics {
	h.metricsMu.RLock()
	defer h.metricsMu.RUnlock()

	h.mu.RLock()
	count := 0
	for _, subs := range h.subscribers {
		count += len(subs)
	}
	h.mu.RUnlock()

	return HubMetrics{
		EventsReceived:  h.eventsReceived,
		EventsBroadcast: h.eventsBroadcast,
		EventsDropped:   h.eventsDropped,
		Subscribers:     count,
	}
}

// HubMetrics contains hub performance metrics.
type HubMetrics struct {
	EventsReceived  uint64
	EventsBroadcast uint64
	EventsDropped   uint64
	Subscribers     int
}

package stream

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepilot/internal/models"
)

func decisionFor(symbol string) models.FinalDecision {
	return models.FinalDecision{
		ID:        "d-" + symbol,
		Symbol:    symbol,
		Timeframe: models.Timeframe5m,
		Action:    models.DirectionBuy,
		Timestamp: time.Now().UTC(),
	}
}

func recvEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubDeliversDecisionToSymbolSubscriber(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	ch := hub.Subscribe("BTCUSDT")
	hub.PublishDecision(decisionFor("BTCUSDT"))

	event := recvEvent(t, ch)
	require.NotNil(t, event.Decision)
	assert.Nil(t, event.Equity)
	assert.Equal(t, "BTCUSDT", event.Symbol)
	assert.Equal(t, "d-BTCUSDT", event.Decision.ID)
}

func TestHubWildcardSubscriberSeesAllSymbols(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	all := hub.Subscribe("")
	hub.PublishDecision(decisionFor("BTCUSDT"))
	hub.PublishDecision(decisionFor("ETHUSDT"))

	seen := map[string]bool{}
	seen[recvEvent(t, all).Symbol] = true
	seen[recvEvent(t, all).Symbol] = true
	assert.True(t, seen["BTCUSDT"])
	assert.True(t, seen["ETHUSDT"])
}

func TestHubFiltersOtherSymbols(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	btc := hub.Subscribe("BTCUSDT")
	hub.PublishDecision(decisionFor("ETHUSDT"))
	hub.PublishDecision(decisionFor("BTCUSDT"))

	event := recvEvent(t, btc)
	assert.Equal(t, "BTCUSDT", event.Symbol)
	select {
	case extra := <-btc:
		t.Fatalf("unexpected extra event for %s", extra.Symbol)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubPublishEquity(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	ch := hub.Subscribe("BTCUSDT")
	hub.PublishEquity(models.EquitySnapshot{Symbol: "BTCUSDT", Equity: 10123.45})

	event := recvEvent(t, ch)
	require.NotNil(t, event.Equity)
	assert.Nil(t, event.Decision)
	assert.InDelta(t, 10123.45, event.Equity.Equity, 1e-9)
}

func TestHubSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{BufferSize: 10, SubscriberBufferSize: 1})
	hub.Start()
	defer hub.Stop()

	ch := hub.Subscribe("BTCUSDT")

	// Never read from ch: the buffer holds one event, the rest must be
	// dropped without stalling the publisher.
	for i := 0; i < 5; i++ {
		hub.PublishDecision(decisionFor("BTCUSDT"))
	}

	require.Eventually(t, func() bool {
		return hub.GetMetrics().EventsDropped >= 4
	}, 2*time.Second, 10*time.Millisecond)

	event := recvEvent(t, ch)
	assert.Equal(t, "BTCUSDT", event.Symbol)
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()
	hub.Start()
	defer hub.Stop()

	ch := hub.Subscribe("BTCUSDT")
	require.Equal(t, 1, hub.GetSubscriberCount("BTCUSDT"))

	hub.Unsubscribe("BTCUSDT", ch)
	assert.Equal(t, 0, hub.GetSubscriberCount("BTCUSDT"))

	_, open := <-ch
	assert.False(t, open)
}

func TestHubStopClosesAllSubscribers(t *testing.T) {
	hub := NewHub()
	hub.Start()

	channels := make([]<-chan Event, 0, 3)
	for i := 0; i < 3; i++ {
		channels = append(channels, hub.Subscribe(fmt.Sprintf("SYM%d", i)))
	}

	hub.Stop()
	assert.False(t, hub.IsStarted())
	for _, ch := range channels {
		_, open := <-ch
		assert.False(t, open)
	}
}

func TestHubPublishBeforeStartDoesNotBlock(t *testing.T) {
	hub := NewHubWithConfig(HubConfig{BufferSize: 1, SubscriberBufferSize: 1})

	// Not started: the first publish lands in the buffer, later ones drop.
	hub.PublishDecision(decisionFor("BTCUSDT"))
	hub.PublishDecision(decisionFor("BTCUSDT"))

	assert.Equal(t, uint64(1), hub.GetMetrics().EventsDropped)
}

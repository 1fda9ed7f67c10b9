// Package market provides candle series management for the decision engine.
package market

import (
	"sort"
	"sync"

	"tradepilot/internal/models"
)

// Series holds the candle history for one (symbol, timeframe) pair.
// Incoming candles are deduplicated by open time and kept in ascending
// order, so evaluation always sees a clean, ordered window.
type Series struct {
	symbol    string
	timeframe models.Timeframe
	maxLen    int

	mu      sync.RWMutex
	candles []models.Candle
	seen    map[int64]struct{} // open times already ingested (unix seconds)
}

// NewSeries creates an empty series with bounded retention. maxLen <= 0
// means unbounded.
func NewSeries(symbol string, timeframe models.Timeframe, maxLen int) *Series {
	return &Series{
		symbol:    symbol,
		timeframe: timeframe,
		maxLen:    maxLen,
		seen:      make(map[int64]struct{}),
	}
}

// Symbol returns the series symbol.
func (s *Series) Symbol() string { return s.symbol }

// Timeframe returns the series timeframe.
func (s *Series) Timeframe() models.Timeframe { return s.timeframe }

// Append ingests candles, dropping duplicates by open time and restoring
// ascending order. Returns the number of candles actually added.
func (s *Series) Append(candles ...models.Candle) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, c := range candles {
		key := c.OpenTime.Unix()
		if _, dup := s.seen[key]; dup {
			continue
		}
		s.seen[key] = struct{}{}
		s.candles = append(s.candles, c)
		added++
	}
	if added == 0 {
		return 0
	}

	sort.Slice(s.candles, func(i, j int) bool {
		return s.candles[i].OpenTime.Before(s.candles[j].OpenTime)
	})

	if s.maxLen > 0 && len(s.candles) > s.maxLen {
		drop := len(s.candles) - s.maxLen
		for _, c := range s.candles[:drop] {
			delete(s.seen, c.OpenTime.Unix())
		}
		s.candles = append([]models.Candle(nil), s.candles[drop:]...)
	}

	return added
}

// Snapshot returns a copy of the current candle window. Callers may hold it
// across suspension points without seeing later mutations.
func (s *Series) Snapshot() []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// Len returns the number of retained candles.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}

// LastClose returns the most recent close price, or 0 for an empty series.
func (s *Series) LastClose() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.candles) == 0 {
		return 0
	}
	return s.candles[len(s.candles)-1].Close
}

// Book is the set of series the engine tracks, keyed by symbol and
// timeframe.
type Book struct {
	mu     sync.RWMutex
	series map[string]*Series
	maxLen int
}

// NewBook creates an empty series book with the given per-series retention.
func NewBook(maxLen int) *Book {
	return &Book{
		series: make(map[string]*Series),
		maxLen: maxLen,
	}
}

// Get returns the series for (symbol, timeframe), creating it on first use.
func (b *Book) Get(symbol string, timeframe models.Timeframe) *Series {
	key := symbol + ":" + string(timeframe)

	b.mu.RLock()
	s, ok := b.series[key]
	b.mu.RUnlock()
	if ok {
		return s
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok = b.series[key]; ok {
		return s
	}
	s = NewSeries(symbol, timeframe, b.maxLen)
	b.series[key] = s
	return s
}

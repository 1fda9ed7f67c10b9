// Package strategy provides the pure candle-to-signal strategies that feed
// the ensemble.
package strategy

import (
	"fmt"

	"tradepilot/internal/models"
)

// Strategy converts a candle window into a directional signal. Strategies
// are stateless between calls: identical candle history and config always
// produce the identical signal.
type Strategy interface {
	// Name returns the stable identifier used in configuration.
	Name() string
	// Lookback returns the minimum candle count needed for a non-default
	// signal under default parameters.
	Lookback() int
	// Evaluate produces a signal for the candle window. It returns a hold
	// signal (never an error) when there is too little data, and a
	// ConfigError when a parameter is outside its declared range.
	Evaluate(candles []models.Candle, cfg models.StrategyConfig) (models.StrategySignal, error)
}

// holdSignal builds the safe default returned when a strategy cannot form a
// directional view.
func holdSignal(name, reason string) models.StrategySignal {
	return models.StrategySignal{
		StrategyName: name,
		Direction:    models.DirectionHold,
		Confidence:   0,
		Reason:       reason,
	}
}

// insufficientData builds the hold signal for a too-short candle window.
func insufficientData(name string, have, need int) models.StrategySignal {
	return holdSignal(name, fmt.Sprintf("insufficient data: have %d candles, need %d", have, need))
}

// Registry holds the known strategies keyed by their stable names.
type Registry struct {
	strategies map[string]Strategy
	order      []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy. Re-registering a name replaces the previous
// entry but keeps its position.
func (r *Registry) Register(s Strategy) {
	if _, exists := r.strategies[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.strategies[s.Name()] = s
}

// Get returns the strategy registered under name.
func (r *Registry) Get(name string) (Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// All returns the registered strategies in registration order.
func (r *Registry) All() []Strategy {
	out := make([]Strategy, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.strategies[name])
	}
	return out
}

// DefaultRegistry returns a registry with the four built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewMomentum())
	r.Register(NewTrendCross())
	r.Register(NewBreakout())
	r.Register(NewMeanReversion())
	return r
}

package models

import "time"

// StrategySignal is the output of a single strategy for one evaluation cycle.
// Signals are recomputed fresh every cycle and never persisted.
type StrategySignal struct {
	StrategyName string
	Direction    Direction
	Confidence   float64 // clamped to [0,1]
	Reason       string
}

// ParamRange declares the valid range for a numeric strategy parameter.
type ParamRange struct {
	Min float64
	Max float64
}

// Contains reports whether v falls within the declared range.
func (r ParamRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// StrategyConfig holds the per-strategy settings read from the settings
// repository at the start of each cycle.
type StrategyConfig struct {
	Name    string
	Enabled bool
	Weight  float64 // [0,2]
	Params  map[string]float64
}

// Param returns the named parameter or the given default when unset.
func (c StrategyConfig) Param(name string, def float64) float64 {
	if v, ok := c.Params[name]; ok {
		return v
	}
	return def
}

// EnsembleSignal is the weighted combination of all enabled strategy votes.
type EnsembleSignal struct {
	Direction    Direction
	Confidence   float64
	Contributing []StrategySignal
	Reason       string
	Timestamp    time.Time
}

// Prediction is the output of an opaque learned-model predictor.
type Prediction struct {
	Direction  Direction
	Confidence float64
	ModelName  string
}

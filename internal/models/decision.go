package models

import "time"

// DecisionSource identifies which path produced a final decision.
type DecisionSource string

const (
	SourceModel            DecisionSource = "AI model"
	SourceEnsemble         DecisionSource = "Strategy ensemble"
	SourceEnsembleFallback DecisionSource = "Strategy ensemble (fallback)"
)

// DecisionComponent records one contributing vote inside a final decision,
// kept for auditability.
type DecisionComponent struct {
	Source     string
	Vote       Direction
	Confidence float64
	Weight     float64
	Score      float64
}

// FinalDecision is the single source of truth for what the engine decided
// and why. It is immutable once created; one is produced per evaluation
// cycle per (symbol, timeframe).
type FinalDecision struct {
	ID         string
	Symbol     string
	Timeframe  Timeframe
	Action     Direction
	Confidence float64
	Source     DecisionSource
	Rationale  string
	Components []DecisionComponent
	Timestamp  time.Time
}

// IsActionable reports whether the decision calls for an order.
func (d FinalDecision) IsActionable() bool {
	return d.Action == DirectionBuy || d.Action == DirectionSell
}

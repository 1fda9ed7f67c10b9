// Package models provides domain models for the decision and execution engine.
package models

import (
	"time"
)

// Direction represents the directional vote of a signal or decision.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Sign returns the signed multiplier for a direction: buy=+1, sell=-1, hold=0.
func (d Direction) Sign() float64 {
	switch d {
	case DirectionBuy:
		return 1
	case DirectionSell:
		return -1
	default:
		return 0
	}
}

// Timeframe represents a candle aggregation interval.
type Timeframe string

const (
	Timeframe5m Timeframe = "5m"
	Timeframe1h Timeframe = "1h"
	Timeframe4h Timeframe = "4h"
)

// TimeframeClass groups timeframes by the decision source that serves them.
type TimeframeClass string

const (
	// ShortTerm timeframes are served by the strategy ensemble.
	ShortTerm TimeframeClass = "SHORT_TERM"
	// LongTerm timeframes are served by the learned-model predictor.
	LongTerm TimeframeClass = "LONG_TERM"
)

// Class returns the routing class for the timeframe.
func (tf Timeframe) Class() TimeframeClass {
	if tf == Timeframe4h {
		return LongTerm
	}
	return ShortTerm
}

// Valid reports whether the timeframe is one the engine knows how to route.
func (tf Timeframe) Valid() bool {
	switch tf {
	case Timeframe5m, Timeframe1h, Timeframe4h:
		return true
	}
	return false
}

// Candle represents OHLCV data for a single interval.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Sign returns the signed multiplier for a side: buy=+1, sell=-1.
func (s OrderSide) Sign() float64 {
	if s == OrderSideSell {
		return -1
	}
	return 1
}

// Direction converts the side into a signal direction.
func (s OrderSide) Direction() Direction {
	if s == OrderSideSell {
		return DirectionSell
	}
	return DirectionBuy
}

// SideForDirection maps a non-hold decision direction to an order side.
func SideForDirection(d Direction) (OrderSide, bool) {
	switch d {
	case DirectionBuy:
		return OrderSideBuy, true
	case DirectionSell:
		return OrderSideSell, true
	}
	return "", false
}

package strategy

import (
	"fmt"

	"tradepilot/internal/errors"
	"tradepilot/internal/models"
	"tradepilot/pkg/utils"
)

// Momentum is an RSI-based oscillator strategy: it buys oversold markets
// and sells overbought ones.
type Momentum struct{}

// NewMomentum creates a new momentum strategy.
func NewMomentum() *Momentum {
	return &Momentum{}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Lookback() int { return 20 }

var momentumRanges = map[string]models.ParamRange{
	"period":     {Min: 2, Max: 100},
	"oversold":   {Min: 1, Max: 50},
	"overbought": {Min: 50, Max: 99},
}

func (m *Momentum) Evaluate(candles []models.Candle, cfg models.StrategyConfig) (models.StrategySignal, error) {
	period := cfg.Param("period", 14)
	oversold := cfg.Param("oversold", 30)
	overbought := cfg.Param("overbought", 70)

	for name, v := range map[string]float64{"period": period, "oversold": oversold, "overbought": overbought} {
		if r := momentumRanges[name]; !r.Contains(v) {
			return models.StrategySignal{}, errors.NewConfigError(m.Name(), name, v, fmt.Sprintf("must be in [%g, %g]", r.Min, r.Max))
		}
	}

	need := int(period) + 1
	if need < m.Lookback() {
		need = m.Lookback()
	}
	if len(candles) < need {
		return insufficientData(m.Name(), len(candles), need), nil
	}

	rsi := lastRSI(closePrices(candles), int(period))
	confidence := utils.Clamp01(rsiDistanceFromMid(rsi) / 50)

	switch {
	case rsi < oversold:
		return models.StrategySignal{
			StrategyName: m.Name(),
			Direction:    models.DirectionBuy,
			Confidence:   confidence,
			Reason:       fmt.Sprintf("RSI %.1f below oversold %.0f", rsi, oversold),
		}, nil
	case rsi > overbought:
		return models.StrategySignal{
			StrategyName: m.Name(),
			Direction:    models.DirectionSell,
			Confidence:   confidence,
			Reason:       fmt.Sprintf("RSI %.1f above overbought %.0f", rsi, overbought),
		}, nil
	}
	return holdSignal(m.Name(), fmt.Sprintf("RSI %.1f in neutral zone", rsi)), nil
}

// rsiDistanceFromMid returns the absolute distance of RSI from the neutral
// midpoint 50.
func rsiDistanceFromMid(rsi float64) float64 {
	if rsi < 50 {
		return 50 - rsi
	}
	return rsi - 50
}

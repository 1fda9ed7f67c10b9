package strategy

import (
	"fmt"

	"tradepilot/internal/errors"
	"tradepilot/internal/models"
	"tradepilot/pkg/utils"
)

// Breakout is a Donchian-channel strategy: a close beyond the recent
// high/low range signals a breakout in that direction.
type Breakout struct{}

// NewBreakout creates a new breakout strategy.
func NewBreakout() *Breakout {
	return &Breakout{}
}

func (b *Breakout) Name() string { return "breakout" }

func (b *Breakout) Lookback() int { return 21 }

var breakoutPeriodRange = models.ParamRange{Min: 5, Max: 200}

func (b *Breakout) Evaluate(candles []models.Candle, cfg models.StrategyConfig) (models.StrategySignal, error) {
	period := cfg.Param("period", 20)
	if !breakoutPeriodRange.Contains(period) {
		return models.StrategySignal{}, errors.NewConfigError(b.Name(), "period", period, fmt.Sprintf("must be in [%g, %g]", breakoutPeriodRange.Min, breakoutPeriodRange.Max))
	}

	need := int(period) + 1
	if len(candles) < need {
		return insufficientData(b.Name(), len(candles), need), nil
	}

	// Channel over the window preceding the latest candle.
	window := candles[len(candles)-1-int(period) : len(candles)-1]
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	for i, c := range window {
		highs[i] = c.High
		lows[i] = c.Low
	}

	upper := highest(highs)
	lower := lowest(lows)
	width := upper - lower
	close := candles[len(candles)-1].Close

	if width <= 0 {
		return holdSignal(b.Name(), "degenerate channel"), nil
	}

	switch {
	case close > upper:
		confidence := utils.Clamp01((close - upper) / width * 10)
		return models.StrategySignal{
			StrategyName: b.Name(),
			Direction:    models.DirectionBuy,
			Confidence:   confidence,
			Reason:       fmt.Sprintf("close %.2f broke above %d-candle high %.2f", close, int(period), upper),
		}, nil
	case close < lower:
		confidence := utils.Clamp01((lower - close) / width * 10)
		return models.StrategySignal{
			StrategyName: b.Name(),
			Direction:    models.DirectionSell,
			Confidence:   confidence,
			Reason:       fmt.Sprintf("close %.2f broke below %d-candle low %.2f", close, int(period), lower),
		}, nil
	}
	return holdSignal(b.Name(), fmt.Sprintf("close %.2f inside channel [%.2f, %.2f]", close, lower, upper)), nil
}

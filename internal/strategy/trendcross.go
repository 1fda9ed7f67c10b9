package strategy

import (
	"fmt"

	"tradepilot/internal/errors"
	"tradepilot/internal/models"
	"tradepilot/pkg/utils"
)

// TrendCross is an EMA crossover strategy: a fast average above the slow
// one signals an uptrend, below it a downtrend.
type TrendCross struct{}

// NewTrendCross creates a new trend-crossover strategy.
func NewTrendCross() *TrendCross {
	return &TrendCross{}
}

func (t *TrendCross) Name() string { return "trendcross" }

func (t *TrendCross) Lookback() int { return 21 }

var trendCrossRanges = map[string]models.ParamRange{
	"fast": {Min: 2, Max: 100},
	"slow": {Min: 3, Max: 200},
}

func (t *TrendCross) Evaluate(candles []models.Candle, cfg models.StrategyConfig) (models.StrategySignal, error) {
	fast := cfg.Param("fast", 9)
	slow := cfg.Param("slow", 21)

	for name, v := range map[string]float64{"fast": fast, "slow": slow} {
		if r := trendCrossRanges[name]; !r.Contains(v) {
			return models.StrategySignal{}, errors.NewConfigError(t.Name(), name, v, fmt.Sprintf("must be in [%g, %g]", r.Min, r.Max))
		}
	}
	if fast >= slow {
		return models.StrategySignal{}, errors.NewConfigError(t.Name(), "fast", fast, fmt.Sprintf("must be less than slow (%g)", slow))
	}

	need := int(slow)
	if len(candles) < need {
		return insufficientData(t.Name(), len(candles), need), nil
	}

	closes := closePrices(candles)
	fastEMA := ema(closes, int(fast))
	slowEMA := ema(closes, int(slow))
	if fastEMA == nil || slowEMA == nil {
		return insufficientData(t.Name(), len(candles), need), nil
	}

	f := fastEMA[len(fastEMA)-1]
	s := slowEMA[len(slowEMA)-1]
	if s == 0 {
		return holdSignal(t.Name(), "flat price history"), nil
	}

	gap := (f - s) / s
	confidence := utils.Clamp01(abs(gap) * 100)

	switch {
	case gap > 0:
		return models.StrategySignal{
			StrategyName: t.Name(),
			Direction:    models.DirectionBuy,
			Confidence:   confidence,
			Reason:       fmt.Sprintf("EMA%d above EMA%d by %.2f%%", int(fast), int(slow), gap*100),
		}, nil
	case gap < 0:
		return models.StrategySignal{
			StrategyName: t.Name(),
			Direction:    models.DirectionSell,
			Confidence:   confidence,
			Reason:       fmt.Sprintf("EMA%d below EMA%d by %.2f%%", int(fast), int(slow), -gap*100),
		}, nil
	}
	return holdSignal(t.Name(), "EMAs converged"), nil
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

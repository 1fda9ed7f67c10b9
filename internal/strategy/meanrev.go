package strategy

import (
	"fmt"

	"tradepilot/internal/errors"
	"tradepilot/internal/models"
	"tradepilot/pkg/utils"
)

// MeanReversion is a Bollinger-band strategy: a close stretched beyond the
// bands is faded back toward the mean.
type MeanReversion struct{}

// NewMeanReversion creates a new mean-reversion strategy.
func NewMeanReversion() *MeanReversion {
	return &MeanReversion{}
}

func (m *MeanReversion) Name() string { return "meanrev" }

func (m *MeanReversion) Lookback() int { return 20 }

var meanRevRanges = map[string]models.ParamRange{
	"period": {Min: 5, Max: 200},
	"stddev": {Min: 0.5, Max: 5},
}

func (m *MeanReversion) Evaluate(candles []models.Candle, cfg models.StrategyConfig) (models.StrategySignal, error) {
	period := cfg.Param("period", 20)
	k := cfg.Param("stddev", 2)

	for name, v := range map[string]float64{"period": period, "stddev": k} {
		if r := meanRevRanges[name]; !r.Contains(v) {
			return models.StrategySignal{}, errors.NewConfigError(m.Name(), name, v, fmt.Sprintf("must be in [%g, %g]", r.Min, r.Max))
		}
	}

	need := int(period)
	if need < m.Lookback() {
		need = m.Lookback()
	}
	if len(candles) < need {
		return insufficientData(m.Name(), len(candles), need), nil
	}

	closes := closePrices(candles)
	window := closes[len(closes)-int(period):]
	mid := mean(window)
	sd := stdDev(window)
	close := closes[len(closes)-1]

	if sd == 0 {
		return holdSignal(m.Name(), "zero volatility window"), nil
	}

	z := (close - mid) / sd
	confidence := utils.Clamp01(abs(z) / (2 * k))

	switch {
	case z > k:
		return models.StrategySignal{
			StrategyName: m.Name(),
			Direction:    models.DirectionSell,
			Confidence:   confidence,
			Reason:       fmt.Sprintf("close %.2f is %.1f sigma above mean %.2f", close, z, mid),
		}, nil
	case z < -k:
		return models.StrategySignal{
			StrategyName: m.Name(),
			Direction:    models.DirectionBuy,
			Confidence:   confidence,
			Reason:       fmt.Sprintf("close %.2f is %.1f sigma below mean %.2f", close, -z, mid),
		}, nil
	}
	return holdSignal(m.Name(), fmt.Sprintf("close %.2f within %.1f sigma of mean", close, k)), nil
}

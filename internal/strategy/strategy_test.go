package strategy

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepilot/internal/errors"
	"tradepilot/internal/models"
)

func flatCandles(n int, close float64) []models.Candle {
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = models.Candle{
			OpenTime: time.Unix(int64(i)*300, 0),
			Open:     close, High: close + 1, Low: close - 1, Close: close, Volume: 10,
		}
	}
	return candles
}

// trendingCandles builds a series whose close moves by step per candle.
func trendingCandles(n int, start, step float64) []models.Candle {
	candles := make([]models.Candle, n)
	price := start
	for i := range candles {
		candles[i] = models.Candle{
			OpenTime: time.Unix(int64(i)*300, 0),
			Open:     price, High: price + 1, Low: price - 1, Close: price + step, Volume: 10,
		}
		price += step
	}
	return candles
}

func emptyConfig(name string) models.StrategyConfig {
	return models.StrategyConfig{Name: name, Enabled: true, Weight: 1}
}

func TestStrategiesHoldOnShortWindow(t *testing.T) {
	candles := flatCandles(5, 100)

	for _, strat := range DefaultRegistry().All() {
		signal, err := strat.Evaluate(candles, emptyConfig(strat.Name()))
		require.NoError(t, err, strat.Name())

		assert.Equal(t, models.DirectionHold, signal.Direction, strat.Name())
		assert.Zero(t, signal.Confidence, strat.Name())
		assert.True(t, strings.HasPrefix(signal.Reason, "insufficient data"), strat.Name())
	}
}

func TestStrategiesAreDeterministic(t *testing.T) {
	candles := trendingCandles(50, 100, 0.5)

	for _, strat := range DefaultRegistry().All() {
		first, err := strat.Evaluate(candles, emptyConfig(strat.Name()))
		require.NoError(t, err)
		second, err := strat.Evaluate(candles, emptyConfig(strat.Name()))
		require.NoError(t, err)

		assert.Equal(t, first, second, strat.Name())
	}
}

func TestMomentumBuysOversold(t *testing.T) {
	// A steady decline drives RSI to zero.
	candles := trendingCandles(40, 200, -2)

	signal, err := NewMomentum().Evaluate(candles, emptyConfig("momentum"))
	require.NoError(t, err)

	assert.Equal(t, models.DirectionBuy, signal.Direction)
	assert.Greater(t, signal.Confidence, 0.5)
	assert.Contains(t, signal.Reason, "oversold")
}

func TestMomentumSellsOverbought(t *testing.T) {
	candles := trendingCandles(40, 100, 2)

	signal, err := NewMomentum().Evaluate(candles, emptyConfig("momentum"))
	require.NoError(t, err)

	assert.Equal(t, models.DirectionSell, signal.Direction)
	assert.Contains(t, signal.Reason, "overbought")
}

func TestMomentumRejectsOutOfRangeParam(t *testing.T) {
	cfg := models.StrategyConfig{
		Name: "momentum", Enabled: true, Weight: 1,
		Params: map[string]float64{"period": 500},
	}

	_, err := NewMomentum().Evaluate(flatCandles(40, 100), cfg)
	require.Error(t, err)

	var cerr *errors.ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "momentum", cerr.Strategy)
	assert.Equal(t, "period", cerr.Param)
}

func TestTrendCrossRejectsFastNotBelowSlow(t *testing.T) {
	cfg := models.StrategyConfig{
		Name: "trendcross", Enabled: true, Weight: 1,
		Params: map[string]float64{"fast": 21, "slow": 21},
	}

	_, err := NewTrendCross().Evaluate(flatCandles(40, 100), cfg)

	var cerr *errors.ConfigError
	require.True(t, errors.As(err, &cerr))
}

func TestTrendCrossFollowsTrend(t *testing.T) {
	up, err := NewTrendCross().Evaluate(trendingCandles(50, 100, 1), emptyConfig("trendcross"))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionBuy, up.Direction)

	down, err := NewTrendCross().Evaluate(trendingCandles(50, 200, -1), emptyConfig("trendcross"))
	require.NoError(t, err)
	assert.Equal(t, models.DirectionSell, down.Direction)
}

func TestBreakoutDetectsChannelBreak(t *testing.T) {
	// Flat channel then a close well above the prior 20-candle high.
	candles := flatCandles(30, 100)
	last := &candles[len(candles)-1]
	last.Close = 110
	last.High = 111

	signal, err := NewBreakout().Evaluate(candles, emptyConfig("breakout"))
	require.NoError(t, err)

	assert.Equal(t, models.DirectionBuy, signal.Direction)
	assert.Greater(t, signal.Confidence, 0.0)
}

func TestBreakoutHoldsInsideChannel(t *testing.T) {
	signal, err := NewBreakout().Evaluate(flatCandles(30, 100), emptyConfig("breakout"))
	require.NoError(t, err)

	assert.Equal(t, models.DirectionHold, signal.Direction)
	assert.Contains(t, signal.Reason, "inside channel")
}

func TestMeanReversionFadesStretch(t *testing.T) {
	// Stable prices with a final spike several sigma above the mean.
	candles := make([]models.Candle, 30)
	for i := range candles {
		close := 100 + float64(i%3)
		candles[i] = models.Candle{
			OpenTime: time.Unix(int64(i)*300, 0),
			Open:     close, High: close + 1, Low: close - 1, Close: close, Volume: 10,
		}
	}
	candles[len(candles)-1].Close = 120

	signal, err := NewMeanReversion().Evaluate(candles, emptyConfig("meanrev"))
	require.NoError(t, err)

	assert.Equal(t, models.DirectionSell, signal.Direction)
}

func TestMeanReversionHoldsOnZeroVolatility(t *testing.T) {
	candles := flatCandles(30, 100)

	signal, err := NewMeanReversion().Evaluate(candles, emptyConfig("meanrev"))
	require.NoError(t, err)

	assert.Equal(t, models.DirectionHold, signal.Direction)
}

func TestRegistryOrderAndLookup(t *testing.T) {
	registry := DefaultRegistry()

	names := make([]string, 0)
	for _, s := range registry.All() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"momentum", "trendcross", "breakout", "meanrev"}, names)

	_, ok := registry.Get("momentum")
	assert.True(t, ok)
	_, ok = registry.Get("unknown")
	assert.False(t, ok)
}

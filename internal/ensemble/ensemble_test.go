package ensemble

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepilot/internal/config"
	"tradepilot/internal/errors"
	"tradepilot/internal/models"
	"tradepilot/internal/strategy"
)

// stubStrategy returns a fixed signal or error regardless of candles.
type stubStrategy struct {
	name   string
	signal models.StrategySignal
	err    error
}

func (s *stubStrategy) Name() string  { return s.name }
func (s *stubStrategy) Lookback() int { return 1 }

func (s *stubStrategy) Evaluate(candles []models.Candle, cfg models.StrategyConfig) (models.StrategySignal, error) {
	if s.err != nil {
		return models.StrategySignal{}, s.err
	}
	sig := s.signal
	sig.StrategyName = s.name
	return sig, nil
}

func vote(direction models.Direction, confidence float64) models.StrategySignal {
	return models.StrategySignal{Direction: direction, Confidence: confidence, Reason: "stub"}
}

func buildEnsemble(stubs ...*stubStrategy) (*Ensemble, config.Settings) {
	registry := strategy.NewRegistry()
	settings := config.Settings{
		BuyThreshold:  0.3,
		SellThreshold: 0.3,
		Epsilon:       1e-9,
		MinConfidence: 0.55,
		MaxConfidence: 0.90,
	}
	for _, s := range stubs {
		registry.Register(s)
		settings.Strategies = append(settings.Strategies, models.StrategyConfig{
			Name: s.name, Enabled: true, Weight: 1.0,
		})
	}
	return New(registry, zerolog.Nop()), settings
}

func testCandles(n int) []models.Candle {
	candles := make([]models.Candle, n)
	for i := range candles {
		candles[i] = models.Candle{
			OpenTime: time.Unix(int64(i)*300, 0),
			Open:     100, High: 101, Low: 99, Close: 100, Volume: 10,
		}
	}
	return candles
}

func TestEvaluateUnanimousBuy(t *testing.T) {
	ens, settings := buildEnsemble(
		&stubStrategy{name: "a", signal: vote(models.DirectionBuy, 0.8)},
		&stubStrategy{name: "b", signal: vote(models.DirectionBuy, 0.7)},
		&stubStrategy{name: "c", signal: vote(models.DirectionBuy, 0.9)},
	)

	signal := ens.Evaluate(testCandles(30), settings)

	assert.Equal(t, models.DirectionBuy, signal.Direction)
	// normalized = (0.8+0.7+0.9)/3 = 0.8, inside the band
	assert.InDelta(t, 0.8, signal.Confidence, 1e-9)
	assert.Len(t, signal.Contributing, 3)
}

func TestEvaluateDisagreementHoldsAndListsAllVotes(t *testing.T) {
	ens, settings := buildEnsemble(
		&stubStrategy{name: "a", signal: vote(models.DirectionBuy, 0.6)},
		&stubStrategy{name: "b", signal: vote(models.DirectionBuy, 0.6)},
		&stubStrategy{name: "c", signal: vote(models.DirectionSell, 0.9)},
	)

	signal := ens.Evaluate(testCandles(30), settings)

	// normalized = (0.6+0.6-0.9)/3 = 0.1, below the 0.3 threshold
	assert.Equal(t, models.DirectionHold, signal.Direction)
	assert.InDelta(t, 0.1, signal.Confidence, 1e-9)

	// Disagreement must never collapse to a single label.
	assert.Contains(t, signal.Reason, "a BUY (0.60)")
	assert.Contains(t, signal.Reason, "b BUY (0.60)")
	assert.Contains(t, signal.Reason, "c SELL (0.90)")
}

func TestEvaluateVotesCancelOut(t *testing.T) {
	ens, settings := buildEnsemble(
		&stubStrategy{name: "a", signal: vote(models.DirectionBuy, 0.5)},
		&stubStrategy{name: "b", signal: vote(models.DirectionSell, 0.5)},
	)

	signal := ens.Evaluate(testCandles(30), settings)

	assert.Equal(t, models.DirectionHold, signal.Direction)
	assert.Zero(t, signal.Confidence)
	assert.Contains(t, signal.Reason, "votes cancel out")
}

func TestEvaluateAllInsufficientData(t *testing.T) {
	hold := models.StrategySignal{
		Direction: models.DirectionHold,
		Reason:    "insufficient data: have 5 candles, need 20",
	}
	ens, settings := buildEnsemble(
		&stubStrategy{name: "a", signal: hold},
		&stubStrategy{name: "b", signal: hold},
	)

	signal := ens.Evaluate(testCandles(5), settings)

	assert.Equal(t, models.DirectionHold, signal.Direction)
	assert.Zero(t, signal.Confidence)
	assert.Equal(t, "insufficient data: all strategies below lookback", signal.Reason)
}

func TestEvaluateFailingStrategyExcluded(t *testing.T) {
	ens, settings := buildEnsemble(
		&stubStrategy{name: "a", signal: vote(models.DirectionBuy, 0.8)},
		&stubStrategy{name: "broken", err: stderrors.New("bad parameter")},
	)

	signal := ens.Evaluate(testCandles(30), settings)

	// The broken strategy is excluded; the vote proceeds with the rest.
	require.Equal(t, models.DirectionBuy, signal.Direction)
	assert.Len(t, signal.Contributing, 1)
}

func TestEvaluateOneWrapsStrategyFailures(t *testing.T) {
	ens, _ := buildEnsemble()
	cfg := models.StrategyConfig{Name: "broken", Enabled: true, Weight: 1.0}

	cause := stderrors.New("bad parameter")
	_, err := ens.evaluateOne(&stubStrategy{name: "broken", err: cause}, testCandles(5), cfg)
	var se *errors.StrategyError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "broken", se.Strategy)
	assert.ErrorIs(t, err, cause)

	cfg.Name = "panics"
	_, err = ens.evaluateOne(panicStrategy{}, testCandles(5), cfg)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "panics", se.Strategy)
}

func TestEvaluatePanickingStrategyExcluded(t *testing.T) {
	registry := strategy.NewRegistry()
	registry.Register(&stubStrategy{name: "a", signal: vote(models.DirectionSell, 0.9)})
	registry.Register(panicStrategy{})
	ens := New(registry, zerolog.Nop())

	settings := config.Settings{
		BuyThreshold: 0.3, SellThreshold: 0.3, Epsilon: 1e-9,
		MinConfidence: 0.55, MaxConfidence: 0.90,
		Strategies: []models.StrategyConfig{
			{Name: "a", Enabled: true, Weight: 1.0},
			{Name: "panics", Enabled: true, Weight: 1.0},
		},
	}

	signal := ens.Evaluate(testCandles(30), settings)

	assert.Equal(t, models.DirectionSell, signal.Direction)
	assert.Len(t, signal.Contributing, 1)
}

type panicStrategy struct{}

func (panicStrategy) Name() string  { return "panics" }
func (panicStrategy) Lookback() int { return 1 }
func (panicStrategy) Evaluate([]models.Candle, models.StrategyConfig) (models.StrategySignal, error) {
	panic("boom")
}

func TestEvaluateConfidenceClampedToBand(t *testing.T) {
	ens, settings := buildEnsemble(
		&stubStrategy{name: "a", signal: vote(models.DirectionBuy, 1.0)},
	)

	signal := ens.Evaluate(testCandles(30), settings)

	require.Equal(t, models.DirectionBuy, signal.Direction)
	assert.InDelta(t, settings.MaxConfidence, signal.Confidence, 1e-9)
}

func TestEvaluateWeakSignalLiftedToBandFloor(t *testing.T) {
	ens, settings := buildEnsemble(
		&stubStrategy{name: "a", signal: vote(models.DirectionSell, 0.4)},
	)

	signal := ens.Evaluate(testCandles(30), settings)

	// normalized = -0.4, actionable, confidence lifted to the band floor
	require.Equal(t, models.DirectionSell, signal.Direction)
	assert.InDelta(t, settings.MinConfidence, signal.Confidence, 1e-9)
}

func TestEvaluateDisabledStrategySkipped(t *testing.T) {
	registry := strategy.NewRegistry()
	registry.Register(&stubStrategy{name: "a", signal: vote(models.DirectionBuy, 0.9)})
	registry.Register(&stubStrategy{name: "b", signal: vote(models.DirectionSell, 0.9)})
	ens := New(registry, zerolog.Nop())

	settings := config.Settings{
		BuyThreshold: 0.3, SellThreshold: 0.3, Epsilon: 1e-9,
		MinConfidence: 0.55, MaxConfidence: 0.90,
		Strategies: []models.StrategyConfig{
			{Name: "a", Enabled: true, Weight: 1.0},
			{Name: "b", Enabled: false, Weight: 1.0},
		},
	}

	signal := ens.Evaluate(testCandles(30), settings)

	assert.Equal(t, models.DirectionBuy, signal.Direction)
	assert.Len(t, signal.Contributing, 1)
}

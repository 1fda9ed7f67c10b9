package fusion

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepilot/internal/config"
	"tradepilot/internal/models"
	"tradepilot/internal/router"
)

func testSettings() config.Settings {
	return config.NewRepository(config.Default()).Snapshot()
}

func ensembleRouted() router.RoutedSignal {
	return router.RoutedSignal{
		Symbol:     "BTCUSDT",
		Timeframe:  models.Timeframe5m,
		Source:     models.SourceEnsemble,
		Direction:  models.DirectionBuy,
		Confidence: 0.72,
		Reason:     "3 of 4 strategies agree",
		Ensemble: &models.EnsembleSignal{
			Direction:  models.DirectionBuy,
			Confidence: 0.72,
			Contributing: []models.StrategySignal{
				{StrategyName: "momentum", Direction: models.DirectionBuy, Confidence: 0.8},
				{StrategyName: "trendcross", Direction: models.DirectionBuy, Confidence: 0.6},
				{StrategyName: "breakout", Direction: models.DirectionSell, Confidence: 0.4},
			},
		},
	}
}

func modelRouted() router.RoutedSignal {
	return router.RoutedSignal{
		Symbol:     "BTCUSDT",
		Timeframe:  models.Timeframe4h,
		Source:     models.SourceModel,
		Direction:  models.DirectionSell,
		Confidence: 0.81,
		Reason:     "model prediction",
		Model:      &models.Prediction{Direction: models.DirectionSell, Confidence: 0.81, ModelName: "static"},
	}
}

func TestFuseCarriesRoutedFields(t *testing.T) {
	f := New(zerolog.Nop())
	decision := f.Fuse(ensembleRouted(), testSettings())

	assert.NotEmpty(t, decision.ID)
	assert.Equal(t, "BTCUSDT", decision.Symbol)
	assert.Equal(t, models.Timeframe5m, decision.Timeframe)
	assert.Equal(t, models.DirectionBuy, decision.Action)
	assert.InDelta(t, 0.72, decision.Confidence, 1e-9)
	assert.Equal(t, models.SourceEnsemble, decision.Source)
	assert.False(t, decision.Timestamp.IsZero())
}

func TestFuseRationalePrefixedWithSource(t *testing.T) {
	f := New(zerolog.Nop())
	decision := f.Fuse(ensembleRouted(), testSettings())

	require.True(t, strings.HasPrefix(decision.Rationale, string(models.SourceEnsemble)+": "))
	assert.Contains(t, decision.Rationale, "3 of 4 strategies agree")
}

func TestFuseEnsembleComponentsListEveryVote(t *testing.T) {
	f := New(zerolog.Nop())
	settings := testSettings()
	decision := f.Fuse(ensembleRouted(), settings)

	require.Len(t, decision.Components, 3)

	weights := make(map[string]float64, len(settings.Strategies))
	for _, s := range settings.Strategies {
		weights[s.Name] = s.Weight
	}

	byName := map[string]models.DecisionComponent{}
	for _, c := range decision.Components {
		byName[c.Source] = c
	}

	momentum, ok := byName["strategy:momentum"]
	require.True(t, ok)
	assert.Equal(t, models.DirectionBuy, momentum.Vote)
	assert.InDelta(t, 0.8, momentum.Confidence, 1e-9)
	assert.InDelta(t, weights["momentum"], momentum.Weight, 1e-9)
	assert.InDelta(t, 0.8*weights["momentum"], momentum.Score, 1e-9)

	breakout, ok := byName["strategy:breakout"]
	require.True(t, ok)
	assert.Equal(t, models.DirectionSell, breakout.Vote)
	assert.InDelta(t, -0.4*weights["breakout"], breakout.Score, 1e-9)
}

func TestFuseModelComponent(t *testing.T) {
	f := New(zerolog.Nop())
	decision := f.Fuse(modelRouted(), testSettings())

	require.Len(t, decision.Components, 1)
	c := decision.Components[0]
	assert.Equal(t, "model:static", c.Source)
	assert.Equal(t, models.DirectionSell, c.Vote)
	assert.InDelta(t, 0.81, c.Confidence, 1e-9)
	assert.InDelta(t, 1.0, c.Weight, 1e-9)
	assert.InDelta(t, -0.81, c.Score, 1e-9)
}

func TestFuseFallbackKeepsEnsembleBreakdown(t *testing.T) {
	routed := ensembleRouted()
	routed.Timeframe = models.Timeframe4h
	routed.Source = models.SourceEnsembleFallback
	routed.Fallback = true

	f := New(zerolog.Nop())
	decision := f.Fuse(routed, testSettings())

	assert.Equal(t, models.SourceEnsembleFallback, decision.Source)
	assert.Len(t, decision.Components, 3)
}

func TestDecisionLogAppendsInOrder(t *testing.T) {
	f := New(zerolog.Nop())
	first := f.Fuse(ensembleRouted(), testSettings())
	second := f.Fuse(modelRouted(), testSettings())

	log := f.Decisions()
	require.Len(t, log, 2)
	assert.Equal(t, first.ID, log[0].ID)
	assert.Equal(t, second.ID, log[1].ID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestDecisionsReturnsACopy(t *testing.T) {
	f := New(zerolog.Nop())
	f.Fuse(ensembleRouted(), testSettings())

	log := f.Decisions()
	log[0].Symbol = "mutated"

	assert.Equal(t, "BTCUSDT", f.Decisions()[0].Symbol)
}

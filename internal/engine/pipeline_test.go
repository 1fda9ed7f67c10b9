package engine

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepilot/internal/config"
	"tradepilot/internal/ensemble"
	"tradepilot/internal/errors"
	"tradepilot/internal/fusion"
	"tradepilot/internal/market"
	"tradepilot/internal/models"
	"tradepilot/internal/router"
	"tradepilot/internal/store"
	"tradepilot/internal/strategy"
	"tradepilot/internal/stream"
	"tradepilot/internal/trading"
)

type pipelineHarness struct {
	pipeline *Pipeline
	ledger   *store.MemoryLedger
	trader   *trading.Engine
	fuser    *fusion.Fuser
	hub      *stream.Hub
}

func newHarness(t *testing.T, predictor router.Predictor, autoTrade bool) *pipelineHarness {
	t.Helper()

	cfg := config.Default()
	cfg.Engine.AutoTrade = autoTrade
	cfg.Engine.OrderQuantity = 0.5
	repo := config.NewRepository(cfg)

	logger := zerolog.Nop()
	ledger := store.NewMemoryLedger()
	book := market.NewBook(cfg.Engine.MaxCandleHistory)
	ens := ensemble.New(strategy.DefaultRegistry(), logger)
	rt := router.New(ens, predictor, logger)
	fuser := fusion.New(logger)
	trader := trading.NewEngine(repo, ledger, cfg.Execution.StartingEquity, logger)
	hub := stream.NewHub()

	pipeline := NewPipeline(PipelineConfig{
		CycleInterval: time.Hour, // tests drive cycles explicitly
		AutoTrade:     autoTrade,
		OrderQuantity: cfg.Engine.OrderQuantity,
	}, book, repo, rt, fuser, trader, ledger, hub, logger)

	t.Cleanup(pipeline.Stop)
	t.Cleanup(hub.Stop)

	return &pipelineHarness{pipeline: pipeline, ledger: ledger, trader: trader, fuser: fuser, hub: hub}
}

func seededCandles(n int) []models.Candle {
	candles := make([]models.Candle, n)
	price := 100.0
	for i := range candles {
		candles[i] = models.Candle{
			OpenTime: time.Unix(int64(i)*300, 0),
			Open:     price, High: price + 2, Low: price - 1, Close: price + 1, Volume: 10,
		}
		price++
	}
	return candles
}

func buyPredictor(conf float64) router.Predictor {
	return router.PredictorFunc(func(ctx context.Context, candles []models.Candle) (models.Prediction, error) {
		return models.Prediction{Direction: models.DirectionBuy, Confidence: conf, ModelName: "stub"}, nil
	})
}

func TestEvaluateProducesAndPersistsDecision(t *testing.T) {
	h := newHarness(t, nil, false)
	h.pipeline.Ingest("BTCUSDT", models.Timeframe5m, seededCandles(50)...)

	decision, err := h.pipeline.Evaluate(context.Background(), "BTCUSDT", models.Timeframe5m)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", decision.Symbol)
	assert.Equal(t, models.Timeframe5m, decision.Timeframe)
	assert.NotEmpty(t, decision.ID)
	assert.NotEmpty(t, decision.Rationale)

	persisted, err := h.ledger.Decisions(context.Background(), store.DecisionFilter{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, decision.ID, persisted[0].ID)
}

func TestSubmittedCyclesRunInOrder(t *testing.T) {
	h := newHarness(t, nil, false)
	h.pipeline.Ingest("BTCUSDT", models.Timeframe5m, seededCandles(50)...)

	const cycles = 5
	for i := 0; i < cycles; i++ {
		h.pipeline.Submit("BTCUSDT", models.Timeframe5m)
	}

	require.Eventually(t, func() bool {
		return len(h.fuser.Decisions()) == cycles
	}, 2*time.Second, 10*time.Millisecond)

	decisions := h.fuser.Decisions()
	for i := 1; i < len(decisions); i++ {
		assert.False(t, decisions[i].Timestamp.Before(decisions[i-1].Timestamp))
	}

	h.pipeline.Stop()
}

func TestSubmitAfterStopIsDropped(t *testing.T) {
	h := newHarness(t, nil, false)
	h.pipeline.Ingest("BTCUSDT", models.Timeframe5m, seededCandles(50)...)

	h.pipeline.Stop()

	// A stopped pipeline must not revive workers or run cycles.
	h.pipeline.Submit("BTCUSDT", models.Timeframe5m)
	require.NoError(t, h.pipeline.SetTimeframe("BTCUSDT", models.Timeframe1h))
	h.pipeline.Start(context.Background(), []string{"BTCUSDT"})

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, h.fuser.Decisions())

	persisted, err := h.ledger.Decisions(context.Background(), store.DecisionFilter{})
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestEvaluateWithoutCandlesFails(t *testing.T) {
	h := newHarness(t, nil, false)

	_, err := h.pipeline.Evaluate(context.Background(), "BTCUSDT", models.Timeframe5m)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInsufficientData)
}

func TestSetTimeframeCancelsInFlightCycle(t *testing.T) {
	entered := make(chan struct{})
	predictor := router.PredictorFunc(func(ctx context.Context, candles []models.Candle) (models.Prediction, error) {
		close(entered)
		<-ctx.Done()
		return models.Prediction{}, ctx.Err()
	})
	h := newHarness(t, predictor, false)
	h.pipeline.Ingest("BTCUSDT", models.Timeframe4h, seededCandles(50)...)
	h.pipeline.Ingest("BTCUSDT", models.Timeframe5m, seededCandles(50)...)

	h.pipeline.Submit("BTCUSDT", models.Timeframe4h)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("predictor was never called")
	}

	// Switching timeframes cancels the in-flight model cycle; the cancelled
	// cycle must commit nothing.
	require.NoError(t, h.pipeline.SetTimeframe("BTCUSDT", models.Timeframe5m))

	require.Eventually(t, func() bool {
		return len(h.fuser.Decisions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	decisions := h.fuser.Decisions()
	require.Len(t, decisions, 1)
	assert.Equal(t, models.Timeframe5m, decisions[0].Timeframe)

	persisted, err := h.ledger.Decisions(context.Background(), store.DecisionFilter{})
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, models.Timeframe5m, persisted[0].Timeframe)

	h.pipeline.Stop()
}

func TestAutoTradeExecutesActionableDecision(t *testing.T) {
	h := newHarness(t, buyPredictor(0.8), true)
	h.pipeline.Ingest("BTCUSDT", models.Timeframe4h, seededCandles(50)...)

	decision, err := h.pipeline.Evaluate(context.Background(), "BTCUSDT", models.Timeframe4h)
	require.NoError(t, err)
	require.True(t, decision.IsActionable())

	fills, err := h.ledger.Fills(context.Background(), "BTCUSDT", time.Time{})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, decision.ID, fills[0].DecisionID)
	assert.InDelta(t, 0.5, fills[0].Quantity, 1e-9)

	pos := h.trader.Position("BTCUSDT")
	require.NotNil(t, pos)
	assert.Equal(t, models.OrderSideBuy, pos.Side)
}

func TestAutoTradeRetriesRetryablePersistenceFailure(t *testing.T) {
	h := newHarness(t, buyPredictor(0.8), true)
	h.pipeline.Ingest("BTCUSDT", models.Timeframe4h, seededCandles(50)...)

	// The decision save consumes the first injected failure (logged, not
	// fatal); the second fails the fill write once so the retry has to
	// recover.
	h.ledger.FailNextWrites(2)

	decision, err := h.pipeline.Evaluate(context.Background(), "BTCUSDT", models.Timeframe4h)
	require.NoError(t, err)
	require.True(t, decision.IsActionable())

	fills, err := h.ledger.Fills(context.Background(), "BTCUSDT", time.Time{})
	require.NoError(t, err)
	assert.Len(t, fills, 1)
}

func TestHoldDecisionNeverTrades(t *testing.T) {
	h := newHarness(t, nil, true)
	// Too little history: every strategy holds.
	h.pipeline.Ingest("BTCUSDT", models.Timeframe5m, seededCandles(5)...)

	decision, err := h.pipeline.Evaluate(context.Background(), "BTCUSDT", models.Timeframe5m)
	require.NoError(t, err)
	require.Equal(t, models.DirectionHold, decision.Action)

	fills, err := h.ledger.Fills(context.Background(), "BTCUSDT", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, fills)
	assert.Nil(t, h.trader.Position("BTCUSDT"))
}

func TestIngestDeduplicatesAndUpdatesMark(t *testing.T) {
	h := newHarness(t, nil, false)
	candles := seededCandles(30)

	h.pipeline.Ingest("BTCUSDT", models.Timeframe5m, candles...)
	h.pipeline.Ingest("BTCUSDT", models.Timeframe5m, candles...) // duplicate feed

	decision, err := h.pipeline.Evaluate(context.Background(), "BTCUSDT", models.Timeframe5m)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", decision.Symbol)
}

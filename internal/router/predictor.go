package router

import (
	"context"

	"tradepilot/internal/models"
)

// StaticPredictor is a deterministic stand-in for a learned model: it votes
// with the sign of the close-to-close change over its window. Real models
// plug in behind the Predictor interface.
type StaticPredictor struct {
	ModelName  string
	Window     int
	Confidence float64
}

// NewStaticPredictor creates a predictor with the given window and fixed
// confidence for non-hold votes.
func NewStaticPredictor(window int, confidence float64) *StaticPredictor {
	return &StaticPredictor{
		ModelName:  "static",
		Window:     window,
		Confidence: confidence,
	}
}

// Predict implements Predictor.
func (p *StaticPredictor) Predict(ctx context.Context, candles []models.Candle) (models.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return models.Prediction{}, err
	}

	window := p.Window
	if window <= 0 {
		window = 20
	}
	if len(candles) < window {
		return models.Prediction{
			Direction:  models.DirectionHold,
			Confidence: 0,
			ModelName:  p.ModelName,
		}, nil
	}

	first := candles[len(candles)-window].Close
	last := candles[len(candles)-1].Close

	direction := models.DirectionHold
	switch {
	case last > first:
		direction = models.DirectionBuy
	case last < first:
		direction = models.DirectionSell
	}

	confidence := p.Confidence
	if direction == models.DirectionHold {
		confidence = 0
	}

	return models.Prediction{
		Direction:  direction,
		Confidence: confidence,
		ModelName:  p.ModelName,
	}, nil
}

// PredictorFunc adapts a plain function to the Predictor interface.
type PredictorFunc func(ctx context.Context, candles []models.Candle) (models.Prediction, error)

// Predict implements Predictor.
func (f PredictorFunc) Predict(ctx context.Context, candles []models.Candle) (models.Prediction, error) {
	return f(ctx, candles)
}

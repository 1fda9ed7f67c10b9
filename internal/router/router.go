// Package router selects, per timeframe, whether a decision comes from the
// learned-model predictor or the strategy ensemble.
package router

import (
	"context"

	"github.com/rs/zerolog"

	"tradepilot/internal/config"
	"tradepilot/internal/ensemble"
	"tradepilot/internal/errors"
	"tradepilot/internal/logging"
	"tradepilot/internal/models"
	"tradepilot/internal/resilience"
)

// Predictor is the opaque learned-model interface. It may be slow, fail, or
// return out-of-range confidence; the router treats all three as
// recoverable.
type Predictor interface {
	Predict(ctx context.Context, candles []models.Candle) (models.Prediction, error)
}

// RoutedSignal is the single signal handed to the fusion engine, normalized
// across both sources.
type RoutedSignal struct {
	Symbol     string
	Timeframe  models.Timeframe
	Source     models.DecisionSource
	Direction  models.Direction
	Confidence float64
	Reason     string

	// Ensemble carries the vote breakdown when the ensemble decided
	// (short-term path or fallback).
	Ensemble *models.EnsembleSignal
	// Model carries the prediction when the model decided.
	Model *models.Prediction
	// Fallback marks a long-term cycle that fell back to the ensemble.
	Fallback bool
}

// Router routes evaluation cycles to their decision source by timeframe
// class: short-term to the strategy ensemble, long-term to the model with
// ensemble fallback.
type Router struct {
	ensemble  *ensemble.Ensemble
	predictor Predictor
	breaker   *resilience.CircuitBreaker
	logger    zerolog.Logger
}

// New creates a router. predictor may be nil, in which case the long-term
// path always falls back to the ensemble.
func New(ens *ensemble.Ensemble, predictor Predictor, logger zerolog.Logger) *Router {
	return &Router{
		ensemble:  ens,
		predictor: predictor,
		breaker:   resilience.NewCircuitBreaker("predictor", resilience.DefaultCircuitBreakerConfig()),
		logger:    logger,
	}
}

// Route produces the routed signal for one evaluation cycle. It checks for
// cancellation before the model call so a superseded cycle commits nothing.
func (r *Router) Route(ctx context.Context, symbol string, timeframe models.Timeframe, candles []models.Candle, settings config.Settings) (RoutedSignal, error) {
	if err := ctx.Err(); err != nil {
		return RoutedSignal{}, errors.ErrCycleCancelled
	}

	if timeframe.Class() == models.LongTerm && r.predictor != nil {
		signal, err := r.routeModel(ctx, symbol, timeframe, candles, settings)
		if err == nil {
			return signal, nil
		}
		if errors.Is(err, errors.ErrCycleCancelled) || ctx.Err() != nil {
			return RoutedSignal{}, errors.ErrCycleCancelled
		}
		logging.LogFallback(r.logger, symbol, string(timeframe), predictorName(err), err)
		return r.routeEnsemble(symbol, timeframe, candles, settings, true), nil
	}

	return r.routeEnsemble(symbol, timeframe, candles, settings, false), nil
}

// routeModel runs the predictor under the configured timeout and the
// circuit breaker. Out-of-band confidence is rejected like any other model
// failure.
func (r *Router) routeModel(ctx context.Context, symbol string, timeframe models.Timeframe, candles []models.Candle, settings config.Settings) (RoutedSignal, error) {
	tctx, cancel := context.WithTimeout(ctx, settings.ModelTimeout)
	defer cancel()

	var prediction models.Prediction
	err := r.breaker.Execute(tctx, func() error {
		p, perr := r.predictor.Predict(tctx, candles)
		if perr != nil {
			return perr
		}
		prediction = p
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return RoutedSignal{}, errors.ErrCycleCancelled
		}
		return RoutedSignal{}, errors.NewPredictionError(predictorLabel(prediction), string(timeframe), err)
	}

	if prediction.Direction != models.DirectionHold &&
		(prediction.Confidence < settings.ModelMinConf || prediction.Confidence > settings.ModelMaxConf) {
		return RoutedSignal{}, errors.NewPredictionError(predictorLabel(prediction), string(timeframe),
			errors.Wrapf(errors.ErrModelUnavailable, "confidence %.2f outside [%.2f, %.2f]",
				prediction.Confidence, settings.ModelMinConf, settings.ModelMaxConf))
	}

	return RoutedSignal{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Source:     models.SourceModel,
		Direction:  prediction.Direction,
		Confidence: prediction.Confidence,
		Reason:     "model " + predictorLabel(prediction) + " prediction",
		Model:      &prediction,
	}, nil
}

func (r *Router) routeEnsemble(symbol string, timeframe models.Timeframe, candles []models.Candle, settings config.Settings, fallback bool) RoutedSignal {
	signal := r.ensemble.Evaluate(candles, settings)

	source := models.SourceEnsemble
	if fallback {
		source = models.SourceEnsembleFallback
	}

	return RoutedSignal{
		Symbol:     symbol,
		Timeframe:  timeframe,
		Source:     source,
		Direction:  signal.Direction,
		Confidence: signal.Confidence,
		Reason:     signal.Reason,
		Ensemble:   &signal,
		Fallback:   fallback,
	}
}

// BreakerState exposes the predictor circuit state for status surfaces.
func (r *Router) BreakerState() resilience.CircuitState {
	return r.breaker.State()
}

func predictorLabel(p models.Prediction) string {
	if p.ModelName == "" {
		return "predictor"
	}
	return p.ModelName
}

func predictorName(err error) string {
	var pe *errors.PredictionError
	if errors.As(err, &pe) {
		return pe.Model
	}
	return "predictor"
}

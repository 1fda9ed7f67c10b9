// Package ensemble combines the enabled strategies' votes into one signal
// via weighted voting.
package ensemble

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tradepilot/internal/config"
	"tradepilot/internal/errors"
	"tradepilot/internal/models"
	"tradepilot/internal/strategy"
	"tradepilot/pkg/utils"
)

// Ensemble aggregates strategy votes. It is a pure function of the candle
// window and the settings snapshot: identical inputs produce identical
// signals.
type Ensemble struct {
	registry *strategy.Registry
	logger   zerolog.Logger
}

// New creates an ensemble over the given strategy registry.
func New(registry *strategy.Registry, logger zerolog.Logger) *Ensemble {
	return &Ensemble{
		registry: registry,
		logger:   logger,
	}
}

// Evaluate runs every enabled strategy and combines their votes.
//
// Score per strategy = confidence x weight x direction sign. The sum is
// normalized by the total weight of non-hold voters; the normalized score
// is compared against the buy/sell thresholds. A failing strategy is
// excluded from the vote for this cycle only and never aborts the others.
func (e *Ensemble) Evaluate(candles []models.Candle, settings config.Settings) models.EnsembleSignal {
	var (
		contributing []models.StrategySignal
		scoreSum     float64
		weightSum    float64
	)

	for _, cfg := range settings.Strategies {
		if !cfg.Enabled {
			continue
		}
		strat, ok := e.registry.Get(cfg.Name)
		if !ok {
			e.logger.Warn().Str("strategy", cfg.Name).Msg("Unknown strategy in settings, skipping")
			continue
		}

		signal, err := e.evaluateOne(strat, candles, cfg)
		if err != nil {
			e.logger.Warn().Err(err).Str("strategy", cfg.Name).Msg("Strategy excluded from this cycle")
			continue
		}
		signal.Confidence = utils.Clamp01(signal.Confidence)

		contributing = append(contributing, signal)
		if signal.Direction != models.DirectionHold {
			scoreSum += signal.Confidence * cfg.Weight * signal.Direction.Sign()
			weightSum += cfg.Weight
		}
	}

	now := time.Now()

	if weightSum == 0 {
		return models.EnsembleSignal{
			Direction:    models.DirectionHold,
			Confidence:   0,
			Contributing: contributing,
			Reason:       holdReason(contributing),
			Timestamp:    now,
		}
	}

	normalized := scoreSum / weightSum
	votes := enumerateVotes(contributing)

	if absFloat(normalized) <= settings.Epsilon {
		return models.EnsembleSignal{
			Direction:    models.DirectionHold,
			Confidence:   0,
			Contributing: contributing,
			Reason:       "votes cancel out; " + votes,
			Timestamp:    now,
		}
	}

	switch {
	case normalized > settings.BuyThreshold:
		return models.EnsembleSignal{
			Direction:    models.DirectionBuy,
			Confidence:   utils.Clamp(normalized, settings.MinConfidence, settings.MaxConfidence),
			Contributing: contributing,
			Reason:       fmt.Sprintf("weighted score %.2f above buy threshold %.2f; %s", normalized, settings.BuyThreshold, votes),
			Timestamp:    now,
		}
	case normalized < -settings.SellThreshold:
		return models.EnsembleSignal{
			Direction:    models.DirectionSell,
			Confidence:   utils.Clamp(-normalized, settings.MinConfidence, settings.MaxConfidence),
			Contributing: contributing,
			Reason:       fmt.Sprintf("weighted score %.2f below sell threshold -%.2f; %s", normalized, settings.SellThreshold, votes),
			Timestamp:    now,
		}
	}

	return models.EnsembleSignal{
		Direction:    models.DirectionHold,
		Confidence:   utils.Clamp01(absFloat(normalized)),
		Contributing: contributing,
		Reason:       fmt.Sprintf("weighted score %.2f below threshold; %s", normalized, votes),
		Timestamp:    now,
	}
}

// evaluateOne runs a single strategy with panic recovery so one broken
// implementation cannot abort the whole vote.
func (e *Ensemble) evaluateOne(strat strategy.Strategy, candles []models.Candle, cfg models.StrategyConfig) (signal models.StrategySignal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewStrategyError(cfg.Name, fmt.Errorf("panic: %v", r))
		}
	}()
	signal, err = strat.Evaluate(candles, cfg)
	if err != nil {
		return signal, errors.NewStrategyError(cfg.Name, err)
	}
	return signal, nil
}

// enumerateVotes lists every contributing signal so disagreement never
// collapses to a single label.
func enumerateVotes(signals []models.StrategySignal) string {
	parts := make([]string, 0, len(signals))
	for _, s := range signals {
		parts = append(parts, fmt.Sprintf("%s %s (%.2f)", s.StrategyName, s.Direction, s.Confidence))
	}
	return "votes: " + strings.Join(parts, ", ")
}

// holdReason explains an all-hold cycle, distinguishing a short candle
// window from a genuinely directionless market.
func holdReason(signals []models.StrategySignal) string {
	if len(signals) == 0 {
		return "no strategies contributed"
	}
	allShort := true
	for _, s := range signals {
		if !strings.Contains(s.Reason, "insufficient data") {
			allShort = false
			break
		}
	}
	if allShort {
		return "insufficient data: all strategies below lookback"
	}
	return "no directional signal; " + enumerateVotes(signals)
}

func absFloat(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

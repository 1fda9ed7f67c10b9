// Package fusion produces the canonical FinalDecision for each evaluation
// cycle and keeps the append-only decision log.
package fusion

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradepilot/internal/config"
	"tradepilot/internal/logging"
	"tradepilot/internal/models"
	"tradepilot/internal/router"
)

// Fuser merges the routed signal into one auditable FinalDecision. Exactly
// one decision is produced per evaluation cycle per (symbol, timeframe);
// decisions are immutable once created.
type Fuser struct {
	logger zerolog.Logger

	mu  sync.RWMutex
	log []models.FinalDecision
}

// New creates a fusion engine.
func New(logger zerolog.Logger) *Fuser {
	return &Fuser{logger: logger}
}

// Fuse builds the FinalDecision for a routed signal. The settings snapshot
// supplies strategy weights for the component breakdown.
func (f *Fuser) Fuse(routed router.RoutedSignal, settings config.Settings) models.FinalDecision {
	decision := models.FinalDecision{
		ID:         uuid.New().String(),
		Symbol:     routed.Symbol,
		Timeframe:  routed.Timeframe,
		Action:     routed.Direction,
		Confidence: routed.Confidence,
		Source:     routed.Source,
		Rationale:  fmt.Sprintf("%s: %s", routed.Source, routed.Reason),
		Components: buildComponents(routed, settings),
		Timestamp:  time.Now(),
	}

	f.mu.Lock()
	f.log = append(f.log, decision)
	f.mu.Unlock()

	logging.LogDecision(f.logger, decision.Symbol, string(decision.Timeframe),
		string(decision.Action), decision.Confidence, string(decision.Source), decision.Rationale)

	return decision
}

// Decisions returns a copy of the decision log, oldest first.
func (f *Fuser) Decisions() []models.FinalDecision {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]models.FinalDecision, len(f.log))
	copy(out, f.log)
	return out
}

// buildComponents records one entry per contributing source. Ensemble
// cycles list every strategy vote; model cycles list the model.
func buildComponents(routed router.RoutedSignal, settings config.Settings) []models.DecisionComponent {
	var components []models.DecisionComponent

	if routed.Model != nil {
		components = append(components, models.DecisionComponent{
			Source:     "model:" + routed.Model.ModelName,
			Vote:       routed.Model.Direction,
			Confidence: routed.Model.Confidence,
			Weight:     1,
			Score:      routed.Model.Confidence * routed.Model.Direction.Sign(),
		})
	}

	if routed.Ensemble != nil {
		weights := make(map[string]float64, len(settings.Strategies))
		for _, s := range settings.Strategies {
			weights[s.Name] = s.Weight
		}
		for _, vote := range routed.Ensemble.Contributing {
			w := weights[vote.StrategyName]
			components = append(components, models.DecisionComponent{
				Source:     "strategy:" + vote.StrategyName,
				Vote:       vote.Direction,
				Confidence: vote.Confidence,
				Weight:     w,
				Score:      vote.Confidence * w * vote.Direction.Sign(),
			})
		}
	}

	return components
}

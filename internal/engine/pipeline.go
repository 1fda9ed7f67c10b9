// Package engine wires strategies, ensemble, router, fusion, and execution
// into a per-symbol pipeline. All evaluation and execution for one symbol
// runs on a single worker goroutine, so Position and EquitySnapshot are
// never mutated concurrently.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradepilot/internal/config"
	"tradepilot/internal/errors"
	"tradepilot/internal/fusion"
	"tradepilot/internal/market"
	"tradepilot/internal/models"
	"tradepilot/internal/router"
	"tradepilot/internal/store"
	"tradepilot/internal/stream"
	"tradepilot/internal/trading"
	"tradepilot/pkg/utils"
)

// PipelineConfig holds pipeline wiring options.
type PipelineConfig struct {
	CycleInterval time.Duration
	AutoTrade     bool
	OrderQuantity float64
	QueueSize     int
}

// Pipeline owns the decision/execution sequence per symbol. Evaluation
// requests for a symbol are processed in submission order; a timeframe
// change cancels the in-flight evaluation for that symbol before the new
// one starts.
type Pipeline struct {
	cfg      PipelineConfig
	book     *market.Book
	settings config.Repository
	router   *router.Router
	fuser    *fusion.Fuser
	trader   *trading.Engine
	ledger   store.Ledger
	hub      *stream.Hub
	logger   zerolog.Logger

	mu         sync.Mutex
	workers    map[string]*worker
	timeframes map[string]models.Timeframe
	done       chan struct{}
	started    bool
	stopped    bool
	wg         sync.WaitGroup
}

type request struct {
	timeframe models.Timeframe
}

type worker struct {
	symbol   string
	requests chan request

	mu       sync.Mutex
	inflight context.CancelFunc
}

// NewPipeline creates a pipeline over the given collaborators.
func NewPipeline(cfg PipelineConfig, book *market.Book, settings config.Repository, rt *router.Router, fuser *fusion.Fuser, trader *trading.Engine, ledger store.Ledger, hub *stream.Hub, logger zerolog.Logger) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Pipeline{
		cfg:        cfg,
		book:       book,
		settings:   settings,
		router:     rt,
		fuser:      fuser,
		trader:     trader,
		ledger:     ledger,
		hub:        hub,
		logger:     logger,
		workers:    make(map[string]*worker),
		timeframes: make(map[string]models.Timeframe),
		done:       make(chan struct{}),
	}
}

// Ingest feeds candles into the series book. Ingestion runs on the caller's
// goroutine; workers only ever read immutable snapshots.
func (p *Pipeline) Ingest(symbol string, timeframe models.Timeframe, candles ...models.Candle) {
	series := p.book.Get(symbol, timeframe)
	series.Append(candles...)
	if last := series.LastClose(); last > 0 {
		p.trader.UpdateMark(symbol, last)
	}
}

// Start launches the scheduled re-evaluation loop. Each tick submits one
// evaluation per symbol on its active timeframe.
func (p *Pipeline) Start(ctx context.Context, symbols []string) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	for _, symbol := range symbols {
		if _, ok := p.timeframes[symbol]; !ok {
			p.timeframes[symbol] = models.Timeframe5m
		}
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.CycleInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case <-ticker.C:
				for _, symbol := range symbols {
					p.Submit(symbol, p.ActiveTimeframe(symbol))
				}
			}
		}
	}()
}

// Stop shuts the pipeline down and waits for the scheduler and all workers
// to exit. Submissions after Stop are dropped; no new worker is ever created
// once the pipeline has stopped.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.started = false
	close(p.done)
	workers := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()

	for _, w := range workers {
		w.cancelInflight()
	}
	p.wg.Wait()
}

// ActiveTimeframe returns the currently selected timeframe for a symbol.
func (p *Pipeline) ActiveTimeframe(symbol string) models.Timeframe {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tf, ok := p.timeframes[symbol]; ok {
		return tf
	}
	return models.Timeframe5m
}

// SetTimeframe switches a symbol's timeframe. The in-flight evaluation for
// that symbol is cancelled before the evaluation on the new timeframe is
// submitted, so a stale cycle never commits a decision or fill.
func (p *Pipeline) SetTimeframe(symbol string, timeframe models.Timeframe) error {
	if !timeframe.Valid() {
		return errors.Wrapf(errors.ErrConfigInvalid, "unknown timeframe %q", timeframe)
	}

	p.mu.Lock()
	p.timeframes[symbol] = timeframe
	p.mu.Unlock()

	w := p.workerFor(symbol)
	if w == nil {
		return nil
	}
	w.cancelInflight()
	p.Submit(symbol, timeframe)
	return nil
}

// Submit enqueues one evaluation cycle. Requests are processed in
// submission order per symbol. Submissions after Stop are dropped.
func (p *Pipeline) Submit(symbol string, timeframe models.Timeframe) {
	w := p.workerFor(symbol)
	if w == nil {
		return
	}
	select {
	case w.requests <- request{timeframe: timeframe}:
	default:
		p.logger.Warn().Str("symbol", symbol).Msg("Evaluation queue full, cycle skipped")
	}
}

// Evaluate runs one evaluation cycle synchronously, bypassing the queue.
// Used by the offline decide command.
func (p *Pipeline) Evaluate(ctx context.Context, symbol string, timeframe models.Timeframe) (models.FinalDecision, error) {
	return p.runCycle(ctx, symbol, timeframe)
}

// workerFor returns the worker goroutine owning a symbol, creating it on
// first use. Returns nil once the pipeline has stopped.
func (p *Pipeline) workerFor(symbol string) *worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return nil
	}
	if w, ok := p.workers[symbol]; ok {
		return w
	}
	w := &worker{
		symbol:   symbol,
		requests: make(chan request, p.cfg.QueueSize),
	}
	p.workers[symbol] = w

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.workerLoop(w)
	}()
	return w
}

func (p *Pipeline) workerLoop(w *worker) {
	for {
		var req request
		select {
		case <-p.done:
			return
		case req = <-w.requests:
		}
		select {
		case <-p.done:
			return
		default:
		}

		ctx, cancel := context.WithCancel(context.Background())
		w.setInflight(cancel)

		if _, err := p.runCycle(ctx, w.symbol, req.timeframe); err != nil && !errors.Is(err, errors.ErrCycleCancelled) {
			p.logger.Error().Err(err).Str("symbol", w.symbol).Str("timeframe", string(req.timeframe)).Msg("Evaluation cycle failed")
		}

		w.clearInflight()
		cancel()
	}
}

// runCycle is the decision/execution sequence: settings snapshot, strategy
// evaluation via the router, fusion, persistence, publication, and optional
// auto-execution. Cancellation is checked before fusing and before the
// fill, so a cancelled cycle applies no side effects.
func (p *Pipeline) runCycle(ctx context.Context, symbol string, timeframe models.Timeframe) (models.FinalDecision, error) {
	settings := p.settings.Snapshot()
	series := p.book.Get(symbol, timeframe)
	candles := series.Snapshot()
	if len(candles) == 0 {
		return models.FinalDecision{}, errors.Wrapf(errors.ErrInsufficientData, "no candles for %s %s", symbol, timeframe)
	}

	routed, err := p.router.Route(ctx, symbol, timeframe, candles, settings)
	if err != nil {
		return models.FinalDecision{}, err
	}

	if ctx.Err() != nil {
		return models.FinalDecision{}, errors.ErrCycleCancelled
	}

	decision := p.fuser.Fuse(routed, settings)

	if err := p.ledger.SaveDecision(ctx, decision); err != nil {
		// The in-memory decision log still holds the decision; losing the
		// persisted copy is logged but does not abort the cycle.
		p.logger.Warn().Err(err).Str("decision_id", decision.ID).Msg("Failed to persist decision")
	}

	p.hub.PublishDecision(decision)

	if p.cfg.AutoTrade && decision.IsActionable() {
		if err := p.executeDecision(ctx, decision, series.LastClose()); err != nil {
			p.logger.Warn().Err(err).Str("decision_id", decision.ID).Msg("Auto-trade rejected")
		}
	}

	return decision, nil
}

func (p *Pipeline) executeDecision(ctx context.Context, decision models.FinalDecision, referencePrice float64) error {
	if ctx.Err() != nil {
		return errors.ErrCycleCancelled
	}
	if referencePrice <= 0 {
		return errors.Wrap(errors.ErrUnknownSymbol, "no mark price for auto-trade")
	}

	var fill models.OrderFill
	err := utils.RetryIf(ctx, utils.DefaultRetryConfig(), func() error {
		var execErr error
		fill, execErr = p.trader.ExecuteDecision(ctx, decision, p.cfg.OrderQuantity, referencePrice)
		return execErr
	}, errors.IsRetryable)
	if err != nil {
		return err
	}

	p.logger.Info().
		Str("fill_id", fill.ID).
		Str("decision_id", decision.ID).
		Str("symbol", fill.Symbol).
		Str("side", string(fill.Side)).
		Float64("quantity", fill.Quantity).
		Float64("price", fill.Price).
		Msg("Auto-trade filled")
	p.hub.PublishEquity(p.trader.Snapshot(decision.Symbol))
	return nil
}

func (w *worker) setInflight(cancel context.CancelFunc) {
	w.mu.Lock()
	w.inflight = cancel
	w.mu.Unlock()
}

func (w *worker) clearInflight() {
	w.mu.Lock()
	w.inflight = nil
	w.mu.Unlock()
}

func (w *worker) cancelInflight() {
	w.mu.Lock()
	if w.inflight != nil {
		w.inflight()
	}
	w.mu.Unlock()
}

// Package worker drives the aggregate and resample engines per symbol and
// fans symbols out over a bounded pool. A failed symbol is always surfaced by
// name; other symbols keep running.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appconfig "candleflow/config"
	"candleflow/logger"
	"candleflow/models"
	"candleflow/processor"
	"candleflow/session"
)

// Runner owns the per-symbol pipeline drivers.
type Runner struct {
	config  *appconfig.Config
	symbols *appconfig.Symbols
	log     *logger.Log

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRunner builds a runner over the loaded configuration.
func NewRunner(cfg *appconfig.Config, symbols *appconfig.Symbols) *Runner {
	return &Runner{
		config:  cfg,
		symbols: symbols,
		log:     logger.GetLogger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// symbolLock returns the exclusive lock guarding steps that touch multiple
// timeframes of the same symbol at once.
func (r *Runner) symbolLock(symbol string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		r.locks[symbol] = l
	}
	return l
}

// rootTimeframe returns the base timeframe the aggregate engine feeds.
func (r *Runner) rootTimeframe() (appconfig.TimeframeConfig, error) {
	for _, tf := range r.config.Timeframes {
		if tf.Root {
			return tf, nil
		}
	}
	return appconfig.TimeframeConfig{}, fmt.Errorf("no root timeframe configured")
}

// AggregateSymbol runs the aggregate engine over the ordered dates for one
// symbol. Any engine error comes back wrapped with the symbol identity.
func (r *Runner) AggregateSymbol(ctx context.Context, symbol string, dates []int32) error {
	root, err := r.rootTimeframe()
	if err != nil {
		return &models.SymbolError{Symbol: symbol, Err: err}
	}
	agg := processor.NewAggregator(r.config, symbol, root.Name)
	log := r.log.WithComponent("worker").WithFields(logger.Fields{"symbol": symbol})

	processed := 0
	for _, date := range dates {
		outcome, err := agg.RunDate(ctx, date)
		if err != nil {
			return &models.SymbolError{Symbol: symbol, Err: err}
		}
		if outcome == processor.OutcomeProcessed {
			processed++
		}
	}
	log.WithFields(logger.Fields{"dates": len(dates), "processed": processed}).Info("aggregate pass complete")
	return nil
}

// ResampleSymbol walks the timeframe dependency graph in topological order
// for one symbol, resampling each derived timeframe from its source. Root
// timeframes have no upstream and are skipped.
func (r *Runner) ResampleSymbol(ctx context.Context, symbol string) error {
	sym, ok := r.symbols.Get(symbol)
	if !ok {
		return &models.SymbolError{Symbol: symbol, Err: fmt.Errorf("symbol not configured")}
	}
	resolver, err := session.NewResolver(sym, r.config.Server.Timezone)
	if err != nil {
		return &models.SymbolError{Symbol: symbol, Err: err}
	}
	order, err := r.config.TimeframeOrder()
	if err != nil {
		return &models.SymbolError{Symbol: symbol, Err: err}
	}

	// The whole chain holds the symbol lock: a derived timeframe must never
	// run concurrently with its own source for the same symbol.
	lock := r.symbolLock(symbol)
	lock.Lock()
	defer lock.Unlock()

	log := r.log.WithComponent("worker").WithFields(logger.Fields{"symbol": symbol})
	for _, tf := range order {
		if tf.Root {
			continue
		}
		rs, err := processor.NewResampler(r.config, resolver, symbol, tf)
		if err != nil {
			return &models.SymbolError{Symbol: symbol, Err: err}
		}
		outcome, err := rs.Run(ctx)
		if err != nil {
			return &models.SymbolError{Symbol: symbol, Err: err}
		}
		log.WithFields(logger.Fields{"timeframe": tf.Name, "outcome": outcome.String()}).Debug("timeframe resampled")
	}
	log.Info("resample pass complete")
	return nil
}

// runPool fans task out over the symbols with at most MaxWorkers running at
// once and returns every per-symbol failure.
func (r *Runner) runPool(ctx context.Context, symbols []string, task func(context.Context, string) error) []error {
	numWorkers := r.config.Engine.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []error

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for symbol := range jobs {
				if err := task(ctx, symbol); err != nil {
					r.log.WithComponent("worker").WithError(err).WithFields(logger.Fields{
						"symbol": symbol,
					}).Error("symbol failed")
					mu.Lock()
					failures = append(failures, err)
					mu.Unlock()
				}
			}
		}()
	}

	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			// A symbol never dispatched still counts as a failure; a cancelled
			// run must not look like a clean one.
			mu.Lock()
			failures = append(failures, &models.SymbolError{Symbol: symbol, Err: err})
			mu.Unlock()
			continue
		}
		select {
		case <-ctx.Done():
			mu.Lock()
			failures = append(failures, &models.SymbolError{Symbol: symbol, Err: ctx.Err()})
			mu.Unlock()
		case jobs <- symbol:
		}
	}
	close(jobs)
	wg.Wait()
	return failures
}

// Run executes the full pipeline: the aggregate pass drains completely before
// the resample pass begins. The returned error joins every failed symbol; a
// nil return means every symbol committed cleanly.
func (r *Runner) Run(ctx context.Context, symbols []string, dates []int32) error {
	log := r.log.WithComponent("worker")

	log.WithFields(logger.Fields{"symbols": len(symbols), "dates": len(dates)}).Info("starting aggregate pass")
	failures := r.runPool(ctx, symbols, func(ctx context.Context, symbol string) error {
		return r.AggregateSymbol(ctx, symbol, dates)
	})

	log.WithFields(logger.Fields{"symbols": len(symbols)}).Info("starting resample pass")
	failures = append(failures, r.runPool(ctx, symbols, r.ResampleSymbol)...)

	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	return nil
}

// DateRange expands [from, to] into ordered YYYYMMDD integers.
func DateRange(from, to time.Time) []int32 {
	var dates []int32
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		y, m, day := d.Date()
		dates = append(dates, int32(y*10000+int(m)*100+day))
	}
	return dates
}

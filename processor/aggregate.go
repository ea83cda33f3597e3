package processor

import (
	"context"
	"time"

	appconfig "candleflow/config"
	"candleflow/logger"
	"candleflow/models"
	"candleflow/reader"
	"candleflow/writer"
)

// Outcome distinguishes a run that moved data from one that had nothing to
// do. Errors carry only genuine fault conditions.
type Outcome int

const (
	OutcomeNothingToDo Outcome = iota
	OutcomeProcessed
)

func (o Outcome) String() string {
	if o == OutcomeProcessed {
		return "processed"
	}
	return "nothing_to_do"
}

// Aggregator incrementally appends each calendar day's rows from the
// transform stage onto one symbol's root-timeframe master segment, resuming
// from the progress index and never re-appending a committed day.
type Aggregator struct {
	config *appconfig.Config
	source reader.DaySource
	symbol string
	root   string
	log    *logger.Log
}

// NewAggregator builds an aggregator for one symbol writing to the root
// timeframe named by rootTimeframe.
func NewAggregator(cfg *appconfig.Config, symbol, rootTimeframe string) *Aggregator {
	return &Aggregator{
		config: cfg,
		source: reader.DaySource{
			ArchiveDir: cfg.Storage.ArchiveDir,
			LiveDir:    cfg.Storage.LiveDir,
		},
		symbol: symbol,
		root:   rootTimeframe,
		log:    logger.GetLogger(),
	}
}

// MasterPath returns the destination segment path.
func (a *Aggregator) MasterPath() string {
	return models.SegmentPath(a.config.Storage.MasterDir, a.symbol, a.root)
}

// RunDate appends the rows of one calendar day (YYYYMMDD). Zero-volume rows
// are dropped. Everything up to the atomic index write is safely repeatable:
// the destination is rolled back to the committed output offset before any
// byte is written.
func (a *Aggregator) RunDate(ctx context.Context, date int32) (Outcome, error) {
	log := a.log.WithComponent("aggregator").WithFields(logger.Fields{
		"symbol": a.symbol,
		"date":   date,
	})

	srcPath, ok := a.source.Resolve(a.symbol, date)
	if !ok {
		log.Debug("no source data for date")
		return OutcomeNothingToDo, nil
	}

	dstPath := a.MasterPath()
	ix := writer.OpenIndex(writer.IndexPath(dstPath), a.config.Storage.Fsync)
	progress, err := ix.Read()
	if err != nil {
		return OutcomeNothingToDo, err
	}

	if date < progress.LastDate {
		log.WithFields(logger.Fields{"last_date": progress.LastDate}).Debug("date already committed")
		return OutcomeNothingToDo, nil
	}
	inputOffset := progress.InputOffset
	if date > progress.LastDate {
		// New day: a partial read position from a previous day must not
		// carry into this day's file.
		inputOffset = 0
	}

	src, err := reader.OpenSegment(srcPath)
	if err != nil {
		return OutcomeNothingToDo, err
	}
	defer src.Close()
	if err := src.Seek(int64(inputOffset)); err != nil {
		return OutcomeNothingToDo, err
	}

	dst, err := writer.OpenSegment(dstPath)
	if err != nil {
		return OutcomeNothingToDo, err
	}
	defer dst.Close()

	// Roll back any partial write from a prior crash.
	if err := dst.Truncate(int64(progress.OutputOffset)); err != nil {
		return OutcomeNothingToDo, err
	}

	start := time.Now()
	outPos := int64(progress.OutputOffset)
	written := 0
	for !src.EOF() {
		if err := ctx.Err(); err != nil {
			return OutcomeNothingToDo, &models.TransactionError{Op: "aggregate", Err: err}
		}
		rows, err := src.ReadBatch(a.config.Engine.BatchSize)
		if err != nil {
			return OutcomeNothingToDo, err
		}
		if len(rows) == 0 {
			break
		}
		kept := rows[:0]
		for _, r := range rows {
			if r.Volume > 0 {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			continue
		}
		outPos, err = dst.WriteBatch(kept, outPos)
		if err != nil {
			return OutcomeNothingToDo, err
		}
		written += len(kept)
	}

	newInput := uint64(src.Tell())
	newOutput := uint64(outPos)
	if newInput == progress.InputOffset && newOutput == progress.OutputOffset && date == progress.LastDate {
		log.Debug("source fully consumed, index unchanged")
		return OutcomeNothingToDo, nil
	}

	if err := dst.Flush(a.config.Storage.Fsync); err != nil {
		return OutcomeNothingToDo, err
	}
	if err := ix.Write(writer.Progress{
		LastDate:     date,
		InputOffset:  newInput,
		OutputOffset: newOutput,
	}); err != nil {
		return OutcomeNothingToDo, err
	}

	logger.LogPerformanceEntry(log, "aggregator", "run_date", time.Since(start), logger.Fields{
		"rows_written":  written,
		"input_offset":  newInput,
		"output_offset": newOutput,
	})
	return OutcomeProcessed, nil
}

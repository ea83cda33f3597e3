package processor

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	appconfig "candleflow/config"
	"candleflow/logger"
	"candleflow/models"
	"candleflow/reader"
	"candleflow/session"
	"candleflow/writer"
)

// bar is one output record plus the byte offset of the first source row that
// contributed to it. The offset is what makes the withheld-bar protocol
// resumable: committing it as the input offset makes the next run re-read
// exactly the rows of the provisional bucket.
type bar struct {
	rec      models.Record
	srcStart int64
}

// Resampler converts one source timeframe's segment into a higher
// timeframe's segment for one symbol, batch by batch, always holding back the
// most recent bar as provisional so it can be overwritten rather than
// duplicated on the next run.
type Resampler struct {
	config   *appconfig.Config
	symbol   string
	tf       appconfig.TimeframeConfig
	resolver *session.Resolver
	srcPath  string
	dstPath  string
	steps    []step
	runID    string
	log      *logger.Log
}

// NewResampler builds a resampler producing tf from its configured source
// segment.
func NewResampler(cfg *appconfig.Config, resolver *session.Resolver, symbol string, tf appconfig.TimeframeConfig) (*Resampler, error) {
	steps, err := parseSteps(tf.Steps)
	if err != nil {
		return nil, &models.ResampleLogicError{Reason: err.Error()}
	}
	return &Resampler{
		config:   cfg,
		symbol:   symbol,
		tf:       tf,
		resolver: resolver,
		srcPath:  models.SegmentPath(cfg.Storage.MasterDir, symbol, tf.Source),
		dstPath:  models.SegmentPath(cfg.Storage.MasterDir, symbol, tf.Name),
		steps:    steps,
		runID:    uuid.New().String(),
		log:      logger.GetLogger(),
	}, nil
}

// Run drives the engine to end of stream: read, group by origin, aggregate,
// post-process, commit; the provisional last bar is written past the
// committed output offset after every commit.
func (r *Resampler) Run(ctx context.Context) (Outcome, error) {
	log := r.log.WithComponent("resampler").WithFields(logger.Fields{
		"symbol":    r.symbol,
		"timeframe": r.tf.Name,
		"run_id":    r.runID,
	})

	if _, err := os.Stat(r.srcPath); os.IsNotExist(err) {
		log.Debug("source segment missing, nothing to resample")
		return OutcomeNothingToDo, nil
	}

	ix := writer.OpenIndex(writer.IndexPath(r.dstPath), r.config.Storage.Fsync)
	progress, err := ix.Read()
	if err != nil {
		return OutcomeNothingToDo, err
	}

	src, err := reader.OpenSegment(r.srcPath)
	if err != nil {
		return OutcomeNothingToDo, err
	}
	defer src.Close()
	if err := src.Seek(int64(progress.InputOffset)); err != nil {
		return OutcomeNothingToDo, err
	}

	dst, err := writer.OpenSegment(r.dstPath)
	if err != nil {
		return OutcomeNothingToDo, err
	}
	defer dst.Close()

	start := time.Now()
	input := int64(progress.InputOffset)
	committed := int64(progress.OutputOffset)
	outcome := OutcomeNothingToDo
	batches := 0
	barsOut := 0

	for {
		if err := ctx.Err(); err != nil {
			return outcome, &models.TransactionError{Op: "resample", Err: err}
		}

		rows, base, err := r.readSpan(src)
		if err != nil {
			return outcome, err
		}
		if len(rows) == 0 {
			break
		}

		bars, err := r.aggregateRows(rows, base)
		if err != nil {
			return outcome, err
		}
		if len(bars) == 0 {
			return outcome, &models.EmptyBatchError{
				Symbol:      r.symbol,
				Timeframe:   r.tf.Name,
				InputOffset: uint64(base),
			}
		}
		bars, err = applySteps(bars, r.steps)
		if err != nil {
			return outcome, err
		}
		if len(bars) == 0 {
			return outcome, &models.ResampleLogicError{Reason: "post steps removed every bar"}
		}

		last := bars[len(bars)-1]
		newInput := last.srcStart
		newCommitted := committed + int64(len(bars)-1)*models.RecordSize

		// Roll back any provisional or partially written tail, commit all
		// bars except the withheld one, then persist the index. The index
		// write is the commit point.
		if err := dst.Truncate(committed); err != nil {
			return outcome, err
		}
		if len(bars) > 1 {
			if _, err := dst.WriteBatch(records(bars[:len(bars)-1]), committed); err != nil {
				return outcome, err
			}
		}
		if err := dst.Flush(r.config.Storage.Fsync); err != nil {
			return outcome, err
		}
		if err := ix.Write(writer.Progress{
			LastDate:     progress.LastDate,
			InputOffset:  uint64(newInput),
			OutputOffset: uint64(newCommitted),
		}); err != nil {
			return outcome, err
		}
		// The withheld bar stays visible to readers as the current bar but
		// sits past the committed offset, so the next iteration overwrites
		// it instead of duplicating it.
		if _, err := dst.WriteBatch([]models.Record{last.rec}, newCommitted); err != nil {
			return outcome, err
		}

		logger.IncrementResampledBars(len(bars))
		outcome = OutcomeProcessed
		batches++
		barsOut += len(bars)
		committed = newCommitted

		if newInput == input {
			if src.EOF() {
				break
			}
			// More rows remain but the input offset did not move: the span's
			// last bucket started at the same row as before, which only
			// happens when bucket keys run backwards in the source.
			return outcome, &models.ResampleLogicError{
				Reason: "input offset stalled before end of stream",
			}
		}
		input = newInput
		if err := src.Seek(input); err != nil {
			return outcome, err
		}
	}

	logger.LogPerformanceEntry(log, "resampler", "run", time.Since(start), logger.Fields{
		"batches":       batches,
		"bars":          barsOut,
		"input_offset":  input,
		"output_offset": committed,
	})
	return outcome, nil
}

// readSpan reads at least one full batch from the source and keeps extending
// it until the rows cover at least two resample buckets or the source is
// exhausted. Without the extension a bucket wider than the batch size would
// stall the input offset forever.
func (r *Resampler) readSpan(src *reader.SegmentReader) ([]models.Record, int64, error) {
	base := src.Tell()
	var rows []models.Record
	var firstKey, lastKey int64
	for {
		batch, err := src.ReadBatch(r.config.Engine.BatchSize)
		if err != nil {
			return nil, base, err
		}
		if len(batch) == 0 {
			break
		}
		for _, row := range batch {
			key, err := r.bucketStart(row)
			if err != nil {
				return nil, base, err
			}
			if len(rows) == 0 {
				firstKey = key
			}
			lastKey = key
			rows = append(rows, row)
		}
		if src.EOF() || lastKey != firstKey {
			break
		}
	}
	return rows, base, nil
}

// bucketStart returns the window start for a row: its session origin plus a
// whole number of timeframe durations.
func (r *Resampler) bucketStart(row models.Record) (int64, error) {
	ts := row.Time()
	origin, err := r.resolver.Origin(ts, r.tf)
	if err != nil {
		return 0, err
	}
	durMs := r.tf.Duration.Milliseconds()
	rel := ts.UnixMilli() - origin.UnixMilli()
	return origin.UnixMilli() + floorDiv(rel, durMs)*durMs, nil
}

// aggregateRows tags rows with their origin-anchored bucket, reduces each
// bucket to an OHLCV bar, drops no-trade buckets and returns the bars in
// timestamp order.
func (r *Resampler) aggregateRows(rows []models.Record, base int64) ([]bar, error) {
	var bars []bar
	idx := make(map[int64]int, 16)
	for i, row := range rows {
		key, err := r.bucketStart(row)
		if err != nil {
			return nil, err
		}
		srcStart := base + int64(i)*models.RecordSize
		if j, ok := idx[key]; ok {
			b := &bars[j]
			if row.High > b.rec.High {
				b.rec.High = row.High
			}
			if row.Low < b.rec.Low {
				b.rec.Low = row.Low
			}
			b.rec.Close = row.Close
			b.rec.Volume += row.Volume
			continue
		}
		idx[key] = len(bars)
		bars = append(bars, bar{
			rec: models.Record{
				Timestamp: uint64(key),
				Open:      row.Open,
				High:      row.High,
				Low:       row.Low,
				Close:     row.Close,
				Volume:    row.Volume,
			},
			srcStart: srcStart,
		})
	}

	kept := bars[:0]
	for _, b := range bars {
		if b.rec.Volume > 0 {
			kept = append(kept, b)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].rec.Timestamp < kept[j].rec.Timestamp })
	return kept, nil
}

func records(bars []bar) []models.Record {
	recs := make([]models.Record, len(bars))
	for i, b := range bars {
		recs[i] = b.rec
	}
	return recs
}

// floorDiv divides rounding toward negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

package processor

import (
	"fmt"
	"time"

	appconfig "candleflow/config"
	"candleflow/models"
)

// StepKind enumerates the closed set of post-processing steps a timeframe may
// configure. Unknown kinds are rejected at parse time, never silently
// ignored.
type StepKind int

const (
	// StepMerge folds groups of adjacent bars into one, for target
	// durations that are not a whole multiple of a resample window.
	StepMerge StepKind = iota
	// StepShift moves every bar's recorded timestamp by a fixed amount,
	// e.g. weekly-bar alignment.
	StepShift
)

type step struct {
	kind   StepKind
	count  int
	offset time.Duration
}

func parseSteps(cfgs []appconfig.StepConfig) ([]step, error) {
	steps := make([]step, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Kind {
		case "merge":
			if c.Count < 2 {
				return nil, fmt.Errorf("merge step: count %d is below 2", c.Count)
			}
			steps = append(steps, step{kind: StepMerge, count: c.Count})
		case "shift":
			steps = append(steps, step{kind: StepShift, offset: c.Offset})
		default:
			return nil, fmt.Errorf("unknown step kind '%s'", c.Kind)
		}
	}
	return steps, nil
}

// applySteps runs each configured step over the bars in order. Every step
// must preserve the carried source offset on the final surviving bar; losing
// it would break the withheld-bar resume protocol.
func applySteps(bars []bar, steps []step) ([]bar, error) {
	for _, st := range steps {
		var err error
		switch st.kind {
		case StepMerge:
			bars, err = mergeBars(bars, st.count)
		case StepShift:
			bars, err = shiftBars(bars, st.offset)
		default:
			err = &models.ResampleLogicError{Reason: fmt.Sprintf("unhandled step kind %d", st.kind)}
		}
		if err != nil {
			return nil, err
		}
		if len(bars) > 0 && bars[len(bars)-1].srcStart < 0 {
			return nil, &models.ResampleLogicError{Reason: "post step dropped the carried source offset"}
		}
	}
	return bars, nil
}

// mergeBars folds each run of count adjacent bars into one. A short trailing
// group still merges; it is provisional and will be rebuilt on the next run.
func mergeBars(bars []bar, count int) ([]bar, error) {
	if count < 2 {
		return nil, &models.ResampleLogicError{Reason: fmt.Sprintf("merge count %d", count)}
	}
	out := make([]bar, 0, (len(bars)+count-1)/count)
	for i := 0; i < len(bars); i += count {
		j := i + count
		if j > len(bars) {
			j = len(bars)
		}
		merged := bars[i]
		for _, b := range bars[i+1 : j] {
			if b.rec.High > merged.rec.High {
				merged.rec.High = b.rec.High
			}
			if b.rec.Low < merged.rec.Low {
				merged.rec.Low = b.rec.Low
			}
			merged.rec.Close = b.rec.Close
			merged.rec.Volume += b.rec.Volume
		}
		out = append(out, merged)
	}
	return out, nil
}

func shiftBars(bars []bar, offset time.Duration) ([]bar, error) {
	ms := offset.Milliseconds()
	for i := range bars {
		shifted := int64(bars[i].rec.Timestamp) + ms
		if shifted < 0 {
			return nil, &models.ResampleLogicError{Reason: "shift moved a bar before the epoch"}
		}
		bars[i].rec.Timestamp = uint64(shifted)
	}
	return bars, nil
}

package models

import (
	"fmt"
	"time"
)

// FormatError reports a binary buffer or file whose length is not aligned to
// the record size. It is fatal and never retried.
type FormatError struct {
	Path string
	Size int64
}

func (e *FormatError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("segment %s: size %d is not a multiple of %d", e.Path, e.Size, RecordSize)
	}
	return fmt.Sprintf("buffer size %d is not a multiple of %d", e.Size, RecordSize)
}

// ProcessingError reports input that cannot be consumed: an empty or
// unreadable source. Callers distinguish it from a missing file, which is a
// normal "nothing to do" outcome.
type ProcessingError struct {
	Path string
	Err  error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot process %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("cannot process %s", e.Path)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// IndexCorruptionError reports a progress index file of a size that matches
// neither the current nor the legacy layout. Operator intervention required.
type IndexCorruptionError struct {
	Path string
	Size int64
}

func (e *IndexCorruptionError) Error() string {
	return fmt.Sprintf("index %s: unexpected size %d", e.Path, e.Size)
}

// EmptyBatchError reports a resample batch that produced zero output bars
// from a non-empty input. Progress must not advance on such a batch.
type EmptyBatchError struct {
	Symbol      string
	Timeframe   string
	InputOffset uint64
}

func (e *EmptyBatchError) Error() string {
	return fmt.Sprintf("%s %s: batch at input offset %d produced no bars", e.Symbol, e.Timeframe, e.InputOffset)
}

// ResampleLogicError reports a violated internal invariant of the resample
// engine, such as a post-processing step losing the carried source offset.
type ResampleLogicError struct {
	Reason string
}

func (e *ResampleLogicError) Error() string {
	return "resample invariant violated: " + e.Reason
}

// TransactionError wraps an OS-level I/O failure inside a commit sequence.
// The current attempt is lost but the symbol is safe to retry from its last
// committed index.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed during %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// SessionError reports a timestamp that resolves to no configured trading
// session. It indicates a configuration gap, never a runtime condition to
// tolerate.
type SessionError struct {
	Symbol    string
	Timestamp time.Time
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s: no session contains %s", e.Symbol, e.Timestamp.Format(time.RFC3339))
}

// SymbolError attaches the owning symbol to any engine error so the pool
// caller can report and retry symbols independently.
type SymbolError struct {
	Symbol string
	Err    error
}

func (e *SymbolError) Error() string {
	return fmt.Sprintf("symbol %s: %v", e.Symbol, e.Err)
}

func (e *SymbolError) Unwrap() error { return e.Err }

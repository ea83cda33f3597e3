package writer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"candleflow/logger"
	"candleflow/models"
)

// SegmentWriter appends records to one binary segment file. It supports
// writing at an explicit byte offset and shrinking the file, which together
// form the rollback half of the crash-recovery protocol: truncate to the last
// committed offset, then rewrite.
type SegmentWriter struct {
	path string
	file *os.File
	pos  int64
	log  *logger.Log
}

// OpenSegment opens path for writing, creating parent directories and an
// empty file when missing. The cursor starts at the current end of file.
func OpenSegment(path string) (*SegmentWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &models.TransactionError{Op: "mkdir", Err: err}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, &models.TransactionError{Op: "open", Err: err}
	}
	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, &models.TransactionError{Op: "seek", Err: err}
	}
	return &SegmentWriter{path: path, file: f, pos: pos, log: logger.GetLogger()}, nil
}

// WriteBatch encodes rows and writes them at offset, or at the current
// cursor when offset is negative. It returns the cursor after the write.
func (w *SegmentWriter) WriteBatch(rows []models.Record, offset int64) (int64, error) {
	if offset < 0 {
		offset = w.pos
	}
	buf := models.Encode(rows)
	if _, err := w.file.WriteAt(buf, offset); err != nil {
		return w.pos, &models.TransactionError{Op: "write", Err: err}
	}
	w.pos = offset + int64(len(buf))
	logger.IncrementSegmentWrite(len(buf))
	return w.pos, nil
}

// Truncate shrinks the file to size and clamps the cursor. It is the rollback
// mechanism for a partially committed batch.
func (w *SegmentWriter) Truncate(size int64) error {
	if size%models.RecordSize != 0 {
		return &models.FormatError{Path: w.path, Size: size}
	}
	if err := w.file.Truncate(size); err != nil {
		return &models.TransactionError{Op: "truncate", Err: err}
	}
	if w.pos > size {
		w.pos = size
	}
	return nil
}

// Flush forces buffered data to the OS and, when fsync is set, to stable
// storage.
func (w *SegmentWriter) Flush(fsync bool) error {
	if !fsync {
		return nil
	}
	if err := w.file.Sync(); err != nil {
		return &models.TransactionError{Op: "fsync", Err: err}
	}
	return nil
}

// Tell returns the current write cursor in bytes.
func (w *SegmentWriter) Tell() int64 { return w.pos }

// Path returns the segment file path.
func (w *SegmentWriter) Path() string { return w.path }

// Size reports the current byte length of the segment file.
func (w *SegmentWriter) Size() (int64, error) {
	fi, err := w.file.Stat()
	if err != nil {
		return 0, &models.TransactionError{Op: "stat", Err: err}
	}
	return fi.Size(), nil
}

// Close releases the underlying file handle.
func (w *SegmentWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", w.path, err)
	}
	return nil
}

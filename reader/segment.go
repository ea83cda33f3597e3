package reader

import (
	"fmt"
	"io"
	"os"

	"candleflow/logger"
	"candleflow/models"
)

// SegmentReader reads one binary segment sequentially in record batches. The
// cursor is byte-addressed so an engine can resume exactly where a previous
// run committed.
type SegmentReader struct {
	path string
	file *os.File
	pos  int64
	size int64
}

// OpenSegment opens an existing segment for reading. An empty file cannot be
// processed and yields a ProcessingError; callers that want to treat a
// missing day as "nothing to do" must stat the path before calling. A file
// length that is not record-aligned is corruption.
func OpenSegment(path string) (*SegmentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &models.ProcessingError{Path: path, Err: err}
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &models.ProcessingError{Path: path, Err: err}
	}
	if fi.Size() == 0 {
		f.Close()
		return nil, &models.ProcessingError{Path: path, Err: fmt.Errorf("empty segment")}
	}
	if fi.Size()%models.RecordSize != 0 {
		f.Close()
		return nil, &models.FormatError{Path: path, Size: fi.Size()}
	}
	return &SegmentReader{path: path, file: f, size: fi.Size()}, nil
}

// ReadBatch returns up to maxRows records from the cursor, advancing it. It
// returns fewer rows than requested only at end of stream.
func (r *SegmentReader) ReadBatch(maxRows int) ([]models.Record, error) {
	if maxRows <= 0 || r.pos >= r.size {
		return nil, nil
	}
	want := int64(maxRows) * models.RecordSize
	if rem := r.size - r.pos; want > rem {
		want = rem
	}
	buf := make([]byte, want)
	n, err := r.file.ReadAt(buf, r.pos)
	if err != nil && err != io.EOF {
		return nil, &models.ProcessingError{Path: r.path, Err: err}
	}
	buf = buf[:n-n%models.RecordSize]
	rows, err := models.Decode(buf)
	if err != nil {
		return nil, err
	}
	r.pos += int64(len(buf))
	logger.IncrementSegmentRead(len(buf))
	return rows, nil
}

// Seek positions the cursor at the given byte offset.
func (r *SegmentReader) Seek(offset int64) error {
	if offset < 0 || offset%models.RecordSize != 0 {
		return &models.FormatError{Path: r.path, Size: offset}
	}
	r.pos = offset
	return nil
}

// Tell returns the current byte offset of the cursor.
func (r *SegmentReader) Tell() int64 { return r.pos }

// EOF reports whether the cursor has reached the end of the segment.
func (r *SegmentReader) EOF() bool { return r.pos >= r.size }

// Size returns the segment length in bytes at open time.
func (r *SegmentReader) Size() int64 { return r.size }

// Close releases the underlying file handle.
func (r *SegmentReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

package writer

import (
	"encoding/binary"
	"os"
	"path/filepath"

	"candleflow/logger"
	"candleflow/models"
)

const (
	// indexSize is the current on-disk layout: int32 last_date, 4 bytes
	// padding, two uint64 offsets, all little-endian.
	indexSize = 24
	// legacyIndexSize is the pre-date layout holding only the two offsets.
	legacyIndexSize = 16
)

// Progress is the durable record of how much of a source/destination pair has
// been processed. OutputOffset always points at the boundary between final
// records and the provisional tail the owning engine may still rewrite.
type Progress struct {
	LastDate     int32 // YYYYMMDD, 0 until the first day commits
	InputOffset  uint64
	OutputOffset uint64
}

// Index is the small side file holding a Progress record. Writes go through a
// temp file and an atomic rename so no crash can leave it half-written.
type Index struct {
	path  string
	fsync bool
	log   *logger.Log
}

// IndexPath returns the index file path for a segment: an index/ subdirectory
// next to the segment, same base name with an .idx extension.
func IndexPath(segmentPath string) string {
	dir, name := filepath.Split(segmentPath)
	ext := filepath.Ext(name)
	return filepath.Join(dir, "index", name[:len(name)-len(ext)]+".idx")
}

// OpenIndex prepares an index at path. The file itself is created lazily by
// the first Read or Write.
func OpenIndex(path string, fsync bool) *Index {
	return &Index{path: path, fsync: fsync, log: logger.GetLogger()}
}

// Read returns the stored progress. A missing file yields zero defaults and
// writes an initial record. A legacy 16-byte file is accepted and reports
// LastDate 0 so date guards treat the next processed date as a new day; any
// other size is corruption.
func (ix *Index) Read() (Progress, error) {
	data, err := os.ReadFile(ix.path)
	if os.IsNotExist(err) {
		var p Progress
		if werr := ix.Write(p); werr != nil {
			return Progress{}, werr
		}
		return p, nil
	}
	if err != nil {
		return Progress{}, &models.TransactionError{Op: "read index", Err: err}
	}

	switch len(data) {
	case indexSize:
		return Progress{
			LastDate:     int32(binary.LittleEndian.Uint32(data[0:4])),
			InputOffset:  binary.LittleEndian.Uint64(data[8:16]),
			OutputOffset: binary.LittleEndian.Uint64(data[16:24]),
		}, nil
	case legacyIndexSize:
		ix.log.WithComponent("index").WithFields(logger.Fields{
			"path": ix.path,
		}).Info("legacy index layout detected, will upgrade on next write")
		return Progress{
			InputOffset:  binary.LittleEndian.Uint64(data[0:8]),
			OutputOffset: binary.LittleEndian.Uint64(data[8:16]),
		}, nil
	default:
		return Progress{}, &models.IndexCorruptionError{Path: ix.path, Size: int64(len(data))}
	}
}

// Write atomically persists p in the current layout. This is the single
// commit point of every engine; everything before it is safely repeatable.
func (ix *Index) Write(p Progress) error {
	dir := filepath.Dir(ix.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &models.TransactionError{Op: "mkdir index", Err: err}
	}

	buf := make([]byte, indexSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(p.LastDate))
	binary.LittleEndian.PutUint64(buf[8:16], p.InputOffset)
	binary.LittleEndian.PutUint64(buf[16:24], p.OutputOffset)

	tmp, err := os.CreateTemp(dir, ".idx-*")
	if err != nil {
		return &models.TransactionError{Op: "create temp index", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &models.TransactionError{Op: "write temp index", Err: err}
	}
	if ix.fsync {
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return &models.TransactionError{Op: "fsync temp index", Err: err}
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &models.TransactionError{Op: "close temp index", Err: err}
	}
	if err := os.Rename(tmpName, ix.path); err != nil {
		os.Remove(tmpName)
		return &models.TransactionError{Op: "rename index", Err: err}
	}
	logger.IncrementIndexCommit()
	return nil
}

// Path returns the index file path.
func (ix *Index) Path() string { return ix.path }

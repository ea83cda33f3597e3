// Package query is the read side of the store: it maps a master segment into
// memory and serves ordered range lookups over the committed region. Writers
// never block readers; a reader sees whatever the last index commit exposed.
package query

import (
	"os"
	"sort"
	"time"

	"golang.org/x/sys/unix"

	"candleflow/logger"
	"candleflow/models"
	"candleflow/writer"
)

// Cache is a read-only view over one symbol/timeframe segment. The mapping is
// clamped to the committed output offset recorded in the progress index, so
// the provisional tail bar is invisible unless asked for explicitly.
type Cache struct {
	symbol    string
	timeframe string
	data      []byte
	committed int64
	tail      *models.Record
	log       *logger.Log
}

// Open maps the segment for symbol/timeframe under masterDir. The returned
// cache owns the mapping and must be closed.
func Open(masterDir, symbol, timeframe string) (*Cache, error) {
	segPath := models.SegmentPath(masterDir, symbol, timeframe)

	ix := writer.OpenIndex(writer.IndexPath(segPath), false)
	progress, err := ix.Read()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(segPath)
	if err != nil {
		return nil, &models.ProcessingError{Path: segPath, Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &models.ProcessingError{Path: segPath, Err: err}
	}
	size := info.Size()
	if size%models.RecordSize != 0 {
		return nil, &models.FormatError{Path: segPath, Size: size}
	}
	committed := int64(progress.OutputOffset)
	if committed > size {
		return nil, &models.IndexCorruptionError{Path: writer.IndexPath(segPath), Size: committed}
	}

	c := &Cache{
		symbol:    symbol,
		timeframe: timeframe,
		committed: committed,
		log:       logger.GetLogger(),
	}
	if size > 0 {
		data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			return nil, &models.ProcessingError{Path: segPath, Err: err}
		}
		c.data = data
	}
	if size >= committed+models.RecordSize {
		rec := models.At(c.data, int(committed/models.RecordSize))
		c.tail = &rec
	}

	c.log.WithComponent("query").WithFields(logger.Fields{
		"symbol":    symbol,
		"timeframe": timeframe,
		"bars":      c.Len(),
	}).Debug("segment mapped")
	return c, nil
}

// Len returns the number of committed bars.
func (c *Cache) Len() int {
	return int(c.committed / models.RecordSize)
}

// At returns the i-th committed bar.
func (c *Cache) At(i int) models.Record {
	return models.At(c.data, i)
}

// Provisional returns the withheld bar past the committed region, if the
// writer had one in flight when the cache was opened.
func (c *Cache) Provisional() (models.Record, bool) {
	if c.tail == nil {
		return models.Record{}, false
	}
	return *c.tail, true
}

// Range returns the committed bars with from <= timestamp < to. Committed
// timestamps are monotonically increasing, so both bounds resolve by binary
// search.
func (c *Cache) Range(from, to time.Time) []models.Record {
	n := c.Len()
	lo := sort.Search(n, func(i int) bool {
		return c.At(i).Timestamp >= uint64(from.UnixMilli())
	})
	hi := sort.Search(n, func(i int) bool {
		return c.At(i).Timestamp >= uint64(to.UnixMilli())
	})
	if lo >= hi {
		return nil
	}
	out := make([]models.Record, hi-lo)
	for i := range out {
		out[i] = c.At(lo + i)
	}
	return out
}

// Latest returns the most recent committed bar.
func (c *Cache) Latest() (models.Record, bool) {
	n := c.Len()
	if n == 0 {
		return models.Record{}, false
	}
	return c.At(n - 1), true
}

// Close releases the mapping. The cache must not be used afterwards.
func (c *Cache) Close() error {
	if c.data == nil {
		return nil
	}
	err := unix.Munmap(c.data)
	c.data = nil
	return err
}

package models

import (
	"fmt"
	"path/filepath"
)

// SegmentPath returns the canonical location of one symbol's one timeframe's
// segment under the master data directory.
func SegmentPath(masterDir, symbol, timeframe string) string {
	return filepath.Join(masterDir, symbol, fmt.Sprintf("%s.bin", timeframe))
}

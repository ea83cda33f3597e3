package reader

import (
	"fmt"
	"os"
	"path/filepath"
)

// DaySource locates the per-day output of the transform stage for one symbol:
// the historical archive location is preferred, the live staging location is
// the fallback.
type DaySource struct {
	ArchiveDir string
	LiveDir    string
}

// Resolve returns the readable day file for date (YYYYMMDD) and true, or
// ("", false) when there is nothing to process: both locations missing, or
// the live file reporting zero size, as on a non-trading day.
func (s DaySource) Resolve(symbol string, date int32) (string, bool) {
	name := fmt.Sprintf("%08d.bin", date)

	archive := filepath.Join(s.ArchiveDir, symbol, name)
	if fi, err := os.Stat(archive); err == nil && fi.Size() > 0 {
		return archive, true
	}

	live := filepath.Join(s.LiveDir, symbol, name)
	if fi, err := os.Stat(live); err == nil && fi.Size() > 0 {
		return live, true
	}
	return "", false
}

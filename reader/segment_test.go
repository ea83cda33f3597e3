package reader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"candleflow/models"
)

func writeSegment(t *testing.T, dir, name string, rows []models.Record) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, models.Encode(rows), 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}
	return path
}

func makeRows(n int) []models.Record {
	rows := make([]models.Record, n)
	for i := range rows {
		rows[i] = models.Record{Timestamp: uint64(i) * 60000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}
	}
	return rows
}

func TestReadBatchWalksWholeSegment(t *testing.T) {
	path := writeSegment(t, t.TempDir(), "1m.bin", makeRows(7))
	r, err := OpenSegment(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	var total int
	for !r.EOF() {
		rows, err := r.ReadBatch(3)
		if err != nil {
			t.Fatalf("read batch: %v", err)
		}
		if len(rows) == 0 {
			break
		}
		total += len(rows)
	}
	if total != 7 {
		t.Fatalf("expected 7 rows, got %d", total)
	}
	if r.Tell() != 7*models.RecordSize {
		t.Fatalf("cursor not at end: %d", r.Tell())
	}
}

func TestSeekResumesMidSegment(t *testing.T) {
	path := writeSegment(t, t.TempDir(), "1m.bin", makeRows(5))
	r, err := OpenSegment(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	if err := r.Seek(3 * models.RecordSize); err != nil {
		t.Fatalf("seek: %v", err)
	}
	rows, err := r.ReadBatch(10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 remaining rows, got %d", len(rows))
	}
	if rows[0].Timestamp != 3*60000 {
		t.Fatalf("resumed at wrong row: %d", rows[0].Timestamp)
	}
}

func TestSeekRejectsMisalignedOffset(t *testing.T) {
	path := writeSegment(t, t.TempDir(), "1m.bin", makeRows(2))
	r, err := OpenSegment(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	var fe *models.FormatError
	if err := r.Seek(13); !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestOpenSegmentRejectsEmptyFile(t *testing.T) {
	path := writeSegment(t, t.TempDir(), "1m.bin", nil)
	_, err := OpenSegment(path)
	var pe *models.ProcessingError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProcessingError for empty segment, got %v", err)
	}
}

func TestOpenSegmentRejectsMisalignedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "1m.bin")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := OpenSegment(path)
	var fe *models.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestDaySourcePrefersArchive(t *testing.T) {
	archive := t.TempDir()
	live := t.TempDir()
	s := DaySource{ArchiveDir: archive, LiveDir: live}

	writeSegment(t, archive, filepath.Join("EURUSD", "20240315.bin"), makeRows(1))
	writeSegment(t, live, filepath.Join("EURUSD", "20240315.bin"), makeRows(2))

	path, ok := s.Resolve("EURUSD", 20240315)
	if !ok {
		t.Fatal("expected a resolved path")
	}
	if path != filepath.Join(archive, "EURUSD", "20240315.bin") {
		t.Fatalf("expected archive path, got %s", path)
	}
}

func TestDaySourceFallsBackToLive(t *testing.T) {
	archive := t.TempDir()
	live := t.TempDir()
	s := DaySource{ArchiveDir: archive, LiveDir: live}

	writeSegment(t, live, filepath.Join("EURUSD", "20240315.bin"), makeRows(2))

	path, ok := s.Resolve("EURUSD", 20240315)
	if !ok {
		t.Fatal("expected a resolved path")
	}
	if path != filepath.Join(live, "EURUSD", "20240315.bin") {
		t.Fatalf("expected live path, got %s", path)
	}
}

func TestDaySourceSkipsEmptyLiveFile(t *testing.T) {
	archive := t.TempDir()
	live := t.TempDir()
	s := DaySource{ArchiveDir: archive, LiveDir: live}

	// Zero-size live file marks a non-trading day.
	writeSegment(t, live, filepath.Join("EURUSD", "20240316.bin"), nil)

	if _, ok := s.Resolve("EURUSD", 20240316); ok {
		t.Fatal("zero-size day file must resolve to nothing")
	}
}

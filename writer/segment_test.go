package writer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"candleflow/models"
)

func testRows(n int, startTs uint64) []models.Record {
	rows := make([]models.Record, n)
	for i := range rows {
		rows[i] = models.Record{
			Timestamp: startTs + uint64(i)*60000,
			Open:      1.1,
			High:      1.2,
			Low:       1.0,
			Close:     1.15,
			Volume:    float64(i + 1),
		}
	}
	return rows
}

func TestWriteBatchAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sym", "1m.bin")
	w, err := OpenSegment(path)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	defer w.Close()

	pos, err := w.WriteBatch(testRows(3, 0), -1)
	if err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if pos != 3*models.RecordSize {
		t.Fatalf("expected cursor %d, got %d", 3*models.RecordSize, pos)
	}

	pos, err = w.WriteBatch(testRows(2, 180000), -1)
	if err != nil {
		t.Fatalf("write second batch: %v", err)
	}
	if pos != 5*models.RecordSize {
		t.Fatalf("expected cursor %d, got %d", 5*models.RecordSize, pos)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	rows, err := models.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	if rows[4].Timestamp != 240000 {
		t.Fatalf("expected last timestamp 240000, got %d", rows[4].Timestamp)
	}
}

func TestWriteBatchAtOffsetOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sym", "1m.bin")
	w, err := OpenSegment(path)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	defer w.Close()

	if _, err := w.WriteBatch(testRows(3, 0), -1); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	replacement := []models.Record{{Timestamp: 999, Open: 2, High: 2, Low: 2, Close: 2, Volume: 9}}
	if _, err := w.WriteBatch(replacement, 2*models.RecordSize); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	data, _ := os.ReadFile(path)
	rows, err := models.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("overwrite must not grow the file, got %d rows", len(rows))
	}
	if rows[2].Timestamp != 999 {
		t.Fatalf("expected overwritten timestamp 999, got %d", rows[2].Timestamp)
	}
}

func TestTruncateRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sym", "1m.bin")
	w, err := OpenSegment(path)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	defer w.Close()

	if _, err := w.WriteBatch(testRows(4, 0), -1); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if err := w.Truncate(2 * models.RecordSize); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if w.Tell() != 2*models.RecordSize {
		t.Fatalf("cursor not clamped, got %d", w.Tell())
	}
	size, err := w.Size()
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 2*models.RecordSize {
		t.Fatalf("expected size %d, got %d", 2*models.RecordSize, size)
	}
}

func TestTruncateRejectsMisalignedSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sym", "1m.bin")
	w, err := OpenSegment(path)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	defer w.Close()

	err = w.Truncate(100)
	var fe *models.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}

func TestOpenSegmentResumesAtEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sym", "1m.bin")
	w, err := OpenSegment(path)
	if err != nil {
		t.Fatalf("open segment: %v", err)
	}
	if _, err := w.WriteBatch(testRows(2, 0), -1); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	w.Close()

	w2, err := OpenSegment(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()
	if w2.Tell() != 2*models.RecordSize {
		t.Fatalf("expected cursor at end %d, got %d", 2*models.RecordSize, w2.Tell())
	}
}

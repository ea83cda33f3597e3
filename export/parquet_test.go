package export

import (
	"os"
	"path/filepath"
	"testing"

	"candleflow/models"
	"candleflow/writer"
)

func seedSegment(t *testing.T, masterDir string, rows []models.Record, committed int) {
	t.Helper()
	segPath := models.SegmentPath(masterDir, "EURUSD", "5m")
	if err := os.MkdirAll(filepath.Dir(segPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(segPath, models.Encode(rows), 0o644); err != nil {
		t.Fatalf("write segment: %v", err)
	}
	ix := writer.OpenIndex(writer.IndexPath(segPath), false)
	if err := ix.Write(writer.Progress{OutputOffset: uint64(committed) * models.RecordSize}); err != nil {
		t.Fatalf("write index: %v", err)
	}
}

func TestExportSegmentWritesCommittedBars(t *testing.T) {
	master := t.TempDir()
	rows := []models.Record{
		{Timestamp: 0, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Timestamp: 300000, Open: 1.5, High: 2.5, Low: 1, Close: 2, Volume: 20},
		{Timestamp: 600000, Open: 2, High: 3, Low: 1.5, Close: 2.5, Volume: 5},
	}
	// Two committed, one provisional: the provisional bar must not export.
	seedSegment(t, master, rows, 2)

	outPath := filepath.Join(t.TempDir(), "out.parquet")
	e := NewExporter(master, "")
	bars, err := e.ExportSegment("EURUSD", "5m", outPath)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if bars != 2 {
		t.Fatalf("expected 2 exported bars, got %d", bars)
	}
	fi, err := os.Stat(outPath)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if fi.Size() == 0 {
		t.Fatal("exported parquet file is empty")
	}
}

func TestExportMissingSegmentFails(t *testing.T) {
	e := NewExporter(t.TempDir(), "snappy")
	if _, err := e.ExportSegment("EURUSD", "5m", filepath.Join(t.TempDir(), "out.parquet")); err == nil {
		t.Fatal("expected error for missing segment")
	}
}

func TestDefaultExportNameShape(t *testing.T) {
	name := DefaultExportName("EURUSD", "5m")
	if filepath.Ext(name) != ".parquet" {
		t.Fatalf("unexpected extension: %s", name)
	}
}

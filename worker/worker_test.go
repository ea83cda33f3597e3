package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	appconfig "candleflow/config"
	"candleflow/models"
	"candleflow/query"
)

func testSetup(t *testing.T) (*appconfig.Config, *appconfig.Symbols) {
	t.Helper()
	cfg := &appconfig.Config{
		Engine: appconfig.EngineConfig{BatchSize: 4, MaxWorkers: 2},
		Storage: appconfig.StorageConfig{
			ArchiveDir: filepath.Join(t.TempDir(), "archive"),
			LiveDir:    filepath.Join(t.TempDir(), "live"),
			MasterDir:  filepath.Join(t.TempDir(), "master"),
		},
		Server: appconfig.ServerConfig{Timezone: "UTC"},
		Timeframes: []appconfig.TimeframeConfig{
			{Name: "1m", Root: true, Duration: time.Minute, Origin: appconfig.OriginEpoch},
			{Name: "5m", Source: "1m", Duration: 5 * time.Minute, Origin: appconfig.OriginEpoch},
			{Name: "15m", Source: "5m", Duration: 15 * time.Minute, Origin: appconfig.OriginEpoch},
		},
	}
	symbols := &appconfig.Symbols{
		Symbols: []appconfig.SymbolConfig{
			{
				Name:     "EURUSD",
				Timezone: "UTC",
				Sessions: []appconfig.SessionConfig{{Name: "all", Start: "00:00", End: "00:00"}},
			},
		},
	}
	return cfg, symbols
}

func seedDay(t *testing.T, cfg *appconfig.Config, symbol string, date int32, minutes int) {
	t.Helper()
	rows := make([]models.Record, minutes)
	for i := range rows {
		rows[i] = models.Record{Timestamp: uint64(i) * 60000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 1}
	}
	path := filepath.Join(cfg.Storage.ArchiveDir, symbol, formatDayName(date))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, models.Encode(rows), 0o644); err != nil {
		t.Fatalf("write day: %v", err)
	}
}

func formatDayName(date int32) string {
	digits := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		digits[i] = byte('0' + date%10)
		date /= 10
	}
	return string(digits) + ".bin"
}

func TestRunFullPipeline(t *testing.T) {
	cfg, symbols := testSetup(t)
	seedDay(t, cfg, "EURUSD", 20240315, 31)

	r := NewRunner(cfg, symbols)
	if err := r.Run(context.Background(), symbols.Names(), []int32{20240315}); err != nil {
		t.Fatalf("run: %v", err)
	}

	// 31 minutes: six full 5m buckets plus one open minute.
	c5, err := query.Open(cfg.Storage.MasterDir, "EURUSD", "5m")
	if err != nil {
		t.Fatalf("open 5m: %v", err)
	}
	defer c5.Close()
	if c5.Len() != 6 {
		t.Fatalf("expected 6 committed 5m bars, got %d", c5.Len())
	}

	// The 15m chain sees seven 5m bars including the provisional one; the
	// bucket containing it is last and therefore withheld, so two commit.
	c15, err := query.Open(cfg.Storage.MasterDir, "EURUSD", "15m")
	if err != nil {
		t.Fatalf("open 15m: %v", err)
	}
	defer c15.Close()
	if c15.Len() != 2 {
		t.Fatalf("expected 2 committed 15m bars, got %d", c15.Len())
	}
	for i := 0; i < c15.Len(); i++ {
		if v := c15.At(i).Volume; v != 15 {
			t.Fatalf("15m bar %d volume wrong: %v", i, v)
		}
	}
}

func TestRunUnknownSymbolFails(t *testing.T) {
	cfg, symbols := testSetup(t)
	r := NewRunner(cfg, symbols)
	err := r.Run(context.Background(), []string{"GBPUSD"}, nil)
	var se *models.SymbolError
	if !errors.As(err, &se) {
		t.Fatalf("expected SymbolError, got %v", err)
	}
}

func TestRunCancelledContextReportsSkippedSymbols(t *testing.T) {
	cfg, symbols := testSetup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRunner(cfg, symbols)
	err := r.Run(ctx, symbols.Names(), []int32{20240315})
	if err == nil {
		t.Fatal("cancelled run must not report success")
	}
	var se *models.SymbolError
	if !errors.As(err, &se) {
		t.Fatalf("expected SymbolError for undispatched symbol, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

func TestAggregateSymbolWithoutRootTimeframe(t *testing.T) {
	cfg, symbols := testSetup(t)
	cfg.Timeframes = []appconfig.TimeframeConfig{
		{Name: "5m", Source: "1m", Duration: 5 * time.Minute, Origin: appconfig.OriginEpoch},
	}
	r := NewRunner(cfg, symbols)
	if err := r.AggregateSymbol(context.Background(), "EURUSD", []int32{20240315}); err == nil {
		t.Fatal("expected error when no root timeframe exists")
	}
}

func TestDateRange(t *testing.T) {
	from := time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)
	got := DateRange(from, to)
	want := []int32{20240330, 20240331, 20240401, 20240402}
	if len(got) != len(want) {
		t.Fatalf("expected %d dates, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("date %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

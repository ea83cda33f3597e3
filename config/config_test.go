package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T) string {
	t.Helper()
	content := `candleflow:
  name: "TestApp"
  version: "1.0"
engine:
  batch_size: 100
  max_workers: 1
storage:
  archive_dir: /tmp/archive
  live_dir: /tmp/live
  master_dir: /tmp/master
  fsync: false
  s3:
    enabled: false
server:
  timezone: America/New_York
timeframes:
  - name: 1m
    root: true
  - name: 5m
    source: 1m
    duration: 5m
    origin: epoch
  - name: 15m
    source: 5m
    duration: 15m
    origin: "09:00"
`
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Candleflow.Name != "TestApp" {
		t.Fatalf("name = %q, want TestApp", cfg.Candleflow.Name)
	}
	tf, ok := cfg.Timeframe("5m")
	if !ok {
		t.Fatalf("timeframe 5m not found")
	}
	if tf.Duration != 5*time.Minute {
		t.Fatalf("5m duration = %v", tf.Duration)
	}
}

func TestTimeframeOrder(t *testing.T) {
	cfg := &Config{Timeframes: []TimeframeConfig{
		{Name: "4h", Source: "1h", Duration: 4 * time.Hour, Origin: OriginEpoch},
		{Name: "1h", Source: "15m", Duration: time.Hour, Origin: OriginEpoch},
		{Name: "1m", Root: true},
		{Name: "15m", Source: "1m", Duration: 15 * time.Minute, Origin: OriginEpoch},
	}}
	order, err := cfg.TimeframeOrder()
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	pos := make(map[string]int)
	for i, tf := range order {
		pos[tf.Name] = i
	}
	for _, tf := range cfg.Timeframes {
		if tf.Root {
			continue
		}
		if pos[tf.Source] > pos[tf.Name] {
			t.Fatalf("%s ordered before its source %s", tf.Name, tf.Source)
		}
	}
}

func TestTimeframeOrderCycle(t *testing.T) {
	cfg := &Config{Timeframes: []TimeframeConfig{
		{Name: "a", Source: "b", Duration: time.Minute, Origin: OriginEpoch},
		{Name: "b", Source: "a", Duration: time.Minute, Origin: OriginEpoch},
	}}
	if _, err := cfg.TimeframeOrder(); err == nil {
		t.Fatalf("expected cycle error")
	}
}

func TestTimeframeOrderMissingSource(t *testing.T) {
	cfg := &Config{Timeframes: []TimeframeConfig{
		{Name: "5m", Source: "1m", Duration: 5 * time.Minute, Origin: OriginEpoch},
	}}
	if _, err := cfg.TimeframeOrder(); err == nil {
		t.Fatalf("expected missing source error")
	}
}

func TestValidateRejectsBadOrigin(t *testing.T) {
	cfg := &Config{
		Candleflow: CandleflowConfig{Name: "x", Version: "1"},
		Engine:     EngineConfig{BatchSize: 1, MaxWorkers: 1},
		Storage:    StorageConfig{ArchiveDir: "a", LiveDir: "b", MasterDir: "c"},
		Server:     ServerConfig{Timezone: "UTC"},
		Timeframes: []TimeframeConfig{
			{Name: "1m", Root: true},
			{Name: "5m", Source: "1m", Duration: 5 * time.Minute, Origin: "25:99"},
		},
	}
	if err := validateConfig(cfg); err == nil {
		t.Fatalf("expected origin validation error")
	}
}

func TestLoadSymbols(t *testing.T) {
	content := `symbols:
  - name: EURUSD
    timezone: Europe/London
    reference_gap: 5
    sessions:
      - name: london
        start: "08:00"
        end: "16:30"
      - name: overnight
        start: "22:00"
        end: "06:00"
`
	f, err := os.CreateTemp("", "symbols-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	defer os.Remove(f.Name())

	syms, err := LoadSymbols(f.Name())
	if err != nil {
		t.Fatalf("load symbols: %v", err)
	}
	sym, ok := syms.Get("EURUSD")
	if !ok {
		t.Fatalf("EURUSD not found")
	}
	if len(sym.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(sym.Sessions))
	}
	if sym.ReferenceGap != 5 {
		t.Fatalf("reference_gap = %d, want 5", sym.ReferenceGap)
	}
}

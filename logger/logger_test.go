package logger

import (
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureLevelEnvOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")

	log := Logger()
	if err := log.Configure("warn", "json", "stdout", 0); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !log.IsLevelEnabled(logrus.DebugLevel) {
		t.Fatalf("LOG_LEVEL override not applied")
	}
}

func TestWarnCountersFollowComponent(t *testing.T) {
	log := Logger()
	log.SetOutput(nopWriter{})

	before := atomic.LoadInt64(&warnsResample)
	log.WithComponent("resampler").Warn("test warning")
	if got := atomic.LoadInt64(&warnsResample); got != before+1 {
		t.Fatalf("resample warn counter = %d, want %d", got, before+1)
	}

	beforeAgg := atomic.LoadInt64(&errorsAggregate)
	log.WithComponent("aggregator").Error("test error")
	if got := atomic.LoadInt64(&errorsAggregate); got != beforeAgg+1 {
		t.Fatalf("aggregate error counter = %d, want %d", got, beforeAgg+1)
	}
}

func TestStreamAccounting(t *testing.T) {
	IncrementSegmentWrite(128)
	IncrementSegmentWrite(64)

	v, ok := streams.Load("segment_write")
	if !ok {
		t.Fatal("segment_write stream not recorded")
	}
	ss := v.(*streamStat)
	if atomic.LoadInt64(&ss.bytes) < 192 {
		t.Fatalf("stream bytes = %d, want at least 192", atomic.LoadInt64(&ss.bytes))
	}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

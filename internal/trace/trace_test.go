package trace

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingLogger struct {
	mu    sync.Mutex
	debug []string
	warn  []string
}

func (l *recordingLogger) Debug(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = append(l.debug, fmt.Sprint(append([]any{msg}, args...)...))
}

func (l *recordingLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warn = append(l.warn, fmt.Sprint(append([]any{msg}, args...)...))
}

func TestRegistry_SetAndGet(t *testing.T) {
	r := NewRegistry()

	if r.SQLTrace() != nil || r.PerformanceTrace() != nil {
		t.Fatal("new registry should have no sinks")
	}

	var gotSQL string
	r.SetSQLTrace(func(sql string) { gotSQL = sql })

	var gotCost time.Duration
	r.SetPerformanceTrace(func(f Footprint) { gotCost = f.Cost })

	r.SQLTrace()("SELECT 1")
	r.PerformanceTrace()(Footprint{Cost: time.Second})

	if gotSQL != "SELECT 1" {
		t.Errorf("sql sink got %q", gotSQL)
	}
	if gotCost != time.Second {
		t.Errorf("performance sink got %v", gotCost)
	}

	r.SetSQLTrace(nil)
	if r.SQLTrace() != nil {
		t.Error("SetSQLTrace(nil) should clear the sink")
	}
}

func TestFootprint_Total(t *testing.T) {
	f := Footprint{Statements: map[string]int{"INSERT": 3, "UPDATE": 2}}
	if f.Total() != 5 {
		t.Errorf("Total() = %d, want 5", f.Total())
	}
}

func TestLogSlow(t *testing.T) {
	logger := &recordingLogger{}
	sink := LogSlow(logger, 100*time.Millisecond)

	sink(Footprint{Path: "fast.db", Cost: time.Millisecond})
	sink(Footprint{Path: "slow.db", Cost: time.Second})

	if len(logger.warn) != 1 {
		t.Fatalf("warn count = %d, want 1", len(logger.warn))
	}
}

func TestLogSQL(t *testing.T) {
	logger := &recordingLogger{}
	LogSQL(logger)("PRAGMA journal_mode")

	if len(logger.debug) != 1 {
		t.Fatalf("debug count = %d, want 1", len(logger.debug))
	}
}

func TestFanout(t *testing.T) {
	if Fanout(nil, nil) != nil {
		t.Error("Fanout of nil sinks should be nil")
	}

	var calls []string
	sink := Fanout(
		func(Footprint) { calls = append(calls, "a") },
		nil,
		func(Footprint) { calls = append(calls, "b") },
	)
	sink(Footprint{})

	if len(calls) != 2 || calls[0] != "a" || calls[1] != "b" {
		t.Errorf("calls = %v, want [a b]", calls)
	}
}

package audit

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newtron-network/chassis/pkg/util"
)

func newTestLogger(t *testing.T, rotation RotationConfig) (*FileLogger, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "audit", "audit.log")
	logger, err := NewFileLogger(logPath, rotation)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger, logPath
}

func TestEvent_New(t *testing.T) {
	event := NewEvent("alice", "edge-1", OpPush)

	if event.User != "alice" || event.Chassis != "edge-1" || event.Operation != OpPush {
		t.Errorf("event = %+v", event)
	}
	if event.ID == "" {
		t.Error("ID should not be empty")
	}
	if event.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
}

func TestEvent_Chaining(t *testing.T) {
	event := NewEvent("alice", "edge-1", OpSet).
		WithPort(1, 7).
		WithAttribute("mtu", "9000").
		WithDuration(time.Second).
		WithResult(nil)

	if event.Node != 1 || event.Port != 7 {
		t.Errorf("port = %d/%d", event.Node, event.Port)
	}
	if event.Attribute != "mtu" || event.Value != "9000" {
		t.Errorf("attribute = %s=%s", event.Attribute, event.Value)
	}
	if !event.Success || event.Kind != util.KindOK {
		t.Errorf("Success = %v, Kind = %s", event.Success, event.Kind)
	}
	if event.Duration != time.Second {
		t.Errorf("Duration = %v", event.Duration)
	}
}

func TestEvent_WithResult(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind util.Kind
	}{
		{"in use", util.NewInUseError("port 1/1", "hotplug attachment"), util.KindInUse},
		{"invalid", util.NewPortError(util.ErrInvalidParam, 1, 2, "bad mtu"), util.KindInvalidParam},
		{"plain", errors.New("boom"), util.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := NewEvent("alice", "edge-1", OpSet).WithResult(tt.err)
			if event.Success {
				t.Error("Success should be false")
			}
			if event.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", event.Kind, tt.kind)
			}
			if event.Error != tt.err.Error() {
				t.Errorf("Error = %q", event.Error)
			}
		})
	}
}

func TestFileLogger_Basic(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})

	event := NewEvent("alice", "edge-1", OpReplay).WithNode(2).WithResult(nil)
	if err := logger.Log(event); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].User != "alice" || events[0].Node != 2 || events[0].Kind != util.KindOK {
		t.Errorf("event = %+v", events[0])
	}
}

func TestFileLogger_QueryFilters(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})

	for _, e := range []*Event{
		NewEvent("alice", "edge-1", OpPush).WithSource("a.yaml").WithResult(nil),
		NewEvent("bob", "edge-1", OpSet).WithPort(1, 1).WithResult(nil),
		NewEvent("alice", "edge-1", OpSet).WithPort(1, 2).WithResult(errors.New("failed")),
		NewEvent("alice", "edge-1", OpHotplug).WithPort(2, 1).WithResult(nil),
	} {
		if err := logger.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"by user", Filter{User: "alice"}, 3},
		{"by operation", Filter{Operation: OpSet}, 2},
		{"by node", Filter{Node: 1}, 2},
		{"by port", Filter{Node: 1, Port: 2}, 1},
		{"success only", Filter{SuccessOnly: true}, 3},
		{"failure only", Filter{FailureOnly: true}, 1},
		{"limit", Filter{Limit: 2}, 2},
		{"offset", Filter{Offset: 3}, 1},
		{"offset beyond events", Filter{Offset: 10}, 0},
		{"future start", Filter{StartTime: time.Now().Add(time.Hour)}, 0},
		{"past end", Filter{EndTime: time.Now().Add(-time.Hour)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := logger.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}
}

func TestFileLogger_QueryMalformedJSON(t *testing.T) {
	logger, logPath := newTestLogger(t, RotationConfig{})
	if err := logger.Log(NewEvent("alice", "edge-1", OpPush)); err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("not json\n")
	f.Close()

	if err := logger.Log(NewEvent("bob", "edge-1", OpPush)); err != nil {
		t.Fatal(err)
	}
	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("Expected 2 valid events, got %d", len(events))
	}
}

func TestFileLogger_QueryNonExistent(t *testing.T) {
	logger, logPath := newTestLogger(t, RotationConfig{})
	os.Remove(logPath)

	events, err := logger.Query(Filter{})
	if err != nil {
		t.Errorf("Query on a missing file should not error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Expected 0 events, got %d", len(events))
	}
}

func TestFileLogger_Rotation(t *testing.T) {
	logger, logPath := newTestLogger(t, RotationConfig{MaxSize: 50, MaxBackups: 2})

	for i := 0; i < 10; i++ {
		if err := logger.Log(NewEvent("alice", "edge-1", OpSet).WithPort(1, uint32(i+1))); err != nil {
			t.Fatalf("Log failed on iteration %d: %v", i, err)
		}
	}

	backups, err := filepath.Glob(logPath + ".*")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(backups) == 0 || len(backups) > 2 {
		t.Errorf("got %d backup files, want 1 or 2", len(backups))
	}

	// Every event is larger than MaxSize, so the active file holds the last one.
	events, err := logger.Query(Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Port != 10 {
		t.Errorf("active file events = %d", len(events))
	}
}

func TestFileLogger_NewFileLoggerErrors(t *testing.T) {
	if _, err := NewFileLogger("/dev/null/impossible/audit.log", RotationConfig{}); err == nil {
		t.Error("expected an error creating the directory")
	}
	if _, err := NewFileLogger(t.TempDir(), RotationConfig{}); err == nil {
		t.Error("expected an error opening a directory as the log file")
	}
}

func TestFileLogger_LogAfterClose(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := logger.Log(NewEvent("alice", "edge-1", OpPush)); err == nil {
		t.Error("Log after Close should fail")
	}
}

func TestDefaultLogger(t *testing.T) {
	SetDefaultLogger(nil)
	defer SetDefaultLogger(nil)

	if err := Log(NewEvent("test", "test", "test")); err != nil {
		t.Errorf("Log with nil default should not error: %v", err)
	}
	results, err := Query(Filter{})
	if err != nil || len(results) != 0 {
		t.Errorf("Query with nil default = %v, %v", results, err)
	}

	logger, _ := newTestLogger(t, RotationConfig{})
	SetDefaultLogger(logger)

	if err := Log(NewEvent("alice", "edge-1", OpVerify).WithResult(nil)); err != nil {
		t.Errorf("Log failed: %v", err)
	}
	results, err = Query(Filter{})
	if err != nil || len(results) != 1 {
		t.Errorf("Query = %d events, %v", len(results), err)
	}
}

func TestRecord(t *testing.T) {
	logger, _ := newTestLogger(t, RotationConfig{})
	SetDefaultLogger(logger)
	defer SetDefaultLogger(nil)

	want := util.NewPortError(util.ErrUnimplemented, 1, 3, "port-type cannot change")
	err := Record(NewEvent("alice", "edge-1", OpSet).WithPort(1, 3), func() error {
		time.Sleep(time.Millisecond)
		return want
	})
	if err != want {
		t.Fatalf("Record() returned %v, want the operation's error", err)
	}

	events, err := logger.Query(Filter{FailureOnly: true})
	if err != nil || len(events) != 1 {
		t.Fatalf("Query = %d events, %v", len(events), err)
	}
	if events[0].Kind != util.KindUnimplemented || events[0].Duration <= 0 {
		t.Errorf("recorded event = %+v", events[0])
	}
}

package metrics

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAsyncObserverDrainsOnClose(t *testing.T) {
	mem := NewMemoryObserver()
	async := NewAsyncObserver(mem, 16)
	for i := 0; i < 10; i++ {
		async.RecordEvent(MetricsEvent{Name: EventToolDispatch})
	}
	async.Close()
	if got := len(mem.Named(EventToolDispatch)); got+int(async.Dropped()) != 10 {
		t.Fatalf("expected 10 events accounted for, got %d recorded and %d dropped", got, async.Dropped())
	}
	async.RecordEvent(MetricsEvent{Name: EventTurnEnd})
	if len(mem.Named(EventTurnEnd)) != 0 {
		t.Fatalf("event recorded after close")
	}
}

func TestJSONLObserverWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	obs := NewJSONLObserver(&buf)
	Emit(obs, EventTurnStart, 1, map[string]string{"session_id": "s1"}, nil)
	Emit(obs, EventTurnEnd, 2, nil, map[string]any{"rounds": 1})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if first["name"] != EventTurnStart || first["session_id"] != "s1" {
		t.Fatalf("unexpected event %v", first)
	}
	if _, ok := first["time"]; !ok {
		t.Fatalf("expected event time, got %v", first)
	}
	if _, ok := first["msg"]; ok {
		t.Fatalf("handler message leaked into event %v", first)
	}
}

func TestOpenJSONLFileCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")
	obs, err := OpenJSONLFile(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	Emit(obs, EventStateChange, 0, nil, nil)
	if err := obs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), EventStateChange) {
		t.Fatalf("event not written: %s", data)
	}
}

func TestEmitIgnoresNilObserver(t *testing.T) {
	Emit(nil, EventTurnStart, 0, nil, nil)
}

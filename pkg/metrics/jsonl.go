package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// JSONLObserver appends one JSON object per event: the handler's own time
// key carries the event time, followed by name, value, tags and fields.
type JSONLObserver struct {
	handler slog.Handler
	closer  io.Closer
}

func NewJSONLObserver(w io.Writer) *JSONLObserver {
	if w == nil {
		w = io.Discard
	}
	return &JSONLObserver{handler: slog.NewJSONHandler(w, &slog.HandlerOptions{ReplaceAttr: eventAttr})}
}

func eventAttr(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && (a.Key == slog.LevelKey || a.Key == slog.MessageKey) {
		return slog.Attr{}
	}
	return a
}

// OpenJSONLFile appends events to path, creating parent directories.
func OpenJSONLFile(path string) (*JSONLObserver, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("events dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	o := NewJSONLObserver(f)
	o.closer = f
	return o, nil
}

func (o *JSONLObserver) RecordEvent(ev MetricsEvent) {
	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}
	rec := slog.NewRecord(at, slog.LevelInfo, "", 0)
	rec.AddAttrs(slog.String("name", ev.Name), slog.Float64("value", ev.Value))
	for k, v := range ev.Tags {
		rec.AddAttrs(slog.String(k, v))
	}
	for k, v := range ev.Fields {
		rec.AddAttrs(slog.Any(k, v))
	}
	_ = o.handler.Handle(context.Background(), rec)
}

// Close releases the underlying file, if any.
func (o *JSONLObserver) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

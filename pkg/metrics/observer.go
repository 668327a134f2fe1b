// Package metrics carries the structured events emitted by the chat session,
// the tool dispatcher and the model adapters.
package metrics

import "time"

// MetricsEvent is a single named observation. Tags are low-cardinality
// labels, Fields carry free-form values.
type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

// Tag returns the tag value for key or "".
func (ev MetricsEvent) Tag(key string) string {
	if ev.Tags == nil {
		return ""
	}
	return ev.Tags[key]
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

// Flusher is implemented by observers that buffer events.
type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Emit records an event stamped with the current time. A nil observer is
// ignored.
func Emit(obs Observer, name string, value float64, tags map[string]string, fields map[string]any) {
	if obs == nil {
		return
	}
	obs.RecordEvent(MetricsEvent{
		Name:   name,
		Time:   time.Now(),
		Value:  value,
		Tags:   tags,
		Fields: fields,
	})
}

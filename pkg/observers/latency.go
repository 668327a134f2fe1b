package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/hearth/pkg/metrics"
)

// LatencyObserver correlates turn and model events by turn_id and logs one
// summary line per finished turn: total time, time spent waiting on the model
// and time spent in tools.
type LatencyObserver struct {
	mu     sync.Mutex
	traces map[string]*trace
	log    *slog.Logger
}

type trace struct {
	start     time.Time
	llmStart  time.Time
	llmTotal  time.Duration
	toolTotal time.Duration
	rounds    int
	tools     int
	sessionID string
}

// Summary is what gets logged when a turn ends.
type Summary struct {
	TurnID    string
	SessionID string
	Total     time.Duration
	LLM       time.Duration
	Tools     time.Duration
	Rounds    int
	ToolCalls int
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		traces: make(map[string]*trace),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	turnID := ev.Tag("turn_id")
	if turnID == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	t := o.traces[turnID]
	if t == nil {
		if ev.Name != metrics.EventTurnStart {
			return
		}
		t = &trace{}
		o.traces[turnID] = t
	}
	switch ev.Name {
	case metrics.EventTurnStart:
		t.start = ev.Time
		t.sessionID = ev.Tag("session_id")
	case metrics.EventLLMRequest:
		t.llmStart = ev.Time
		t.rounds++
	case metrics.EventLLMResponse, metrics.EventLLMError:
		if !t.llmStart.IsZero() {
			t.llmTotal += ev.Time.Sub(t.llmStart)
			t.llmStart = time.Time{}
		}
	case metrics.EventToolDispatch:
		t.tools++
		t.toolTotal += time.Duration(ev.Value * float64(time.Millisecond))
	case metrics.EventTurnEnd:
		s := Summary{
			TurnID:    turnID,
			SessionID: t.sessionID,
			Total:     ev.Time.Sub(t.start),
			LLM:       t.llmTotal,
			Tools:     t.toolTotal,
			Rounds:    t.rounds,
			ToolCalls: t.tools,
		}
		delete(o.traces, turnID)
		o.logSummary(s)
	}
}

// Pending reports how many turns are still open.
func (o *LatencyObserver) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.traces)
}

func (o *LatencyObserver) logSummary(s Summary) {
	o.log.Info("turn_latency",
		"turn_id", s.TurnID,
		"session_id", s.SessionID,
		"total_ms", s.Total.Milliseconds(),
		"llm_ms", s.LLM.Milliseconds(),
		"tools_ms", s.Tools.Milliseconds(),
		"rounds", s.Rounds,
		"tool_calls", s.ToolCalls,
	)
}

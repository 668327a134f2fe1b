package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/harunnryd/hearth/pkg/devices"
	"github.com/harunnryd/hearth/pkg/errorsx"
	"github.com/harunnryd/hearth/pkg/llm"
	"github.com/harunnryd/hearth/pkg/metrics"
	"github.com/harunnryd/hearth/pkg/providers/mock"
	"github.com/harunnryd/hearth/pkg/resilience"
	"github.com/harunnryd/hearth/pkg/tools"
)

type scriptedLines struct {
	lines   []string
	replies []string
	err     error
}

func (s *scriptedLines) ReadLine(ctx context.Context) (string, error) {
	if len(s.lines) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptedLines) WriteReply(text string) error {
	s.replies = append(s.replies, text)
	return nil
}

type fixture struct {
	reg   *devices.Registry
	model *mock.LLMAdapter
	obs   *metrics.MemoryObserver
	sess  *Session
}

func newFixture(t *testing.T, cfg Config, script ...mock.Step) *fixture {
	t.Helper()
	reg := devices.NewRegistry()
	cat, err := tools.HomeCatalog(reg)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	model := mock.NewLLMAdapter(mock.LLMConfig{Script: script})
	obs := metrics.NewMemoryObserver()
	sess := NewSession(model, tools.NewDispatcher(cat), cfg, WithObserver(obs), WithSessionID("s-test"))
	return &fixture{reg: reg, model: model, obs: obs, sess: sess}
}

func toolCall(id, name string, args map[string]any) llm.ToolCall {
	return llm.ToolCall{ID: id, Name: name, Arguments: args}
}

func roles(msgs []llm.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, string(m.Role))
	}
	return strings.Join(parts, ",")
}

func TestTurnPlainReply(t *testing.T) {
	f := newFixture(t, Config{SystemPrompt: "You control a home."}, mock.Step{Text: "Hello!"})
	reply, err := f.sess.Turn(context.Background(), "hi")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if reply != "Hello!" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got := roles(f.sess.History().Messages()); got != "system,user,assistant" {
		t.Fatalf("unexpected history %s", got)
	}
	req := f.model.Requests()[0]
	if req.ToolChoice != llm.ToolChoiceAuto || len(req.Tools) != 10 {
		t.Fatalf("catalog not handed to model: choice=%s tools=%d", req.ToolChoice, len(req.Tools))
	}
	if f.sess.State() != StateAwaitingUserInput {
		t.Fatalf("unexpected state %s", f.sess.State())
	}
}

func TestTurnDispatchesToolsInOrder(t *testing.T) {
	f := newFixture(t, Config{},
		mock.Step{ToolCalls: []llm.ToolCall{
			toolCall("c1", "Lights-add_light", map[string]any{"name": "Desk Lamp", "is_on": true}),
			toolCall("c2", "Lights-remove_light", map[string]any{"name": "porch light"}),
		}},
		mock.Step{Text: "Added the desk lamp and removed the porch light."},
	)
	reply, err := f.sess.Turn(context.Background(), "swap the porch light for a desk lamp")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if !strings.HasPrefix(reply, "Added") {
		t.Fatalf("unexpected reply %q", reply)
	}
	var ids []int
	for _, l := range f.reg.ListLights().Lights {
		ids = append(ids, l.ID)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 3 || ids[2] != 4 {
		t.Fatalf("unexpected ids %v", ids)
	}
	msgs := f.sess.History().Messages()
	if got := roles(msgs); got != "user,assistant,tool,tool,assistant" {
		t.Fatalf("unexpected history %s", got)
	}
	if msgs[2].ToolCallID != "c1" || msgs[2].Content != "Light 'Desk Lamp' added with ID 4 and state on." {
		t.Fatalf("unexpected first tool result %+v", msgs[2])
	}
	if msgs[3].ToolCallID != "c2" || msgs[3].Content != "Light 'porch light' removed." {
		t.Fatalf("unexpected second tool result %+v", msgs[3])
	}
	second := f.model.Requests()[1]
	if got := roles(second.Messages); got != "user,assistant,tool,tool" {
		t.Fatalf("second request missing tool results: %s", got)
	}
}

func TestTurnUnknownToolContinues(t *testing.T) {
	f := newFixture(t, Config{},
		mock.Step{ToolCalls: []llm.ToolCall{toolCall("c1", "Garage-open", nil)}},
		mock.Step{Text: "I can't open the garage."},
	)
	before := f.reg.ListLights().Text()
	reply, err := f.sess.Turn(context.Background(), "open the garage")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if reply != "I can't open the garage." {
		t.Fatalf("unexpected reply %q", reply)
	}
	msgs := f.sess.History().Messages()
	if msgs[2].Content != "Error: unknown tool 'Garage-open'" {
		t.Fatalf("unexpected tool result %q", msgs[2].Content)
	}
	if f.reg.ListLights().Text() != before {
		t.Fatalf("registry changed")
	}
}

func TestTurnAssignsMissingCallIDs(t *testing.T) {
	f := newFixture(t, Config{},
		mock.Step{ToolCalls: []llm.ToolCall{{Name: "Thermostat-get_temperature"}}},
		mock.Step{Text: "It's 22°C."},
	)
	if _, err := f.sess.Turn(context.Background(), "how warm is it"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	msgs := f.sess.History().Messages()
	callID := msgs[1].ToolCalls[0].ID
	if callID == "" || msgs[2].ToolCallID != callID {
		t.Fatalf("tool result not linked to generated id: %q vs %q", callID, msgs[2].ToolCallID)
	}
}

func TestTurnToolRoundCap(t *testing.T) {
	loop := mock.Step{ToolCalls: []llm.ToolCall{toolCall("c", "Thermostat-increase_temperature", nil)}}
	f := newFixture(t, Config{MaxToolRounds: 2}, loop, loop, loop, mock.Step{Text: "never"})
	_, err := f.sess.Turn(context.Background(), "make it warm")
	if !errors.Is(err, ErrToolRoundsExceeded) {
		t.Fatalf("expected round cap, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonToolRoundsLimit) {
		t.Fatalf("expected reason, got %s", errorsx.Reason(err))
	}
	if got := f.reg.Thermostat().TargetTemp; got != 24 {
		t.Fatalf("expected exactly two increases, got %v", got)
	}
	last := f.sess.History().Messages()[f.sess.History().Len()-1]
	if last.Role != llm.RoleTool {
		t.Fatalf("history must not end on unanswered tool calls, last=%s", last.Role)
	}
	if f.sess.State() != StateAwaitingUserInput {
		t.Fatalf("unexpected state %s", f.sess.State())
	}
}

func TestTurnModelErrorIsClassified(t *testing.T) {
	f := newFixture(t, Config{}, mock.Step{Err: resilience.RateLimitError{Provider: "openai"}})
	_, err := f.sess.Turn(context.Background(), "hi")
	if !errors.Is(err, ErrModelInvocation) {
		t.Fatalf("expected model invocation error, got %v", err)
	}
	if !errorsx.HasReason(err, errorsx.ReasonLLMRateLimit) {
		t.Fatalf("expected rate limit reason, got %s", errorsx.Reason(err))
	}
	if f.sess.State() != StateAwaitingUserInput {
		t.Fatalf("unexpected state %s", f.sess.State())
	}
	if len(f.obs.Named(metrics.EventLLMError)) != 1 {
		t.Fatalf("expected llm_error event")
	}
}

func TestRunStopsOnExitKeyword(t *testing.T) {
	f := newFixture(t, Config{}, mock.Step{ToolCalls: []llm.ToolCall{
		toolCall("c1", "Lights-change_state", map[string]any{"id": 2, "is_on": true}),
	}}, mock.Step{Text: "The porch light is on."})
	lines := &scriptedLines{lines: []string{"turn on the porch light", "", "exit", "never read"}}
	if err := f.sess.Run(context.Background(), lines); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(lines.replies) != 1 || lines.replies[0] != "The porch light is on." {
		t.Fatalf("unexpected replies %v", lines.replies)
	}
	if len(lines.lines) != 1 {
		t.Fatalf("lines after exit must not be read")
	}
	if f.sess.State() != StateTerminated {
		t.Fatalf("expected terminated, got %s", f.sess.State())
	}
	if _, err := f.sess.Turn(context.Background(), "hello"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected closed session, got %v", err)
	}
}

func TestRunExitKeywordIsCaseSensitive(t *testing.T) {
	f := newFixture(t, Config{}, mock.Step{Text: "Did you mean exit?"})
	lines := &scriptedLines{lines: []string{"Exit", "quit"}}
	if err := f.sess.Run(context.Background(), lines); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(lines.replies) != 1 {
		t.Fatalf("'Exit' should be sent to the model, replies=%v", lines.replies)
	}
}

func TestRunEndOfInput(t *testing.T) {
	f := newFixture(t, Config{})
	if err := f.sess.Run(context.Background(), &scriptedLines{}); err != nil {
		t.Fatalf("expected clean end, got %v", err)
	}
	if f.sess.State() != StateTerminated {
		t.Fatalf("expected terminated")
	}
}

func TestRunReadErrorIsReasoned(t *testing.T) {
	f := newFixture(t, Config{})
	err := f.sess.Run(context.Background(), &scriptedLines{err: errors.New("socket closed")})
	if !errorsx.HasReason(err, errorsx.ReasonTransportRead) {
		t.Fatalf("expected transport read reason, got %v", err)
	}
}

func TestRunContinuePolicyApologizes(t *testing.T) {
	f := newFixture(t, Config{OnModelError: PolicyContinue},
		mock.Step{Err: errors.New("401 unauthorized")},
		mock.Step{Text: "Back online."},
	)
	lines := &scriptedLines{lines: []string{"hi", "hi again"}}
	if err := f.sess.Run(context.Background(), lines); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(lines.replies) != 2 || lines.replies[0] != ModelErrorReply || lines.replies[1] != "Back online." {
		t.Fatalf("unexpected replies %v", lines.replies)
	}
	if got := roles(f.sess.History().Messages()); got != "user,user,assistant" {
		t.Fatalf("unexpected history %s", got)
	}
}

func TestRunAbortPolicyReturnsError(t *testing.T) {
	f := newFixture(t, Config{OnModelError: PolicyAbort}, mock.Step{Err: resilience.UnavailableError{StatusCode: 503}})
	lines := &scriptedLines{lines: []string{"hi", "again"}}
	err := f.sess.Run(context.Background(), lines)
	if !errors.Is(err, ErrModelInvocation) || !errorsx.HasReason(err, errorsx.ReasonLLMUnavailable) {
		t.Fatalf("expected unavailable model error, got %v", err)
	}
	if len(lines.replies) != 0 {
		t.Fatalf("abort must not write a reply")
	}
	if f.sess.State() != StateTerminated {
		t.Fatalf("expected terminated")
	}
}

func TestRunCanceledContext(t *testing.T) {
	f := newFixture(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.sess.Run(ctx, &scriptedLines{lines: []string{"hi"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestTurnEmitsMetrics(t *testing.T) {
	f := newFixture(t, Config{}, mock.Step{Text: "ok"})
	if _, err := f.sess.Turn(context.Background(), "hi"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	start := f.obs.Named(metrics.EventTurnStart)
	end := f.obs.Named(metrics.EventTurnEnd)
	if len(start) != 1 || len(end) != 1 {
		t.Fatalf("expected one turn_start and turn_end")
	}
	if start[0].Tag("turn_id") == "" || start[0].Tag("turn_id") != end[0].Tag("turn_id") {
		t.Fatalf("turn events not correlated")
	}
	if start[0].Tag("session_id") != "s-test" {
		t.Fatalf("unexpected session id %q", start[0].Tag("session_id"))
	}
	if got := len(f.obs.Named(metrics.EventStateChange)); got != 3 {
		t.Fatalf("expected 3 state changes, got %d", got)
	}
}

func TestMaxHistoryLimitsRequestNotHistory(t *testing.T) {
	f := newFixture(t, Config{SystemPrompt: "sys", MaxHistory: 2},
		mock.Step{Text: "one"}, mock.Step{Text: "two"}, mock.Step{Text: "three"})
	for _, in := range []string{"a", "b", "c"} {
		if _, err := f.sess.Turn(context.Background(), in); err != nil {
			t.Fatalf("turn: %v", err)
		}
	}
	last := f.model.Requests()[2]
	if got := roles(last.Messages); got != "system,assistant,user" {
		t.Fatalf("unexpected window %s", got)
	}
	if f.sess.History().Len() != 7 {
		t.Fatalf("stored history was trimmed: %d", f.sess.History().Len())
	}
}

func TestMaxHistoryKeepsToolRoundForModel(t *testing.T) {
	f := newFixture(t, Config{SystemPrompt: "sys", MaxHistory: 2},
		mock.Step{ToolCalls: []llm.ToolCall{
			toolCall("c1", "Lights-get_lights", nil),
			toolCall("c2", "Thermostat-get_temperature", nil),
		}},
		mock.Step{Text: "Three lights, 22°C."},
	)
	reply, err := f.sess.Turn(context.Background(), "how is the house?")
	if err != nil {
		t.Fatalf("turn: %v", err)
	}
	if reply != "Three lights, 22°C." {
		t.Fatalf("unexpected reply %q", reply)
	}
	second := f.model.Requests()[1]
	if got := roles(second.Messages); got != "system,user,assistant,tool,tool" {
		t.Fatalf("tool round cut from request: %s", got)
	}
}

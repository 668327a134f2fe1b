package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/hearth/pkg/errorsx"
	"github.com/harunnryd/hearth/pkg/metrics"
	"github.com/harunnryd/hearth/pkg/resilience"
)

type fakeAdapter struct {
	errs  []error
	calls int
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return Response{}, f.errs[i]
	}
	return Response{Text: "ok"}, nil
}

func (f *fakeAdapter) MapTools(tools []Tool) (any, error) { return tools, nil }
func (f *fakeAdapter) ToProviderFormat(ctx Context) (any, error) { return ctx, nil }
func (f *fakeAdapter) FromProviderFormat(raw any) (Response, error) {
	return Response{}, nil
}

func TestToolSchema(t *testing.T) {
	tool := Tool{
		Name: "Thermostat-set_mode",
		Params: []ToolParam{
			{Name: "mode", Type: "string", Required: true, Enum: []string{"heat", "cool"}},
			{Name: "note", Type: "string"},
		},
	}
	schema := tool.Schema()
	if schema["type"] != "object" {
		t.Fatalf("expected object schema, got %v", schema["type"])
	}
	required := schema["required"].([]string)
	if len(required) != 1 || required[0] != "mode" {
		t.Fatalf("unexpected required %v", required)
	}
	props := schema["properties"].(map[string]any)
	mode := props["mode"].(map[string]any)
	if enum := mode["enum"].([]string); len(enum) != 2 {
		t.Fatalf("unexpected enum %v", enum)
	}
	if _, ok := props["note"].(map[string]any)["enum"]; ok {
		t.Fatalf("enum should be omitted when empty")
	}
}

func TestToolSchemaWithoutParams(t *testing.T) {
	schema := Tool{Name: "Lights-get_lights"}.Schema()
	if len(schema["properties"].(map[string]any)) != 0 {
		t.Fatalf("expected no properties")
	}
	if schema["required"] == nil {
		t.Fatalf("required must be an empty list, not nil")
	}
}

func TestResponseHelpers(t *testing.T) {
	if !(Response{Text: "  "}).IsEmpty() {
		t.Fatalf("blank reply should be empty")
	}
	r := Response{ToolCalls: []ToolCall{{Name: "x"}}}
	if !r.HasToolCalls() || r.IsEmpty() {
		t.Fatalf("tool call response misclassified")
	}
}

func TestRetryAdapterRetriesTransient(t *testing.T) {
	inner := &fakeAdapter{errs: []error{resilience.UnavailableError{StatusCode: 503}}}
	a := NewRetryAdapter(inner, RetryConfig{MaxAttempts: 3, Sleep: func(time.Duration) {}})
	resp, err := a.Generate(context.Background(), Context{})
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if resp.Text != "ok" || inner.calls != 2 {
		t.Fatalf("expected success on second attempt, calls=%d", inner.calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	perm := errors.New("bad request")
	inner := &fakeAdapter{errs: []error{perm, nil}}
	a := NewRetryAdapter(inner, RetryConfig{MaxAttempts: 3, Sleep: func(time.Duration) {}})
	_, err := a.Generate(context.Background(), Context{})
	if !errors.Is(err, perm) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected one call, got %d", inner.calls)
	}
}

func TestRetrySingleAttemptReturnsRawError(t *testing.T) {
	cause := resilience.RateLimitError{Message: "slow down"}
	inner := &fakeAdapter{errs: []error{cause}}
	_, err := NewRetryAdapter(inner, RetryConfig{}).Generate(context.Background(), Context{})
	if err == nil || err.Error() != "slow down" {
		t.Fatalf("expected raw error, got %v", err)
	}
}

func TestCircuitBreakerAdapterDeniesWhenOpen(t *testing.T) {
	inner := &fakeAdapter{errs: []error{resilience.RateLimitError{}}}
	obs := metrics.NewMemoryObserver()
	a := NewCircuitBreakerAdapter(inner, resilience.NewCircuitBreaker(1, time.Hour))
	a.SetObserver(obs)

	if _, err := a.Generate(context.Background(), Context{}); !resilience.IsRateLimit(err) {
		t.Fatalf("expected rate limit, got %v", err)
	}
	_, err := a.Generate(context.Background(), Context{})
	if !errorsx.HasReason(err, errorsx.ReasonLLMCircuitOpen) {
		t.Fatalf("expected circuit open reason, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("inner adapter called while open")
	}
	if len(obs.Named(metrics.EventBreakerOpen)) != 1 || len(obs.Named(metrics.EventBreakerDenied)) != 1 {
		t.Fatalf("expected breaker events, got %+v", obs.Snapshot())
	}
}

func TestCircuitBreakerAdapterClosesAfterRecovery(t *testing.T) {
	inner := &fakeAdapter{errs: []error{resilience.UnavailableError{StatusCode: 503}}}
	obs := metrics.NewMemoryObserver()
	a := NewCircuitBreakerAdapter(inner, resilience.NewCircuitBreaker(1, time.Millisecond))
	a.SetObserver(obs)

	if _, err := a.Generate(context.Background(), Context{}); !resilience.IsUnavailable(err) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	resp, err := a.Generate(context.Background(), Context{})
	if err != nil || resp.Text != "ok" {
		t.Fatalf("expected recovery, got %v %v", resp, err)
	}
	if len(obs.Named(metrics.EventBreakerOpen)) != 1 || len(obs.Named(metrics.EventBreakerClose)) != 1 {
		t.Fatalf("expected open then close, got %+v", obs.Snapshot())
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	inner := &fakeAdapter{errs: []error{resilience.RateLimitError{RetryAfter: time.Minute}}}
	var waited []time.Duration
	cfg := RetryConfig{
		MaxAttempts: 2,
		MaxDelay:    5 * time.Second,
		Sleep:       func(d time.Duration) { waited = append(waited, d) },
	}
	if _, err := NewRetryAdapter(inner, cfg).Generate(context.Background(), Context{}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if len(waited) != 1 || waited[0] != 5*time.Second {
		t.Fatalf("expected one capped wait of 5s, got %v", waited)
	}
}

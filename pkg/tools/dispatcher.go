package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/hearth/pkg/configutil"
	"github.com/harunnryd/hearth/pkg/devices"
	"github.com/harunnryd/hearth/pkg/llm"
	"github.com/harunnryd/hearth/pkg/logging"
	"github.com/harunnryd/hearth/pkg/metrics"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// DispatchError reports a call that never reached a registry operation.
type DispatchError struct {
	Tool string
	Err  error
}

func (e *DispatchError) Error() string {
	if errors.Is(e.Err, ErrUnknownTool) {
		return fmt.Sprintf("unknown tool '%s'", e.Tool)
	}
	return fmt.Sprintf("tool '%s': %v", e.Tool, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Status classifies an Outcome.
type Status string

const (
	StatusOK            Status = "ok"
	StatusNotFound      Status = "not_found"
	StatusInvalidArgs   Status = "invalid_args"
	StatusDispatchError Status = "dispatch_error"
)

func statusOf(r devices.Result) Status {
	switch r.Status {
	case devices.StatusOK:
		return StatusOK
	case devices.StatusNotFound:
		return StatusNotFound
	default:
		return StatusInvalidArgs
	}
}

// Outcome is the result of one dispatch. Content is what goes into the
// conversation history as the tool result.
type Outcome struct {
	CallID  string
	Tool    string
	Status  Status
	Content string
	Err     error
	Elapsed time.Duration
}

// Dispatcher resolves tool calls against a Catalog. It never runs a handler
// more than once per call and never runs two calls at the same time.
type Dispatcher struct {
	catalog *Catalog
	obs     metrics.Observer
	log     *slog.Logger
}

type DispatcherOption func(*Dispatcher)

func WithObserver(obs metrics.Observer) DispatcherOption {
	return func(d *Dispatcher) { d.obs = obs }
}

func WithLogger(log *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

func NewDispatcher(catalog *Catalog, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{catalog: catalog, obs: metrics.NoopObserver{}}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logging.NewComponentLogger(slog.Default(), "tools")
	}
	return d
}

// Tools returns the catalog declarations.
func (d *Dispatcher) Tools() []llm.Tool { return d.catalog.Tools() }

// Dispatch executes one tool call. Failures are reported in the Outcome;
// the registry is untouched unless the handler actually ran.
func (d *Dispatcher) Dispatch(ctx context.Context, call llm.ToolCall) Outcome {
	start := time.Now()
	out := d.dispatch(ctx, call)
	out.CallID = call.ID
	out.Tool = call.Name
	out.Elapsed = time.Since(start)

	d.log.Debug("tool_dispatched",
		"tool", out.Tool,
		"call_id", out.CallID,
		"status", string(out.Status),
		"elapsed_ms", out.Elapsed.Milliseconds(),
	)
	metrics.Emit(d.obs, metrics.EventToolDispatch, float64(out.Elapsed.Microseconds())/1000,
		map[string]string{
			"tool":   out.Tool,
			"status": string(out.Status),
		}, nil)
	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, call llm.ToolCall) Outcome {
	spec, ok := d.catalog.Lookup(call.Name)
	if !ok {
		return failure(StatusDispatchError, &DispatchError{Tool: call.Name, Err: ErrUnknownTool})
	}
	args, err := arguments(call)
	if err != nil {
		return failure(StatusInvalidArgs, &DispatchError{Tool: call.Name, Err: fmt.Errorf("%w: %v", ErrInvalidArguments, err)})
	}
	if err := configutil.ValidateSettings(args, spec.schema()); err != nil {
		return failure(StatusInvalidArgs, &DispatchError{Tool: call.Name, Err: fmt.Errorf("%w: %v", ErrInvalidArguments, err)})
	}
	if err := ctx.Err(); err != nil {
		return failure(StatusDispatchError, &DispatchError{Tool: call.Name, Err: err})
	}
	res, err := spec.Handler(ctx, args)
	if err != nil {
		return failure(StatusInvalidArgs, &DispatchError{Tool: call.Name, Err: fmt.Errorf("%w: %v", ErrInvalidArguments, err)})
	}
	return Outcome{Status: statusOf(res), Content: res.Text()}
}

func failure(status Status, err error) Outcome {
	return Outcome{Status: status, Content: "Error: " + err.Error(), Err: err}
}

func arguments(call llm.ToolCall) (map[string]any, error) {
	if call.Arguments != nil {
		return call.Arguments, nil
	}
	raw := strings.TrimSpace(call.RawArguments)
	if raw == "" {
		return map[string]any{}, nil
	}
	args := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	return args, nil
}

// HandleTool satisfies llm.ToolRegistry for callers that only need the text.
func (d *Dispatcher) HandleTool(name string, args map[string]any) (string, error) {
	out := d.Dispatch(context.Background(), llm.ToolCall{Name: name, Arguments: args})
	return out.Content, out.Err
}

var _ llm.ToolRegistry = (*Dispatcher)(nil)

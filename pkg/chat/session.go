// Package chat runs the conversation loop: it keeps the history, asks the
// model for a reply, dispatches the tool calls the model requests and feeds
// their results back until the model answers in plain text.
package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/hearth/pkg/errorsx"
	"github.com/harunnryd/hearth/pkg/llm"
	"github.com/harunnryd/hearth/pkg/logging"
	"github.com/harunnryd/hearth/pkg/metrics"
	"github.com/harunnryd/hearth/pkg/redact"
	"github.com/harunnryd/hearth/pkg/tools"
)

// ErrorPolicy decides what Run does when a turn fails.
type ErrorPolicy string

const (
	// PolicyContinue answers with an apology and waits for the next line.
	PolicyContinue ErrorPolicy = "continue"
	// PolicyAbort ends the session and returns the error.
	PolicyAbort ErrorPolicy = "abort"
)

const (
	DefaultMaxToolRounds = 8

	ModelErrorReply = "Sorry, I couldn't reach the assistant service just now. Please try again."
	ToolRoundsReply = "Sorry, I couldn't finish that request. Please try rephrasing it."
)

// ExitKeywords end the session when typed exactly.
var ExitKeywords = []string{"exit", "quit"}

// IsExit reports whether line is an exit keyword. The match is exact and
// case-sensitive.
func IsExit(line string) bool {
	for _, k := range ExitKeywords {
		if line == k {
			return true
		}
	}
	return false
}

type Config struct {
	SystemPrompt  string
	MaxToolRounds int
	// MaxHistory caps the non-system messages sent to the model; the stored
	// history is never trimmed. Zero sends everything.
	MaxHistory   int
	OnModelError ErrorPolicy
}

func (c Config) withDefaults() Config {
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.OnModelError == "" {
		c.OnModelError = PolicyContinue
	}
	return c
}

// Dispatcher executes tool calls. *tools.Dispatcher implements it.
type Dispatcher interface {
	Tools() []llm.Tool
	Dispatch(ctx context.Context, call llm.ToolCall) tools.Outcome
}

// LineIO is the user-facing side of a session.
type LineIO interface {
	ReadLine(ctx context.Context) (string, error)
	WriteReply(text string) error
}

// Session is one conversation. Turns are serialized.
type Session struct {
	id         string
	cfg        Config
	adapter    llm.LLMAdapter
	dispatcher Dispatcher
	history    *History
	sm         *stateMachine
	obs        metrics.Observer
	log        *slog.Logger

	turnMu sync.Mutex
}

type Option func(*Session)

func WithObserver(obs metrics.Observer) Option {
	return func(s *Session) { s.obs = obs }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Session) { s.log = log }
}

func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

func WithStateListener(l StateListener) Option {
	return func(s *Session) { s.sm.AddListener(l) }
}

func NewSession(adapter llm.LLMAdapter, dispatcher Dispatcher, cfg Config, opts ...Option) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:        cfg,
		adapter:    adapter,
		dispatcher: dispatcher,
		history:    NewHistory(cfg.SystemPrompt),
		sm:         newStateMachine(),
		obs:        metrics.NoopObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.log == nil {
		s.log = logging.NewComponentLogger(slog.Default(), "chat")
	}
	s.log = s.log.With("session_id", s.id)
	s.sm.AddListener(StateListenerFunc(s.onStateChange))
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State { return s.sm.State() }

func (s *Session) History() *History { return s.history }

func (s *Session) Config() Config { return s.cfg }

// Turn handles one user message and returns the assistant's final reply.
// Tool calls requested by the model are dispatched in order, one at a time.
func (s *Session) Turn(ctx context.Context, input string) (string, error) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	if s.sm.State() == StateTerminated {
		return "", ErrSessionClosed
	}
	turnID := uuid.NewString()
	tags := map[string]string{"session_id": s.id, "turn_id": turnID}
	log := s.log.With("turn_id", turnID)
	start := time.Now()
	metrics.Emit(s.obs, metrics.EventTurnStart, 0, tags, nil)
	log.Debug("user_input", "text", redact.Text(input))

	s.history.Append(llm.UserMessage(input))
	if err := s.sm.Transition(StateAwaitingModelResponse, "user input"); err != nil {
		return "", err
	}

	rounds := 0
	reply, err := s.converse(ctx, log, tags, &rounds)
	status := "ok"
	if err != nil {
		status = string(errorsx.Reason(err))
		_ = s.sm.Transition(StateAwaitingUserInput, "turn failed")
	}
	metrics.Emit(s.obs, metrics.EventTurnEnd, float64(time.Since(start).Milliseconds()), tags,
		map[string]any{"rounds": rounds, "status": status})
	return reply, err
}

func (s *Session) converse(ctx context.Context, log *slog.Logger, tags map[string]string, rounds *int) (string, error) {
	for {
		resp, err := s.generate(ctx, log, tags)
		if err != nil {
			return "", err
		}
		if !resp.HasToolCalls() {
			if err := s.sm.Transition(StatePresentingReply, "model reply"); err != nil {
				return "", err
			}
			s.history.Append(llm.AssistantMessage(resp.Text))
			if err := s.sm.Transition(StateAwaitingUserInput, "reply presented"); err != nil {
				return "", err
			}
			return resp.Text, nil
		}
		if *rounds >= s.cfg.MaxToolRounds {
			log.Warn("tool_rounds_exceeded", "limit", s.cfg.MaxToolRounds)
			return "", roundsError(s.cfg.MaxToolRounds)
		}
		*rounds++
		if err := s.sm.Transition(StateDispatchingTools, "tool calls requested"); err != nil {
			return "", err
		}
		s.dispatchAll(ctx, log, resp)
		if err := s.sm.Transition(StateAwaitingModelResponse, "tool results appended"); err != nil {
			return "", err
		}
	}
}

func (s *Session) generate(ctx context.Context, log *slog.Logger, tags map[string]string) (llm.Response, error) {
	input := llm.Context{
		Messages:   s.history.Window(s.cfg.MaxHistory),
		Tools:      s.dispatcher.Tools(),
		ToolChoice: llm.ToolChoiceAuto,
	}
	metrics.Emit(s.obs, metrics.EventLLMRequest, float64(len(input.Messages)), tags, nil)
	log.Debug("llm_request", "provider", s.adapter.Name(), "messages", len(input.Messages), "tools", len(input.Tools))
	start := time.Now()
	resp, err := s.adapter.Generate(ctx, input)
	elapsed := float64(time.Since(start).Milliseconds())
	if err != nil {
		err = modelError(err)
		metrics.Emit(s.obs, metrics.EventLLMError, elapsed, tags,
			map[string]any{"reason": string(errorsx.Reason(err))})
		log.Error("llm_generate_failed", "error", err, "reason", errorsx.Reason(err))
		return llm.Response{}, err
	}
	metrics.Emit(s.obs, metrics.EventLLMResponse, elapsed, tags, map[string]any{
		"tool_calls":    len(resp.ToolCalls),
		"finish_reason": resp.FinishReason,
		"total_tokens":  resp.Usage.TotalTokens,
	})
	log.Debug("llm_response", "tool_calls", len(resp.ToolCalls), "finish_reason", resp.FinishReason)
	return resp, nil
}

func (s *Session) dispatchAll(ctx context.Context, log *slog.Logger, resp llm.Response) {
	calls := make([]llm.ToolCall, len(resp.ToolCalls))
	copy(calls, resp.ToolCalls)
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
		}
	}
	s.history.Append(llm.AssistantToolCalls(resp.Text, calls))
	for _, call := range calls {
		out := s.dispatcher.Dispatch(ctx, call)
		if out.Err != nil {
			log.Warn("tool_dispatch_failed", "tool", call.Name, "call_id", call.ID, "error", out.Err)
		}
		s.history.Append(llm.ToolResult(call.ID, call.Name, out.Content))
	}
}

// Run reads lines from io until an exit keyword, end of input or a fatal
// error. Failed turns are handled according to Config.OnModelError.
func (s *Session) Run(ctx context.Context, lines LineIO) error {
	s.log.Info("session_started", "provider", s.adapter.Name(), "tools", len(s.dispatcher.Tools()))
	for {
		if err := ctx.Err(); err != nil {
			s.terminate("context done")
			return err
		}
		line, err := lines.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			s.terminate("end of input")
			return nil
		}
		if err != nil {
			s.terminate("read failed")
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errorsx.Wrapf(err, errorsx.ReasonTransportRead, "read input")
		}
		if IsExit(line) {
			s.terminate("exit keyword")
			return nil
		}
		if line == "" {
			continue
		}
		reply, err := s.Turn(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				s.terminate("context done")
				return ctx.Err()
			}
			if s.sm.State() == StateTerminated {
				return nil
			}
			if s.cfg.OnModelError == PolicyAbort {
				s.terminate("turn failed")
				return err
			}
			reply = apology(err)
		}
		if err := lines.WriteReply(reply); err != nil {
			s.terminate("write failed")
			return errorsx.Wrapf(err, errorsx.ReasonTransportSend, "write reply")
		}
	}
}

// Close terminates the session. Further turns return ErrSessionClosed.
func (s *Session) Close() {
	s.terminate("closed")
}

func (s *Session) terminate(reason string) {
	if s.sm.State() == StateTerminated {
		return
	}
	if err := s.sm.Transition(StateTerminated, reason); err != nil {
		s.log.Warn("terminate_failed", "error", err)
		return
	}
	s.log.Info("session_ended", "reason", reason, "messages", s.history.Len())
}

func apology(err error) string {
	if errors.Is(err, ErrToolRoundsExceeded) {
		return ToolRoundsReply
	}
	return ModelErrorReply
}

func (s *Session) onStateChange(ev StateChange) {
	s.log.Debug("state_changed", "from", ev.FromState.String(), "to", ev.ToState.String(), "reason", ev.Reason)
	metrics.Emit(s.obs, metrics.EventStateChange, 0, map[string]string{
		"session_id": s.id,
		"from":       ev.FromState.String(),
		"to":         ev.ToState.String(),
	}, map[string]any{"reason": ev.Reason})
}

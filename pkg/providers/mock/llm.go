// Package mock provides a scripted model for tests and offline demos.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/harunnryd/hearth/pkg/llm"
)

// ErrScriptExhausted is returned once every scripted step has been used and
// no fallback text is configured.
var ErrScriptExhausted = errors.New("mock llm: script exhausted")

// Step is one scripted model turn: an error, a set of tool calls or a text
// reply, checked in that order.
type Step struct {
	Text      string
	ToolCalls []llm.ToolCall
	Err       error
}

type LLMConfig struct {
	Script []Step
	// FallbackText answers every request after the script runs out.
	FallbackText string
}

// LLMAdapter replays its script and records every request it receives.
type LLMAdapter struct {
	mu       sync.Mutex
	cfg      LLMConfig
	next     int
	requests []llm.Context
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = append(a.requests, snapshot(input))
	if a.next >= len(a.cfg.Script) {
		if a.cfg.FallbackText == "" {
			return llm.Response{}, ErrScriptExhausted
		}
		return llm.Response{Text: a.cfg.FallbackText, FinishReason: "stop"}, nil
	}
	step := a.cfg.Script[a.next]
	a.next++
	if step.Err != nil {
		return llm.Response{}, step.Err
	}
	if len(step.ToolCalls) > 0 {
		return llm.Response{Text: step.Text, ToolCalls: step.ToolCalls, FinishReason: "tool_calls"}, nil
	}
	return llm.Response{Text: step.Text, FinishReason: "stop"}, nil
}

// Requests returns every context passed to Generate, in order.
func (a *LLMAdapter) Requests() []llm.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]llm.Context(nil), a.requests...)
}

// Remaining reports how many scripted steps are unused.
func (a *LLMAdapter) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cfg.Script) - a.next
}

func (a *LLMAdapter) MapTools(tools []llm.Tool) (any, error) {
	return tools, nil
}

func (a *LLMAdapter) ToProviderFormat(ctx llm.Context) (any, error) {
	return snapshot(ctx), nil
}

func (a *LLMAdapter) FromProviderFormat(raw any) (llm.Response, error) {
	resp, ok := raw.(llm.Response)
	if !ok {
		return llm.Response{}, errors.New("mock llm: unsupported raw response")
	}
	return resp, nil
}

func snapshot(in llm.Context) llm.Context {
	return llm.Context{
		Messages:   append([]llm.Message(nil), in.Messages...),
		Tools:      append([]llm.Tool(nil), in.Tools...),
		ToolChoice: in.ToolChoice,
	}
}

var _ llm.LLMAdapter = (*LLMAdapter)(nil)

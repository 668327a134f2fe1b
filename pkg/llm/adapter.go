// Package llm defines the contract between the conversation loop and a hosted
// chat-completion model: messages, tool declarations, tool calls and replies.
package llm

import (
	"context"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolChoice tells the model whether it may call tools.
type ToolChoice string

const (
	ToolChoiceAuto ToolChoice = "auto"
	ToolChoiceNone ToolChoice = "none"
)

// ToolParam declares one argument of a tool. Type is a JSON-schema primitive
// (string, integer, number, boolean).
type ToolParam struct {
	Name        string
	Type        string
	Description string
	Required    bool
	Enum        []string
}

// Tool is a function the model may call.
type Tool struct {
	Name        string
	Description string
	Params      []ToolParam
}

// Schema renders the parameters as a JSON-schema object.
func (t Tool) Schema() map[string]any {
	props := make(map[string]any, len(t.Params))
	required := make([]string, 0, len(t.Params))
	for _, p := range t.Params {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			prop["enum"] = append([]string(nil), p.Enum...)
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// ToolCall is a model request to invoke a tool. RawArguments keeps the
// undecoded argument string when the provider sent one.
type ToolCall struct {
	ID           string
	Name         string
	Arguments    map[string]any
	RawArguments string
}

// Message is one entry of the conversation history.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

func SystemMessage(text string) Message    { return Message{Role: RoleSystem, Content: text} }
func UserMessage(text string) Message      { return Message{Role: RoleUser, Content: text} }
func AssistantMessage(text string) Message { return Message{Role: RoleAssistant, Content: text} }

// AssistantToolCalls records the model's request to call tools.
func AssistantToolCalls(text string, calls []ToolCall) Message {
	return Message{Role: RoleAssistant, Content: text, ToolCalls: append([]ToolCall(nil), calls...)}
}

// ToolResult is the history entry answering one tool call.
func ToolResult(callID, name, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Name: name, Content: content}
}

// Context is everything sent to the model for one completion.
type Context struct {
	Messages   []Message
	Tools      []Tool
	ToolChoice ToolChoice
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is either a plain text reply or a list of tool calls.
type Response struct {
	Text         string
	Usage        Usage
	FinishReason string
	ToolCalls    []ToolCall
}

// HasToolCalls reports whether the model asked for tool invocations.
func (r Response) HasToolCalls() bool { return len(r.ToolCalls) > 0 }

// IsEmpty is true for a reply with neither text nor tool calls.
func (r Response) IsEmpty() bool {
	return !r.HasToolCalls() && strings.TrimSpace(r.Text) == ""
}

type LLMAdapter interface {
	Generate(ctx context.Context, input Context) (Response, error)
	MapTools(tools []Tool) (providerTools any, err error)
	ToProviderFormat(ctx Context) (any, error)
	FromProviderFormat(raw any) (Response, error)
	Name() string
}

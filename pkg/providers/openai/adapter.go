// Package openai talks to the chat-completions API, either on OpenAI itself
// or on an Azure OpenAI deployment.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/hearth/pkg/llm"
	"github.com/harunnryd/hearth/pkg/resilience"
)

type Flavor string

const (
	FlavorOpenAI Flavor = "openai"
	FlavorAzure  Flavor = "azure"

	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultAPIVersion = "2024-06-01"
)

// Config selects the endpoint and credentials. Model is used by the openai
// flavor, Deployment and APIVersion by the azure flavor.
type Config struct {
	Flavor      Flavor
	APIKey      string
	Model       string
	BaseURL     string
	Deployment  string
	APIVersion  string
	Timeout     time.Duration
	Temperature *float64
}

// APIError is a non-retryable error response from the service.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

type Adapter struct {
	cfg    Config
	Client *http.Client
}

// NewAdapter builds an adapter for api.openai.com.
func NewAdapter(apiKey, model string) *Adapter {
	a, _ := New(Config{Flavor: FlavorOpenAI, APIKey: apiKey, Model: model})
	return a
}

// NewAzureAdapter builds an adapter for an Azure OpenAI deployment.
func NewAzureAdapter(endpoint, apiKey, deployment, apiVersion string) *Adapter {
	a, _ := New(Config{Flavor: FlavorAzure, BaseURL: endpoint, APIKey: apiKey, Deployment: deployment, APIVersion: apiVersion})
	return a
}

// New validates cfg and fills defaults. The returned adapter is usable even
// when an error is reported, so constructors above can ignore it.
func New(cfg Config) (*Adapter, error) {
	if cfg.Flavor == "" {
		cfg.Flavor = FlavorOpenAI
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	var err error
	switch cfg.Flavor {
	case FlavorOpenAI:
		if cfg.BaseURL == "" {
			cfg.BaseURL = DefaultBaseURL
		}
		if cfg.Model == "" {
			err = errors.New("openai: model is required")
		}
	case FlavorAzure:
		if cfg.APIVersion == "" {
			cfg.APIVersion = DefaultAPIVersion
		}
		switch {
		case cfg.BaseURL == "":
			err = errors.New("azure openai: endpoint is required")
		case cfg.Deployment == "":
			err = errors.New("azure openai: deployment is required")
		}
	default:
		err = fmt.Errorf("openai: unknown flavor %q", cfg.Flavor)
	}
	if err == nil && cfg.APIKey == "" {
		err = fmt.Errorf("%s: api key is required", cfg.Flavor)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Adapter{cfg: cfg, Client: &http.Client{Timeout: cfg.Timeout}}, err
}

func (a *Adapter) Name() string {
	if a.cfg.Flavor == FlavorAzure {
		return "azure_openai"
	}
	return "openai"
}

func (a *Adapter) MapTools(tools []llm.Tool) (any, error) {
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Schema(),
			},
		})
	}
	return out, nil
}

// ToProviderFormat builds the request body.
func (a *Adapter) ToProviderFormat(ctx llm.Context) (any, error) {
	messages, err := encodeMessages(ctx.Messages)
	if err != nil {
		return nil, err
	}
	req := map[string]any{"messages": messages}
	if a.cfg.Flavor == FlavorOpenAI {
		req["model"] = a.cfg.Model
	}
	if a.cfg.Temperature != nil {
		req["temperature"] = *a.cfg.Temperature
	}
	if len(ctx.Tools) > 0 {
		tools, err := a.MapTools(ctx.Tools)
		if err != nil {
			return nil, err
		}
		req["tools"] = tools
		choice := ctx.ToolChoice
		if choice == "" {
			choice = llm.ToolChoiceAuto
		}
		req["tool_choice"] = string(choice)
	}
	return req, nil
}

func encodeMessages(msgs []llm.Message) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		item := map[string]any{"role": string(m.Role)}
		switch {
		case m.Role == llm.RoleTool:
			item["tool_call_id"] = m.ToolCallID
			item["content"] = m.Content
		case m.Role == llm.RoleAssistant && len(m.ToolCalls) > 0:
			calls := make([]map[string]any, 0, len(m.ToolCalls))
			for _, c := range m.ToolCalls {
				args, err := encodeArguments(c)
				if err != nil {
					return nil, err
				}
				calls = append(calls, map[string]any{
					"id":   c.ID,
					"type": "function",
					"function": map[string]any{
						"name":      c.Name,
						"arguments": args,
					},
				})
			}
			item["tool_calls"] = calls
			if m.Content != "" {
				item["content"] = m.Content
			} else {
				item["content"] = nil
			}
		default:
			item["content"] = m.Content
		}
		out = append(out, item)
	}
	return out, nil
}

func encodeArguments(c llm.ToolCall) (string, error) {
	if c.RawArguments != "" {
		return c.RawArguments, nil
	}
	if c.Arguments == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c.Arguments)
	if err != nil {
		return "", fmt.Errorf("encode arguments of %s: %w", c.Name, err)
	}
	return string(b), nil
}

func (a *Adapter) FromProviderFormat(raw any) (llm.Response, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return llm.Response{}, errors.New("invalid response")
	}
	choices, _ := m["choices"].([]any)
	if len(choices) == 0 {
		return llm.Response{}, errors.New("no choices")
	}
	first, _ := choices[0].(map[string]any)
	msg, _ := first["message"].(map[string]any)
	content, _ := msg["content"].(string)
	resp := llm.Response{Text: content}
	if reason, _ := first["finish_reason"].(string); reason != "" {
		resp.FinishReason = reason
	}
	if tc, ok := msg["tool_calls"].([]any); ok {
		for _, item := range tc {
			call, _ := item.(map[string]any)
			fn, _ := call["function"].(map[string]any)
			argsRaw, _ := fn["arguments"].(string)
			tool := llm.ToolCall{
				ID:           stringValue(call["id"]),
				Name:         stringValue(fn["name"]),
				RawArguments: argsRaw,
			}
			args := map[string]any{}
			if strings.TrimSpace(argsRaw) == "" {
				tool.Arguments = args
			} else if err := json.Unmarshal([]byte(argsRaw), &args); err == nil {
				tool.Arguments = args
			}
			resp.ToolCalls = append(resp.ToolCalls, tool)
		}
	}
	if usage, ok := m["usage"].(map[string]any); ok {
		resp.Usage = llm.Usage{
			PromptTokens:     intValue(usage["prompt_tokens"]),
			CompletionTokens: intValue(usage["completion_tokens"]),
			TotalTokens:      intValue(usage["total_tokens"]),
		}
	}
	return resp, nil
}

func (a *Adapter) Generate(ctx context.Context, input llm.Context) (llm.Response, error) {
	payload, err := a.ToProviderFormat(input)
	if err != nil {
		return llm.Response{}, err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return llm.Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(), bytes.NewReader(b))
	if err != nil {
		return llm.Response{}, err
	}
	a.applyHeaders(req)
	resp, err := a.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return llm.Response{}, ctx.Err()
		}
		return llm.Response{}, resilience.UnavailableError{Provider: a.Name(), Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.Response{}, a.statusError(resp)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return llm.Response{}, fmt.Errorf("%s: decode response: %w", a.Name(), err)
	}
	return a.FromProviderFormat(out)
}

func (a *Adapter) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := errorMessage(body)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return resilience.RateLimitError{
			Provider:   a.Name(),
			Message:    msg,
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
		}
	case resp.StatusCode >= 500:
		return resilience.UnavailableError{Provider: a.Name(), StatusCode: resp.StatusCode, Message: msg}
	default:
		return &APIError{Provider: a.Name(), StatusCode: resp.StatusCode, Message: msg}
	}
}

func (a *Adapter) endpoint() string {
	if a.cfg.Flavor == FlavorAzure {
		q := url.Values{"api-version": {a.cfg.APIVersion}}
		return a.cfg.BaseURL + "/openai/deployments/" + url.PathEscape(a.cfg.Deployment) + "/chat/completions?" + q.Encode()
	}
	return a.cfg.BaseURL + "/chat/completions"
}

func (a *Adapter) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.Flavor == FlavorAzure {
		req.Header.Set("api-key", a.cfg.APIKey)
		return
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
}

func (a *Adapter) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return http.DefaultClient
}

func errorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return payload.Error.Message
	}
	return strings.TrimSpace(string(body))
}

func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func intValue(v any) int {
	f, _ := v.(float64)
	return int(f)
}

var _ llm.LLMAdapter = (*Adapter)(nil)

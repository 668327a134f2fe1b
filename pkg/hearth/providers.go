package hearth

import (
	"fmt"
	"time"

	"github.com/harunnryd/hearth/pkg/configutil"
	"github.com/harunnryd/hearth/pkg/llm"
	"github.com/harunnryd/hearth/pkg/providers/mock"
	"github.com/harunnryd/hearth/pkg/providers/openai"
	"github.com/harunnryd/hearth/pkg/transports"
	"github.com/harunnryd/hearth/pkg/transports/console"
	mocktransport "github.com/harunnryd/hearth/pkg/transports/mock"
	"github.com/harunnryd/hearth/pkg/transports/websocket"
)

const (
	ProviderAzure  = "azure"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"

	TransportConsole   = "console"
	TransportWebsocket = "websocket"
	TransportMock      = "mock"
)

type openAISettings struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	BaseURL     string   `mapstructure:"base_url"`
	TimeoutMS   int      `mapstructure:"timeout_ms"`
	Temperature *float64 `mapstructure:"temperature"`
}

var openAISchema = configutil.Schema{
	Required:   []string{"api_key", "model"},
	Optional:   []string{"base_url", "timeout_ms", "temperature"},
	AllowEmpty: true,
}

type azureSettings struct {
	Endpoint    string   `mapstructure:"endpoint"`
	APIKey      string   `mapstructure:"api_key"`
	Deployment  string   `mapstructure:"deployment"`
	APIVersion  string   `mapstructure:"api_version"`
	TimeoutMS   int      `mapstructure:"timeout_ms"`
	Temperature *float64 `mapstructure:"temperature"`
}

var azureSchema = configutil.Schema{
	Required:   []string{"endpoint", "api_key", "deployment"},
	Optional:   []string{"api_version", "timeout_ms", "temperature"},
	AllowEmpty: true,
}

type mockToolCall struct {
	ID        string         `mapstructure:"id"`
	Name      string         `mapstructure:"name"`
	Arguments map[string]any `mapstructure:"arguments"`
}

type mockStep struct {
	Text      string         `mapstructure:"text"`
	ToolCalls []mockToolCall `mapstructure:"tool_calls"`
}

type mockSettings struct {
	Script       []mockStep `mapstructure:"script"`
	FallbackText string     `mapstructure:"fallback_text"`
}

var mockSchema = configutil.Schema{Optional: []string{"script", "fallback_text"}}

type mockTransportSettings struct {
	Lines []string `mapstructure:"lines"`
}

// DefaultProviders registers every built-in model and transport.
func DefaultProviders() *ProviderRegistry {
	r := NewProviderRegistry()
	r.RegisterLLM(ProviderOpenAI, newOpenAI)
	r.RegisterLLM(ProviderAzure, newAzure)
	r.RegisterLLM(ProviderMock, newMockLLM)
	r.RegisterTransport(TransportConsole, newConsole)
	r.RegisterTransport(TransportWebsocket, newWebsocket)
	r.RegisterTransport(TransportMock, newMockTransport)
	return r
}

func decodeVendor(settings map[string]any, schema configutil.Schema, out any, path string) error {
	if err := configutil.ValidateSettings(settings, schema); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := configutil.DecodeSettings(settings, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func newOpenAI(cfg Config) (llm.LLMAdapter, error) {
	var s openAISettings
	if err := decodeVendor(cfg.Vendors.LLM.Settings, openAISchema, &s, "vendors.llm.settings"); err != nil {
		return nil, err
	}
	a, err := openai.New(openai.Config{
		Flavor:      openai.FlavorOpenAI,
		APIKey:      s.APIKey,
		Model:       s.Model,
		BaseURL:     s.BaseURL,
		Timeout:     time.Duration(s.TimeoutMS) * time.Millisecond,
		Temperature: s.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newAzure(cfg Config) (llm.LLMAdapter, error) {
	var s azureSettings
	if err := decodeVendor(cfg.Vendors.LLM.Settings, azureSchema, &s, "vendors.llm.settings"); err != nil {
		return nil, err
	}
	a, err := openai.New(openai.Config{
		Flavor:      openai.FlavorAzure,
		APIKey:      s.APIKey,
		BaseURL:     s.Endpoint,
		Deployment:  s.Deployment,
		APIVersion:  s.APIVersion,
		Timeout:     time.Duration(s.TimeoutMS) * time.Millisecond,
		Temperature: s.Temperature,
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newMockLLM(cfg Config) (llm.LLMAdapter, error) {
	var s mockSettings
	if err := decodeVendor(cfg.Vendors.LLM.Settings, mockSchema, &s, "vendors.llm.settings"); err != nil {
		return nil, err
	}
	if len(s.Script) == 0 && s.FallbackText == "" {
		s.FallbackText = "I'm running offline and can't reach a model right now."
	}
	steps := make([]mock.Step, 0, len(s.Script))
	for _, st := range s.Script {
		step := mock.Step{Text: st.Text}
		for _, c := range st.ToolCalls {
			step.ToolCalls = append(step.ToolCalls, llm.ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
		}
		steps = append(steps, step)
	}
	return mock.NewLLMAdapter(mock.LLMConfig{Script: steps, FallbackText: s.FallbackText}), nil
}

func newConsole(cfg Config, deps TransportDeps) (transports.LineTransport, error) {
	var c console.Config
	if err := configutil.DecodeSettings(cfg.Transports.Settings, &c); err != nil {
		return nil, fmt.Errorf("transports.settings: %w", err)
	}
	return console.New(c, deps.In, deps.Out), nil
}

func newWebsocket(cfg Config, deps TransportDeps) (transports.LineTransport, error) {
	var c websocket.Config
	if err := configutil.DecodeSettings(cfg.Transports.Settings, &c); err != nil {
		return nil, fmt.Errorf("transports.settings: %w", err)
	}
	return websocket.New(c, websocket.WithObserver(deps.Observer), websocket.WithLogger(deps.Logger)), nil
}

func newMockTransport(cfg Config, deps TransportDeps) (transports.LineTransport, error) {
	var s mockTransportSettings
	if err := configutil.DecodeSettings(cfg.Transports.Settings, &s); err != nil {
		return nil, fmt.Errorf("transports.settings: %w", err)
	}
	return mocktransport.New(s.Lines...), nil
}

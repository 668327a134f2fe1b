package hearth

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/harunnryd/hearth/pkg/llm"
	"github.com/harunnryd/hearth/pkg/metrics"
	"github.com/harunnryd/hearth/pkg/transports"
)

// TransportDeps are the process resources a transport may need.
type TransportDeps struct {
	In       io.Reader
	Out      io.Writer
	Observer metrics.Observer
	Logger   *slog.Logger
}

type LLMFactory func(cfg Config) (llm.LLMAdapter, error)
type TransportFactory func(cfg Config, deps TransportDeps) (transports.LineTransport, error)

type ProviderRegistry struct {
	llm       map[string]LLMFactory
	transport map[string]TransportFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		llm:       make(map[string]LLMFactory),
		transport: make(map[string]TransportFactory),
	}
}

func (r *ProviderRegistry) RegisterLLM(name string, factory LLMFactory) {
	r.llm[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterTransport(name string, factory TransportFactory) {
	r.transport[providerKey(name)] = factory
}

func (r *ProviderRegistry) BuildLLM(provider string, cfg Config) (llm.LLMAdapter, error) {
	fn := r.llm[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", provider)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildTransport(provider string, cfg Config, deps TransportDeps) (transports.LineTransport, error) {
	fn := r.transport[providerKey(provider)]
	if fn == nil {
		return nil, fmt.Errorf("transport provider not registered: %s", provider)
	}
	return fn(cfg, deps)
}

// LLMProviders lists registered model providers, sorted.
func (r *ProviderRegistry) LLMProviders() []string {
	return sortedKeys(r.llm)
}

func (r *ProviderRegistry) TransportProviders() []string {
	return sortedKeys(r.transport)
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

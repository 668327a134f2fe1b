package llm

import (
	"context"
	"time"

	"github.com/harunnryd/hearth/pkg/errorsx"
	"github.com/harunnryd/hearth/pkg/metrics"
	"github.com/harunnryd/hearth/pkg/resilience"
)

// CircuitBreakerAdapter refuses to call the wrapped model while its breaker
// is open. Only rate limits and unavailability count as failures.
type CircuitBreakerAdapter struct {
	inner   LLMAdapter
	breaker *resilience.CircuitBreaker
	obs     metrics.Observer
}

func NewCircuitBreakerAdapter(inner LLMAdapter, breaker *resilience.CircuitBreaker) *CircuitBreakerAdapter {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	return &CircuitBreakerAdapter{inner: inner, breaker: breaker}
}

func (a *CircuitBreakerAdapter) Name() string { return a.inner.Name() }

func (a *CircuitBreakerAdapter) SetObserver(obs metrics.Observer) { a.obs = obs }

func (a *CircuitBreakerAdapter) Generate(ctx context.Context, input Context) (Response, error) {
	if !a.breaker.Allow() {
		a.emit(metrics.EventBreakerDenied, nil)
		err := resilience.RateLimitError{Provider: a.Name(), Message: "circuit open: " + a.Name() + " is degraded"}
		return Response{}, errorsx.Wrap(err, errorsx.ReasonLLMCircuitOpen)
	}
	resp, err := a.inner.Generate(ctx, input)
	if err != nil {
		if resilience.IsRateLimit(err) {
			a.emit(metrics.EventRateLimit, nil)
		}
		if a.breaker.OnError(err) {
			a.emit(metrics.EventBreakerOpen, map[string]any{"error": err.Error()})
		}
		return Response{}, err
	}
	if a.breaker.OnSuccess() {
		a.emit(metrics.EventBreakerClose, nil)
	}
	return resp, nil
}

func (a *CircuitBreakerAdapter) MapTools(tools []Tool) (any, error) { return a.inner.MapTools(tools) }

func (a *CircuitBreakerAdapter) ToProviderFormat(ctx Context) (any, error) {
	return a.inner.ToProviderFormat(ctx)
}

func (a *CircuitBreakerAdapter) FromProviderFormat(raw any) (Response, error) {
	return a.inner.FromProviderFormat(raw)
}

func (a *CircuitBreakerAdapter) emit(name string, fields map[string]any) {
	metrics.Emit(a.obs, name, 0, map[string]string{
		"provider":  a.inner.Name(),
		"component": "llm",
	}, fields)
}

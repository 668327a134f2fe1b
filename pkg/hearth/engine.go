// Package hearth assembles the home chat agent from configuration: device
// registry, tool catalog, dispatcher, model provider, transport and the
// conversation session, all run under one lifecycle.
package hearth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/hearth/pkg/chat"
	"github.com/harunnryd/hearth/pkg/devices"
	"github.com/harunnryd/hearth/pkg/llm"
	"github.com/harunnryd/hearth/pkg/logging"
	"github.com/harunnryd/hearth/pkg/metrics"
	"github.com/harunnryd/hearth/pkg/observers"
	"github.com/harunnryd/hearth/pkg/redact"
	"github.com/harunnryd/hearth/pkg/resilience"
	"github.com/harunnryd/hearth/pkg/runner"
	"github.com/harunnryd/hearth/pkg/tools"
	"github.com/harunnryd/hearth/pkg/transports"
	"golang.org/x/sync/errgroup"
)

type Engine struct {
	cfg        Config
	log        *slog.Logger
	registry   *devices.Registry
	catalog    *tools.Catalog
	dispatcher *tools.Dispatcher
	adapter    llm.LLMAdapter
	transport  transports.LineTransport
	session    *chat.Session
	runner     *runner.LifecycleRunner
	asyncObs   *metrics.AsyncObserver
	events     *metrics.JSONLObserver
	closeOnce  sync.Once
}

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	// Adapter and Transport override the configured providers.
	Adapter   llm.LLMAdapter
	Transport transports.LineTransport
	Registry  *devices.Registry
	Observers []metrics.Observer
	// LogWriter receives logs; stderr when nil.
	LogWriter io.Writer
	// Stdin and Stdout back the console transport.
	Stdin  io.Reader
	Stdout io.Writer
	// BannerWriter receives the start-up banner; nil prints none.
	BannerWriter io.Writer
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	base := logging.InitLogger(logging.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat}, opts.LogWriter)
	redact.SetEnabled(cfg.Privacy.RedactPII)
	log := logging.NewComponentLogger(base, "engine")

	log.Info("hearth_init",
		"environment", cfg.Environment,
		"llm_provider", cfg.Vendors.LLM.Provider,
		"transport", cfg.Transports.Provider,
		"on_model_error", cfg.Chat.OnModelError,
	)

	e := &Engine{cfg: cfg, log: log}

	obsList := []metrics.Observer{
		observers.NewLatencyObserver(logging.NewComponentLogger(base, "latency")),
		observers.NewLoggerObserver(logging.NewComponentLogger(base, "metrics")),
	}
	if path := strings.TrimSpace(cfg.Observability.EventsFile); path != "" {
		events, err := metrics.OpenJSONLFile(path)
		if err != nil {
			return nil, fmt.Errorf("open events file: %w", err)
		}
		e.events = events
		obsList = append(obsList, events)
	}
	obsList = append(obsList, opts.Observers...)
	e.asyncObs = metrics.NewAsyncObserver(observers.NewMultiObserver(obsList...), 2048)

	e.registry = opts.Registry
	if e.registry == nil {
		e.registry = devices.NewRegistry(cfg.RegistryOptions()...)
	}
	catalog, err := tools.HomeCatalog(e.registry)
	if err != nil {
		return nil, e.fail(fmt.Errorf("build catalog: %w", err))
	}
	e.catalog = catalog
	e.dispatcher = tools.NewDispatcher(catalog,
		tools.WithObserver(e.asyncObs),
		tools.WithLogger(logging.NewComponentLogger(base, "tools")),
	)

	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviders()
	}

	adapter := opts.Adapter
	if adapter == nil {
		adapter, err = providers.BuildLLM(cfg.Vendors.LLM.Provider, cfg)
		if err != nil {
			return nil, e.fail(fmt.Errorf("build llm: %w", err))
		}
	}
	e.adapter = e.wrapAdapter(adapter)

	e.transport = opts.Transport
	if e.transport == nil {
		e.transport, err = providers.BuildTransport(cfg.Transports.Provider, cfg, TransportDeps{
			In:       opts.Stdin,
			Out:      opts.Stdout,
			Observer: e.asyncObs,
			Logger:   logging.NewComponentLogger(base, "transport"),
		})
		if err != nil {
			return nil, e.fail(fmt.Errorf("build transport: %w", err))
		}
	}

	e.session = chat.NewSession(e.adapter, e.dispatcher, cfg.SessionConfig(),
		chat.WithObserver(e.asyncObs),
		chat.WithLogger(logging.NewComponentLogger(base, "chat")),
	)

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{
				"message", "Hearth Ready",
				"session_id", e.session.ID(),
				"tools", e.catalog.Len(),
				"llm", e.adapter.Name(),
				"transport", e.transport.Name(),
			}
			if rr, ok := e.transport.(transports.ReadyReporter); ok {
				for k, v := range rr.ReadyFields() {
					fields = append(fields, k, v)
				}
			}
			e.log.Info("engine_ready", fields...)
		},
		OnStop: func() {
			e.closeObservers()
			e.log.Info("shutdown",
				"goroutines", runtime.NumGoroutine(),
				"messages", e.session.History().Len(),
				"dropped_events", e.asyncObs.Dropped(),
			)
		},
	}
	drainer := runner.DrainerFunc(func() error {
		e.session.Close()
		return e.transport.Stop()
	})
	e.runner = runner.NewLifecycleRunner(drainer, hooks, 10*time.Second,
		runner.WithBanner(opts.BannerWriter, "HEARTH"))
	return e, nil
}

// wrapAdapter puts retries inside the breaker so one exhausted retry loop
// counts as a single failure.
func (e *Engine) wrapAdapter(inner llm.LLMAdapter) llm.LLMAdapter {
	rc := e.cfg.Resilience
	retried := llm.NewRetryAdapter(inner, llm.RetryConfig{
		MaxAttempts: rc.RetryAttempts,
		BaseDelay:   time.Duration(rc.RetryBaseDelayMS) * time.Millisecond,
	})
	breaker := llm.NewCircuitBreakerAdapter(retried,
		resilience.NewCircuitBreaker(rc.BreakerThreshold, time.Duration(rc.BreakerCooldownMS)*time.Millisecond))
	breaker.SetObserver(e.asyncObs)
	return breaker
}

// Run starts the transport and drives the session until the user exits,
// input ends or ctx is cancelled. Cancellation is a clean shutdown.
func (e *Engine) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := e.transport.Start(ctx); err != nil {
		_ = e.runner.Stop()
		return fmt.Errorf("start transport: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return e.runner.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		select {
		case <-e.runner.Ready():
		case <-gctx.Done():
			return nil
		}
		return e.session.Run(gctx, e.transport)
	})
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) Stop() error {
	return e.runner.Stop()
}

func (e *Engine) fail(err error) error {
	e.closeObservers()
	return err
}

func (e *Engine) closeObservers() {
	e.closeOnce.Do(func() {
		if e.asyncObs != nil {
			e.asyncObs.Close()
		}
		if e.events != nil {
			if err := e.events.Close(); err != nil {
				e.log.Warn("events_file_close_failed", "error", err)
			}
		}
	})
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Registry() *devices.Registry { return e.registry }

func (e *Engine) Catalog() *tools.Catalog { return e.catalog }

func (e *Engine) Session() *chat.Session { return e.session }

func (e *Engine) Transport() transports.LineTransport { return e.transport }

func (e *Engine) Adapter() llm.LLMAdapter { return e.adapter }

func (e *Engine) State() runner.State { return e.runner.State() }

func (e *Engine) Health() error {
	if e.transport == nil {
		return errors.New("missing transport")
	}
	if e.session.State() == chat.StateTerminated {
		return chat.ErrSessionClosed
	}
	return nil
}

// Package luxgateway wires the Service Registry, downstream Service
// Clients, Pipeline Executor, Plugin Manager, and inbound Authenticator
// into a single entry point: Invoke runs one pipeline invocation end to
// end.
//
// Construct a Gateway with New, then call Invoke for every request the HTTP
// layer (cmd/luxgw) has already parsed and validated into an Accumulator.
package luxgateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/upskiller-xyz/lux-gateway/internal/auth"
	"github.com/upskiller-xyz/lux-gateway/internal/config"
	"github.com/upskiller-xyz/lux-gateway/internal/gwerrors"
	"github.com/upskiller-xyz/lux-gateway/internal/logging"
	"github.com/upskiller-xyz/lux-gateway/internal/metrics"
	"github.com/upskiller-xyz/lux-gateway/internal/pipeline"
	"github.com/upskiller-xyz/lux-gateway/internal/registry"
	"github.com/upskiller-xyz/lux-gateway/internal/serviceclient"
	"github.com/upskiller-xyz/lux-gateway/plugin"
)

var readinessProbeClient = &http.Client{Timeout: 3 * time.Second}

// probeReachable issues a HEAD request to baseURL and reports whether the
// service answered at all — any HTTP status counts as reachable, since the
// probe only asks "is something listening", not "is this endpoint valid".
func probeReachable(ctx context.Context, baseURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := readinessProbeClient.Do(req)
	if err != nil {
		return false, err
	}
	_ = resp.Body.Close()
	return true, nil
}

// EventHookFunc is called asynchronously after a gateway event (invocation
// completed or failed).
type EventHookFunc func(ctx context.Context, subject string, data map[string]interface{})

// Event subject constants used when invoking gateway hooks.
const (
	SubjectInvocationCompleted = "gateway.invocation.completed"
	SubjectInvocationFailed    = "gateway.invocation.failed"
)

// Gateway is the main entry point for running pipeline invocations.
type Gateway struct {
	mu       sync.RWMutex
	config   *config.Config
	registry *registry.Registry
	executor *pipeline.Executor
	plugins  *plugin.Manager
	authn    *auth.Authenticator
	hooks    []EventHookFunc
}

// New builds a Gateway from cfg: the Service Registry, one Service Client
// per downstream service, the Pipeline Executor, the inbound Authenticator,
// and the configured plugin chain.
func New(cfg *config.Config) (*Gateway, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	reg, err := registry.New(cfg.DeploymentMode, cfg.ServiceURLs)
	if err != nil {
		return nil, err
	}

	var tokenSource oauth2.TokenSource
	if cfg.OutboundClientID != "" {
		creds := auth.OutboundCredentials{
			ClientID:     cfg.OutboundClientID,
			ClientSecret: cfg.OutboundClientSecret,
			TokenURL:     cfg.OutboundTokenURL,
			Scopes:       cfg.OutboundScopes,
		}
		tokenSource = creds.TokenSource(context.Background())
	}

	clients := make(map[registry.Name]*serviceclient.Client, len(registry.All))
	for _, name := range registry.All {
		client := serviceclient.New(string(name), serviceclient.Config{}, cfg.OutboundToken)
		if tokenSource != nil {
			client = client.WithTokenSource(tokenSource)
		}
		clients[name] = client
	}

	g := &Gateway{
		config:   cfg,
		registry: reg,
		executor: pipeline.NewExecutor(reg, clients),
		plugins:  plugin.NewManager(),
		authn:    auth.New(cfg),
	}

	if err := g.loadPlugins(); err != nil {
		return nil, err
	}

	return g, nil
}

// Registry exposes the Service Registry, e.g. for the admin API.
func (g *Gateway) Registry() *registry.Registry {
	return g.registry
}

// Authenticator exposes the inbound Authenticator for HTTP middleware.
func (g *Gateway) Authenticator() *auth.Authenticator {
	return g.authn
}

// Config returns a copy of the gateway's configuration.
func (g *Gateway) Config() config.Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return *g.config
}

// AddHook registers an EventHookFunc that is called asynchronously on each
// completed or failed invocation. Multiple hooks may be registered; all are
// invoked for every event.
func (g *Gateway) AddHook(fn EventHookFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, fn)
}

// loadPlugins instantiates and registers the gateway's configured plugin
// chain. A plugin listing more than one stage is instantiated once and the
// same instance registered at every listed stage, so state it carries
// across stages of one invocation (the result cache, the request logger)
// stays consistent.
func (g *Gateway) loadPlugins() error {
	for _, pc := range g.config.Plugins {
		if !pc.Enabled {
			continue
		}
		factory, ok := plugin.GetFactory(pc.Name)
		if !ok {
			return fmt.Errorf("unknown plugin: %s", pc.Name)
		}
		p := factory()
		if err := p.Init(pc.Config); err != nil {
			return fmt.Errorf("plugin %s init failed: %w", pc.Name, err)
		}
		for _, stageName := range pc.Stages {
			if err := g.plugins.Register(plugin.Stage(stageName), p); err != nil {
				return fmt.Errorf("plugin %s register failed: %w", pc.Name, err)
			}
		}
	}
	return nil
}

// Invoke runs one pipeline invocation end to end: before-request plugins,
// the Pipeline Executor's fixed service list for endpoint, and
// after-request plugins. acc is mutated in place and also returned.
func (g *Gateway) Invoke(ctx context.Context, endpoint pipeline.Endpoint, acc *pipeline.Accumulator) (*pipeline.Accumulator, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	pctx := plugin.NewContext(endpoint, acc)
	if g.plugins.HasPlugins() {
		if err := g.plugins.RunBefore(ctx, pctx); err != nil {
			metrics.RequestsTotal.WithLabelValues(string(endpoint), "rejected").Inc()
			if pctx.Reject {
				return nil, gwerrors.New(gwerrors.KindValidation, pctx.Reason)
			}
			return nil, gwerrors.Wrap(gwerrors.KindInternal, "", err)
		}
	}

	if pctx.Skip {
		// A before-stage plugin (the result cache) already populated acc.
		latency := time.Since(start)
		metrics.RequestDuration.WithLabelValues(string(endpoint)).Observe(latency.Seconds())
		metrics.RequestsTotal.WithLabelValues(string(endpoint), "cache_hit").Inc()
		log.Info("pipeline invocation served from cache", "endpoint", endpoint, "latency_ms", latency.Milliseconds())
		g.publishEvent(ctx, SubjectInvocationCompleted, invocationEventData(endpoint, acc, latency, true))
		return acc, nil
	}

	result, err := g.executor.Run(ctx, endpoint, acc)
	latency := time.Since(start)

	if err != nil {
		pctx.Error = err
		g.plugins.RunOnError(ctx, pctx)

		errType := "response_error"
		service := ""
		if gwErr, ok := gwerrors.As(err); ok {
			service = gwErr.Service
			switch gwErr.Kind {
			case gwerrors.KindTimeout:
				errType = "timeout"
			case gwerrors.KindConnection:
				errType = "connection"
			}
		}
		metrics.RequestsTotal.WithLabelValues(string(endpoint), "error").Inc()
		metrics.DownstreamErrors.WithLabelValues(service, errType).Inc()

		log.Error("pipeline invocation failed",
			"endpoint", endpoint,
			"latency_ms", latency.Milliseconds(),
			"error", err.Error(),
		)

		g.publishEvent(ctx, SubjectInvocationFailed, map[string]interface{}{
			"trace_id":   logging.TraceIDFromContext(ctx),
			"endpoint":   string(endpoint),
			"error":      err.Error(),
			"latency_ms": latency.Milliseconds(),
			"timestamp":  time.Now(),
		})
		return nil, err
	}

	if g.plugins.HasPlugins() {
		_ = g.plugins.RunAfter(ctx, pctx)
	}

	metrics.RequestDuration.WithLabelValues(string(endpoint)).Observe(latency.Seconds())
	metrics.RequestsTotal.WithLabelValues(string(endpoint), "success").Inc()
	metrics.WindowsProcessed.WithLabelValues(string(endpoint)).Add(float64(len(result.Windows)))

	log.Info("pipeline invocation completed",
		"endpoint", endpoint,
		"latency_ms", latency.Milliseconds(),
		"windows", len(result.Windows),
	)

	g.publishEvent(ctx, SubjectInvocationCompleted, invocationEventData(endpoint, result, latency, false))

	return result, nil
}

func invocationEventData(endpoint pipeline.Endpoint, acc *pipeline.Accumulator, latency time.Duration, cacheHit bool) map[string]interface{} {
	return map[string]interface{}{
		"endpoint":   string(endpoint),
		"windows":    len(acc.Windows),
		"cache_hit":  cacheHit,
		"latency_ms": latency.Milliseconds(),
		"timestamp":  time.Now(),
	}
}

// publishEvent calls all registered hooks asynchronously.
func (g *Gateway) publishEvent(ctx context.Context, subject string, data map[string]interface{}) {
	g.mu.RLock()
	hooks := make([]EventHookFunc, len(g.hooks))
	copy(hooks, g.hooks)
	g.mu.RUnlock()

	for _, h := range hooks {
		fn := h
		go fn(ctx, subject, data)
	}
}

// ReadinessResult is one downstream service's readiness outcome.
type ReadinessResult struct {
	Service   registry.Name
	BaseURL   string
	Reachable bool
	Error     string
}

// Ready fans out a lightweight reachability probe (HTTP HEAD to each
// service's base URL) to every registered downstream service concurrently,
// per the supplemented "GET / readiness" feature: a single request answers
// whether the gateway's full dependency set is up, rather than requiring an
// operator to probe each service individually.
func (g *Gateway) Ready(ctx context.Context) []ReadinessResult {
	names := registry.SortedNames()
	results := make([]ReadinessResult, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, name registry.Name) {
			defer wg.Done()
			baseURL, err := g.registry.BaseURL(name)
			if err != nil {
				results[i] = ReadinessResult{Service: name, Error: err.Error()}
				return
			}
			reachable, probeErr := probeReachable(ctx, baseURL)
			r := ReadinessResult{Service: name, BaseURL: baseURL, Reachable: reachable}
			if probeErr != nil {
				r.Error = probeErr.Error()
			}
			results[i] = r
		}(i, name)
	}
	wg.Wait()

	return results
}

// Close releases gateway resources. No-op today; kept for symmetry with the
// Registry/Executor lifecycle and as a shutdown hook for future pooled
// resources (e.g. a persistent requestlog writer owned by the gateway).
func (g *Gateway) Close() error {
	return nil
}

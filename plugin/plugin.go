// Package plugin defines the Plugin interface and the lifecycle stages
// used to hook into the gateway's pipeline invocation.
//
// Plugins are registered by name via RegisterFactory and loaded by the
// gateway at startup. The plugin.Context carries the endpoint and
// accumulator through each stage, and plugins may reject or skip an
// invocation before it reaches the Pipeline Executor.
//
// Built-in plugins live in the internal/plugins/* packages and are registered
// by importing them with a blank import (e.g. _ "github.com/upskiller-xyz/lux-gateway/internal/plugins/denylist").
package plugin

import (
	"context"

	"github.com/upskiller-xyz/lux-gateway/internal/pipeline"
)

// Plugin is the interface all plugins must implement.
type Plugin interface {
	Name() string
	Type() PluginType
	Init(config map[string]interface{}) error
	Execute(ctx context.Context, pctx *Context) error
}

// PluginType categorizes plugins.
//nolint:revive // keep for backwards compatibility
type PluginType string

// PluginType constants define the supported lifecycle attachment points.
const (
	TypeGuardrail PluginType = "guardrail"
	TypeLogging   PluginType = "logging"
	TypeMetrics   PluginType = "metrics"
	TypeAuth      PluginType = "auth"
	TypeTransform PluginType = "transform"
	TypeRateLimit PluginType = "ratelimit"
)

// Stage defines when a plugin runs in the pipeline invocation lifecycle.
type Stage string

// Stage constants define the execution phases around a pipeline invocation.
const (
	StageBeforeRequest Stage = "before_request"
	StageAfterRequest  Stage = "after_request"
	StageOnError       Stage = "on_error"
)

// Context provides access to the endpoint and accumulator for plugins. Before
// a pipeline invocation, Accumulator is the freshly validated initial state;
// after, it is the final state the Response Shaper will render.
type Context struct {
	Endpoint    pipeline.Endpoint
	Accumulator *pipeline.Accumulator
	Metadata    map[string]interface{}
	Error       error
	Skip        bool
	Reject      bool
	Reason      string
}

// NewContext creates a new plugin context for a pipeline invocation.
func NewContext(endpoint pipeline.Endpoint, acc *pipeline.Accumulator) *Context {
	return &Context{
		Endpoint:    endpoint,
		Accumulator: acc,
		Metadata:    make(map[string]interface{}),
	}
}

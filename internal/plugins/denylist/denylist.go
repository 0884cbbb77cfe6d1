// Package denylist provides a guardrail plugin that rejects pipeline
// invocations whose model_type is on a configured blocked list. Register
// it with a blank import:
//
//	_ "github.com/upskiller-xyz/lux-gateway/internal/plugins/denylist"
package denylist

import (
	"context"
	"strings"

	"github.com/upskiller-xyz/lux-gateway/plugin"
)

func init() {
	plugin.RegisterFactory("model-denylist", func() plugin.Plugin {
		return &ModelDenylist{}
	})
}

// ModelDenylist is a guardrail plugin that blocks requests whose
// accumulator.model_type matches a configured blocked entry.
type ModelDenylist struct {
	blocked       []string
	caseSensitive bool
}

// Name returns the plugin identifier.
func (d *ModelDenylist) Name() string { return "model-denylist" }

// Type returns the plugin lifecycle hook type.
func (d *ModelDenylist) Type() plugin.PluginType { return plugin.TypeGuardrail }

// Init configures the plugin from the provided options map.
func (d *ModelDenylist) Init(config map[string]interface{}) error {
	if names, ok := config["blocked_model_types"]; ok {
		switch list := names.(type) {
		case []interface{}:
			for _, v := range list {
				if s, ok := v.(string); ok {
					d.blocked = append(d.blocked, s)
				}
			}
		case []string:
			d.blocked = append(d.blocked, list...)
		}
	}
	if cs, ok := config["case_sensitive"].(bool); ok {
		d.caseSensitive = cs
	}
	return nil
}

// Execute runs the plugin logic for the current pipeline invocation.
func (d *ModelDenylist) Execute(_ context.Context, pctx *plugin.Context) error {
	if pctx.Accumulator == nil || len(d.blocked) == 0 {
		return nil
	}
	modelType := pctx.Accumulator.ModelType
	if modelType == "" {
		return nil
	}
	check := modelType
	if !d.caseSensitive {
		check = strings.ToLower(check)
	}
	for _, b := range d.blocked {
		candidate := b
		if !d.caseSensitive {
			candidate = strings.ToLower(candidate)
		}
		if check == candidate {
			pctx.Reject = true
			pctx.Reason = "model_type is blocked: " + modelType
			return nil
		}
	}
	return nil
}

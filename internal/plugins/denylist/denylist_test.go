package denylist

import (
	"context"
	"testing"

	"github.com/upskiller-xyz/lux-gateway/internal/pipeline"
	"github.com/upskiller-xyz/lux-gateway/plugin"
)

func TestModelDenylist_BlocksConfiguredModelType(t *testing.T) {
	d := &ModelDenylist{}
	if err := d.Init(map[string]interface{}{"blocked_model_types": []interface{}{"legacy-v1"}}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	acc := pipeline.New()
	acc.ModelType = "legacy-v1"
	pctx := plugin.NewContext(pipeline.EndpointGetReferencePoint, acc)

	if err := d.Execute(context.Background(), pctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !pctx.Reject {
		t.Errorf("expected pctx.Reject to be true for a blocked model type")
	}
}

func TestModelDenylist_AllowsUnlistedModelType(t *testing.T) {
	d := &ModelDenylist{}
	if err := d.Init(map[string]interface{}{"blocked_model_types": []string{"legacy-v1"}}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	acc := pipeline.New()
	acc.ModelType = "daylight-factor"
	pctx := plugin.NewContext(pipeline.EndpointGetReferencePoint, acc)

	if err := d.Execute(context.Background(), pctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pctx.Reject {
		t.Errorf("expected no rejection for an unlisted model type")
	}
}

func TestModelDenylist_CaseSensitivity(t *testing.T) {
	d := &ModelDenylist{}
	if err := d.Init(map[string]interface{}{
		"blocked_model_types": []string{"Legacy-V1"},
		"case_sensitive":      true,
	}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	acc := pipeline.New()
	acc.ModelType = "legacy-v1"
	pctx := plugin.NewContext(pipeline.EndpointGetReferencePoint, acc)

	if err := d.Execute(context.Background(), pctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pctx.Reject {
		t.Errorf("expected no rejection: case-sensitive match should not fire on differing case")
	}
}

func TestModelDenylist_NoBlockedTypesConfiguredNeverRejects(t *testing.T) {
	d := &ModelDenylist{}
	if err := d.Init(map[string]interface{}{}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	acc := pipeline.New()
	acc.ModelType = "anything"
	pctx := plugin.NewContext(pipeline.EndpointGetReferencePoint, acc)

	if err := d.Execute(context.Background(), pctx); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if pctx.Reject {
		t.Errorf("expected no rejection when no blocked list is configured")
	}
}

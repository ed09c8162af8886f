package rules

import (
	"reflect"
	"testing"
)

// --- Catalog ---

func TestNewCatalog_BuiltinPresets(t *testing.T) {
	c := NewCatalog()

	want := []string{PresetAgentScript, PresetStandard, PresetStrict}
	if got := c.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}

	for _, name := range want {
		p, ok := c.Get(name)
		if !ok {
			t.Fatalf("Get(%q) returned ok=false", name)
		}
		if p.Name() != name {
			t.Errorf("preset name = %q, want %q", p.Name(), name)
		}
		if len(p.Rules()) == 0 {
			t.Errorf("preset %q has no rules", name)
		}
		if p.Description() == "" {
			t.Errorf("preset %q has no description", name)
		}
	}
}

func TestCatalog_GetUnknown(t *testing.T) {
	c := NewCatalog()
	if _, ok := c.Get("paranoid"); ok {
		t.Fatal("Get of unknown preset should return ok=false")
	}
}

func TestCatalog_AgentScriptIncludesPrefixRule(t *testing.T) {
	c := NewCatalog()
	agent, _ := c.Get(PresetAgentScript)
	standard, _ := c.Get(PresetStandard)

	if len(agent.Rules()) != len(standard.Rules())+1 {
		t.Fatalf("agent-script should carry one rule more than standard: %d vs %d",
			len(agent.Rules()), len(standard.Rules()))
	}
	found := false
	for _, r := range agent.Rules() {
		if r.Name() == "reserved-prefix" {
			found = true
		}
	}
	if !found {
		t.Fatal("agent-script preset missing the reserved-prefix rule")
	}
}

// --- Preset immutability ---

func TestPreset_RulesReturnsCopy(t *testing.T) {
	p := NewPreset("test", "test preset", NewGlobalAccessRule(), NewPrototypeRule())
	rs := p.Rules()
	rs[0] = nil
	if p.Rules()[0] == nil {
		t.Fatal("mutating the returned slice must not affect the preset")
	}
}

// --- Context ---

func TestContext_FunctionDepth(t *testing.T) {
	ctx := NewContext(nil)
	if d := ctx.FunctionDepth(); d != 0 {
		t.Fatalf("empty context depth = %d, want 0", d)
	}
}

package settings

import "testing"

func TestResolveModulesLayersTemplateThenPortal(t *testing.T) {
	got := ResolveModules(
		Object{"files": true},
		Object{"files": false, "invoices": false},
	)
	if !got["files"] {
		t.Fatal("expected portal files=true to override template")
	}
	if got["invoices"] {
		t.Fatal("expected template invoices=false to apply")
	}
	for _, key := range []string{"timeline", "contracts", "forms", "messages", "ai-assistant"} {
		if !got[key] {
			t.Fatalf("module %q = false, want default true", key)
		}
	}
	if len(got) != len(ModuleKeys) {
		t.Fatalf("ResolveModules() has %d keys, want %d", len(got), len(ModuleKeys))
	}
}

func TestResolveModulesIgnoresUnknownAndNonBoolean(t *testing.T) {
	got := ResolveModules(Object{"files": "no", "billing": false}, nil)
	if !got["files"] {
		t.Fatal("expected non-boolean value to be ignored")
	}
	if _, ok := got["billing"]; ok {
		t.Fatal("expected unknown module key to be dropped")
	}
}

func TestNarrowModules(t *testing.T) {
	got := NarrowModules(map[string]any{"files": false, "billing": true, "forms": "yes"})
	if len(got) != 1 || got["files"] != false {
		t.Fatalf("NarrowModules() = %v", got)
	}
}

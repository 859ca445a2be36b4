package runloop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testSchema() OptionSchema {
	return OptionSchema{
		{Name: "max_rounds", Kind: OptionInt, Default: 10},
		{Name: "refine", Kind: OptionBool, Default: true},
		{Name: "mode", Kind: OptionString, Default: "fast"},
		{Name: "threshold", Kind: OptionFloat, Default: 0.5},
	}
}

func TestOptionSchemaResolve(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		got, err := testSchema().Resolve(nil)
		if err != nil {
			t.Fatal(err)
		}
		if got["max_rounds"] != 10 || got["refine"] != true || got["mode"] != "fast" {
			t.Errorf("defaults not applied: %v", got)
		}
	})

	t.Run("overrides", func(t *testing.T) {
		got, err := testSchema().Resolve(map[string]interface{}{
			"max_rounds": 3,
			"refine":     false,
		})
		if err != nil {
			t.Fatal(err)
		}
		if got["max_rounds"] != 3 || got["refine"] != false {
			t.Errorf("overrides not applied: %v", got)
		}
		if got["mode"] != "fast" {
			t.Errorf("untouched option lost its default: %v", got)
		}
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		_, err := testSchema().Resolve(map[string]interface{}{"bogus": 1})
		if err == nil || !strings.Contains(err.Error(), "unknown option") {
			t.Fatalf("err = %v, want unknown option", err)
		}
	})

	t.Run("json and yaml numbers coerce to int", func(t *testing.T) {
		got, err := testSchema().Resolve(map[string]interface{}{"max_rounds": float64(7)})
		if err != nil {
			t.Fatal(err)
		}
		if got["max_rounds"] != 7 {
			t.Errorf("max_rounds = %v (%T), want 7", got["max_rounds"], got["max_rounds"])
		}
	})

	t.Run("fractional value rejected for int", func(t *testing.T) {
		_, err := testSchema().Resolve(map[string]interface{}{"max_rounds": 1.5})
		if err == nil {
			t.Fatal("expected error for fractional int option")
		}
	})

	t.Run("wrong kind rejected", func(t *testing.T) {
		_, err := testSchema().Resolve(map[string]interface{}{"refine": "yes"})
		if err == nil || !strings.Contains(err.Error(), "expected bool") {
			t.Fatalf("err = %v, want expected bool", err)
		}
	})
}

func TestLoadOptionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	content := `plan-execute:
  max_steps: 5
  refine: false
codeact:
  max_turns: 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := LoadOptionsFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got["plan-execute"]["max_steps"] != 5 {
		t.Errorf("max_steps = %v", got["plan-execute"]["max_steps"])
	}
	if got["plan-execute"]["refine"] != false {
		t.Errorf("refine = %v", got["plan-execute"]["refine"])
	}
	if got["codeact"]["max_turns"] != 8 {
		t.Errorf("max_turns = %v", got["codeact"]["max_turns"])
	}

	if _, err := LoadOptionsFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

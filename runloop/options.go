package runloop

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// OptionKind is the declared type of a strategy option.
type OptionKind string

const (
	OptionInt    OptionKind = "int"
	OptionBool   OptionKind = "bool"
	OptionString OptionKind = "string"
	OptionFloat  OptionKind = "float"
)

// OptionSpec declares one tunable strategy option with its default value.
type OptionSpec struct {
	Name        string      `yaml:"name"`
	Kind        OptionKind  `yaml:"kind"`
	Default     interface{} `yaml:"default"`
	Description string      `yaml:"description,omitempty"`
}

// OptionSchema is the full set of options a strategy accepts.
type OptionSchema []OptionSpec

// Resolve merges caller overrides over the schema defaults. Unknown keys and
// values of the wrong kind are rejected so misconfigurations fail loudly at
// run start rather than silently mid-loop.
func (s OptionSchema) Resolve(overrides map[string]interface{}) (map[string]interface{}, error) {
	specs := make(map[string]OptionSpec, len(s))
	resolved := make(map[string]interface{}, len(s))
	for _, spec := range s {
		specs[spec.Name] = spec
		resolved[spec.Name] = spec.Default
	}
	for key, value := range overrides {
		spec, ok := specs[key]
		if !ok {
			return nil, fmt.Errorf("unknown option %q", key)
		}
		coerced, err := coerceOption(spec.Kind, value)
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", key, err)
		}
		resolved[key] = coerced
	}
	return resolved, nil
}

func coerceOption(kind OptionKind, value interface{}) (interface{}, error) {
	switch kind {
	case OptionInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == float64(int(v)) {
				return int(v), nil
			}
		}
		return nil, fmt.Errorf("expected integer, got %T", value)
	case OptionBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
		return nil, fmt.Errorf("expected bool, got %T", value)
	case OptionString:
		if v, ok := value.(string); ok {
			return v, nil
		}
		return nil, fmt.Errorf("expected string, got %T", value)
	case OptionFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		}
		return nil, fmt.Errorf("expected float, got %T", value)
	}
	return nil, fmt.Errorf("unknown option kind %q", kind)
}

// LoadOptionsFile reads strategy option overrides from a YAML file keyed by
// strategy name:
//
//	plan-execute:
//	  max_refine_rounds: 5
//	codeact:
//	  max_turns: 20
func LoadOptionsFile(path string) (map[string]map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read options file: %w", err)
	}
	out := make(map[string]map[string]interface{})
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse options file %s: %w", path, err)
	}
	return out, nil
}

// Typed accessors for resolved option maps. Resolve guarantees the kinds, so
// these only guard against programmer error on the key.

func optInt(opts map[string]interface{}, key string) int {
	v, _ := opts[key].(int)
	return v
}

func optBool(opts map[string]interface{}, key string) bool {
	v, _ := opts[key].(bool)
	return v
}

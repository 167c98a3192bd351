package manifest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fwojciec/mcpbridge"
	"github.com/invopop/jsonschema"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Separator joins tool and action names into a function name.
const Separator = "_"

// Function is a function schema entry derived from one (tool, action) pair.
type Function struct {
	mcpbridge.Tool
	ToolName   string
	ActionName string
}

// JoinName returns the function name for a (tool, action) pair.
func JoinName(tool, action string) string {
	return tool + Separator + action
}

// SplitName splits a function name on its first separator. Names whose tool
// part contains the separator cannot be split correctly; callers that loaded
// the manifest should resolve names through the table built from Functions
// instead.
func SplitName(name string) (tool, action string, err error) {
	tool, action, ok := strings.Cut(name, Separator)
	if !ok || tool == "" || action == "" {
		return "", "", fmt.Errorf("%q has no %q separating tool and action: %w", name, Separator, mcpbridge.ErrInvalidName)
	}
	return tool, action, nil
}

// Functions derives one function schema entry per (tool, action) pair in
// manifest order. Two pairs that join to the same name fail with
// [mcpbridge.ErrSchema].
func (m *Manifest) Functions() ([]Function, error) {
	var fns []Function
	seen := map[string]string{}
	for tp := m.Tools.Oldest(); tp != nil; tp = tp.Next() {
		for ap := tp.Value.Actions.Oldest(); ap != nil; ap = ap.Next() {
			name := JoinName(tp.Key, ap.Key)
			pair := tp.Key + "." + ap.Key
			if prev, dup := seen[name]; dup {
				return nil, fmt.Errorf("function name %q produced by both %s and %s: %w", name, prev, pair, mcpbridge.ErrSchema)
			}
			seen[name] = pair

			params, err := json.Marshal(ParameterSchema(ap.Value))
			if err != nil {
				return nil, fmt.Errorf("%s: marshal parameters: %w", pair, err)
			}
			fns = append(fns, Function{
				Tool: mcpbridge.Tool{
					Name:        name,
					Description: ap.Value.Description,
					Parameters:  params,
				},
				ToolName:   tp.Key,
				ActionName: ap.Key,
			})
		}
	}
	return fns, nil
}

// Schemas returns the function schema entries as plain tool definitions.
func (m *Manifest) Schemas() ([]mcpbridge.Tool, error) {
	fns, err := m.Functions()
	if err != nil {
		return nil, err
	}
	tools := make([]mcpbridge.Tool, len(fns))
	for i, fn := range fns {
		tools[i] = fn.Tool
	}
	return tools, nil
}

// ParameterSchema builds the JSON Schema object for an action's parameters.
// A parameter is required iff it declares no default.
func ParameterSchema(a *Action) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:       "object",
		Properties: orderedmap.New[string, *jsonschema.Schema](),
		Required:   []string{},
	}
	for pair := a.Parameters.Oldest(); pair != nil; pair = pair.Next() {
		p := pair.Value
		prop := &jsonschema.Schema{
			Type:        schemaType(p.Type),
			Description: p.Description,
		}
		if p.HasDefault() {
			prop.Default = p.Default
		} else {
			s.Required = append(s.Required, pair.Key)
		}
		s.Properties.Set(pair.Key, prop)
	}
	return s
}

// schemaType maps a manifest type to a JSON Schema type. "any" and unknown
// types leave the property unconstrained.
func schemaType(t string) string {
	switch t {
	case "string", "number", "integer", "boolean", "object", "array":
		return t
	default:
		return ""
	}
}

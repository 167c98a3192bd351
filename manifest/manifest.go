// Package manifest decodes the gateway's tool manifest and derives
// function-calling schemas from it.
//
// Manifest objects are decoded in document order so that the generated
// schemas are deterministic for a given payload.
package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/mcpbridge"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Manifest is the catalog of tools served by a gateway. It is immutable once
// parsed.
type Manifest struct {
	Version string
	Tools   *orderedmap.OrderedMap[string, *Tool]
}

// Tool groups the actions of a single tool.
type Tool struct {
	Name    string
	Actions *orderedmap.OrderedMap[string, *Action]
}

// Action describes one callable action of a tool.
type Action struct {
	Name        string
	Description string
	Parameters  *orderedmap.OrderedMap[string, *Parameter]
	Returns     *Returns
}

// Parameter describes one action parameter. Type is the manifest's semantic
// type ("string", "number", "object", "any", ...).
type Parameter struct {
	Name        string
	Type        string
	Description string
	Default     json.RawMessage // nil when the manifest declares no default
}

// HasDefault reports whether the manifest declares a default for p. A
// declared default of null still counts.
func (p *Parameter) HasDefault() bool {
	return p.Default != nil
}

// Returns describes an action's result payload.
type Returns struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type wireManifest struct {
	ManifestVersion string                                          `json:"manifestVersion"`
	Tools           *orderedmap.OrderedMap[string, json.RawMessage] `json:"tools"`
}

type wireTool struct {
	Actions *orderedmap.OrderedMap[string, json.RawMessage] `json:"actions"`
}

type wireAction struct {
	Description string                                          `json:"description"`
	Parameters  *orderedmap.OrderedMap[string, json.RawMessage] `json:"parameters"`
	Returns     *Returns                                        `json:"returns"`
}

type wireParameter struct {
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Default     json.RawMessage `json:"default"`
}

// Parse decodes a manifest payload. It fails with [mcpbridge.ErrSchema] when
// the payload lacks the expected tools → actions → parameters shape.
func Parse(data []byte) (*Manifest, error) {
	var wm wireManifest
	if err := json.Unmarshal(data, &wm); err != nil {
		return nil, fmt.Errorf("decode manifest: %v: %w", err, mcpbridge.ErrSchema)
	}
	if wm.Tools == nil {
		return nil, fmt.Errorf("manifest has no tools mapping: %w", mcpbridge.ErrSchema)
	}

	m := &Manifest{
		Version: wm.ManifestVersion,
		Tools:   orderedmap.New[string, *Tool](wm.Tools.Len()),
	}
	for pair := wm.Tools.Oldest(); pair != nil; pair = pair.Next() {
		tool, err := parseTool(pair.Key, pair.Value)
		if err != nil {
			return nil, err
		}
		m.Tools.Set(pair.Key, tool)
	}
	return m, nil
}

func parseTool(name string, data json.RawMessage) (*Tool, error) {
	var wt wireTool
	if err := json.Unmarshal(data, &wt); err != nil {
		return nil, fmt.Errorf("tool %q: %v: %w", name, err, mcpbridge.ErrSchema)
	}
	if wt.Actions == nil {
		return nil, fmt.Errorf("tool %q has no actions mapping: %w", name, mcpbridge.ErrSchema)
	}
	t := &Tool{
		Name:    name,
		Actions: orderedmap.New[string, *Action](wt.Actions.Len()),
	}
	for pair := wt.Actions.Oldest(); pair != nil; pair = pair.Next() {
		action, err := parseAction(pair.Key, pair.Value)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", name, err)
		}
		t.Actions.Set(pair.Key, action)
	}
	return t, nil
}

func parseAction(name string, data json.RawMessage) (*Action, error) {
	var wa wireAction
	if err := json.Unmarshal(data, &wa); err != nil {
		return nil, fmt.Errorf("action %q: %v: %w", name, err, mcpbridge.ErrSchema)
	}
	a := &Action{
		Name:        name,
		Description: wa.Description,
		Returns:     wa.Returns,
		Parameters:  orderedmap.New[string, *Parameter](),
	}
	if wa.Parameters == nil {
		return a, nil
	}
	for pair := wa.Parameters.Oldest(); pair != nil; pair = pair.Next() {
		var wp wireParameter
		if err := json.Unmarshal(pair.Value, &wp); err != nil {
			return nil, fmt.Errorf("action %q: parameter %q: %v: %w", name, pair.Key, err, mcpbridge.ErrSchema)
		}
		a.Parameters.Set(pair.Key, &Parameter{
			Name:        pair.Key,
			Type:        wp.Type,
			Description: wp.Description,
			Default:     wp.Default,
		})
	}
	return a, nil
}

// ToolNames returns the tool names in manifest order.
func (m *Manifest) ToolNames() []string {
	names := make([]string, 0, m.Tools.Len())
	for pair := m.Tools.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Tool returns the named tool. It fails with [mcpbridge.ErrToolNotFound].
func (m *Manifest) Tool(name string) (*Tool, error) {
	t, ok := m.Tools.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool %q: %w", name, mcpbridge.ErrToolNotFound)
	}
	return t, nil
}

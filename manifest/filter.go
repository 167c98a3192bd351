package manifest

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/mcpbridge"
)

// Filter returns the tools whose names match at least one glob pattern, in
// their original order. No patterns means no filtering. Patterns use
// doublestar syntax, e.g. "github_*" or "{gmaps,memory}_*".
func Filter(tools []mcpbridge.Tool, patterns []string) ([]mcpbridge.Tool, error) {
	if len(patterns) == 0 {
		return tools, nil
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid tool pattern %q: %w", p, mcpbridge.ErrValidation)
		}
	}
	var out []mcpbridge.Tool
	for _, t := range tools {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, t.Name); ok {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

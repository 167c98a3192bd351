package mcpbridge

// Usage tracks token consumption reported by the model endpoint.
//
// Providers normalize their API-specific fields so that InputTokens excludes
// tokens served from cache (CacheReadTokens). Providers must clamp to zero
// when subtracting to guard against inconsistent upstream data.
type Usage struct {
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:     u.InputTokens + o.InputTokens,
		OutputTokens:    u.OutputTokens + o.OutputTokens,
		CacheReadTokens: u.CacheReadTokens + o.CacheReadTokens,
	}
}

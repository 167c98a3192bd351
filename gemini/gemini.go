// Package gemini implements [mcpbridge.Provider] for the Google Gemini API.
//
// It wraps the google.golang.org/genai SDK, translating between mcpbridge's
// domain types and the Gemini API types. Function schemas are passed through
// verbatim as ParametersJsonSchema.
package gemini

const (
	defaultModel     = "gemini-2.5-flash"
	defaultMaxTokens = 8192
)

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fwojciec/mcpbridge/config"
)

// options holds the parsed command line. Zero values and the -1 sentinels
// mean "not given" so that file and environment settings show through.
type options struct {
	configPath  string
	provider    string
	model       string
	serverURL   string
	apiKey      string
	sessionPath string
	promptPath  string
	tools       string
	maxTurns    int
	maxTokens   int
	temperature float64
	list        bool
	verbose     bool
	prompt      string
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("mcpbridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&o.provider, "provider", "", "Provider: openai, anthropic, gemini (default openai)")
	fs.StringVar(&o.model, "model", "", "Model ID (provider-specific)")
	fs.StringVar(&o.serverURL, "url", "", "Tool gateway base URL (default "+config.DefaultServerURL+")")
	fs.StringVar(&o.apiKey, "api-key", "", "API key (overrides provider's env var)")
	fs.StringVar(&o.sessionPath, "session", "", "Path to session file to resume and save")
	fs.StringVar(&o.promptPath, "system-prompt", "", "Path to system prompt file")
	fs.StringVar(&o.tools, "tools", "", "Comma-separated glob patterns selecting functions, e.g. github_*")
	fs.IntVar(&o.maxTurns, "max-turns", -1, "Maximum model queries per prompt, 0 for unbounded")
	fs.IntVar(&o.maxTokens, "max-tokens", -1, "Maximum tokens per reply")
	fs.Float64Var(&o.temperature, "temperature", -1, "Sampling temperature in [0, 2]")
	fs.BoolVar(&o.list, "list", false, "List the gateway's tools and actions and exit")
	fs.BoolVar(&o.verbose, "v", false, "Verbose logging")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	o.prompt = strings.TrimSpace(strings.Join(fs.Args(), " "))
	return o, nil
}

// resolveConfig layers file, environment and flags, in that order, and
// validates the result.
func resolveConfig(o options, lookup func(string) (string, bool)) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}

	if o.provider != "" {
		cfg.Provider = o.provider
	}
	if o.model != "" {
		cfg.Model = o.model
	}
	if o.serverURL != "" {
		cfg.ServerURL = o.serverURL
	}
	if o.apiKey != "" {
		switch cfg.Provider {
		case "anthropic":
			cfg.AnthropicAPIKey = o.apiKey
		case "gemini":
			cfg.GeminiAPIKey = o.apiKey
		default:
			cfg.OpenAIAPIKey = o.apiKey
		}
	}
	if o.maxTurns >= 0 {
		cfg.MaxTurns = o.maxTurns
	}
	if o.maxTokens >= 0 {
		cfg.MaxTokens = o.maxTokens
	}
	if o.temperature >= 0 {
		t := o.temperature
		cfg.Temperature = &t
	}
	if o.tools != "" {
		cfg.Tools = splitPatterns(o.tools)
	}
	if o.promptPath != "" {
		data, err := os.ReadFile(o.promptPath)
		if err != nil {
			return cfg, fmt.Errorf("read system prompt: %w", err)
		}
		cfg.SystemPrompt = string(data)
	}

	// Listing only talks to the gateway and needs no provider settings.
	if o.list {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var errNoPrompt = errors.New("no prompt: pass it as arguments or on stdin")

// readPrompt returns the prompt from the arguments, falling back to stdin.
func readPrompt(o options, stdin io.Reader) (string, error) {
	if o.prompt != "" {
		return o.prompt, nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errNoPrompt
	}
	return prompt, nil
}

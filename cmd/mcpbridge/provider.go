package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fwojciec/mcpbridge"
	"github.com/fwojciec/mcpbridge/anthropic"
	"github.com/fwojciec/mcpbridge/config"
	"github.com/fwojciec/mcpbridge/gemini"
	"github.com/fwojciec/mcpbridge/openai"
)

// resolveProvider constructs the provider selected by cfg. cfg is expected to
// have passed Validate, so the key is present.
func resolveProvider(ctx context.Context, cfg config.Config, hc *http.Client) (mcpbridge.Provider, error) {
	key := cfg.APIKey()
	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithHTTPClient(hc)}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.OpenAIBaseURL))
		}
		return openai.New(key, opts...), nil
	case "anthropic":
		return anthropic.New(key, anthropic.WithHTTPClient(hc)), nil
	case "gemini":
		var opts []gemini.Option
		if cfg.Model != "" {
			opts = append(opts, gemini.WithModel(cfg.Model))
		}
		client, err := gemini.New(ctx, key, opts...)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown provider %q: must be \"openai\", \"anthropic\" or \"gemini\"", cfg.Provider)
	}
}

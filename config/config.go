// Package config resolves mcpbridge settings from an optional YAML file and
// the environment. Command-line flags are applied by the caller on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/fwojciec/mcpbridge"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvServerURL    = "MCP_SERVER_URL"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvGeminiKey    = "GEMINI_API_KEY"
	EnvModel        = "MCPBRIDGE_MODEL"
	EnvMaxTurns     = "MCPBRIDGE_MAX_TURNS"
)

// Defaults.
const (
	DefaultServerURL    = "http://localhost:5000"
	DefaultProvider     = "openai"
	DefaultMaxTurns     = 16
	DefaultTimeout      = 60 * time.Second
	DefaultSystemPrompt = "You are a helpful assistant with access to tools."
)

// Config holds the resolved settings for one run.
type Config struct {
	Provider        string        `yaml:"provider" validate:"required,oneof=openai anthropic gemini"`
	Model           string        `yaml:"model"`
	ServerURL       string        `yaml:"server_url" validate:"required,url"`
	OpenAIBaseURL   string        `yaml:"openai_base_url" validate:"omitempty,url"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	GeminiAPIKey    string        `yaml:"gemini_api_key"`
	MaxTurns        int           `yaml:"max_turns" validate:"gte=0"`
	MaxTokens       int           `yaml:"max_tokens" validate:"gte=0"`
	Temperature     *float64      `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	Timeout         time.Duration `yaml:"timeout" validate:"gte=0"`
	SystemPrompt    string        `yaml:"system_prompt"`
	Tools           []string      `yaml:"tools" validate:"dive,required"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Provider:     DefaultProvider,
		ServerURL:    DefaultServerURL,
		MaxTurns:     DefaultMaxTurns,
		Timeout:      DefaultTimeout,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Load returns Default overlaid with the YAML file at path. Unknown keys are
// rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if err := cfg.decode(data); err != nil {
		return cfg, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays values found through lookup, which is usually
// os.LookupEnv. Empty values are ignored.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvServerURL, &c.ServerURL)
	set(EnvOpenAIKey, &c.OpenAIAPIKey)
	set(EnvAnthropicKey, &c.AnthropicAPIKey)
	set(EnvGeminiKey, &c.GeminiAPIKey)
	set(EnvModel, &c.Model)

	if v, ok := lookup(EnvMaxTurns); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q: %w", EnvMaxTurns, v, mcpbridge.ErrValidation)
		}
		c.MaxTurns = n
	}
	return nil
}

// APIKey returns the key configured for the selected provider.
func (c Config) APIKey() string {
	switch c.Provider {
	case "anthropic":
		return c.AnthropicAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return c.OpenAIAPIKey
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and that the selected provider has an
// API key. Failures wrap [mcpbridge.ErrValidation].
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, len(verrs))
		for i, fe := range verrs {
			msgs[i] = describe(fe)
		}
		return fmt.Errorf("config: %s: %w", strings.Join(msgs, "; "), mcpbridge.ErrValidation)
	}
	if c.APIKey() == "" {
		return fmt.Errorf("config: no API key for provider %s: %w", c.Provider, mcpbridge.ErrValidation)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", fe.Field(), fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("%s must be a URL, got %q", fe.Field(), fe.Value())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/dataplan-genkit"
	"github.com/kelseyhightower/envconfig"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix scopes the environment overrides, e.g. DATAPLAN_LLM_PROVIDER -> llm.provider.
const EnvPrefix = "DATAPLAN_"

const (
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"

	SourceStatic    = "static"
	SourcePostgREST = "postgrest"
	SourceSQLite    = "sqlite"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Data      DataConfig      `koanf:"data"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Cache     CacheConfig     `koanf:"cache"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Request   RequestConfig   `koanf:"request"`
	// Dataset is used when a command does not name one.
	Dataset string `koanf:"dataset"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text, json
}

type LLMConfig struct {
	Provider   string `koanf:"provider"` // openai, googleai
	Model      string `koanf:"model"`
	BaseURL    string `koanf:"base_url"`
	APIKey     string `koanf:"api_key"`
	MaxRetries int    `koanf:"max_retries"`
}

type DataConfig struct {
	Source   string `koanf:"source"` // static, postgrest, sqlite
	URL      string `koanf:"url"`
	APIKey   string `koanf:"api_key"`
	Path     string `koanf:"path"`
	PageSize int    `koanf:"page_size"`
}

type CatalogConfig struct {
	// Files are schema YAML documents loaded on top of the builtin catalog.
	Files []string `koanf:"files"`
}

type CacheConfig struct {
	Size int           `koanf:"size"`
	TTL  time.Duration `koanf:"ttl"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type RequestConfig struct {
	Timeout       time.Duration `koanf:"timeout"`
	ForcePlanTool bool          `koanf:"force_plan_tool"`
}

// defaultModels is used when llm.model is empty.
var defaultModels = map[string]string{
	ProviderOpenAI:   "gpt-4o-mini",
	ProviderGoogleAI: "gemini-2.0-flash",
}

// ModelName returns llm.model or the provider's default model.
func (c *Config) ModelName() string {
	if c.LLM.Model != "" {
		return c.LLM.Model
	}
	return defaultModels[c.LLM.Provider]
}

// Credentials are the conventional provider variables, read without a prefix.
type Credentials struct {
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	OpenAIModel     string `envconfig:"OPENAI_MODEL"`
	OpenAIBaseURL   string `envconfig:"OPENAI_BASE_URL"`
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	SupabaseURL     string `envconfig:"SUPABASE_URL"`
	SupabaseAnonKey string `envconfig:"SUPABASE_ANON_KEY"`
}

func defaults(k *koanf.Koanf) {
	k.Set("log.level", "info")
	k.Set("log.format", "text")
	k.Set("llm.provider", ProviderOpenAI)
	k.Set("llm.max_retries", 2)
	k.Set("data.source", SourceStatic)
	k.Set("data.page_size", 1000)
	k.Set("cache.size", 4)
	k.Set("cache.ttl", "10m")
	k.Set("telemetry.enabled", false)
	k.Set("telemetry.service_name", "dataplan")
	k.Set("request.timeout", "0s")
	k.Set("request.force_plan_tool", true)
	k.Set("dataset", "biwenger_player_stats")
}

// envKey maps DATAPLAN_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

// Load layers defaults, the optional YAML file at path, and DATAPLAN_ env vars.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	defaults(k)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, dataplan.NewConfigurationError(fmt.Sprintf("failed to load config file %q", path), err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, dataplan.NewConfigurationError("failed to load environment overrides", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, dataplan.NewConfigurationError("failed to decode configuration", err)
	}
	return &cfg, nil
}

func LoadCredentials() (*Credentials, error) {
	var creds Credentials
	if err := envconfig.Process("", &creds); err != nil {
		return nil, dataplan.NewConfigurationError("failed to read credentials", err)
	}
	return &creds, nil
}

// ApplyCredentials fills provider and data source secrets from creds.
// Values found in the environment take precedence over file values.
func (c *Config) ApplyCredentials(creds *Credentials) {
	if creds == nil {
		return
	}
	switch c.LLM.Provider {
	case ProviderOpenAI:
		override(&c.LLM.APIKey, creds.OpenAIAPIKey)
		override(&c.LLM.Model, creds.OpenAIModel)
		override(&c.LLM.BaseURL, creds.OpenAIBaseURL)
	case ProviderGoogleAI:
		override(&c.LLM.APIKey, creds.GeminiAPIKey)
	}
	if c.Data.Source == SourcePostgREST {
		override(&c.Data.URL, creds.SupabaseURL)
		override(&c.Data.APIKey, creds.SupabaseAnonKey)
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the settings a command needs before any backend is built.
// requireLLM is false for commands that never reach the model.
func (c *Config) Validate(requireLLM bool) error {
	if requireLLM {
		switch c.LLM.Provider {
		case ProviderOpenAI, ProviderGoogleAI:
		default:
			return dataplan.NewConfigurationError(fmt.Sprintf("unknown llm provider %q", c.LLM.Provider), nil)
		}
		if c.LLM.APIKey == "" {
			return dataplan.NewConfigurationError(fmt.Sprintf("missing api key for llm provider %q", c.LLM.Provider), nil)
		}
		if c.LLM.MaxRetries < 0 {
			return dataplan.NewConfigurationError("llm.max_retries must not be negative", nil)
		}
	}

	switch c.Data.Source {
	case SourceStatic:
	case SourceSQLite:
		if c.Data.Path == "" {
			return dataplan.NewConfigurationError("data.path is required for the sqlite source", nil)
		}
	case SourcePostgREST:
		if c.Data.URL == "" || c.Data.APIKey == "" {
			return dataplan.NewConfigurationError("data.url and data.api_key are required for the postgrest source", nil)
		}
	default:
		return dataplan.NewConfigurationError(fmt.Sprintf("unknown data source %q", c.Data.Source), nil)
	}
	if c.Data.PageSize <= 0 {
		return dataplan.NewConfigurationError("data.page_size must be positive", nil)
	}

	if c.Cache.Size <= 0 {
		return dataplan.NewConfigurationError("cache.size must be positive", nil)
	}
	if c.Cache.TTL <= 0 {
		return dataplan.NewConfigurationError("cache.ttl must be positive", nil)
	}
	if c.Request.Timeout < 0 {
		return dataplan.NewConfigurationError("request.timeout must not be negative", nil)
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return dataplan.NewConfigurationError(fmt.Sprintf("unknown log format %q", c.Log.Format), nil)
	}
	return nil
}

// ParsedLogLevel returns the slog level for Log.Level, defaulting to info.
func (c *Config) ParsedLogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

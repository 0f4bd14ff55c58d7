// ABOUTME: Configuration loading and parsing for the farfalle backend
// ABOUTME: Supports YAML files with environment variable expansion and env toggles

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete farfalle configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Search    SearchConfig    `yaml:"search"`
	Providers ProvidersConfig `yaml:"providers"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds thread store configuration.
// Enabled defaults to true; set DB_ENABLED=false to run without persistence.
type DatabaseConfig struct {
	Enabled bool   `yaml:"-"`
	Path    string `yaml:"path"`

	// Raw toggle value for YAML unmarshaling / env toggles
	EnabledRaw ToggleValue `yaml:"enabled"`
}

// SearchConfig selects the retrieval provider
type SearchConfig struct {
	Provider string `yaml:"provider"` // "searxng" or "brave"
	BraveKey string `yaml:"brave_api_key"`
	SearxURL string `yaml:"searxng_url"`
}

// ProvidersConfig holds LLM provider credentials
type ProvidersConfig struct {
	OpenAIKey    string `yaml:"openai_api_key"`
	AnthropicKey string `yaml:"anthropic_api_key"`
}

// RateLimitConfig holds request rate limiting configuration.
// Rate limiting is active only when Enabled is true AND RedisURL is set.
type RateLimitConfig struct {
	Enabled  bool   `yaml:"-"`
	RedisURL string `yaml:"redis_url"`

	EnabledRaw ToggleValue `yaml:"enabled"`
}

// ToggleValue holds an enable flag in raw form. YAML authors write these
// either as bare booleans (enabled: true) or strings (enabled: "1"); both
// decode to the scalar's text and resolve through Strtobool.
type ToggleValue string

// UnmarshalYAML accepts any scalar node and keeps its literal text.
func (t *ToggleValue) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("toggle must be a scalar, got %v", value.Kind)
	}
	*t = ToggleValue(value.Value)
	return nil
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Boolean-ish toggle strings are resolved after expansion.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()
	cfg.resolveToggles()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// FromEnv builds a configuration entirely from environment variables.
// Used when no config file exists; mirrors the original deployment's env surface.
func FromEnv() *Config {
	cfg := &Config{
		Server:   ServerConfig{HTTPAddr: os.Getenv("HTTP_ADDR")},
		Database: DatabaseConfig{Path: os.Getenv("DB_PATH"), EnabledRaw: ToggleValue(os.Getenv("DB_ENABLED"))},
		Search: SearchConfig{
			Provider: os.Getenv("SEARCH_PROVIDER"),
			BraveKey: os.Getenv("BRAVE_API_KEY"),
			SearxURL: os.Getenv("SEARXNG_BASE_URL"),
		},
		Providers: ProvidersConfig{
			OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
			AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
		},
		RateLimit: RateLimitConfig{
			RedisURL:   os.Getenv("REDIS_URL"),
			EnabledRaw: ToggleValue(os.Getenv("RATE_LIMIT_ENABLED")),
		},
		Logging: LoggingConfig{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
		},
	}
	cfg.applyDefaults()
	cfg.resolveToggles()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8000"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/farfalle.db"
	}
	if c.Database.EnabledRaw == "" {
		c.Database.EnabledRaw = "true"
	}
	if c.Search.Provider == "" {
		c.Search.Provider = "searxng"
	}
	if c.Search.SearxURL == "" && c.Search.Provider == "searxng" {
		c.Search.SearxURL = "http://localhost:8080"
	}
}

func (c *Config) resolveToggles() {
	c.Database.Enabled = Strtobool(string(c.Database.EnabledRaw))
	// No Redis backing store means no rate limiting regardless of the flag.
	c.RateLimit.Enabled = Strtobool(string(c.RateLimit.EnabledRaw)) && c.RateLimit.RedisURL != ""
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Strtobool reports whether val is a truthy toggle string.
// Accepts "true", "1" and "t" case-insensitively; everything else is false.
func Strtobool(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "1", "t":
		return true
	}
	return false
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		return fmt.Errorf("database.path is required when the database is enabled")
	}

	switch c.Search.Provider {
	case "searxng":
		if c.Search.SearxURL == "" {
			return fmt.Errorf("search.searxng_url is required for the searxng provider")
		}
	case "brave":
		if c.Search.BraveKey == "" {
			return fmt.Errorf("search.brave_api_key is required for the brave provider")
		}
	default:
		return fmt.Errorf("unknown search provider %q", c.Search.Provider)
	}

	return nil
}

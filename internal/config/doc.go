// Package config handles configuration loading for the farfalle backend.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion,
// or assembled directly from environment variables when no file is present.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	providers:
//	  openai_api_key: "${OPENAI_API_KEY}"
//
// # Toggles
//
// Boolean-like toggles accept "true", "1" and "t" case-insensitively:
//
//	database:
//	  enabled: "${DB_ENABLED}"
//	rate_limit:
//	  enabled: "${RATE_LIMIT_ENABLED}"
//	  redis_url: "${REDIS_URL}"
//
// Rate limiting needs both the toggle and a Redis address; an absent
// redis_url disables it regardless of the flag.
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8000"
//
// Database:
//
//	database:
//	  path: "data/farfalle.db"
//
// Search provider:
//
//	search:
//	  provider: "searxng"   # searxng, brave
//	  searxng_url: "http://localhost:8080"
//	  brave_api_key: "${BRAVE_API_KEY}"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config

// Package config handles configuration loading for windlass.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  path: "${WINDLASS_DB_PATH}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	fetch:
//	  timeout: "45s"
//	subscriptions:
//	  refresh_interval: "6h"
//
// # Configuration Sections
//
// Database:
//
//	database:
//	  path: "/var/lib/windlass/windlass.db"
//
// Remote retrieval:
//
//	fetch:
//	  timeout: "30s"
//	  github_api_base: "https://api.github.com"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config

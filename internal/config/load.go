package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config bytes with immediate env var resolution
func Parse(data []byte) (Config, error) {
	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if !strings.HasPrefix(version, "v1") {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&config)

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// validateRawConfig checks the structure before environment resolution.
// Secrets must arrive as env references; a literal string in the file is
// rejected so keys never end up committed next to the config.
func validateRawConfig(rawConfig map[string]any) error {
	front, ok := rawConfig["front"].(map[string]any)
	if !ok {
		return fmt.Errorf("front section is required")
	}

	secrets := []string{"signingKey"}
	if opsAuth, ok := front["opsAuth"].(map[string]any); ok {
		if value, exists := opsAuth["password"]; exists {
			if _, isString := value.(string); isString {
				return fmt.Errorf("opsAuth.password must use environment variable reference for security")
			}
		}
	}

	for _, name := range secrets {
		value, exists := front[name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s must use environment variable reference for security", name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s must use {\"$env\": \"VAR_NAME\"} format", name)
			}
		}
	}
	return nil
}

func applyDefaults(config *Config) {
	if config.Front.Addr == "" {
		config.Front.Addr = ":8080"
	}
	if config.Front.AdminPath == "" {
		config.Front.AdminPath = DefaultAdminPath
	}
	if config.Front.Storage == "" {
		config.Front.Storage = StorageMemory
	}
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Front.BaseURL == "" {
		return fmt.Errorf("front.baseURL is required")
	}
	if config.Front.BackendBaseURL == "" {
		return fmt.Errorf("front.backendBaseURL is required")
	}
	if len(config.Front.SigningKey) < 32 {
		return fmt.Errorf("front.signingKey must be at least 32 characters (got %d). Generate with: openssl rand -base64 32", len(config.Front.SigningKey))
	}
	switch config.Front.Storage {
	case StorageMemory:
	case StorageFirestore:
		if config.Front.FirestoreProject == "" {
			return fmt.Errorf("front.firestoreProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("front.storage must be %q or %q, got %q", StorageMemory, StorageFirestore, config.Front.Storage)
	}
	if config.Front.OpsAuth != nil && config.Front.OpsAuth.Username == "" {
		return fmt.Errorf("front.opsAuth.username is required when opsAuth is set")
	}
	return nil
}

// DefaultJSON returns a starter config for -init-config
func DefaultJSON() []byte {
	return []byte(`{
  "version": "v1",
  "front": {
    "baseURL": "https://query.example.com",
    "addr": ":8080",
    "backendBaseURL": "http://127.0.0.1:8000",
    "storage": "memory",
    "signingKey": {"$env": "QUERY_FRONT_SIGNING_KEY"},
    "opsAuth": {
      "username": "ops",
      "password": {"$env": "QUERY_FRONT_OPS_PASSWORD"}
    }
  }
}
`)
}

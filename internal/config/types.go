package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/bigdata-query/query-front/internal/crypto"
)

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to prevent secrets in JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// StorageKind selects the session store backend
type StorageKind string

const (
	StorageMemory    StorageKind = "memory"
	StorageFirestore StorageKind = "firestore"
)

// DefaultAdminPath is the obfuscated admin URL prefix used when the config
// leaves adminPath empty. Obscurity is not the access control; the admin
// guard is. The random-looking path just keeps crawlers and scanners away.
const DefaultAdminPath = "a8f2c9e7d4b6f1a5c3e8d9f2b7a4c6e1"

// OpsAuthConfig protects the operational endpoints with basic auth
type OpsAuthConfig struct {
	Username string `json:"username"`

	// Computed: bcrypt hash of the resolved password
	HashedPassword Secret `json:"-"`
}

// UnmarshalJSON resolves the password reference and stores only its bcrypt
// hash. A value already in bcrypt format is kept as-is, so operators can
// put a pre-hashed password in the environment.
func (o *OpsAuthConfig) UnmarshalJSON(data []byte) error {
	type rawOpsAuth struct {
		Username string          `json:"username"`
		Password json.RawMessage `json:"password"`
	}

	var raw rawOpsAuth
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	o.Username = raw.Username

	if raw.Password == nil {
		return fmt.Errorf("opsAuth.password is required")
	}
	password, err := ParseConfigValue(raw.Password)
	if err != nil {
		return fmt.Errorf("parsing opsAuth.password: %w", err)
	}

	if strings.HasPrefix(password, "$2a$") || strings.HasPrefix(password, "$2b$") || strings.HasPrefix(password, "$2y$") {
		o.HashedPassword = Secret(password)
		return nil
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing opsAuth.password: %w", err)
	}
	o.HashedPassword = Secret(hash)
	return nil
}

// FrontConfig is the resolved front server configuration
type FrontConfig struct {
	BaseURL          string         `json:"baseURL"`
	Addr             string         `json:"addr"`
	BackendBaseURL   string         `json:"backendBaseURL"`
	AdminPath        string         `json:"adminPath,omitempty"`
	CookieDomain     string         `json:"cookieDomain,omitempty"`
	Storage          StorageKind    `json:"storage,omitempty"`
	FirestoreProject string         `json:"firestoreProject,omitempty"`
	AllowedOrigins   []string       `json:"allowedOrigins,omitempty"`
	OpsAuth          *OpsAuthConfig `json:"opsAuth,omitempty"`

	// Computed: resolved session token signing key
	SigningKey Secret `json:"-"`
}

// UnmarshalJSON resolves the signingKey environment reference
func (f *FrontConfig) UnmarshalJSON(data []byte) error {
	type rawFront struct {
		BaseURL          string          `json:"baseURL"`
		Addr             string          `json:"addr"`
		BackendBaseURL   string          `json:"backendBaseURL"`
		AdminPath        string          `json:"adminPath"`
		CookieDomain     string          `json:"cookieDomain"`
		Storage          StorageKind     `json:"storage"`
		FirestoreProject string          `json:"firestoreProject"`
		AllowedOrigins   []string        `json:"allowedOrigins"`
		OpsAuth          *OpsAuthConfig  `json:"opsAuth"`
		SigningKey       json.RawMessage `json:"signingKey"`
	}

	var raw rawFront
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.BaseURL = raw.BaseURL
	f.Addr = raw.Addr
	f.BackendBaseURL = raw.BackendBaseURL
	f.AdminPath = raw.AdminPath
	f.CookieDomain = raw.CookieDomain
	f.Storage = raw.Storage
	f.FirestoreProject = raw.FirestoreProject
	f.AllowedOrigins = raw.AllowedOrigins
	f.OpsAuth = raw.OpsAuth

	if raw.SigningKey != nil {
		key, err := ParseConfigValue(raw.SigningKey)
		if err != nil {
			return fmt.Errorf("parsing signingKey: %w", err)
		}
		f.SigningKey = Secret(key)
	}
	return nil
}

// Config represents the config structure with resolved values
type Config struct {
	Front FrontConfig `json:"front"`
}

// ParseConfigValue parses a JSON value that is either a plain string or an
// environment variable reference of the form {"$env": "VAR_NAME"}.
//
// The explicit JSON syntax is used instead of bash-like $VAR substitution so
// config files survive shell contexts untouched and values containing $ are
// never re-expanded.
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

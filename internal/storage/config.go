// Manages store locations and the server configuration stored in config.jsonc.

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
)

// Config holds the locations of every store. It replaces process-wide paths so
// that tests and multiple registries can live in one process.
type Config struct {
	// DataDir is the root directory. It is also the git work tree when
	// history is enabled.
	DataDir string

	// CatalogPath is the JSON array file holding catalog entries.
	CatalogPath string

	// LedgerPath is the JSON array file holding usage entries.
	LedgerPath string

	// ArtifactDir holds the artifact files referenced by catalog entries.
	ArtifactDir string

	// MaxArtifactBytes limits the size of a single artifact. 0 means unlimited.
	MaxArtifactBytes int64

	// GitHistory commits the catalog and artifacts to a git repository rooted
	// at DataDir after each upload.
	GitHistory bool
}

// DefaultConfig returns the standard layout under dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:     dataDir,
		CatalogPath: filepath.Join(dataDir, "registry", "registry.json"),
		LedgerPath:  filepath.Join(dataDir, "registry", "usage_log.json"),
		ArtifactDir: filepath.Join(dataDir, "models"),
	}
}

// Validate checks that all locations are set.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data dir is required")
	}
	if c.CatalogPath == "" {
		return errors.New("catalog path is required")
	}
	if c.LedgerPath == "" {
		return errors.New("ledger path is required")
	}
	if c.CatalogPath == c.LedgerPath {
		return errors.New("catalog and ledger must use distinct files")
	}
	if c.ArtifactDir == "" {
		return errors.New("artifact dir is required")
	}
	if c.MaxArtifactBytes < 0 {
		return errors.New("max artifact bytes must be non-negative")
	}
	return nil
}

// ServerConfig stores all server-wide configuration.
// Loaded from config.jsonc, created with defaults if missing.
type ServerConfig struct {
	// JWTSecret enables bearer token authentication on mutating endpoints
	// when non-empty. Tokens must be HS256 signed with this secret.
	JWTSecret string `json:"jwt_secret"`

	// Workers limits concurrent model loads and predictions.
	// 0 means GOMAXPROCS.
	Workers int `json:"workers"`

	// GitHistory records every upload as a git commit in the data directory.
	GitHistory bool `json:"git_history"`

	// Quotas defines server-wide resource limits.
	Quotas Quotas `json:"quotas"`

	// RateLimits defines rate limiting configuration.
	RateLimits RateLimits `json:"rate_limits"`
}

// Quotas defines resource limits.
type Quotas struct {
	// MaxArtifactBytes limits the size of a single uploaded artifact.
	MaxArtifactBytes int64 `json:"max_artifact_bytes"`

	// MaxRequestBodyBytes limits JSON request bodies.
	MaxRequestBodyBytes int64 `json:"max_request_body_bytes"`
}

// Validate checks that quota values are sane.
func (q *Quotas) Validate() error {
	if q.MaxArtifactBytes <= 0 {
		return errors.New("max_artifact_bytes must be positive")
	}
	if q.MaxRequestBodyBytes < 0 {
		return errors.New("max_request_body_bytes must be non-negative")
	}
	return nil
}

// RateLimits defines rate limiting configuration (requests per minute per client).
type RateLimits struct {
	// WriteRatePerMin limits uploads. 0 means unlimited.
	WriteRatePerMin int `json:"write_rate_per_min"`

	// InferRatePerMin limits inference and evaluation calls. 0 means unlimited.
	InferRatePerMin int `json:"infer_rate_per_min"`
}

// Validate checks that rate limit values are non-negative.
func (r *RateLimits) Validate() error {
	if r.WriteRatePerMin < 0 {
		return errors.New("write_rate_per_min must be non-negative")
	}
	if r.InferRatePerMin < 0 {
		return errors.New("infer_rate_per_min must be non-negative")
	}
	return nil
}

// DefaultServerConfig returns the configuration written on first start.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Quotas: Quotas{
			MaxArtifactBytes:    512 * 1024 * 1024, // 512 MiB
			MaxRequestBodyBytes: 10 * 1024 * 1024,  // 10 MiB
		},
		RateLimits: RateLimits{
			WriteRatePerMin: 60,
			InferRatePerMin: 6000,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *ServerConfig) Validate() error {
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 bytes")
	}
	if c.Workers < 0 {
		return errors.New("workers must be non-negative")
	}
	if err := c.Quotas.Validate(); err != nil {
		return fmt.Errorf("quotas: %w", err)
	}
	if err := c.RateLimits.Validate(); err != nil {
		return fmt.Errorf("rate_limits: %w", err)
	}
	return nil
}

// Storage returns the store locations for dataDir with this configuration's
// limits applied.
func (c *ServerConfig) Storage(dataDir string) Config {
	cfg := DefaultConfig(dataDir)
	cfg.MaxArtifactBytes = c.Quotas.MaxArtifactBytes
	cfg.GitHistory = c.GitHistory
	return cfg
}

const configHeader = "// modelprov server configuration. Comments and trailing commas are allowed.\n"

// LoadServerConfig loads configuration from dataDir/config.jsonc.
func LoadServerConfig(dataDir string) (*ServerConfig, error) {
	path := filepath.Join(dataDir, "config.jsonc")
	cfg := DefaultServerConfig()

	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed from dataDir, not user input
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config.jsonc: %w", err)
		}
		if err := cfg.Save(dataDir); err != nil {
			return nil, err
		}
	} else if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config.jsonc: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config.jsonc: %w", err)
	}
	return &cfg, nil
}

// Save saves configuration to dataDir/config.jsonc.
func (c *ServerConfig) Save(dataDir string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	out := append([]byte(configHeader), data...)
	out = append(out, '\n')
	if err := os.WriteFile(filepath.Join(dataDir, "config.jsonc"), out, 0o600); err != nil {
		return fmt.Errorf("failed to write config.jsonc: %w", err)
	}
	return nil
}

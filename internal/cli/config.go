package cli

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/aretw0/tether/internal/logging"
	"github.com/aretw0/tether/pkg/persistence/middleware"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is read from the working directory when no --config is given.
const DefaultConfigFile = "tether.yaml"

// Config holds the CLI settings. Flags override file values.
type Config struct {
	BaseURL          string        `yaml:"base_url"`
	Timeout          time.Duration `yaml:"timeout"`
	LogLevel         string        `yaml:"log_level"`
	RedisURL         string        `yaml:"redis_url"`
	SnapshotKey      string        `yaml:"snapshot_key"`
	MetricsAddr      string        `yaml:"metrics_addr"`
	ValidateContract bool          `yaml:"validate_contract"`

	// EncryptionKey seals checkpoints with AES-256 (base64, 32 bytes).
	// EnvEncryptionKey overrides it.
	EncryptionKey string   `yaml:"encryption_key"`
	FallbackKeys  []string `yaml:"encryption_fallback_keys"`
	MaskKeys      []string `yaml:"mask_keys"`
}

// EnvEncryptionKey names the environment variable holding the checkpoint key.
const EnvEncryptionKey = "TETHER_ENCRYPTION_KEY"

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:8000",
		Timeout:     30 * time.Second,
		LogLevel:    "info",
		SnapshotKey: "current",
	}
}

// LoadConfig reads path over the defaults. An empty path reads
// DefaultConfigFile if it exists.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			cfg.EncryptionKey = os.Getenv(EnvEncryptionKey)
			return cfg, cfg.Validate()
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if key := os.Getenv(EnvEncryptionKey); key != "" {
		cfg.EncryptionKey = key
	}
	return cfg, cfg.Validate()
}

// Validate checks the settings are usable.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := c.encryptionConfig(); err != nil {
		return err
	}
	return nil
}

// encryptionConfig decodes the checkpoint keys. It returns nil without a key.
func (c Config) encryptionConfig() (*middleware.EncryptionConfig, error) {
	if c.EncryptionKey == "" {
		if len(c.FallbackKeys) > 0 {
			return nil, errors.New("encryption_fallback_keys requires encryption_key")
		}
		return nil, nil
	}
	active, err := decodeKey(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption_key: %w", err)
	}
	ec := &middleware.EncryptionConfig{ActiveKey: active}
	for i, raw := range c.FallbackKeys {
		k, err := decodeKey(raw)
		if err != nil {
			return nil, fmt.Errorf("encryption_fallback_keys[%d]: %w", i, err)
		}
		ec.FallbackKeys = append(ec.FallbackKeys, k)
	}
	return ec, nil
}

func decodeKey(raw string) ([]byte, error) {
	k, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}
	if len(k) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(k))
	}
	return k, nil
}

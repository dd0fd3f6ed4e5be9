package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults for keys that may be left out of the config file.
const (
	DefaultDBName       = "canvas.db"
	DefaultOutputPath   = "canvas"
	DefaultPollInterval = "60s"
	DefaultLinkRecipe   = "html"
)

// Environment overrides, read after an optional .env file is loaded.
const (
	EnvURL         = "CS_URL"
	EnvAccessToken = "CS_ACCESS_TOKEN"
)

// Config is the process-wide configuration. It is read once at startup and
// never mutated afterwards.
type Config struct {
	URL          string           `toml:"url" yaml:"url"`
	AccessToken  string           `toml:"access_token" yaml:"access_token"`
	DBName       string           `toml:"db_name" yaml:"db_name"`
	OutputPath   string           `toml:"output_path" yaml:"output_path"`
	PollInterval string           `toml:"poll_interval" yaml:"poll_interval"`
	LogDir       string           `toml:"log_dir" yaml:"log_dir"`
	Ignore       []string         `toml:"ignore" yaml:"ignore"`
	LinkRecipes  []string         `toml:"link_recipes" yaml:"link_recipes"`
	MetricsAddr  string           `toml:"metrics_addr" yaml:"metrics_addr"`
	Mirror       MirrorConfig     `toml:"mirror" yaml:"mirror"`
	Encryption   EncryptionConfig `toml:"encryption" yaml:"encryption"`
}

// MirrorConfig selects where materialized artifacts are replicated.
// Type decides which of the other fields are used.
type MirrorConfig struct {
	Type string `toml:"type" yaml:"type"` // "", "filesystem", "memory" or "s3"

	// filesystem
	FSRoot string `toml:"fs_root,omitempty" yaml:"fs_root,omitempty"`

	// s3
	S3Bucket string `toml:"s3_bucket,omitempty" yaml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty" yaml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty" yaml:"s3_region,omitempty"`
	// S3Endpoint targets an S3-compatible store instead of AWS.
	S3Endpoint string `toml:"s3_endpoint,omitempty" yaml:"s3_endpoint,omitempty"`
	// Static credentials. When empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty" yaml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty" yaml:"s3_secret_access_key,omitempty"`

	// Encrypt age-encrypts mirrored artifacts to the configured public key.
	Encrypt bool `toml:"encrypt" yaml:"encrypt"`
}

// EncryptionConfig holds paths to the age key pair used for mirrored artifacts.
type EncryptionConfig struct {
	PublicKeyPath  string `toml:"public_key_path" yaml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path" yaml:"private_key_path"`
}

// NewConfig creates a Config for the given endpoint with every default set.
// Logs and keys live under baseDir.
func NewConfig(url, accessToken, baseDir string) *Config {
	cfg := &Config{
		URL:         url,
		AccessToken: accessToken,
	}
	cfg.ApplyBaseDir(baseDir)
	cfg.ApplyDefaults()
	return cfg
}

// ApplyBaseDir places an unset log directory and key pair under baseDir.
func (c *Config) ApplyBaseDir(baseDir string) {
	if c.LogDir == "" {
		c.LogDir = filepath.Join(baseDir, "log")
	}
	if c.Encryption.PublicKeyPath == "" {
		c.Encryption.PublicKeyPath = filepath.Join(baseDir, "keys", "cs.pub")
	}
	if c.Encryption.PrivateKeyPath == "" {
		c.Encryption.PrivateKeyPath = filepath.Join(baseDir, "keys", "cs.key")
	}
}

// ApplyDefaults fills keys that were left empty.
func (c *Config) ApplyDefaults() {
	if c.DBName == "" {
		c.DBName = DefaultDBName
	}
	if c.OutputPath == "" {
		c.OutputPath = DefaultOutputPath
	}
	if c.PollInterval == "" {
		c.PollInterval = DefaultPollInterval
	}
	if len(c.LinkRecipes) == 0 {
		c.LinkRecipes = []string{DefaultLinkRecipe}
	}
}

// ApplyEnv overrides the endpoint and token with non-empty values from getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvURL); v != "" {
		c.URL = v
	}
	if v := getenv(EnvAccessToken); v != "" {
		c.AccessToken = v
	}
}

// Interval returns the parsed poll interval.
func (c *Config) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil {
		return 0
	}
	return d
}

// Format is a config file encoding.
type Format int

const (
	TOML Format = iota
	YAML
)

// FormatForPath picks YAML for .yaml/.yml files and TOML otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	default:
		return TOML
	}
}

// Manager reads and writes configuration in one format.
type Manager struct {
	Format Format
}

// Read decodes a Config from r.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	switch m.Format {
	case YAML:
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	default:
		if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return &cfg, nil
}

// Write encodes cfg to w.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	switch m.Format {
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return enc.Close()
	default:
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}
	return nil
}

// ReadFromFile reads the config at path, choosing the format by extension.
// Defaults are applied; validation is left to the caller so environment
// overrides can be applied first.
func ReadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	m := &Manager{Format: FormatForPath(path)}
	cfg, err := m.Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Init writes cfg to a new file at path. It refuses to overwrite.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

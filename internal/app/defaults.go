package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"cs-go/internal/config"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - CS_CONFIG_PATH: config file location (default: ~/.config/cs.toml)
//   - CS_HOME: base directory for cs data (default: ~/.local/share/cs)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// getConfigPath returns the config file path, checking CS_CONFIG_PATH env var first,
// then falling back to the default ~/.config/cs.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv("CS_CONFIG_PATH"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "cs.toml"), nil
}

// getBaseDir returns the base directory for cs data, checking CS_HOME env var first,
// then falling back to the XDG default ~/.local/share/cs.
func getBaseDir() (string, error) {
	if path := os.Getenv("CS_HOME"); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "cs"), nil
}

// LoadEnvFile loads variables from envPath into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(envPath string) error {
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envPath, err)
	}
	return nil
}

// LoadConfig reads the config at path, applies .env and environment
// overrides, and validates the result. An unset log directory or key path
// falls back to the base directory.
func LoadConfig(path string) (*config.Config, error) {
	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}

	cfg, err := config.ReadFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)

	defaults, err := GetDefaults()
	if err != nil {
		return nil, err
	}
	cfg.ApplyBaseDir(defaults["base_dir"])

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

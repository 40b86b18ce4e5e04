package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - KQ_CONFIG_PATH: config file location (default: ~/.config/kq.toml)
//   - KQ_HOME: base directory for kq data (default: ~/.local/share/kq)
func GetDefaults() (map[string]string, error) {
	configPath, err := envOrHome("KQ_CONFIG_PATH", ".config", "kq.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := envOrHome("KQ_HOME", ".local", "share", "kq")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// envOrHome returns $env when set, otherwise the path elems under the
// user's home directory.
func envOrHome(env string, elems ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elems...)...), nil
}

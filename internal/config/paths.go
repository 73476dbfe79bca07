package config

import (
	"os"
	"path/filepath"
)

func GetUserConfigDir() (string, error) {
	if dir := os.Getenv("WINGTERM_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".wingterm"), nil
}

// DefaultConfigPath is config.yaml inside the user config directory.
func DefaultConfigPath() (string, error) {
	dir, err := GetUserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func EnsureConfigDir(userConfigDir string) error {
	return os.MkdirAll(userConfigDir, 0700)
}

package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tinyland-inc/crosswire/pkg/config"
)

var (
	version   = "dev"
	gitCommit string
)

func GetConfigPath() string {
	if path := os.Getenv("CROSSWIRE_CONFIG"); path != "" {
		return path
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".crosswire", "config.json")
}

func LoadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(GetConfigPath())
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	return cfg, nil
}

// FormatVersion returns the version string with optional git commit.
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// GetVersion returns the version string.
func GetVersion() string {
	return version
}

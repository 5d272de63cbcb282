package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
)

const appName = "servoskull"

// DefaultDatabasePath returns the archive location under XDG_STATE_HOME.
func DefaultDatabasePath() string {
	return filepath.Join(xdg.StateHome, appName, "archive.db")
}

// GetConfigPaths returns the configuration file paths to check
func GetConfigPaths() ConfigPrecedence {
	systemConfigPath := filepath.Join("/etc", appName, "config.yaml")
	if runtime.GOOS == "windows" {
		systemConfigPath = filepath.Join(os.Getenv("PROGRAMDATA"), appName, "config.yaml")
	}

	return ConfigPrecedence{
		SystemConfig:      systemConfigPath,
		UserConfig:        filepath.Join(xdg.ConfigHome, appName, "config.yaml"),
		ProjectConfig:     appName + ".yaml",
		EnvironmentPrefix: DefaultEnvPrefix,
	}
}

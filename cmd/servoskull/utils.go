package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/afero"

	"github.com/elee1766/servoskull/src/config"
	"github.com/elee1766/servoskull/src/storage"
)

// loadConfig loads the configuration from the --config file or the default
// locations, then applies CLI overrides.
func loadConfig(cli *CLI) (*config.Config, error) {
	loader := config.NewLoader(afero.NewOsFs(), config.GetConfigPaths())
	cfg, err := loader.Load(cli.ConfigFile)
	if err != nil {
		return nil, err
	}
	overrideConfigFromCLI(cfg, cli)
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid command line overrides: %w", err)
	}
	return cfg, nil
}

// overrideConfigFromCLI overrides configuration values with CLI flags
func overrideConfigFromCLI(cfg *config.Config, cli *CLI) {
	if cli.APIKey != "" {
		cfg.API.APIKey = cli.APIKey
	}
	if cli.BaseURL != "" {
		cfg.API.BaseURL = cli.BaseURL
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
}

// setup loads config and a logger that honours it.
func setup(cli *CLI) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cli)
	if err != nil {
		return nil, nil, err
	}
	return cfg, createCLILogger(cfg.Logging.Level, cfg.Logging.Format), nil
}

// openArchive opens the archive at dbPath, or the configured one when empty.
func openArchive(ctx context.Context, cli *CLI, dbPath string) (*storage.DB, error) {
	cfg, logger, err := setup(cli)
	if err != nil {
		return nil, err
	}
	if dbPath == "" {
		dbPath = cfg.Storage.DatabasePath
	}
	db, err := storage.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	return db, nil
}

// maskAPIKey masks an API key for display
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

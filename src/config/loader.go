package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Loader handles loading and merging configurations from multiple sources
type Loader struct {
	fs         afero.Fs
	precedence ConfigPrecedence
	getenv     func(string) string
	validator  *Validator
}

// NewLoader creates a new configuration loader reading from fsys.
func NewLoader(fsys afero.Fs, precedence ConfigPrecedence) *Loader {
	return &Loader{
		fs:         fsys,
		precedence: precedence,
		getenv:     os.Getenv,
		validator:  NewValidator(),
	}
}

// WithEnv replaces os.Getenv, mostly for tests.
func (l *Loader) WithEnv(getenv func(string) string) *Loader {
	l.getenv = getenv
	return l
}

// Load builds the configuration. When path is set only that file is read and
// it must exist; otherwise the system, user and project files are layered in
// that order, skipping missing ones. Environment overrides apply last.
func (l *Loader) Load(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		if err := l.loadFile(path, config); err != nil {
			return nil, fmt.Errorf("failed to load %s config from %s: %w", SourceExplicit, path, err)
		}
	} else {
		sources := []struct {
			path   string
			source ConfigSource
		}{
			{l.precedence.SystemConfig, SourceSystem},
			{l.precedence.UserConfig, SourceUser},
			{l.precedence.ProjectConfig, SourceProject},
		}
		for _, src := range sources {
			if src.path == "" {
				continue
			}
			if err := l.loadFile(src.path, config); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to load %s config from %s: %w", src.source, src.path, err)
			}
		}
	}

	if err := l.applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	if err := l.validator.Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFile decodes path on top of config, so keys absent from the file keep
// their current values. ${VAR} references are expanded first. JSON files go
// through the same decoder since YAML accepts JSON syntax.
func (l *Loader) loadFile(path string, config *Config) error {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return err
	}

	expanded := l.expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR_NAME} references. Any other $ is kept.
func (l *Loader) expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return l.getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// applyEnvironmentOverrides applies environment variable overrides to config
func (l *Loader) applyEnvironmentOverrides(config *Config) error {
	if prefix := l.precedence.EnvironmentPrefix; prefix != "" {
		env := func(name string) string { return l.getenv(prefix + "_" + name) }

		setString(&config.Server.Addr, env("ADDR"))
		setString(&config.Server.HubPath, env("HUB_PATH"))
		setString(&config.API.Provider, env("PROVIDER"))
		setString(&config.API.BaseURL, env("BASE_URL"))
		setString(&config.API.APIKey, env("API_KEY"))
		setString(&config.Assistant.AssistantModel, env("ASSISTANT_MODEL"))
		setString(&config.Assistant.TranscriptionModel, env("TRANSCRIPTION_MODEL"))
		setString(&config.Assistant.VoiceModel, env("VOICE_MODEL"))
		setString(&config.Assistant.Voice, env("VOICE"))
		setString(&config.Storage.DatabasePath, env("DATABASE_PATH"))
		setString(&config.Logging.Level, env("LOG_LEVEL"))
		setString(&config.Logging.Format, env("LOG_FORMAT"))

		bools := []struct {
			name   string
			target *bool
		}{
			{"DETAILED_ERRORS", &config.Server.DetailedErrors},
			{"SPEAK_REPLIES", &config.Assistant.SpeakReplies},
			{"STORAGE_ENABLED", &config.Storage.Enabled},
		}
		for _, b := range bools {
			v := env(b.name)
			if v == "" {
				continue
			}
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return ValidationError{Field: prefix + "_" + b.name, Message: "must be a boolean", Value: v}
			}
			*b.target = parsed
		}
	}

	if config.API.APIKey == "" && config.API.APIKeyEnvVar != "" {
		config.API.APIKey = l.getenv(config.API.APIKeyEnvVar)
	}

	if origin := strings.TrimSpace(l.getenv(FrontendURIEnvVar)); origin != "" && !slices.Contains(config.Server.AllowedOrigins, origin) {
		config.Server.AllowedOrigins = append(config.Server.AllowedOrigins, origin)
	}

	return nil
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

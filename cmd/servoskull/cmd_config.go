package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/elee1766/servoskull/src/config"
)

// ConfigCmd inspects the effective configuration
type ConfigCmd struct {
	Show     ConfigShowCmd     `cmd:"" default:"1" help:"Print the effective configuration"`
	Validate ConfigValidateCmd `cmd:"" help:"Validate the configuration and exit"`
}

// ConfigShowCmd prints the merged configuration with the API key masked
type ConfigShowCmd struct {
	Format string `short:"f" enum:"yaml,json" default:"yaml" help:"Output format (yaml, json)"`
}

// Run executes the config show command
func (c *ConfigShowCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}

	out, err := renderConfig(cfg, c.Format)
	if err != nil {
		return err
	}

	if isTerminal(os.Stdout) {
		if err := quick.Highlight(os.Stdout, out, c.Format, "terminal256", "monokai"); err == nil {
			return nil
		}
	}
	_, err = io.WriteString(os.Stdout, out)
	return err
}

// renderConfig encodes a copy of cfg with secrets masked.
func renderConfig(cfg *config.Config, format string) (string, error) {
	masked := *cfg
	masked.API.APIKey = maskAPIKey(cfg.API.APIKey)

	switch format {
	case "json":
		data, err := json.MarshalIndent(masked, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode config: %w", err)
		}
		return string(data) + "\n", nil
	default:
		data, err := yaml.Marshal(masked)
		if err != nil {
			return "", fmt.Errorf("failed to encode config: %w", err)
		}
		return string(data), nil
	}
}

// ConfigValidateCmd loads and validates the configuration
type ConfigValidateCmd struct{}

// Run executes the config validate command
func (c *ConfigValidateCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if cfg.API.APIKey == "" {
		fmt.Fprintln(os.Stderr, "warning: no API key configured, serve will refuse to start")
	}
	fmt.Println("Configuration is valid")
	return nil
}

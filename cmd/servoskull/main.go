package main

import (
	"os"

	"github.com/alecthomas/kong"
)

// CLI represents the main CLI structure
type CLI struct {
	ConfigFile string `name:"config" short:"c" env:"SERVOSKULL_CONFIG" type:"path" help:"Config file (skips the default search path)"`
	APIKey     string `env:"SERVOSKULL_API_KEY" help:"Upstream API key"`
	BaseURL    string `help:"Custom API base URL"`
	LogLevel   string `help:"Log level (debug, info, warn, error)"`
	LogFormat  string `help:"Log format (text, json)"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the chat relay (default)"`
	History HistoryCmd `cmd:"" help:"Browse archived conversations"`
	Config  ConfigCmd  `cmd:"" help:"Inspect configuration"`
	Migrate MigrateCmd `cmd:"" help:"Database migrations"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("servoskull"),
		kong.Description("Real-time multimodal chat relay"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	err := ctx.Run(&cli)
	if err != nil {
		NewErrorHandler(createCLILogger(cli.LogLevel, cli.LogFormat)).HandleError(err)
	}
	os.Exit(ExitSuccess)
}

package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"

	"bookdex/internal/config"
)

// CLI represents the complete command structure for the bookdex application
type CLI struct {
	// Global flags
	Config  string `short:"c" help:"Path to config file" type:"path"`
	Verbose bool   `short:"v" help:"Enable debug logging"`

	Serve ServeCmd  `cmd:"" help:"Run the enrichment HTTP server"`
	Book  EnrichCmd `cmd:"" name:"enrich" help:"Enrich a single book and print the result"`
	Cache CacheCmd  `cmd:"" help:"Manage the lookup cache"`
}

// Execute runs the Kong-based CLI
func Execute() {
	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("bookdex"),
		kong.Description("A book metadata enrichment service with tiered source fallback."),
		kong.UsageOnError(),
	)

	initLogging(cli.Verbose)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		slog.Error("Loading configuration failed", "error", err)
		os.Exit(1)
	}

	if err := ctx.Run(cfg); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := humanlog.NewHandler(os.Stdout, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// requireSources fails fast when the configuration enables no source at all.
func requireSources(cfg *config.Config) error {
	for _, src := range cfg.Sources {
		if src.Enabled {
			return nil
		}
	}
	return fmt.Errorf("no sources enabled in configuration")
}

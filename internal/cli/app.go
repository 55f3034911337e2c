package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/alexdong/quinn/internal/config"
	"github.com/alexdong/quinn/internal/daemon"
	"github.com/alexdong/quinn/internal/logger"
	"github.com/alexdong/quinn/pkg/agent"
	"github.com/alexdong/quinn/pkg/conversation"
)

// app is what a command needs once configuration is loaded
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	core    *daemon.Core
	manager *conversation.Manager
	prompts *agent.PromptStore

	in  io.Reader
	out io.Writer
	// interactive is true when stdin is a terminal rather than a pipe
	interactive bool
	editor      func(ctx context.Context, initial string) (string, error)
}

// loadConfig loads the config file and applies the global flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	cfg.Logging.Debug = debug
	if mods := parseDebugModules(debugModules); len(mods) > 0 {
		cfg.Logging.DebugModules = mods
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newApp loads config and opens the core. Interactive commands keep the
// console free of log lines unless --debug is set.
func newApp(cmd *cobra.Command, quiet bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if quiet && !debug {
		cfg.Logging.Console = false
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	core, err := daemon.NewCore(cmd.Context(), cfg, log)
	if err != nil {
		log.Close()
		return nil, err
	}

	in := cmd.InOrStdin()
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return &app{
		cfg:         cfg,
		log:         log,
		core:        core,
		manager:     core.Manager,
		prompts:     core.Prompts,
		in:          in,
		out:         cmd.OutOrStdout(),
		interactive: interactive,
		editor: func(ctx context.Context, initial string) (string, error) {
			return openEditor(ctx, cfg.Editor, initial)
		},
	}, nil
}

// Close releases the database and log file
func (a *app) Close() {
	if a.core != nil {
		if err := a.core.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close database")
		}
	}
	if a.log != nil {
		a.log.Close()
	}
}

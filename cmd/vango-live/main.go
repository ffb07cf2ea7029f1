package main

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/vango-live/internal/config"
	"github.com/vango-dev/vango-live/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// globals holds the persistent flags shared by every command.
type globals struct {
	dir       string
	logLevel  string
	logFormat string
}

func main() {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:   "vango-live",
		Short: "Live component updates over WebSocket",
		Long: `vango-live serves server-rendered components over a persistent
WebSocket channel, with an HTTP fallback for clients that cannot hold one.

Project settings are read from live.json in the working directory (or
--dir); flags override the file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&g.dir, "dir", ".", "Directory containing live.json")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(
		serveCmd(g),
		connectCmd(g),
		initCmd(g),
		benchCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		var le *errors.Error
		if stderrors.As(err, &le) {
			fmt.Fprint(os.Stderr, le.Format())
		} else {
			fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		}
		os.Exit(1)
	}
}

// load reads live.json and applies the persistent flag overrides.
func (g *globals) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(g.dir)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return nil, nil, errors.New(errors.CodeConfigInvalid).WithField("log.level").Wrap(err)
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

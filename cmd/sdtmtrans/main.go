package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shpitdev/sdtm-translation-pipeline/internal/config"
	"github.com/shpitdev/sdtm-translation-pipeline/internal/logging"
	"github.com/shpitdev/sdtm-translation-pipeline/pkg/pipeline/redact"
)

// exitError carries the process exit code: 2 for configuration problems,
// 1 for failed runs.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

func configErr(err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: 2, err: err}
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// env is what every command needs once flags are parsed.
type env struct {
	cfg *config.Config
	log zerolog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := rootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %s\n", redact.Error(err))
		stop()
		os.Exit(exitCode(err))
	}
}

func rootCmd() *cobra.Command {
	var configFile string
	e := &env{}

	root := &cobra.Command{
		Use:           "sdtmtrans",
		Short:         "SDTM dataset merging, term extraction and translation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return configErr(err)
			}
			e.cfg = cfg
			e.log = logging.New(cfg.Env, cfg.LogLevel)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json, toml or .env)")
	root.PersistentFlags().String("log-level", "", "Log level (env: LOG_LEVEL)")
	root.PersistentFlags().String("db", "", "SQLite database path (env: DB_PATH)")

	root.AddCommand(
		ingestCmd(e),
		infoCmd(e),
		previewCmd(e),
		sourcesCmd(e),
		mergeCmd(e),
		worklistCmd(e),
		translateCmd(e),
		serveCmd(e),
		dictCmd(e),
		versionCmd(),
	)
	return root
}

// Package cli wires the configuration to the meanrev commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/meanrev/config"
	"github.com/rustyeddy/meanrev/internal/logging"
)

// Version is set at build time.
var Version = "dev"

// RootConfig holds the persistent flags and what PersistentPreRunE
// builds from them.
type RootConfig struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string

	Config *config.Config
	Log    zerolog.Logger
}

func NewRootCmd() *cobra.Command {
	rc := &RootConfig{}

	cmd := &cobra.Command{
		Use:   "meanrev",
		Short: "meanrev: bar-to-trade research pipeline for index futures",
		Long: `meanrev runs one decision pipeline (bars, indicators, regime, strategy,
confluence score, risk gate, simulated fills) over historical data.

It provides tools for:
  - Backtesting a parameter set, journaling every trade
  - Walk-forward testing a parameter grid
  - Replaying data through the live wiring with metrics and review publishing
  - Querying the trade journal`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&rc.ConfigPath, "config", "c", "", "path to config file (defaults apply when empty)")
	cmd.PersistentFlags().StringVar(&rc.LogLevel, "log-level", "", "override log level: debug|info|warn|error")
	cmd.PersistentFlags().StringVar(&rc.LogFormat, "log-format", "", "override log format: console|json")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return rc.load()
	}

	cmd.AddCommand(
		newBacktestCmd(rc),
		newWalkForwardCmd(rc),
		newReplayCmd(rc),
		newConfigCmd(rc),
		newJournalCmd(rc),
		newVersionCmd(),
	)
	return cmd
}

func (rc *RootConfig) load() error {
	cfg := config.Default()
	if rc.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(rc.ConfigPath); err != nil {
			return err
		}
	}
	if rc.LogLevel != "" {
		cfg.Log.Level = rc.LogLevel
	}
	if rc.LogFormat != "" {
		cfg.Log.Format = rc.LogFormat
	}
	log, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	rc.Config = cfg
	rc.Log = log
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "meanrev %s\n", Version)
		},
	}
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// Package cmd implements the maestro command line.
package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/poucet/maestro/pkg/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=..."
var Version = "dev"

var (
	v = config.New()

	// Resolved in PersistentPreRunE
	cfg    *config.Config
	logger *slog.Logger

	logFile   string
	envFile   string
	logCloser io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "maestro",
	Short: "Supervise a development process and expose it as MCP tools",
	Long: `maestro keeps one target command running for a development session.

It starts the command in its own process group, attaches to a process that
already serves the configured port, restarts it a bounded number of times
when it exits, and records each run. The serve command exposes the process,
its logs, the working tree and git as MCP tools.

Configuration comes from flags, SIMPLY_MAESTRO_* environment variables, a
.env file and an optional YAML manifest, in that order of precedence.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&envFile, "env-file", ".env", "Environment file loaded before configuration")
	flags.StringVar(&logFile, "log-file", "", "Also write maestro's own log to this rotated file")
	flags.String("log-level", "INFO", "Log level (debug, info, warn, error)")
	flags.StringP("working-dir", "C", ".", "Working directory for the target, files and git")
	flags.String("manifest", "", "YAML manifest describing the target")
	flags.String("log-dir", "logs", "Directory for process log files")
	flags.String("history-db", "", "Run history database path, or \"off\"")

	// Target
	flags.String("target-cmd", "", "Command to supervise")
	flags.Int("target-port", 0, "Port the target listens on (0 for none)")
	flags.String("restart-delay", "1s", "Delay before an automatic restart")
	flags.Int("max-restart-attempts", 3, "Automatic restarts before giving up")
	flags.Int("metrics-port", 0, "Serve Prometheus metrics on this port (0 disables)")

	bind(flags.Lookup("log-level"), config.KeyLogLevel)
	bind(flags.Lookup("working-dir"), config.KeyWorkingDir)
	bind(flags.Lookup("manifest"), config.KeyManifest)
	bind(flags.Lookup("log-dir"), config.KeyLogDir)
	bind(flags.Lookup("history-db"), config.KeyHistoryDB)
	bind(flags.Lookup("target-cmd"), config.KeyTargetCmd)
	bind(flags.Lookup("target-port"), config.KeyTargetPort)
	bind(flags.Lookup("restart-delay"), config.KeyRestartDelay)
	bind(flags.Lookup("max-restart-attempts"), config.KeyMaxRestartAttempts)
	bind(flags.Lookup("metrics-port"), config.KeyMetricsPort)
}

// bind wires a flag to a configuration key. An unchanged flag leaves the
// environment and manifest in charge.
func bind(flag *pflag.Flag, key string) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(envFile, cmd.Flags().Changed("env-file")); err != nil {
		return err
	}

	loaded, err := config.Load(v)
	if err != nil {
		return err
	}
	cfg = loaded

	l, closer, err := newLogger(cmd.ErrOrStderr(), logFile, cfg.SlogLevel())
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	logger = l
	logCloser = closer
	slog.SetDefault(logger)
	return nil
}

package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/poucet/maestro/cmd/maestro/internal/ui"
	"github.com/poucet/maestro/pkg/logsink"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Inspect process log files",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List log files, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

		logs, err := logsink.NewCatalog(cfg.LogDir).List()
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			out.Info("No log files in " + cfg.LogDir)
			return nil
		}

		table := out.NewTable("FILE", "SIZE", "MODIFIED")
		for _, l := range logs {
			table.AddRow(l.Filename, humanSize(l.Size), l.Modified.Format(time.DateTime))
		}
		table.Render()
		return nil
	},
}

var logsShowCmd = &cobra.Command{
	Use:   "show FILE",
	Short: "Print a log file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := logsink.NewCatalog(cfg.LogDir).Read(args[0])
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), content.Content)
		return err
	},
}

var fromStart bool

var logsTailCmd = &cobra.Command{
	Use:   "tail [FILE]",
	Short: "Follow a log file (the newest when FILE is omitted)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := logsink.NewCatalog(cfg.LogDir)

		var path string
		if len(args) == 1 {
			p, err := catalog.Resolve(args[0])
			if err != nil {
				return err
			}
			path = p
		} else {
			logs, err := catalog.List()
			if err != nil {
				return err
			}
			if len(logs) == 0 {
				return fmt.Errorf("no log files in %s", cfg.LogDir)
			}
			path = logs[0].Path
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
		out.Info("Following " + path)
		return logsink.Follow(ctx, path, fromStart, out.Println)
	},
}

func init() {
	logsTailCmd.Flags().BoolVar(&fromStart, "from-start", false, "Print existing content before following")

	logsCmd.AddCommand(logsListCmd, logsShowCmd, logsTailCmd)
	rootCmd.AddCommand(logsCmd)
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/poucet/maestro/cmd/maestro/internal/ui"
	"github.com/poucet/maestro/pkg/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs of the target",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr())

		path := cfg.HistoryPath()
		if path == "" {
			return fmt.Errorf("run history is disabled")
		}

		store, err := history.Open(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			out.Info("No runs recorded")
			return nil
		}

		now := time.Now()
		table := out.NewTable("STARTED", "PID", "MODE", "DURATION", "EXIT", "REASON", "COMMAND")
		for _, r := range runs {
			exit := ""
			if r.ExitCode != nil {
				exit = strconv.Itoa(*r.ExitCode)
			}
			reason := r.EndReason
			if r.EndedAt == nil {
				reason = "running"
			}
			table.AddRow(
				r.StartedAt.Local().Format(time.DateTime),
				strconv.Itoa(r.PID),
				r.Mode,
				r.Duration(now).Round(time.Second).String(),
				exit,
				reason,
				r.Command,
			)
		}
		table.Render()
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultLimit, "Number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

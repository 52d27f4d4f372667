package cmd

import (
	"fmt"
	"strconv"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"github.com/poucet/maestro/cmd/maestro/internal/ui"
	"github.com/poucet/maestro/pkg/portprobe"
)

var portCmd = &cobra.Command{
	Use:   "port PORT",
	Short: "Show which processes listen on a TCP port",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		port, err := strconv.Atoi(args[0])
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("invalid port %q", args[0])
		}

		out := ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
		owners := portprobe.New(portprobe.WithLogger(logger)).FindOwners(cmd.Context(), port)
		if len(owners) == 0 {
			out.Info(fmt.Sprintf("Nothing is listening on port %d", port))
			return nil
		}

		table := out.NewTable("PID", "NAME", "COMMAND")
		for _, pid := range owners {
			name, cmdline := describe(pid)
			table.AddRow(strconv.Itoa(pid), name, cmdline)
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(portCmd)
}

// describe returns a process name and command line, empty when unavailable
func describe(pid int) (string, string) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", ""
	}
	name, _ := p.Name()
	cmdline, _ := p.Cmdline()
	return name, cmdline
}

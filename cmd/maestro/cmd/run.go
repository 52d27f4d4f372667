package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"

	"github.com/poucet/maestro/cmd/maestro/internal/ui"
	"github.com/poucet/maestro/pkg/procmgr"
)

var runCmd = &cobra.Command{
	Use:   "run [-- command args...]",
	Short: "Supervise the target in the foreground",
	Long: `Start the target and print its output until interrupted.

The target restarts automatically up to --max-restart-attempts times. The
command exits once the target has exited for the last time.

Example:
  maestro run -- npm run dev
  maestro run --target-port 3000 --target-cmd "node server.js"
`,
	RunE: runRun,
}

var forceNew bool

func init() {
	runCmd.Flags().BoolVar(&forceNew, "force-new", false, "Free the port instead of attaching to its owner")
	rootCmd.AddCommand(runCmd)
}

// exitWatcher signals each exit or failed spawn of the target and forwards
// every event to next. Events are published under the supervisor lock, so
// it never blocks.
type exitWatcher struct {
	next   procmgr.EventPublisher
	events chan string
}

func (w *exitWatcher) ReportLifecycleEvent(ctx context.Context, eventType, message string, metadata map[string]string) error {
	if eventType == procmgr.EventExited || eventType == procmgr.EventFailed {
		select {
		case w.events <- eventType:
		default:
		}
	}
	return w.next.ReportLifecycleEvent(ctx, eventType, message, metadata)
}

// attachedPollInterval is how often an adopted process is checked; it
// publishes no exit events
const attachedPollInterval = 500 * time.Millisecond

func runRun(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		cfg.TargetCmd = shellquote.Join(args...)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
	watcher := &exitWatcher{
		next:   &procmgr.LogEventPublisher{Logger: logger.With("component", "events")},
		events: make(chan string, 16),
	}

	rt, err := openRuntime(ctx, cfg, true,
		procmgr.WithObserver(func(line string) { out.Println(line) }),
		procmgr.WithEventPublisher(watcher),
	)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	r := rt.supervisor.Start(forceNew)
	if !r.OK {
		out.Error(r.Message)
		return r.Err
	}
	out.Success(r.Message)

	return follow(ctx, rt.supervisor, watcher.events, cfg.MaxRestartAttempts, out)
}

// follow blocks until ctx is done, the target exits for the last time or an
// automatic restart fails to spawn it
func follow(ctx context.Context, sup *procmgr.Supervisor, events <-chan string, maxAttempts int, out *ui.UI) error {
	ticker := time.NewTicker(attachedPollInterval)
	defer ticker.Stop()

	exits := 0
	for {
		select {
		case <-ctx.Done():
			out.Info("Stopping")
			if r := sup.Stop(); !r.OK {
				out.Error(r.Message)
				return r.Err
			}
			return nil

		case event := <-events:
			if event == procmgr.EventFailed {
				if sup.IsRunning() {
					continue
				}
				return fmt.Errorf("process could not be restarted after %d exits", exits)
			}
			exits++
			if exits > maxAttempts {
				return fmt.Errorf("process exited after %d restart attempts", maxAttempts)
			}
			out.Warning(fmt.Sprintf("Process exited, restarting (%d/%d)", exits, maxAttempts))

		case <-ticker.C:
			st := sup.Status()
			if st.Mode == procmgr.ModeAttached && !st.Running {
				return fmt.Errorf("attached process %d is no longer running", st.PID)
			}
		}
	}
}

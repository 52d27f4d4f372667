package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/poucet/maestro/pkg/config"
	"github.com/poucet/maestro/pkg/files"
	"github.com/poucet/maestro/pkg/logsink"
	"github.com/poucet/maestro/pkg/tools"
	"github.com/poucet/maestro/pkg/vcs"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the supervisor, logs, files and git as MCP tools",
	Long: `Start the MCP tool server.

The sse transport listens on the MCP port (default 5000). The stdio
transport speaks the protocol on stdin/stdout; maestro's own log stays on
stderr.

Example:
  maestro serve --target-cmd "python -m http.server 8000" --target-port 8000
  SIMPLY_MAESTRO_TRANSPORT=stdio maestro serve
`,
	RunE: runServe,
}

var startOnServe bool

func init() {
	serveCmd.Flags().String("transport", config.TransportSSE, "Tool transport (sse or stdio)")
	serveCmd.Flags().IntP("port", "p", 5000, "SSE listen port")
	serveCmd.Flags().BoolVar(&startOnServe, "start", false, "Start the target before serving")

	bind(serveCmd.Flags().Lookup("transport"), config.KeyTransport)
	bind(serveCmd.Flags().Lookup("port"), config.KeyMCPPort)

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg, startOnServe)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	fm, err := files.NewManager(cfg.WorkingDir, cfg.AllowedPaths, files.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("file access: %w", err)
	}

	opts := []tools.Option{tools.WithLogger(logger)}
	if rt.supervisor != nil {
		opts = append(opts, tools.WithSupervisor(rt.supervisor))
	}
	if rt.store != nil {
		opts = append(opts, tools.WithHistory(rt.store))
	}
	svc := tools.NewService(logsink.NewCatalog(cfg.LogDir), fm, vcs.New(cfg.WorkingDir, logger), opts...)

	if startOnServe {
		r := rt.supervisor.Start(false)
		if !r.OK {
			return r.Err
		}
		logger.Info(r.Message)
	}

	logger.Info("serving tools",
		"transport", cfg.Transport,
		"port", cfg.MCPPort,
		"working_dir", cfg.WorkingDir,
		"target", cfg.TargetCmd,
		"version", Version)

	if err := tools.Serve(ctx, tools.NewServer(svc, Version), cfg.Transport, cfg.MCPPort); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}

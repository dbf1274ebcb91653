package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tabpilot/internal/cron"
	"github.com/nextlevelbuilder/tabpilot/internal/gateway"
	"github.com/nextlevelbuilder/tabpilot/internal/gateway/methods"
	"github.com/nextlevelbuilder/tabpilot/pkg/protocol"
)

func serveCmd() *cobra.Command {
	var (
		ws     bool
		listen string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the request protocol on stdio, or on a WebSocket with --ws",
		Long: `Serve the request protocol.

By default frames are read from stdin and written to stdout, one JSON object
per line. With --ws the server listens on server.listen (path /ws) and keeps
debug sessions alive between client connections. Jobs listed under
"schedules" in the config run while the server is up.`,
		Run: func(cmd *cobra.Command, args []string) {
			runServe(ws, listen)
		},
	}
	cmd.Flags().BoolVar(&ws, "ws", false, "listen for WebSocket clients instead of stdio")
	cmd.Flags().StringVar(&listen, "listen", "", "override server.listen")
	return cmd
}

func runServe(ws bool, listen string) {
	cfg := mustConfig()
	if listen != "" {
		cfg.Server.Listen = listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel := initOTelExporter(ctx, cfg)

	srv := gateway.NewServer(cfg.Server, gateway.WithVersion(Version))
	a, err := newApp(ctx, cfg, appOptions{
		watchClickable: true,
		onReattach: func(tabID string, err error) {
			if err != nil {
				srv.Broadcast(protocol.EventSessionLost, map[string]string{"tabId": tabID, "error": err.Error()})
				return
			}
			srv.Broadcast(protocol.EventSessionReattached, map[string]string{"tabId": tabID})
		},
	})
	if err != nil {
		fatalf("Error: %s", err)
	}

	methods.NewRunMethods(a.engine).Register(srv.Router())
	methods.NewSessionsMethods(a.engine, srv).Register(srv.Router())
	var hist methods.HistoryLister
	if a.history != nil {
		hist = a.history
	}
	methods.NewInventoryMethods(a.engine, a.scripts, hist).Register(srv.Router())

	jobs, err := cron.JobsFromConfig(cfg.Schedules)
	if err != nil {
		fatalf("Error: schedules: %s", err)
	}
	sched, err := cron.NewService(jobs, methods.ScheduledRunner(a.engine, srv), cron.WithLogger(slog.Default()))
	if err != nil {
		fatalf("Error: schedules: %s", err)
	}
	methods.NewSchedulesMethods(sched).Register(srv.Router())
	if len(jobs) > 0 {
		sched.Start(ctx)
	}

	if ws {
		if err := srv.ListenAndServe(ctx, cfg.Server.Listen); err != nil {
			slog.Error("server stopped", "error", err)
		}
	} else {
		slog.Info("serving on stdio")
		done := make(chan struct{})
		go func() {
			defer close(done)
			srv.ServeStdio(ctx, os.Stdin, os.Stdout)
		}()
		// a blocked stdin read does not see ctx
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.sessions.DetachAll(shutdownCtx); err != nil {
		slog.Warn("detach on shutdown", "error", err)
	}
	a.close()
	a.browser.Close()
	shutdownOTel(shutdownCtx)
}

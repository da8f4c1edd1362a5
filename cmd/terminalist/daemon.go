package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/terminalist/terminalist/internal/config"
	"github.com/terminalist/terminalist/internal/daemon"
	"github.com/terminalist/terminalist/internal/dashboard"
	"github.com/terminalist/terminalist/internal/orchestrator"
)

var daemonInterval time.Duration

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Sync every enabled backend in the background",
	Long: `Run headless and sync every enabled backend on start and then on a
fixed interval (sync.auto_sync_interval_minutes, or --interval).

The config file is watched; saving a new interval applies it without a
restart. Stop with Ctrl+C.`,
	Run: func(cmd *cobra.Command, args []string) {
		runDaemon(nil)
	},
}

var dashboardPort int

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Run the sync daemon with a live WebSocket event feed",
	Long: `Run the sync daemon and serve its events over WebSocket.

WebSocket messages include:
- sync_started: a backend began a sync pass
- sync_complete: a pass finished, with per-kind counts and failures
- task_update: a task was created, changed, completed or deleted
- stats: open, completed, overdue and unpushed task counts

Example usage:
  terminalist dashboard                 # Start on dashboard.port
  terminalist dashboard --port 9000     # Start on a custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		port := dashboardPort
		if !cmd.Flags().Changed("port") {
			port = -1
		}
		runDaemon(&port)
	},
}

// runDaemon runs the sync daemon until interrupted. A non-nil port also
// serves the dashboard; -1 means the configured port.
func runDaemon(port *int) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a := openApp(ctx, os.Stderr)
	defer a.Close()

	interval := daemonInterval
	if interval <= 0 {
		interval = a.cfg.AutoSyncInterval()
	}
	if interval <= 0 {
		interval = daemon.DefaultConfig().SyncInterval
		fmt.Fprintf(os.Stderr, "Auto-sync is disabled in the config; syncing every %s\n", interval)
	}

	orch := orchestrator.New(a.logs.Logger("tasks"))
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := orch.Shutdown(sctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}()

	dcfg := daemon.DefaultConfig()
	dcfg.SyncInterval = interval
	dcfg.Logger = a.logs.Logger("daemon")
	if src := a.cfg.Source(); src != "defaults" && daemonInterval <= 0 {
		dcfg.ConfigPath = src
		dcfg.Reload = func(path string) (time.Duration, error) {
			next, err := config.Load(path)
			if err != nil {
				return 0, err
			}
			return next.AutoSyncInterval(), nil
		}
	}

	if port != nil {
		p := *port
		if p < 0 {
			p = a.cfg.Dashboard.Port
		}
		server := dashboard.NewServer(&dashboard.Config{Port: p, Logger: a.logs.Logger("dashboard")})
		if err := server.Start(); err != nil {
			a.Close()
			fatalf("failed to start dashboard: %v", err)
		}
		defer func() {
			if err := server.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			}
		}()

		handler := dashboard.NewHandler(server, a.db, a.logs.Logger("dashboard"))
		dcfg.Notifier = handler
		backends, err := a.db.ListBackends(ctx, true)
		if err == nil {
			for _, b := range backends {
				handler.RefreshStats(b.ID)
			}
		}

		fmt.Printf("Dashboard server started on http://%s\n", server.Addr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.Addr())
		fmt.Printf("Health check: http://%s/health\n", server.Addr())
	}

	d, err := daemon.NewWithConfig(a.engine, orch, dcfg)
	if err != nil {
		a.Close()
		fatalf("%v", err)
	}
	fmt.Println("Press Ctrl+C to stop...")
	if err := d.Start(ctx); err != nil {
		a.Close()
		fatalf("%v", err)
	}
}

func init() {
	daemonCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Sync interval, overriding the config (disables config reload)")
	dashboardCmd.Flags().DurationVar(&daemonInterval, "interval", 0, "Sync interval, overriding the config (disables config reload)")
	dashboardCmd.Flags().IntVarP(&dashboardPort, "port", "p", 8080, "Port to listen on (default: dashboard.port)")
	rootCmd.AddCommand(daemonCmd, dashboardCmd)
}

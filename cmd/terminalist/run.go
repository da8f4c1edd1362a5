package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/terminalist/terminalist/internal/orchestrator"
	"github.com/terminalist/terminalist/internal/tui"
	"github.com/terminalist/terminalist/internal/ui"
)

var (
	runBackend string
	runView    string
	runNoSync  bool
)

var runCmd = &cobra.Command{
	Use:     "run",
	GroupID: "tasks",
	Short:   "Start the terminal interface",
	Long: `Start the terminal interface on the active backend.

Every change is saved to the local cache at once and pushed on the next
sync. The active backend syncs on start and then every
sync.auto_sync_interval_minutes. Press ? inside for key bindings.`,
	Run: func(cmd *cobra.Command, args []string) {
		runTUI(runBackend, runView, !runNoSync)
	},
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, runCmd} {
		c.Flags().StringVarP(&runBackend, "backend", "b", "", "Backend name or id to open (default: first enabled)")
		c.Flags().StringVar(&runView, "view", "", "Initial view: inbox, today, tomorrow, upcoming or a project id (default: ui.default_view)")
		c.Flags().BoolVar(&runNoSync, "no-sync", false, "Do not sync on start")
	}
	rootCmd.AddCommand(runCmd)
}

func runTUI(backendRef, view string, syncOnStart bool) {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		fatalf("the interface needs a terminal; use 'terminalist sync' or 'terminalist daemon' for headless use")
	}

	ctx := context.Background()
	a := openApp(ctx, nil)
	defer a.Close()

	opts := ui.DefaultOptions()
	if backendRef != "" {
		b, err := a.findBackend(ctx, backendRef)
		if err != nil {
			fatalf("%v", err)
		}
		opts.BackendID = b.ID
	}
	if view == "" {
		view = a.cfg.UI.DefaultView
	}

	orch := orchestrator.New(a.logs.Logger("tasks"))
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := orch.Shutdown(sctx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}()

	opts.Engine = a.engine
	opts.Orchestrator = orch
	opts.Logger = a.logs.Logger("ui")
	opts.Logs = a.logs.Ring()
	opts.SyncInterval = a.cfg.AutoSyncInterval()
	opts.TickInterval = a.cfg.TickInterval()
	opts.DefaultView = ui.ParseView(view)
	opts.SyncOnStart = syncOnStart
	loop := ui.NewLoop(opts)

	topts := tui.DefaultOptions()
	topts.SidebarWidth = a.cfg.UI.SidebarWidth
	topts.Colors = a.cfg.Display.Colors
	topts.ShowDescriptions = a.cfg.Display.ShowDescriptions
	topts.ShowLabels = a.cfg.Display.ShowLabels
	topts.ShowDurations = a.cfg.Display.ShowDurations
	topts.TimeFormat = a.cfg.Display.TimeFormat
	topts.TickInterval = a.cfg.TickInterval()

	if err := tui.Run(loop, topts, a.cfg.UI.MouseEnabled); err != nil {
		fatalf("%v", err)
	}
}

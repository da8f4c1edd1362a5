package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/store"
	"github.com/terminalist/terminalist/internal/syncer"
)

var syncFormat string

var syncCmd = &cobra.Command{
	Use:     "sync [backend]",
	GroupID: "sync",
	Short:   "Sync with the remote service once",
	Long: `Run one sync pass and print its report.

A pass pulls projects, sections, labels, tasks and task labels in that
order, reconciles them with the cache, then pushes local changes. Without
an argument every enabled backend is synced, one after another.

Exits non-zero if any pass failed or left changes unpushed.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		checkFormat(syncFormat)
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a := openApp(ctx, nil)
		defer a.Close()

		var reports []*syncer.Report
		if len(args) == 1 {
			b, err := a.findBackend(ctx, args[0])
			if err != nil {
				fatalf("%v", err)
			}
			report, err := a.engine.SyncAll(ctx, b.ID)
			if err != nil {
				fatalf("%v", err)
			}
			reports = append(reports, report)
		} else {
			var err error
			if reports, err = a.engine.SyncEnabled(ctx); err != nil {
				fatalf("%v", err)
			}
		}

		if !printStructured(syncFormat, reports) {
			if len(reports) == 0 {
				fmt.Println("No enabled backends to sync.")
			}
			for _, r := range reports {
				printReport(r)
			}
		}

		var failed error
		for _, r := range reports {
			failed = errors.Join(failed, r.Err())
		}
		if failed != nil {
			a.Close()
			fatalf("%v", failed)
		}
	},
}

func printReport(r *syncer.Report) {
	fmt.Printf("%s (%s)\n", r.Summary(), r.Duration().Round(time.Millisecond))
	for _, s := range r.Steps {
		switch {
		case s.Skipped:
			fmt.Printf("  %-10s skipped\n", s.Kind)
		case s.Err != nil:
			fmt.Printf("  %-10s failed: %v\n", s.Kind, s.Err)
		default:
			fmt.Printf("  %-10s %d fetched, %d upserted, %d deleted, %d pushed\n",
				s.Kind, s.Fetched, s.Upserted, s.Deleted, s.Created+s.Updated+s.Removed)
		}
	}
	for _, f := range r.PushFailures {
		fmt.Printf("  push %s %s %s failed: %s\n", f.Op, f.Kind, f.LocalID, f.Error)
	}
	for _, c := range r.Conflicts {
		fmt.Printf("  skipped %s %s: %s\n", c.Kind, c.RemoteID, c.Error)
	}
}

var statusFormat string

// backendStatus is one row of "status".
type backendStatus struct {
	ID       string           `json:"id" yaml:"id"`
	Name     string           `json:"name" yaml:"name"`
	Type     string           `json:"type" yaml:"type"`
	Enabled  bool             `json:"enabled" yaml:"enabled"`
	LastSync *time.Time       `json:"last_sync,omitempty" yaml:"last_sync,omitempty"`
	Tasks    store.TaskCounts `json:"tasks" yaml:"tasks"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show backends, task counts and last sync times",
	Run: func(cmd *cobra.Command, args []string) {
		checkFormat(statusFormat)
		ctx := context.Background()
		a := openApp(ctx, nil)
		defer a.Close()

		backends, err := a.db.ListBackends(ctx, false)
		if err != nil {
			fatalf("%v", err)
		}
		today := time.Now().Format(model.DateLayout)

		rows := make([]backendStatus, 0, len(backends))
		err = a.db.View(ctx, func(tx *store.Tx) error {
			for _, b := range backends {
				row := backendStatus{ID: b.ID, Name: b.Name, Type: b.Type, Enabled: b.Enabled}
				last, err := tx.LastSync(b.ID, "")
				if err != nil {
					return err
				}
				if !last.IsZero() {
					row.LastSync = &last
				}
				if row.Tasks, err = tx.CountTasks(b.ID, today); err != nil {
					return err
				}
				rows = append(rows, row)
			}
			return nil
		})
		if err != nil {
			fatalf("%v", err)
		}

		if printStructured(statusFormat, rows) {
			return
		}
		fmt.Printf("Cache: %s\n", a.db.Path())
		fmt.Printf("Config: %s\n\n", a.cfg.Source())
		if len(rows) == 0 {
			fmt.Println("No backends. Add one with 'terminalist backend add'.")
			return
		}
		for _, r := range rows {
			state := "enabled"
			if !r.Enabled {
				state = "disabled"
			}
			last := "never"
			if r.LastSync != nil {
				last = r.LastSync.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("%s (%s, %s)\n", r.Name, r.Type, state)
			fmt.Printf("  Tasks: %d open, %d completed, %d overdue\n", r.Tasks.Open, r.Tasks.Completed, r.Tasks.Overdue)
			fmt.Printf("  Unpushed: %s\n", plural(r.Tasks.Pending, "task"))
			fmt.Printf("  Last sync: %s\n", last)
		}
	},
}

func init() {
	syncCmd.Flags().StringVarP(&syncFormat, "format", "f", formatText, "Output format: text, json or yaml")
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", formatText, "Output format: text, json or yaml")
	rootCmd.AddCommand(syncCmd, statusCmd)
}

// Command terminalist is a local-first task manager for the terminal.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/terminalist/terminalist/internal/config"
	"github.com/terminalist/terminalist/internal/logging"
	"github.com/terminalist/terminalist/internal/model"
	"github.com/terminalist/terminalist/internal/store"
	"github.com/terminalist/terminalist/internal/syncer"

	// Backend types available to "backend add".
	_ "github.com/terminalist/terminalist/internal/remote/fake"
	_ "github.com/terminalist/terminalist/internal/remote/googletasks"
	_ "github.com/terminalist/terminalist/internal/remote/todoist"
)

var (
	configPath string
	dbPath     string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "terminalist",
	Short: "Local-first task manager for the terminal",
	Long: `terminalist keeps a local cache of your projects, sections, labels and
tasks, lets you change them instantly, and syncs with the remote service in
the background.

Without a subcommand it starts the terminal interface.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		runTUI(runBackend, runView, !runNoSync)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./terminalist.toml or "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Cache database path (overrides database.path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Also log to stderr")

	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Tasks:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// fatalf prints an error and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// app holds what every command that touches the cache needs.
type app struct {
	cfg    *config.Config
	logs   *logging.Sink
	db     *store.DB
	engine *syncer.Engine
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatalf("%v", err)
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg
}

// openApp loads the config, starts logging and opens the cache. Headless
// commands pass os.Stderr as extra to see log lines as they happen.
func openApp(ctx context.Context, extra io.Writer) *app {
	cfg := loadConfig()

	opts := logging.Options{RingSize: cfg.Logging.RingSize}
	if cfg.Logging.Enabled {
		opts.File = cfg.Logging.File
		opts.MaxSizeMB = cfg.Logging.MaxSizeMB
		opts.MaxBackups = cfg.Logging.MaxBackups
		opts.MaxAgeDays = cfg.Logging.MaxAgeDays
	}
	if verbose && extra == nil {
		extra = os.Stderr
	}
	opts.Extra = extra
	sink, err := logging.New(opts)
	if err != nil {
		fatalf("%v", err)
	}

	db, err := store.OpenAndInit(ctx, cfg.Database.Path)
	if err != nil {
		sink.Close()
		fatalf("failed to open cache %s: %v", cfg.Database.Path, err)
	}

	return &app{
		cfg:    cfg,
		logs:   sink,
		db:     db,
		engine: syncer.New(db, nil, sink.Logger("sync")),
	}
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close cache: %v\n", err)
	}
	if err := a.logs.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// findBackend resolves a backend by id or case-insensitive name. An empty
// ref picks the first enabled backend.
func (a *app) findBackend(ctx context.Context, ref string) (*model.Backend, error) {
	backends, err := a.db.ListBackends(ctx, ref == "")
	if err != nil {
		return nil, err
	}
	if ref == "" {
		if len(backends) == 0 {
			return nil, fmt.Errorf("no enabled backend; add one with 'terminalist backend add'")
		}
		return backends[0], nil
	}
	for _, b := range backends {
		if b.ID == ref || strings.EqualFold(b.Name, ref) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("backend %q not found", ref)
}

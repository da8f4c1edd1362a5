package daemon_test

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/terminalist/terminalist/internal/config"
	"github.com/terminalist/terminalist/internal/daemon"
	"github.com/terminalist/terminalist/internal/orchestrator"
	"github.com/terminalist/terminalist/internal/store"
	"github.com/terminalist/terminalist/internal/syncer"
)

// Example shows a headless sync daemon that picks up interval changes from
// the config file.
func Example() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatal(err)
	}
	db, err := store.OpenAndInit(context.Background(), cfg.Database.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	orch := orchestrator.New(nil)
	defer orch.Shutdown(context.Background())

	d, err := daemon.NewWithConfig(syncer.New(db, nil, nil), orch, &daemon.Config{
		SyncInterval: cfg.AutoSyncInterval(),
		ConfigPath:   cfg.Source(),
		Reload: func(path string) (time.Duration, error) {
			next, err := config.Load(path)
			if err != nil {
				return 0, err
			}
			return next.AutoSyncInterval(), nil
		},
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := d.Start(ctx); err != nil {
		log.Fatal(err)
	}
}

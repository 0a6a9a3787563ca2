// Command switchboard-cleanup deletes conversation fragments older than a
// retention window. Intended to run from cron against the same store the
// engine uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/relaydesk/switchboard/internal/config"
	"github.com/relaydesk/switchboard/internal/engine"
	"github.com/relaydesk/switchboard/internal/store"
	"github.com/relaydesk/switchboard/internal/store/memory"
	"github.com/relaydesk/switchboard/internal/store/postgres"
	"github.com/relaydesk/switchboard/internal/store/sqlite"
)

func main() {
	days := flag.Int("days", 365, "delete fragments older than this many days")
	dryRun := flag.Bool("dry-run", false, "report what would be deleted without deleting")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline for the cleanup run")
	flag.Parse()

	if *days <= 0 {
		log.Fatal("ERROR: -days must be positive")
	}

	cfg := config.LoadConfig()

	raw, err := openStore(cfg)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	eng, err := engine.New(cfg, raw, nil)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	defer func() { _ = eng.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *dryRun {
		cutoff := time.Now().UTC().AddDate(0, 0, -*days)
		fmt.Printf("dry run: would delete fragments older than %s\n", cutoff.Format(time.RFC3339))
		return
	}

	n, err := eng.CleanupOlderThan(ctx, *days)
	if err != nil {
		log.Fatalf("ERROR: cleanup failed: %v", err)
	}
	fmt.Printf("deleted %d fragments older than %d days\n", n, *days)
}

// openStore builds the configured store backend.
func openStore(cfg *config.Config) (store.SemanticStore, error) {
	switch cfg.Store.Engine {
	case "postgres":
		if cfg.Store.PostgresDSN == "" {
			return nil, fmt.Errorf("SWITCHBOARD_POSTGRES_DSN is required for the postgres store")
		}
		return postgres.NewStore(cfg.Store.PostgresDSN)
	case "sqlite":
		return sqlite.NewStore(cfg.Store.SQLitePath)
	case "memory", "":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store engine %q", cfg.Store.Engine)
	}
}

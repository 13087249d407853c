package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/soaringjerry/tasktrail/internal/config"
	"github.com/soaringjerry/tasktrail/internal/db"
)

// runMigrate applies pending migrations and exits; it needs only the
// database settings.
func runMigrate(ctx context.Context) error {
	cfg, _ := config.Load()
	if err := cfg.ValidateDatabase(); err != nil {
		return err
	}
	if cfg.DBDriver == config.DriverMemory {
		return errors.New("nothing to migrate for the memory driver")
	}
	conn, dialect, err := db.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Printf("warning: failed to close db: %v", cerr)
		}
	}()
	applied, err := db.RunMigrations(ctx, conn, dialect, cfg.MigrationsDir)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if len(applied) == 0 {
		log.Printf("migrate: schema is up to date")
		return nil
	}
	log.Printf("migrate: applied %d migration(s): %s", len(applied), strings.Join(applied, ", "))
	return nil
}

// openStore connects the configured backend and refuses to serve against a
// schema with pending migrations unless auto-migrate is on.
func openStore(ctx context.Context, cfg config.Config) (db.Store, func(), error) {
	if cfg.DBDriver == config.DriverMemory {
		log.Printf("store: using in-memory store, data is lost on restart")
		return db.NewMemoryStore(), func() {}, nil
	}
	conn, dialect, err := db.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	fail := func(err error) (db.Store, func(), error) {
		_ = conn.Close()
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if _, err := db.RunMigrations(ctx, conn, dialect, cfg.MigrationsDir); err != nil {
			return fail(fmt.Errorf("run migrations: %w", err))
		}
	} else {
		pending, err := db.PendingMigrations(ctx, conn, cfg.MigrationsDir)
		if err != nil {
			return fail(err)
		}
		if len(pending) > 0 {
			return fail(fmt.Errorf("pending migrations %s: run `server migrate` or set TASKTRAIL_AUTO_MIGRATE=true", strings.Join(pending, ", ")))
		}
	}
	store, err := db.NewSQLStore(conn, dialect)
	if err != nil {
		return fail(err)
	}
	closeFn := func() {
		if cerr := store.Close(); cerr != nil {
			log.Printf("warning: failed to close db: %v", cerr)
		}
	}
	return store, closeFn, nil
}

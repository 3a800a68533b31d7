package sqlite

import (
	"context"
	"fmt"

	"github.com/polwex/hpn-indexer/internal/store"
)

var directorySchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		name TEXT PRIMARY KEY,
		hash TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS providers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL UNIQUE,
		provider_name TEXT,
		site TEXT,
		description TEXT,
		category TEXT NOT NULL,
		created INTEGER,
		FOREIGN KEY (category) REFERENCES categories(name)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_providers_category ON providers (id, category)`,
}

var directoryTables = []string{"categories", "providers"}

// EnsureSchema creates the directory tables when the providers table is absent.
func (r *DirectoryRepo) EnsureSchema(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	ok, err := r.db.tableExists(ctx, "providers")
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return r.createSchema(ctx)
}

// CheckSchema reports which directory tables exist and recreates them if
// any is missing.
func (r *DirectoryRepo) CheckSchema(ctx context.Context) (*store.SchemaReport, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	report := &store.SchemaReport{Tables: make(map[string]bool, len(directoryTables))}
	complete := true
	for _, name := range directoryTables {
		ok, err := r.db.tableExists(ctx, name)
		if err != nil {
			return nil, err
		}
		report.Tables[name] = ok
		complete = complete && ok
	}
	if complete {
		return report, nil
	}
	if err := r.createSchema(ctx); err != nil {
		return report, err
	}
	report.Repaired = true
	r.logger.Info("directory schema repaired", "tables", report.Tables)
	return report, nil
}

// Wipe drops the directory tables.
func (r *DirectoryRepo) Wipe(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin wipe: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{`DROP TABLE IF EXISTS providers`, `DROP TABLE IF EXISTS categories`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("wipe: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit wipe: %w", err)
	}
	return nil
}

func (r *DirectoryRepo) createSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range directorySchema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

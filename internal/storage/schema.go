// Package storage provides the relational repositories and blob store
// backing the catalog engine. The schema is written to the common subset of
// sqlite and postgres: TEXT uuid keys, $n placeholders, JSON-in-TEXT for
// list-valued columns.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Open opens a database handle for the given driver ("sqlite3" or
// "postgres") and verifies connectivity. For sqlite, foreign key
// enforcement is switched on so catalog deletes cascade.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		// One connection: the PRAGMA below is per-connection, and an
		// in-memory DSN would otherwise give every pooled connection its
		// own empty database.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS catalogs (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		file_ref   TEXT NOT NULL,
		page_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id           TEXT PRIMARY KEY,
		catalog_id   TEXT NOT NULL REFERENCES catalogs(id) ON DELETE CASCADE,
		codes        TEXT NOT NULL,
		codes_text   TEXT NOT NULL,
		name         TEXT,
		description  TEXT,
		color        TEXT,
		light_source TEXT,
		dimensions   TEXT,
		wattage      TEXT,
		price        REAL,
		currency     TEXT,
		page_number  INTEGER NOT NULL,
		raw_text     TEXT NOT NULL DEFAULT '',
		extra        TEXT,
		created_at   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_catalog ON products(catalog_id)`,
	`CREATE INDEX IF NOT EXISTS idx_products_codes_text ON products(codes_text)`,
	`CREATE TABLE IF NOT EXISTS product_images (
		id         TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		image_ref  TEXT NOT NULL,
		descriptor TEXT NOT NULL,
		caption    TEXT,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_product_images_product ON product_images(product_id)`,
	`CREATE TABLE IF NOT EXISTS extraction_jobs (
		id                  TEXT PRIMARY KEY,
		catalog_id          TEXT NOT NULL REFERENCES catalogs(id) ON DELETE CASCADE,
		status              TEXT NOT NULL,
		total_pages         INTEGER NOT NULL DEFAULT 0,
		succeeded_pages     INTEGER NOT NULL DEFAULT 0,
		failed_pages        INTEGER NOT NULL DEFAULT 0,
		failed_page_numbers TEXT,
		products_created    INTEGER NOT NULL DEFAULT 0,
		images_indexed      INTEGER NOT NULL DEFAULT 0,
		warnings            TEXT,
		started_at          TIMESTAMP NOT NULL,
		completed_at        TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_extraction_jobs_catalog ON extraction_jobs(catalog_id)`,
}

// Migrate applies the schema. Statements are idempotent so Migrate is safe
// to run on every startup.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

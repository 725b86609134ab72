package store

import (
	"database/sql"
	"fmt"
	"log/slog"
)

const schemaVersion = 2

// migration is one schema step. Statements run in a single transaction
// together with the schema_version row that marks the step applied.
type migration struct {
	version    int
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "tracked links",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS tracked_links (
				id          TEXT PRIMARY KEY,
				target_url  TEXT NOT NULL,
				visit_count INTEGER NOT NULL DEFAULT 0,
				created_at  DATETIME NOT NULL,
				updated_at  DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_links_created ON tracked_links(created_at)`,
		},
	},
	{
		version: 2,
		name:    "delivery history",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS deliveries (
				id           TEXT PRIMARY KEY,
				chat         TEXT NOT NULL,
				payload_kind TEXT NOT NULL,
				phase        TEXT DEFAULT '',
				outcome      TEXT NOT NULL,
				error_kind   TEXT DEFAULT '',
				message      TEXT DEFAULT '',
				started_at   DATETIME NOT NULL,
				finished_at  DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_deliveries_started ON deliveries(started_at)`,
		},
	},
}

// RunMigrations brings db up to schemaVersion. Steps already recorded in
// schema_version are skipped, so it is safe to call on every open.
func RunMigrations(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	current, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > schemaVersion {
		return fmt.Errorf("database schema v%d is newer than this binary (v%d)", current, schemaVersion)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := apply(db, m); err != nil {
			return err
		}
		logger.Info("migration applied", "version", m.version, "name", m.name)
	}
	return nil
}

func apply(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migration v%d: begin: %w", m.version, err)
	}
	defer tx.Rollback()

	for i, stmt := range m.statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration v%d (%s) statement %d: %w", m.version, m.name, i+1, err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO schema_version (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
		return fmt.Errorf("migration v%d: record: %w", m.version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration v%d: commit: %w", m.version, err)
	}
	return nil
}

// GetSchemaVersion returns the highest applied migration, 0 for a database
// that was never migrated.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_version'`).Scan(&tables); err != nil {
		return 0, err
	}
	if tables == 0 {
		return 0, nil
	}
	var v int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	return v, err
}

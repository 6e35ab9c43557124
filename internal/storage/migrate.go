package storage

import (
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"time"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationFile is one ordered, checksummed schema migration.
type migrationFile struct {
	name     string
	sql      string
	checksum string
}

// loadMigrations reads every migration under migrations/, sorted
// lexicographically by filename per spec.md §4.A.
func loadMigrations() ([]migrationFile, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	files := make([]migrationFile, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sum := sha256.Sum256(data)
		files = append(files, migrationFile{
			name:     name,
			sql:      string(data),
			checksum: hex.EncodeToString(sum[:]),
		})
	}
	return files, nil
}

// ApplyMigrations applies every pending migration in order, recording
// (version, filename, checksum) in schema_version. A checksum mismatch for
// an already-applied version is a fatal error: migrations are immutable
// once applied (spec.md §4.A, §8).
func ApplyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version    INTEGER PRIMARY KEY,
		filename   TEXT NOT NULL,
		checksum   TEXT NOT NULL,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	files, err := loadMigrations()
	if err != nil {
		return err
	}

	applied := map[int]string{} // version -> checksum
	rows, err := db.Query(`SELECT version, checksum FROM schema_version`)
	if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	for rows.Next() {
		var v int
		var c string
		if err := rows.Scan(&v, &c); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema_version: %w", err)
		}
		applied[v] = c
	}
	rows.Close()

	for i, f := range files {
		version := i + 1
		if existing, ok := applied[version]; ok {
			if existing != f.checksum {
				return fmt.Errorf("migration %s: checksum mismatch (applied=%s current=%s), migrations are immutable once applied",
					f.name, existing, f.checksum)
			}
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", f.name, err)
		}
		if _, err := tx.Exec(f.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", f.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version, filename, checksum, applied_at) VALUES (?, ?, ?, ?)`,
			version, f.name, f.checksum, time.Now().UTC().Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", f.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", f.name, err)
		}
	}

	return nil
}

// CurrentSchemaVersion returns the highest applied migration version.
func CurrentSchemaVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return v, nil
}

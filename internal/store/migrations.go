package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial schema",
		SQL: `
CREATE TABLE IF NOT EXISTS grid_forecasts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    pg_id INTEGER NOT NULL,
    month_id INTEGER NOT NULL,
    main_mean REAL,
    main_mean_ln REAL,
    main_dich REAL,
    country_id INTEGER,
    UNIQUE(pg_id, month_id)
);

CREATE TABLE IF NOT EXISTS uncertainty_intervals (
    pg_id INTEGER NOT NULL,
    month_id INTEGER NOT NULL,
    sb_best_lower REAL,
    sb_best_upper REAL,
    ns_best_lower REAL,
    ns_best_upper REAL,
    os_best_lower REAL,
    os_best_upper REAL,
    sb_prob_lower REAL,
    sb_prob_upper REAL,
    ns_prob_lower REAL,
    ns_prob_upper REAL,
    os_prob_lower REAL,
    os_prob_upper REAL,
    PRIMARY KEY (pg_id, month_id)
);

CREATE TABLE IF NOT EXISTS grid_coordinates (
    pg_id INTEGER PRIMARY KEY,
    latitude REAL NOT NULL,
    longitude REAL NOT NULL,
    country_id INTEGER,
    grid_row INTEGER,
    grid_col INTEGER
);

CREATE TABLE IF NOT EXISTS countries (
    country_id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    iso_code TEXT,
    gw_code INTEGER
);

CREATE INDEX IF NOT EXISTS idx_forecasts_pg_month ON grid_forecasts(pg_id, month_id);
CREATE INDEX IF NOT EXISTS idx_forecasts_month ON grid_forecasts(month_id);
CREATE INDEX IF NOT EXISTS idx_forecasts_country ON grid_forecasts(country_id);
`,
	},
}

func (s *Store) Migrate() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		log.Printf("migrations: applying %d - %s", m.Version, m.Description)

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME
		)
	`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func (s *Store) MigrationVersion() (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/i474232898/weather-history-etl/internal/common"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS weather_daily (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			temp_max REAL,
			temp_min REAL,
			weather_code INTEGER
		)`,
		// A separate index also covers tables created before the
		// uniqueness constraint existed.
		`CREATE UNIQUE INDEX IF NOT EXISTS weather_daily_date_key ON weather_daily (date)`,
	},
	insert: `
		INSERT INTO weather_daily (date, temp_max, temp_min, weather_code)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (date) DO NOTHING
	`,
	selectAll: `
		SELECT id, date, temp_max, temp_min, weather_code
		FROM weather_daily
		ORDER BY date
	`,
	selectRange: `
		SELECT id, date, temp_max, temp_min, weather_code
		FROM weather_daily
		WHERE date >= ? AND date <= ?
		ORDER BY date
	`,
	retryable: isSQLiteBusy,
}

// OpenSQLite opens (creating if needed) the SQLite database at path. Use
// ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return newSQLStore(db, sqliteDialect), nil
}

func isSQLiteBusy(err error) bool {
	return err != nil && common.HasAny(err.Error(), "SQLITE_BUSY", "SQLITE_LOCKED", "database is locked")
}

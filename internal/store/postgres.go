package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// schemaLockKey serializes concurrent EnsureSchema calls; CREATE ... IF NOT
// EXISTS is not race-free on PostgreSQL.
const schemaLockKey = 7305042201

var postgresDialect = dialect{
	name: "postgres",
	schema: []string{
		fmt.Sprintf(`SELECT pg_advisory_xact_lock(%d)`, schemaLockKey),
		`CREATE TABLE IF NOT EXISTS weather_daily (
			id BIGSERIAL PRIMARY KEY,
			date TEXT NOT NULL,
			temp_max DOUBLE PRECISION,
			temp_min DOUBLE PRECISION,
			weather_code INTEGER
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS weather_daily_date_key ON weather_daily (date)`,
	},
	insert: `
		INSERT INTO weather_daily (date, temp_max, temp_min, weather_code)
		VALUES ($1, $2, $3, $4)
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
		WHERE date >= $1 AND date <= $2
		ORDER BY date
	`,
	retryable: isPostgresTransient,
}

// OpenPostgres connects to PostgreSQL using a lib/pq connection string.
func OpenPostgres(ctx context.Context, connectionString string) (*SQLStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)

	return newSQLStore(db, postgresDialect), nil
}

// isPostgresTransient matches serialization failures and deadlocks.
func isPostgresTransient(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "40001", "40P01":
		return true
	default:
		return false
	}
}

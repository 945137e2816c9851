package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/i474232898/weather-history-etl/internal/weather"
)

// TableName is the table owned by the store.
const TableName = "weather_daily"

// dialect holds the SQL that differs between engines.
type dialect struct {
	name        string
	schema      []string
	insert      string
	selectAll   string
	selectRange string
	// retryable reports whether a failed batch may simply be run again.
	retryable func(error) bool
}

// SQLStore implements weather.Store on database/sql. Duplicate-skipping is
// done by the engine through ON CONFLICT (date) DO NOTHING, so concurrent
// writers in other processes are handled by the unique index alone.
type SQLStore struct {
	db         *sql.DB
	dialect    dialect
	maxRetries int
	retryDelay time.Duration
}

var _ weather.Store = (*SQLStore)(nil)

func newSQLStore(db *sql.DB, d dialect) *SQLStore {
	return &SQLStore{
		db:         db,
		dialect:    d,
		maxRetries: 3,
		retryDelay: 50 * time.Millisecond,
	}
}

// Driver names the SQL engine behind the store.
func (s *SQLStore) Driver() string {
	return s.dialect.name
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// EnsureSchema creates weather_daily and its unique date index if absent.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &weather.StorageError{Op: "ensure schema", Err: err}
	}
	defer tx.Rollback()

	for _, stmt := range s.dialect.schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return &weather.StorageError{Op: "ensure schema", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &weather.StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

// UpsertIgnore writes records whose date is not stored yet, in a single
// transaction. On failure nothing from the batch is kept.
func (s *SQLStore) UpsertIgnore(ctx context.Context, records []weather.WeatherRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		n, err := s.insertBatch(ctx, records)
		if err == nil {
			return n, nil
		}
		lastErr = err

		if attempt >= s.maxRetries || ctx.Err() != nil || !s.dialect.retryable(err) {
			break
		}

		timer := time.NewTimer(s.retryDelay * time.Duration(1<<attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, &weather.StorageError{Op: "upsert", Err: ctx.Err()}
		case <-timer.C:
		}
	}
	return 0, &weather.StorageError{Op: "upsert", Err: lastErr}
}

func (s *SQLStore) insertBatch(ctx context.Context, records []weather.WeatherRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.insert)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range records {
		res, err := stmt.ExecContext(ctx, r.Date.String(), nullFloat(r.TempMax), nullFloat(r.TempMin), nullInt(r.WeatherCode))
		if err != nil {
			return 0, fmt.Errorf("insert %s: %w", r.Date, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// All returns every row of weather_daily ordered by date.
func (s *SQLStore) All(ctx context.Context) ([]weather.StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.selectAll)
	if err != nil {
		return nil, &weather.StorageError{Op: "select", Err: err}
	}
	return scanRecords(rows)
}

// Range returns rows with from <= date <= to.
func (s *SQLStore) Range(ctx context.Context, from, to civil.Date) ([]weather.StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.selectRange, from.String(), to.String())
	if err != nil {
		return nil, &weather.StorageError{Op: "select range", Err: err}
	}
	return scanRecords(rows)
}

func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]weather.StoredRecord, error) {
	defer rows.Close()

	var out []weather.StoredRecord
	for rows.Next() {
		var (
			rec     weather.StoredRecord
			date    string
			tempMax sql.NullFloat64
			tempMin sql.NullFloat64
			code    sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &date, &tempMax, &tempMin, &code); err != nil {
			return nil, &weather.StorageError{Op: "scan", Err: err}
		}
		d, err := civil.ParseDate(date)
		if err != nil {
			return nil, &weather.StorageError{Op: "scan", Err: fmt.Errorf("row %d: %w", rec.ID, err)}
		}
		rec.Date = d
		if tempMax.Valid {
			rec.TempMax = &tempMax.Float64
		}
		if tempMin.Valid {
			rec.TempMin = &tempMin.Float64
		}
		if code.Valid {
			c := int(code.Int64)
			rec.WeatherCode = &c
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &weather.StorageError{Op: "scan", Err: err}
	}
	return out, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-history-etl/internal/weather"
)

func day(n int) civil.Date {
	return civil.Date{Year: 2020, Month: time.January, Day: 1}.AddDays(n)
}

func ptr[T any](v T) *T { return &v }

// records builds one record per day in [from, to).
func records(from, to int) []weather.WeatherRecord {
	out := make([]weather.WeatherRecord, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, weather.WeatherRecord{
			Date:        day(i),
			TempMax:     ptr(float64(i) + 0.5),
			TempMin:     ptr(float64(i) - 0.5),
			WeatherCode: ptr(i % 4),
		})
	}
	return out
}

func dates(t *testing.T, rows []weather.StoredRecord) []string {
	t.Helper()
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Date.String()
	}
	return out
}

// storeContract runs the behaviour every weather.Store must share.
func storeContract(t *testing.T, open func(t *testing.T) weather.Store) {
	ctx := context.Background()

	t.Run("ensure schema is repeatable", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.EnsureSchema(ctx))
		require.NoError(t, s.EnsureSchema(ctx))
	})

	t.Run("upsert ignore is idempotent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.EnsureSchema(ctx))

		n, err := s.UpsertIgnore(ctx, records(0, 5))
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		n, err = s.UpsertIgnore(ctx, records(0, 5))
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		all, err := s.All(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("existing rows are never overwritten", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.EnsureSchema(ctx))

		_, err := s.UpsertIgnore(ctx, records(0, 1))
		require.NoError(t, err)

		changed := records(0, 2)
		changed[0].TempMax = ptr(99.0)
		n, err := s.UpsertIgnore(ctx, changed)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		all, err := s.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, 0.5, *all[0].TempMax)
	})

	t.Run("empty batch", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.EnsureSchema(ctx))
		n, err := s.UpsertIgnore(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("nulls round trip", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.EnsureSchema(ctx))

		_, err := s.UpsertIgnore(ctx, []weather.WeatherRecord{{Date: day(0)}})
		require.NoError(t, err)

		all, err := s.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Nil(t, all[0].TempMax)
		assert.Nil(t, all[0].TempMin)
		assert.Nil(t, all[0].WeatherCode)
		assert.Positive(t, all[0].ID)
	})

	t.Run("range is inclusive and ordered", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.EnsureSchema(ctx))
		_, err := s.UpsertIgnore(ctx, records(0, 10))
		require.NoError(t, err)

		got, err := s.Range(ctx, day(3), day(5))
		require.NoError(t, err)
		assert.Equal(t, []string{"2020-01-04", "2020-01-05", "2020-01-06"}, dates(t, got))
	})

	t.Run("overlapping concurrent upserts keep the union", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.EnsureSchema(ctx))

		batches := [][]weather.WeatherRecord{records(0, 40), records(20, 60), records(10, 50), records(30, 70)}
		counts := make([]int, len(batches))

		var wg sync.WaitGroup
		for i, b := range batches {
			i, b := i, b
			wg.Add(1)
			go func() {
				defer wg.Done()
				n, err := s.UpsertIgnore(ctx, b)
				assert.NoError(t, err)
				counts[i] = n
			}()
		}
		wg.Wait()

		total := 0
		for _, n := range counts {
			total += n
		}
		assert.Equal(t, 70, total)

		all, err := s.All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 70)
		seen := map[string]bool{}
		for _, r := range all {
			assert.False(t, seen[r.Date.String()], "duplicate %s", r.Date)
			seen[r.Date.String()] = true
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(t *testing.T) weather.Store {
		return NewMemoryStore()
	})
}

func TestMemoryStoreCanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.UpsertIgnore(ctx, records(0, 3))
	var se *weather.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	in := records(0, 1)
	_, err := s.UpsertIgnore(ctx, in)
	require.NoError(t, err)

	*in[0].TempMax = -100
	all, err := s.All(ctx)
	require.NoError(t, err)
	*all[0].TempMax = -200

	again, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.5, *again[0].TempMax)
}

func openTempSQLite(t *testing.T, name string) *SQLStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), fmt.Sprintf("%s/%s", t.TempDir(), name))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	storeContract(t, func(t *testing.T) weather.Store {
		return openTempSQLite(t, "weather.db")
	})
}

func TestSQLiteSeparateConnections(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/nested/weather.db"

	a, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.EnsureSchema(ctx))
	require.NoError(t, b.EnsureSchema(ctx))

	var wg sync.WaitGroup
	for i, s := range []*SQLStore{a, b, a, b} {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpsertIgnore(ctx, records(i*10, i*10+30))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	all, err := b.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 60)
	assert.Equal(t, "sqlite", a.Driver())
}

func TestSQLiteBatchRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	s := openTempSQLite(t, "rollback.db")
	require.NoError(t, s.EnsureSchema(ctx))

	_, err := s.DB().ExecContext(ctx, `
		CREATE TRIGGER fail_on_day BEFORE INSERT ON weather_daily
		WHEN NEW.date = '2020-01-03'
		BEGIN
			SELECT RAISE(ABORT, 'boom');
		END`)
	require.NoError(t, err)

	n, err := s.UpsertIgnore(ctx, records(0, 5))
	var se *weather.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, n)
	assert.Contains(t, err.Error(), "boom")

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	// Days that do not hit the failing row still go through.
	n, err = s.UpsertIgnore(ctx, records(0, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteClosedStore(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, t.TempDir()+"/closed.db")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	var se *weather.StorageError
	require.ErrorAs(t, s.EnsureSchema(ctx), &se)

	_, err = s.UpsertIgnore(ctx, records(0, 1))
	require.ErrorAs(t, err, &se)

	_, err = s.All(ctx)
	require.ErrorAs(t, err, &se)
}

func TestSQLiteLegacyTableGetsUniqueIndex(t *testing.T) {
	ctx := context.Background()
	s := openTempSQLite(t, "legacy.db")

	_, err := s.DB().ExecContext(ctx, `CREATE TABLE weather_daily (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		temp_max REAL,
		temp_min REAL,
		weather_code INTEGER
	)`)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))

	_, err = s.UpsertIgnore(ctx, records(0, 3))
	require.NoError(t, err)
	n, err := s.UpsertIgnore(ctx, records(0, 3))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIsSQLiteBusy(t *testing.T) {
	assert.True(t, isSQLiteBusy(fmt.Errorf("insert: database is locked (5) (SQLITE_BUSY)")))
	assert.False(t, isSQLiteBusy(fmt.Errorf("constraint failed")))
	assert.False(t, isSQLiteBusy(nil))
}

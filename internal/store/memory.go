package store

import (
	"context"
	"sort"
	"sync"

	"cloud.google.com/go/civil"

	"github.com/i474232898/weather-history-etl/internal/weather"
)

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// It follows the same absent-to-present rules as the SQL stores and is used
// for dry runs and tests.
type MemoryStore struct {
	mu sync.RWMutex

	// key: ISO date, value: stored row
	data   map[string]weather.StoredRecord
	nextID int64
}

var _ weather.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   make(map[string]weather.StoredRecord),
		nextID: 1,
	}
}

// EnsureSchema is a no-op; the map is created by NewMemoryStore.
func (s *MemoryStore) EnsureSchema(ctx context.Context) error {
	return ctx.Err()
}

// UpsertIgnore adds records for unseen dates. The whole batch is applied
// under one lock, so it is atomic with respect to other callers.
func (s *MemoryStore) UpsertIgnore(ctx context.Context, records []weather.WeatherRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &weather.StorageError{Op: "upsert", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, r := range records {
		key := r.Date.String()
		if _, ok := s.data[key]; ok {
			continue
		}
		s.data[key] = weather.StoredRecord{ID: s.nextID, WeatherRecord: copyRecord(r)}
		s.nextID++
		inserted++
	}
	return inserted, nil
}

// All returns every stored row ordered by date.
func (s *MemoryStore) All(ctx context.Context) ([]weather.StoredRecord, error) {
	return s.collect(ctx, func(weather.StoredRecord) bool { return true })
}

// Range returns all rows between from and to (inclusive).
func (s *MemoryStore) Range(ctx context.Context, from, to civil.Date) ([]weather.StoredRecord, error) {
	return s.collect(ctx, func(r weather.StoredRecord) bool {
		return !r.Date.Before(from) && !r.Date.After(to)
	})
}

func (s *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored days.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

func (s *MemoryStore) collect(ctx context.Context, keep func(weather.StoredRecord) bool) ([]weather.StoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, &weather.StorageError{Op: "select", Err: err}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []weather.StoredRecord
	for _, rec := range s.data {
		if keep(rec) {
			result = append(result, weather.StoredRecord{ID: rec.ID, WeatherRecord: copyRecord(rec.WeatherRecord)})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// copyRecord detaches the stored row from caller-owned pointers.
func copyRecord(r weather.WeatherRecord) weather.WeatherRecord {
	out := weather.WeatherRecord{Date: r.Date}
	if r.TempMax != nil {
		v := *r.TempMax
		out.TempMax = &v
	}
	if r.TempMin != nil {
		v := *r.TempMin
		out.TempMin = &v
	}
	if r.WeatherCode != nil {
		v := *r.WeatherCode
		out.WeatherCode = &v
	}
	return out
}

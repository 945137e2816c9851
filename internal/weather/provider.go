package weather

import (
	"context"

	"cloud.google.com/go/civil"
)

// FetchRequest describes one archive API call.
type FetchRequest struct {
	Coordinates Coordinates
	From        civil.Date
	To          civil.Date
	Variables   []string
	Timezone    string
}

// Fetcher retrieves a raw daily archive payload. The result is untyped and
// must go through ValidatePayload before use.
type Fetcher interface {
	Name() string
	FetchDaily(ctx context.Context, req FetchRequest) (any, error)
}

// Geocoder resolves a city to coordinates.
type Geocoder interface {
	Lookup(ctx context.Context, loc Location) (Coordinates, error)
}

// Store is the only writer of weather_daily. A date moves from absent to
// present through UpsertIgnore and is never overwritten or removed.
type Store interface {
	// EnsureSchema creates weather_daily and its unique date index if missing.
	EnsureSchema(ctx context.Context) error
	// UpsertIgnore inserts records whose date is not yet stored and returns
	// how many rows were written. The batch is applied atomically.
	UpsertIgnore(ctx context.Context, records []WeatherRecord) (int, error)
	// All returns every stored row ordered by date.
	All(ctx context.Context) ([]StoredRecord, error)
	// Range returns stored rows with from <= date <= to.
	Range(ctx context.Context, from, to civil.Date) ([]StoredRecord, error)
	Close() error
}

// EventPublisher announces finished runs to downstream consumers.
type EventPublisher interface {
	PublishRun(ctx context.Context, result RunResult) error
}

// Recorder receives the countable pipeline events.
type Recorder interface {
	RunFinished(outcome string)
	RowsInserted(n int)
	Truncated(ev TruncationEvent)
}

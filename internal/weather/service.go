package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Run outcomes reported to the Recorder.
const (
	OutcomeSuccess         = "success"
	OutcomeNothingToFetch  = "nothing_to_fetch"
	OutcomeConfigError     = "config_error"
	OutcomeSchemaViolation = "schema_violation"
	OutcomeFetchError      = "fetch_error"
	OutcomeStorageError    = "storage_error"
	OutcomeCanceled        = "canceled"
)

// RunRequest is the explicit configuration of one ingestion run.
type RunRequest struct {
	Location   Location  `json:"location"`
	AnchorYear int       `json:"anchor_year"`
	SpanYears  int       `json:"span_years"`
	Direction  Direction `json:"direction"`
}

// RunResult summarizes one ingestion run. Inserted is the number of days
// that were new to the store.
type RunResult struct {
	RunID      string           `json:"run_id"`
	Location   Location         `json:"location"`
	Interval   DateInterval     `json:"interval"`
	From       civil.Date       `json:"from"`
	To         civil.Date       `json:"to"`
	Fetched    int              `json:"fetched"`
	Inserted   int              `json:"inserted"`
	Truncation *TruncationEvent `json:"truncation,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Service runs the ingestion pipeline: resolve the interval, geocode, fetch,
// validate, transform and persist.
type Service struct {
	store     Store
	geocoder  Geocoder
	fetcher   Fetcher
	publisher EventPublisher
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithPublisher sets the publisher notified after successful runs.
func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithRecorder sets the sink for run metrics.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now, which decides "today" for interval resolution.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new Service.
func NewService(store Store, geocoder Geocoder, fetcher Fetcher, opts ...Option) *Service {
	s := &Service{
		store:     store,
		geocoder:  geocoder,
		fetcher:   fetcher,
		publisher: nopPublisher{},
		recorder:  nopRecorder{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one ingestion run. Each step fully completes before the next
// starts and nothing is written unless the payload validated.
func (s *Service) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	res := RunResult{
		RunID:     uuid.NewString(),
		Location:  req.Location,
		StartedAt: s.now().UTC(),
	}
	log := s.logger.With("run_id", res.RunID, "city", req.Location.City, "country", req.Location.Country)

	res, err := s.run(ctx, log, req, res)
	res.FinishedAt = s.now().UTC()

	outcome := outcomeOf(err)
	if errors.Is(err, errNothingToFetch) {
		err = nil
	}
	s.recorder.RunFinished(outcome)

	if err != nil {
		log.Error("ingestion run failed", "outcome", outcome, "error", err)
		return res, err
	}

	log.Info("ingestion run finished",
		"outcome", outcome,
		"from", res.From.String(),
		"to", res.To.String(),
		"fetched", res.Fetched,
		"inserted", res.Inserted,
	)
	if outcome == OutcomeSuccess {
		if perr := s.publisher.PublishRun(ctx, res); perr != nil {
			log.Warn("failed to publish run event", "error", perr)
		}
	}
	return res, nil
}

var errNothingToFetch = errors.New("resolved interval has no days to fetch")

func (s *Service) run(ctx context.Context, log *slog.Logger, req RunRequest, res RunResult) (RunResult, error) {
	if err := s.store.EnsureSchema(ctx); err != nil {
		return res, err
	}

	tz, err := time.LoadLocation(req.Location.Timezone)
	if err != nil {
		log.Warn("unknown timezone, resolving today in UTC", "timezone", req.Location.Timezone)
		tz = time.UTC
	}
	iv, err := ResolveInterval(req.AnchorYear, req.SpanYears, req.Direction, Today(s.now(), tz))
	if err != nil {
		return res, err
	}
	res.Interval = iv

	from, to, ok := iv.Window()
	res.From, res.To = from, to
	if !ok {
		log.Info("interval lies in the future, nothing to fetch", "interval", iv.String())
		return res, errNothingToFetch
	}
	log.Debug("resolved interval", "interval", iv.String(), "from", from.String(), "to", to.String())

	if err := ctx.Err(); err != nil {
		return res, err
	}
	coords, err := s.geocoder.Lookup(ctx, req.Location)
	if err != nil {
		return res, asFetchError("geocoder", err)
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	raw, err := s.fetcher.FetchDaily(ctx, FetchRequest{
		Coordinates: coords,
		From:        from,
		To:          to,
		Variables:   DailyVariables,
		Timezone:    req.Location.Timezone,
	})
	if err != nil {
		return res, asFetchError(s.fetcher.Name(), err)
	}

	series, err := ValidatePayload(raw)
	if err != nil {
		return res, err
	}

	rows, trunc := ToRows(series)
	res.Fetched = len(rows)
	if trunc != nil {
		res.Truncation = trunc
		s.recorder.Truncated(*trunc)
		log.Warn("daily series lengths differ, trailing entries dropped",
			"kept", trunc.Kept,
			"dropped", trunc.Dropped,
			"lengths", trunc.Lengths,
		)
	}

	if err := ctx.Err(); err != nil {
		return res, err
	}
	inserted, err := s.store.UpsertIgnore(ctx, rows)
	if err != nil {
		return res, err
	}
	res.Inserted = inserted
	s.recorder.RowsInserted(inserted)
	return res, nil
}

// Records returns every stored day, for export.
func (s *Service) Records(ctx context.Context) ([]StoredRecord, error) {
	return s.store.All(ctx)
}

// RecordsBetween returns the stored days in [from, to].
func (s *Service) RecordsBetween(ctx context.Context, from, to civil.Date) ([]StoredRecord, error) {
	if from.After(to) {
		return nil, fmt.Errorf("from %s is after to %s", from, to)
	}
	return s.store.Range(ctx, from, to)
}

func asFetchError(source string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &FetchError{Source: source, Err: err}
}

func outcomeOf(err error) string {
	var (
		cfgErr    *ConfigError
		schemaErr *SchemaViolation
		fetchErr  *FetchError
		storeErr  *StorageError
	)
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, errNothingToFetch):
		return OutcomeNothingToFetch
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case errors.As(err, &cfgErr):
		return OutcomeConfigError
	case errors.As(err, &schemaErr):
		return OutcomeSchemaViolation
	case errors.As(err, &storeErr):
		return OutcomeStorageError
	case errors.As(err, &fetchErr):
		return OutcomeFetchError
	default:
		return "error"
	}
}

type nopPublisher struct{}

func (nopPublisher) PublishRun(context.Context, RunResult) error { return nil }

type nopRecorder struct{}

func (nopRecorder) RunFinished(string)        {}
func (nopRecorder) RowsInserted(int)          {}
func (nopRecorder) Truncated(TruncationEvent) {}

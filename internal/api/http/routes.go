package httpapi

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-history-etl/internal/weather"
)

var validate = validator.New()

// Pipeline is what the handlers need from weather.Service.
type Pipeline interface {
	Run(ctx context.Context, req weather.RunRequest) (weather.RunResult, error)
	Records(ctx context.Context) ([]weather.StoredRecord, error)
	RecordsBetween(ctx context.Context, from, to civil.Date) ([]weather.StoredRecord, error)
}

// RegisterRoutes wires the HTTP handlers into the Fiber app. defaults is the
// configured run, which an ingest request may partially override.
func RegisterRoutes(app *fiber.App, service Pipeline, defaults weather.RunRequest) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather/daily", func(c *fiber.Ctx) error {
		var q rangeQuery
		if err := q.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		var (
			records []weather.StoredRecord
			err     error
		)
		if q.empty() {
			records, err = service.Records(c.UserContext())
		} else {
			records, err = service.RecordsBetween(c.UserContext(), q.From, q.To)
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read weather history")
		}
		if records == nil {
			records = []weather.StoredRecord{}
		}

		return c.JSON(fiber.Map{
			"count":   len(records),
			"records": records,
		})
	})

	v1.Post("/ingest", func(c *fiber.Ctx) error {
		var body ingestRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
			}
		}
		if err := validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		req, err := body.apply(defaults)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Minute)
		defer cancel()

		res, err := service.Run(ctx, req)
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.JSON(res)
	})
}

// RegisterOps adds the health and Prometheus endpoints.
func RegisterOps(app *fiber.App, service string, gatherer prometheus.Gatherer) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": service,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// statusFor maps pipeline errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		cfgErr    *weather.ConfigError
		schemaErr *weather.SchemaViolation
		fetchErr  *weather.FetchError
	)
	switch {
	case errors.As(err, &cfgErr):
		return fiber.StatusBadRequest
	case errors.As(err, &schemaErr), errors.As(err, &fetchErr):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

// ingestRequest holds optional overrides for a manual run.
type ingestRequest struct {
	AnchorYear *int   `json:"anchor_year" validate:"omitempty,gte=1940"`
	SpanYears  *int   `json:"span_years" validate:"omitempty,gte=1"`
	Direction  string `json:"direction" validate:"omitempty,oneof=forward backward"`
}

func (r ingestRequest) apply(defaults weather.RunRequest) (weather.RunRequest, error) {
	req := defaults
	if r.AnchorYear != nil {
		req.AnchorYear = *r.AnchorYear
	}
	if r.SpanYears != nil {
		req.SpanYears = *r.SpanYears
	}
	if r.Direction != "" {
		dir, err := weather.ParseDirection(r.Direction)
		if err != nil {
			return req, err
		}
		req.Direction = dir
	}
	return req, nil
}

// rangeQuery holds the optional from/to filter of the daily endpoint.
type rangeQuery struct {
	From civil.Date
	To   civil.Date
	set  bool
}

func (q *rangeQuery) bind(c *fiber.Ctx) error {
	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" && toStr == "" {
		return nil
	}
	if fromStr == "" || toStr == "" {
		return errors.New("from and to must be given together")
	}

	from, err := civil.ParseDate(fromStr)
	if err != nil {
		return errors.New("invalid from date; use YYYY-MM-DD")
	}
	to, err := civil.ParseDate(toStr)
	if err != nil {
		return errors.New("invalid to date; use YYYY-MM-DD")
	}
	if from.After(to) {
		return errors.New("from must not be after to")
	}

	q.From, q.To, q.set = from, to, true
	return nil
}

func (q rangeQuery) empty() bool {
	return !q.set
}

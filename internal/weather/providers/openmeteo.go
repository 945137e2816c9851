package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-history-etl/internal/weather"
)

// DefaultArchiveURL is the Open-Meteo historical weather endpoint.
const DefaultArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

// OpenMeteoArchive implements weather.Fetcher for the Open-Meteo archive API.
type OpenMeteoArchive struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

var _ weather.Fetcher = (*OpenMeteoArchive)(nil)

// NewOpenMeteoArchive creates an archive client. An empty baseURL selects
// DefaultArchiveURL.
func NewOpenMeteoArchive(cfg HTTPClientConfig, baseURL string) *OpenMeteoArchive {
	if baseURL == "" {
		baseURL = DefaultArchiveURL
	}
	return &OpenMeteoArchive{
		name:    "openmeteo-archive",
		baseURL: baseURL,
		httpCfg: cfg,
		circuit: newCircuitBreaker("openmeteo-archive"),
	}
}

func (p *OpenMeteoArchive) Name() string {
	return p.name
}

// FetchDaily requests the daily variables for req and returns the decoded,
// still unvalidated, JSON document.
func (p *OpenMeteoArchive) FetchDaily(ctx context.Context, req weather.FetchRequest) (any, error) {
	if req.From.After(req.To) {
		return nil, fmt.Errorf("start date %s is after end date %s", req.From, req.To)
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(req.Coordinates.Latitude, 'f', -1, 64))
		values.Set("longitude", strconv.FormatFloat(req.Coordinates.Longitude, 'f', -1, 64))
		values.Set("start_date", req.From.String())
		values.Set("end_date", req.To.String())
		values.Set("daily", strings.Join(req.Variables, ","))
		if req.Timezone != "" {
			values.Set("timezone", req.Timezone)
		}

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode archive response: %w", err)
	}
	return payload, nil
}

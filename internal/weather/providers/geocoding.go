package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-history-etl/internal/weather"
)

// DefaultGeocodingURL is the Open-Meteo place search endpoint.
const DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"

// ErrLocationNotFound is returned when a geocoder has no match for a city.
var ErrLocationNotFound = errors.New("location not found")

// OpenMeteoGeocoder resolves cities through the Open-Meteo geocoding API.
type OpenMeteoGeocoder struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

var _ weather.Geocoder = (*OpenMeteoGeocoder)(nil)

func NewOpenMeteoGeocoder(cfg HTTPClientConfig, baseURL string) *OpenMeteoGeocoder {
	if baseURL == "" {
		baseURL = DefaultGeocodingURL
	}
	return &OpenMeteoGeocoder{
		baseURL: baseURL,
		httpCfg: cfg,
		circuit: newCircuitBreaker("openmeteo-geocoding"),
	}
}

// Lookup returns the best match for loc, restricted to its country code.
func (g *OpenMeteoGeocoder) Lookup(ctx context.Context, loc weather.Location) (weather.Coordinates, error) {
	if loc.City == "" {
		return weather.Coordinates{}, fmt.Errorf("geocoding requires a city name")
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("name", loc.City)
		values.Set("count", "1")
		values.Set("format", "json")
		if loc.Country != "" {
			values.Set("countryCode", strings.ToUpper(loc.Country))
		}

		u := fmt.Sprintf("%s?%s", g.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, g.httpCfg, g.circuit, buildRequest)
	if err != nil {
		return weather.Coordinates{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Results []struct {
			Name        string  `json:"name"`
			Latitude    float64 `json:"latitude"`
			Longitude   float64 `json:"longitude"`
			Timezone    string  `json:"timezone"`
			CountryCode string  `json:"country_code"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Coordinates{}, fmt.Errorf("decode geocoding response: %w", err)
	}

	for _, r := range payload.Results {
		if loc.Country != "" && r.CountryCode != "" && !strings.EqualFold(r.CountryCode, loc.Country) {
			continue
		}
		return weather.Coordinates{
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Timezone:  r.Timezone,
		}, nil
	}
	return weather.Coordinates{}, fmt.Errorf("%w: %s", ErrLocationNotFound, loc.Key())
}

// GoogleGeocoder resolves cities through the Google Geocoding API.
// The underlying client keeps its API key in a package variable, so the key
// is installed once per process.
type GoogleGeocoder struct {
	circuit *gobreaker.CircuitBreaker
}

var (
	_ weather.Geocoder = (*GoogleGeocoder)(nil)

	googleKeyOnce sync.Once
)

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	googleKeyOnce.Do(func() {
		geocoder.ApiKey = apiKey
	})
	return &GoogleGeocoder{circuit: newCircuitBreaker("google-geocoding")}
}

func (g *GoogleGeocoder) Lookup(ctx context.Context, loc weather.Location) (weather.Coordinates, error) {
	type outcome struct {
		coords weather.Coordinates
		err    error
	}
	done := make(chan outcome, 1)

	// The client has no context support; abandon the call on cancellation.
	go func() {
		result, err := g.circuit.Execute(func() (interface{}, error) {
			return geocoder.Geocoding(geocoder.Address{City: loc.City, Country: loc.Country})
		})
		if err != nil {
			done <- outcome{err: err}
			return
		}
		l := result.(geocoder.Location)
		if l.Latitude == 0 && l.Longitude == 0 {
			done <- outcome{err: fmt.Errorf("%w: %s", ErrLocationNotFound, loc.Key())}
			return
		}
		done <- outcome{coords: weather.Coordinates{Latitude: l.Latitude, Longitude: l.Longitude}}
	}()

	select {
	case <-ctx.Done():
		return weather.Coordinates{}, ctx.Err()
	case o := <-done:
		return o.coords, o.err
	}
}

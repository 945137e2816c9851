package providers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/weather-history-etl/internal/weather"
)

// CachedGeocoder memoizes another Geocoder in Redis. Cache failures are
// logged and fall through to the wrapped geocoder.
type CachedGeocoder struct {
	next   weather.Geocoder
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ weather.Geocoder = (*CachedGeocoder)(nil)

func NewCachedGeocoder(next weather.Geocoder, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGeocoder{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedGeocoder) Lookup(ctx context.Context, loc weather.Location) (weather.Coordinates, error) {
	key := geocodeKey(loc)

	raw, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		var coords weather.Coordinates
		if jerr := json.Unmarshal([]byte(raw), &coords); jerr == nil {
			c.logger.Debug("geocode cache hit", "key", key)
			return coords, nil
		}
		c.logger.Warn("discarding malformed geocode cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("geocode cache unavailable", "error", err)
	}

	coords, err := c.next.Lookup(ctx, loc)
	if err != nil {
		return weather.Coordinates{}, err
	}

	if data, merr := json.Marshal(coords); merr == nil {
		if serr := c.rdb.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			c.logger.Warn("failed to cache geocode result", "key", key, "error", serr)
		}
	}
	return coords, nil
}

func geocodeKey(loc weather.Location) string {
	return "weather-etl:geocode:" + strings.ToLower(loc.City) + ":" + strings.ToLower(loc.Country)
}

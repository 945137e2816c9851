package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-history-etl/internal/weather"
)

func requireConfigError(t *testing.T, err error, field string) {
	t.Helper()
	var cfgErr *weather.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, field, cfgErr.Field)
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Lisbon", cfg.Location.City)
	assert.Equal(t, "PT", cfg.Location.Country)
	assert.Equal(t, 2015, cfg.AnchorYear)
	assert.Equal(t, 5, cfg.SpanYears)
	assert.Equal(t, "forward", cfg.Direction)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/weather.db", cfg.Store.Path)
	assert.Equal(t, "data/exported_csvs/weather_daily.csv", cfg.ExportCSVPath)

	req := cfg.RunRequest()
	assert.Equal(t, weather.Forward, req.Direction)
	assert.Equal(t, cfg.Location, req.Location)
}

func TestLoadFromEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WEATHER_CITY", "Porto")
	t.Setenv("WEATHER_ANCHOR_YEAR", "2025")
	t.Setenv("WEATHER_SPAN_YEARS", "2")
	t.Setenv("WEATHER_DIRECTION", "backward")
	t.Setenv("HTTP_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("STORE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Porto", cfg.Location.City)
	assert.Equal(t, 2025, cfg.AnchorYear)
	assert.Equal(t, 2, cfg.SpanYears)
	assert.Equal(t, "backward", cfg.Direction)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		env   map[string]string
		field string
	}{
		{map[string]string{"WEATHER_DIRECTION": "sideways"}, "direction"},
		{map[string]string{"WEATHER_SPAN_YEARS": "zero"}, "WEATHER_SPAN_YEARS"},
		{map[string]string{"WEATHER_SPAN_YEARS": "0"}, "span_years"},
		{map[string]string{"WEATHER_ANCHOR_YEAR": "1939"}, "anchor_year"},
		{map[string]string{"HTTP_TIMEOUT": "soon"}, "HTTP_TIMEOUT"},
		{map[string]string{"RUN_ON_START": "maybe"}, "RUN_ON_START"},
		{map[string]string{"STORE_DRIVER": "mongo"}, "store.driver"},
		{map[string]string{"STORE_DRIVER": "postgres"}, "store.PostgresDSN"},
		{map[string]string{"SCHEDULE_AT": "3am"}, "schedule_at"},
		{map[string]string{"WEATHER_ARCHIVE_URL": "not a url"}, "archive_url"},
		{map[string]string{"WEATHER_CITY": "   "}, "location.city"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			requireConfigError(t, err, tt.field)
		})
	}
}

func TestLoadYAMLFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "weather.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
location:
  city: Berlin
  country: DE
  timezone: Europe/Berlin
anchor_year: 2000
span_years: 3
direction: backward
store:
  driver: sqlite
  path: /tmp/berlin.db
kafka:
  brokers: [localhost:9092]
`), 0o644))

	t.Setenv("WEATHER_CONFIG_FILE", path)
	t.Setenv("WEATHER_SPAN_YEARS", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Berlin", cfg.Location.City)
	assert.Equal(t, "Europe/Berlin", cfg.Location.Timezone)
	assert.Equal(t, 2000, cfg.AnchorYear)
	assert.Equal(t, 4, cfg.SpanYears)
	assert.Equal(t, "backward", cfg.Direction)
	assert.Equal(t, "/tmp/berlin.db", cfg.Store.Path)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "weather.ingest.completed", cfg.Kafka.Topic)
}

func TestLoadBrokenYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("location: [unclosed"), 0o644))
	t.Setenv("WEATHER_CONFIG_FILE", path)

	_, err := Load()
	requireConfigError(t, err, path)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains: it changes
// the working directory and restores it when the test finishes.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

package weather

import (
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(t *testing.T, s string) civil.Date {
	t.Helper()
	d, err := civil.ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestResolveInterval(t *testing.T) {
	tests := []struct {
		name       string
		anchor     int
		span       int
		dir        Direction
		today      string
		wantStart  string
		wantEnd    string
		wantWindow [2]string
		wantOK     bool
	}{
		{
			name: "forward in the past", anchor: 2015, span: 5, dir: Forward, today: "2030-06-01",
			wantStart: "2015-01-01", wantEnd: "2019-12-31",
			wantWindow: [2]string{"2015-01-01", "2019-12-31"}, wantOK: true,
		},
		{
			name: "forward reaching the current year ends today", anchor: 2024, span: 5, dir: Forward, today: "2025-03-15",
			wantStart: "2024-01-01", wantEnd: "2025-03-15",
			wantWindow: [2]string{"2024-01-01", "2025-03-15"}, wantOK: true,
		},
		{
			name: "single forward year", anchor: 2020, span: 1, dir: Forward, today: "2025-03-15",
			wantStart: "2020-01-01", wantEnd: "2020-12-31",
			wantWindow: [2]string{"2020-01-01", "2020-12-31"}, wantOK: true,
		},
		{
			name: "backward keeps literal ordering", anchor: 2025, span: 2, dir: Backward, today: "2030-01-01",
			wantStart: "2025-01-01", wantEnd: "2024-12-31",
			wantWindow: [2]string{"2024-01-01", "2025-12-31"}, wantOK: true,
		},
		{
			name: "backward window clamped to today", anchor: 2025, span: 3, dir: Backward, today: "2025-06-10",
			wantStart: "2025-01-01", wantEnd: "2023-12-31",
			wantWindow: [2]string{"2023-01-01", "2025-06-10"}, wantOK: true,
		},
		{
			name: "backward floored at 1940", anchor: 1945, span: 50, dir: Backward, today: "2025-06-10",
			wantStart: "1945-01-01", wantEnd: "1940-12-31",
			wantWindow: [2]string{"1940-01-01", "1945-12-31"}, wantOK: true,
		},
		{
			name: "single backward year", anchor: 2020, span: 1, dir: Backward, today: "2025-06-10",
			wantStart: "2020-01-01", wantEnd: "2020-12-31",
			wantWindow: [2]string{"2020-01-01", "2020-12-31"}, wantOK: true,
		},
		{
			name: "forward anchor in the future", anchor: 2031, span: 2, dir: Forward, today: "2030-06-01",
			wantStart: "2031-01-01", wantEnd: "2030-06-01",
			wantOK: false,
		},
		{
			name: "backward span entirely in the future", anchor: 2030, span: 2, dir: Backward, today: "2026-10-18",
			wantStart: "2030-01-01", wantEnd: "2026-10-18",
			wantOK: false,
		},
		{
			name: "backward span starting in the current year", anchor: 2027, span: 2, dir: Backward, today: "2026-10-18",
			wantStart: "2027-01-01", wantEnd: "2026-10-18",
			wantWindow: [2]string{"2026-01-01", "2026-10-18"}, wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			iv, err := ResolveInterval(tt.anchor, tt.span, tt.dir, date(t, tt.today))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, iv.Start.String())
			assert.Equal(t, tt.wantEnd, iv.End.String())
			assert.Equal(t, tt.dir, iv.Direction)
			assert.Equal(t, tt.span, iv.SpanYears)

			from, to, ok := iv.Window()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantWindow[0], from.String())
				assert.Equal(t, tt.wantWindow[1], to.String())
			}
		})
	}
}

func TestResolveIntervalForwardProperty(t *testing.T) {
	today := date(t, "2025-07-04")
	for anchor := 1940; anchor <= 2025; anchor += 7 {
		for span := 1; span <= 12; span++ {
			iv, err := ResolveInterval(anchor, span, Forward, today)
			require.NoError(t, err)

			endYear := min(anchor+span-1, today.Year)
			if endYear == today.Year {
				assert.Equal(t, today, iv.End)
			} else {
				assert.Equal(t, civil.Date{Year: endYear, Month: time.December, Day: 31}, iv.End)
			}
			assert.Equal(t, civil.Date{Year: anchor, Month: time.January, Day: 1}, iv.Start)
		}
	}
}

func TestResolveIntervalConfigErrors(t *testing.T) {
	today := date(t, "2025-01-01")

	_, err := ResolveInterval(2015, 0, Forward, today)
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "span_years", cfgErr.Field)

	iv, err := ResolveInterval(2015, 5, Direction("sideways"), today)
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "direction", cfgErr.Field)
	assert.Equal(t, DateInterval{}, iv)

	for _, dir := range []Direction{Forward, Backward} {
		iv, err = ResolveInterval(1939, 1, dir, today)
		require.True(t, errors.As(err, &cfgErr), dir)
		assert.Equal(t, "anchor_year", cfgErr.Field)
		assert.Equal(t, DateInterval{}, iv)
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("forward")
	require.NoError(t, err)
	assert.Equal(t, Forward, d)

	d, err = ParseDirection("backward")
	require.NoError(t, err)
	assert.Equal(t, Backward, d)

	for _, bad := range []string{"", "back", "fwd", "FORWARD", " backward", "Backward "} {
		_, err := ParseDirection(bad)
		var cfgErr *ConfigError
		assert.True(t, errors.As(err, &cfgErr), bad)
	}
}

func TestToday(t *testing.T) {
	now := time.Date(2025, 1, 1, 1, 30, 0, 0, time.UTC)
	ny := time.FixedZone("EST", -5*60*60)

	assert.Equal(t, "2024-12-31", Today(now, ny).String())
	assert.Equal(t, "2025-01-01", Today(now, nil).String())
}

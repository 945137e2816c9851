// Package export writes the weather_daily table to CSV for downstream
// analysis tools.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/i474232898/weather-history-etl/internal/weather"
)

// Source is the read side of the store used by the exporter.
type Source interface {
	All(ctx context.Context) ([]weather.StoredRecord, error)
}

// Result describes what an export did.
type Result struct {
	Path    string
	Rows    int
	Written bool
	// Skipped explains why nothing was written.
	Skipped string
}

var header = []string{"id", "date", "temp_max", "temp_min", "weather_code"}

// WriteCSV exports every stored row to path. An existing non-empty file is
// left alone unless overwrite is set, and an empty table writes nothing.
func WriteCSV(ctx context.Context, src Source, path string, overwrite bool) (Result, error) {
	res := Result{Path: path}

	if info, err := os.Stat(path); err == nil && info.Size() > 0 && !overwrite {
		res.Skipped = "file already exists"
		return res, nil
	}

	records, err := src.All(ctx)
	if err != nil {
		return res, err
	}
	if len(records) == 0 {
		res.Skipped = "no data in store"
		return res, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return res, fmt.Errorf("failed to create export directory: %w", err)
	}

	// Write to a temp file first so a failed export never leaves a
	// truncated CSV behind.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*.csv")
	if err != nil {
		return res, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return res, err
	}
	for _, r := range records {
		if err := w.Write(row(r)); err != nil {
			tmp.Close()
			return res, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return res, fmt.Errorf("failed to write csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return res, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return res, fmt.Errorf("failed to move export into place: %w", err)
	}

	res.Rows = len(records)
	res.Written = true
	return res, nil
}

func row(r weather.StoredRecord) []string {
	return []string{
		strconv.FormatInt(r.ID, 10),
		r.Date.String(),
		formatFloat(r.TempMax),
		formatFloat(r.TempMin),
		formatInt(r.WeatherCode),
	}
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

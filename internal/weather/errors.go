package weather

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid interval or application configuration.
// It is fatal to the run and never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// SchemaViolation reports a fetched payload that does not match the archive
// contract. Path is a dotted JSON path, e.g. "daily.time[3]".
type SchemaViolation struct {
	Path   string
	Reason string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("schema violation at %s: %s", e.Path, e.Reason)
}

// StorageError wraps a persistence failure. The failed batch was rolled back,
// so the run can be retried as a whole.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// FetchError wraps a failure of an upstream collaborator (geocoding or the
// archive API).
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch from %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// TruncationEvent is not an error. It records that the row transform dropped
// trailing entries because the present series had different lengths.
type TruncationEvent struct {
	Kept    int
	Dropped int
	// Lengths holds the original length of every present series, keyed by
	// payload field name.
	Lengths map[string]int
}

func (t TruncationEvent) String() string {
	parts := make([]string, 0, len(t.Lengths))
	for _, name := range append([]string{"time"}, DailyVariables...) {
		if n, ok := t.Lengths[name]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", name, n))
		}
	}
	return fmt.Sprintf("kept %d rows, dropped %d trailing entries (%s)", t.Kept, t.Dropped, strings.Join(parts, " "))
}

package weather

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// HistoricalFloorYear is the earliest year the archive API has data for.
const HistoricalFloorYear = 1940

// Direction selects whether the span extends forward or backward from the
// anchor year.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// ParseDirection maps a configuration token to a Direction. Only the exact
// lowercase tokens are accepted.
func ParseDirection(token string) (Direction, error) {
	switch d := Direction(token); d {
	case Forward, Backward:
		return d, nil
	default:
		return "", &ConfigError{Field: "direction", Reason: fmt.Sprintf("must be %q or %q, got %q", Forward, Backward, token)}
	}
}

// DateInterval is the resolved [Start, End] pair for a run. For BACKWARD
// intervals Start is Jan 1 of the anchor year and may lie after End; see
// Window for the chronological range.
type DateInterval struct {
	Start     civil.Date `json:"start"`
	End       civil.Date `json:"end"`
	Direction Direction  `json:"direction"`
	SpanYears int        `json:"span_years"`
	AsOf      civil.Date `json:"as_of"`
}

func (iv DateInterval) String() string {
	return fmt.Sprintf("%s..%s (%s)", iv.Start, iv.End, iv.Direction)
}

// ResolveInterval computes the interval for anchorYear and spanYears. Only
// End is ever clamped to today; Start is always Jan 1 of the anchor year.
func ResolveInterval(anchorYear, spanYears int, dir Direction, today civil.Date) (DateInterval, error) {
	if anchorYear < HistoricalFloorYear {
		return DateInterval{}, &ConfigError{Field: "anchor_year", Reason: fmt.Sprintf("must be >= %d, got %d", HistoricalFloorYear, anchorYear)}
	}
	if spanYears < 1 {
		return DateInterval{}, &ConfigError{Field: "span_years", Reason: fmt.Sprintf("must be >= 1, got %d", spanYears)}
	}

	start := jan1(anchorYear)
	var end civil.Date

	switch dir {
	case Forward:
		endYear := min(anchorYear+spanYears-1, today.Year)
		if endYear == today.Year {
			end = today
		} else {
			end = dec31(endYear)
		}
	case Backward:
		endYear := max(anchorYear-spanYears+1, HistoricalFloorYear)
		end = dec31(endYear)
		if end.After(today) {
			end = today
		}
	default:
		return DateInterval{}, &ConfigError{Field: "direction", Reason: fmt.Sprintf("unrecognized direction %q", dir)}
	}

	return DateInterval{Start: start, End: end, Direction: dir, SpanYears: spanYears, AsOf: today}, nil
}

// Window returns the chronological date range covered by the interval, which
// is what the archive API is asked for. A BACKWARD interval covers Jan 1 of
// its first span year through Dec 31 of its anchor year, and only the upper
// bound is clamped to AsOf. ok is false when there is nothing to fetch, as
// when the whole span lies in the future.
func (iv DateInterval) Window() (from, to civil.Date, ok bool) {
	if !iv.Start.After(iv.End) {
		return iv.Start, iv.End, true
	}
	if iv.Direction != Backward {
		return iv.Start, iv.End, false
	}

	from = jan1(max(iv.Start.Year-iv.SpanYears+1, HistoricalFloorYear))
	to = dec31(iv.Start.Year)
	if to.After(iv.AsOf) {
		to = iv.AsOf
	}
	return from, to, !from.After(to)
}

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(now.In(loc))
}

func jan1(year int) civil.Date {
	return civil.Date{Year: year, Month: time.January, Day: 1}
}

func dec31(year int) civil.Date {
	return civil.Date{Year: year, Month: time.December, Day: 31}
}

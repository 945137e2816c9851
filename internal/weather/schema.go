package weather

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// payloadMeta holds the required top-level metadata of an archive response.
type payloadMeta struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Timezone  string   `json:"timezone" validate:"required"`
}

// DecodePayload decodes a JSON archive response and validates it.
func DecodePayload(body []byte) (DailySeries, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return DailySeries{}, &SchemaViolation{Path: "$", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return ValidatePayload(raw)
}

// ValidatePayload checks an untyped archive response against the daily
// payload contract and returns its typed form. Unknown fields are ignored.
func ValidatePayload(raw any) (DailySeries, error) {
	root, ok := raw.(map[string]any)
	if !ok {
		return DailySeries{}, &SchemaViolation{Path: "$", Reason: fmt.Sprintf("expected object, got %s", typeName(raw))}
	}

	meta, err := decodeMeta(root)
	if err != nil {
		return DailySeries{}, err
	}

	dailyRaw, present := root["daily"]
	if !present || dailyRaw == nil {
		return DailySeries{}, &SchemaViolation{Path: "daily", Reason: "required field is missing"}
	}
	daily, ok := dailyRaw.(map[string]any)
	if !ok {
		return DailySeries{}, &SchemaViolation{Path: "daily", Reason: fmt.Sprintf("expected object, got %s", typeName(dailyRaw))}
	}

	dates, err := decodeDates(daily)
	if err != nil {
		return DailySeries{}, err
	}

	series := DailySeries{
		Latitude:  *meta.Latitude,
		Longitude: *meta.Longitude,
		Timezone:  meta.Timezone,
		Dates:     dates,
	}
	if series.TempMax, err = decodeSeries(daily, "temperature_2m_max", asFloat); err != nil {
		return DailySeries{}, err
	}
	if series.TempMin, err = decodeSeries(daily, "temperature_2m_min", asFloat); err != nil {
		return DailySeries{}, err
	}
	if series.WeatherCode, err = decodeSeries(daily, "weather_code", asCode); err != nil {
		return DailySeries{}, err
	}
	return series, nil
}

func decodeMeta(root map[string]any) (payloadMeta, error) {
	var meta payloadMeta

	for _, key := range []string{"latitude", "longitude"} {
		v, present := root[key]
		if !present || v == nil {
			continue
		}
		f, ok := asFloat(v)
		if !ok {
			return meta, &SchemaViolation{Path: key, Reason: fmt.Sprintf("expected number, got %s", typeName(v))}
		}
		if key == "latitude" {
			meta.Latitude = &f
		} else {
			meta.Longitude = &f
		}
	}

	if v, present := root["timezone"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return meta, &SchemaViolation{Path: "timezone", Reason: fmt.Sprintf("expected string, got %s", typeName(v))}
		}
		meta.Timezone = s
	}

	if err := validate.Struct(meta); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			reason := "required field is missing"
			if fe.Tag() != "required" {
				reason = fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
			}
			return meta, &SchemaViolation{Path: fe.Field(), Reason: reason}
		}
		return meta, &SchemaViolation{Path: "$", Reason: err.Error()}
	}
	return meta, nil
}

func decodeDates(daily map[string]any) ([]civil.Date, error) {
	v, present := daily["time"]
	if !present || v == nil {
		return nil, &SchemaViolation{Path: "daily.time", Reason: "required field is missing"}
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &SchemaViolation{Path: "daily.time", Reason: fmt.Sprintf("expected array, got %s", typeName(v))}
	}

	dates := make([]civil.Date, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, &SchemaViolation{Path: fmt.Sprintf("daily.time[%d]", i), Reason: fmt.Sprintf("expected date string, got %s", typeName(item))}
		}
		d, err := civil.ParseDate(s)
		if err != nil || !d.IsValid() {
			return nil, &SchemaViolation{Path: fmt.Sprintf("daily.time[%d]", i), Reason: fmt.Sprintf("invalid YYYY-MM-DD date %q", s)}
		}
		dates[i] = d
	}
	return dates, nil
}

func decodeSeries[T any](daily map[string]any, key string, conv func(any) (T, bool)) (Series[T], error) {
	v, present := daily[key]
	if !present || v == nil {
		return Series[T]{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return Series[T]{}, &SchemaViolation{Path: "daily." + key, Reason: fmt.Sprintf("expected array, got %s", typeName(v))}
	}

	out := Series[T]{Provided: true, Values: make([]*T, len(items))}
	for i, item := range items {
		if item == nil {
			continue
		}
		val, ok := conv(item)
		if !ok {
			var zero T
			return Series[T]{}, &SchemaViolation{
				Path:   fmt.Sprintf("daily.%s[%d]", key, i),
				Reason: fmt.Sprintf("expected %T, got %s", zero, describe(item)),
			}
		}
		out.Values[i] = &val
	}
	return out, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// asCode accepts integral numbers in the int32 range only; the archive API
// sends WMO codes as JSON numbers that may carry a ".0".
func asCode(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func describe(v any) string {
	if typeName(v) == "number" {
		return fmt.Sprintf("number %v", v)
	}
	return typeName(v)
}

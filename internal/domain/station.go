package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Station is one entry of the monitoring station roster.
type Station struct {
	ID    string `json:"station_id"`
	Name  string `json:"cname"`
	CType string `json:"ctype"`
}

// ArrivalRecord is a single telemetry report received from a station.
// A zero Time means the source delivered no usable timestamp.
type ArrivalRecord struct {
	StationID string    `json:"station_id"`
	Time      time.Time `json:"datatime"`
}

// timestampLayouts are tried in order when decoding a record timestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
}

// ParseTimestamp parses a wall-clock timestamp as produced by the upstream
// database export. Zone-less values are read as UTC wall clock.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// UnmarshalJSON decodes a record leniently: an unusable datatime leaves Time
// zero instead of failing, so the aggregator can drop the record.
func (r *ArrivalRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		StationID json.RawMessage `json:"station_id"`
		Time      json.RawMessage `json:"datatime"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.StationID = decodeText(raw.StationID)
	r.Time = time.Time{}
	var s string
	if err := json.Unmarshal(raw.Time, &s); err == nil {
		if t, ok := ParseTimestamp(s); ok {
			r.Time = t
		}
	}
	return nil
}

// MarshalJSON writes datatime in the upstream "YYYY-MM-DD HH:MM:SS" form,
// or null when the record has no timestamp.
func (r ArrivalRecord) MarshalJSON() ([]byte, error) {
	out := struct {
		StationID string  `json:"station_id"`
		Time      *string `json:"datatime"`
	}{StationID: r.StationID}
	if !r.Time.IsZero() {
		s := r.Time.Format("2006-01-02 15:04:05")
		out.Time = &s
	}
	return json.Marshal(out)
}

// decodeText accepts a JSON string or number and returns it as trimmed text.
func decodeText(data json.RawMessage) string {
	if len(data) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return ""
	}
	return cleanText(v)
}

// cleanText stringifies a loosely typed value and trims surrounding space.
// nil becomes the empty string.
func cleanText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return strings.TrimSpace(t.String())
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case []byte:
		return strings.TrimSpace(string(t))
	default:
		return ""
	}
}

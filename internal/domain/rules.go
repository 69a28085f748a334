package domain

import (
	"encoding/json"
	"maps"
	"math"
	"strconv"
	"strings"
)

// Wildcard is the ctype_defaults key matching any category.
const Wildcard = "*"

// fallbackDailyExpected is used whenever default_daily_expected is unusable.
const fallbackDailyExpected = 24

// Rules is the canonical expectation configuration. Every mapping value is
// strictly positive once the rules have been through a Normalizer.
type Rules struct {
	DefaultDailyExpected int            `json:"default_daily_expected"`
	CTypeDailyExpected   map[string]int `json:"ctype_daily_expected"`
	CTypeDefaults        map[string]int `json:"ctype_defaults"`
	StationDailyExpected map[string]int `json:"station_daily_expected"`
	StationOverrides     map[string]int `json:"station_overrides"`
	SourcetypeFilter     string         `json:"sourcetype_filter"`
	DayStartHour         int            `json:"day_start_hour"`
}

// DefaultRules returns a fresh copy of the built-in rules. Callers may mutate
// the result freely.
func DefaultRules() Rules {
	return Rules{
		DefaultDailyExpected: 24,
		CTypeDailyExpected:   map[string]int{"RR": 24, "ZZ": 48},
		CTypeDefaults:        map[string]int{"01": 24, Wildcard: 48},
		StationDailyExpected: map[string]int{},
		StationOverrides:     map[string]int{},
		SourcetypeFilter:     "1",
		DayStartHour:         9,
	}
}

// Clone returns a deep copy of r.
func (r Rules) Clone() Rules {
	out := r
	out.CTypeDailyExpected = cloneCounts(r.CTypeDailyExpected)
	out.CTypeDefaults = cloneCounts(r.CTypeDefaults)
	out.StationDailyExpected = cloneCounts(r.StationDailyExpected)
	out.StationOverrides = cloneCounts(r.StationOverrides)
	return out
}

// asMap renders r in the loosely typed shape accepted by Normalize.
func (r Rules) asMap() map[string]any {
	return map[string]any{
		"default_daily_expected": r.DefaultDailyExpected,
		"ctype_daily_expected":   countsAsAny(r.CTypeDailyExpected),
		"ctype_defaults":         countsAsAny(r.CTypeDefaults),
		"station_daily_expected": countsAsAny(r.StationDailyExpected),
		"station_overrides":      countsAsAny(r.StationOverrides),
		"sourcetype_filter":      r.SourcetypeFilter,
		"day_start_hour":         r.DayStartHour,
	}
}

// Normalizer turns untrusted configuration into valid Rules, falling back to
// its defaults field by field.
type Normalizer struct {
	defaults Rules
}

// NewNormalizer creates a Normalizer that falls back to the given defaults.
// The defaults are copied; later changes to the argument have no effect.
func NewNormalizer(defaults Rules) *Normalizer {
	return &Normalizer{defaults: defaults.Clone()}
}

var defaultNormalizer = NewNormalizer(DefaultRules())

// NormalizeRules normalizes raw against DefaultRules.
func NormalizeRules(raw any) Rules {
	return defaultNormalizer.Normalize(raw)
}

// Normalize never fails. raw may be a Rules value, a decoded JSON object
// (map[string]any) or anything else; non-objects yield the defaults.
func (n *Normalizer) Normalize(raw any) Rules {
	base := n.defaults.Clone()

	var fields map[string]any
	switch v := raw.(type) {
	case Rules:
		fields = v.asMap()
	case *Rules:
		if v == nil {
			return base
		}
		fields = v.asMap()
	case map[string]any:
		fields = v
	default:
		return base
	}

	if v, ok := fields["default_daily_expected"]; ok {
		if count, ok := toInt(v); ok && count > 0 {
			base.DefaultDailyExpected = count
		}
	}

	if m := cleanCounts(fields["ctype_daily_expected"]); len(m) > 0 {
		base.CTypeDailyExpected = m
	}
	if m := cleanCounts(fields["ctype_defaults"]); len(m) > 0 {
		base.CTypeDefaults = m
	}
	base.StationDailyExpected = cleanCounts(fields["station_daily_expected"])
	base.StationOverrides = cleanCounts(fields["station_overrides"])

	if v, ok := fields["sourcetype_filter"]; ok {
		if s := cleanText(v); s != "" {
			base.SourcetypeFilter = s
		}
	}

	if v, ok := fields["day_start_hour"]; ok {
		if h, ok := toInt(v); ok && validDayStartHour(h) {
			base.DayStartHour = h
		}
	}

	return base
}

// GenerateRules seeds station_daily_expected from the roster using
// ctype_defaults: exact category, then the wildcard entry, then
// default_daily_expected. The previous mapping is replaced, not merged.
func GenerateRules(stations []Station, base any) Rules {
	rules := NormalizeRules(base)

	generated := make(map[string]int, len(stations))
	for _, st := range stations {
		id := strings.TrimSpace(st.ID)
		if id == "" {
			continue
		}
		generated[id] = expectedFromDefaults(strings.TrimSpace(st.CType), rules.CTypeDefaults, rules.DefaultDailyExpected)
	}

	rules.StationDailyExpected = generated
	return rules
}

func expectedFromDefaults(ctype string, defaults map[string]int, fallback int) int {
	if n, ok := defaults[ctype]; ok {
		return n
	}
	if n, ok := defaults[Wildcard]; ok {
		return n
	}
	return fallback
}

func validDayStartHour(h int) bool {
	return h >= 0 && h <= 23
}

// cleanCounts keeps entries with a non-blank key and a positive integer value.
// The result is never nil.
func cleanCounts(raw any) map[string]int {
	out := map[string]int{}
	switch m := raw.(type) {
	case map[string]any:
		for k, v := range m {
			addCount(out, k, v)
		}
	case map[string]int:
		for k, v := range m {
			addCount(out, k, v)
		}
	}
	return out
}

func addCount(dst map[string]int, key string, value any) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	n, ok := toInt(value)
	if !ok || n <= 0 {
		return
	}
	dst[key] = n
}

// toInt coerces a loosely typed value to an integer. Floats are truncated
// toward zero; strings must hold a base-10 integer.
func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case int32:
		return int(t), true
	case float64:
		return floatToInt(t)
	case float32:
		return floatToInt(float64(t))
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt(f)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// floatToInt truncates f, rejecting values outside the int range.
func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || f >= float64(math.MaxInt) || f < float64(math.MinInt) {
		return 0, false
	}
	return int(f), true
}

func cloneCounts(m map[string]int) map[string]int {
	if m == nil {
		return map[string]int{}
	}
	return maps.Clone(m)
}

func countsAsAny(m map[string]int) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeObject(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestNormalizeRules_NonObjectYieldsDefaults(t *testing.T) {
	for _, raw := range []any{nil, "rules", 42, []any{1, 2}, true} {
		got := NormalizeRules(raw)
		if diff := cmp.Diff(DefaultRules(), got); diff != "" {
			t.Fatalf("NormalizeRules(%v) mismatch (-want +got):\n%s", raw, diff)
		}
	}
}

func TestNormalizeRules_KeepsValidFields(t *testing.T) {
	raw := decodeObject(t, `{
		"default_daily_expected": 12,
		"ctype_daily_expected": {"RR": 24, " PP ": "6"},
		"ctype_defaults": {"01": 24, "*": 48},
		"station_daily_expected": {"A001": 24},
		"station_overrides": {"A001": 48},
		"sourcetype_filter": " 2 ",
		"day_start_hour": 8
	}`)

	got := NormalizeRules(raw)

	assert.Equal(t, 12, got.DefaultDailyExpected)
	assert.Equal(t, map[string]int{"RR": 24, "PP": 6}, got.CTypeDailyExpected)
	assert.Equal(t, map[string]int{"01": 24, "*": 48}, got.CTypeDefaults)
	assert.Equal(t, map[string]int{"A001": 24}, got.StationDailyExpected)
	assert.Equal(t, map[string]int{"A001": 48}, got.StationOverrides)
	assert.Equal(t, "2", got.SourcetypeFilter)
	assert.Equal(t, 8, got.DayStartHour)
}

func TestNormalizeRules_FieldFallbacks(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, r Rules)
	}{
		{
			name:  "non-positive default reverts",
			input: `{"default_daily_expected": 0}`,
			check: func(t *testing.T, r Rules) { assert.Equal(t, 24, r.DefaultDailyExpected) },
		},
		{
			name:  "unparseable default reverts",
			input: `{"default_daily_expected": "many"}`,
			check: func(t *testing.T, r Rules) { assert.Equal(t, 24, r.DefaultDailyExpected) },
		},
		{
			name:  "null default reverts",
			input: `{"default_daily_expected": null}`,
			check: func(t *testing.T, r Rules) { assert.Equal(t, 24, r.DefaultDailyExpected) },
		},
		{
			name:  "numeric string default accepted",
			input: `{"default_daily_expected": "48"}`,
			check: func(t *testing.T, r Rules) { assert.Equal(t, 48, r.DefaultDailyExpected) },
		},
		{
			name:  "empty ctype mapping keeps defaults",
			input: `{"ctype_daily_expected": {"RR": 0, "": 5, "XX": "bad"}}`,
			check: func(t *testing.T, r Rules) {
				assert.Equal(t, map[string]int{"RR": 24, "ZZ": 48}, r.CTypeDailyExpected)
			},
		},
		{
			name:  "empty ctype defaults keeps defaults",
			input: `{"ctype_defaults": {}}`,
			check: func(t *testing.T, r Rules) {
				assert.Equal(t, map[string]int{"01": 24, "*": 48}, r.CTypeDefaults)
			},
		},
		{
			name:  "station mappings drop invalid entries",
			input: `{"station_overrides": {"A001": -1, "B001": 12, "  ": 5}, "station_daily_expected": {"C001": "x"}}`,
			check: func(t *testing.T, r Rules) {
				assert.Equal(t, map[string]int{"B001": 12}, r.StationOverrides)
				assert.Empty(t, r.StationDailyExpected)
				assert.NotNil(t, r.StationDailyExpected)
			},
		},
		{
			name:  "non-object mapping ignored",
			input: `{"station_overrides": [1, 2], "ctype_daily_expected": "RR"}`,
			check: func(t *testing.T, r Rules) {
				assert.Empty(t, r.StationOverrides)
				assert.Equal(t, map[string]int{"RR": 24, "ZZ": 48}, r.CTypeDailyExpected)
			},
		},
		{
			name:  "blank sourcetype reverts",
			input: `{"sourcetype_filter": "   "}`,
			check: func(t *testing.T, r Rules) { assert.Equal(t, "1", r.SourcetypeFilter) },
		},
		{
			name:  "numeric sourcetype stringified",
			input: `{"sourcetype_filter": 3}`,
			check: func(t *testing.T, r Rules) { assert.Equal(t, "3", r.SourcetypeFilter) },
		},
		{
			name:  "day start hour out of range reverts",
			input: `{"day_start_hour": 24}`,
			check: func(t *testing.T, r Rules) { assert.Equal(t, 9, r.DayStartHour) },
		},
		{
			name:  "negative day start hour reverts",
			input: `{"day_start_hour": -1}`,
			check: func(t *testing.T, r Rules) { assert.Equal(t, 9, r.DayStartHour) },
		},
		{
			name:  "midnight day start accepted",
			input: `{"day_start_hour": 0}`,
			check: func(t *testing.T, r Rules) { assert.Equal(t, 0, r.DayStartHour) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, NormalizeRules(decodeObject(t, tt.input)))
		})
	}
}

func TestNormalizeRules_Idempotent(t *testing.T) {
	inputs := []any{
		nil,
		"garbage",
		decodeObject(t, `{}`),
		decodeObject(t, `{"default_daily_expected": -3, "station_overrides": {"A": 2, "B": 0}, "day_start_hour": 99}`),
		decodeObject(t, `{"ctype_daily_expected": {"RR": 12}, "station_daily_expected": {"A001": 24}, "sourcetype_filter": "7", "day_start_hour": 0}`),
		Rules{},
	}

	for _, in := range inputs {
		once := NormalizeRules(in)
		twice := NormalizeRules(once)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Fatalf("normalize not idempotent for %v (-once +twice):\n%s", in, diff)
		}
		assertRulesInvariants(t, once)
	}
}

func assertRulesInvariants(t *testing.T, r Rules) {
	t.Helper()
	assert.Positive(t, r.DefaultDailyExpected)
	assert.NotEmpty(t, r.SourcetypeFilter)
	assert.GreaterOrEqual(t, r.DayStartHour, 0)
	assert.LessOrEqual(t, r.DayStartHour, 23)
	for _, m := range []map[string]int{r.CTypeDailyExpected, r.CTypeDefaults, r.StationDailyExpected, r.StationOverrides} {
		require.NotNil(t, m)
		for k, v := range m {
			assert.NotEmpty(t, k)
			assert.Positive(t, v)
		}
	}
}

func TestNormalizer_UsesInjectedDefaults(t *testing.T) {
	defaults := DefaultRules()
	defaults.DefaultDailyExpected = 6
	defaults.DayStartHour = 0
	n := NewNormalizer(defaults)

	defaults.DefaultDailyExpected = 99 // must not leak into the normalizer

	got := n.Normalize(nil)
	assert.Equal(t, 6, got.DefaultDailyExpected)
	assert.Equal(t, 0, got.DayStartHour)
}

func TestDefaultRules_ReturnsIndependentCopies(t *testing.T) {
	a := DefaultRules()
	a.CTypeDailyExpected["RR"] = 1

	assert.Equal(t, 24, DefaultRules().CTypeDailyExpected["RR"])
}

func TestGenerateRules_FromRoster(t *testing.T) {
	stations := []Station{
		{ID: "A001", CType: "01"},
		{ID: "B001", CType: "99"},
		{ID: "  ", CType: "01"},
	}
	base := decodeObject(t, `{"ctype_defaults": {"01": 24, "*": 48}, "station_daily_expected": {"A001": 48, "Z001": 12}}`)

	got := GenerateRules(stations, base)

	assert.Equal(t, map[string]int{"A001": 24, "B001": 48}, got.StationDailyExpected)
}

func TestGenerateRules_NoWildcardFallsBackToDefault(t *testing.T) {
	base := decodeObject(t, `{"default_daily_expected": 12, "ctype_defaults": {"01": 24}}`)

	got := GenerateRules([]Station{{ID: "B001", CType: "99"}}, base)

	assert.Equal(t, map[string]int{"B001": 12}, got.StationDailyExpected)
}

func TestGenerateRules_DoesNotTouchOverrides(t *testing.T) {
	base := DefaultRules()
	base.StationOverrides = map[string]int{"A001": 6}

	got := GenerateRules([]Station{{ID: "A001", CType: "01"}}, base)

	assert.Equal(t, map[string]int{"A001": 6}, got.StationOverrides)
	assert.Equal(t, map[string]int{"A001": 24}, got.StationDailyExpected)
}

func TestNormalizeRules_LargeCountsIndependentOfDecoding(t *testing.T) {
	fromFloat := NormalizeRules(map[string]any{"station_overrides": map[string]any{"A": float64(3000000000)}})
	fromNumber := NormalizeRules(map[string]any{"station_overrides": map[string]any{"A": json.Number("3000000000")}})

	assert.Equal(t, map[string]int{"A": 3000000000}, fromFloat.StationOverrides)
	assert.Equal(t, fromNumber, fromFloat)

	tooLarge := NormalizeRules(map[string]any{"station_overrides": map[string]any{"A": 1e300}})
	assert.Empty(t, tooLarge.StationOverrides)
}

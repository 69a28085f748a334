package domain

import "strings"

// expectationLookup returns the expected daily count for a station if the
// tier it represents has an opinion.
type expectationLookup func(stationID, ctype string, rules Rules) (int, bool)

// expectationChain is evaluated in priority order; the first hit wins.
// station_daily_expected and ctype_defaults are deliberately absent: they only
// feed GenerateRules.
var expectationChain = []expectationLookup{
	stationOverride,
	categoryExpected,
}

// ResolveDailyExpected returns how many reports per day a station is expected
// to deliver. The result is always positive.
func ResolveDailyExpected(stationID, ctype string, rules Rules) int {
	stationID = strings.TrimSpace(stationID)
	ctype = strings.TrimSpace(ctype)

	for _, lookup := range expectationChain {
		if n, ok := lookup(stationID, ctype, rules); ok {
			return n
		}
	}
	if rules.DefaultDailyExpected > 0 {
		return rules.DefaultDailyExpected
	}
	return fallbackDailyExpected
}

func stationOverride(stationID, _ string, rules Rules) (int, bool) {
	return positiveEntry(rules.StationOverrides, stationID)
}

func categoryExpected(_, ctype string, rules Rules) (int, bool) {
	return positiveEntry(rules.CTypeDailyExpected, ctype)
}

func positiveEntry(m map[string]int, key string) (int, bool) {
	n, ok := m[key]
	if !ok || n <= 0 {
		return 0, false
	}
	return n, true
}

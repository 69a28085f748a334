// Package domain computes monthly telemetry arrival reports for a network of
// monitoring stations.
//
// # Expectation rules
//
// Each station is expected to report a fixed number of times per day. The
// number comes from [Rules], resolved by [ResolveDailyExpected] in priority
// order:
//
//	station_overrides[station_id]   operator override, highest priority
//	ctype_daily_expected[ctype]     per-category expectation
//	default_daily_expected          fallback (24 when unusable)
//
// station_daily_expected and ctype_defaults are not read at report time. They
// are seeded by [GenerateRules] from the station roster (exact ctype, then the
// "*" wildcard, then default_daily_expected) and kept in the rules file as a
// per-station baseline for operators to copy into station_overrides.
//
// Rules arrive from an untrusted JSON file. [Normalizer.Normalize] never
// fails: invalid fields fall back to the defaults one by one, and mapping
// entries with blank keys or non-positive values are dropped.
//
// # Logical days
//
// A logical day starts at day_start_hour (09:00 by default) instead of
// midnight. An arrival at 2026-01-02 08:30 belongs to January 1st; one at
// 2026-02-01 08:00 belongs to January 31st. The data source is queried with
// the matching wall-clock window from [MonthRange].
//
// # Slots
//
// The 24-hour cycle is divided into expected-per-day equal slots
// (60 minutes for 24/day, 30 minutes for 48/day). [SlotIndex] places a
// timestamp in its slot using minutes elapsed since the most recent
// day_start_hour:00, wrapping around midnight. Several arrivals in the same
// slot of the same logical day count as one.
//
// Day membership and slot numbering use two different time references: the
// day comes from the shifted timestamp, the slot from the original one. The
// two agree on every timestamp except in how they name the slots, so the
// arrival counts are unaffected.
package domain

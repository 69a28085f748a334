package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Report is the monthly arrival matrix for a station roster.
type Report struct {
	Year         int         `json:"year"`
	Month        int         `json:"month"`
	DayStartHour int         `json:"day_start_hour"`
	DaysInMonth  int         `json:"days_in_month"`
	DayHeaders   []int       `json:"day_headers"`
	Rows         []ReportRow `json:"rows"`
}

// ReportRow holds one station's daily arrival counts and totals.
type ReportRow struct {
	StationID      string  `json:"station_id"`
	StationName    string  `json:"station_name"`
	CType          string  `json:"ctype"`
	ExpectedPerDay int     `json:"expected_per_day"`
	DailyActual    []int   `json:"daily_actual"`
	ExpectedTotal  int     `json:"expected_total"`
	ActualTotal    int     `json:"actual_total"`
	Rate           float64 `json:"rate"`
}

// stationDay keys the slot sets collected during aggregation.
type stationDay struct {
	stationID string
	day       int
}

// BuildMonthlyReport aggregates arrival records into per-station daily counts
// for one month.
//
// A record belongs to the month and day of its logical timestamp (the arrival
// time shifted back by the day-start hour). Its slot, however, is computed on
// the original timestamp with the wrap-around formula of SlotIndex. Arrivals
// sharing a (station, day, slot) count once. Records for unknown stations or
// without a timestamp are dropped.
func BuildMonthlyReport(stations []Station, records []ArrivalRecord, year int, month time.Month, rules Rules) (Report, error) {
	if month < time.January || month > time.December {
		return Report{}, fmt.Errorf("%w: month must be within 1..12, got %d", ErrInvalidArgument, month)
	}

	dayStartHour := rules.DayStartHour
	if !validDayStartHour(dayStartHour) {
		dayStartHour = DefaultRules().DayStartHour
	}
	days := DaysInMonth(year, month)

	roster := make([]ReportRow, 0, len(stations))
	expected := make(map[string]int, len(stations))
	for _, st := range stations {
		id := strings.TrimSpace(st.ID)
		if id == "" {
			continue
		}
		name := strings.TrimSpace(st.Name)
		if name == "" {
			name = id
		}
		ctype := strings.TrimSpace(st.CType)
		perDay := ResolveDailyExpected(id, ctype, rules)

		roster = append(roster, ReportRow{
			StationID:      id,
			StationName:    name,
			CType:          ctype,
			ExpectedPerDay: perDay,
		})
		expected[id] = perDay
	}

	arrived := make(map[stationDay]map[int]struct{})
	for _, rec := range records {
		id := strings.TrimSpace(rec.StationID)
		perDay, ok := expected[id]
		if !ok || rec.Time.IsZero() {
			continue
		}

		logical := logicalTime(rec.Time, dayStartHour)
		if logical.Year() != year || logical.Month() != month {
			continue
		}

		slot, err := SlotIndex(rec.Time, perDay, dayStartHour)
		if err != nil {
			return Report{}, fmt.Errorf("station %s: %w", id, err)
		}

		key := stationDay{stationID: id, day: logical.Day()}
		slots, ok := arrived[key]
		if !ok {
			slots = make(map[int]struct{})
			arrived[key] = slots
		}
		slots[slot] = struct{}{}
	}

	for i := range roster {
		row := &roster[i]
		row.DailyActual = make([]int, days)
		for day := 1; day <= days; day++ {
			n := len(arrived[stationDay{stationID: row.StationID, day: day}])
			row.DailyActual[day-1] = n
			row.ActualTotal += n
		}
		row.ExpectedTotal = row.ExpectedPerDay * days
		row.Rate = completionRate(row.ActualTotal, row.ExpectedTotal)
	}

	headers := make([]int, days)
	for i := range headers {
		headers[i] = i + 1
	}

	return Report{
		Year:         year,
		Month:        int(month),
		DayStartHour: dayStartHour,
		DaysInMonth:  days,
		DayHeaders:   headers,
		Rows:         roster,
	}, nil
}

// completionRate returns actual/expected as a percentage rounded to one
// decimal, or 0 when nothing was expected.
func completionRate(actual, expected int) float64 {
	if expected == 0 {
		return 0
	}
	return math.Round(float64(actual)/float64(expected)*1000) / 10
}

// Command validate builds a monthly report offline from fixture files and
// checks its integrity: report shape, totals, completion rates, and an
// independent recount of arrival slots.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -stations data/mock/stations.json \
//	  -records data/mock/records.json \
//	  -rules data/mock/report_rules.json \
//	  -year 2024 -month 6 \
//	  -xlsx monthly-report-2024-06.xlsx
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/couchcryptid/telemetry-arrival-report/internal/adapter/export"
	"github.com/couchcryptid/telemetry-arrival-report/internal/adapter/rulesfile"
	"github.com/couchcryptid/telemetry-arrival-report/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	stationsPath := flag.String("stations", "", "path to stations JSON fixture")
	recordsPath := flag.String("records", "", "path to arrival records JSON fixture")
	rulesPath := flag.String("rules", "", "path to rules JSON (defaults when missing)")
	year := flag.Int("year", 0, "report year")
	month := flag.Int("month", 0, "report month (1-12)")
	xlsxPath := flag.String("xlsx", "", "optional path for an xlsx export of the report")
	flag.Parse()

	if *stationsPath == "" || *recordsPath == "" || *year == 0 || *month < 1 || *month > 12 {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*stationsPath, *recordsPath, *rulesPath, *year, time.Month(*month), *xlsxPath); code != 0 {
		os.Exit(code)
	}
}

func run(stationsPath, recordsPath, rulesPath string, year int, month time.Month, xlsxPath string) int {
	fmt.Println("=== Monthly Arrival Report Validation ===")
	fmt.Println()

	stations, err := loadJSON[domain.Station](stationsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load stations: %v\n", err)
		return 1
	}
	records, err := loadJSON[domain.ArrivalRecord](recordsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load records: %v\n", err)
		return 1
	}

	rules := domain.DefaultRules()
	if rulesPath != "" {
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		rules, err = rulesfile.NewStore(rulesPath, logger).Load(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: load rules: %v\n", err)
			return 1
		}
	}

	report, err := domain.BuildMonthlyReport(stations, records, year, month, rules)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: build report: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateFixtures(stations, records),
		validateShape(report, stations),
		validateTotals(report, rules),
		validateRecount(report, records),
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Report %04d-%02d: %d stations, %d records, day start %02d:00\n",
		report.Year, report.Month, len(report.Rows), len(records), report.DayStartHour)

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if xlsxPath != "" {
		data, err := export.XLSX(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: render xlsx: %v\n", err)
			return 1
		}
		if err := os.WriteFile(xlsxPath, data, 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: write xlsx: %v\n", err)
			return 1
		}
		fmt.Printf("\nWrote %s\n", xlsxPath)
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

// ── Validation phases ──

func validateFixtures(stations []domain.Station, records []domain.ArrivalRecord) *phase {
	p := &phase{name: "Fixture integrity"}

	seen := make(map[string]bool, len(stations))
	for i, st := range stations {
		id := strings.TrimSpace(st.ID)
		if id == "" {
			p.errorf("station[%d]: blank station_id", i)
			continue
		}
		if seen[id] {
			p.errorf("station[%d]: duplicate station_id %q", i, id)
		}
		seen[id] = true
	}

	for i, rec := range records {
		if rec.Time.IsZero() {
			p.errorf("record[%d] (%s): unparseable datatime", i, rec.StationID)
		}
	}
	return p
}

func validateShape(report domain.Report, stations []domain.Station) *phase {
	p := &phase{name: "Report shape"}

	days := domain.DaysInMonth(report.Year, time.Month(report.Month))
	if report.DaysInMonth != days {
		p.errorf("days_in_month = %d, want %d", report.DaysInMonth, days)
	}
	if len(report.DayHeaders) != days {
		p.errorf("day_headers has %d entries, want %d", len(report.DayHeaders), days)
	}
	for i, h := range report.DayHeaders {
		if h != i+1 {
			p.errorf("day_headers[%d] = %d, want %d", i, h, i+1)
		}
	}

	want := 0
	for _, st := range stations {
		if strings.TrimSpace(st.ID) != "" {
			want++
		}
	}
	if len(report.Rows) != want {
		p.errorf("report has %d rows, want one per station (%d)", len(report.Rows), want)
	}

	for _, row := range report.Rows {
		if len(row.DailyActual) != days {
			p.errorf("%s: daily_actual has %d entries, want %d", row.StationID, len(row.DailyActual), days)
		}
		if row.StationName == "" {
			p.errorf("%s: blank station name", row.StationID)
		}
	}
	return p
}

func validateTotals(report domain.Report, rules domain.Rules) *phase {
	p := &phase{name: "Totals and completion rates"}

	for _, row := range report.Rows {
		if want := domain.ResolveDailyExpected(row.StationID, row.CType, rules); row.ExpectedPerDay != want {
			p.errorf("%s: expected_per_day = %d, resolver says %d", row.StationID, row.ExpectedPerDay, want)
		}
		if want := row.ExpectedPerDay * report.DaysInMonth; row.ExpectedTotal != want {
			p.errorf("%s: expected_total = %d, want %d", row.StationID, row.ExpectedTotal, want)
		}

		sum := 0
		for day, n := range row.DailyActual {
			if n < 0 || n > row.ExpectedPerDay {
				p.errorf("%s: day %d has %d arrivals, outside 0..%d", row.StationID, day+1, n, row.ExpectedPerDay)
			}
			sum += n
		}
		if row.ActualTotal != sum {
			p.errorf("%s: actual_total = %d, daily sum is %d", row.StationID, row.ActualTotal, sum)
		}

		want := 0.0
		if row.ExpectedTotal > 0 {
			want = math.Round(float64(row.ActualTotal)/float64(row.ExpectedTotal)*1000) / 10
		}
		if math.Abs(row.Rate-want) > 1e-9 {
			p.errorf("%s: rate = %.1f, want %.1f", row.StationID, row.Rate, want)
		}
		if row.Rate < 0 || row.Rate > 100 {
			p.errorf("%s: rate %.1f outside 0..100", row.StationID, row.Rate)
		}
	}
	return p
}

// validateRecount counts distinct slots per station and logical day from
// minutes since the logical day start, independent of domain.SlotIndex.
func validateRecount(report domain.Report, records []domain.ArrivalRecord) *phase {
	p := &phase{name: "Independent slot recount"}

	perDay := make(map[string]int, len(report.Rows))
	for _, row := range report.Rows {
		perDay[row.StationID] = row.ExpectedPerDay
	}

	type slotKey struct {
		station string
		day     int
		slot    int
	}
	seen := make(map[slotKey]bool)
	counts := make(map[string][]int, len(report.Rows))
	shift := time.Duration(report.DayStartHour) * time.Hour

	for _, rec := range records {
		id := strings.TrimSpace(rec.StationID)
		n, ok := perDay[id]
		if !ok || rec.Time.IsZero() {
			continue
		}
		logical := rec.Time.Add(-shift)
		if logical.Year() != report.Year || int(logical.Month()) != report.Month {
			continue
		}
		minutes := logical.Hour()*60 + logical.Minute()
		slot := min(int(float64(minutes)/(1440/float64(n))), n-1)

		key := slotKey{station: id, day: logical.Day(), slot: slot}
		if seen[key] {
			continue
		}
		seen[key] = true
		if counts[id] == nil {
			counts[id] = make([]int, report.DaysInMonth)
		}
		counts[id][logical.Day()-1]++
	}

	for _, row := range report.Rows {
		got := counts[row.StationID]
		for day, n := range row.DailyActual {
			want := 0
			if got != nil {
				want = got[day]
			}
			if n != want {
				p.errorf("%s: day %d reports %d arrivals, recount found %d", row.StationID, day+1, n, want)
			}
		}
	}
	return p
}

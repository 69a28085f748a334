// Command genmock generates deterministic station and arrival fixtures for a
// month. The fixtures feed cmd/validate and local development databases.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -year 2024 -month 6 \
//	  -stations 12 \
//	  -out-dir data/mock
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/telemetry-arrival-report/internal/domain"
)

// Fixture file names inside -out-dir.
const (
	stationsFile = "stations.json"
	recordsFile  = "records.json"
	rulesFile    = "report_rules.json"
)

var ctypes = []string{"RR", "ZZ", "01", "PP"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	year := flag.Int("year", 2024, "report year")
	month := flag.Int("month", 6, "report month (1-12)")
	stationCount := flag.Int("stations", 12, "number of stations")
	seed := flag.Uint64("seed", 42, "random seed")
	outDir := flag.String("out-dir", "data/mock", "output directory")
	flag.Parse()

	if *month < 1 || *month > 12 {
		return fmt.Errorf("month must be within 1..12, got %d", *month)
	}
	if *stationCount < 1 {
		return fmt.Errorf("stations must be positive, got %d", *stationCount)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15)) //nolint:gosec // fixtures, not secrets
	stations := genStations(*stationCount)
	rules := domain.GenerateRules(stations, domain.DefaultRules())
	records := genRecords(rng, stations, rules, *year, time.Month(*month))

	log.Printf("stations: %d", len(stations))
	log.Printf("records: %d", len(records))

	files := []struct {
		name string
		v    any
	}{
		{stationsFile, stations},
		{recordsFile, records},
		{rulesFile, rules},
	}
	for _, f := range files {
		path := filepath.Join(*outDir, f.name)
		if err := writeJSON(path, f.v); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
		log.Printf("wrote %s", path)
	}
	return nil
}

func genStations(n int) []domain.Station {
	stations := make([]domain.Station, n)
	for i := range stations {
		stations[i] = domain.Station{
			ID:    fmt.Sprintf("S%03d", i+1),
			Name:  fmt.Sprintf("Station %d", i+1),
			CType: ctypes[i%len(ctypes)],
		}
	}
	// One unnamed station exercises the name fallback.
	stations[n-1].Name = ""
	return stations
}

// genRecords emits one arrival per expected slot with a per-station
// reliability, plus duplicates within a slot, arrivals just outside the
// month window, and arrivals from an unregistered station.
func genRecords(rng *rand.Rand, stations []domain.Station, rules domain.Rules, year int, month time.Month) []domain.ArrivalRecord {
	start, end := domain.MonthRange(year, month, rules.DayStartHour)
	days := domain.DaysInMonth(year, month)

	var records []domain.ArrivalRecord
	for i, st := range stations {
		perDay := domain.ResolveDailyExpected(st.ID, st.CType, rules)
		width := time.Duration(float64(24*time.Hour) / float64(perDay))
		reliability := 0.55 + 0.45*float64(i%5)/4

		for day := range days {
			dayStart := start.Add(time.Duration(day) * 24 * time.Hour)
			for slot := range perDay {
				if rng.Float64() > reliability {
					continue
				}
				// Stay at least a minute clear of slot edges.
				jitter := time.Minute + time.Duration(rng.Int64N(int64(max(width-2*time.Minute, time.Minute))))
				at := dayStart.Add(time.Duration(slot)*width + jitter).Truncate(time.Minute)
				records = append(records, domain.ArrivalRecord{StationID: st.ID, Time: at})
				if rng.Float64() < 0.1 {
					records = append(records, domain.ArrivalRecord{StationID: st.ID, Time: at.Add(30 * time.Second)})
				}
			}
		}

		records = append(records,
			domain.ArrivalRecord{StationID: st.ID, Time: start.Add(-10 * time.Minute)},
			domain.ArrivalRecord{StationID: st.ID, Time: end.Add(10 * time.Minute)},
		)
	}

	records = append(records, domain.ArrivalRecord{StationID: "UNKNOWN", Time: start.Add(time.Hour)})

	sort.SliceStable(records, func(i, j int) bool { return records[i].Time.Before(records[j].Time) })
	return records
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

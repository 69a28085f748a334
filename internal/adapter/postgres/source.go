// Package postgres reads the station roster and arrival records from the
// telemetry database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/couchcryptid/telemetry-arrival-report/internal/domain"
)

const (
	defaultStationsTable = "stations"
	defaultRecordsTable  = "one_day_data"
)

// tableNameRe restricts configurable table names to optionally schema-qualified identifiers.
var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// DBTX is the subset of *sql.DB used by Source.
type DBTX interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PingContext(ctx context.Context) error
}

// Source implements the report data source over Postgres.
type Source struct {
	db            DBTX
	stationsTable string
	recordsTable  string
}

// Option configures a Source.
type Option func(*Source)

// WithStationsTable overrides the station roster table.
func WithStationsTable(table string) Option {
	return func(s *Source) {
		if table != "" {
			s.stationsTable = table
		}
	}
}

// WithRecordsTable overrides the arrival records table.
func WithRecordsTable(table string) Option {
	return func(s *Source) {
		if table != "" {
			s.recordsTable = table
		}
	}
}

// NewSource constructs a Source. Table names must be plain identifiers.
func NewSource(db DBTX, opts ...Option) (*Source, error) {
	if db == nil {
		return nil, errors.New("postgres source: nil db")
	}
	s := &Source{db: db, stationsTable: defaultStationsTable, recordsTable: defaultRecordsTable}
	for _, opt := range opts {
		opt(s)
	}
	for _, table := range []string{s.stationsTable, s.recordsTable} {
		if !tableNameRe.MatchString(table) {
			return nil, fmt.Errorf("postgres source: invalid table name %q", table)
		}
	}
	return s, nil
}

// Open connects to databaseURL with the pgx driver, retrying the initial
// ping with exponential backoff up to retries times.
func Open(ctx context.Context, databaseURL string, retries int, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	attempt := 0
	ping := func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := db.PingContext(pingCtx)
		if err != nil {
			logger.Warn("database ping failed", "attempt", attempt, "error", err)
		}
		return err
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)
	if err := backoff.Retry(ping, b); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Ping checks database connectivity.
func (s *Source) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// FetchStations returns the station roster ordered by station id.
func (s *Source) FetchStations(ctx context.Context) ([]domain.Station, error) {
	query := fmt.Sprintf(`
SELECT TRIM(station_id), TRIM(cname), TRIM(ctype)
FROM %s
ORDER BY station_id`, s.stationsTable)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}
	defer rows.Close()

	var stations []domain.Station
	for rows.Next() {
		var id, name, ctype sql.NullString
		if err := rows.Scan(&id, &name, &ctype); err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, stationFromRow(id, name, ctype))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stations: %w", err)
	}
	return stations, nil
}

// FetchRecords returns arrivals with start <= datatime < end whose trimmed
// sourcetype equals sourcetypeFilter.
func (s *Source) FetchRecords(ctx context.Context, start, end time.Time, sourcetypeFilter string) ([]domain.ArrivalRecord, error) {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return nil, errors.New("fetch records: invalid window")
	}

	query := fmt.Sprintf(`
SELECT TRIM(station_id), datatime
FROM %s
WHERE datatime >= $1
	AND datatime < $2
	AND datatime IS NOT NULL
	AND TRIM(sourcetype) = $3`, s.recordsTable)

	rows, err := s.db.QueryContext(ctx, query, wallClock(start), wallClock(end), strings.TrimSpace(sourcetypeFilter))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []domain.ArrivalRecord
	for rows.Next() {
		var id sql.NullString
		var ts sql.NullTime
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, recordFromRow(id, ts))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func stationFromRow(id, name, ctype sql.NullString) domain.Station {
	return domain.Station{
		ID:    strings.TrimSpace(id.String),
		Name:  strings.TrimSpace(name.String),
		CType: strings.TrimSpace(ctype.String),
	}
}

func recordFromRow(id sql.NullString, ts sql.NullTime) domain.ArrivalRecord {
	rec := domain.ArrivalRecord{StationID: strings.TrimSpace(id.String)}
	if ts.Valid {
		rec.Time = wallClock(ts.Time)
	}
	return rec
}

// wallClock reinterprets t's wall clock reading as UTC. The datatime column is
// a timestamp without time zone.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

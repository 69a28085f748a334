// Package report orchestrates monthly arrival reports: it loads expectation
// rules, fetches the month's stations and arrivals from the data source,
// aggregates them with the domain package, and publishes the result.
package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/telemetry-arrival-report/internal/domain"
	"github.com/couchcryptid/telemetry-arrival-report/internal/observability"
)

// StationSource supplies the station roster.
type StationSource interface {
	FetchStations(ctx context.Context) ([]domain.Station, error)
}

// DataSource supplies stations and the arrival records of a time window.
type DataSource interface {
	StationSource
	FetchRecords(ctx context.Context, start, end time.Time, sourcetypeFilter string) ([]domain.ArrivalRecord, error)
	Ping(ctx context.Context) error
}

// RulesStore persists expectation rules.
type RulesStore interface {
	Exists() bool
	Load(ctx context.Context) (domain.Rules, error)
	Save(ctx context.Context, raw any) (domain.Rules, error)
}

// Publisher sends a built report downstream.
type Publisher interface {
	PublishReport(ctx context.Context, report domain.Report, generatedAt time.Time) error
}

const (
	defaultQueryTimeout   = 30 * time.Second
	defaultCacheTTL       = 5 * time.Minute
	defaultPublishTimeout = 5 * time.Second
)

// cachedReport is a closed-month report and the time it stops being served.
type cachedReport struct {
	report  domain.Report
	expires time.Time
}

// Service builds monthly reports. It is safe for concurrent use.
type Service struct {
	source       DataSource
	rules        RulesStore
	publisher    Publisher
	logger       *slog.Logger
	metrics      *observability.Metrics
	clock        clockwork.Clock
	queryTimeout time.Duration
	cacheTTL     time.Duration
	cache        *lruCache[cachedReport]

	publishTimeout time.Duration

	// genMu serializes first-run rules generation and regeneration.
	genMu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher publishes every freshly built report. A nil publisher disables publication.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides the time source.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithQueryTimeout bounds each data source round trip.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// WithCacheSize keeps up to n reports of closed months in memory. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cache = newLRUCache[cachedReport](n)
		} else {
			s.cache = nil
		}
	}
}

// WithCacheTTL bounds how long a cached report is served before the month is
// rebuilt from the data source, picking up late arrivals and new stations.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// WithPublishTimeout bounds each publish attempt.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// New creates a Service.
func New(source DataSource, rules RulesStore, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		source:       source,
		rules:        rules,
		logger:       logger,
		metrics:      metrics,
		clock:        clockwork.NewRealClock(),
		queryTimeout: defaultQueryTimeout,
		cacheTTL:     defaultCacheTTL,

		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.publisher != nil {
		s.metrics.PublishEnabled.Set(1)
	}
	return s
}

// CheckReadiness reports whether the data source is reachable.
func (s *Service) CheckReadiness(ctx context.Context) error {
	return s.source.Ping(ctx)
}

// MonthlyReport builds the arrival report for a month.
//
// Reports for months whose window has fully elapsed are served from the cache
// for up to the cache TTL, as long as the rules have not changed since they
// were built.
func (s *Service) MonthlyReport(ctx context.Context, year int, month time.Month) (domain.Report, error) {
	if month < time.January || month > time.December {
		return domain.Report{}, fmt.Errorf("%w: month must be within 1..12, got %d", domain.ErrInvalidArgument, month)
	}
	began := s.clock.Now()

	rules, err := s.LoadOrGenerateRules(ctx)
	if err != nil {
		s.metrics.ReportsBuilt.WithLabelValues("error").Inc()
		return domain.Report{}, err
	}

	start, end := domain.MonthRange(year, month, rules.DayStartHour)
	closed := !end.After(wallClockNow(s.clock))
	key := cacheKey(year, month, rules)

	if closed && s.cache != nil {
		if cached, ok := s.cache.get(key); ok && s.clock.Now().Before(cached.expires) {
			s.metrics.ReportCache.WithLabelValues("hit").Inc()
			return cached.report, nil
		}
		s.metrics.ReportCache.WithLabelValues("miss").Inc()
	}

	report, err := s.build(ctx, year, month, start, end, rules)
	if err != nil {
		s.metrics.ReportsBuilt.WithLabelValues("error").Inc()
		s.logger.Error("monthly report failed", "year", year, "month", int(month), "error", err)
		return domain.Report{}, err
	}

	s.metrics.ReportsBuilt.WithLabelValues("success").Inc()
	s.metrics.ReportBuildDuration.Observe(s.clock.Since(began).Seconds())
	s.metrics.ReportRows.Set(float64(len(report.Rows)))

	if closed && s.cache != nil {
		s.cache.put(key, cachedReport{report: report, expires: s.clock.Now().Add(s.cacheTTL)})
	}
	s.publish(ctx, report)

	return report, nil
}

func (s *Service) build(ctx context.Context, year int, month time.Month, start, end time.Time, rules domain.Rules) (domain.Report, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	stations, err := s.source.FetchStations(queryCtx)
	if err != nil {
		return domain.Report{}, fmt.Errorf("fetch stations: %w", err)
	}
	s.metrics.StationsFetched.Add(float64(len(stations)))

	records, err := s.source.FetchRecords(queryCtx, start, end, rules.SourcetypeFilter)
	if err != nil {
		return domain.Report{}, fmt.Errorf("fetch records: %w", err)
	}
	s.metrics.RecordsFetched.Add(float64(len(records)))

	s.logger.Debug("building monthly report",
		"year", year,
		"month", int(month),
		"window_start", start,
		"window_end", end,
		"stations", len(stations),
		"records", len(records),
	)

	return domain.BuildMonthlyReport(stations, records, year, month, rules)
}

// publish is best effort: failures are logged and counted, never returned.
// Each attempt runs under its own timeout, detached from request cancellation.
func (s *Service) publish(ctx context.Context, report domain.Report) {
	if s.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	if err := s.publisher.PublishReport(pubCtx, report, s.clock.Now()); err != nil {
		s.metrics.ReportsPublished.WithLabelValues("error").Inc()
		s.logger.Warn("report publish failed", "year", report.Year, "month", report.Month, "error", err)
		return
	}
	s.metrics.ReportsPublished.WithLabelValues("success").Inc()
}

// Rules returns the stored rules, or the defaults when none are stored.
func (s *Service) Rules(ctx context.Context) (domain.Rules, error) {
	return s.rules.Load(ctx)
}

// UpdateRules normalizes raw, replaces the stored rules with it and returns
// what was saved.
func (s *Service) UpdateRules(ctx context.Context, raw any) (domain.Rules, error) {
	rules, err := s.rules.Save(ctx, raw)
	if err != nil {
		return domain.Rules{}, err
	}
	s.metrics.RulesSaves.Inc()
	s.purgeCache()
	s.logger.Info("rules updated", "day_start_hour", rules.DayStartHour, "overrides", len(rules.StationOverrides))
	return rules, nil
}

// LoadOrGenerateRules returns the stored rules. On first run, when no rules
// are stored yet, it seeds station_daily_expected from the live roster and
// persists the result.
func (s *Service) LoadOrGenerateRules(ctx context.Context) (domain.Rules, error) {
	if s.rules.Exists() {
		return s.rules.Load(ctx)
	}

	s.genMu.Lock()
	defer s.genMu.Unlock()

	if s.rules.Exists() {
		return s.rules.Load(ctx)
	}

	rules, err := s.generate(ctx, domain.DefaultRules())
	if err != nil {
		return domain.Rules{}, fmt.Errorf("generate initial rules: %w", err)
	}
	s.logger.Info("rules generated from station roster", "stations", len(rules.StationDailyExpected))
	return rules, nil
}

// RegenerateRules rebuilds station_daily_expected from the current roster,
// discarding the previous mapping, and keeps every other field.
func (s *Service) RegenerateRules(ctx context.Context) (domain.Rules, error) {
	s.genMu.Lock()
	defer s.genMu.Unlock()

	current, err := s.rules.Load(ctx)
	if err != nil {
		return domain.Rules{}, err
	}
	rules, err := s.generate(ctx, current)
	if err != nil {
		return domain.Rules{}, fmt.Errorf("regenerate rules: %w", err)
	}
	s.metrics.RulesRegenerations.Inc()
	s.purgeCache()
	s.logger.Info("rules regenerated from station roster", "stations", len(rules.StationDailyExpected))
	return rules, nil
}

func (s *Service) generate(ctx context.Context, base domain.Rules) (domain.Rules, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	stations, err := s.source.FetchStations(queryCtx)
	if err != nil {
		return domain.Rules{}, fmt.Errorf("fetch stations: %w", err)
	}
	s.metrics.StationsFetched.Add(float64(len(stations)))

	rules, err := s.rules.Save(ctx, domain.GenerateRules(stations, base))
	if err != nil {
		return domain.Rules{}, err
	}
	s.metrics.RulesSaves.Inc()
	return rules, nil
}

// purgeCache drops reports built with superseded rules.
func (s *Service) purgeCache() {
	if s.cache != nil {
		s.cache.purge()
	}
}

// cacheKey identifies a report by month and a fingerprint of the rules it was
// built with. encoding/json sorts map keys, so equal rules hash equally.
func cacheKey(year int, month time.Month, rules domain.Rules) string {
	data, _ := json.Marshal(rules) //nolint:errcheck // Rules always marshals
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%04d-%02d|%s", year, int(month), hex.EncodeToString(sum[:8]))
}

// wallClockNow returns the local wall clock reading as UTC, matching the
// zone-less timestamps of the data source.
func wallClockNow(c clockwork.Clock) time.Time {
	now := c.Now().Local()
	return time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), now.Nanosecond(), time.UTC)
}

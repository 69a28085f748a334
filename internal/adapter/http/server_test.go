package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/telemetry-arrival-report/internal/adapter/http"
	"github.com/couchcryptid/telemetry-arrival-report/internal/domain"
)

type mockService struct {
	readyErr  error
	reportErr error
	rulesErr  error

	rules      domain.Rules
	lastYear   int
	lastMonth  time.Month
	lastUpdate any
	regenerate int
}

func (m *mockService) CheckReadiness(_ context.Context) error { return m.readyErr }

func (m *mockService) MonthlyReport(_ context.Context, year int, month time.Month) (domain.Report, error) {
	m.lastYear, m.lastMonth = year, month
	if m.reportErr != nil {
		return domain.Report{}, m.reportErr
	}
	return domain.Report{
		Year:         year,
		Month:        int(month),
		DayStartHour: 9,
		DaysInMonth:  2,
		DayHeaders:   []int{1, 2},
		Rows: []domain.ReportRow{{
			StationID:      "A001",
			StationName:    "North Ridge",
			CType:          "RR",
			ExpectedPerDay: 24,
			DailyActual:    []int{24, 12},
			ExpectedTotal:  48,
			ActualTotal:    36,
			Rate:           75,
		}},
	}, nil
}

func (m *mockService) Rules(_ context.Context) (domain.Rules, error) {
	return m.rules, m.rulesErr
}

func (m *mockService) UpdateRules(_ context.Context, raw any) (domain.Rules, error) {
	m.lastUpdate = raw
	if m.rulesErr != nil {
		return domain.Rules{}, m.rulesErr
	}
	return domain.NormalizeRules(raw), nil
}

func (m *mockService) RegenerateRules(_ context.Context) (domain.Rules, error) {
	m.regenerate++
	return m.rules, m.rulesErr
}

func newTestServer(svc *mockService) *httpadapter.Server {
	return httpadapter.NewServer(":0", svc, slog.Default())
}

func serve(srv *httpadapter.Server, method, target string, body []byte) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(newTestServer(&mockService{}), http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(newTestServer(&mockService{}), http.MethodGet, "/readyz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decodeBody(t, rec)["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := serve(newTestServer(&mockService{readyErr: fmt.Errorf("not ready yet")}), http.MethodGet, "/readyz", nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(newTestServer(&mockService{}), http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(&mockService{})

	rec := serve(srv, http.MethodGet, "/healthz", nil)
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestMonthlyReportReturnsJSON(t *testing.T) {
	svc := &mockService{}
	rec := serve(newTestServer(svc), http.MethodGet, "/api/report/monthly?year=2024&month=6", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2024, svc.lastYear)
	assert.Equal(t, time.June, svc.lastMonth)

	var report domain.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.Rows, 1)
	assert.Equal(t, "A001", report.Rows[0].StationID)
	assert.InDelta(t, 75.0, report.Rows[0].Rate, 1e-9)
}

func TestMonthlyReportValidatesQuery(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		detail string
	}{
		{"missing year", "month=6", "year is required"},
		{"year not a number", "year=abc&month=6", "year must be an integer"},
		{"year too early", "year=1999&month=6", "year must be between 2000 and 2100"},
		{"year too late", "year=2101&month=6", "year must be between 2000 and 2100"},
		{"missing month", "year=2024", "month is required"},
		{"month zero", "year=2024&month=0", "month must be between 1 and 12"},
		{"month thirteen", "year=2024&month=13", "month must be between 1 and 12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			rec := serve(newTestServer(svc), http.MethodGet, "/api/report/monthly?"+tt.query, nil)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Equal(t, tt.detail, decodeBody(t, rec)["detail"])
			assert.Zero(t, svc.lastYear)
		})
	}
}

func TestMonthlyReportServiceFailure(t *testing.T) {
	svc := &mockService{reportErr: errors.New("fetch records: connection refused")}
	rec := serve(newTestServer(svc), http.MethodGet, "/api/report/monthly?year=2024&month=6", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "fetch records: connection refused", decodeBody(t, rec)["detail"])
}

func TestExportXLSX(t *testing.T) {
	rec := serve(newTestServer(&mockService{}), http.MethodGet, "/api/report/monthly/export?year=2024&month=6", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="monthly-report-2024-06.xlsx"`)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestExportPDF(t *testing.T) {
	rec := serve(newTestServer(&mockService{}), http.MethodGet, "/api/report/monthly/export?year=2024&month=6&format=pdf", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc := &mockService{}
	rec := serve(newTestServer(svc), http.MethodGet, "/api/report/monthly/export?year=2024&month=6&format=csv", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["detail"], "unsupported export format")
	assert.Zero(t, svc.lastYear)
}

func TestGetConfig(t *testing.T) {
	svc := &mockService{rules: domain.DefaultRules()}
	rec := serve(newTestServer(svc), http.MethodGet, "/api/config", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 24, body["default_daily_expected"])
	assert.EqualValues(t, 9, body["day_start_hour"])
	assert.Equal(t, "1", body["sourcetype_filter"])
}

func TestPutConfigNormalizes(t *testing.T) {
	svc := &mockService{}
	payload := `{"default_daily_expected": 0, "station_overrides": {"A001": 48, "B002": -1}, "day_start_hour": 6}`
	rec := serve(newTestServer(svc), http.MethodPut, "/api/config", []byte(payload))

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.lastUpdate)

	var rules domain.Rules
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rules))
	assert.Equal(t, 24, rules.DefaultDailyExpected)
	assert.Equal(t, map[string]int{"A001": 48}, rules.StationOverrides)
	assert.Equal(t, 6, rules.DayStartHour)
}

func TestPutConfigRejectsNonObject(t *testing.T) {
	for _, payload := range []string{`[1, 2]`, `"text"`, `null`, `{broken`} {
		t.Run(payload, func(t *testing.T) {
			svc := &mockService{}
			rec := serve(newTestServer(svc), http.MethodPut, "/api/config", []byte(payload))

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Nil(t, svc.lastUpdate)
		})
	}
}

func TestPutConfigStoreFailure(t *testing.T) {
	svc := &mockService{rulesErr: errors.New("write rules: read-only file system")}
	rec := serve(newTestServer(svc), http.MethodPut, "/api/config", []byte(`{}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, strings.HasPrefix(decodeBody(t, rec)["detail"].(string), "write rules"))
}

func TestRegenerateConfig(t *testing.T) {
	rules := domain.DefaultRules()
	rules.StationDailyExpected = map[string]int{"A001": 48}
	svc := &mockService{rules: rules}

	rec := serve(newTestServer(svc), http.MethodPost, "/api/config/regenerate", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, svc.regenerate)
	assert.Equal(t, map[string]any{"A001": float64(48)}, decodeBody(t, rec)["station_daily_expected"])
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serve(newTestServer(&mockService{}), http.MethodDelete, "/api/config", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

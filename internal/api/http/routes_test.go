package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"weather-backend/internal/store"
	"weather-backend/internal/weather"
)

type stubUpstream struct {
	current    weather.CurrentConditions
	currentErr error
	historical weather.HistoricalConditions
	forecast   []weather.ForecastEntry
}

func (s *stubUpstream) FetchCurrent(ctx context.Context, city string, lat, lon *float64) (weather.CurrentConditions, error) {
	return s.current, s.currentErr
}

func (s *stubUpstream) FetchForecast(ctx context.Context, city string, lat, lon *float64, days int) ([]weather.ForecastEntry, error) {
	return s.forecast, nil
}

func (s *stubUpstream) FetchHistorical(ctx context.Context, city string, timestamp int64, lat, lon *float64) (weather.HistoricalConditions, error) {
	return s.historical, nil
}

func newTestApp(t *testing.T, upstream weather.Upstream) *fiber.App {
	t.Helper()

	dsn := fmt.Sprintf("file:api%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	st, err := store.New(db)
	if err != nil {
		t.Fatalf("failed to init store: %v", err)
	}

	app := fiber.New()
	RegisterRoutes(app, weather.NewService(st, upstream))
	return app
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func londonConditions() weather.CurrentConditions {
	return weather.CurrentConditions{
		Temperature: 10.0,
		Humidity:    81,
		Pressure:    1012,
		Description: "light rain",
		Icon:        "10d",
		Latitude:    51.51,
		Longitude:   -0.13,
		Country:     "GB",
	}
}

// TestCreateLocationValidation verifies range and required-field validation
// on location creation.
func TestCreateLocationValidation(t *testing.T) {
	app := newTestApp(t, &stubUpstream{})

	cases := []string{
		`{"city":"London","country":"GB","latitude":91,"longitude":0}`,
		`{"city":"London","country":"GB","latitude":0,"longitude":181}`,
		`{"country":"GB","latitude":0,"longitude":0}`,
	}
	for _, body := range cases {
		resp, err := app.Test(jsonRequest(http.MethodPost, "/locations/", body))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("body %s: expected status %d, got %d", body, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestCreateLocationConflict(t *testing.T) {
	app := newTestApp(t, &stubUpstream{})

	body := `{"city":"London","country":"GB","latitude":51.51,"longitude":-0.13}`
	resp, err := app.Test(jsonRequest(http.MethodPost, "/locations/", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}

	resp, err = app.Test(jsonRequest(http.MethodPost, "/locations/", body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d on duplicate city, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

// TestForecastDaysValidation verifies that the forecast endpoint enforces the
// expected 1-5 range for the `days` query parameter.
func TestForecastDaysValidation(t *testing.T) {
	app := newTestApp(t, &stubUpstream{})

	for _, days := range []string{"0", "6"} {
		req := httptest.NewRequest(http.MethodGet, "/weather/forecast/London?days="+days, nil)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("days=%s: expected status %d, got %d", days, http.StatusBadRequest, resp.StatusCode)
		}
	}
}

func TestCurrentWeatherEndToEnd(t *testing.T) {
	app := newTestApp(t, &stubUpstream{current: londonConditions()})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/weather/current/London", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var payload weather.CurrentConditions
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.Temperature != 10.0 || payload.Country != "GB" {
		t.Errorf("unexpected payload: %+v", payload)
	}

	// Ingestion persisted exactly one record as a side effect.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/weather/past_searches/London", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var recs []weather.WeatherRecord
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		t.Fatalf("failed to decode records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 persisted record, got %d", len(recs))
	}
}

func TestCurrentWeatherUpstreamDown(t *testing.T) {
	app := newTestApp(t, &stubUpstream{
		currentErr: fmt.Errorf("%w: failed to fetch weather data: connection refused", weather.ErrUpstream),
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/weather/current/London", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, resp.StatusCode)
	}
}

func TestCurrentWeatherRejectsBadUpstreamHumidity(t *testing.T) {
	conditions := londonConditions()
	conditions.Humidity = 101
	app := newTestApp(t, &stubUpstream{current: conditions})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/weather/current/London", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestCurrentWeatherCoordValidation(t *testing.T) {
	app := newTestApp(t, &stubUpstream{current: londonConditions()})

	req := httptest.NewRequest(http.MethodGet, "/weather/current/London?lat=91&lon=0", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestParseTimeFormats(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"2024-06-01T10:00:00Z", time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)},
		{"2024-06-01", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		{"1700000000", time.Unix(1700000000, 0).UTC()},
	}
	for _, tc := range cases {
		got, err := parseTime(tc.in)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.in, err)
			continue
		}
		if !got.Equal(tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.in, tc.want, got)
		}
	}

	if _, err := parseTime("yesterday"); err == nil {
		t.Error("expected error for unparseable time")
	}
}

func TestPastSearchesAcceptsDateOnlyRange(t *testing.T) {
	app := newTestApp(t, &stubUpstream{current: londonConditions()})

	if _, err := app.Test(httptest.NewRequest(http.MethodGet, "/weather/current/London", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	target := "/weather/past_searches/London?start_date=2024-06-01&end_date=2100-01-01"
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var recs []weather.WeatherRecord
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		t.Fatalf("failed to decode records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record inside the range, got %d", len(recs))
	}
}

func TestHistoricalRequiresTimestamp(t *testing.T) {
	app := newTestApp(t, &stubUpstream{current: londonConditions()})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/weather/historical/London", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestHistoricalWeatherRepeatReturnsSameBody(t *testing.T) {
	app := newTestApp(t, &stubUpstream{
		current: londonConditions(),
		historical: weather.HistoricalConditions{
			Temperature: 5.5,
			Humidity:    70,
			Pressure:    1008,
			Description: "overcast clouds",
			Timestamp:   time.Unix(1700000000, 0).UTC(),
		},
	})

	var bodies []string
	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/weather/historical/London?timestamp=1700000000", nil))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
		}
		var rec weather.HistoricalWeatherRecord
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			t.Fatalf("failed to decode record: %v", err)
		}
		b, _ := json.Marshal(rec)
		bodies = append(bodies, string(b))
	}

	if bodies[0] != bodies[1] {
		t.Errorf("expected identical bodies, got %s and %s", bodies[0], bodies[1])
	}
}

func TestUpdateWeatherRecord(t *testing.T) {
	app := newTestApp(t, &stubUpstream{current: londonConditions()})

	// Seed one record through ingestion.
	if _, err := app.Test(httptest.NewRequest(http.MethodGet, "/weather/current/London", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/weather/past_searches/London", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var recs []weather.WeatherRecord
	if err := json.NewDecoder(resp.Body).Decode(&recs); err != nil {
		t.Fatalf("failed to decode records: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}

	target := fmt.Sprintf("/weather/%d", recs[0].ID)
	resp, err = app.Test(jsonRequest(http.MethodPut, target, `{"temperature":22.5,"description":"scattered clouds"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var updated weather.WeatherRecord
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("failed to decode record: %v", err)
	}
	if updated.Temperature != 22.5 || updated.Description != "scattered clouds" {
		t.Errorf("unexpected updated record: %+v", updated)
	}
	if updated.Humidity != recs[0].Humidity {
		t.Errorf("humidity must not change on update, got %v", updated.Humidity)
	}
}

func TestUpdateWeatherRecordNotFound(t *testing.T) {
	app := newTestApp(t, &stubUpstream{})

	resp, err := app.Test(jsonRequest(http.MethodPut, "/weather/999", `{"temperature":1,"description":"x"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestDeleteLocationNotFound(t *testing.T) {
	app := newTestApp(t, &stubUpstream{})

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/locations/999", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
}

func TestExportIncludesLocation(t *testing.T) {
	app := newTestApp(t, &stubUpstream{current: londonConditions()})

	if _, err := app.Test(httptest.NewRequest(http.MethodGet, "/weather/current/London", nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/export/London", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}

	var rows []weather.ExportedRecord
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		t.Fatalf("failed to decode rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 exported row, got %d", len(rows))
	}
	if rows[0].City != "London" || rows[0].Country != "GB" {
		t.Errorf("unexpected exported row: %+v", rows[0])
	}
	if _, err := time.Parse(time.RFC3339, rows[0].Timestamp); err != nil {
		t.Errorf("expected ISO-8601 timestamp, got %q", rows[0].Timestamp)
	}
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solar-dashboard/internal/analytics/application"
	"solar-dashboard/internal/analytics/infrastructure/profile"
	telemetry "solar-dashboard/internal/telemetry/domain"
	"solar-dashboard/internal/telemetry/infrastructure/memory"
)

func newRouter(t *testing.T, store *memory.SequenceStore) *mux.Router {
	t.Helper()
	dashboard, err := application.NewDashboardService(store)
	require.NoError(t, err)
	src, err := profile.NewStoreSource(store, 0)
	require.NoError(t, err)
	forecaster, err := application.NewForecastService(src)
	require.NoError(t, err)
	h, err := NewHandler(dashboard, forecaster, nil, nil)
	require.NoError(t, err)
	router := mux.NewRouter()
	h.Register(router)
	return router
}

func get(router http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestForecastNoData(t *testing.T) {
	router := newRouter(t, memory.NewSequenceStore())
	resp := get(router, "/api/forecast")
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.JSONEq(t, `{"error":"no data"}`, resp.Body.String())
}

func TestForecastFromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSequenceStore()
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var last telemetry.Reading
	for h := 0; h < 24; h++ {
		last = telemetry.Reading{Timestamp: day.Add(time.Duration(h) * time.Hour), DeviceID: "esp32-01", Power: float64(h * 10)}
		require.NoError(t, store.Append(ctx, last))
	}
	require.NoError(t, store.SetLatest(ctx, last))

	router := newRouter(t, store)
	resp := get(router, "/api/forecast?refresh=1")
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Source     string `json:"source"`
		SourceDate string `json:"source_date"`
		Forecast   []struct {
			Timestamp time.Time `json:"timestamp"`
			Hour      int       `json:"hour"`
			Power     float64   `json:"power"`
		} `json:"forecast"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "yesterday_profile", body.Source)
	assert.Equal(t, "2024-01-01", body.SourceDate)
	require.Len(t, body.Forecast, 24)
	assert.Equal(t, 50.0, body.Forecast[5].Power)
	assert.True(t, body.Forecast[5].Timestamp.Equal(time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC)))
}

func TestAnalyticsEndpoints(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSequenceStore()
	require.NoError(t, store.Append(ctx, telemetry.Reading{Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Power: 100}))
	require.NoError(t, store.Append(ctx, telemetry.Reading{Timestamp: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), Power: 200}))
	router := newRouter(t, store)

	resp := get(router, "/api/v1/analytics/daily-energy")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"ok":true,"data":[{"date":"2024-01-01","kwh":0.1}]}`, resp.Body.String())

	resp = get(router, "/api/v1/analytics/minutes?tail=1")
	require.Equal(t, http.StatusOK, resp.Code)
	var minutes struct {
		Buckets []map[string]any `json:"buckets"`
		Deltas  []map[string]any `json:"deltas"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &minutes))
	require.Len(t, minutes.Buckets, 1)
	assert.Equal(t, 100.0, minutes.Deltas[0]["power"])

	resp = get(router, "/api/v1/analytics/hourly")
	require.Equal(t, http.StatusOK, resp.Code)
	var hourly struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &hourly))
	assert.Len(t, hourly.Data, 24)

	resp = get(router, "/api/v1/analytics/summary?limit=bogus")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"count":2`)
}

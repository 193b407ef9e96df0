package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netharness/internal/model"
	"netharness/internal/summary"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticSource struct {
	items []model.MetricRecord
	err   error
}

func (s staticSource) Records() ([]model.MetricRecord, error) {
	return s.items, s.err
}

func sample() staticSource {
	return staticSource{items: []model.MetricRecord{
		{Timestamp: "2024-01-01 10:00:00", Category: model.CategoryLatency, Destination: "example.com", Proxy: model.NoProxy, Metric: model.MetricPing, Value: "12.3"},
		{Timestamp: "2024-01-01 10:00:00", Category: model.CategoryWget, Destination: "http://example.com/f", Proxy: model.NoProxy, Metric: model.MetricDirectTime, Value: "4.50"},
		{Timestamp: "2024-01-01 12:00:00", Category: model.CategoryLatency, Destination: "example.com", Proxy: model.NoProxy, Metric: model.MetricPing, Value: "20"},
	}}
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rec := do(t, NewRouter(sample(), Options{}), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRecords_FilterByCategory(t *testing.T) {
	t.Parallel()

	r := NewRouter(sample(), Options{})

	rec := do(t, r, "/records")
	require.Equal(t, http.StatusOK, rec.Code)
	var all []model.MetricRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 3)

	rec = do(t, r, "/records?category=wget")
	require.Equal(t, http.StatusOK, rec.Code)
	var wget []model.MetricRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wget))
	require.Len(t, wget, 1)
	assert.Equal(t, "4.50", wget[0].Value)

	rec = do(t, r, "/records?category=dns")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestSummary(t *testing.T) {
	t.Parallel()

	rec := do(t, NewRouter(sample(), Options{}), "/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var rows []model.SummaryRow
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "12.3", rows[0].PingLatency)
	assert.Equal(t, "4.50", rows[0].WgetDirectTime)
	assert.Equal(t, model.NotAvailable, rows[0].Iperf3Speed)
	assert.Equal(t, "2024-01-01 12:00:00", rows[1].Timestamp)
}

func TestStats_Window(t *testing.T) {
	t.Parallel()

	now := func() time.Time { return time.Date(2024, 1, 1, 12, 30, 0, 0, time.Local) }
	r := NewRouter(sample(), Options{Now: now})

	rec := do(t, r, "/stats?window=1h")
	require.Equal(t, http.StatusOK, rec.Code)
	var st summary.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 1, st.Rows)
	assert.InDelta(t, 20, st.Slots[model.SlotPingLatency].Avg, 1e-9)

	rec = do(t, r, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, 2, st.Rows)

	rec = do(t, r, "/stats?window=soon")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSourceError(t *testing.T) {
	t.Parallel()

	r := NewRouter(staticSource{err: errors.New("disk gone")}, Options{})
	rec := do(t, r, "/summary")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"disk gone"}`, rec.Body.String())
}

func TestPlots(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "latency.png"), []byte("png"), 0o644))

	rec := do(t, NewRouter(sample(), Options{PlotDir: dir}), "/plots/latency.png")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())
}

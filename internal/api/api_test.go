package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirphl/goldstandard/internal/chart"
	"github.com/amirphl/goldstandard/internal/db"
	"github.com/amirphl/goldstandard/internal/indicator"
	"github.com/amirphl/goldstandard/internal/price"
)

func setupTestAPI(t *testing.T) (*Server, *db.MemoryStorage) {
	t.Helper()
	storage := db.NewMemory()
	return New(":0", 5*time.Second, storage, zerolog.New(nil)), storage
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := setupTestAPI(t)
	w := do(t, s, http.MethodGet, "/api/v1/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	ts, err := time.Parse(time.RFC3339, resp["timestamp"])
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
}

func TestIndicators(t *testing.T) {
	s, _ := setupTestAPI(t)
	body := `{"prices":[10,11,12,11,10,9,10,11,12,13,14,13,12,11,12],"sma_period":3,"rsi_period":5}`
	w := do(t, s, http.MethodPost, "/api/v1/indicators", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp indicatorsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	prices := []float64{10, 11, 12, 11, 10, 9, 10, 11, 12, 13, 14, 13, 12, 11, 12}
	assert.Equal(t, indicator.CalculateIndicators(prices), resp.Indicators)
	assert.Len(t, resp.SMASeries, 13)
	require.Len(t, resp.RSISeries, 10)
	assert.InDelta(t, 40.0, resp.RSISeries[0], 1e-9)
}

func TestIndicators_DefaultsAndEmpty(t *testing.T) {
	s, _ := setupTestAPI(t)
	w := do(t, s, http.MethodPost, "/api/v1/indicators", `{"prices":[10,20]}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, map[string]any{"rsi": 50.0, "sma": 0.0}, resp["indicators"])
	assert.Equal(t, []any{}, resp["sma_series"])
	assert.Equal(t, []any{}, resp["rsi_series"])
}

func TestIndicators_BadRequest(t *testing.T) {
	s, _ := setupTestAPI(t)
	for _, body := range []string{
		`{"prices":[1,2,3],"sma_period":0}`,
		`{"prices":[1,2,3],"rsi_period":-1}`,
		`{"prices":"nope"}`,
		`not json`,
	} {
		w := do(t, s, http.MethodPost, "/api/v1/indicators", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Contains(t, w.Body.String(), "error")
	}
}

func TestSavePricesAndChart(t *testing.T) {
	s, storage := setupTestAPI(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var prices []price.Price
	for i, v := range []float64{10, 11, 12, 11, 10, 9, 10, 11, 12, 13} {
		prices = append(prices, price.Price{Timestamp: base.AddDate(0, 0, i), Value: v})
	}
	payload, err := json.Marshal(prices)
	require.NoError(t, err)

	w := do(t, s, http.MethodPost, "/api/v1/symbols/xauusd/prices", string(payload))
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	stored, err := storage.GetPrices(context.Background(), "XAUUSD", base, base.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Len(t, stored, 10)

	w = do(t, s, http.MethodGet, "/api/v1/symbols/XAUUSD/chart?from=2024-01-01&to=2024-02-01&sma_period=3&rsi_period=5", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var c chart.Chart
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, "XAUUSD", c.Symbol)
	assert.Len(t, c.Prices, 10)
	assert.Len(t, c.SMA, 8)
	require.Len(t, c.RSI, 5)
	assert.True(t, c.RSI[0].Timestamp.Equal(base.AddDate(0, 0, 5)))
	assert.InDelta(t, 40.0, c.RSI[0].Value, 1e-9)
	assert.True(t, c.SMAReady)
	assert.True(t, c.RSIReady)
}

func TestChart_NoData(t *testing.T) {
	s, _ := setupTestAPI(t)
	w := do(t, s, http.MethodGet, "/api/v1/symbols/XAUUSD/chart", "")
	require.Equal(t, http.StatusOK, w.Code)

	var c chart.Chart
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Empty(t, c.Prices)
	assert.False(t, c.RSIReady)
	assert.Equal(t, 50.0, c.Indicators.RSI)
}

func TestChart_DateOnlyEndIsInclusive(t *testing.T) {
	s, storage := setupTestAPI(t)
	jan30 := time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, storage.SavePrices(context.Background(), "XAUUSD", []price.Price{
		{Timestamp: jan30, Value: 2030},
		{Timestamp: jan30.AddDate(0, 0, 1), Value: 2031},
		{Timestamp: jan30.AddDate(0, 0, 1).Add(18 * time.Hour), Value: 2032},
		{Timestamp: jan30.AddDate(0, 0, 2), Value: 2040},
	}))

	tests := []struct {
		name  string
		query string
		want  []float64
	}{
		{"Single day", "from=2024-01-31&to=2024-01-31", []float64{2031, 2032}},
		{"Date range", "from=2024-01-30&to=2024-01-31", []float64{2030, 2031, 2032}},
		{"RFC3339 end stays exclusive", "from=2024-01-30&to=2024-01-31T00:00:00Z", []float64{2030}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodGet, "/api/v1/symbols/XAUUSD/chart?"+tt.query, "")
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var c chart.Chart
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
			assert.Equal(t, tt.want, price.Values(c.Prices))
		})
	}
}

func TestChart_BadQuery(t *testing.T) {
	s, _ := setupTestAPI(t)
	for _, q := range []string{
		"from=yesterday",
		"to=2024-13-40",
		"from=2024-02-01&to=2024-01-01",
		"sma_period=0",
		"rsi_period=abc",
	} {
		w := do(t, s, http.MethodGet, "/api/v1/symbols/XAUUSD/chart?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestSavePrices_Invalid(t *testing.T) {
	s, _ := setupTestAPI(t)
	w := do(t, s, http.MethodPost, "/api/v1/symbols/XAUUSD/prices", `[{"timestamp":"2024-01-01T00:00:00Z","value":-5}]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/symbols/XAUUSD/prices", `{"value":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type failingStorage struct{}

func (failingStorage) SavePrices(context.Context, string, []price.Price) error {
	return errors.New("connection refused")
}

func (failingStorage) ReplacePrices(context.Context, string, time.Time, time.Time, []price.Price) error {
	return errors.New("connection refused")
}

func (failingStorage) GetPrices(context.Context, string, time.Time, time.Time) ([]price.Price, error) {
	return nil, errors.New("connection refused")
}

func TestStorageFailure(t *testing.T) {
	s := New(":0", 0, failingStorage{}, zerolog.New(nil))

	w := do(t, s, http.MethodGet, "/api/v1/symbols/XAUUSD/chart", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/symbols/XAUUSD/prices", `[{"timestamp":"2024-01-01T00:00:00Z","value":5}]`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	s := New("127.0.0.1:0", time.Second, db.NewMemory(), zerolog.New(nil))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

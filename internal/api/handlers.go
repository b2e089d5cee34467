package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/amirphl/goldstandard/internal/chart"
	"github.com/amirphl/goldstandard/internal/indicator"
	"github.com/amirphl/goldstandard/internal/price"
)

const (
	maxBodyBytes     = 4 << 20
	defaultChartDays = 90
	dateLayout       = "2006-01-02"
)

type indicatorsRequest struct {
	Prices    []float64 `json:"prices"`
	SMAPeriod *int      `json:"sma_period,omitempty"`
	RSIPeriod *int      `json:"rsi_period,omitempty"`
}

type indicatorsResponse struct {
	Indicators indicator.Values `json:"indicators"`
	SMASeries  []float64        `json:"sma_series"`
	RSISeries  []float64        `json:"rsi_series"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, code int) {
	s.writeJSON(w, code, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleIndicators(w http.ResponseWriter, r *http.Request) {
	var req indicatorsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	smaPeriod, err := periodOrDefault(req.SMAPeriod)
	if err != nil {
		s.writeError(w, "sma_period: "+err.Error(), http.StatusBadRequest)
		return
	}
	rsiPeriod, err := periodOrDefault(req.RSIPeriod)
	if err != nil {
		s.writeError(w, "rsi_period: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusOK, indicatorsResponse{
		Indicators: indicator.CalculateIndicators(req.Prices),
		SMASeries:  indicator.SMASeries(req.Prices, smaPeriod),
		RSISeries:  indicator.RSISeries(req.Prices, rsiPeriod),
	})
}

func (s *Server) handleGetChart(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	q := r.URL.Query()

	to := time.Now().UTC()
	if v := q.Get("to"); v != "" {
		t, err := parseEnd(v)
		if err != nil {
			s.writeError(w, "to: "+err.Error(), http.StatusBadRequest)
			return
		}
		to = t
	}
	from := to.AddDate(0, 0, -defaultChartDays)
	if v := q.Get("from"); v != "" {
		t, err := parseTime(v)
		if err != nil {
			s.writeError(w, "from: "+err.Error(), http.StatusBadRequest)
			return
		}
		from = t
	}
	if !to.After(from) {
		s.writeError(w, "to must be after from", http.StatusBadRequest)
		return
	}

	smaPeriod, err := queryPeriod(q.Get("sma_period"))
	if err != nil {
		s.writeError(w, "sma_period: "+err.Error(), http.StatusBadRequest)
		return
	}
	rsiPeriod, err := queryPeriod(q.Get("rsi_period"))
	if err != nil {
		s.writeError(w, "rsi_period: "+err.Error(), http.StatusBadRequest)
		return
	}

	prices, err := s.storage.GetPrices(r.Context(), symbol, from, to)
	if err != nil {
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to load prices")
		s.writeError(w, "failed to load prices", http.StatusInternalServerError)
		return
	}
	if prices == nil {
		prices = []price.Price{}
	}

	s.writeJSON(w, http.StatusOK, chart.Build(symbol, prices, smaPeriod, rsiPeriod))
}

func (s *Server) handleSavePrices(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	var prices []price.Price
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&prices); err != nil {
		s.writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	for i, p := range prices {
		if err := p.Validate(); err != nil {
			s.writeError(w, fmt.Sprintf("price %d: %v", i, err), http.StatusBadRequest)
			return
		}
	}

	if err := s.storage.SavePrices(r.Context(), symbol, prices); err != nil {
		if errors.Is(err, price.ErrInvalidPrice) {
			s.writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error().Err(err).Str("symbol", symbol).Msg("Failed to save prices")
		s.writeError(w, "failed to save prices", http.StatusInternalServerError)
		return
	}
	s.logger.Info().Str("symbol", symbol).Int("count", len(prices)).Msg("Saved prices")
	w.WriteHeader(http.StatusNoContent)
}

func periodOrDefault(p *int) (int, error) {
	if p == nil {
		return indicator.DefaultPeriod, nil
	}
	if *p < 1 {
		return 0, fmt.Errorf("%w: got %d", indicator.ErrInvalidPeriod, *p)
	}
	return *p, nil
}

func queryPeriod(v string) (int, error) {
	if v == "" {
		return indicator.DefaultPeriod, nil
	}
	p, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", indicator.ErrInvalidPeriod, v)
	}
	return periodOrDefault(&p)
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC3339, got %q", v)
	}
	return t, nil
}

// parseEnd parses the exclusive end of a range. A bare date is taken to
// include that whole day, so it maps to the following midnight.
func parseEnd(v string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t.AddDate(0, 0, 1), nil
	}
	return parseTime(v)
}

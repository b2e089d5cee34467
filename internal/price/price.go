// Package price
package price

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidPrice = errors.New("invalid price")

// Price is a single price sample.
type Price struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Validate checks if a price sample has usable data
func (p Price) Validate() error {
	if p.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is zero", ErrInvalidPrice)
	}
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) || p.Value <= 0 {
		return fmt.Errorf("%w: value %v at %s", ErrInvalidPrice, p.Value, p.Timestamp.Format(time.RFC3339))
	}
	return nil
}

// Values extracts the price series in order.
func Values(prices []Price) []float64 {
	values := make([]float64, len(prices))
	for i, p := range prices {
		values[i] = p.Value
	}
	return values
}

// Sort orders prices chronologically, keeping the input order of equal timestamps.
func Sort(prices []Price) {
	sort.SliceStable(prices, func(i, j int) bool { return prices[i].Timestamp.Before(prices[j].Timestamp) })
}

const (
	FormatCSV   = "csv"
	FormatChart = "chart"
)

// Load reads prices from a file. An empty format is inferred from the extension.
func Load(path, format string) ([]Price, error) {
	if format == "" {
		format = formatFromPath(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatCSV:
		return ParseCSV(f)
	case FormatChart:
		return ParseChart(f)
	default:
		return nil, fmt.Errorf("unsupported price format: %q", format)
	}
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatChart
	default:
		return FormatCSV
	}
}

// ParseCSV reads timestamp,value rows. The header row is optional and the
// timestamp may be unix seconds or RFC3339.
func ParseCSV(r io.Reader) ([]Price, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.TrimLeadingSpace = true

	var prices []Price
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "timestamp") {
			continue
		}
		ts, err := parseTimestamp(record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: failed to parse value: %w", line, err)
		}
		p := Price{Timestamp: ts, Value: v}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		prices = append(prices, p)
	}
	Sort(prices)
	return prices, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q", s)
}

// chartResponse mirrors the chart endpoint payload of Yahoo-style quote APIs.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol   string `json:"symbol"`
				Currency string `json:"currency"`
			} `json:"meta"`
			Timestamps []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// ParseChart reads a chart JSON document and pairs each timestamp with its
// close. Samples without a close are skipped; the rest are validated and
// returned in chronological order.
func ParseChart(r io.Reader) ([]Price, error) {
	var resp chartResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode chart: %w", err)
	}
	if e := resp.Chart.Error; e != nil {
		return nil, fmt.Errorf("chart error %s: %s", e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}
	result := resp.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close

	n := min(len(result.Timestamps), len(closes))
	prices := make([]Price, 0, n)
	for i := 0; i < n; i++ {
		if closes[i] == nil {
			continue
		}
		p := Price{
			Timestamp: time.Unix(result.Timestamps[i], 0).UTC(),
			Value:     *closes[i],
		}
		if result.Timestamps[i] <= 0 {
			p.Timestamp = time.Time{}
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		prices = append(prices, p)
	}
	Sort(prices)
	return prices, nil
}

// Package chart binds indicator overlays to the price samples they belong to.
package chart

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/amirphl/goldstandard/internal/indicator"
	"github.com/amirphl/goldstandard/internal/price"
)

// Point is an overlay value at the timestamp of its aligned price sample.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type Chart struct {
	Symbol     string           `json:"symbol"`
	Prices     []price.Price    `json:"prices"`
	Indicators indicator.Values `json:"indicators"`
	SMAPeriod  int              `json:"sma_period"`
	RSIPeriod  int              `json:"rsi_period"`
	SMA        []Point          `json:"sma"`
	RSI        []Point          `json:"rsi"`
	// SMAReady and RSIReady report whether the overlays have any points for
	// the requested periods.
	SMAReady bool `json:"sma_ready"`
	RSIReady bool `json:"rsi_ready"`
	// IndicatorsReady reports, per field, whether Indicators holds a real
	// reading over indicator.DefaultPeriod rather than the 0 and 50 fallbacks.
	IndicatorsReady Readiness `json:"indicators_ready"`
}

type Readiness struct {
	SMA bool `json:"sma"`
	RSI bool `json:"rsi"`
}

// Build computes SMA and RSI overlays for prices, which must be in
// chronological order.
func Build(symbol string, prices []price.Price, smaPeriod, rsiPeriod int) Chart {
	values := price.Values(prices)
	return Chart{
		Symbol:     symbol,
		Prices:     prices,
		Indicators: indicator.CalculateIndicators(values),
		SMAPeriod:  smaPeriod,
		RSIPeriod:  rsiPeriod,
		SMA:        align(prices, indicator.SMASeries(values, smaPeriod), smaPeriod-1),
		RSI:        align(prices, indicator.RSISeries(values, rsiPeriod), rsiPeriod),
		SMAReady:   smaPeriod >= 1 && len(prices) >= smaPeriod,
		RSIReady:   rsiPeriod >= 1 && len(prices) >= rsiPeriod+1,
		IndicatorsReady: Readiness{
			SMA: len(prices) >= indicator.DefaultPeriod,
			RSI: len(prices) >= indicator.DefaultPeriod+1,
		},
	}
}

// align pairs series[i] with prices[i+offset].
func align(prices []price.Price, series []float64, offset int) []Point {
	points := make([]Point, len(series))
	for i, v := range series {
		points[i] = Point{Timestamp: prices[i+offset].Timestamp, Value: v}
	}
	return points
}

func WriteJSON(w io.Writer, c Chart) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode chart: %w", err)
	}
	return nil
}

// WriteCSV writes one row per price sample with the overlay values aligned to
// it. Cells are blank where an overlay has no value yet.
func WriteCSV(w io.Writer, c Chart) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "price", "sma", "rsi"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	smaStart := len(c.Prices) - len(c.SMA)
	rsiStart := len(c.Prices) - len(c.RSI)
	for i, p := range c.Prices {
		row := []string{p.Timestamp.UTC().Format(time.RFC3339), formatFloat(p.Value), "", ""}
		if i >= smaStart {
			row[2] = formatFloat(c.SMA[i-smaStart].Value)
		}
		if i >= rsiStart {
			row[3] = formatFloat(c.RSI[i-rsiStart].Value)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

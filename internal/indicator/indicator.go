// Package indicator
package indicator

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultPeriod is the trailing window used when no period is given.
const DefaultPeriod = 14

var (
	ErrInvalidPeriod    = errors.New("period must be a whole number of at least 1")
	ErrUnknownIndicator = errors.New("unknown indicator")
)

// Values holds the latest indicator readings for a price series.
type Values struct {
	RSI float64 `json:"rsi"`
	SMA float64 `json:"sma"`
}

// CalculateIndicators returns RSI and SMA over DefaultPeriod.
func CalculateIndicators(prices []float64) Values {
	return Values{
		RSI: RSI(prices, DefaultPeriod),
		SMA: SMA(prices, DefaultPeriod),
	}
}

// Indicator is the interface for all technical indicators.
type Indicator interface {
	Name() string
	Calculate(values []float64, params ...float64) ([]float64, error)
}

type smaIndicator struct{}

func (smaIndicator) Name() string { return "sma" }

func (smaIndicator) Calculate(values []float64, params ...float64) ([]float64, error) {
	period, err := periodParam(params)
	if err != nil {
		return nil, err
	}
	return SMASeries(values, period), nil
}

type rsiIndicator struct{}

func (rsiIndicator) Name() string { return "rsi" }

func (rsiIndicator) Calculate(values []float64, params ...float64) ([]float64, error) {
	period, err := periodParam(params)
	if err != nil {
		return nil, err
	}
	return RSISeries(values, period), nil
}

// New returns the series indicator registered under name.
func New(name string) (Indicator, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sma":
		return smaIndicator{}, nil
	case "rsi":
		return rsiIndicator{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownIndicator, name)
	}
}

// periodParam reads the optional period from params[0].
func periodParam(params []float64) (int, error) {
	if len(params) == 0 {
		return DefaultPeriod, nil
	}
	p := params[0]
	if math.IsNaN(p) || math.IsInf(p, 0) || p < 1 || p != math.Trunc(p) {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidPeriod, p)
	}
	return int(p), nil
}

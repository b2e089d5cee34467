package db

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/goldstandard/internal/price"
)

type MemoryStorage struct {
	mu sync.RWMutex

	// Prices by symbol, then by unix nanoseconds
	prices map[string]map[int64]price.Price
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		prices: make(map[string]map[int64]price.Price),
	}
}

func (m *MemoryStorage) SavePrices(ctx context.Context, symbol string, prices []price.Price) error {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	for i, p := range prices {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid price at index %d for %s: %w", i, symbol, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	series, ok := m.prices[symbol]
	if !ok {
		series = make(map[int64]price.Price)
		m.prices[symbol] = series
	}
	for _, p := range prices {
		p.Timestamp = p.Timestamp.UTC()
		series[p.Timestamp.UnixNano()] = p
	}
	return nil
}

func (m *MemoryStorage) ReplacePrices(ctx context.Context, symbol string, start, end time.Time, prices []price.Price) error {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if err := checkRange(start, end, prices); err != nil {
		return err
	}
	for i, p := range prices {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid price at index %d for %s: %w", i, symbol, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	series := make(map[int64]price.Price, len(m.prices[symbol])+len(prices))
	for k, p := range m.prices[symbol] {
		if p.Timestamp.Before(start) || !p.Timestamp.Before(end) {
			series[k] = p
		}
	}
	for _, p := range prices {
		p.Timestamp = p.Timestamp.UTC()
		series[p.Timestamp.UnixNano()] = p
	}
	m.prices[symbol] = series
	return nil
}

func (m *MemoryStorage) GetPrices(ctx context.Context, symbol string, start, end time.Time) ([]price.Price, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []price.Price
	for _, p := range m.prices[normalizeSymbol(symbol)] {
		if !p.Timestamp.Before(start) && p.Timestamp.Before(end) {
			out = append(out, p)
		}
	}
	price.Sort(out)
	return out, nil
}

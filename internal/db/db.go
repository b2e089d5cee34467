// Package db
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/amirphl/goldstandard/internal/price"
)

// Storage is the interface for persistent price samples.
type Storage interface {
	// SavePrices upserts samples for symbol keyed by timestamp.
	SavePrices(ctx context.Context, symbol string, prices []price.Price) error
	// GetPrices returns samples in [start, end) in ascending time order.
	GetPrices(ctx context.Context, symbol string, start, end time.Time) ([]price.Price, error)
	// ReplacePrices atomically swaps the samples in [start, end) for prices,
	// which must all fall inside that range.
	ReplacePrices(ctx context.Context, symbol string, start, end time.Time, prices []price.Price) error
}

// DB is a Storage backed by a SQL connection pool.
type DB interface {
	Storage
	GetDB() *sql.DB
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/goldstandard/internal/db/conf"
	"github.com/amirphl/goldstandard/internal/price"
	"github.com/amirphl/goldstandard/internal/utils"
	_ "github.com/lib/pq"
)

// txKey carries a *sql.Tx through a context so that nested storage calls
// join the caller's transaction instead of opening their own.
type txKey struct{}

// WithTransaction returns a context whose storage calls run in tx. The caller
// owns tx and must commit or roll it back.
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction returns the transaction carried by ctx, or nil.
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// executeWithTransaction runs fn in the context transaction when there is one.
// Otherwise it opens a transaction, commits it if fn succeeds and rolls it
// back if fn fails.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}

	return nil
}

// queryWithTransaction reads through the context transaction, if any, so reads
// under WithTransaction see that transaction's uncommitted rows.
func (p *Default) queryWithTransaction(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return p.db.QueryContext(ctx, query, args...)
}

type Default struct {
	db *sql.DB
}

func New(c conf.Config) (*Default, error) {
	if c.DB == nil {
		return nil, fmt.Errorf("db config has no connection")
	}
	return &Default{db: c.DB}, nil
}

func (p *Default) GetDB() *sql.DB {
	return p.db
}

func (p *Default) SavePrices(ctx context.Context, symbol string, prices []price.Price) error {
	if len(prices) == 0 {
		return nil
	}
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}

	for i, pr := range prices {
		if err := pr.Validate(); err != nil {
			return fmt.Errorf("invalid price at index %d for %s: %w", i, symbol, err)
		}
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO prices (symbol, timestamp, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (symbol, timestamp) DO UPDATE SET value=EXCLUDED.value
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert statement: %w", err)
		}
		defer stmt.Close()

		for i, pr := range prices {
			if _, err := stmt.ExecContext(ctx, symbol, pr.Timestamp.UTC(), pr.Value); err != nil {
				return fmt.Errorf("failed to save price at index %d (%s at %s): %w", i, symbol, pr.Timestamp, err)
			}
		}
		return nil
	})
}

// ReplacePrices deletes the symbol's samples in [start, end) and upserts
// prices in the same transaction. A failure leaves the old samples in place.
func (p *Default) ReplacePrices(ctx context.Context, symbol string, start, end time.Time, prices []price.Price) error {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if err := checkRange(start, end, prices); err != nil {
		return err
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM prices
			WHERE symbol=$1 AND timestamp >= $2 AND timestamp < $3`,
			symbol, start.UTC(), end.UTC())
		if err != nil {
			return fmt.Errorf("failed to delete prices in range: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			logger := utils.GetLogger()
			logger.Debug().Str("symbol", symbol).Int64("deleted", n).Msg("Replacing prices")
		}
		return p.SavePrices(WithTransaction(ctx, tx), symbol, prices)
	})
}

func (p *Default) GetPrices(ctx context.Context, symbol string, start, end time.Time) ([]price.Price, error) {
	rows, err := p.queryWithTransaction(ctx, `
		SELECT timestamp, value
		FROM prices
		WHERE symbol=$1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp ASC`,
		normalizeSymbol(symbol), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query prices in range: %w", err)
	}
	defer rows.Close()

	var prices []price.Price
	for rows.Next() {
		var pr price.Price
		if err := rows.Scan(&pr.Timestamp, &pr.Value); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		pr.Timestamp = pr.Timestamp.UTC()
		prices = append(prices, pr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating price rows: %w", err)
	}

	return prices, nil
}

// checkRange rejects an empty range and samples that fall outside it.
func checkRange(start, end time.Time, prices []price.Price) error {
	if !start.Before(end) {
		return fmt.Errorf("invalid range: start %s is not before end %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	for i, pr := range prices {
		if pr.Timestamp.Before(start) || !pr.Timestamp.Before(end) {
			return fmt.Errorf("price at index %d (%s) is outside [%s, %s)", i,
				pr.Timestamp.Format(time.RFC3339), start.Format(time.RFC3339), end.Format(time.RFC3339))
		}
	}
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/amirphl/goldstandard/internal/api"
	"github.com/amirphl/goldstandard/internal/chart"
	"github.com/amirphl/goldstandard/internal/config"
	"github.com/amirphl/goldstandard/internal/db"
	"github.com/amirphl/goldstandard/internal/db/conf"
	"github.com/amirphl/goldstandard/internal/price"
	"github.com/amirphl/goldstandard/internal/utils"
)

func main() {
	cfg := config.MustLoadConfig()
	utils.SetLevel(cfg.LogLevel)
	logger := utils.GetLogger()
	logger.Info().Str("mode", cfg.Mode).Str("symbol", cfg.Symbol).Msg("Starting goldstandard")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down...")
		cancel()
	}()

	if cfg.RunMigration {
		if err := runMigrations(ctx, cfg.DBConnStr, logger); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	var err error
	switch cfg.Mode {
	case config.ModeCalc:
		err = runCalc(cfg, os.Stdout)
	case config.ModeImport:
		err = runImport(ctx, cfg, logger)
	case config.ModeChart:
		err = runChart(ctx, cfg, os.Stdout)
	case config.ModeServe:
		err = runServe(ctx, cfg, logger)
	default:
		err = fmt.Errorf("unsupported mode: %s", cfg.Mode)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("mode", cfg.Mode).Msg("Run failed")
	}
	logger.Info().Msg("Shutdown complete")
}

// runCalc prints the chart for a price file.
func runCalc(cfg config.Config, w io.Writer) error {
	prices, err := price.Load(cfg.Input, cfg.Format)
	if err != nil {
		return err
	}
	return writeChart(w, cfg, chart.Build(cfg.Symbol, prices, cfg.SMAPeriod, cfg.RSIPeriod))
}

// runImport stores the samples of a price file.
func runImport(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	prices, err := price.Load(cfg.Input, cfg.Format)
	if err != nil {
		return err
	}
	storage, closeFn, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if cfg.Replace && len(prices) > 0 {
		// parsed samples have second precision
		start, end := prices[0].Timestamp, prices[len(prices)-1].Timestamp.Add(time.Second)
		if err := storage.ReplacePrices(ctx, cfg.Symbol, start, end, prices); err != nil {
			return fmt.Errorf("failed to replace prices: %w", err)
		}
	} else if err := storage.SavePrices(ctx, cfg.Symbol, prices); err != nil {
		return fmt.Errorf("failed to import prices: %w", err)
	}
	logger.Info().Str("symbol", cfg.Symbol).Int("count", len(prices)).Bool("replace", cfg.Replace).Msg("Imported prices")
	return nil
}

// runChart prints the chart for stored prices in [cfg.From, cfg.To).
func runChart(ctx context.Context, cfg config.Config, w io.Writer) error {
	storage, closeFn, err := openStorage(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	prices, err := storage.GetPrices(ctx, cfg.Symbol, cfg.From, cfg.To)
	if err != nil {
		return fmt.Errorf("failed to load prices: %w", err)
	}
	return writeChart(w, cfg, chart.Build(cfg.Symbol, prices, cfg.SMAPeriod, cfg.RSIPeriod))
}

func runServe(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	var storage db.Storage = db.NewMemory()
	if cfg.DBConnStr != "" {
		s, closeFn, err := openStorage(cfg)
		if err != nil {
			return err
		}
		defer closeFn()
		storage = s
		logger.Info().Msg("Connected to Postgres")
	} else {
		logger.Warn().Msg("DB_CONN_STR not set, serving from in-memory storage")
	}

	return api.New(cfg.ListenAddr, cfg.RequestTimeout, storage, logger).Start(ctx)
}

func openStorage(cfg config.Config) (db.Storage, func(), error) {
	dbConfig, err := conf.NewConfig(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create DB config: %w", err)
	}
	storage, err := db.New(*dbConfig)
	if err != nil {
		dbConfig.DB.Close()
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return storage, func() { dbConfig.DB.Close() }, nil
}

func writeChart(w io.Writer, cfg config.Config, c chart.Chart) error {
	if cfg.Output == "csv" {
		return chart.WriteCSV(w, c)
	}
	return chart.WriteJSON(w, c)
}

// runMigrations creates the database if it doesn't exist and applies scripts/schema.sql
func runMigrations(ctx context.Context, connStr string, logger zerolog.Logger) error {
	logger.Info().Msg("Running database migrations...")

	u, err := url.Parse(connStr)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name not found in connection string")
	}

	// Connect to the postgres database to create ours
	base := *u
	base.Path = "/postgres"
	baseDB, err := sql.Open("postgres", base.String())
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer baseDB.Close()

	var exists bool
	err = baseDB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}

	if !exists {
		logger.Info().Str("database", dbName).Msg("Creating database")
		_, err = baseDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName)))
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	database, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	schemaPath, err := conf.FindSchema()
	if err != nil {
		return err
	}
	schemaSQL, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}

	hasTimescaleDB := conf.EnableTimescaleDB(database)
	if !hasTimescaleDB {
		logger.Warn().Msg("TimescaleDB extension is not available, prices table stays a plain table")
	}
	for _, stmt := range conf.SchemaStatements(string(schemaSQL), hasTimescaleDB) {
		if _, err := database.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %q: %w", stmt, err)
		}
	}

	logger.Info().Msg("Database migrations completed successfully")
	return nil
}

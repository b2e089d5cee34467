// Package utils
package utils

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const logFile = "goldstandard.log"

var (
	logger zerolog.Logger
	once   sync.Once
)

// GetLogger returns the process logger, writing to goldstandard.log and stderr.
func GetLogger() zerolog.Logger {
	once.Do(func() {
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		file, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			logger = NewLogger(console, "info")
			logger.Warn().Err(err).Str("file", logFile).Msg("Log file unavailable, logging to console only")
			return
		}
		logger = NewLogger(zerolog.MultiLevelWriter(console, file), "info")
	})
	return logger
}

// SetLevel changes the level of the process logger.
func SetLevel(level string) {
	l := GetLogger()
	logger = l.Level(parseLevel(level))
}

// NewLogger builds a timestamped logger on w at the given level.
func NewLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).Level(parseLevel(level)).With().Timestamp().Str("service", "goldstandard").Logger()
}

func parseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return l
}

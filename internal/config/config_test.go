package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_CONN_STR", "")
	cfg, err := Load([]string{"-input", "gold.csv"})
	require.NoError(t, err)

	assert.Equal(t, ModeCalc, cfg.Mode)
	assert.Equal(t, "XAUUSD", cfg.Symbol)
	assert.Equal(t, 14, cfg.SMAPeriod)
	assert.Equal(t, 14, cfg.RSIPeriod)
	assert.Equal(t, "json", cfg.Output)
	assert.Equal(t, 10, cfg.DBMaxOpen)
	assert.Equal(t, 5, cfg.DBMaxIdle)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.To.After(cfg.From))
	assert.True(t, cfg.To.After(time.Now()))
}

func TestLoad_SameDayRange(t *testing.T) {
	t.Setenv("DB_CONN_STR", "postgres://localhost/gold")
	cfg, err := Load([]string{"-mode", "import", "-input", "gold.csv", "-from", "2024-01-31", "-to", "2024-01-31", "-replace"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), cfg.From)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), cfg.To)
	assert.True(t, cfg.Replace)
}

func TestLoad_FlagsAndEnv(t *testing.T) {
	t.Setenv("DB_CONN_STR", "postgres://localhost/gold")
	t.Setenv("DB_MAX_OPEN", "3")
	cfg, err := Load([]string{
		"-mode", "chart",
		"-symbol", "XAGUSD",
		"-sma-period", "20",
		"-rsi-period", "9",
		"-from", "2024-01-01",
		"-to", "2024-02-01",
		"-output", "csv",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeChart, cfg.Mode)
	assert.Equal(t, "XAGUSD", cfg.Symbol)
	assert.Equal(t, 20, cfg.SMAPeriod)
	assert.Equal(t, 9, cfg.RSIPeriod)
	assert.Equal(t, "postgres://localhost/gold", cfg.DBConnStr)
	assert.Equal(t, 3, cfg.DBMaxOpen)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.From)
	// -to names the last day included
	assert.Equal(t, time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC), cfg.To)
	assert.Equal(t, "csv", cfg.Output)
	assert.False(t, cfg.Replace)
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("DB_CONN_STR", "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlData := `
mode: serve
symbol: XAUUSD
sma_period: 50
rsi_period: 21
listen_addr: ":9090"
request_timeout: 5s
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o644))

	cfg, err := Load([]string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, ModeServe, cfg.Mode)
	assert.Equal(t, 50, cfg.SMAPeriod)
	assert.Equal(t, 21, cfg.RSIPeriod)
	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("DB_CONN_STR", "")
	tests := []struct {
		name string
		args []string
	}{
		{"Unknown mode", []string{"-mode", "live"}},
		{"Calc without input", []string{"-mode", "calc"}},
		{"Chart without database", []string{"-mode", "chart"}},
		{"Zero SMA period", []string{"-input", "x.csv", "-sma-period", "0"}},
		{"Negative RSI period", []string{"-input", "x.csv", "-rsi-period", "-2"}},
		{"Bad output", []string{"-input", "x.csv", "-output", "xml"}},
		{"Bad date", []string{"-input", "x.csv", "-from", "01/02/2024"}},
		{"Inverted range", []string{"-input", "x.csv", "-from", "2024-02-01", "-to", "2024-01-01"}},
		{"Missing config file", []string{"-config", "/nonexistent/config.yaml"}},
		{"Unknown flag", []string{"-strategy", "sma"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.args)
			assert.Error(t, err)
		})
	}
}

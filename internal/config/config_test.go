package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avetra/crypto_trade_exec/internal/config"
)

const sampleConfig = `
exchanges:
  - name: bitget
    api_key: ${TEST_BITGET_KEY}
    api_secret: ${TEST_BITGET_SECRET}
    passphrase: pass-1
    product_type: USDT-FUTURES
    margin_coin: USDT
    timeout: 5s
    max_attempts: 3
    min_request_gap: 100ms
    cache_ttl: 10m
  - name: mexc
    api_key: mk
    api_secret: ms
bots:
  - id: bot-1
    exchange: bitget
    interval: 2s
breaker:
  max_errors: 4
  window: 1m
  cooldown: 5m
journal:
  path: risk.db
logging:
  level: debug
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_BITGET_KEY", "key-from-env")
	t.Setenv("TEST_BITGET_SECRET", "secret-from-env")

	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Exchanges, 2)
	bg := cfg.Exchanges[0]
	assert.Equal(t, "bitget", bg.Name)
	assert.Equal(t, "key-from-env", bg.APIKey, "env references must expand")
	assert.Equal(t, "secret-from-env", bg.APISecret)
	assert.Equal(t, 5*time.Second, bg.Timeout.Std())
	assert.Equal(t, 100*time.Millisecond, bg.MinRequestGap.Std())
	assert.Equal(t, 10*time.Minute, bg.CacheTTL.Std())
	assert.Equal(t, 3, bg.MaxAttempts)

	require.Len(t, cfg.Bots, 1)
	assert.Equal(t, 2*time.Second, cfg.Bots[0].Interval.Std())

	assert.Equal(t, 4, cfg.Breaker.MaxErrors)
	assert.Equal(t, time.Minute, cfg.Breaker.Window.Std())
	assert.Equal(t, "risk.db", cfg.Journal.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingEnvExpandsEmpty(t *testing.T) {
	os.Unsetenv("TEST_NOT_SET_ANYWHERE")
	cfg, err := config.Load(writeConfig(t, `
exchanges:
  - name: test
    api_key: ${TEST_NOT_SET_ANYWHERE}
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Exchanges[0].APIKey)
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := config.Load(writeConfig(t, `
exchanges:
  - name: test
    timeout: not-a-duration
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_FileMissing(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestConfig_ExchangeLookup(t *testing.T) {
	cfg, err := config.Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	ec, err := cfg.Exchange("mexc")
	require.NoError(t, err)
	assert.Equal(t, "mk", ec.APIKey)

	_, err = cfg.Exchange("nope")
	require.Error(t, err)
}

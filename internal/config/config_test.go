package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dealproof.hcl")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadWithEnv(filepath.Join(t.TempDir(), "nope.hcl"), map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
backend {
  url             = "wss://dealer.example/ws"
  timeout         = "3s"
  retry_max_tries = 7
}

reveal {
  delay = "750ms"
}

log {
  level  = "debug"
  format = "json"
}
`)
	cfg, err := LoadWithEnv(path, map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "wss://dealer.example/ws", cfg.Backend.URL)
	assert.Equal(t, 3*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, uint(7), cfg.Backend.RetryMaxTries)
	assert.Equal(t, Default().Backend.RetryInitial, cfg.Backend.RetryInitial, "unset keys keep defaults")
	assert.Equal(t, 750*time.Millisecond, cfg.Reveal.Delay)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `reveal { delay = "2s" }`)
	cfg, err := LoadWithEnv(path, map[string]string{
		"DEALPROOF_REVEAL_DELAY":            "250ms",
		"DEALPROOF_BACKEND_URL":             "http://127.0.0.1:9000/ws",
		"DEALPROOF_LOG_LEVEL":               "warn",
		"DEALPROOF_BACKEND_RETRY_MAX_TRIES": "2",
	})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Reveal.Delay)
	assert.Equal(t, "http://127.0.0.1:9000/ws", cfg.Backend.URL)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, uint(2), cfg.Backend.RetryMaxTries)
	assert.Equal(t, uint(2), cfg.Backend.Retry().MaxTries)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"bad duration": `reveal { delay = "soon" }`,
		"bad scheme":   `backend { url = "ftp://dealer" }`,
		"bad level":    `log { level = "loud" }`,
		"bad format":   `log { format = "xml" }`,
		"negative":     `backend { retry_max_tries = -1 }`,
		"syntax":       `backend {`,
		"unknown key":  `backend { colour = "blue" }`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadWithEnv(writeConfig(t, body), map[string]string{})
			assert.Error(t, err)
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
postgres:
  dsn: "host=db user=ledger"
ledger:
  min_payout: "25.50"
  default_currency: "INR"
`), 0o644))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "INR", cfg.Ledger.DefaultCurrency)
	assert.Equal(t, "25.5", cfg.Ledger.MinPayoutAmount().String())
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	assert.NoError(t, os.WriteFile(path, []byte("server:\n  port: 1\n"), 0o644))

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "USD", cfg.Ledger.DefaultCurrency)
	assert.Equal(t, "10", cfg.Ledger.MinPayoutAmount().String())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("nope.yaml")
	assert.Error(t, err)
}

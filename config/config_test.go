package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "/tmp/listings")

	cfg := Load()

	assert.Equal(t, "/tmp/listings/silver/listings_silver.csv", cfg.SilverPath)
	assert.Equal(t, "/tmp/listings/exchange_rates.json", cfg.RatesCachePath)
	assert.Equal(t, []string{"USD", "GBP", "JPY", "CHF"}, cfg.RatesSymbols)
	assert.Equal(t, 24*time.Hour, cfg.RatesTTL)
	assert.Equal(t, 10*time.Second, cfg.RatesTimeout)
	assert.True(t, cfg.DropShopLinks)
	assert.True(t, cfg.RemovePriceOutliers)
	assert.InDelta(t, 3.0, cfg.OutlierStd, 1e-12)
	assert.False(t, cfg.PostgresEnabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("RATES_SYMBOLS", "usd, chf ,")
	t.Setenv("RATES_TTL", "3600")
	t.Setenv("RATES_TIMEOUT", "2s")
	t.Setenv("DROP_SHOP_LINKS", "false")
	t.Setenv("OUTLIER_STD", "2.5")
	t.Setenv("DB_MAX_RETRIES", "not-a-number")

	cfg := Load()

	assert.Equal(t, []string{"usd", "chf"}, cfg.RatesSymbols)
	assert.Equal(t, time.Hour, cfg.RatesTTL)
	assert.Equal(t, 2*time.Second, cfg.RatesTimeout)
	assert.False(t, cfg.DropShopLinks)
	assert.InDelta(t, 2.5, cfg.OutlierStd, 1e-12)
	assert.Equal(t, 5, cfg.DBMaxRetries)
}

func TestDSN(t *testing.T) {
	cfg := &Config{
		PostgresHost: "db", PostgresPort: "5433", PostgresUser: "u",
		PostgresPassword: "p", PostgresDB: "d", PostgresSSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=d sslmode=disable", cfg.DSN())
}

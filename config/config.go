package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	DataDir    string
	BronzePath string
	SilverPath string
	GoldPath   string

	RatesCachePath string
	RatesAPIURL    string
	RatesBase      string
	RatesSymbols   []string
	RatesTTL       time.Duration
	RatesTimeout   time.Duration

	DropShopLinks bool
	ShopURLPrefix string
	DropColumns   []string

	RemovePriceOutliers bool
	OutlierStd          float64
	CategoryRulesPath   string

	LogLevel string

	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	DBMaxRetries     int

	SQLitePath string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	dataDir := getEnv("DATA_DIR", "./data")

	return &Config{
		DataDir:    dataDir,
		BronzePath: getEnv("BRONZE_PATH", filepath.Join(dataDir, "bronze", "listings_bronze.csv")),
		SilverPath: getEnv("SILVER_PATH", filepath.Join(dataDir, "silver", "listings_silver.csv")),
		GoldPath:   getEnv("GOLD_PATH", filepath.Join(dataDir, "gold", "listings_gold.csv")),

		RatesCachePath: getEnv("RATES_CACHE_PATH", filepath.Join(dataDir, "exchange_rates.json")),
		RatesAPIURL:    getEnv("RATES_API_URL", "https://api.exchangerate.host/latest"),
		RatesBase:      getEnv("RATES_BASE", "EUR"),
		RatesSymbols:   getEnvList("RATES_SYMBOLS", []string{"USD", "GBP", "JPY", "CHF"}),
		RatesTTL:       getEnvDuration("RATES_TTL", 24*time.Hour),
		RatesTimeout:   getEnvDuration("RATES_TIMEOUT", 10*time.Second),

		DropShopLinks: getEnvBool("DROP_SHOP_LINKS", true),
		ShopURLPrefix: getEnv("SHOP_URL_PREFIX", "https://www.elferspot.com/en/shop/"),
		DropColumns:   getEnvList("DROP_COLUMNS", []string{"License documents (Click to open)"}),

		RemovePriceOutliers: getEnvBool("REMOVE_PRICE_OUTLIERS", true),
		OutlierStd:          getEnvFloat("OUTLIER_STD", 3.0),
		CategoryRulesPath:   getEnv("CATEGORY_RULES_PATH", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "listings"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "listings123"),
		PostgresDB:       getEnv("POSTGRES_DB", "listings_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		DBMaxRetries:     getEnvInt("DB_MAX_RETRIES", 5),

		SQLitePath: getEnv("SQLITE_PATH", ""),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("36h") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// Package config loads the core's environment-driven settings, following
// the teacher's getEnv/getEnvFloat/getEnvInt helper style with
// github.com/joho/godotenv for local .env loading.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"trading-core/internal/model"
)

// Config holds every environment-driven setting named in spec.md §6.
type Config struct {
	// Admin HTTP
	Port string

	// Symbols and kline interval
	Symbols  []string
	Interval model.TimeInterval

	// Exchange credentials
	BinanceTestnet   bool
	BinanceAPIKey    string
	BinanceAPISecret string
	UseMockExchange  bool

	// Bus (Redis)
	BusHost string
	BusPort int
	BusDB   int
	UseRedisBus bool

	// Risk limits
	MaxRiskPerTradePct float64
	MaxAbsoluteDD      float64
	MaxRelativeDD      float64
	MaxExposurePct     float64
	ATRPeriod          int
	ATRMultiplier      float64
	DrawdownInterval   time.Duration

	// Signal scoring thresholds
	SignalScoreBuy  float64
	SignalScoreSell float64
	SignalScoreHold float64

	// Database
	DBPath string

	// Auth
	JWTSecret string

	// Starting cash balance, used to seed the portfolio manager when no
	// live account balance query is wired in (mock exchange, first run).
	InitialCashBalance float64
}

// Load reads environment variables (optionally via .env) into Config.
// Invalid required values are a Fatal error per §7's startup-validation
// class: the caller should log.Fatal on a non-nil error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	symbols := splitAndTrim(getEnv("SYMBOL", "BTCUSDT"))
	if len(symbols) == 0 {
		return nil, fmt.Errorf("config: SYMBOL must name at least one symbol")
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		Symbols:  symbols,
		Interval: model.TimeInterval(getEnv("KLINE_INTERVAL", "1m")),

		BinanceTestnet:   getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		UseMockExchange:  getEnv("USE_MOCK_EXCHANGE", "true") == "true",

		BusHost:     getEnv("BUS_HOST", "localhost"),
		BusPort:     getEnvInt("BUS_PORT", 6379),
		BusDB:       getEnvInt("BUS_DB", 0),
		UseRedisBus: getEnv("USE_REDIS_BUS", "false") == "true",

		MaxRiskPerTradePct: getEnvFloat("MAX_RISK_PER_TRADE_PCT", 0.01),
		MaxAbsoluteDD:      getEnvFloat("MAX_ABSOLUTE_DRAWDOWN", 0.10),
		MaxRelativeDD:      getEnvFloat("MAX_RELATIVE_DRAWDOWN", 0.05),
		MaxExposurePct:     getEnvFloat("MAX_EXPOSURE_PCT", 0.5),
		ATRPeriod:          getEnvInt("ATR_PERIOD", 14),
		ATRMultiplier:      getEnvFloat("ATR_MULTIPLIER", 1.0),
		DrawdownInterval:   time.Duration(getEnvInt("DRAWDOWN_CHECK_INTERVAL_SECONDS", 30)) * time.Second,

		SignalScoreBuy:  getEnvFloat("SIGNAL_SCORE_BUY", 1.0),
		SignalScoreSell: getEnvFloat("SIGNAL_SCORE_SELL", -1.0),
		SignalScoreHold: getEnvFloat("SIGNAL_SCORE_HOLD", 0.0),

		DBPath:    getEnv("DB_PATH", "./data/trading.db"),
		JWTSecret: getEnv("JWT_SECRET", "dev-secret"),

		InitialCashBalance: getEnvFloat("INITIAL_CASH_BALANCE", 10000.0),
	}

	if !cfg.UseMockExchange && (cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "") {
		return nil, fmt.Errorf("config: BINANCE_API_KEY and BINANCE_API_SECRET are required when USE_MOCK_EXCHANGE=false")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

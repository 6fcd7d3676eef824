package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultJWTSecret = "your-very-secure-and-long-jwt-secret-key-for-hs256-minimum-32-bytes"

type AppConfig struct {
	JWTSecret          string
	Port               string
	DatabasePath       string
	LogLevel           string
	HistoricalDataPath string
	AllowedOrigins     []string
	MaxImportSizeBytes int64
	CacheExpiry        time.Duration
	PriceLookupEnabled bool

	RateLimitPerSecond float64
	RateLimitBurst     int

	// Return engine thresholds. See processors.ReturnOptions.
	ReturnsMinDenominator float64
	ReturnsMaxDailyReturn float64
	DietzMinStartValue    float64
}

var Cfg *AppConfig

// LoadConfig reads an optional .env file and the process environment into Cfg.
func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", err)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getEnv("JWT_SECRET", defaultJWTSecret)
	if jwtSecret == defaultJWTSecret {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET environment variable for production.")
	}

	Cfg = &AppConfig{
		JWTSecret:          jwtSecret,
		Port:               getEnv("PORT", "8080"),
		DatabasePath:       getEnv("DATABASE_PATH", "./portfolio.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		HistoricalDataPath: getEnv("HISTORICAL_DATA_PATH", "data/historicalExchangeRate.json"),
		AllowedOrigins:     getEnvAsList("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		MaxImportSizeBytes: getEnvAsInt64("MAX_IMPORT_SIZE_BYTES", 10*1024*1024),
		CacheExpiry:        getEnvAsDuration("CACHE_EXPIRY", 15*time.Minute),
		PriceLookupEnabled: getEnvAsBool("PRICE_LOOKUP_ENABLED", false),

		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 30),

		ReturnsMinDenominator: getEnvAsFloat("RETURNS_MIN_DENOMINATOR", 1),
		ReturnsMaxDailyReturn: getEnvAsFloat("RETURNS_MAX_DAILY_RETURN", 10),
		DietzMinStartValue:    getEnvAsFloat("DIETZ_MIN_START_VALUE", 1),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, PriceLookup=%t",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.PriceLookupEnabled)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsInt64(key string, fallback int64) int64 {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	log.Printf("Invalid float value for %s ('%s'), using default: %g", key, valueStr, fallback)
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid boolean value for %s ('%s'), using default: %t", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr, ok := os.LookupEnv(key)
	if !ok || valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(valueStr) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

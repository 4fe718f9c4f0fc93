package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port       string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	// Downstream services
	BackendEndpoint string
	GeocodeEndpoint string
	// Gateway tuning
	FlushIntervalSeconds string // seconds between log-relay flushes
	UploadPacingMS       string // milliseconds between sends to one terminal
	DedupWindowMS        string // milliseconds a reply key is remembered
}

func Load() *Config {
	return &Config{
		Port:       getenv("PORT", "7788"),
		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBUser:     getenv("DB_USER", "postgres"),
		DBPassword: getenv("DB_PASSWORD", "postgres"),
		DBName:     getenv("DB_NAME", "gateway_db"),
		DBSSLMode:  getenv("DB_SSLMODE", "disable"),

		BackendEndpoint: getenv("BACKEND_ENDPOINT", "https://backend.mytime2cloud.com/api"),
		GeocodeEndpoint: getenv("GEOCODE_ENDPOINT", ""),

		FlushIntervalSeconds: getenv("FLUSH_INTERVAL_SECONDS", "30"),
		UploadPacingMS:       getenv("UPLOAD_PACING_MS", "30"),
		DedupWindowMS:        getenv("DEDUP_WINDOW_MS", "500"),
	}
}

// FlushInterval returns the parsed flush interval, defaulting to 30s
// when the env value is not a positive integer.
func (c *Config) FlushInterval() time.Duration {
	return secondsOr(c.FlushIntervalSeconds, 30*time.Second)
}

func (c *Config) UploadPacing() time.Duration {
	return millisOr(c.UploadPacingMS, 30*time.Millisecond)
}

func (c *Config) DedupWindow() time.Duration {
	return millisOr(c.DedupWindowMS, 500*time.Millisecond)
}

func secondsOr(v string, fallback time.Duration) time.Duration {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func millisOr(v string, fallback time.Duration) time.Duration {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

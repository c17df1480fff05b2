package config

import (
	"os"
	"strconv"
)

// Config holds the core runtime configuration for the service. Values are
// sourced from environment variables with sensible defaults; a .env file is
// loaded by main before this runs.
type Config struct {
	ListenAddr string
	DBPath     string

	// TokenFile receives the dashboard token on startup so the token
	// command can find it.
	TokenFile string

	// Significance is the default winner threshold for new experiments.
	Significance float64

	// AllowedOrigin is the CORS origin for the public endpoints. The
	// default "*" serves any landing page.
	AllowedOrigin string
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		ListenAddr:    getenv("PS_LISTEN_ADDR", ":8080"),
		DBPath:        getenv("PS_DB_PATH", "./pagesplit.db"),
		TokenFile:     getenv("PS_TOKEN_FILE", "./.pagesplit-token"),
		Significance:  0.95,
		AllowedOrigin: getenv("PS_ALLOWED_ORIGIN", "*"),
	}

	if v := os.Getenv("PS_SIGNIFICANCE"); v != "" {
		if sig, err := strconv.ParseFloat(v, 64); err == nil && sig > 0 && sig < 1 {
			cfg.Significance = sig
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

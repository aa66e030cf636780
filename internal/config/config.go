package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the client's runtime settings.
type Config struct {
	// ServerURL is the base URL of the Acca API gateway.
	ServerURL string
	// DataDir is where the keystore lives. Created on first use.
	DataDir string
	// ValidateInterval is how often the background session validation runs.
	ValidateInterval time.Duration
	// HTTPTimeout bounds every request issued by the gateway client.
	HTTPTimeout time.Duration
}

// Load reads configuration from the environment, honoring a .env file if one
// is present in the working directory.
func Load() Config {
	// Load .env file if present
	_ = godotenv.Load()

	return Config{
		ServerURL:        getEnv("ACCA_SERVER_URL", ""),
		DataDir:          getEnv("ACCA_DATA_DIR", defaultDataDir()),
		ValidateInterval: getDuration("ACCA_VALIDATE_INTERVAL", 30*time.Second),
		HTTPTimeout:      getDuration("ACCA_HTTP_TIMEOUT", 15*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".acca"
	}
	return filepath.Join(home, ".acca")
}

package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port             int
	DatabaseURL      string
	LogLevel         string
	NatsURL          string
	NatsToken        string
	ProviderBaseURL  string
	SyncPageSize     int
	MaxExampleTokens int
	APIToken         string
}

func Load() Config {
	return Config{
		Port:             envInt("ANNOTATOR_PORT", 8630),
		DatabaseURL:      envStr("DATABASE_URL", ""),
		LogLevel:         envStr("LOG_LEVEL", "info"),
		NatsURL:          envStr("NATS_URL", ""),
		NatsToken:        envStr("NATS_TOKEN", ""),
		ProviderBaseURL:  envStr("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io/v1/convai"),
		SyncPageSize:     envInt("SYNC_PAGE_SIZE", 100),
		MaxExampleTokens: envInt("EXPORT_MAX_EXAMPLE_TOKENS", 65536),
		APIToken:         envStr("ANNOTATOR_API_TOKEN", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

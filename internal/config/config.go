package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider names accepted in LETTERS_PROVIDER.
const (
	ProviderGoogle = "google"
	ProviderMemory = "memory"
)

type Config struct {
	Addr          string
	DatabaseURL   string
	MigrationsDir string
	RedisURL      string
	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	StateTTL      time.Duration
	SaveLockTTL   time.Duration
	CORSOrigins   []string
	Provider      string
	// Google OAuth client
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	// ClientURL is where the OAuth callback sends the browser once the session exists.
	ClientURL string
	LogLevel  string
	LogFormat string
}

func Load() Config {
	return Config{
		Addr:               getenv("API_ADDR", ":5000"),
		DatabaseURL:        getenv("DATABASE_URL", ""),
		MigrationsDir:      getenv("LETTERS_MIGRATIONS_DIR", "./db/migrations"),
		RedisURL:           getenv("REDIS_URL", ""),
		JWTSecret:          getenv("LETTERS_JWT_SECRET", "letters-dev-secret"),
		AccessTTL:          time.Duration(getenvInt("LETTERS_ACCESS_TTL_SECONDS", 3600)) * time.Second,
		RefreshTTL:         time.Duration(getenvInt("LETTERS_REFRESH_TTL_SECONDS", 2592000)) * time.Second,
		StateTTL:           time.Duration(getenvInt("LETTERS_STATE_TTL_SECONDS", 600)) * time.Second,
		SaveLockTTL:        time.Duration(getenvInt("LETTERS_SAVE_LOCK_TTL_SECONDS", 120)) * time.Second,
		CORSOrigins:        getenvList("LETTERS_CORS_ORIGINS", "http://localhost:3000,https://wordletterapp.netlify.app,https://word-letter-app.vercel.app"),
		Provider:           strings.ToLower(getenv("LETTERS_PROVIDER", ProviderGoogle)),
		GoogleClientID:     getenv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getenv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getenv("GOOGLE_REDIRECT_URI", "http://localhost:5000/api/auth/callback/google"),
		ClientURL:          getenv("CLIENT_URL", "http://localhost:3000"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		LogFormat:          getenv("LOG_FORMAT", "json"),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvList(key, fallback string) []string {
	raw := getenv(key, fallback)
	out := make([]string, 0, 4)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Package config loads application configuration from environment variables.
// A .env file in the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	StorePath  string
	DBPath     string

	ClientID      string
	ClientSecret  string
	RedirectURL   string
	AuthURL       string
	TokenURL      string
	APIBaseURL    string
	ServiceToken  string
	GroupID       string
	Operators     []string
	ReplaceSecret string

	PageSize        int
	PageTokenSecret string
	PageTokenTTL    time.Duration

	RefreshInterval time.Duration
	BatchSize       int
	BatchDelay      time.Duration
}

// Load reads configuration from environment variables and returns a validated
// Config. Required: ROSTERHUB_CLIENT_ID, ROSTERHUB_CLIENT_SECRET,
// ROSTERHUB_REDIRECT_URL, ROSTERHUB_TOKEN_URL, ROSTERHUB_API_BASE_URL,
// ROSTERHUB_SERVICE_TOKEN, ROSTERHUB_GROUP_ID, ROSTERHUB_PAGE_TOKEN_SECRET.
// Optional variables with defaults: ROSTERHUB_LISTEN_ADDR (127.0.0.1:8080),
// ROSTERHUB_STORE_PATH (roster.json), ROSTERHUB_DB_PATH (rosterhub.db),
// ROSTERHUB_PAGE_SIZE (20), ROSTERHUB_PAGE_TOKEN_TTL (2m),
// ROSTERHUB_REFRESH_INTERVAL (24h), ROSTERHUB_BATCH_SIZE (5),
// ROSTERHUB_BATCH_DELAY (10s), ROSTERHUB_OPERATORS (empty),
// ROSTERHUB_REPLACE_SECRET (empty, endpoint disabled when unset),
// ROSTERHUB_AUTH_URL (derived later by the platform client when empty).
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		ClientID:        os.Getenv("ROSTERHUB_CLIENT_ID"),
		ClientSecret:    os.Getenv("ROSTERHUB_CLIENT_SECRET"),
		RedirectURL:     os.Getenv("ROSTERHUB_REDIRECT_URL"),
		AuthURL:         os.Getenv("ROSTERHUB_AUTH_URL"),
		TokenURL:        os.Getenv("ROSTERHUB_TOKEN_URL"),
		APIBaseURL:      os.Getenv("ROSTERHUB_API_BASE_URL"),
		ServiceToken:    os.Getenv("ROSTERHUB_SERVICE_TOKEN"),
		GroupID:         os.Getenv("ROSTERHUB_GROUP_ID"),
		ReplaceSecret:   os.Getenv("ROSTERHUB_REPLACE_SECRET"),
		PageTokenSecret: os.Getenv("ROSTERHUB_PAGE_TOKEN_SECRET"),
	}

	required := map[string]string{
		"ROSTERHUB_CLIENT_ID":         cfg.ClientID,
		"ROSTERHUB_CLIENT_SECRET":     cfg.ClientSecret,
		"ROSTERHUB_REDIRECT_URL":      cfg.RedirectURL,
		"ROSTERHUB_TOKEN_URL":         cfg.TokenURL,
		"ROSTERHUB_API_BASE_URL":      cfg.APIBaseURL,
		"ROSTERHUB_SERVICE_TOKEN":     cfg.ServiceToken,
		"ROSTERHUB_GROUP_ID":          cfg.GroupID,
		"ROSTERHUB_PAGE_TOKEN_SECRET": cfg.PageTokenSecret,
	}
	for name, value := range required {
		if value == "" {
			return nil, fmt.Errorf("%s is required", name)
		}
	}

	cfg.ListenAddr = envOrDefault("ROSTERHUB_LISTEN_ADDR", "127.0.0.1:8080")
	cfg.StorePath = envOrDefault("ROSTERHUB_STORE_PATH", "roster.json")
	cfg.DBPath = envOrDefault("ROSTERHUB_DB_PATH", "rosterhub.db")

	var err error
	if cfg.PageSize, err = envInt("ROSTERHUB_PAGE_SIZE", 20); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = envInt("ROSTERHUB_BATCH_SIZE", 5); err != nil {
		return nil, err
	}
	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("ROSTERHUB_PAGE_SIZE must be at least 1, got %d", cfg.PageSize)
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("ROSTERHUB_BATCH_SIZE must be at least 1, got %d", cfg.BatchSize)
	}

	if cfg.PageTokenTTL, err = envDuration("ROSTERHUB_PAGE_TOKEN_TTL", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = envDuration("ROSTERHUB_REFRESH_INTERVAL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.BatchDelay, err = envDuration("ROSTERHUB_BATCH_DELAY", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.Operators = splitCSV(os.Getenv("ROSTERHUB_OPERATORS"))

	return cfg, nil
}

func envOrDefault(name, fallback string) string {
	if v, ok := os.LookupEnv(name); ok {
		return v
	}
	return fallback
}

func envInt(name string, fallback int) (int, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", name, v, err)
	}
	return parsed, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", name, v, err)
	}
	return parsed, nil
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

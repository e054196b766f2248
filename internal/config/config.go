package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the training console and its server.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Credential issuance (server side).
	LiveKitAPIKey    string
	LiveKitAPISecret string
	LiveKitURL       string
	CredentialTTL    time.Duration

	// Console (client side).
	ServerBaseURL string
	UserID        string
	TransportMode string

	// Local speech recognition.
	RecognitionLanguage string
	RecognitionRetryMax int

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "traincall"),
		AllowAnyOrigin:   false,
		LiveKitAPIKey:    trimmedEnv("LIVEKIT_API_KEY"),
		LiveKitAPISecret: trimmedEnv("LIVEKIT_API_SECRET"),
		LiveKitURL:       trimmedEnv("LIVEKIT_URL"),
		ServerBaseURL:    envOrDefault("APP_SERVER_BASE_URL", "http://localhost:8080"),
		UserID:           envOrDefault("APP_USER_ID", "trainee"),
		TransportMode:    envOrDefault("APP_TRANSPORT_MODE", "auto"),
		// en-US matches the scenario scripts; recognition is monolingual for now.
		RecognitionLanguage: envOrDefault("APP_RECOGNITION_LANGUAGE", "en-US"),
		RecognitionRetryMax: 3,
		DatabaseURL:         trimmedEnv("DATABASE_URL"),
		CredentialTTL:       time.Hour,
		ShutdownTimeout:     15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CredentialTTL, err = durationFromEnv("APP_CREDENTIAL_TTL", cfg.CredentialTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.RecognitionRetryMax, err = intFromEnv("APP_RECOGNITION_RETRY_MAX", cfg.RecognitionRetryMax)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.CredentialTTL < time.Minute {
		return Config{}, fmt.Errorf("APP_CREDENTIAL_TTL must be at least 1m")
	}
	if cfg.RecognitionRetryMax <= 0 {
		return Config{}, fmt.Errorf("APP_RECOGNITION_RETRY_MAX must be positive")
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.TransportMode))
	if mode != "auto" && mode != "livekit" && mode != "fake" {
		return Config{}, fmt.Errorf("invalid APP_TRANSPORT_MODE: %q (expected auto|livekit|fake)", cfg.TransportMode)
	}
	cfg.TransportMode = mode

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimmedEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimmedEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}

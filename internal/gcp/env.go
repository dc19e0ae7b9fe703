package gcp

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GetEnvInt reads an integer variable. Unparseable values fall back with a warning.
func GetEnvInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		slog.Warn("Invalid integer environment variable. Using default.", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

// GetEnvFloat reads a float variable.
func GetEnvFloat(key string, fallback float64) float64 {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		slog.Warn("Invalid float environment variable. Using default.", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

// GetEnvBool reads a boolean variable (1/0, true/false, yes/no).
func GetEnvBool(key string, fallback bool) bool {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "y", "on":
		return true
	case "no", "n", "off":
		return false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		slog.Warn("Invalid boolean environment variable. Using default.", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

// GetEnvDuration reads a duration ("90s", "2m"). A bare number is taken as seconds.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("Invalid duration environment variable. Using default.", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

// GetEnvList reads a comma separated list, dropping blank entries.
func GetEnvList(key string, fallback []string) []string {
	raw, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

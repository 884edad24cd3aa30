// Package config loads the process configuration: HTTP listen settings,
// history-request rate limiting, default history retention, and the set of
// rooms to register at startup. Grounded on the Visper teacher's
// infrastructure/configs package: a koanf-backed Config struct loaded in
// three phases — optional YAML file, environment overrides, then defaults —
// unmarshaled with the "koanf" struct tag.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full process configuration.
type Config struct {
	HTTP        HTTPConfig        `koanf:"http"`
	RateLimiter RateLimiterConfig `koanf:"rate_limiter"`
	History     HistoryConfig     `koanf:"history"`
	Rooms       []StaticRoom      `koanf:"rooms"`
}

// HTTPConfig controls the listen address and server timeouts.
type HTTPConfig struct {
	Host         string        `koanf:"host"`
	Port         uint16        `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// RateLimiterConfig controls the history-request fixed-window limiter.
type RateLimiterConfig struct {
	MaxRequests int           `koanf:"max_requests"`
	Window      time.Duration `koanf:"window"`
}

// HistoryConfig controls the history limit given to every event listed for
// a static room in Rooms. Dynamically created rooms do not use it and keep
// no history.
type HistoryConfig struct {
	DefaultLimit int `koanf:"default_limit"`
}

// StaticRoom describes one room to register at startup.
type StaticRoom struct {
	ID                   string   `koanf:"id"`
	Name                 string   `koanf:"name"`
	Description          string   `koanf:"description"`
	MaxSize              int      `koanf:"max_size"`
	Events               []string `koanf:"events"`
	DefaultSubscriptions []string `koanf:"default_subscriptions"`
	SyncHistoryOnJoin    string   `koanf:"sync_history_on_join"`
}

// Load reads path (if non-empty) as YAML, applies environment overrides,
// then fills in defaults for anything still unset.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyEnvOverrides(k)
	applyDefaults(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	setDefault(k, "http.host", "0.0.0.0")
	setDefault(k, "http.port", 8080)
	setDefault(k, "http.read_timeout", 10*time.Second)
	setDefault(k, "http.write_timeout", 30*time.Second)

	setDefault(k, "rate_limiter.max_requests", 20)
	setDefault(k, "rate_limiter.window", 60*time.Second)

	setDefault(k, "history.default_limit", 100)
}

func applyEnvOverrides(k *koanf.Koanf) {
	if host := getStringEnv("DIALOGUE_HTTP_HOST", ""); host != "" {
		k.Set("http.host", host)
	}
	if port := getIntEnv("DIALOGUE_HTTP_PORT", 0); port > 0 {
		k.Set("http.port", port)
	}
	if readTimeout := getIntEnv("DIALOGUE_HTTP_READ_TIMEOUT_SECONDS", 0); readTimeout > 0 {
		k.Set("http.read_timeout", time.Duration(readTimeout)*time.Second)
	}
	if writeTimeout := getIntEnv("DIALOGUE_HTTP_WRITE_TIMEOUT_SECONDS", 0); writeTimeout > 0 {
		k.Set("http.write_timeout", time.Duration(writeTimeout)*time.Second)
	}

	if maxRequests := getIntEnv("DIALOGUE_RATE_LIMIT_MAX_REQUESTS", 0); maxRequests > 0 {
		k.Set("rate_limiter.max_requests", maxRequests)
	}
	if windowSeconds := getIntEnv("DIALOGUE_RATE_LIMIT_WINDOW_SECONDS", 0); windowSeconds > 0 {
		k.Set("rate_limiter.window", time.Duration(windowSeconds)*time.Second)
	}

	if defaultLimit := getIntEnv("DIALOGUE_HISTORY_DEFAULT_LIMIT", 0); defaultLimit > 0 {
		k.Set("history.default_limit", defaultLimit)
	}
}

// setDefault only sets the value if the key doesn't already exist.
func setDefault(k *koanf.Koanf, key string, value interface{}) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}

func getStringEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

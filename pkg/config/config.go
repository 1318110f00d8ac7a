// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// StreamMode selects how /v/{id} serves a resolved episode.
type StreamMode string

const (
	// StreamModeProxy relays upstream media bytes through this server.
	StreamModeProxy StreamMode = "proxy"
	// StreamModeRedirect answers with a 302 to the resolved media URL.
	StreamModeRedirect StreamMode = "redirect"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	BindAddr     string
	Port         int
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Upstream settings
	UpstreamBase  string // page host, e.g. https://anime1.me
	UpstreamAPI   string // resolution endpoint, e.g. https://v.anime1.me/api
	FetchTimeout  time.Duration
	UpstreamRPS   float64 // outbound requests per second toward upstream
	UpstreamBurst int
	UpstreamProxy string // optional socks5:// or http:// outbound proxy
	UpstreamUTLS  bool   // browser TLS fingerprint for upstream requests
	UpstreamConns int    // cap on concurrent upstream connections

	// Stream serving
	StreamMode StreamMode

	// Recency store
	RecentDB       string
	RecentCapacity int

	// Logging
	LogLevel string
	LogJSON  bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	port := getEnvInt("PORT", 8520)
	bind := getEnvString("BIND_ADDR", "127.0.0.1")
	cfg := &Config{
		BindAddr:       bind,
		Port:           port,
		BaseURL:        getEnvString("BASE_URL", fmt.Sprintf("http://%s:%d", bind, port)),
		ReadTimeout:    getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getEnvDuration("WRITE_TIMEOUT", 0), // 0: proxied streams must not be cut off mid-relay
		IdleTimeout:    getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		UpstreamBase:   strings.TrimRight(getEnvString("UPSTREAM_BASE", "https://anime1.me"), "/"),
		UpstreamAPI:    getEnvString("UPSTREAM_API", "https://v.anime1.me/api"),
		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 20*time.Second),
		UpstreamRPS:    getEnvFloat("UPSTREAM_RPS", 4),
		UpstreamBurst:  getEnvInt("UPSTREAM_BURST", 2),
		UpstreamProxy:  getEnvString("UPSTREAM_PROXY", ""),
		UpstreamUTLS:   getEnvBool("UPSTREAM_UTLS", false),
		UpstreamConns:  getEnvInt("UPSTREAM_MAX_CONNS", 8),
		StreamMode:     parseStreamMode(getEnvString("STREAM_MODE", "proxy")),
		RecentDB:       getEnvString("RECENT_DB", "recent.db"),
		RecentCapacity: getEnvInt("RECENT_CAPACITY", 100),
		LogLevel:       getEnvString("LOG_LEVEL", "info"),
		LogJSON:        getEnvBool("LOG_JSON", false),
	}
	return cfg
}

func parseStreamMode(s string) StreamMode {
	if m, ok := ValidStreamMode(s); ok {
		return m
	}
	return StreamModeProxy
}

// ValidStreamMode reports whether s names a supported stream mode.
func ValidStreamMode(s string) (StreamMode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "proxy":
		return StreamModeProxy, true
	case "redirect":
		return StreamModeRedirect, true
	default:
		return "", false
	}
}

func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return strings.ToLower(val) == "true" || val == "1"
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		// Try parsing as seconds first
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
		// Try parsing as duration string
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

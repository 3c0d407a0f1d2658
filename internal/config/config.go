// Package config holds server settings and the per-access-code session
// configuration read from the config directory.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server is the runtime configuration of `coauthor serve` and the client
// commands. Flags override the environment; the environment overrides the
// defaults.
type Server struct {
	Port      string
	URL       string // base URL of a remote server, for client commands
	DB        string // SQLite path, or a postgres:// URL
	ConfigDir string

	MeiliURL   string // empty disables the search mirror
	MeiliKey   string
	MeiliIndex string

	Verbose bool
}

// FromEnv returns the server configuration with environment fallbacks
// applied.
func FromEnv() Server {
	return Server{
		Port:       EnvOrDefault("COAUTHOR_PORT", "5555"),
		URL:        EnvOrDefault("COAUTHOR_URL", ""),
		DB:         EnvOrDefault("COAUTHOR_DB", "coauthor.db"),
		ConfigDir:  EnvOrDefault("COAUTHOR_CONFIG_DIR", "./config"),
		MeiliURL:   EnvOrDefault("MEILI_URL", ""),
		MeiliKey:   EnvOrDefault("MEILI_KEY", ""),
		MeiliIndex: EnvOrDefault("MEILI_INDEX", "session-events"),
	}
}

// ServerURL is the base URL clients use to reach the server.
func (s Server) ServerURL() string {
	if s.URL != "" {
		return strings.TrimRight(s.URL, "/")
	}
	return "http://localhost:" + s.Port
}

// Replay is the pacing of a replay run.
type Replay struct {
	SpeedUp  float64
	MaxDelay time.Duration
	Start    int
	End      int
}

// EnvOrDefault returns the value of key, or fallback when it is unset or
// empty.
func EnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// EnvFloat parses key as a float, returning fallback when unset or invalid.
func EnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

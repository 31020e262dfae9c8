package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the inspector sidecar.
type Config struct {
	// CDP connection settings
	CDPAddress string
	CDPPort    int

	// Tab matching and browser launch
	TabURLFilter      string
	LaunchBrowser     bool
	BrowserStartURL   string
	BrowserProfileDir string

	// Control API bind settings
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Tracker tuning
	ThrottleMS        int
	EvalTimeoutMS     int
	HandleCacheSize   int
	InfoCacheSize     int
	IsolatedWorldName string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		CDPAddress:        getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:           getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9222),
		TabURLFilter:      getEnvOrDefault("INSPECTOR_TAB_URL_FILTER", ""),
		LaunchBrowser:     getEnvBoolOrDefault("INSPECTOR_LAUNCH_BROWSER", false),
		BrowserStartURL:   getEnvOrDefault("INSPECTOR_BROWSER_START_URL", "about:blank"),
		BrowserProfileDir: getEnvOrDefault("INSPECTOR_BROWSER_PROFILE_DIR", "./browser_profile"),
		BindAddr:          getEnvOrDefault("INSPECTOR_BIND_ADDR", "127.0.0.1:8189"),
		PortCandidates:    getEnvListOrDefault("INSPECTOR_PORT_CANDIDATES", []string{"127.0.0.1:8190", "127.0.0.1:8191"}),
		PortAutoFallback:  getEnvBoolOrDefault("INSPECTOR_PORT_AUTO_FALLBACK", true),
		ThrottleMS:        getEnvIntOrDefault("INSPECTOR_THROTTLE_MS", 16),
		EvalTimeoutMS:     getEnvIntOrDefault("INSPECTOR_EVAL_TIMEOUT_MS", 5000),
		HandleCacheSize:   getEnvIntOrDefault("INSPECTOR_HANDLE_CACHE_SIZE", 1000),
		InfoCacheSize:     getEnvIntOrDefault("INSPECTOR_INFO_CACHE_SIZE", 100),
		IsolatedWorldName: getEnvOrDefault("INSPECTOR_ISOLATED_WORLD", "__shell_inspect_world"),
		LogLevel:          strings.ToLower(getEnvOrDefault("INSPECTOR_LOG_LEVEL", "info")),
		LogFile:           getEnvOrDefault("INSPECTOR_LOG_FILE", "logs/inspector.log"),
	}

	if cfg.ThrottleMS < 1 {
		cfg.ThrottleMS = 16
	}
	if cfg.EvalTimeoutMS < 1000 {
		cfg.EvalTimeoutMS = 1000
	}
	return cfg, nil
}

// CDPURL returns the full CDP HTTP endpoint.
func (c *Config) CDPURL() string {
	return fmt.Sprintf("http://%s:%d", c.CDPAddress, c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

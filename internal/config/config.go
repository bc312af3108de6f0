package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Port          int
	BindAddress   string
	DBPath        string
	DBDriver      string
	RetentionDays int
	DustPath      string
	DustTimeout   time.Duration
	LogLevel      string
	LogFormat     string
	TaskRetention time.Duration
	AllowedPaths  []string // Scan targets are restricted to these when set
}

// Load reads configuration from the environment, after applying any .env
// file in the working directory. Variables already set are not overridden.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnvInt("RECLAIM_PORT", 3001),
		BindAddress:   getEnv("RECLAIM_BIND", ""),
		DBPath:        ExpandPath(getEnv("RECLAIM_DB_PATH", "./data/reclaim.db")),
		DBDriver:      getEnv("RECLAIM_DB_DRIVER", "sqlite"),
		RetentionDays: getEnvInt("RECLAIM_RETENTION_DAYS", 30),
		DustPath:      ExpandPath(getEnv("RECLAIM_DUST_PATH", "")),
		DustTimeout:   getEnvDuration("RECLAIM_DUST_TIMEOUT", 60*time.Second),
		LogLevel:      getEnv("RECLAIM_LOG_LEVEL", "info"),
		LogFormat:     getEnv("RECLAIM_LOG_FORMAT", "console"),
		TaskRetention: getEnvDuration("RECLAIM_TASK_RETENTION", 5*time.Minute),
		AllowedPaths:  getEnvPaths("RECLAIM_ALLOWED_PATHS"),
	}
}

// IsPathAllowed reports whether path lies inside one of the allowed roots.
// An empty allow list permits everything.
func (c *Config) IsPathAllowed(path string) bool {
	if len(c.AllowedPaths) == 0 {
		return true
	}
	path = filepath.Clean(path)
	for _, allowed := range c.AllowedPaths {
		allowed = filepath.Clean(allowed)
		if path == allowed {
			return true
		}
		prefix := allowed
		if !strings.HasSuffix(prefix, string(filepath.Separator)) {
			prefix += string(filepath.Separator)
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// ExpandPath expands a leading ~ to the user's home directory and cleans
// the result.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(path)
}

func getEnv(key, defaultVal string) string {
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

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
			return d
		}
	}
	return defaultVal
}

// getEnvPaths parses a comma-separated path list
func getEnvPaths(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	var paths []string
	for _, p := range strings.Split(val, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			paths = append(paths, ExpandPath(p))
		}
	}
	return paths
}

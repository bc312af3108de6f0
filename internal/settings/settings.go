// Package settings persists the user-editable scan and oracle options.
package settings

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/lyallcooper/reclaim/internal/db"
)

const (
	defaultEndpoint = "https://api.openai.com/v1"
	defaultModel    = "gpt-4o-mini"
)

// Stored keys.
const (
	keyAPIEndpoint     = "apiEndpoint"
	keyAPIKey          = "apiKey"
	keyModel           = "model"
	keyScanPath        = "scanPath"
	keyTargetSizeGB    = "targetSizeGB"
	keyMaxDepth        = "maxDepth"
	keyLastScanTime    = "lastScanTime"
	keyEnableWebSearch = "enableWebSearch"
	keyTavilyAPIKey    = "tavilyApiKey"
)

// Settings is the merged view of stored values over defaults.
type Settings struct {
	APIEndpoint     string     `json:"apiEndpoint"`
	APIKey          string     `json:"apiKey"`
	Model           string     `json:"model"`
	ScanPath        string     `json:"scanPath"`
	TargetSizeGB    float64    `json:"targetSizeGB"`
	MaxDepth        int        `json:"maxDepth"`
	LastScanTime    *time.Time `json:"lastScanTime"`
	EnableWebSearch bool       `json:"enableWebSearch"`
	TavilyAPIKey    string     `json:"tavilyApiKey"`
}

// SearchEnabled reports whether web search is both switched on and usable.
func (s Settings) SearchEnabled() bool {
	return s.EnableWebSearch && s.TavilyAPIKey != ""
}

// Patch is a partial update; nil fields keep their current value.
type Patch struct {
	APIEndpoint     *string    `json:"apiEndpoint"`
	APIKey          *string    `json:"apiKey"`
	Model           *string    `json:"model"`
	ScanPath        *string    `json:"scanPath"`
	TargetSizeGB    *float64   `json:"targetSizeGB"`
	MaxDepth        *int       `json:"maxDepth"`
	LastScanTime    *time.Time `json:"lastScanTime"`
	EnableWebSearch *bool      `json:"enableWebSearch"`
	TavilyAPIKey    *string    `json:"tavilyApiKey"`
}

// Defaults returns the settings used when nothing is stored, seeded from
// the environment.
func Defaults() Settings {
	return Settings{
		APIEndpoint:  firstEnv(defaultEndpoint, "OPENAI_BASE_URL", "VITE_API_ENDPOINT"),
		APIKey:       firstEnv("", "OPENAI_API_KEY", "VITE_API_KEY"),
		Model:        firstEnv(defaultModel, "OPENAI_MODEL", "VITE_MODEL"),
		TargetSizeGB: 1,
		MaxDepth:     5,
		TavilyAPIKey: firstEnv("", "TAVILY_API_KEY"),
	}
}

func firstEnv(defaultVal string, keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return defaultVal
}

// Store reads and writes Settings in the database settings table.
type Store struct {
	db *db.DB
	mu sync.Mutex
}

// NewStore creates a Store over database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Load returns stored values merged over Defaults. Values that fail to
// parse fall back to their default.
func (s *Store) Load() (Settings, error) {
	raw, err := s.db.GetSettings()
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}

	out := Defaults()
	if v, ok := raw[keyAPIEndpoint]; ok && v != "" {
		out.APIEndpoint = v
	}
	if v, ok := raw[keyAPIKey]; ok {
		out.APIKey = v
	}
	if v, ok := raw[keyModel]; ok && v != "" {
		out.Model = v
	}
	if v, ok := raw[keyScanPath]; ok {
		out.ScanPath = v
	}
	if v, ok := raw[keyTargetSizeGB]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			out.TargetSizeGB = f
		}
	}
	if v, ok := raw[keyMaxDepth]; ok {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			out.MaxDepth = i
		}
	}
	if v, ok := raw[keyLastScanTime]; ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			out.LastScanTime = &t
		}
	}
	if v, ok := raw[keyEnableWebSearch]; ok {
		if b, err := strconv.ParseBool(v); err == nil {
			out.EnableWebSearch = b
		}
	}
	if v, ok := raw[keyTavilyAPIKey]; ok {
		out.TavilyAPIKey = v
	}
	return out, nil
}

// Save merges p into the stored settings and returns the result.
func (s *Store) Save(p Patch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values := make(map[string]string)
	if p.APIEndpoint != nil {
		values[keyAPIEndpoint] = *p.APIEndpoint
	}
	if p.APIKey != nil {
		values[keyAPIKey] = *p.APIKey
	}
	if p.Model != nil {
		values[keyModel] = *p.Model
	}
	if p.ScanPath != nil {
		values[keyScanPath] = *p.ScanPath
	}
	if p.TargetSizeGB != nil {
		if *p.TargetSizeGB <= 0 {
			return Settings{}, fmt.Errorf("targetSizeGB must be positive")
		}
		values[keyTargetSizeGB] = strconv.FormatFloat(*p.TargetSizeGB, 'f', -1, 64)
	}
	if p.MaxDepth != nil {
		if *p.MaxDepth <= 0 {
			return Settings{}, fmt.Errorf("maxDepth must be positive")
		}
		values[keyMaxDepth] = strconv.Itoa(*p.MaxDepth)
	}
	if p.LastScanTime != nil {
		values[keyLastScanTime] = p.LastScanTime.UTC().Format(time.RFC3339)
	}
	if p.EnableWebSearch != nil {
		values[keyEnableWebSearch] = strconv.FormatBool(*p.EnableWebSearch)
	}
	if p.TavilyAPIKey != nil {
		values[keyTavilyAPIKey] = *p.TavilyAPIKey
	}

	if len(values) > 0 {
		if err := s.db.SetSettings(values); err != nil {
			return Settings{}, err
		}
	}
	return s.Load()
}

// TouchLastScan records t as the last scan time.
func (s *Store) TouchLastScan(t time.Time) error {
	_, err := s.Save(Patch{LastScanTime: &t})
	return err
}

// Package settings persists the user-editable runtime toggles as a small
// JSON file next to the database. Unlike the static YAML config, these
// change while the program runs and are re-read on every scheduler tick.
package settings

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// Settings are the persisted toggles. Times are local "HH:MM".
type Settings struct {
	AutoExtractEnabled bool   `json:"auto_extract_enabled"`
	AutoExtractTime    string `json:"auto_extract_time"`
	AutoUpdateEnabled  bool   `json:"auto_update_enabled"`
	AutoUpdateTime     string `json:"auto_update_time"`
	UserExportPath     string `json:"user_export_path"`
}

// Defaults returns the out-of-the-box settings: automation off, with
// sensible times pre-filled for when the user turns it on.
func Defaults() Settings {
	return Settings{
		AutoExtractEnabled: false,
		AutoExtractTime:    "08:00",
		AutoUpdateEnabled:  false,
		AutoUpdateTime:     "09:00",
		UserExportPath:     "",
	}
}

// Manager loads and saves the settings file. Unknown keys in the file
// are ignored and missing keys backfill from the defaults, so old files
// keep working across upgrades.
type Manager struct {
	path   string
	logger *slog.Logger

	mu  sync.RWMutex
	cur Settings
}

// NewManager loads the settings file, creating it with defaults when it
// does not exist. A corrupt file logs a warning and falls back to
// defaults rather than failing startup.
func NewManager(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{path: path, logger: logger, cur: Defaults()}

	if err := m.Reload(); err != nil {
		if os.IsNotExist(err) {
			if werr := m.Save(m.cur); werr != nil {
				logger.Warn("settings: write defaults", "path", path, "error", werr)
			}
		} else {
			logger.Warn("settings: load failed, using defaults", "path", path, "error", err)
		}
	}
	return m
}

// Reload re-reads the file into memory.
func (m *Manager) Reload() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	s := Defaults()
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("settings: parse %s: %w", m.path, err)
	}
	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()
	return nil
}

// Current returns a copy of the in-memory settings.
func (m *Manager) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// AutoExtract returns the automated harvest toggle and its HH:MM time.
func (m *Manager) AutoExtract() (bool, string) {
	s := m.Current()
	return s.AutoExtractEnabled, s.AutoExtractTime
}

// AutoUpdate returns the automated selective-update toggle and time.
func (m *Manager) AutoUpdate() (bool, string) {
	s := m.Current()
	return s.AutoUpdateEnabled, s.AutoUpdateTime
}

// Save writes the settings to disk and makes them current.
func (m *Manager) Save(s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", m.path, err)
	}
	m.mu.Lock()
	m.cur = s
	m.mu.Unlock()
	return nil
}

package settings_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/agilradar/agilradar/settings"
)

func TestNewManagerCreatesDefaultsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := settings.NewManager(path, nil)

	got := m.Current()
	if got != settings.Defaults() {
		t.Fatalf("Current = %+v, want defaults", got)
	}

	// The file must exist afterwards so the user can edit it.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("defaults file not written: %v", err)
	}
	var onDisk settings.Settings
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("defaults file not valid JSON: %v", err)
	}
	if onDisk != settings.Defaults() {
		t.Fatalf("on disk = %+v", onDisk)
	}
}

func TestPartialFileBackfillsDefaults(t *testing.T) {
	// An old file missing newer keys keeps working: absent keys take
	// their default values, present ones are honored.
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{"auto_extract_enabled": true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	m := settings.NewManager(path, nil)
	got := m.Current()
	if !got.AutoExtractEnabled {
		t.Error("AutoExtractEnabled = false, want true from file")
	}
	if got.AutoExtractTime != "08:00" || got.AutoUpdateTime != "09:00" {
		t.Errorf("times = %q/%q, want backfilled defaults", got.AutoExtractTime, got.AutoUpdateTime)
	}
}

func TestCorruptFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}

	m := settings.NewManager(path, nil)
	if m.Current() != settings.Defaults() {
		t.Fatalf("Current = %+v, want defaults on corrupt file", m.Current())
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := settings.NewManager(path, nil)

	s := m.Current()
	s.AutoUpdateEnabled = true
	s.AutoUpdateTime = "14:30"
	s.UserExportPath = "/tmp/export"
	if err := m.Save(s); err != nil {
		t.Fatal(err)
	}

	// A fresh manager over the same file sees the saved values.
	m2 := settings.NewManager(path, nil)
	got := m2.Current()
	if !got.AutoUpdateEnabled || got.AutoUpdateTime != "14:30" || got.UserExportPath != "/tmp/export" {
		t.Fatalf("reloaded = %+v", got)
	}
}

func TestAccessors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := settings.NewManager(path, nil)

	s := m.Current()
	s.AutoExtractEnabled = true
	s.AutoExtractTime = "07:15"
	if err := m.Save(s); err != nil {
		t.Fatal(err)
	}

	on, at := m.AutoExtract()
	if !on || at != "07:15" {
		t.Fatalf("AutoExtract = %v %q", on, at)
	}
	on, _ = m.AutoUpdate()
	if on {
		t.Fatal("AutoUpdate enabled, want default off")
	}
}

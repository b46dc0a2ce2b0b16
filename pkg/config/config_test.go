package config

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

func newTestManager(t *testing.T) (*FileProfileManager, *clockwork.FakeClock, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	return NewFileProfileManager(fs, "/profiles").WithClock(clock), clock, fs
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name     string
		settings func() Settings
		wantErr  bool
	}{
		{
			name:     "defaults",
			settings: DefaultSettings,
			wantErr:  false,
		},
		{
			name: "full profile",
			settings: func() Settings {
				s := DefaultSettings()
				s.Port = "COM7"
				s.LogPath = "/var/log/serial/bench.txt"
				s.AutoReconnect = true
				s.Script = "AT\nwait500\nATI"
				return s
			},
			wantErr: false,
		},
		{
			name: "unsupported baud",
			settings: func() Settings {
				s := DefaultSettings()
				s.BaudRate = 1234
				return s
			},
			wantErr: true,
		},
		{
			name: "bad port",
			settings: func() Settings {
				s := DefaultSettings()
				s.Port = "printer"
				return s
			},
			wantErr: true,
		},
		{
			name: "negative delay",
			settings: func() Settings {
				s := DefaultSettings()
				s.ScriptDelayMS = -1
				return s
			},
			wantErr: true,
		},
		{
			name: "long command char",
			settings: func() Settings {
				s := DefaultSettings()
				s.CommandChar = "//"
				return s
			},
			wantErr: true,
		},
		{
			name: "empty command char",
			settings: func() Settings {
				s := DefaultSettings()
				s.CommandChar = ""
				return s
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings().Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Settings.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_ScriptDelay(t *testing.T) {
	s := DefaultSettings()
	if got := s.ScriptDelay(); got != 200*time.Millisecond {
		t.Errorf("ScriptDelay() = %v, want 200ms", got)
	}
}

func TestProfileInfo_Validate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		info    ProfileInfo
		wantErr bool
	}{
		{name: "valid", info: ProfileInfo{Name: "bench", Settings: DefaultSettings(), CreatedAt: now}},
		{name: "empty name", info: ProfileInfo{Settings: DefaultSettings(), CreatedAt: now}, wantErr: true},
		{name: "invalid settings", info: ProfileInfo{Name: "bench", CreatedAt: now}, wantErr: true},
		{name: "zero created at", info: ProfileInfo{Name: "bench", Settings: DefaultSettings()}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("ProfileInfo.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFileProfileManager_Initialize(t *testing.T) {
	fpm, _, fs := newTestManager(t)

	if err := fpm.Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	exists, err := afero.Exists(fs, "/profiles/profiles.json")
	if err != nil || !exists {
		t.Fatalf("profile file not created: exists=%v err=%v", exists, err)
	}

	profiles, err := fpm.ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if len(profiles) != 0 {
		t.Errorf("expected no profiles, got %d", len(profiles))
	}
}

func TestFileProfileManager_SaveAndLoad(t *testing.T) {
	fpm, clock, _ := newTestManager(t)

	settings := DefaultSettings()
	settings.Port = "COM4"
	settings.BaudRate = 9600
	settings.AutoReconnect = true

	if err := fpm.SaveProfile("bench", settings); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}
	created := clock.Now()

	clock.Advance(time.Hour)
	loaded, err := fpm.LoadProfile("bench")
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if loaded != settings {
		t.Errorf("LoadProfile() = %+v, want %+v", loaded, settings)
	}

	profiles, err := fpm.ListProfiles()
	if err != nil {
		t.Fatalf("ListProfiles() error = %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(profiles))
	}
	if !profiles[0].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", profiles[0].CreatedAt, created)
	}
	if !profiles[0].LastUsedAt.Equal(created.Add(time.Hour)) {
		t.Errorf("LastUsedAt = %v, want %v", profiles[0].LastUsedAt, created.Add(time.Hour))
	}
}

func TestFileProfileManager_SaveKeepsMetadata(t *testing.T) {
	fpm, clock, _ := newTestManager(t)
	created := clock.Now()

	if err := fpm.SaveProfile("bench", DefaultSettings()); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}
	if err := fpm.SetDescription("bench", "lab bench"); err != nil {
		t.Fatalf("SetDescription() error = %v", err)
	}

	clock.Advance(24 * time.Hour)
	updated := DefaultSettings()
	updated.BaudRate = 57600
	if err := fpm.SaveProfile("bench", updated); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}

	profiles, _ := fpm.ListProfiles()
	if profiles[0].Description != "lab bench" {
		t.Errorf("Description = %q, want %q", profiles[0].Description, "lab bench")
	}
	if !profiles[0].CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed to %v", profiles[0].CreatedAt)
	}
	if profiles[0].Settings.BaudRate != 57600 {
		t.Errorf("BaudRate = %d, want 57600", profiles[0].Settings.BaudRate)
	}
}

func TestFileProfileManager_Errors(t *testing.T) {
	fpm, _, _ := newTestManager(t)

	if err := fpm.SaveProfile("", DefaultSettings()); err == nil {
		t.Error("expected error for empty name")
	}
	if err := fpm.SaveProfile("bad", Settings{}); err == nil {
		t.Error("expected error for invalid settings")
	}
	if _, err := fpm.LoadProfile("missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("LoadProfile() error = %v, want ErrProfileNotFound", err)
	}
	if err := fpm.DeleteProfile("missing"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("DeleteProfile() error = %v, want ErrProfileNotFound", err)
	}
	if err := fpm.SetDescription("missing", "x"); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("SetDescription() error = %v, want ErrProfileNotFound", err)
	}
}

func TestFileProfileManager_DeleteAndExists(t *testing.T) {
	fpm, _, _ := newTestManager(t)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := fpm.SaveProfile(name, DefaultSettings()); err != nil {
			t.Fatalf("SaveProfile(%s) error = %v", name, err)
		}
	}

	profiles, _ := fpm.ListProfiles()
	var names []string
	for _, p := range profiles {
		names = append(names, p.Name)
	}
	if len(names) != 3 || names[0] != "alpha" || names[1] != "mid" || names[2] != "zeta" {
		t.Errorf("ListProfiles() names = %v, want sorted", names)
	}

	if err := fpm.DeleteProfile("mid"); err != nil {
		t.Fatalf("DeleteProfile() error = %v", err)
	}
	if fpm.ProfileExists("mid") {
		t.Error("mid should be gone")
	}
	if !fpm.ProfileExists("alpha") {
		t.Error("alpha should still exist")
	}
	if fpm.ProfileExists("") {
		t.Error("empty name never exists")
	}
}

func TestFileProfileManager_ExportImport(t *testing.T) {
	fpm, _, fs := newTestManager(t)

	settings := DefaultSettings()
	settings.Port = "/dev/ttyACM0"
	if err := fpm.SaveProfile("usb", settings); err != nil {
		t.Fatalf("SaveProfile() error = %v", err)
	}
	if err := fpm.ExportProfile("usb", "/tmp/usb.json"); err != nil {
		t.Fatalf("ExportProfile() error = %v", err)
	}

	other := NewFileProfileManager(fs, "/other")
	name, err := other.ImportProfile("/tmp/usb.json")
	if err != nil {
		t.Fatalf("ImportProfile() error = %v", err)
	}
	if name != "usb" {
		t.Errorf("ImportProfile() name = %q, want usb", name)
	}
	loaded, err := other.LoadProfile("usb")
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	if loaded.Port != "/dev/ttyACM0" {
		t.Errorf("Port = %q, want /dev/ttyACM0", loaded.Port)
	}

	if err := afero.WriteFile(fs, "/tmp/bad.json", []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := other.ImportProfile("/tmp/bad.json"); err == nil {
		t.Error("expected parse error")
	}
}

func TestFileProfileManager_CorruptStorage(t *testing.T) {
	fpm, _, fs := newTestManager(t)
	if err := afero.WriteFile(fs, fpm.Path(), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := fpm.ListProfiles(); err == nil {
		t.Error("expected error for corrupt profile file")
	}
	if fpm.ProfileExists("anything") {
		t.Error("corrupt storage has no profiles")
	}
}

func TestFileProfileManager_ReadOnly(t *testing.T) {
	fpm := NewFileProfileManager(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/profiles")
	if err := fpm.SaveProfile("bench", DefaultSettings()); err == nil {
		t.Error("expected error on read-only filesystem")
	}
}

// Package config provides session profiles and the global configuration
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"serial-logterm/pkg/serial"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
)

const (
	// DefaultScriptDelayMS is the script line delay in milliseconds.
	DefaultScriptDelayMS = 200
	DefaultCommandChar   = "/"
	DefaultOutputPrefix  = "> "

	profileFile    = "profiles.json"
	storageVersion = "1.0"
)

// ErrProfileNotFound is returned for unknown profile names.
var ErrProfileNotFound = errors.New("profile not found")

// Settings are the user-facing session parameters. They are handed to the
// core as plain values.
type Settings struct {
	LogPath       string `json:"log_path,omitempty"`
	Port          string `json:"port,omitempty"`
	Script        string `json:"script,omitempty"`
	CommandChar   string `json:"command_char"`
	OutputPrefix  string `json:"output_prefix"`
	BaudRate      int    `json:"baud_rate"`
	ScriptDelayMS int    `json:"script_delay_ms"`
	AutoReconnect bool   `json:"auto_reconnect"`
}

// DefaultSettings returns the settings used when no profile is loaded
func DefaultSettings() Settings {
	return Settings{
		BaudRate:      serial.DefaultBaudRate,
		ScriptDelayMS: DefaultScriptDelayMS,
		CommandChar:   DefaultCommandChar,
		OutputPrefix:  DefaultOutputPrefix,
	}
}

// ScriptDelay returns the script delay as a duration
func (s Settings) ScriptDelay() time.Duration {
	return time.Duration(s.ScriptDelayMS) * time.Millisecond
}

// Validate checks if the settings are usable
func (s Settings) Validate() error {
	if !serial.IsValidBaudRate(s.BaudRate) {
		return fmt.Errorf("invalid baud rate: %d", s.BaudRate)
	}
	if s.Port != "" {
		if _, err := serial.NormalizePortName(s.Port); err != nil {
			return fmt.Errorf("invalid port %q: %w", s.Port, err)
		}
	}
	if s.ScriptDelayMS < 0 {
		return fmt.Errorf("script delay cannot be negative: %d", s.ScriptDelayMS)
	}
	if utf8.RuneCountInString(s.CommandChar) > 1 {
		return fmt.Errorf("command char must be a single character, got %q", s.CommandChar)
	}
	return nil
}

// ProfileManager defines the contract for profile operations
type ProfileManager interface {
	SaveProfile(name string, settings Settings) error
	LoadProfile(name string) (Settings, error)
	ListProfiles() ([]ProfileInfo, error)
	DeleteProfile(name string) error
	ProfileExists(name string) bool
}

// ProfileInfo contains a saved profile and its metadata
type ProfileInfo struct {
	Name        string    `json:"name"`
	Settings    Settings  `json:"settings"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
	Description string    `json:"description,omitempty"`
}

// Validate checks if the profile info is valid
func (p ProfileInfo) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if err := p.Settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if p.CreatedAt.IsZero() {
		return fmt.Errorf("created_at timestamp cannot be zero")
	}
	return nil
}

// ProfileStorage is the on-disk layout
type ProfileStorage struct {
	Profiles map[string]ProfileInfo `json:"profiles"`
	Version  string                 `json:"version"`
}

// FileProfileManager implements ProfileManager on a single JSON file
type FileProfileManager struct {
	fs         afero.Fs
	clock      clockwork.Clock
	profileDir string
	fileName   string
}

// NewFileProfileManager creates a file-based profile manager. A nil fs
// means the OS filesystem.
func NewFileProfileManager(fs afero.Fs, profileDir string) *FileProfileManager {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileProfileManager{
		fs:         fs,
		clock:      clockwork.NewRealClock(),
		profileDir: profileDir,
		fileName:   profileFile,
	}
}

// WithClock replaces the clock used for timestamps
func (fpm *FileProfileManager) WithClock(clock clockwork.Clock) *FileProfileManager {
	fpm.clock = clock
	return fpm
}

// Initialize creates the profile directory and an empty store if needed
func (fpm *FileProfileManager) Initialize() error {
	if err := fpm.fs.MkdirAll(fpm.profileDir, 0o755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	exists, err := afero.Exists(fpm.fs, fpm.Path())
	if err != nil {
		return fmt.Errorf("failed to check profile file: %w", err)
	}
	if !exists {
		storage := ProfileStorage{
			Profiles: make(map[string]ProfileInfo),
			Version:  storageVersion,
		}
		if err := fpm.saveStorage(storage); err != nil {
			return fmt.Errorf("failed to initialize profile file: %w", err)
		}
	}
	return nil
}

// SaveProfile saves settings under name, keeping the creation time and
// description of an existing profile
func (fpm *FileProfileManager) SaveProfile(name string, settings Settings) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if err := fpm.Initialize(); err != nil {
		return err
	}

	storage, err := fpm.loadStorage()
	if err != nil {
		return fmt.Errorf("failed to load existing profiles: %w", err)
	}

	now := fpm.clock.Now()
	info := ProfileInfo{
		Name:       name,
		Settings:   settings,
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if existing, ok := storage.Profiles[name]; ok {
		info.CreatedAt = existing.CreatedAt
		info.Description = existing.Description
	}
	storage.Profiles[name] = info

	if err := fpm.saveStorage(storage); err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

// LoadProfile loads a profile by name and records its use
func (fpm *FileProfileManager) LoadProfile(name string) (Settings, error) {
	if name == "" {
		return Settings{}, fmt.Errorf("profile name cannot be empty")
	}

	storage, err := fpm.loadStorage()
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load profiles: %w", err)
	}

	info, ok := storage.Profiles[name]
	if !ok {
		return Settings{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	info.LastUsedAt = fpm.clock.Now()
	storage.Profiles[name] = info
	// last-used is advisory
	_ = fpm.saveStorage(storage)

	return info.Settings, nil
}

// ListProfiles returns all saved profiles ordered by name
func (fpm *FileProfileManager) ListProfiles() ([]ProfileInfo, error) {
	storage, err := fpm.loadStorage()
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}

	profiles := make([]ProfileInfo, 0, len(storage.Profiles))
	for _, info := range storage.Profiles {
		profiles = append(profiles, info)
	}
	slices.SortFunc(profiles, func(a, b ProfileInfo) int {
		return strings.Compare(a.Name, b.Name)
	})
	return profiles, nil
}

// DeleteProfile deletes a profile by name
func (fpm *FileProfileManager) DeleteProfile(name string) error {
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}

	storage, err := fpm.loadStorage()
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	if _, ok := storage.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	delete(storage.Profiles, name)

	if err := fpm.saveStorage(storage); err != nil {
		return fmt.Errorf("failed to save profiles after deletion: %w", err)
	}
	return nil
}

// ProfileExists checks if a profile with the given name exists
func (fpm *FileProfileManager) ProfileExists(name string) bool {
	if name == "" {
		return false
	}
	storage, err := fpm.loadStorage()
	if err != nil {
		return false
	}
	_, ok := storage.Profiles[name]
	return ok
}

// SetDescription sets the description for a profile
func (fpm *FileProfileManager) SetDescription(name, description string) error {
	storage, err := fpm.loadStorage()
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	info, ok := storage.Profiles[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	info.Description = description
	storage.Profiles[name] = info

	if err := fpm.saveStorage(storage); err != nil {
		return fmt.Errorf("failed to save profile description: %w", err)
	}
	return nil
}

// ExportProfile writes one profile to a standalone JSON file
func (fpm *FileProfileManager) ExportProfile(name, filePath string) error {
	if filePath == "" {
		return fmt.Errorf("file path cannot be empty")
	}
	storage, err := fpm.loadStorage()
	if err != nil {
		return fmt.Errorf("failed to load profiles: %w", err)
	}
	info, ok := storage.Profiles[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}
	if err := afero.WriteFile(fpm.fs, filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}
	return nil
}

// ImportProfile reads a file written by ExportProfile and saves it
func (fpm *FileProfileManager) ImportProfile(filePath string) (string, error) {
	data, err := afero.ReadFile(fpm.fs, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read profile file: %w", err)
	}

	var info ProfileInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("failed to parse profile file: %w", err)
	}
	if err := info.Validate(); err != nil {
		return "", fmt.Errorf("invalid profile in file: %w", err)
	}
	return info.Name, fpm.SaveProfile(info.Name, info.Settings)
}

// Path returns the full path to the profile file
func (fpm *FileProfileManager) Path() string {
	return filepath.Join(fpm.profileDir, fpm.fileName)
}

func (fpm *FileProfileManager) loadStorage() (ProfileStorage, error) {
	data, err := afero.ReadFile(fpm.fs, fpm.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ProfileStorage{
				Profiles: make(map[string]ProfileInfo),
				Version:  storageVersion,
			}, nil
		}
		return ProfileStorage{}, fmt.Errorf("failed to read profile file: %w", err)
	}

	var storage ProfileStorage
	if err := json.Unmarshal(data, &storage); err != nil {
		return ProfileStorage{}, fmt.Errorf("failed to parse profile file: %w", err)
	}
	if storage.Profiles == nil {
		storage.Profiles = make(map[string]ProfileInfo)
	}
	return storage, nil
}

// saveStorage writes to a temporary file first, then renames it into place
func (fpm *FileProfileManager) saveStorage(storage ProfileStorage) error {
	data, err := json.MarshalIndent(storage, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal profile data: %w", err)
	}

	path := fpm.Path()
	tempPath := path + ".tmp"
	if err := afero.WriteFile(fpm.fs, tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary profile file: %w", err)
	}
	if err := fpm.fs.Rename(tempPath, path); err != nil {
		_ = fpm.fs.Remove(tempPath)
		return fmt.Errorf("failed to rename temporary profile file: %w", err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"serial-logterm/pkg/serial"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	appName   = "serial-logterm"
	envPrefix = "SERIALLOG"

	DefaultScanIntervalMS = 500
)

// Global is the machine-wide configuration read from config.yaml and
// SERIALLOG_* environment variables.
type Global struct {
	LogDir         string `mapstructure:"log_dir" yaml:"log_dir"`
	ScriptDir      string `mapstructure:"script_dir" yaml:"script_dir"`
	ProfileDir     string `mapstructure:"profile_dir" yaml:"profile_dir"`
	DiagnosticsLog string `mapstructure:"diagnostics_log" yaml:"diagnostics_log"`
	CommandChar    string `mapstructure:"command_char" yaml:"command_char"`
	OutputPrefix   string `mapstructure:"output_prefix" yaml:"output_prefix"`
	BaudRate       int    `mapstructure:"baud_rate" yaml:"baud_rate"`
	ScanIntervalMS int    `mapstructure:"scan_interval_ms" yaml:"scan_interval_ms"`
	ScriptDelayMS  int    `mapstructure:"script_delay_ms" yaml:"script_delay_ms"`
	AutoReconnect  bool   `mapstructure:"auto_reconnect" yaml:"auto_reconnect"`
}

// DefaultConfigDir returns serial-logterm under the XDG config home.
func DefaultConfigDir() (string, error) {
	if xdg.ConfigHome == "" {
		return "", errors.New("failed to resolve user config dir")
	}
	return filepath.Join(xdg.ConfigHome, appName), nil
}

// DefaultConfigPath returns the config.yaml location used when none is given.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultGlobal returns the built-in configuration rooted at dir.
func DefaultGlobal(dir string) Global {
	return Global{
		LogDir:         filepath.Join(dir, "logs"),
		ScriptDir:      filepath.Join(dir, "scripts"),
		ProfileDir:     dir,
		DiagnosticsLog: filepath.Join(dir, appName+".log"),
		CommandChar:    DefaultCommandChar,
		OutputPrefix:   DefaultOutputPrefix,
		BaudRate:       serial.DefaultBaudRate,
		ScanIntervalMS: DefaultScanIntervalMS,
		ScriptDelayMS:  DefaultScriptDelayMS,
	}
}

// LoadGlobal reads the configuration at path. A missing file is not an
// error; defaults and environment variables still apply. An empty path
// means DefaultConfigPath. A nil afs means the OS filesystem.
func LoadGlobal(afs afero.Fs, path string) (Global, error) {
	if afs == nil {
		afs = afero.NewOsFs()
	}
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Global{}, err
		}
		path = defaultPath
	}
	cfg := DefaultGlobal(filepath.Dir(path))

	v := viper.New()
	v.SetFs(afs)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_dir", cfg.LogDir)
	v.SetDefault("script_dir", cfg.ScriptDir)
	v.SetDefault("profile_dir", cfg.ProfileDir)
	v.SetDefault("diagnostics_log", cfg.DiagnosticsLog)
	v.SetDefault("command_char", cfg.CommandChar)
	v.SetDefault("output_prefix", cfg.OutputPrefix)
	v.SetDefault("baud_rate", cfg.BaudRate)
	v.SetDefault("scan_interval_ms", cfg.ScanIntervalMS)
	v.SetDefault("script_delay_ms", cfg.ScriptDelayMS)
	v.SetDefault("auto_reconnect", cfg.AutoReconnect)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Global{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Global{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.LogDir = os.ExpandEnv(cfg.LogDir)
	cfg.ScriptDir = os.ExpandEnv(cfg.ScriptDir)
	cfg.ProfileDir = os.ExpandEnv(cfg.ProfileDir)
	cfg.DiagnosticsLog = os.ExpandEnv(cfg.DiagnosticsLog)

	if err := cfg.Validate(); err != nil {
		return Global{}, err
	}
	return cfg, nil
}

// Validate checks the values a session depends on.
func (g Global) Validate() error {
	if !serial.IsValidBaudRate(g.BaudRate) {
		return fmt.Errorf("baud_rate %d is not supported", g.BaudRate)
	}
	if g.ScanIntervalMS <= 0 {
		return fmt.Errorf("scan_interval_ms must be positive, got %d", g.ScanIntervalMS)
	}
	if g.ScriptDelayMS < 0 {
		return fmt.Errorf("script_delay_ms cannot be negative, got %d", g.ScriptDelayMS)
	}
	if len(g.LogDir) <= 5 {
		return fmt.Errorf("log_dir %q is too short", g.LogDir)
	}
	return nil
}

// ScanInterval returns the port scan period.
func (g Global) ScanInterval() time.Duration {
	return time.Duration(g.ScanIntervalMS) * time.Millisecond
}

// Settings returns session settings seeded from the global values.
func (g Global) Settings() Settings {
	return Settings{
		BaudRate:      g.BaudRate,
		ScriptDelayMS: g.ScriptDelayMS,
		CommandChar:   g.CommandChar,
		OutputPrefix:  g.OutputPrefix,
		AutoReconnect: g.AutoReconnect,
	}
}

// WriteDefault writes the default configuration as YAML and returns the
// path written. An existing file is kept unless overwrite is set.
func WriteDefault(afs afero.Fs, path string, overwrite bool) (string, error) {
	if afs == nil {
		afs = afero.NewOsFs()
	}
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	exists, err := afero.Exists(afs, path)
	if err != nil {
		return "", fmt.Errorf("failed to check %s: %w", path, err)
	}
	if exists && !overwrite {
		return "", fmt.Errorf("config already exists: %s", path)
	}

	data, err := yaml.Marshal(DefaultGlobal(filepath.Dir(path)))
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := afs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := afero.WriteFile(afs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write config: %w", err)
	}
	return path, nil
}

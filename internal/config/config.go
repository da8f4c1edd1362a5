// Package config loads terminalist's settings.
//
// Settings come from a TOML file, TERMINALIST_* environment variables and
// built-in defaults, in that order of precedence (environment first). The
// file is looked up at an explicit path, then ./terminalist.toml, then
// $XDG_CONFIG_HOME/terminalist/config.toml. When no path is given and
// neither default file exists, the defaults apply.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

const (
	// AppName is the directory name used under the XDG base directories.
	AppName = "terminalist"

	// FileName is the config file name inside the config directory.
	FileName = "config.toml"

	// LocalFileName is checked in the working directory before the XDG path.
	LocalFileName = "terminalist.toml"

	envPrefix = "TERMINALIST"
)

// Views accepted by ui.default_view besides a project id.
var Views = []string{"inbox", "today", "tomorrow", "upcoming"}

// Config holds every setting.
type Config struct {
	UI        UIConfig        `mapstructure:"ui" toml:"ui"`
	Sync      SyncConfig      `mapstructure:"sync" toml:"sync"`
	Display   DisplayConfig   `mapstructure:"display" toml:"display"`
	Logging   LoggingConfig   `mapstructure:"logging" toml:"logging"`
	Database  DatabaseConfig  `mapstructure:"database" toml:"database"`
	Dashboard DashboardConfig `mapstructure:"dashboard" toml:"dashboard"`

	// path is the file the settings were read from, empty for defaults.
	path string
}

// UIConfig configures the terminal interface.
type UIConfig struct {
	// DefaultView is "inbox", "today", "tomorrow", "upcoming" or a project id.
	DefaultView  string `mapstructure:"default_view" toml:"default_view"`
	SidebarWidth int    `mapstructure:"sidebar_width" toml:"sidebar_width"`
	MouseEnabled bool   `mapstructure:"mouse_enabled" toml:"mouse_enabled"`
}

// SyncConfig configures background synchronization.
type SyncConfig struct {
	// AutoSyncIntervalMinutes of 0 disables auto-sync.
	AutoSyncIntervalMinutes int `mapstructure:"auto_sync_interval_minutes" toml:"auto_sync_interval_minutes"`
	TickIntervalMS          int `mapstructure:"tick_interval_ms" toml:"tick_interval_ms"`
}

// DisplayConfig configures how tasks are shown.
type DisplayConfig struct {
	Colors           bool   `mapstructure:"colors" toml:"colors"`
	DateFormat       string `mapstructure:"date_format" toml:"date_format"`
	TimeFormat       string `mapstructure:"time_format" toml:"time_format"`
	ShowDescriptions bool   `mapstructure:"show_descriptions" toml:"show_descriptions"`
	ShowLabels       bool   `mapstructure:"show_labels" toml:"show_labels"`
	ShowDurations    bool   `mapstructure:"show_durations" toml:"show_durations"`
}

// LoggingConfig configures the log file and the in-app log panel.
type LoggingConfig struct {
	Enabled    bool   `mapstructure:"enabled" toml:"enabled"`
	File       string `mapstructure:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
	RingSize   int    `mapstructure:"ring_size" toml:"ring_size"`
}

// DatabaseConfig locates the local cache.
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// DashboardConfig configures the live event feed.
type DashboardConfig struct {
	Port int `mapstructure:"port" toml:"port"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		UI: UIConfig{
			DefaultView:  "today",
			SidebarWidth: 25,
			MouseEnabled: true,
		},
		Sync: SyncConfig{
			AutoSyncIntervalMinutes: 5,
			TickIntervalMS:          100,
		},
		Display: DisplayConfig{
			Colors:           true,
			DateFormat:       "2006-01-02",
			TimeFormat:       "15:04",
			ShowDescriptions: true,
			ShowLabels:       true,
			ShowDurations:    true,
		},
		Logging: LoggingConfig{
			Enabled:    false,
			File:       filepath.Join(DataDir(), "terminalist.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
			RingSize:   500,
		},
		Database: DatabaseConfig{
			Path: filepath.Join(DataDir(), "cache.db"),
		},
		Dashboard: DashboardConfig{
			Port: 8080,
		},
	}
}

// Load reads the settings. An empty path searches the default locations.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("toml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.path = path
	cfg.Database.Path = expandHome(cfg.Database.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfg.Source(), err)
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply to keys
// the file does not mention.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("ui.default_view", d.UI.DefaultView)
	v.SetDefault("ui.sidebar_width", d.UI.SidebarWidth)
	v.SetDefault("ui.mouse_enabled", d.UI.MouseEnabled)
	v.SetDefault("sync.auto_sync_interval_minutes", d.Sync.AutoSyncIntervalMinutes)
	v.SetDefault("sync.tick_interval_ms", d.Sync.TickIntervalMS)
	v.SetDefault("display.colors", d.Display.Colors)
	v.SetDefault("display.date_format", d.Display.DateFormat)
	v.SetDefault("display.time_format", d.Display.TimeFormat)
	v.SetDefault("display.show_descriptions", d.Display.ShowDescriptions)
	v.SetDefault("display.show_labels", d.Display.ShowLabels)
	v.SetDefault("display.show_durations", d.Display.ShowDurations)
	v.SetDefault("logging.enabled", d.Logging.Enabled)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("logging.ring_size", d.Logging.RingSize)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("dashboard.port", d.Dashboard.Port)
}

// Validate checks value ranges and formats.
func (c *Config) Validate() error {
	if c.UI.SidebarWidth < 10 || c.UI.SidebarWidth > 40 {
		return fmt.Errorf("ui.sidebar_width must be between 10 and 40, got %d", c.UI.SidebarWidth)
	}
	if strings.TrimSpace(c.UI.DefaultView) == "" {
		return fmt.Errorf("ui.default_view cannot be empty")
	}
	if c.Sync.AutoSyncIntervalMinutes < 0 || c.Sync.AutoSyncIntervalMinutes > 1440 {
		return fmt.Errorf("sync.auto_sync_interval_minutes must be between 0 and 1440, got %d", c.Sync.AutoSyncIntervalMinutes)
	}
	if c.Sync.TickIntervalMS < 10 || c.Sync.TickIntervalMS > 5000 {
		return fmt.Errorf("sync.tick_interval_ms must be between 10 and 5000, got %d", c.Sync.TickIntervalMS)
	}
	if err := checkLayout(c.Display.DateFormat, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		return fmt.Errorf("invalid display.date_format %q: %w", c.Display.DateFormat, err)
	}
	if err := checkLayout(c.Display.TimeFormat, time.Date(0, 1, 1, 12, 0, 0, 0, time.UTC)); err != nil {
		return fmt.Errorf("invalid display.time_format %q: %w", c.Display.TimeFormat, err)
	}
	if c.Logging.Enabled && c.Logging.File == "" {
		return fmt.Errorf("logging.file is required when logging is enabled")
	}
	if c.Logging.RingSize < 0 {
		return fmt.Errorf("logging.ring_size cannot be negative")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be between 0 and 65535, got %d", c.Dashboard.Port)
	}
	return nil
}

// checkLayout reports whether layout round-trips a sample value.
func checkLayout(layout string, sample time.Time) error {
	if strings.TrimSpace(layout) == "" {
		return fmt.Errorf("layout is empty")
	}
	formatted := sample.Format(layout)
	if formatted == layout {
		return fmt.Errorf("layout has no date or time elements")
	}
	_, err := time.Parse(layout, formatted)
	return err
}

// Source returns the file the settings were read from, or "defaults".
func (c *Config) Source() string {
	if c.path == "" {
		return "defaults"
	}
	return c.path
}

// AutoSyncInterval returns the auto-sync period, zero when disabled.
func (c *Config) AutoSyncInterval() time.Duration {
	return time.Duration(c.Sync.AutoSyncIntervalMinutes) * time.Minute
}

// TickInterval returns the render loop period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Sync.TickIntervalMS) * time.Millisecond
}

// Encode renders the settings as TOML.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteDefault writes the default settings to path. An existing file is
// only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
	}
	body, err := Default().Encode()
	if err != nil {
		return err
	}
	header := fmt.Sprintf("# Terminalist configuration\n# Generated on %s\n\n", time.Now().Format("2006-01-02"))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(header), body...), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Dir returns the config directory: $XDG_CONFIG_HOME/terminalist or
// ~/.config/terminalist.
func Dir() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns the data directory: $XDG_DATA_HOME/terminalist or
// ~/.local/share/terminalist.
func DataDir() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// DefaultPath returns the config file path in the config directory.
func DefaultPath() string {
	return filepath.Join(Dir(), FileName)
}

func xdgDir(env, fallback string) string {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return AppName
	}
	return filepath.Join(home, fallback, AppName)
}

func findConfigFile() string {
	if _, err := os.Stat(LocalFileName); err == nil {
		return LocalFileName
	}
	if p := DefaultPath(); fileExists(p) {
		return p
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

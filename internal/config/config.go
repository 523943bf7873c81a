package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/cptspacemanspiff/touch-timeout/internal/device"
)

// MaxTimeoutSeconds is the largest idle timeout. It fits an int on 32-bit
// targets and its time.Duration does not overflow.
const MaxTimeoutSeconds = math.MaxInt32

const (
	minTimeoutSeconds       = 0
	minPollIntervalMillis   = 10
	maxPollIntervalMillis   = 10000
	minRetentionDays        = 1
	maxRetentionDays        = 3650
	minCleanupIntervalHours = 1
	maxCleanupIntervalHours = 720
)

type Config struct {
	Display DisplayConfig `toml:"display"`
	Input   InputConfig   `toml:"input"`
	History HistoryConfig `toml:"history"`
	Wake    WakeConfig    `toml:"wake"`
}

type DisplayConfig struct {
	TimeoutSeconds int    `toml:"timeout_seconds"`
	PollIntervalMS int    `toml:"poll_interval_ms"`
	BacklightPath  string `toml:"backlight_path"`
}

type InputConfig struct {
	DeviceDir  string   `toml:"device_dir"`
	NameMarker string   `toml:"name_marker"`
	Devices    []string `toml:"devices"`
}

type HistoryConfig struct {
	Enabled              bool   `toml:"enabled"`
	DBPath               string `toml:"db_path"`
	RetentionDays        int    `toml:"retention_days"`
	CleanupIntervalHours int    `toml:"cleanup_interval_hours"`
}

type WakeConfig struct {
	Logind bool `toml:"logind"`
}

func DefaultConfig() *Config {
	return &Config{
		Display: DisplayConfig{
			TimeoutSeconds: 300,
			PollIntervalMS: 100,
			BacklightPath:  "/sys/class/backlight/rpi_backlight/bl_power",
		},
		Input: InputConfig{
			DeviceDir:  "/dev/input",
			NameMarker: "event",
		},
		History: HistoryConfig{
			DBPath:               "/var/lib/touch-timeout/history.db",
			RetentionDays:        30,
			CleanupIntervalHours: 24,
		},
	}
}

// Timeout is the idle duration after which the backlight is turned off.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Display.TimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Display.PollIntervalMS) * time.Millisecond
}

// AutoDiscovery reports whether the device set follows the device directory
// instead of an explicit list.
func (c *Config) AutoDiscovery() bool {
	return len(c.Input.Devices) == 0
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return NormalizeAndValidate(cfg)
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg
	sanitized.Input.Devices = append([]string(nil), cfg.Input.Devices...)

	var err error
	sanitized.Display.BacklightPath, err = sanitizePath("display.backlight_path", sanitized.Display.BacklightPath)
	if err != nil {
		return nil, err
	}
	sanitized.Input.DeviceDir, err = sanitizePath("input.device_dir", sanitized.Input.DeviceDir)
	if err != nil {
		return nil, err
	}
	sanitized.History.DBPath, err = sanitizePath("history.db_path", sanitized.History.DBPath)
	if err != nil {
		return nil, err
	}

	sanitized.Input.NameMarker = strings.TrimSpace(sanitized.Input.NameMarker)
	if sanitized.Input.NameMarker == "" {
		return nil, fmt.Errorf("input.name_marker must not be empty")
	}
	for i, name := range sanitized.Input.Devices {
		if err := device.ValidateName(name); err != nil {
			return nil, fmt.Errorf("input.devices[%d]: %w", i, err)
		}
	}

	if err := validateRange("display.timeout_seconds", sanitized.Display.TimeoutSeconds, minTimeoutSeconds, MaxTimeoutSeconds); err != nil {
		return nil, err
	}
	if err := validateRange("display.poll_interval_ms", sanitized.Display.PollIntervalMS, minPollIntervalMillis, maxPollIntervalMillis); err != nil {
		return nil, err
	}
	if err := validateRange("history.retention_days", sanitized.History.RetentionDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("history.cleanup_interval_hours", sanitized.History.CleanupIntervalHours, minCleanupIntervalHours, maxCleanupIntervalHours); err != nil {
		return nil, err
	}

	return &sanitized, nil
}

func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := toml.NewEncoder(&data).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}

	dir := filepath.Dir(trimmedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".touch-timeout-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, trimmedPath); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	tmpPath = ""

	return nil
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}

	return nil
}

// Package config reads and writes the PhotoTransfer settings file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/apex/log"
	"github.com/go-playground/validator/v10"

	"PhotoTransfer/internal/backend"
	"PhotoTransfer/internal/platform"
)

// Config represents the application configuration
type Config struct {
	Destination      string        `toml:"destination" validate:"required"`
	OrganizeByDate   bool          `toml:"organize_by_date"`
	VerifyCopies     bool          `toml:"verify_copies"`
	DeviceType       string        `toml:"device_type" validate:"oneof=auto android ios"`
	Backends         []string      `toml:"backends" validate:"dive,oneof=gvfs mtp adb ios wpd usb demo"`
	Demo             bool          `toml:"demo"`
	RememberSettings bool          `toml:"remember_settings"`
	Notifications    bool          `toml:"notifications"`
	API              APIConfig     `toml:"api"`
	Cache            CacheConfig   `toml:"cache"`
	Watch            WatchConfig   `toml:"watch"`
	Timeouts         TimeoutConfig `toml:"timeouts"`
}

// APIConfig configures the HTTP adapter
type APIConfig struct {
	Host string `toml:"host" validate:"required"`
	Port int    `toml:"port" validate:"min=1,max=65535"`
}

// CacheConfig bounds the media cache
type CacheConfig struct {
	MaxDevices int `toml:"max_devices" validate:"min=1,max=1024"`
}

// WatchConfig controls hot-swap detection. Interval is a Go duration string;
// "0s" turns polling off and leaves only mount directory events.
type WatchConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval" validate:"duration"`
}

// TimeoutConfig holds Go duration strings for external tools
type TimeoutConfig struct {
	Command string `toml:"command" validate:"duration,required"`
	Stall   string `toml:"stall" validate:"duration,required"`
}

// Default returns the configuration used when no file exists
func Default() *Config {
	return &Config{
		Destination:   platform.DefaultDestination(),
		DeviceType:    "auto",
		Backends:      append([]string(nil), backend.DefaultBackends...),
		Notifications: true,
		API:           APIConfig{Host: "127.0.0.1", Port: 8484},
		Cache:         CacheConfig{MaxDevices: 32},
		Watch:         WatchConfig{Enabled: true, Interval: "5s"},
		Timeouts:      TimeoutConfig{Command: "30s", Stall: "30s"},
	}
}

// WatchInterval returns the polling interval, zero when polling is off
func (c *Config) WatchInterval() time.Duration {
	d, _ := time.ParseDuration(c.Watch.Interval)
	return d
}

// CommandTimeout bounds every external command that is not a copy
func (c *Config) CommandTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeouts.Command)
	return d
}

// StallTimeout is how long a copy may go without progress
func (c *Config) StallTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Timeouts.Stall)
	return d
}

// BackendOptions translates the probe settings for backend.Build
func (c *Config) BackendOptions(logger log.Interface) backend.BuildOptions {
	return backend.BuildOptions{
		Backends:       c.Backends,
		DeviceType:     c.DeviceType,
		Demo:           c.Demo,
		Verify:         c.VerifyCopies,
		CommandTimeout: c.CommandTimeout(),
		StallTimeout:   c.StallTimeout(),
		Logger:         logger,
	}
}

// APIAddr is the listen address of the HTTP adapter
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			if fl.Field().String() == "" {
				return true
			}
			d, err := time.ParseDuration(fl.Field().String())
			return err == nil && d >= 0
		})
	})
	return validate
}

// Validate checks field ranges and enumerations
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Read decodes a Config from r on top of the defaults
func Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Write encodes cfg to w
func Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// DefaultPath is config.toml in the platform configuration directory
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(dir, "photo_transfer", "config.toml"), nil
}

// Manager loads and saves the configuration file
type Manager struct {
	mu     sync.Mutex
	path   string
	config *Config
	logger log.Interface
}

// NewManager creates a manager for the file at path and loads it. A missing
// or unreadable file leaves the defaults in place.
func NewManager(path string, logger log.Interface) *Manager {
	if logger == nil {
		logger = log.Log
	}
	m := &Manager{path: path, config: Default(), logger: logger}
	if err := m.Load(); err != nil {
		logger.WithError(err).Warn("[Config] NewManager: failed to load config, using defaults")
	}
	return m
}

// Path returns the file the manager reads and writes
func (m *Manager) Path() string { return m.path }

// Load reads the configuration from disk
func (m *Manager) Load() error {
	m.logger.WithField("path", m.path).Debug("[Config] Load: loading config")

	f, err := os.Open(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Debug("[Config] Load: config file does not exist, using defaults")
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return fmt.Errorf("reading config from %s: %w", m.path, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", m.path, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	m.logger.WithFields(log.Fields{"destination": cfg.Destination, "backends": cfg.Backends}).Info("[Config] Load: config loaded")
	return nil
}

// Save validates cfg, writes it to disk and makes it current
func (m *Manager) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), ".config-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp, cfg); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config to %s: %w", m.path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.mu.Lock()
	copied := *cfg
	m.config = &copied
	m.mu.Unlock()
	m.logger.WithField("path", m.path).Info("[Config] Save: config saved")
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *m.config
	c.Backends = append([]string(nil), m.config.Backends...)
	return c
}

// SetDestination stores a new default destination. The file is only written
// when the user asked for settings to be remembered.
func (m *Manager) SetDestination(path string) error {
	m.logger.WithField("path", path).Info("[Config] SetDestination: updating destination")
	cfg := m.Get()
	cfg.Destination = path
	if !cfg.RememberSettings {
		if err := cfg.Validate(); err != nil {
			return err
		}
		m.mu.Lock()
		m.config = &cfg
		m.mu.Unlock()
		return nil
	}
	return m.Save(&cfg)
}

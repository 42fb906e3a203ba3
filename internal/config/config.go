// Package config handles runtime configuration and the .concierge directory
// structure. Every deployment gets a .concierge/ folder holding its config
// file, durable conversation state, task definition overrides and logs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConciergeDir is the name of the directory created next to the binary's
	// working directory.
	ConciergeDir = ".concierge"

	defaultStoreBackend = "sqlite"
	defaultUserID       = "user123"
	defaultNLUModel     = "concierge-intent-v1"
)

const defaultConfigYAML = `# concierge configuration
version: 1

# Where conversation state lives: sqlite (default), file or memory.
store:
  backend: sqlite

# The account the chat session authenticates as.
user:
  default: user123

# Optional external intent classification service. Leave the endpoint empty
# to run on keyword classification alone. The API key is never stored here;
# set CONCIERGE_NLU_KEY in the environment.
nlu:
  endpoint: ""
  model: concierge-intent-v1
  timeout_seconds: 3
  confidence_threshold: 0.7
`

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend"`
}

// UserConfig identifies the account the session runs as.
type UserConfig struct {
	Default string `yaml:"default"`
}

// NLUConfig describes the optional external classification service.
type NLUConfig struct {
	Endpoint            string  `yaml:"endpoint"`
	Model               string  `yaml:"model"`
	TimeoutSeconds      int     `yaml:"timeout_seconds"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// FileConfig models .concierge/config.yaml.
type FileConfig struct {
	Version int         `yaml:"version"`
	Store   StoreConfig `yaml:"store"`
	User    UserConfig  `yaml:"user"`
	NLU     NLUConfig   `yaml:"nlu"`
}

// Config holds the resolved runtime configuration.
type Config struct {
	// BaseDir is where the assistant was started from.
	BaseDir string

	// ConciergeHome is BaseDir/.concierge.
	ConciergeHome string

	File FileConfig
}

// InitConciergeDir creates the .concierge directory structure and seeds the
// default config file on first run.
//
// Structure created:
//
//	.concierge/
//	├── config.yaml
//	├── data/    <- file store documents or the sqlite database
//	├── tasks/   <- YAML task definition overrides
//	└── logs/    <- operational logbook
func InitConciergeDir(baseDir string) error {
	home := filepath.Join(baseDir, ConciergeDir)
	for _, dir := range []string{
		filepath.Join(home, "data"),
		filepath.Join(home, "tasks"),
		filepath.Join(home, "logs"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return ensureConfigFile(filepath.Join(home, "config.yaml"))
}

// New loads the configuration rooted at baseDir, applying defaults for
// anything the file omits.
func New(baseDir string) (*Config, error) {
	cfg := &Config{
		BaseDir:       baseDir,
		ConciergeHome: filepath.Join(baseDir, ConciergeDir),
		File:          defaultFileConfig(),
	}
	if err := cfg.loadFile(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigPath returns the on-disk location of the config file.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.ConciergeHome, "config.yaml")
}

// DataDir returns the directory holding durable conversation state.
func (c *Config) DataDir() string {
	return filepath.Join(c.ConciergeHome, "data")
}

// TasksDir returns the directory scanned for task definition overrides.
func (c *Config) TasksDir() string {
	return filepath.Join(c.ConciergeHome, "tasks")
}

// LogPath returns the operational log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.ConciergeHome, "logs", "concierge.log")
}

// SQLitePath returns the database file used by the sqlite backend.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir(), "concierge.db")
}

// StoreBackend returns the configured persistence backend name.
func (c *Config) StoreBackend() string {
	return c.File.Store.Backend
}

// DefaultUser returns the account the session runs as.
func (c *Config) DefaultUser() string {
	return c.File.User.Default
}

// NLUEndpoint returns the external classifier endpoint, empty when disabled.
func (c *Config) NLUEndpoint() string {
	return c.File.NLU.Endpoint
}

// NLUModel returns the model requested from the external classifier.
func (c *Config) NLUModel() string {
	return c.File.NLU.Model
}

// NLUTimeout returns the per-call classification deadline.
func (c *Config) NLUTimeout() time.Duration {
	return time.Duration(c.File.NLU.TimeoutSeconds) * time.Second
}

// NLUThreshold returns the minimum accepted classification confidence.
func (c *Config) NLUThreshold() float64 {
	return c.File.NLU.ConfidenceThreshold
}

// NLUKey reads the classifier API key from the environment; it is never
// written to the config file.
func (c *Config) NLUKey() string {
	return os.Getenv("CONCIERGE_NLU_KEY")
}

func (c *Config) loadFile() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed FileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	c.File = parsed
	return nil
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Version: 1,
		Store:   StoreConfig{Backend: defaultStoreBackend},
		User:    UserConfig{Default: defaultUserID},
		NLU: NLUConfig{
			Model:               defaultNLUModel,
			TimeoutSeconds:      3,
			ConfidenceThreshold: 0.7,
		},
	}
}

func (fc *FileConfig) applyDefaults() {
	if fc.Version == 0 {
		fc.Version = 1
	}
	fc.Store.Backend = strings.TrimSpace(strings.ToLower(fc.Store.Backend))
	if fc.Store.Backend == "" {
		fc.Store.Backend = defaultStoreBackend
	}
	if strings.TrimSpace(fc.User.Default) == "" {
		fc.User.Default = defaultUserID
	}
	if strings.TrimSpace(fc.NLU.Model) == "" {
		fc.NLU.Model = defaultNLUModel
	}
	if fc.NLU.TimeoutSeconds <= 0 {
		fc.NLU.TimeoutSeconds = 3
	}
	if fc.NLU.ConfidenceThreshold <= 0 {
		fc.NLU.ConfidenceThreshold = 0.7
	}
}

func (fc *FileConfig) validate() error {
	if fc.Version < 1 {
		return fmt.Errorf("version must be >= 1")
	}
	switch fc.Store.Backend {
	case "sqlite", "file", "memory":
	default:
		return fmt.Errorf("store.backend must be sqlite, file or memory, got %q", fc.Store.Backend)
	}
	if fc.NLU.ConfidenceThreshold > 1 {
		return fmt.Errorf("nlu.confidence_threshold must be <= 1")
	}
	return nil
}

func ensureConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("config: write default %s: %w", path, err)
	}
	return nil
}

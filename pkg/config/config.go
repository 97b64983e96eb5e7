package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override, e.g. DRIVE_STORAGE_DISKS
const EnvPrefix = "DRIVE"

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Upload   UploadConfig   `yaml:"upload" json:"upload"`
	Janitor  JanitorConfig  `yaml:"janitor" json:"janitor"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Replica  ReplicaConfig  `yaml:"replica" json:"replica"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" json:"idle_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" split_words:"true"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig lists backing disks in allocation priority order
type StorageConfig struct {
	Disks []string `yaml:"disks" json:"disks"`
	// SafetyMargin is kept free on a disk beyond the declared upload size
	SafetyMargin ByteSize `yaml:"safety_margin" json:"safety_margin" split_words:"true"`
}

// DatabaseConfig holds the SQLite metadata store configuration
type DatabaseConfig struct {
	Path            string        `yaml:"path" json:"path"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" split_words:"true"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" split_words:"true"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" split_words:"true"`
	BusyTimeout     time.Duration `yaml:"busy_timeout" json:"busy_timeout" split_words:"true"`
}

// UploadConfig bounds what clients may declare at initiate time
type UploadConfig struct {
	DefaultChunkSize ByteSize `yaml:"default_chunk_size" json:"default_chunk_size" split_words:"true"`
	MaxChunkSize     ByteSize `yaml:"max_chunk_size" json:"max_chunk_size" split_words:"true"`
	MaxFileSize      ByteSize `yaml:"max_file_size" json:"max_file_size" split_words:"true"`
}

// JanitorConfig controls the periodic temp cleanup. It is hot-reloadable.
type JanitorConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Interval time.Duration `yaml:"interval" json:"interval"`
	MaxAge   time.Duration `yaml:"max_age" json:"max_age" split_words:"true"`
}

// SecurityConfig holds bearer token validation settings
type SecurityConfig struct {
	JWTSecret string `yaml:"jwt_secret" json:"-" envconfig:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" json:"issuer"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"` // json, console
	Output string `yaml:"output" json:"output"` // stdout, stderr or a file path
}

// ReplicaConfig enables asynchronous mirroring of finalized files to S3
type ReplicaConfig struct {
	Enabled   bool     `yaml:"enabled" json:"enabled"`
	Bucket    string   `yaml:"bucket" json:"bucket"`
	Prefix    string   `yaml:"prefix" json:"prefix"`
	Region    string   `yaml:"region" json:"region"`
	Endpoint  string   `yaml:"endpoint" json:"endpoint"`
	PathStyle bool     `yaml:"path_style" json:"path_style" split_words:"true"`
	AccessKey string   `yaml:"access_key" json:"-" split_words:"true"`
	SecretKey string   `yaml:"secret_key" json:"-" split_words:"true"`
	Workers   int      `yaml:"workers" json:"workers"`
	QueueSize int      `yaml:"queue_size" json:"queue_size" split_words:"true"`
	PartSize  ByteSize `yaml:"part_size" json:"part_size" split_words:"true"`
}

// ConfigManager manages configuration loading and validation
type ConfigManager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	watchers   []func(*Config)
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		watchers: make([]func(*Config), 0),
	}
}

// Load builds the configuration from defaults, the YAML file when it exists
// and DRIVE_* environment variables, in that order, then validates it
func (cm *ConfigManager) Load(configPath string) (*Config, error) {
	config, err := cm.build(configPath)
	if err != nil {
		return nil, err
	}

	cm.mu.Lock()
	cm.configPath = configPath
	cm.config = config
	cm.mu.Unlock()

	return config, nil
}

// Reload re-reads the configuration and notifies watchers. The previous
// configuration stays in effect when the new one is invalid.
func (cm *ConfigManager) Reload() error {
	cm.mu.RLock()
	path := cm.configPath
	cm.mu.RUnlock()

	if path == "" {
		return fmt.Errorf("no config path set")
	}

	config, err := cm.Load(path)
	if err != nil {
		return err
	}

	cm.mu.RLock()
	watchers := append([]func(*Config){}, cm.watchers...)
	cm.mu.RUnlock()
	for _, watcher := range watchers {
		watcher(config)
	}
	return nil
}

// Watch adds a configuration change watcher
func (cm *ConfigManager) Watch(watcher func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// Path returns the file the configuration was loaded from
func (cm *ConfigManager) Path() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

func (cm *ConfigManager) build(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := loadFromFile(config, configPath); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

func loadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.UnmarshalStrict(data, config)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     5 * time.Minute,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Disks:        []string{"./storage"},
			SafetyMargin: 100 * 1024 * 1024,
		},
		Database: DatabaseConfig{
			Path:            "./drive.db",
			MaxOpenConns:    8,
			MaxIdleConns:    4,
			ConnMaxLifetime: time.Hour,
			BusyTimeout:     5 * time.Second,
		},
		Upload: UploadConfig{
			DefaultChunkSize: 5 * 1024 * 1024,
			MaxChunkSize:     64 * 1024 * 1024,
		},
		Janitor: JanitorConfig{
			Enabled:  true,
			Interval: 6 * time.Hour,
			MaxAge:   24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Replica: ReplicaConfig{
			Region:    "us-east-1",
			Workers:   2,
			QueueSize: 256,
			PartSize:  16 * 1024 * 1024,
		},
	}
}

// Summary returns key/value pairs describing the configuration without secrets
func (c *Config) Summary() []interface{} {
	kv := []interface{}{
		"addr", c.Server.Addr(),
		"disks", c.Storage.Disks,
		"safety_margin", c.Storage.SafetyMargin.String(),
		"database", c.Database.Path,
		"janitor_enabled", c.Janitor.Enabled,
		"janitor_interval", c.Janitor.Interval,
		"janitor_max_age", c.Janitor.MaxAge,
		"replica_enabled", c.Replica.Enabled,
	}
	if c.Security.JWTSecret != "" {
		kv = append(kv, "jwt_secret_hash", hashPrefix(c.Security.JWTSecret))
	}
	if c.Replica.AccessKey != "" {
		kv = append(kv, "replica_access_key_hash", hashPrefix(c.Replica.AccessKey))
	}
	return kv
}

func hashPrefix(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:8]) + "..."
}

// AbsDisks resolves disk paths so temp and final paths are stable across
// working directory changes
func (s StorageConfig) AbsDisks() ([]string, error) {
	out := make([]string, 0, len(s.Disks))
	for _, d := range s.Disks {
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("disk %q: %w", d, err)
		}
		out = append(out, abs)
	}
	return out, nil
}

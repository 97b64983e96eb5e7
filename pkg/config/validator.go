package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validate checks the configuration for values the server cannot run with
func Validate(config *Config) error {
	if err := validateServer(&config.Server); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := validateStorage(&config.Storage); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if config.Database.Path == "" {
		return fmt.Errorf("database: path cannot be empty")
	}
	if err := validateUpload(&config.Upload); err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	if config.Janitor.Interval < 0 || config.Janitor.MaxAge < 0 {
		return fmt.Errorf("janitor: interval and max_age cannot be negative")
	}
	if config.Security.JWTSecret == "" {
		return fmt.Errorf("security: jwt_secret is required")
	}
	if err := validateLogging(&config.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := validateReplica(&config.Replica); err != nil {
		return fmt.Errorf("replica: %w", err)
	}
	return nil
}

func validateServer(config *ServerConfig) error {
	if config.Port < 1 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if config.ReadTimeout < 0 || config.WriteTimeout < 0 || config.IdleTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}

func validateStorage(config *StorageConfig) error {
	if len(config.Disks) == 0 {
		return fmt.Errorf("at least one disk is required")
	}

	seen := make(map[string]struct{}, len(config.Disks))
	for _, d := range config.Disks {
		if strings.TrimSpace(d) == "" {
			return fmt.Errorf("disk path cannot be empty")
		}
		clean := filepath.Clean(d)
		if _, dup := seen[clean]; dup {
			return fmt.Errorf("disk %q listed twice", d)
		}
		seen[clean] = struct{}{}
	}
	return nil
}

func validateUpload(config *UploadConfig) error {
	if config.DefaultChunkSize == 0 {
		return fmt.Errorf("default_chunk_size must be positive")
	}
	if config.MaxChunkSize < config.DefaultChunkSize {
		return fmt.Errorf("max_chunk_size %s is smaller than default_chunk_size %s",
			config.MaxChunkSize, config.DefaultChunkSize)
	}
	return nil
}

func validateLogging(config *LoggingConfig) error {
	switch strings.ToLower(config.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s, must be one of debug, info, warn, error", config.Level)
	}
	switch config.Format {
	case "json", "console", "text":
	default:
		return fmt.Errorf("invalid log format: %s, must be json or console", config.Format)
	}
	if config.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}
	return nil
}

func validateReplica(config *ReplicaConfig) error {
	if !config.Enabled {
		return nil
	}
	if config.Bucket == "" {
		return fmt.Errorf("bucket is required when replica is enabled")
	}
	if (config.AccessKey == "") != (config.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}
	if config.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if config.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1")
	}
	if config.PartSize < 5*1024*1024 {
		return fmt.Errorf("part_size must be at least 5 MiB")
	}
	return nil
}

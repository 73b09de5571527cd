package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment   string              `toml:"environment"` // "development" or "production"
	Server        ServerConfig        `toml:"server"`
	Jobs          JobsConfig          `toml:"jobs"`
	Storage       StorageConfig       `toml:"storage"`
	Downloads     DownloadsConfig     `toml:"downloads"`
	Notifications NotificationsConfig `toml:"notifications"`
	Logging       LoggingConfig       `toml:"logging"`
	WebSocket     WebSocketConfig     `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=0,max=65535"`
	Host string `toml:"host"`
}

// JobsConfig controls the row-processing executor and the retention sweep
type JobsConfig struct {
	MaxConcurrentJobs int    `toml:"max_concurrent_jobs" validate:"min=1"` // Upper bound on concurrently running row loops
	WorkDir           string `toml:"work_dir"`                             // Scratch directory for downloaded and cropped images
	RetentionSchedule string `toml:"retention_schedule"`                   // Cron expression; empty disables the sweep
	RetentionAge      string `toml:"retention_age"`                        // Terminal groups older than this are removed (e.g. "168h")
}

type StorageConfig struct {
	Type       string           `toml:"type" validate:"oneof=badger sqlite filesystem redis"`
	Badger     BadgerConfig     `toml:"badger"`
	SQLite     SQLiteConfig     `toml:"sqlite"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Redis      RedisConfig      `toml:"redis"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type SQLiteConfig struct {
	Path string `toml:"path"`
}

type FilesystemConfig struct {
	Path string `toml:"path"` // Root directory for snapshot files and job logs
}

type RedisConfig struct {
	URL    string `toml:"url"`    // e.g. redis://localhost:6379/0
	Prefix string `toml:"prefix"` // Key namespace
}

// DownloadsConfig applies to image downloads made while processing rows
type DownloadsConfig struct {
	Timeout   string `toml:"timeout"`    // Per-download timeout (e.g. "60s")
	UserAgent string `toml:"user_agent"` // Sent with every download request
	MaxBytes  int64  `toml:"max_bytes"`  // Downloads larger than this are rejected

	MaxRetries   int    `toml:"max_retries" validate:"min=0"` // Extra attempts after a network error, 5xx or 429
	RetryBackoff string `toml:"retry_backoff"`                // First retry delay, doubled per attempt
}

type NotificationsConfig struct {
	ProgressInterval string                   `toml:"progress_interval"` // Minimum gap between progress events per entity
	Redis            RedisNotificationsConfig `toml:"redis"`
}

// RedisNotificationsConfig relays every published event to a redis channel
type RedisNotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	Channel string `toml:"channel"`
}

type LoggingConfig struct {
	Level         string   `toml:"level"`           // "debug", "info", "warn", "error"
	Output        []string `toml:"output"`          // "console", "file"
	TimeFormat    string   `toml:"time_format"`     // Time format for logs (default: "15:04:05.000")
	MinEventLevel string   `toml:"min_event_level"` // Minimum job log level published as events ("debug", "info", "warn", "error")
}

// WebSocketConfig contains configuration for WebSocket event streaming
type WebSocketConfig struct {
	// Whitelist of event types to broadcast via WebSocket. Empty list allows all events.
	// Example: ["job_status", "group_status", "job_progress"]
	AllowedEvents []string `toml:"allowed_events"`
	// Throttle intervals for high-frequency events. Map of event type to duration string.
	// Example: {"job_progress": "500ms"}
	ThrottleIntervals map[string]string `toml:"throttle_intervals"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8086,
			Host: "localhost",
		},
		Jobs: JobsConfig{
			MaxConcurrentJobs: 2,
			WorkDir:           "./data/work",
			RetentionSchedule: "",
			RetentionAge:      "168h",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path: "./data/slidegen.badger",
			},
			SQLite: SQLiteConfig{
				Path: "./data/slidegen.db",
			},
			Filesystem: FilesystemConfig{
				Path: "./data/state",
			},
			Redis: RedisConfig{
				URL:    "redis://localhost:6379/0",
				Prefix: "slidegen",
			},
		},
		Downloads: DownloadsConfig{
			Timeout:   "60s",
			UserAgent: "slidegen/" + Version,
			MaxBytes:  50 * 1024 * 1024,

			MaxRetries:   3,
			RetryBackoff: "500ms",
		},
		Notifications: NotificationsConfig{
			ProgressInterval: "250ms",
			Redis: RedisNotificationsConfig{
				Enabled: false,
				URL:     "redis://localhost:6379/0",
				Channel: "slidegen:events",
			},
		},
		Logging: LoggingConfig{
			Level:         "info",
			Output:        []string{"console", "file"},
			TimeFormat:    "15:04:05.000",
			MinEventLevel: "info",
		},
		WebSocket: WebSocketConfig{
			AllowedEvents: []string{},
			ThrottleIntervals: map[string]string{
				"job_progress":   "500ms",
				"group_progress": "500ms",
			},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files. CLI flags are applied afterwards with ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SLIDEGEN_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("SLIDEGEN_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("SLIDEGEN_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Jobs configuration
	if maxJobs := os.Getenv("SLIDEGEN_MAX_CONCURRENT_JOBS"); maxJobs != "" {
		if n, err := strconv.Atoi(maxJobs); err == nil {
			config.Jobs.MaxConcurrentJobs = n
		}
	}
	if workDir := os.Getenv("SLIDEGEN_WORK_DIR"); workDir != "" {
		config.Jobs.WorkDir = workDir
	}

	if retries := os.Getenv("SLIDEGEN_DOWNLOAD_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			config.Downloads.MaxRetries = n
		}
	}

	// Storage configuration
	if storageType := os.Getenv("SLIDEGEN_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}
	if badgerPath := os.Getenv("SLIDEGEN_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if sqlitePath := os.Getenv("SLIDEGEN_SQLITE_PATH"); sqlitePath != "" {
		config.Storage.SQLite.Path = sqlitePath
	}
	if fsPath := os.Getenv("SLIDEGEN_FILESYSTEM_PATH"); fsPath != "" {
		config.Storage.Filesystem.Path = fsPath
	}
	if redisURL := os.Getenv("SLIDEGEN_REDIS_URL"); redisURL != "" {
		config.Storage.Redis.URL = redisURL
		config.Notifications.Redis.URL = redisURL
	}

	// Logging configuration
	if level := os.Getenv("SLIDEGEN_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SLIDEGEN_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
// Flags have the highest priority
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks field constraints and the retention schedule
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Jobs.RetentionSchedule != "" {
		if err := ValidateSchedule(c.Jobs.RetentionSchedule); err != nil {
			return fmt.Errorf("invalid jobs.retention_schedule: %w", err)
		}
		if _, err := time.ParseDuration(c.Jobs.RetentionAge); err != nil {
			return fmt.Errorf("invalid jobs.retention_age: %w", err)
		}
	}
	return nil
}

// ValidateSchedule validates a standard 5-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ParseDuration parses a duration string, returning fallback when empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

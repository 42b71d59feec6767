package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Scanner  ScannerConfig  `yaml:"scanner" json:"scanner"`
	Playback PlaybackConfig `yaml:"playback" json:"playback"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" json:"host" env:"ARIA_HOST"`
	Port         int           `yaml:"port" json:"port" env:"ARIA_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout" env:"ARIA_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout" env:"ARIA_WRITE_TIMEOUT"`
	EnableCORS   bool          `yaml:"enable_cors" json:"enable_cors" env:"ARIA_ENABLE_CORS"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type         string `yaml:"type" json:"type" env:"DATABASE_TYPE"`
	DatabasePath string `yaml:"database_path" json:"database_path" env:"ARIA_DATABASE_PATH"`
	Host         string `yaml:"host" json:"host" env:"POSTGRES_HOST"`
	Port         int    `yaml:"port" json:"port" env:"POSTGRES_PORT"`
	Username     string `yaml:"username" json:"username" env:"POSTGRES_USER"`
	Password     string `yaml:"password" json:"password" env:"POSTGRES_PASSWORD"`
	Database     string `yaml:"database" json:"database" env:"POSTGRES_DB"`
	LogQueries   bool   `yaml:"log_queries" json:"log_queries" env:"DB_LOG_QUERIES"`
}

// ScannerConfig holds library scan configuration
type ScannerConfig struct {
	// RemoteTimeout bounds every single remote share operation so one
	// unreachable host cannot hang a scan.
	RemoteTimeout time.Duration `yaml:"remote_timeout" json:"remote_timeout" env:"ARIA_SCAN_REMOTE_TIMEOUT"`
	// ProgressFlushInterval controls how often in-memory job progress is
	// mirrored to the persisted scan job row.
	ProgressFlushInterval time.Duration `yaml:"progress_flush_interval" json:"progress_flush_interval" env:"ARIA_SCAN_FLUSH_INTERVAL"`
	// ThrottleEnabled paces content hashing when system CPU is saturated.
	ThrottleEnabled  bool    `yaml:"throttle_enabled" json:"throttle_enabled" env:"ARIA_SCAN_THROTTLE"`
	ThrottleCPULimit float64 `yaml:"throttle_cpu_limit" json:"throttle_cpu_limit" env:"ARIA_SCAN_CPU_LIMIT"`
	CandidateBuffer  int     `yaml:"candidate_buffer" json:"candidate_buffer" env:"ARIA_SCAN_CANDIDATE_BUFFER"`
	// FFprobePath locates the ffprobe binary used to read duration and
	// bitrate at ingest. Probing is skipped gracefully when it is missing.
	FFprobePath string `yaml:"ffprobe_path" json:"ffprobe_path" env:"ARIA_FFPROBE_PATH"`
}

// PlaybackConfig holds streaming and transcoding configuration
type PlaybackConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path" json:"ffmpeg_path" env:"ARIA_FFMPEG_PATH"`
	// TranscodeBitrateKbps is the output bitrate of transcoded streams.
	TranscodeBitrateKbps int `yaml:"transcode_bitrate_kbps" json:"transcode_bitrate_kbps" env:"ARIA_TRANSCODE_BITRATE"`
	// SessionIdleTimeout reaps transcode sessions with no reads.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout" json:"session_idle_timeout" env:"ARIA_SESSION_IDLE_TIMEOUT"`
}

var (
	current *Config
	mu      sync.RWMutex
)

// Default returns a configuration with all default values set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // streaming responses must not be cut off
			EnableCORS:   true,
		},
		Database: DatabaseConfig{
			Type:         "sqlite",
			DatabasePath: "./aria-data/aria.db",
			Host:         "localhost",
			Port:         5432,
			Username:     "aria",
			Database:     "aria",
		},
		Scanner: ScannerConfig{
			RemoteTimeout:         30 * time.Second,
			ProgressFlushInterval: 2 * time.Second,
			ThrottleEnabled:       true,
			ThrottleCPULimit:      85.0,
			CandidateBuffer:       100,
			FFprobePath:           "ffprobe",
		},
		Playback: PlaybackConfig{
			FFmpegPath:           "ffmpeg",
			TranscodeBitrateKbps: 192,
			SessionIdleTimeout:   2 * time.Minute,
		},
	}
}

// Load reads configuration from the given YAML file (optional) and applies
// environment variable overrides. An empty path loads defaults plus env.
func Load(path string) error {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return nil
}

// Get returns the current configuration, loading defaults if Load was never called
func Get() *Config {
	mu.RLock()
	if current != nil {
		defer mu.RUnlock()
		return current
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		cfg := Default()
		applyEnvOverrides(cfg)
		current = cfg
	}
	return current
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be between 1 and 65535")
	}
	if c.Database.Type != "sqlite" && c.Database.Type != "postgres" {
		return fmt.Errorf("config: unsupported database type %q", c.Database.Type)
	}
	if c.Scanner.RemoteTimeout <= 0 {
		return fmt.Errorf("config: scanner.remote_timeout must be positive")
	}
	if c.Playback.TranscodeBitrateKbps < 32 || c.Playback.TranscodeBitrateKbps > 640 {
		return fmt.Errorf("config: playback.transcode_bitrate_kbps must be between 32 and 640")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	envString("ARIA_HOST", &cfg.Server.Host)
	envInt("ARIA_PORT", &cfg.Server.Port)
	envDuration("ARIA_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("ARIA_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envBool("ARIA_ENABLE_CORS", &cfg.Server.EnableCORS)

	envString("DATABASE_TYPE", &cfg.Database.Type)
	envString("ARIA_DATABASE_PATH", &cfg.Database.DatabasePath)
	envString("POSTGRES_HOST", &cfg.Database.Host)
	envInt("POSTGRES_PORT", &cfg.Database.Port)
	envString("POSTGRES_USER", &cfg.Database.Username)
	envString("POSTGRES_PASSWORD", &cfg.Database.Password)
	envString("POSTGRES_DB", &cfg.Database.Database)
	envBool("DB_LOG_QUERIES", &cfg.Database.LogQueries)

	envDuration("ARIA_SCAN_REMOTE_TIMEOUT", &cfg.Scanner.RemoteTimeout)
	envDuration("ARIA_SCAN_FLUSH_INTERVAL", &cfg.Scanner.ProgressFlushInterval)
	envBool("ARIA_SCAN_THROTTLE", &cfg.Scanner.ThrottleEnabled)
	envFloat("ARIA_SCAN_CPU_LIMIT", &cfg.Scanner.ThrottleCPULimit)
	envInt("ARIA_SCAN_CANDIDATE_BUFFER", &cfg.Scanner.CandidateBuffer)
	envString("ARIA_FFPROBE_PATH", &cfg.Scanner.FFprobePath)

	envString("ARIA_FFMPEG_PATH", &cfg.Playback.FFmpegPath)
	envInt("ARIA_TRANSCODE_BITRATE", &cfg.Playback.TranscodeBitrateKbps)
	envDuration("ARIA_SESSION_IDLE_TIMEOUT", &cfg.Playback.SessionIdleTimeout)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

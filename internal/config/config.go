package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vjranagit/homeenergy/pkg/storage"
	"github.com/vjranagit/homeenergy/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Remote  RemoteConfig  `json:"remote"`
	Home    HomeConfig    `json:"home"`
	Log     LogConfig     `json:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddr string        `json:"listen_addr"`
	Timeout    time.Duration `json:"timeout"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Path             string `json:"path"`
	CompressionLevel int    `json:"compression_level"`
	EnableWAL        bool   `json:"enable_wal"`
}

// RemoteConfig holds the real-time API connection settings
type RemoteConfig struct {
	Endpoint      string        `json:"endpoint"`
	BatchInterval time.Duration `json:"batch_interval"`
	DialTimeout   time.Duration `json:"dial_timeout"`
}

// HomeConfig holds the initial home view props
type HomeConfig struct {
	Site string `json:"site"`
	// ChartList is the raw HOME_CHARTS value: comma-separated
	// sensor:source:measurementType[:day] entries.
	ChartList string            `json:"chart_list"`
	Charts    []types.ChartSpec `json:"charts"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Load reads the optional .env files (".env" when none are given), builds
// the configuration from the environment and validates it.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := DefaultConfig()
	charts, err := ParseCharts(cfg.Home.ChartList, time.Now())
	if err != nil {
		return nil, err
	}
	cfg.Home.Charts = charts

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: getEnv("LISTEN_ADDR", ":9090"),
			Timeout:    getEnvDuration("SERVER_TIMEOUT", 30*time.Second),
		},
		Storage: StorageConfig{
			Path:             getEnv("STORAGE_PATH", "./data"),
			CompressionLevel: getEnvInt("COMPRESSION_LEVEL", 3),
			EnableWAL:        getEnvBool("ENABLE_WAL", true),
		},
		Remote: RemoteConfig{
			Endpoint:      getEnv("REMOTE_ENDPOINT", "ws://localhost:3000/websocket"),
			BatchInterval: getEnvDuration("REMOTE_BATCH_INTERVAL", 100*time.Millisecond),
			DialTimeout:   getEnvDuration("REMOTE_DIAL_TIMEOUT", 10*time.Second),
		},
		Home: HomeConfig{
			Site:      getEnv("HOME_SITE", ""),
			ChartList: getEnv("HOME_CHARTS", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// ToStorageConfig converts to storage.Config
func (c *Config) ToStorageConfig() *storage.Config {
	return &storage.Config{
		Path:             c.Storage.Path,
		CompressionLevel: c.Storage.CompressionLevel,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}

	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be between 1 and 4")
	}

	u, err := url.Parse(c.Remote.Endpoint)
	if err != nil {
		return fmt.Errorf("invalid remote endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("remote endpoint must use ws or wss, got %q", u.Scheme)
	}

	if c.Remote.BatchInterval <= 0 {
		return fmt.Errorf("remote batch interval must be positive")
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// SlogLevel parses Level
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", l.Level, err)
	}
	return level, nil
}

// ParseCharts parses a HOME_CHARTS value. Entries without a day use the
// date of now.
func ParseCharts(value string, now time.Time) ([]types.ChartSpec, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	var charts []types.ChartSpec
	for _, entry := range strings.Split(value, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 && len(parts) != 4 {
			return nil, fmt.Errorf("invalid chart %q: want sensor:source:measurementType[:day]", entry)
		}
		for _, p := range parts {
			if p == "" {
				return nil, fmt.Errorf("invalid chart %q: empty field", entry)
			}
		}

		chart := types.ChartSpec{
			SensorID:        parts[0],
			Source:          parts[1],
			MeasurementType: parts[2],
			Day:             now.Format(time.DateOnly),
		}
		if len(parts) == 4 {
			if _, err := time.Parse(time.DateOnly, parts[3]); err != nil {
				return nil, fmt.Errorf("invalid chart %q: day must be YYYY-MM-DD", entry)
			}
			chart.Day = parts[3]
		}
		charts = append(charts, chart)
	}
	return charts, nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

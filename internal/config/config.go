package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config contains application configuration.
type Config struct {
	Port string `yaml:"port"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`

	Store StoreConfig `yaml:"store"`
	GPS   GPSConfig   `yaml:"gps"`
	Share ShareConfig `yaml:"share"`
}

type StoreConfig struct {
	// Backend is "gorm" (default) or "dynamodb".
	Backend string `yaml:"backend"`

	// Driver is "sqlite" (default) or "postgres" for the gorm backend.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`

	ConnectAttempts int           `yaml:"connect_attempts"`
	ConnectDelay    time.Duration `yaml:"connect_delay"`

	DynamoTable  string `yaml:"dynamo_table"`
	DynamoRegion string `yaml:"dynamo_region"`
}

type GPSConfig struct {
	// Source is "gpsd" or "push". Push only accepts fixes over HTTP.
	Source   string `yaml:"source"`
	GPSDAddr string `yaml:"gpsd_addr"`
}

type ShareConfig struct {
	TempDir string `yaml:"temp_dir"`

	// Bucket enables S3 upload of exports when set.
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`
}

// Load reads configuration from .env, an optional YAML file named by
// CONFIG_FILE, and environment variables, in increasing precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	overlayString(&cfg.Port, "PORT")
	overlayString(&cfg.LogFormat, "LOG_FORMAT")
	overlayString(&cfg.LogLevel, "LOG_LEVEL")
	overlayString(&cfg.Store.Backend, "STORE_BACKEND")
	overlayString(&cfg.Store.Driver, "DB_DRIVER")
	overlayString(&cfg.Store.DSN, "DB_DSN")
	overlayString(&cfg.Store.DynamoTable, "DYNAMO_TABLE")
	overlayString(&cfg.Store.DynamoRegion, "AWS_REGION")
	overlayString(&cfg.GPS.Source, "GPS_SOURCE")
	overlayString(&cfg.GPS.GPSDAddr, "GPSD_ADDR")
	overlayString(&cfg.Share.TempDir, "SHARE_DIR")
	overlayString(&cfg.Share.Bucket, "SHARE_BUCKET")
	overlayString(&cfg.Share.Region, "AWS_REGION")
	overlayString(&cfg.Share.Prefix, "SHARE_PREFIX")

	if v := os.Getenv("DB_CONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("DB_CONNECT_ATTEMPTS: %w", err)
		}
		cfg.Store.ConnectAttempts = n
	}
	if v := os.Getenv("DB_CONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("DB_CONNECT_DELAY: %w", err)
		}
		cfg.Store.ConnectDelay = d
	}

	if err := cfg.applyDefaults(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}

	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "gorm"
	}
	switch cfg.Store.Backend {
	case "gorm":
		cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
		if cfg.Store.Driver == "" {
			cfg.Store.Driver = "sqlite"
		}
		switch cfg.Store.Driver {
		case "sqlite":
			if cfg.Store.DSN == "" {
				cfg.Store.DSN = "altitude.db"
			}
		case "postgres":
			if cfg.Store.DSN == "" {
				return fmt.Errorf("DB_DSN is required for the postgres driver")
			}
		default:
			return fmt.Errorf("unsupported DB_DRIVER %q", cfg.Store.Driver)
		}
	case "dynamodb":
		if cfg.Store.DynamoTable == "" {
			return fmt.Errorf("DYNAMO_TABLE is required for the dynamodb backend")
		}
	default:
		return fmt.Errorf("unsupported STORE_BACKEND %q", cfg.Store.Backend)
	}
	if cfg.Store.ConnectAttempts <= 0 {
		cfg.Store.ConnectAttempts = 10
	}
	if cfg.Store.ConnectDelay <= 0 {
		cfg.Store.ConnectDelay = 2 * time.Second
	}

	cfg.GPS.Source = strings.ToLower(strings.TrimSpace(cfg.GPS.Source))
	if cfg.GPS.Source == "" {
		cfg.GPS.Source = "gpsd"
	}
	if cfg.GPS.Source != "gpsd" && cfg.GPS.Source != "push" {
		return fmt.Errorf("unsupported GPS_SOURCE %q", cfg.GPS.Source)
	}
	if cfg.GPS.GPSDAddr == "" {
		cfg.GPS.GPSDAddr = "127.0.0.1:2947"
	}

	if cfg.Share.TempDir == "" {
		cfg.Share.TempDir = os.TempDir()
	}
	if cfg.Share.Bucket != "" && cfg.Share.Region == "" {
		return fmt.Errorf("AWS_REGION is required when SHARE_BUCKET is set")
	}
	return nil
}

func overlayString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

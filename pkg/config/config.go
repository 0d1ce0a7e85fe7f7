package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Mongo      MongoConfig      `yaml:"mongo"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Assignment AssignmentConfig `yaml:"assignment"`
	Routing    RoutingConfig    `yaml:"routing"`
	Planner    PlannerConfig    `yaml:"planner"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the task store backend
type StorageConfig struct {
	// Backend is "memory" or "mongodb"
	Backend string `yaml:"backend"`
}

// MongoConfig holds MongoDB settings
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// KafkaConfig holds Kafka settings
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
}

// AssignmentConfig holds assignment engine settings
type AssignmentConfig struct {
	ClaimAttempts      int           `yaml:"claim_attempts"`
	StaleTimeout       time.Duration `yaml:"stale_timeout"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	AllowParallelTasks bool          `yaml:"allow_parallel_tasks"`
}

// RoutingConfig holds route optimizer settings
type RoutingConfig struct {
	// Metric is "euclidean" or "manhattan"
	Metric         string `yaml:"metric"`
	TwoOptMaxStops int    `yaml:"two_opt_max_stops"`
}

// PlannerConfig holds task planner priority tuning constants
type PlannerConfig struct {
	DuePressureHours int `yaml:"due_pressure_hours"`
	QueueReliefDepth int `yaml:"queue_relief_depth"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
}

// Default returns the configuration defaults
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "wms_tasks",
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
		},
		Assignment: AssignmentConfig{
			ClaimAttempts:      3,
			StaleTimeout:       15 * time.Minute,
			SweepInterval:      time.Minute,
			AllowParallelTasks: false,
		},
		Routing: RoutingConfig{
			Metric:         "euclidean",
			TwoOptMaxStops: 12,
		},
		Planner: PlannerConfig{
			DuePressureHours: 4,
			QueueReliefDepth: 50,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Environment: "development",
		},
	}
}

// Load reads configuration from an optional yaml file and applies
// environment overrides on top of the defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("MONGODB_URI"); v != "" {
		c.Mongo.URI = v
	}
	if v := os.Getenv("MONGODB_DATABASE"); v != "" {
		c.Mongo.Database = v
	}
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		c.Kafka.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ASSIGNMENT_CLAIM_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Assignment.ClaimAttempts = n
		}
	}
	if v := os.Getenv("ASSIGNMENT_STALE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Assignment.StaleTimeout = d
		}
	}
	if v := os.Getenv("ASSIGNMENT_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Assignment.SweepInterval = d
		}
	}
	if v := os.Getenv("ASSIGNMENT_ALLOW_PARALLEL_TASKS"); v != "" {
		c.Assignment.AllowParallelTasks = v == "true" || v == "1"
	}
	if v := os.Getenv("ROUTING_METRIC"); v != "" {
		c.Routing.Metric = v
	}
	if v := os.Getenv("ROUTING_TWO_OPT_MAX_STOPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Routing.TwoOptMaxStops = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Logging.Environment = v
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "memory", "mongodb":
	default:
		return fmt.Errorf("invalid storage backend %q: must be memory or mongodb", c.Storage.Backend)
	}

	switch c.Routing.Metric {
	case "euclidean", "manhattan":
	default:
		return fmt.Errorf("invalid routing metric %q: must be euclidean or manhattan", c.Routing.Metric)
	}

	if c.Assignment.ClaimAttempts < 1 {
		return fmt.Errorf("assignment claim_attempts must be at least 1, got %d", c.Assignment.ClaimAttempts)
	}
	if c.Assignment.StaleTimeout <= 0 {
		return fmt.Errorf("assignment stale_timeout must be positive")
	}
	if c.Assignment.SweepInterval <= 0 {
		return fmt.Errorf("assignment sweep_interval must be positive")
	}
	if c.Routing.TwoOptMaxStops < 0 {
		return fmt.Errorf("routing two_opt_max_stops must not be negative")
	}

	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" toml:"environment" default:"development"`

	Server struct {
		Host            string        `yaml:"host" toml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" toml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" default:"10s"`
		SlowRequest     time.Duration `yaml:"slow_request" toml:"slow_request" default:"2s"`
		AllowOrigins    []string      `yaml:"allow_origins" toml:"allow_origins"`
		// RateLimit applies to the trial routes, per client address.
		RateLimit struct {
			Burst  float64 `yaml:"burst" toml:"burst" default:"20"`
			PerSec float64 `yaml:"per_sec" toml:"per_sec" default:"5"`
		} `yaml:"rate_limit" toml:"rate_limit"`
	} `yaml:"server" toml:"server"`

	Logger struct {
		Level      string `yaml:"level" toml:"level" default:"info"`
		Format     string `yaml:"format" toml:"format" default:"json"`
		Output     string `yaml:"output" toml:"output" default:"stdout"`
		ErrorTopic string `yaml:"error_topic" toml:"error_topic"`
	} `yaml:"logger" toml:"logger"`

	Metrics struct {
		Disabled bool   `yaml:"disabled" toml:"disabled"`
		Path     string `yaml:"path" toml:"path" default:"/metrics"`
	} `yaml:"metrics" toml:"metrics"`

	// Backend selects where trial records go: kafka, clickhouse or sqlite.
	Backend struct {
		Type         string        `yaml:"type" toml:"type" default:"sqlite"`
		BatchSize    int           `yaml:"batch_size" toml:"batch_size" default:"50"`
		BatchTimeout time.Duration `yaml:"batch_timeout" toml:"batch_timeout" default:"1s"`
	} `yaml:"backend" toml:"backend"`

	Kafka struct {
		Brokers      []string      `yaml:"brokers" toml:"brokers"`
		TrialsTopic  string        `yaml:"trials_topic" toml:"trials_topic" default:"effortlab.trials"`
		MarkersTopic string        `yaml:"markers_topic" toml:"markers_topic" default:"effortlab.markers"`
		Compression  string        `yaml:"compression" toml:"compression" default:"gzip"`
		RequiredAcks int           `yaml:"required_acks" toml:"required_acks" default:"-1"`
		MaxAttempts  int           `yaml:"max_attempts" toml:"max_attempts" default:"5"`
		WriteTimeout time.Duration `yaml:"write_timeout" toml:"write_timeout" default:"10s"`
		Consumer     struct {
			Enabled    bool          `yaml:"enabled" toml:"enabled"`
			GroupID    string        `yaml:"group_id" toml:"group_id" default:"effortlab-trials"`
			Workers    int           `yaml:"workers" toml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" toml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" toml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" toml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" toml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic" toml:"dlq_topic"`
			// Sink is the store the consumer writes into: clickhouse or sqlite.
			Sink string `yaml:"sink" toml:"sink" default:"clickhouse"`
		} `yaml:"consumer" toml:"consumer"`
	} `yaml:"kafka" toml:"kafka"`

	Redis struct {
		Enabled  bool          `yaml:"enabled" toml:"enabled"`
		Addr     string        `yaml:"addr" toml:"addr" default:"localhost:6379"`
		Password string        `yaml:"password" toml:"password"`
		DB       int           `yaml:"db" toml:"db"`
		Prefix   string        `yaml:"prefix" toml:"prefix" default:"effortlab"`
		LocalTTL time.Duration `yaml:"local_ttl" toml:"local_ttl" default:"30s"`
		// Retry is the write-behind queue for trial records the backend rejected.
		Retry struct {
			Enabled    bool          `yaml:"enabled" toml:"enabled"`
			Workers    int           `yaml:"workers" toml:"workers" default:"1"`
			RetryLimit int           `yaml:"retry_limit" toml:"retry_limit" default:"5"`
			RetryDelay time.Duration `yaml:"retry_delay" toml:"retry_delay" default:"10s"`
		} `yaml:"retry" toml:"retry"`
	} `yaml:"redis" toml:"redis"`

	ClickHouse struct {
		Addr         string        `yaml:"addr" toml:"addr" default:"localhost:9000"`
		Database     string        `yaml:"database" toml:"database" default:"effortlab"`
		User         string        `yaml:"user" toml:"user" default:"default"`
		Password     string        `yaml:"password" toml:"password"`
		UseHTTP      bool          `yaml:"use_http" toml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert" toml:"async_insert"`
		WaitForAsync bool          `yaml:"wait_for_async_insert" toml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" toml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" toml:"read_timeout" default:"10s"`
	} `yaml:"clickhouse" toml:"clickhouse"`

	SQLite struct {
		Path string `yaml:"path" toml:"path" default:"data/effortlab.db"`
	} `yaml:"sqlite" toml:"sqlite"`

	// Trigger selects marker delivery: none, kafka or http.
	Trigger struct {
		Type       string        `yaml:"type" toml:"type" default:"none"`
		URL        string        `yaml:"url" toml:"url"`
		BufferSize int           `yaml:"buffer_size" toml:"buffer_size" default:"256"`
		Timeout    time.Duration `yaml:"timeout" toml:"timeout" default:"500ms"`
	} `yaml:"trigger" toml:"trigger"`

	Device struct {
		Enabled        bool          `yaml:"enabled" toml:"enabled"`
		URL            string        `yaml:"url" toml:"url" default:"ws://localhost:8765/gripper"`
		Mode           string        `yaml:"mode" toml:"mode" default:"gripper"`
		MouseScale     float64       `yaml:"mouse_scale" toml:"mouse_scale" default:"80"`
		Baseline       float64       `yaml:"baseline" toml:"baseline"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" toml:"reconnect_delay" default:"2s"`
		ReadTimeout    time.Duration `yaml:"read_timeout" toml:"read_timeout" default:"1s"`
		PingInterval   time.Duration `yaml:"ping_interval" toml:"ping_interval" default:"15s"`
	} `yaml:"device" toml:"device"`

	Effort struct {
		ThresholdFraction float64       `yaml:"threshold_fraction" toml:"threshold_fraction" default:"1.0"`
		RequiredDuration  time.Duration `yaml:"required_duration" toml:"required_duration" default:"1s"`
		TimeLimit         time.Duration `yaml:"time_limit" toml:"time_limit" default:"8s"`
		StartThreshold    float64       `yaml:"start_threshold" toml:"start_threshold" default:"0.1"`
		WaitForStart      bool          `yaml:"wait_for_start" toml:"wait_for_start"`
		PollInterval      time.Duration `yaml:"poll_interval" toml:"poll_interval" default:"10ms"`
	} `yaml:"effort" toml:"effort"`

	Staircase struct {
		InitialK          float64 `yaml:"initial_k" toml:"initial_k" default:"0.5"`
		InitialReward     int     `yaml:"initial_reward" toml:"initial_reward" default:"18"`
		InitialEffort     int     `yaml:"initial_effort" toml:"initial_effort" default:"6"`
		StepScale         float64 `yaml:"step_scale" toml:"step_scale" default:"0.15"`
		TrialOffset       float64 `yaml:"trial_offset" toml:"trial_offset" default:"4"`
		Solve             string  `yaml:"solve" toml:"solve" default:"reward"`
		RewardMin         int     `yaml:"reward_min" toml:"reward_min" default:"8"`
		RewardMax         int     `yaml:"reward_max" toml:"reward_max" default:"28"`
		EffortMin         int     `yaml:"effort_min" toml:"effort_min" default:"1"`
		EffortMax         int     `yaml:"effort_max" toml:"effort_max" default:"10"`
		RewardDrawMin     int     `yaml:"reward_draw_min" toml:"reward_draw_min" default:"4"`
		RewardDrawMax     int     `yaml:"reward_draw_max" toml:"reward_draw_max" default:"30"`
		MinRewardChange   int     `yaml:"min_reward_change" toml:"min_reward_change" default:"2"`
		EffortUnitPercent float64 `yaml:"effort_unit_percent" toml:"effort_unit_percent" default:"10"`
		FailurePenalty    int     `yaml:"failure_penalty" toml:"failure_penalty" default:"-1"`
		Seed              int64   `yaml:"seed" toml:"seed"`
	} `yaml:"staircase" toml:"staircase"`

	Schedule struct {
		Repeats           int      `yaml:"n_repeats" toml:"n_repeats" default:"1"`
		EffortLevels      []int    `yaml:"effort_levels" toml:"effort_levels" default:"[40,60,80,100]"`
		MagnitudeLevels   []int    `yaml:"magnitude_levels" toml:"magnitude_levels" default:"[5,7,9]"`
		UncertaintyLevels []string `yaml:"uncertainty_levels" toml:"uncertainty_levels" default:"[\"safe\",\"25/50/25\",\"50/50\"]"`
		BlockTypes        []string `yaml:"block_types" toml:"block_types" default:"[\"approach\",\"avoid\"]"`
		TrialsPerBlock    int      `yaml:"n_trials_per_block" toml:"n_trials_per_block" default:"12"`
		Delta             int      `yaml:"delta" toml:"delta" default:"4"`
		Seed              int64    `yaml:"seed" toml:"seed"`
	} `yaml:"schedule" toml:"schedule"`

	Calibration struct {
		Dir               string        `yaml:"dir" toml:"dir" default:"data/calibration"`
		RecordingDuration time.Duration `yaml:"recording_duration" toml:"recording_duration" default:"4s"`
		Trials            int           `yaml:"trials" toml:"trials" default:"3"`
		Rest              time.Duration `yaml:"rest" toml:"rest" default:"5s"`
		CacheTTL          time.Duration `yaml:"cache_ttl" toml:"cache_ttl" default:"12h"`
	} `yaml:"calibration" toml:"calibration"`

	Session struct {
		TTL     time.Duration `yaml:"ttl" toml:"ttl" default:"6h"`
		LockTTL time.Duration `yaml:"lock_ttl" toml:"lock_ttl" default:"30s"`
	} `yaml:"session" toml:"session"`
}

// Load reads a YAML file, or TOML when the path ends in .toml, fills
// defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(b), &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Default returns a configuration made only of defaults.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// LoadWithEnv loads an optional .env file, then the config file, then
// applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		c.Server.Port = p
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_ADDR"); v != "" {
		c.ClickHouse.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.SQLite.Path = v
	}
	if v := os.Getenv("DEVICE_URL"); v != "" {
		c.Device.URL = v
	}
	if v := os.Getenv("TRIGGER_URL"); v != "" {
		c.Trigger.URL = v
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks the fields that would otherwise fail deep inside a trial.
func (c *Config) Validate() error {
	switch c.Backend.Type {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for backend kafka")
		}
	case "clickhouse", "sqlite":
	default:
		return fmt.Errorf("backend.type must be 'kafka', 'clickhouse' or 'sqlite', got '%s'", c.Backend.Type)
	}

	switch c.Trigger.Type {
	case "none":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required for trigger kafka")
		}
	case "http":
		if c.Trigger.URL == "" {
			return fmt.Errorf("trigger.url is required for trigger http")
		}
	default:
		return fmt.Errorf("trigger.type must be 'none', 'kafka' or 'http', got '%s'", c.Trigger.Type)
	}

	if c.Kafka.Consumer.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when the consumer is enabled")
		}
		if s := c.Kafka.Consumer.Sink; s != "clickhouse" && s != "sqlite" {
			return fmt.Errorf("kafka.consumer.sink must be 'clickhouse' or 'sqlite', got '%s'", s)
		}
	}

	if m := c.Device.Mode; m != "gripper" && m != "mouse" {
		return fmt.Errorf("device.mode must be 'gripper' or 'mouse', got '%s'", m)
	}
	if f := c.Effort.ThresholdFraction; f <= 0 || f > 1 {
		return fmt.Errorf("effort.threshold_fraction must be in (0, 1], got %v", f)
	}
	if c.Effort.RequiredDuration > c.Effort.TimeLimit {
		return fmt.Errorf("effort.required_duration exceeds effort.time_limit")
	}
	if c.Session.LockTTL <= c.Effort.TimeLimit {
		return fmt.Errorf("session.lock_ttl (%s) must exceed effort.time_limit (%s)", c.Session.LockTTL, c.Effort.TimeLimit)
	}
	if c.Calibration.Trials != 3 {
		return fmt.Errorf("calibration.trials must be 3, got %d", c.Calibration.Trials)
	}
	if c.Staircase.EffortUnitPercent <= 0 {
		return fmt.Errorf("staircase.effort_unit_percent must be positive")
	}
	return nil
}

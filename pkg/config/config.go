// Package config loads the daemon's runtime configuration from environment
// variables, with an optional YAML file providing defaults that the
// environment overrides — following the same struct-of-sections shape used
// across the example corpus's config packages.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level runtime configuration for flowd.
type Config struct {
	DataDir string `yaml:"data_dir"`

	Broker BrokerConfig `yaml:"broker"`

	Scheduler SchedulerConfig `yaml:"scheduler"`

	Monitor MonitorConfig `yaml:"monitor"`

	Timeouts TimeoutConfig `yaml:"timeouts"`

	Redis RedisConfig `yaml:"redis"`

	HTTPAddr string `yaml:"http_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// AuthPolicyPath points to a YAML pkg/auth.Policy file. Empty disables
	// permission enforcement entirely (every request is allowed), which is
	// the default: flowmesh has no session/login layer, so requiring a
	// policy by default would lock every caller out with no way in.
	AuthPolicyPath string `yaml:"auth_policy_path"`
}

// BrokerConfig addresses the home-automation message broker.
type BrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password" json:"-"`
}

// SchedulerConfig controls per-device queue behavior.
type SchedulerConfig struct {
	QueueDepthBound int `yaml:"queue_depth_bound"`
}

// MonitorConfig controls health-check cadence and backoff.
type MonitorConfig struct {
	ProbeIntervalSeconds   int `yaml:"probe_interval_seconds"`
	BackoffStartSeconds    int `yaml:"backoff_start_seconds"`
	BackoffCapSeconds      int `yaml:"backoff_cap_seconds"`
	RediscoverAfterRetries int `yaml:"rediscover_after_retries"`
}

// TimeoutConfig carries the overridable per-operation timeouts from spec §5.
type TimeoutConfig struct {
	Shell         time.Duration `yaml:"shell"`
	AuthHandshake time.Duration `yaml:"auth_handshake"`
	Transport     time.Duration `yaml:"transport"`
	Connect       time.Duration `yaml:"connect"`
	Pairing       time.Duration `yaml:"pairing"`
	Screenshot    time.Duration `yaml:"screenshot"`
	HealthCheck   time.Duration `yaml:"health_check"`
	FileTransfer  time.Duration `yaml:"file_transfer"`
}

// RedisConfig addresses the backing store for the command queue and broker
// pub/sub adapter.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db"`
}

// Default returns a Config populated with every documented default.
func Default() *Config {
	return &Config{
		DataDir: "/var/lib/flowmesh",
		Broker: BrokerConfig{
			Host: "localhost",
			Port: 1883,
		},
		Scheduler: SchedulerConfig{
			QueueDepthBound: 64,
		},
		Monitor: MonitorConfig{
			ProbeIntervalSeconds:   30,
			BackoffStartSeconds:    10,
			BackoffCapSeconds:      300,
			RediscoverAfterRetries: 3,
		},
		Timeouts: TimeoutConfig{
			Shell:         30 * time.Second,
			AuthHandshake: 10 * time.Second,
			Transport:     9 * time.Second,
			Connect:       10 * time.Second,
			Pairing:       10 * time.Second,
			Screenshot:    3 * time.Second,
			HealthCheck:   5 * time.Second,
			FileTransfer:  30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		HTTPAddr:  ":8080",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadFile overlays cfg with values from a YAML file. A missing file is not
// an error: it simply leaves cfg at its current defaults.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv overlays cfg with recognized environment variables, which take
// precedence over any YAML file.
func LoadEnv(cfg *Config) {
	str(&cfg.DataDir, "DATA_DIR")
	str(&cfg.Broker.Host, "BROKER_HOST")
	intVar(&cfg.Broker.Port, "BROKER_PORT")
	str(&cfg.Broker.Username, "BROKER_USERNAME")
	str(&cfg.Broker.Password, "BROKER_PASSWORD")
	str(&cfg.Redis.Addr, "REDIS_ADDR")
	str(&cfg.Redis.Password, "REDIS_PASSWORD")
	intVar(&cfg.Redis.DB, "REDIS_DB")
	str(&cfg.HTTPAddr, "HTTP_ADDR")
	str(&cfg.LogLevel, "LOG_LEVEL")
	str(&cfg.LogFormat, "LOG_FORMAT")
	str(&cfg.AuthPolicyPath, "AUTH_POLICY_PATH")
	intVar(&cfg.Scheduler.QueueDepthBound, "SCHEDULER_QUEUE_DEPTH_BOUND")
	intVar(&cfg.Monitor.ProbeIntervalSeconds, "MONITOR_PROBE_INTERVAL_SECONDS")
	intVar(&cfg.Monitor.BackoffStartSeconds, "MONITOR_BACKOFF_START_SECONDS")
	intVar(&cfg.Monitor.BackoffCapSeconds, "MONITOR_BACKOFF_CAP_SECONDS")
}

// Load builds a Config from documented defaults, an optional YAML file, and
// the environment, in that order of increasing precedence.
func Load(yamlPath string) (*Config, error) {
	cfg := Default()
	if yamlPath != "" {
		if err := LoadFile(cfg, yamlPath); err != nil {
			return nil, err
		}
	}
	LoadEnv(cfg)
	return cfg, nil
}

// String renders cfg for logging with credentials redacted.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir:%s Broker:%s:%d(user=%s,pass=%s) Redis:%s HTTPAddr:%s LogLevel:%s}",
		c.DataDir, c.Broker.Host, c.Broker.Port, c.Broker.Username, redact(c.Broker.Password),
		c.Redis.Addr, c.HTTPAddr, c.LogLevel,
	)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func str(dst *string, env string) {
	if v, ok := os.LookupEnv(env); ok {
		*dst = v
	}
}

func intVar(dst *int, env string) {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Canvas    CanvasConfig    `yaml:"canvas"`
	Sync      SyncConfig      `yaml:"sync"`
	Workers   WorkersConfig   `yaml:"workers"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	Name               string        `yaml:"name"`
	Charset            string        `yaml:"charset"`
	ParseTime          bool          `yaml:"parse_time"`
	Loc                string        `yaml:"loc"`
	MaxConnections     int           `yaml:"max_connections"`
	MaxIdleConnections int           `yaml:"max_idle_connections"`
	ConnectionLifetime time.Duration `yaml:"connection_lifetime"`
}

type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	SyncQueue string `yaml:"sync_queue"`
	DLQSuffix string `yaml:"dlq_suffix"`
}

type CanvasConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	PerPage           int           `yaml:"per_page"`
	PageWorkers       int           `yaml:"page_workers"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

type SyncConfig struct {
	ChunkSize         int           `yaml:"chunk_size"`
	ChunkPause        time.Duration `yaml:"chunk_pause"`
	CheckpointTTL     time.Duration `yaml:"checkpoint_ttl"`
	ProgressTTL       time.Duration `yaml:"progress_ttl"`
	LocalTimezone     string        `yaml:"local_timezone"`
	FetchWorkers      int           `yaml:"fetch_workers"`
	ProgressRetention time.Duration `yaml:"progress_retention"`
}

type WorkersConfig struct {
	Sync SyncWorkerConfig `yaml:"sync"`
}

type SyncWorkerConfig struct {
	Count int `yaml:"count"`
}

type SchedulerConfig struct {
	CronSpec    string `yaml:"cron_spec"`
	Incremental bool   `yaml:"incremental"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Canvas.PerPage == 0 {
		c.Canvas.PerPage = 100
	}
	if c.Canvas.PageWorkers == 0 {
		c.Canvas.PageWorkers = 5
	}
	if c.Canvas.RetryAttempts == 0 {
		c.Canvas.RetryAttempts = 5
	}
	if c.Canvas.RetryDelay == 0 {
		c.Canvas.RetryDelay = time.Second
	}
	if c.Canvas.Timeout == 0 {
		c.Canvas.Timeout = 60 * time.Second
	}
	if c.Sync.ChunkSize == 0 {
		c.Sync.ChunkSize = 10
	}
	if c.Sync.ChunkPause == 0 {
		c.Sync.ChunkPause = 500 * time.Millisecond
	}
	if c.Sync.CheckpointTTL == 0 {
		c.Sync.CheckpointTTL = 24 * time.Hour
	}
	if c.Sync.ProgressTTL == 0 {
		c.Sync.ProgressTTL = time.Hour
	}
	if c.Sync.LocalTimezone == "" {
		c.Sync.LocalTimezone = "America/Los_Angeles"
	}
	if c.Sync.FetchWorkers == 0 {
		c.Sync.FetchWorkers = 3
	}
	if c.Sync.ProgressRetention == 0 {
		c.Sync.ProgressRetention = 30 * 24 * time.Hour
	}
	if c.Workers.Sync.Count == 0 {
		c.Workers.Sync.Count = 2
	}
	if c.Redis.SyncQueue == "" {
		c.Redis.SyncQueue = "sync_jobs"
	}
	if c.Redis.DLQSuffix == "" {
		c.Redis.DLQSuffix = ":dlq"
	}
	if c.Scheduler.CronSpec == "" {
		c.Scheduler.CronSpec = "0 3 * * *"
	}
}

// MySQL DSN format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.Charset, c.Database.ParseTime, c.Database.Loc)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

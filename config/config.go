package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Bookflow   BookflowConfig   `yaml:"bookflow"`
	Book       BookConfig       `yaml:"book"`
	Feed       FeedConfig       `yaml:"feed"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Replicator ReplicatorConfig `yaml:"replicator"`
	Trader     TraderConfig     `yaml:"trader"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type BookflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type BookConfig struct {
	Products    []string `yaml:"products"`
	Strict      bool     `yaml:"strict"`
	EventBuffer int      `yaml:"event_buffer"`
}

type FeedConfig struct {
	URL        string          `yaml:"url"`
	Reconnect  ReconnectConfig `yaml:"reconnect"`
	PingPeriod time.Duration   `yaml:"ping_period"`
	ReadLimit  int64           `yaml:"read_limit"`
	Replay     ReplayConfig    `yaml:"replay"`
}

type ReconnectConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

// ReplayConfig points the feed at a recorded message file instead of a
// live websocket. Used for backtesting and integration tests.
type ReplayConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type ChannelsConfig struct {
	RawBuffer     int `yaml:"raw_buffer"`
	EventBuffer   int `yaml:"event_buffer"`
	CommandBuffer int `yaml:"command_buffer"`
}

type ReplicatorConfig struct {
	Enabled       bool          `yaml:"enabled"`
	SizeScale     string        `yaml:"size_scale"`
	MinSize       string        `yaml:"min_size"`
	SpreadBps     int64         `yaml:"spread_bps"`
	DepthLimit    int           `yaml:"depth_limit"`
	SyncInterval  time.Duration `yaml:"sync_interval"`
	SourceProduct string        `yaml:"source_product"`
	TargetProduct string        `yaml:"target_product"`
}

type TraderConfig struct {
	ProductID string `yaml:"product_id"`
	OrderType string `yaml:"order_type"`
	PostOnly  bool   `yaml:"post_only"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	RateLimit    RateLimit     `yaml:"rate_limit"`
}

type RateLimit struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ArchiveConfig struct {
	Enabled        bool          `yaml:"enabled"`
	LocalDir       string        `yaml:"local_dir"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	BatchSize      int           `yaml:"batch_size"`
	S3             S3Config      `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// DashboardConfig controls the embedded monitoring HTTP server.
type DashboardConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Address         string        `yaml:"address"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	LogHistory      int           `yaml:"log_history"`
	MetricsHistory  int           `yaml:"metrics_history"`
}

type MetricsConfig struct {
	ChannelSize bool             `yaml:"channel_size"`
	Drops       bool             `yaml:"drops"`
	Prometheus  bool             `yaml:"prometheus"`
	CloudWatch  CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

const defaultConfigPath = "config/config.yml"

// envConfigPaths maps application environments to their dedicated
// configuration files. The default path is only swapped out when the
// caller did not ask for a specific file.
var envConfigPaths = map[string]string{
	environmentProduction: "config/config.production.yml",
	environmentStaging:    "config/config.staging.yml",
}

func LoadConfig(path string) (*Config, error) {
	if resolved := resolveEnvSpecificPath(path, defaultConfigPath, envConfigPaths); resolved != path {
		if _, err := os.Stat(resolved); err == nil {
			path = resolved
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{
		Book: BookConfig{
			Strict:      true,
			EventBuffer: 256,
		},
		Channels: ChannelsConfig{
			RawBuffer:     1024,
			EventBuffer:   1024,
			CommandBuffer: 256,
		},
		Metrics: MetricsConfig{
			ChannelSize: true,
			Drops:       true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override S3 settings from environment variables if available
	if config.Archive.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Archive.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Archive.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Archive.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Archive.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Archive.S3.Bucket = strings.TrimSpace(config.Archive.S3.Bucket)

	if config.Replicator.Enabled && config.Replicator.SourceProduct == "" && len(config.Book.Products) > 0 {
		config.Replicator.SourceProduct = config.Book.Products[0]
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Bookflow.Name == "" {
		return fmt.Errorf("bookflow.name is required")
	}

	if cfg.Bookflow.Version == "" {
		return fmt.Errorf("bookflow.version is required")
	}

	if len(cfg.Book.Products) == 0 {
		return fmt.Errorf("book.products must list at least one product")
	}

	if cfg.Book.EventBuffer <= 0 {
		return fmt.Errorf("book.event_buffer must be greater than 0")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}

	if !cfg.Feed.Replay.Enabled && cfg.Feed.URL == "" {
		return fmt.Errorf("feed.url is required when replay is disabled")
	}
	if cfg.Feed.Replay.Enabled && cfg.Feed.Replay.Path == "" {
		return fmt.Errorf("feed.replay.path is required when replay is enabled")
	}

	if cfg.Kafka.Enabled {
		if len(cfg.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required when kafka is enabled")
		}
		if cfg.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required when kafka is enabled")
		}
	}

	if cfg.Archive.Enabled {
		if cfg.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir is required when archiving is enabled")
		}
		if cfg.Archive.FlushInterval <= 0 {
			return fmt.Errorf("archive.flush_interval must be greater than 0")
		}
	}

	if cfg.Archive.S3.Enabled {
		if cfg.Archive.S3.Bucket == "" {
			return fmt.Errorf("archive.s3.bucket is required when S3 is enabled")
		}
		if cfg.Archive.S3.Region == "" {
			return fmt.Errorf("archive.s3.region is required when S3 is enabled")
		}
		if cfg.Archive.S3.AccessKeyID == "" || cfg.Archive.S3.SecretAccessKey == "" {
			return fmt.Errorf("archive.s3.access_key_id and archive.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Archive.S3.Bucket) {
			return fmt.Errorf("archive.s3.bucket '%s' is invalid", cfg.Archive.S3.Bucket)
		}
	}

	if cfg.Replicator.Enabled {
		if cfg.Replicator.SizeScale == "" {
			return fmt.Errorf("replicator.size_scale is required when the replicator is enabled")
		}
		if cfg.Replicator.DepthLimit < 0 {
			return fmt.Errorf("replicator.depth_limit must not be negative")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

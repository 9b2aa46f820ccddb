package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/querywarden/querywarden/pkg/resource"
)

type Config struct {
	Server      ServerConfig
	Logging     LoggingConfig
	Redis       RedisConfig
	Node        NodeConfig
	Enforcement EnforcementConfig
	Lifecycle   LifecycleConfig
	Groups      GroupSourceConfig
	Events      EventsConfig
	Metrics     MetricsConfig
}

type ServerConfig struct {
	HTTPPort    int           `mapstructure:"http_port"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

type RedisConfig struct {
	Addresses   []string `mapstructure:"addresses"`
	Password    string   `mapstructure:"password"`
	DB          int      `mapstructure:"db"`
	PoolSize    int      `mapstructure:"pool_size"`
	ClusterMode bool     `mapstructure:"cluster_mode"`
}

// NodeConfig fixes the node's total capacity per resource type, in abstract
// units. A zero capacity disables statistics for that resource type.
type NodeConfig struct {
	CPUCapacity    int64 `mapstructure:"cpu_capacity"`
	MemoryCapacity int64 `mapstructure:"memory_capacity"`
}

type EnforcementConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// MaxCancellationsPerCycle bounds victims signaled in one cycle across
	// all groups; 0 means uncapped.
	MaxCancellationsPerCycle int `mapstructure:"max_cancellations_per_cycle"`
}

type LifecycleConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type GroupSourceConfig struct {
	Driver   string `mapstructure:"driver"` // file or redis
	FilePath string `mapstructure:"file_path"`
	RedisKey string `mapstructure:"redis_key"`
}

type EventsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type MetricsConfig struct {
	ReportInterval time.Duration `mapstructure:"report_interval"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("/etc/querywarden/")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("QUERYWARDEN")
	viper.AutomaticEnv()

	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("redis.pool_size", 100)
	viper.SetDefault("node.cpu_capacity", 4000)
	viper.SetDefault("node.memory_capacity", 8589934592)
	viper.SetDefault("enforcement.interval", "1s")
	viper.SetDefault("enforcement.max_cancellations_per_cycle", 0)
	viper.SetDefault("lifecycle.poll_interval", "10s")
	viper.SetDefault("groups.driver", "file")
	viper.SetDefault("groups.file_path", "groups.yaml")
	viper.SetDefault("groups.redis_key", "qw:groups")
	viper.SetDefault("events.enabled", false)
	viper.SetDefault("metrics.report_interval", "5s")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Catalog builds the node's resource catalog from configured capacities.
func (n *NodeConfig) Catalog() (*resource.Catalog, error) {
	if n.CPUCapacity <= 0 && n.MemoryCapacity <= 0 {
		return nil, fmt.Errorf("at least one resource capacity must be positive")
	}
	return resource.NewCatalog(map[resource.Type]int64{
		resource.CPU:    n.CPUCapacity,
		resource.Memory: n.MemoryCapacity,
	}), nil
}

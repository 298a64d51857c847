package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port                string `mapstructure:"port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	RateLimitPerMin     int    `mapstructure:"rate_limit_per_min"`
	JWTSecret           string `mapstructure:"jwt_secret"`
}

type MongoCfg struct {
	URI        string `mapstructure:"uri"`
	ControlDB  string `mapstructure:"control_db"`
	TenantPref string `mapstructure:"tenant_prefix"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type NatsCfg struct {
	URL string `mapstructure:"url"`
}

type KafkaCfg struct {
	Brokers    []string `mapstructure:"brokers"`
	MediaTopic string   `mapstructure:"media_topic"`
	GroupID    string   `mapstructure:"group_id"`
}

type S3Cfg struct {
	Region     string `mapstructure:"region"`
	Bucket     string `mapstructure:"bucket"`
	PublicRead bool   `mapstructure:"public_read"`
}

type GatewayCfg struct {
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
	BreakerMaxFails   uint32 `mapstructure:"breaker_max_failures"`
	BreakerTimeoutSec int    `mapstructure:"breaker_timeout_seconds"`
}

type ProxyPoolCfg struct {
	BaseURL          string `mapstructure:"base_url"`
	APIKey           string `mapstructure:"api_key"`
	PoolCeiling      int64  `mapstructure:"pool_ceiling"`
	KeepAliveSeconds int    `mapstructure:"keepalive_seconds"`
}

type WorkerCfg struct {
	MediaConcurrency     int     `mapstructure:"media_concurrency"`
	MediaRatePerSecond   float64 `mapstructure:"media_rate_per_second"`
	SchedulerPollSeconds int     `mapstructure:"scheduler_poll_seconds"`
	SchedulerBatch       int     `mapstructure:"scheduler_batch"`
}

type Config struct {
	Development bool         `mapstructure:"development"`
	Server      ServerCfg    `mapstructure:"server"`
	Mongo       MongoCfg     `mapstructure:"mongo"`
	Redis       RedisCfg     `mapstructure:"redis"`
	Nats        NatsCfg      `mapstructure:"nats"`
	Kafka       KafkaCfg     `mapstructure:"kafka"`
	S3          S3Cfg        `mapstructure:"s3"`
	Gateway     GatewayCfg   `mapstructure:"gateway"`
	ProxyPool   ProxyPoolCfg `mapstructure:"proxy_pool"`
	Worker      WorkerCfg    `mapstructure:"worker"`

	// Derived
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	cfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Server.RateLimitPerMin == 0 {
		cfg.Server.RateLimitPerMin = 300
	}
	if cfg.Mongo.ControlDB == "" {
		cfg.Mongo.ControlDB = "manylead_control"
	}
	if cfg.Mongo.TenantPref == "" {
		cfg.Mongo.TenantPref = "org_"
	}
	if cfg.Kafka.MediaTopic == "" {
		cfg.Kafka.MediaTopic = "media.download"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "manylead-workers"
	}
	if cfg.Gateway.TimeoutSeconds == 0 {
		cfg.Gateway.TimeoutSeconds = 20
	}
	if cfg.Gateway.BreakerMaxFails == 0 {
		cfg.Gateway.BreakerMaxFails = 5
	}
	if cfg.Gateway.BreakerTimeoutSec == 0 {
		cfg.Gateway.BreakerTimeoutSec = 30
	}
	if cfg.ProxyPool.PoolCeiling == 0 {
		cfg.ProxyPool.PoolCeiling = 100
	}
	if cfg.ProxyPool.KeepAliveSeconds == 0 {
		cfg.ProxyPool.KeepAliveSeconds = 60
	}
	if cfg.Worker.MediaConcurrency == 0 {
		cfg.Worker.MediaConcurrency = 4
	}
	if cfg.Worker.MediaRatePerSecond == 0 {
		cfg.Worker.MediaRatePerSecond = 5
	}
	if cfg.Worker.SchedulerPollSeconds == 0 {
		cfg.Worker.SchedulerPollSeconds = 5
	}
	if cfg.Worker.SchedulerBatch == 0 {
		cfg.Worker.SchedulerBatch = 50
	}
}

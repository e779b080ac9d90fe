package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Auth struct {
		JWTSecret string            `yaml:"jwt_secret"`
		APIKeys   map[string]string `yaml:"api_keys"` // key -> tier
	} `yaml:"auth"`
	Quota struct {
		Enabled bool                 `yaml:"enabled"`
		Window  time.Duration        `yaml:"window"`
		Tiers   map[string]TierQuota `yaml:"tiers"`
	} `yaml:"quota"`
	Postgres struct {
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Database     string        `yaml:"database"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		SSLMode      string        `yaml:"ssl_mode"`
		MaxOpenConns int           `yaml:"max_open_conns"`
		MaxIdleConns int           `yaml:"max_idle_conns"`
		ConnLifetime time.Duration `yaml:"conn_lifetime"`
	} `yaml:"postgres"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		ArticleTopic string   `yaml:"article_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	DataSources struct {
		FailoverEnabled     bool          `yaml:"failover_enabled"`
		HealthCacheTTL      time.Duration `yaml:"health_cache_ttl"`
		HealthCheckInterval time.Duration `yaml:"health_check_interval"`
		BreakerThreshold    uint32        `yaml:"breaker_threshold"`
		BreakerResetTimeout time.Duration `yaml:"breaker_reset_timeout"`
		AlphaVantage        ProviderConfig `yaml:"alpha_vantage"`
		Yahoo               ProviderConfig `yaml:"yahoo"`
		EDINET              ProviderConfig `yaml:"edinet"`
		NewsAPI             ProviderConfig `yaml:"news_api"`
		Kabutan             ProviderConfig `yaml:"kabutan"`
	} `yaml:"data_sources"`
	News struct {
		PollInterval  time.Duration `yaml:"poll_interval"`
		MaxPerSource  int           `yaml:"max_per_source"`
		SourceMaxRPS  int           `yaml:"source_max_rps"`
		PipelineDepth int           `yaml:"pipeline_depth"`
	} `yaml:"news"`
	Mapping struct {
		MinRelevance   float64       `yaml:"min_relevance"`
		StockCacheTTL  time.Duration `yaml:"stock_cache_ttl"`
		TickerWeight   float64       `yaml:"ticker_weight"`
		NameWeight     float64       `yaml:"name_weight"`
		ReportWeight   float64       `yaml:"report_weight"`
		SectorWeight   float64       `yaml:"sector_weight"`
		QueueWorkers   int           `yaml:"queue_workers"`
	} `yaml:"mapping"`
	Analysis struct {
		APIKey      string        `yaml:"api_key"`
		BaseURL     string        `yaml:"base_url"`
		Model       string        `yaml:"model"`
		Timeout     time.Duration `yaml:"timeout"`
		CacheTTL    time.Duration `yaml:"cache_ttl"`
		MaxTokens   int           `yaml:"max_tokens"`
		Temperature float64       `yaml:"temperature"`
	} `yaml:"analysis"`
	Alerting struct {
		Enabled       bool          `yaml:"enabled"`
		CheckInterval time.Duration `yaml:"check_interval"`
		Cooldown      time.Duration `yaml:"cooldown"`
		HistoryWindow int           `yaml:"history_window"`
		SlackWebhook  string        `yaml:"slack_webhook"`
		PagerWebhook  string        `yaml:"pager_webhook"`
	} `yaml:"alerting"`
}

// TierQuota caps requests per window for one plan tier.
type TierQuota struct {
	Requests int `yaml:"requests"`
}

// ProviderConfig holds per-adapter settings shared by all data sources.
type ProviderConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Priority  int           `yaml:"priority"`
	APIKey    string        `yaml:"api_key"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
	PerMinute int           `yaml:"per_minute"`
	PerHour   int           `yaml:"per_hour"`
	PerDay    int           `yaml:"per_day"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		c.DataSources.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("EDINET_API_KEY"); v != "" {
		c.DataSources.EDINET.APIKey = v
	}
	if v := os.Getenv("NEWS_API_KEY"); v != "" {
		c.DataSources.NewsAPI.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Analysis.APIKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		c.Postgres.Password = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Postgres.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	if c.DataSources.HealthCacheTTL <= 0 {
		c.DataSources.HealthCacheTTL = 5 * time.Minute
	}
	if c.DataSources.HealthCheckInterval <= 0 {
		c.DataSources.HealthCheckInterval = time.Minute
	}
	if c.DataSources.BreakerThreshold == 0 {
		c.DataSources.BreakerThreshold = 5
	}
	if c.DataSources.BreakerResetTimeout <= 0 {
		c.DataSources.BreakerResetTimeout = 5 * time.Minute
	}
	if c.Mapping.MinRelevance <= 0 {
		c.Mapping.MinRelevance = 0.1
	}
	if c.Mapping.StockCacheTTL <= 0 {
		c.Mapping.StockCacheTTL = time.Hour
	}
	if c.Mapping.TickerWeight == 0 {
		c.Mapping.TickerWeight = 0.4
	}
	if c.Mapping.NameWeight == 0 {
		c.Mapping.NameWeight = 0.3
	}
	if c.Mapping.ReportWeight == 0 {
		c.Mapping.ReportWeight = 0.2
	}
	if c.Mapping.SectorWeight == 0 {
		c.Mapping.SectorWeight = 0.1
	}
	if c.Alerting.CheckInterval <= 0 {
		c.Alerting.CheckInterval = time.Minute
	}
	if c.Alerting.Cooldown <= 0 {
		c.Alerting.Cooldown = 15 * time.Minute
	}
	if c.Quota.Window <= 0 {
		c.Quota.Window = time.Minute
	}
	return nil
}

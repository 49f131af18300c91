package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Botpress   BotpressConfig   `mapstructure:"botpress"`
	Session    SessionConfig    `mapstructure:"session"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Poll       PollConfig       `mapstructure:"poll"`
	PixelArt   PixelArtConfig   `mapstructure:"pixel_art"`
	History    HistoryConfig    `mapstructure:"history"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type BotpressConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	WebhookID      string        `mapstructure:"webhook_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type SessionConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type RateLimitConfig struct {
	Cooldown    time.Duration `mapstructure:"cooldown"`
	TTL         time.Duration `mapstructure:"ttl"`
	GlobalRPS   float64       `mapstructure:"global_rps"`
	GlobalBurst int           `mapstructure:"global_burst"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type PixelArtConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	MaxCommands  int           `mapstructure:"max_commands"`
}

type HistoryConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Type    string        `mapstructure:"type"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Secrets come from the environment, never the config file.
	viper.BindEnv("botpress.webhook_id", "BOTPRESS_WEBHOOK_ID")
	viper.BindEnv("botpress.base_url", "BOTPRESS_BASE_URL")
	viper.BindEnv("history.redis.addr", "REDIS_ADDR")
	viper.BindEnv("history.redis.password", "REDIS_PASSWORD")
	viper.BindEnv("server.port", "PORT")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 3000)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 60*time.Second)
	viper.SetDefault("botpress.base_url", "https://chat.botpress.cloud")
	viper.SetDefault("botpress.request_timeout", 15*time.Second)
	viper.SetDefault("session.ttl", 30*time.Minute)
	viper.SetDefault("session.max_entries", 1000)
	viper.SetDefault("rate_limit.cooldown", 2*time.Second)
	viper.SetDefault("rate_limit.ttl", 5*time.Minute)
	viper.SetDefault("rate_limit.global_rps", 0)
	viper.SetDefault("rate_limit.global_burst", 10)
	viper.SetDefault("poll.interval", time.Second)
	viper.SetDefault("poll.timeout", 30*time.Second)
	viper.SetDefault("pixel_art.fetch_timeout", 10*time.Second)
	viper.SetDefault("pixel_art.max_commands", 500)
	viper.SetDefault("history.ttl", 24*time.Hour)
	viper.SetDefault("history.type", "memory")
	viper.SetDefault("i18n.default_language", "en")
	viper.SetDefault("i18n.languages", []string{"en"})
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("monitoring.metrics.path", "/metrics")
}

func validateConfig(cfg *Config) error {
	if cfg.Botpress.WebhookID == "" {
		return fmt.Errorf("botpress webhook id is required")
	}
	if cfg.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	if cfg.RateLimit.Cooldown <= 0 {
		return fmt.Errorf("rate limit cooldown must be positive")
	}
	if cfg.Poll.Interval <= 0 || cfg.Poll.Timeout <= cfg.Poll.Interval {
		return fmt.Errorf("poll timeout must exceed poll interval")
	}
	if cfg.History.Enabled && cfg.History.Type != "memory" && cfg.History.Type != "redis" {
		return fmt.Errorf("unsupported history type: %s", cfg.History.Type)
	}
	return nil
}

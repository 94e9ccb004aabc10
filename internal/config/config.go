package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Email       EmailConfig       `mapstructure:"email"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	MailSink    MailSinkConfig    `mapstructure:"mail_sink"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// WorkerConfig controls the delivery worker loop.
type WorkerConfig struct {
	Workers         int           `mapstructure:"workers"`
	EmptyQueueDelay time.Duration `mapstructure:"empty_queue_delay"`
	ErrorDelay      time.Duration `mapstructure:"error_delay"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// SendRatePerSec caps outbound sends per process. Zero disables the limit.
	SendRatePerSec float64 `mapstructure:"send_rate_per_sec"`
	SendBurst      int     `mapstructure:"send_burst"`
}

// EmailConfig selects and configures the outbound email provider.
type EmailConfig struct {
	Provider string        `mapstructure:"provider"`
	Sender   string        `mapstructure:"sender"`
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Domain   string        `mapstructure:"domain"`
	Timeout  time.Duration `mapstructure:"timeout"`
	SMTP     SMTPConfig    `mapstructure:"smtp"`
}

// SMTPConfig holds the relay settings used by the "smtp" provider.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	StartTLS bool   `mapstructure:"starttls"`
}

// IdempotencyConfig holds replay cache and retention settings.
type IdempotencyConfig struct {
	CacheEnabled bool          `mapstructure:"cache_enabled"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`
	Retention    time.Duration `mapstructure:"retention"`
}

// RedisConfig holds the Redis connection used by the replay cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds JWT settings for the admin API.
type AuthConfig struct {
	SigningKey     string        `mapstructure:"signing_key"`
	Issuer         string        `mapstructure:"issuer"`
	Audience       string        `mapstructure:"audience"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// MailSinkConfig configures the development SMTP sink.
type MailSinkConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	MaxRecipients   int           `mapstructure:"max_recipients"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	StoreType       string        `mapstructure:"store_type"`
	StorePath       string        `mapstructure:"store_path"`
}

// Addr returns the host:port the API server listens on.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the host:port the mail sink listens on.
func (c MailSinkConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Addr returns the host:port of the SMTP relay.
func (c SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Second)

	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 10)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)

	v.SetDefault("worker.workers", 1)
	v.SetDefault("worker.empty_queue_delay", 10*time.Second)
	v.SetDefault("worker.error_delay", 1*time.Second)
	v.SetDefault("worker.shutdown_timeout", 30*time.Second)
	v.SetDefault("worker.send_rate_per_sec", 0)
	v.SetDefault("worker.send_burst", 1)

	v.SetDefault("email.provider", "stdout")
	v.SetDefault("email.timeout", 10*time.Second)
	v.SetDefault("email.smtp.port", 587)

	v.SetDefault("idempotency.cache_enabled", false)
	v.SetDefault("idempotency.cache_ttl", 24*time.Hour)
	v.SetDefault("idempotency.retention", 0)

	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("auth.issuer", "newsletter")
	v.SetDefault("auth.audience", "newsletter-admin")
	v.SetDefault("auth.access_token_ttl", 15*time.Minute)

	v.SetDefault("mail_sink.host", "127.0.0.1")
	v.SetDefault("mail_sink.port", 1025)
	v.SetDefault("mail_sink.max_connections", 20)
	v.SetDefault("mail_sink.max_message_bytes", 10*1024*1024)
	v.SetDefault("mail_sink.max_recipients", 100)
	v.SetDefault("mail_sink.read_timeout", 30*time.Second)
	v.SetDefault("mail_sink.write_timeout", 30*time.Second)
	v.SetDefault("mail_sink.store_type", "local")
	v.SetDefault("mail_sink.store_path", "./data/mail-sink")
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix NEWSLETTER_ override file values.
// For example, NEWSLETTER_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("NEWSLETTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}

	return &cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are reported as loaded=false rather than an error.
func LoadDotEnv(paths ...string) (loaded bool, err error) {
	var existing []string
	for _, p := range paths {
		if _, statErr := os.Stat(p); statErr == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return false, nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return false, fmt.Errorf("load env file: %w", err)
	}
	return true, nil
}

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for pgx.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// RedisConfig selects the presence and typing backend. An empty URL keeps
// them in process memory.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// NATSConfig enables cross-node fan-out when URL is set.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Subject       string        `mapstructure:"subject"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type RealtimeConfig struct {
	TypingTTL          time.Duration `mapstructure:"typing_ttl"`
	TypingThrottle     time.Duration `mapstructure:"typing_throttle"`
	PresenceTTL        time.Duration `mapstructure:"presence_ttl"`
	GapTimeout         time.Duration `mapstructure:"gap_timeout"`
	TailCheckInterval  time.Duration `mapstructure:"tail_check_interval"`
	SendBuffer         int           `mapstructure:"send_buffer"`
	ReplayBatch        int           `mapstructure:"replay_batch"`
	UnreadWorkers      int           `mapstructure:"unread_workers"`
	UnreadQueue        int           `mapstructure:"unread_queue"`
	PublishRetryBudget time.Duration `mapstructure:"publish_retry_budget"`
}

type LimitsConfig struct {
	MaxContentLength int `mapstructure:"max_content_length"`
	MaxMediaRefs     int `mapstructure:"max_media_refs"`
	DefaultPageSize  int `mapstructure:"default_page_size"`
	MaxPageSize      int `mapstructure:"max_page_size"`
	DefaultGroupSize int `mapstructure:"default_group_size"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// envAliases keeps the flat variable names deployments already use.
var envAliases = map[string]string{
	"server.port":       "SERVER_PORT",
	"database.host":     "DB_HOST",
	"database.port":     "DB_PORT",
	"database.user":     "DB_USER",
	"database.password": "DB_PASSWORD",
	"database.name":     "DB_NAME",
	"redis.url":         "REDIS_URL",
	"nats.url":          "NATS_URL",
	"auth.jwt_secret":   "JWT_SECRET",
	"store.driver":      "STORE_DRIVER",
	"log.level":         "LOG_LEVEL",
	"log.format":        "LOG_FORMAT",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "relay")
	v.SetDefault("database.password", "relay_dev_password")
	v.SetDefault("database.name", "relay")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "relay.events")
	v.SetDefault("nats.max_reconnects", 60)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetDefault("auth.jwt_secret", "dev-secret-change-me")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.driver", "postgres")

	v.SetDefault("realtime.typing_ttl", 5*time.Second)
	v.SetDefault("realtime.typing_throttle", 2*time.Second)
	v.SetDefault("realtime.presence_ttl", 90*time.Second)
	v.SetDefault("realtime.gap_timeout", 2*time.Second)
	v.SetDefault("realtime.tail_check_interval", 30*time.Second)
	v.SetDefault("realtime.send_buffer", 256)
	v.SetDefault("realtime.replay_batch", 200)
	v.SetDefault("realtime.unread_workers", 4)
	v.SetDefault("realtime.unread_queue", 1024)
	v.SetDefault("realtime.publish_retry_budget", 2*time.Second)

	v.SetDefault("limits.max_content_length", 4000)
	v.SetDefault("limits.max_media_refs", 10)
	v.SetDefault("limits.default_page_size", 50)
	v.SetDefault("limits.max_page_size", 100)
	v.SetDefault("limits.default_group_size", 256)

	v.SetDefault("rate_limit.rps", 20.0)
	v.SetDefault("rate_limit.burst", 40)
}

// Load reads defaults, an optional YAML file, a .env file and the
// environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, "RELAY_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be postgres or memory, got %q", c.Store.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Realtime.TypingTTL <= 0 {
		errs = append(errs, errors.New("realtime.typing_ttl must be positive"))
	}
	if c.Realtime.PresenceTTL <= 0 {
		errs = append(errs, errors.New("realtime.presence_ttl must be positive"))
	}
	if c.Realtime.SendBuffer <= 0 {
		errs = append(errs, errors.New("realtime.send_buffer must be positive"))
	}
	if c.Limits.MaxPageSize < c.Limits.DefaultPageSize {
		errs = append(errs, errors.New("limits.max_page_size must be >= limits.default_page_size"))
	}
	return errors.Join(errs...)
}

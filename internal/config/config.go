package config

import (
	"fmt"
	"time"

	base "github.com/SupragyaBasnet/StepStunner-sub001/libs/config"
	"github.com/spf13/viper"
)

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (c DBConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers            []string `mapstructure:"brokers"`
	SecurityEventTopic string   `mapstructure:"security_event_topic"`
}

type AuthConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	JWTIssuer    string        `mapstructure:"jwt_issuer"`
	AccessTTL    time.Duration `mapstructure:"access_ttl"`
	Argon2Memory uint32        `mapstructure:"argon2_memory"`
	Argon2Iters  uint32        `mapstructure:"argon2_iterations"`
	Argon2Lanes  uint8         `mapstructure:"argon2_parallelism"`
}

// RouteClassLimit is one fixed-window policy. Route classes get distinct
// caps; auth routes are stricter than the general API.
type RouteClassLimit struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type RateLimitConfig struct {
	Enabled bool                       `mapstructure:"enabled"`
	Classes map[string]RouteClassLimit `mapstructure:"classes"`
}

type BruteForceConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Window    time.Duration `mapstructure:"window"`
}

type LockoutConfig struct {
	DefaultDuration time.Duration `mapstructure:"default_duration"`
}

type CSRFConfig struct {
	CookieName string        `mapstructure:"cookie_name"`
	HeaderName string        `mapstructure:"header_name"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`
}

type AuditConfig struct {
	SkipPaths    []string `mapstructure:"skip_paths"`
	QueueSize    int      `mapstructure:"queue_size"`
	MaxEventFeed int      `mapstructure:"max_event_feed"`
}

type SecurityConfig struct {
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	BruteForce BruteForceConfig `mapstructure:"brute_force"`
	Lockout    LockoutConfig    `mapstructure:"lockout"`
	CSRF       CSRFConfig       `mapstructure:"csrf"`
	Audit      AuditConfig      `mapstructure:"audit"`
}

type Config struct {
	App      base.AppConfig `mapstructure:"-"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Security SecurityConfig `mapstructure:"security"`
}

func Load(path string) (*Config, error) {
	v, err := base.New(path)
	if err != nil {
		return nil, err
	}

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := v.Unmarshal(&cfg.App); err != nil {
		return nil, fmt.Errorf("unmarshal app config: %w", err)
	}

	if cfg.App.Env != "dev" && cfg.App.Env != "test" && cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("auth.jwt_secret is required outside dev/test")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "storefront")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "stepstunner")
	v.SetDefault("db.user", "stepstunner")
	v.SetDefault("db.password", "stepstunner")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "ss:")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.security_event_topic", "storefront.security.events")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "stepstunner")
	v.SetDefault("auth.access_ttl", "30m")
	v.SetDefault("auth.argon2_memory", 64*1024)
	v.SetDefault("auth.argon2_iterations", 3)
	v.SetDefault("auth.argon2_parallelism", 2)

	v.SetDefault("security.rate_limit.enabled", true)
	v.SetDefault("security.rate_limit.classes.auth.limit", 10)
	v.SetDefault("security.rate_limit.classes.auth.window", "1m")
	v.SetDefault("security.rate_limit.classes.api.limit", 100)
	v.SetDefault("security.rate_limit.classes.api.window", "1m")
	v.SetDefault("security.brute_force.threshold", 5)
	v.SetDefault("security.brute_force.window", "15m")
	v.SetDefault("security.lockout.default_duration", "30m")
	v.SetDefault("security.csrf.cookie_name", "ss_sid")
	v.SetDefault("security.csrf.header_name", "X-CSRF-Token")
	v.SetDefault("security.csrf.session_ttl", "12h")
	v.SetDefault("security.audit.skip_paths", []string{"/healthz", "/readyz", "/favicon.ico", "/api/v1/csrf"})
	v.SetDefault("security.audit.queue_size", 1024)
	v.SetDefault("security.audit.max_event_feed", 100)
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Session   SessionSettings   `mapstructure:"session"`
	RBAC      RBACSettings      `mapstructure:"rbac"`
	Reconcile ReconcileSettings `mapstructure:"reconcile"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection and cache key layout.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// KafkaSettings configures the security event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// JWTSettings carries the dual signing secrets and token lifetimes.
// AccessSecret and RefreshSecret must be present and distinct; the token
// service refuses to start otherwise.
type JWTSettings struct {
	Issuer          string        `mapstructure:"issuer"`
	Audience        string        `mapstructure:"audience"`
	AccessSecret    string        `mapstructure:"access_secret"`
	RefreshSecret   string        `mapstructure:"refresh_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// SessionSettings bounds concurrent sessions per subject.
type SessionSettings struct {
	MaxTokensPerUser int           `mapstructure:"max_tokens_per_user"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
}

// RBACSettings configures the permission snapshot cache.
type RBACSettings struct {
	CacheKeyPrefix string        `mapstructure:"cache_key_prefix"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// ReconcileSettings bounds the consistency reconciliation retry loop.
// Tune RetryBackoff to the deployment's observed replication lag.
type ReconcileSettings struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// RateLimitSettings throttles the unauthenticated refresh endpoint and the
// role grant endpoint per client IP.
type RateLimitSettings struct {
	Enabled       bool          `mapstructure:"enabled"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	RefreshLimit  int           `mapstructure:"refresh_limit"`
	RefreshWindow time.Duration `mapstructure:"refresh_window"`
	GrantLimit    int           `mapstructure:"grant_limit"`
	GrantWindow   time.Duration `mapstructure:"grant_window"`
}

// TelemetrySettings configures metrics naming and trace export. Tracing is
// off unless an OTLP endpoint is set.
type TelemetrySettings struct {
	MetricsNamespace string  `mapstructure:"metrics_namespace"`
	ServiceName      string  `mapstructure:"service_name"`
	OTLPEndpoint     string  `mapstructure:"otlp_endpoint"`
	SamplingRate     float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("RANDEVUBU")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.issuer",
		"jwt.audience",
		"jwt.access_secret",
		"jwt.refresh_secret",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"session.max_tokens_per_user",
		"session.cleanup_interval",
		"rbac.cache_key_prefix",
		"rbac.cache_ttl",
		"reconcile.max_attempts",
		"reconcile.retry_backoff",
		"rate_limit.enabled",
		"rate_limit.key_prefix",
		"rate_limit.refresh_limit",
		"rate_limit.refresh_window",
		"rate_limit.grant_limit",
		"rate_limit.grant_window",
		"telemetry.metrics_namespace",
		"telemetry.service_name",
		"telemetry.otlp_endpoint",
		"telemetry.sampling_rate",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "randevubu-server")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "randevubu")
	v.SetDefault("postgres.password", "randevubu_password")
	v.SetDefault("postgres.database", "randevubu")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "randevubu")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.issuer", "randevubu-server")
	v.SetDefault("jwt.audience", "randevubu-clients")
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "720h")

	v.SetDefault("session.max_tokens_per_user", 5)
	v.SetDefault("session.cleanup_interval", "1h")

	v.SetDefault("rbac.cache_key_prefix", "randevubu:permissions")
	v.SetDefault("rbac.cache_ttl", "5m")

	v.SetDefault("reconcile.max_attempts", 2)
	v.SetDefault("reconcile.retry_backoff", "100ms")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.key_prefix", "randevubu:ratelimit")
	v.SetDefault("rate_limit.refresh_limit", 30)
	v.SetDefault("rate_limit.refresh_window", "1m")
	v.SetDefault("rate_limit.grant_limit", 10)
	v.SetDefault("rate_limit.grant_window", "1m")

	v.SetDefault("telemetry.metrics_namespace", "randevubu")
	v.SetDefault("telemetry.service_name", "randevubu-server")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.sampling_rate", 1.0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "RANDEVUBU_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

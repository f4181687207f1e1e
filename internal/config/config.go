// Package config holds the control plane's process configuration: one
// struct per concern, each with Default() and LoadFromEnv() so every
// package can be constructed standalone in tests without a framework.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the root configuration for the rise-server process.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Controller ControllerConfig
	JWT        JWTConfig
	Slack      SlackConfig
	Registry   RegistryConfig
}

// Default returns a Config populated with sane defaults for local
// development; every field is still overridable via LoadFromEnv.
func Default() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Database:   DefaultDatabaseConfig(),
		Redis:      DefaultRedisConfig(),
		Controller: DefaultControllerConfig(),
		JWT:        DefaultJWTConfig(),
		Slack:      DefaultSlackConfig(),
		Registry:   DefaultRegistryConfig(),
	}
}

// LoadFromEnv overlays environment variables onto an existing Config,
// leaving fields untouched when the corresponding variable is unset or
// fails to parse.
func (c *Config) LoadFromEnv() {
	c.Server.LoadFromEnv()
	c.Database.LoadFromEnv()
	c.Redis.LoadFromEnv()
	c.Controller.LoadFromEnv()
	c.JWT.LoadFromEnv()
	c.Slack.LoadFromEnv()
	c.Registry.LoadFromEnv()
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	HTTPPort      string
	PublicURL     string
	ShutdownGrace time.Duration
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:      "8080",
		PublicURL:     "http://localhost:8080",
		ShutdownGrace: 30 * time.Second,
	}
}

func (s *ServerConfig) LoadFromEnv() {
	if v := os.Getenv("RISE_HTTP_PORT"); v != "" {
		s.HTTPPort = v
	}
	if v := os.Getenv("RISE_PUBLIC_URL"); v != "" {
		s.PublicURL = v
	}
	if v := os.Getenv("RISE_SHUTDOWN_GRACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			s.ShutdownGrace = d
		}
	}
}

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "rise",
		Database:        "rise",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func (d *DatabaseConfig) LoadFromEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		d.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			d.Port = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		d.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		d.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		d.Database = v
	}
	if v := os.Getenv("DB_SSL_MODE"); v != "" {
		d.SSLMode = v
	}
}

// Validate reports the first configuration error found, matching the
// field-by-field checks the control plane needs before dialing Postgres.
func (d *DatabaseConfig) Validate() error {
	if d.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if d.Port < 1 || d.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535")
	}
	if d.User == "" {
		return fmt.Errorf("database user is required")
	}
	if d.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if d.MaxOpenConns <= 0 {
		return fmt.Errorf("max open connections must be greater than 0")
	}
	if d.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections must be non-negative")
	}
	return nil
}

// DSN renders a libpq-style connection string (pgx accepts this format
// directly) with the password only appended when non-empty.
func (d *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Database, d.SSLMode)
	if d.Password != "" {
		dsn += fmt.Sprintf(" password=%s", d.Password)
	}
	return dsn
}

// RedisConfig configures the distributed loop lease backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{Addr: "localhost:6379", DB: 0, Enabled: false}
}

func (r *RedisConfig) LoadFromEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		r.Addr = v
		r.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		r.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			r.DB = n
		}
	}
	if v := os.Getenv("REDIS_ENABLED"); v != "" {
		r.Enabled = v == "true" || v == "1"
	}
}

// ControllerConfig holds the six reconciliation loops' tick intervals
// and the shared per-call deadline for backend operations.
type ControllerConfig struct {
	ReconcileInterval  time.Duration
	HealthInterval     time.Duration
	TerminateInterval  time.Duration
	CancelInterval     time.Duration
	ExpirationInterval time.Duration
	BackendCallTimeout time.Duration
	DeployTimeout      time.Duration
	BuildTimeout       time.Duration
	ReconcileBatchSize int
}

func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		ReconcileInterval:  15 * time.Second,
		HealthInterval:     5 * time.Second,
		TerminateInterval:  10 * time.Second,
		CancelInterval:     10 * time.Second,
		ExpirationInterval: 60 * time.Second,
		BackendCallTimeout: 2 * time.Minute,
		DeployTimeout:      5 * time.Minute,
		BuildTimeout:       10 * time.Minute,
		ReconcileBatchSize: 100,
	}
}

func (c *ControllerConfig) LoadFromEnv() {
	setDuration := func(env string, dst *time.Duration) {
		if v := os.Getenv(env); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}
	setDuration("RISE_RECONCILE_INTERVAL", &c.ReconcileInterval)
	setDuration("RISE_HEALTH_INTERVAL", &c.HealthInterval)
	setDuration("RISE_TERMINATE_INTERVAL", &c.TerminateInterval)
	setDuration("RISE_CANCEL_INTERVAL", &c.CancelInterval)
	setDuration("RISE_EXPIRATION_INTERVAL", &c.ExpirationInterval)
	setDuration("RISE_BACKEND_CALL_TIMEOUT", &c.BackendCallTimeout)
	setDuration("RISE_DEPLOY_TIMEOUT", &c.DeployTimeout)
	setDuration("RISE_BUILD_TIMEOUT", &c.BuildTimeout)
	if v := os.Getenv("RISE_RECONCILE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ReconcileBatchSize = n
		}
	}
}

// JWTConfig configures the HS256 UI secret and the RS256 app key pair.
type JWTConfig struct {
	HS256Secret   string
	RS256PEMKey   string
	RS256PEMCert  string
	AccessExpiry  time.Duration
	Issuer        string
	PersistInDB   bool
}

func DefaultJWTConfig() JWTConfig {
	return JWTConfig{AccessExpiry: time.Hour, PersistInDB: true}
}

func (j *JWTConfig) LoadFromEnv() {
	if v := os.Getenv("RISE_JWT_HS256_SECRET"); v != "" {
		j.HS256Secret = v
	}
	if v := os.Getenv("RISE_JWT_RS256_PRIVATE_KEY"); v != "" {
		j.RS256PEMKey = v
	}
	if v := os.Getenv("RISE_JWT_RS256_PUBLIC_KEY"); v != "" {
		j.RS256PEMCert = v
	}
	if v := os.Getenv("RISE_JWT_ISSUER"); v != "" {
		j.Issuer = v
	}
	if v := os.Getenv("RISE_JWT_PERSIST"); v != "" {
		j.PersistInDB = v == "true" || v == "1"
	}
}

// SlackConfig gates the optional Failed-deployment notifier.
type SlackConfig struct {
	Enabled    bool
	WebhookURL string
	Channel    string
}

func DefaultSlackConfig() SlackConfig {
	return SlackConfig{Enabled: false}
}

func (s *SlackConfig) LoadFromEnv() {
	if v := os.Getenv("RISE_SLACK_WEBHOOK_URL"); v != "" {
		s.WebhookURL = v
		s.Enabled = true
	}
	if v := os.Getenv("RISE_SLACK_CHANNEL"); v != "" {
		s.Channel = v
	}
	if v := os.Getenv("RISE_SLACK_ENABLED"); v != "" {
		s.Enabled = v == "true" || v == "1"
	}
}

// RegistryConfig names the default image registry used when a
// deployment has no pre-built digest.
type RegistryConfig struct {
	BaseURL string
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{BaseURL: "registry.internal"}
}

func (r *RegistryConfig) LoadFromEnv() {
	if v := os.Getenv("RISE_REGISTRY_BASE_URL"); v != "" {
		r.BaseURL = v
	}
}

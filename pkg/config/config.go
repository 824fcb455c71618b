package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Boost        BoostConfig
	RateLimit    RateLimitConfig
	Awards       AwardsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BOOST_APP_ENV" required:"true"`
	Port         string `envconfig:"BOOST_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BOOST_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BOOST_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BOOST_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BOOST_DB_DSN"`
	Driver string `envconfig:"BOOST_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BOOST_DB_HOST"`
	LegacyPort     int    `envconfig:"BOOST_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BOOST_DB_USER"`
	LegacyPassword string `envconfig:"BOOST_DB_PASSWORD"`
	LegacyName     string `envconfig:"BOOST_DB_NAME"`
	LegacySSLMode  string `envconfig:"BOOST_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BOOST_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BOOST_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BOOST_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BOOST_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BOOST_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BOOST_REDIS_ADDR"`
	Password     string        `envconfig:"BOOST_REDIS_PASSWORD"`
	DB           int           `envconfig:"BOOST_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BOOST_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BOOST_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BOOST_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BOOST_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BOOST_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BOOST_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BOOST_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BOOST_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BOOST_AUTO_MIGRATE" default:"false"`
}

// BoostConfig tunes the ledger's read side.
type BoostConfig struct {
	AgentTotalsCacheTTL time.Duration `envconfig:"BOOST_AGENT_TOTALS_CACHE_TTL" default:"30s"`
}

// RateLimitConfig throttles the mutating boost endpoints.
type RateLimitConfig struct {
	Window      time.Duration `envconfig:"BOOST_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit     int           `envconfig:"BOOST_RATE_LIMIT_IP" default:"120"`
	WalletLimit int           `envconfig:"BOOST_RATE_LIMIT_WALLET" default:"60"`
}

// AwardsConfig tunes the stake-award sweep worker.
type AwardsConfig struct {
	SweepInterval time.Duration `envconfig:"BOOST_AWARD_SWEEP_INTERVAL" default:"5m"`
	SweepLockTTL  time.Duration `envconfig:"BOOST_AWARD_SWEEP_LOCK_TTL" default:"10m"`
	BatchSize     int           `envconfig:"BOOST_AWARD_SWEEP_BATCH_SIZE" default:"200"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"BOOST_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	BoostTopic        string `envconfig:"BOOST_PUBSUB_BOOST_TOPIC" default:"boost-ledger-events"`
	BoostSubscription string `envconfig:"BOOST_PUBSUB_BOOST_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BOOST_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BOOST_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BOOST_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

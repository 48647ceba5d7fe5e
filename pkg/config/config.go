package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix scopes every environment variable the platform reads.
	EnvPrefix = "loyalty"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "LOYALTY_DB_DSN"
	EnvDBHost = "LOYALTY_DB_HOST"
	EnvDBUser = "LOYALTY_DB_USER"
	EnvDBName = "LOYALTY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Mailer       MailerConfig
	Loyalty      LoyaltyConfig
	Cron         CronConfig
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
	Env          string `envconfig:"LOYALTY_APP_ENV" required:"true"`
	Port         string `envconfig:"LOYALTY_APP_PORT" required:"true"`
	MetricsAddr  string `envconfig:"LOYALTY_METRICS_ADDR" default:":9090"`
	LogLevel     string `envconfig:"LOYALTY_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"LOYALTY_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"LOYALTY_DB_DSN"`
	Driver string `envconfig:"LOYALTY_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"LOYALTY_DB_HOST"`
	LegacyPort     int    `envconfig:"LOYALTY_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"LOYALTY_DB_USER"`
	LegacyPassword string `envconfig:"LOYALTY_DB_PASSWORD"`
	LegacyName     string `envconfig:"LOYALTY_DB_NAME"`
	LegacySSLMode  string `envconfig:"LOYALTY_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"LOYALTY_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"LOYALTY_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"LOYALTY_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LOYALTY_REDIS_URL" required:"true"`
	Address      string        `envconfig:"LOYALTY_REDIS_ADDR"`
	Password     string        `envconfig:"LOYALTY_REDIS_PASSWORD"`
	DB           int           `envconfig:"LOYALTY_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"LOYALTY_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"LOYALTY_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"LOYALTY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LOYALTY_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"LOYALTY_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"LOYALTY_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	ConsumerIdempotencyTTL time.Duration `envconfig:"LOYALTY_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"LOYALTY_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON string `envconfig:"LOYALTY_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	LoyaltyTopic             string `envconfig:"LOYALTY_PUBSUB_LOYALTY_TOPIC" default:"loyalty-events"`
	LoyaltySubscription      string `envconfig:"LOYALTY_PUBSUB_LOYALTY_SUBSCRIPTION" required:"true"`
	NotificationTopic        string `envconfig:"LOYALTY_PUBSUB_NOTIFICATION_TOPIC" default:"loyalty-notification-events"`
	NotificationSubscription string `envconfig:"LOYALTY_PUBSUB_NOTIFICATION_SUBSCRIPTION" required:"true"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"LOYALTY_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"LOYALTY_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"LOYALTY_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"LOYALTY_OUTBOX_RETENTION_DAYS" default:"14"`
}

type MailerConfig struct {
	APIKey      string        `envconfig:"LOYALTY_MAILER_API_KEY"`
	BaseURL     string        `envconfig:"LOYALTY_MAILER_BASE_URL" default:"https://api.sendgrid.com"`
	DefaultFrom string        `envconfig:"LOYALTY_MAILER_FROM_EMAIL" default:"rewards@nuqta.app"`
	SendTimeout time.Duration `envconfig:"LOYALTY_MAILER_SEND_TIMEOUT" default:"10s"`
}

type LoyaltyConfig struct {
	CouponValidityDays int           `envconfig:"LOYALTY_COUPON_VALIDITY_DAYS" default:"30"`
	CouponCodeLength   int           `envconfig:"LOYALTY_COUPON_CODE_LENGTH" default:"10"`
	WebhookDedupWindow time.Duration `envconfig:"LOYALTY_WEBHOOK_DEDUP_WINDOW" default:"72h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"LOYALTY_CRON_INTERVAL" default:"24h"`
	LockKey  string        `envconfig:"LOYALTY_CRON_LOCK_KEY" default:"nq:cron:lock"`
	LockTTL  time.Duration `envconfig:"LOYALTY_CRON_LOCK_TTL" default:"25h"`
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

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable this service reads.
	EnvPrefix = "PICKUPS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "PICKUPS_DB_DSN"
	EnvDBHost = "PICKUPS_DB_HOST"
	EnvDBUser = "PICKUPS_DB_USER"
	EnvDBName = "PICKUPS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Scheduling   SchedulingConfig
	Platform     PlatformConfig
	RateLimit    RateLimitConfig
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
	if err := cfg.Scheduling.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PICKUPS_APP_ENV" required:"true"`
	Port         string `envconfig:"PICKUPS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PICKUPS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PICKUPS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"PICKUPS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"PICKUPS_DB_DSN"`
	Driver string `envconfig:"PICKUPS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"PICKUPS_DB_HOST"`
	LegacyPort     int    `envconfig:"PICKUPS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"PICKUPS_DB_USER"`
	LegacyPassword string `envconfig:"PICKUPS_DB_PASSWORD"`
	LegacyName     string `envconfig:"PICKUPS_DB_NAME"`
	LegacySSLMode  string `envconfig:"PICKUPS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PICKUPS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PICKUPS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PICKUPS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PICKUPS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"PICKUPS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PICKUPS_REDIS_ADDR"`
	Password     string        `envconfig:"PICKUPS_REDIS_PASSWORD"`
	DB           int           `envconfig:"PICKUPS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PICKUPS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PICKUPS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PICKUPS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PICKUPS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PICKUPS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PICKUPS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PICKUPS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PICKUPS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PICKUPS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PICKUPS_AUTO_MIGRATE" default:"false"`
}

// SchedulingConfig carries the business calendar and billing cadence knobs.
type SchedulingConfig struct {
	BusinessTimezone     string        `envconfig:"PICKUPS_BUSINESS_TIMEZONE" default:"America/New_York"`
	BillingLeadHoursMin  int           `envconfig:"PICKUPS_BILLING_LEAD_HOURS_MIN" default:"1"`
	BillingLeadHoursMax  int           `envconfig:"PICKUPS_BILLING_LEAD_HOURS_MAX" default:"168"`
	BillingLeadHours     int           `envconfig:"PICKUPS_BILLING_LEAD_HOURS_DEFAULT" default:"24"`
	MaxBillingFailures   int           `envconfig:"PICKUPS_MAX_BILLING_FAILURES" default:"3"`
	AttemptRetentionDays int           `envconfig:"PICKUPS_ATTEMPT_RETENTION_DAYS" default:"90"`
	SweepInterval        time.Duration `envconfig:"PICKUPS_SWEEP_INTERVAL" default:"1h"`
}

func (s SchedulingConfig) validate() error {
	if s.BillingLeadHoursMin <= 0 {
		return fmt.Errorf("billing lead hours min must be positive")
	}
	if s.BillingLeadHoursMax < s.BillingLeadHoursMin {
		return fmt.Errorf("billing lead hours max must be >= min")
	}
	if s.BillingLeadHours < s.BillingLeadHoursMin || s.BillingLeadHours > s.BillingLeadHoursMax {
		return fmt.Errorf("billing lead hours default must fall inside [min,max]")
	}
	if s.MaxBillingFailures <= 0 {
		return fmt.Errorf("max billing failures must be positive")
	}
	return nil
}

// ClampLeadHours bounds a requested lead-hours value to the configured range.
func (s SchedulingConfig) ClampLeadHours(hours int) int {
	if hours < s.BillingLeadHoursMin {
		return s.BillingLeadHoursMin
	}
	if hours > s.BillingLeadHoursMax {
		return s.BillingLeadHoursMax
	}
	return hours
}

// PlatformConfig points at the commerce platform's billing API.
type PlatformConfig struct {
	BaseURL      string        `envconfig:"PICKUPS_PLATFORM_BASE_URL"`
	AccessToken  string        `envconfig:"PICKUPS_PLATFORM_ACCESS_TOKEN"`
	WebhookToken string        `envconfig:"PICKUPS_PLATFORM_WEBHOOK_TOKEN"`
	Timeout      time.Duration `envconfig:"PICKUPS_PLATFORM_TIMEOUT" default:"15s"`
	RetryMax     int           `envconfig:"PICKUPS_PLATFORM_RETRY_MAX" default:"3"`
	RetryWaitMin time.Duration `envconfig:"PICKUPS_PLATFORM_RETRY_WAIT_MIN" default:"500ms"`
	RetryWaitMax time.Duration `envconfig:"PICKUPS_PLATFORM_RETRY_WAIT_MAX" default:"5s"`
}

// RateLimitConfig throttles the unauthenticated webhook surface.
type RateLimitConfig struct {
	WebhookWindow  time.Duration `envconfig:"PICKUPS_RATE_LIMIT_WEBHOOK_WINDOW" default:"1m"`
	WebhookIPLimit int           `envconfig:"PICKUPS_RATE_LIMIT_WEBHOOK_IP_LIMIT" default:"120"`
}

type PubSubConfig struct {
	ProjectID          string `envconfig:"PICKUPS_PUBSUB_PROJECT_ID"`
	EventsTopic        string `envconfig:"PICKUPS_PUBSUB_EVENTS_TOPIC" default:"pickups-domain-events"`
	EventsSubscription string `envconfig:"PICKUPS_PUBSUB_EVENTS_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PICKUPS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PICKUPS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PICKUPS_OUTBOX_MAX_ATTEMPTS" default:"10"`
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

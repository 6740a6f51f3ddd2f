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
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Billing      BillingConfig
	Resilience   ResilienceConfig
	PlanCache    PlanCacheConfig
	Outbox       OutboxConfig
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
	if err := cfg.Billing.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"KENTRA_APP_ENV" required:"true"`
	Port         string   `envconfig:"KENTRA_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"KENTRA_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"KENTRA_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"KENTRA_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"KENTRA_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"KENTRA_DB_DSN"`
	Driver string `envconfig:"KENTRA_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KENTRA_DB_HOST"`
	LegacyPort     int    `envconfig:"KENTRA_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KENTRA_DB_USER"`
	LegacyPassword string `envconfig:"KENTRA_DB_PASSWORD"`
	LegacyName     string `envconfig:"KENTRA_DB_NAME"`
	LegacySSLMode  string `envconfig:"KENTRA_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KENTRA_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KENTRA_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KENTRA_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KENTRA_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"KENTRA_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KENTRA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KENTRA_REDIS_ADDR"`
	Password     string        `envconfig:"KENTRA_REDIS_PASSWORD"`
	DB           int           `envconfig:"KENTRA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KENTRA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KENTRA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KENTRA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KENTRA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KENTRA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig describes the tokens minted by the identity provider. The API only
// verifies them.
type JWTConfig struct {
	Secret   string `envconfig:"KENTRA_JWT_SECRET" required:"true"`
	Issuer   string `envconfig:"KENTRA_JWT_ISSUER" required:"true"`
	Audience string `envconfig:"KENTRA_JWT_AUDIENCE" default:"authenticated"`
}

type RateLimitConfig struct {
	Backend          string        `envconfig:"KENTRA_RATE_LIMIT_BACKEND" default:"memory"`
	Window           time.Duration `envconfig:"KENTRA_RATE_LIMIT_WINDOW" default:"1m"`
	PlanChangeLimit  int           `envconfig:"KENTRA_RATE_LIMIT_PLAN_CHANGE" default:"10"`
	CheckoutLimit    int           `envconfig:"KENTRA_RATE_LIMIT_CHECKOUT" default:"10"`
	TrialLimit       int           `envconfig:"KENTRA_RATE_LIMIT_TRIAL" default:"5"`
	CancelLimit      int           `envconfig:"KENTRA_RATE_LIMIT_CANCEL" default:"5"`
	MemoryMaxClients int           `envconfig:"KENTRA_RATE_LIMIT_MEMORY_MAX_CLIENTS" default:"10000"`
}

// UseRedis reports whether limiter windows should be shared through redis.
func (r RateLimitConfig) UseRedis() bool {
	return strings.EqualFold(strings.TrimSpace(r.Backend), RateLimitBackendRedis)
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"KENTRA_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"KENTRA_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"KENTRA_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"KENTRA_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BillingTopic             string `envconfig:"KENTRA_PUBSUB_BILLING_TOPIC" required:"true"`
	NotificationTopic        string `envconfig:"KENTRA_PUBSUB_NOTIFICATION_TOPIC" default:"kentra-notification-requests"`
	NotificationSubscription string `envconfig:"KENTRA_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"KENTRA_STRIPE_API_KEY"`
	Secret         string        `envconfig:"KENTRA_STRIPE_SECRET"`
	Env            string        `envconfig:"KENTRA_STRIPE_ENV" default:"test"`
	SuccessURL     string        `envconfig:"KENTRA_STRIPE_SUCCESS_URL" default:"https://kentra.com.mx/panel?checkout=success"`
	CancelURL      string        `envconfig:"KENTRA_STRIPE_CANCEL_URL" default:"https://kentra.com.mx/precios?checkout=canceled"`
	NetworkTimeout time.Duration `envconfig:"KENTRA_STRIPE_NETWORK_TIMEOUT" default:"20s"`
	WebhookTTL     time.Duration `envconfig:"KENTRA_STRIPE_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type BillingConfig struct {
	CooldownDays   int    `envconfig:"KENTRA_BILLING_COOLDOWN_DAYS" default:"30"`
	TrialDays      int    `envconfig:"KENTRA_BILLING_TRIAL_DAYS" default:"14"`
	TrialPlanName  string `envconfig:"KENTRA_BILLING_TRIAL_PLAN" default:"agente_trial"`
	TrialRole      string `envconfig:"KENTRA_BILLING_TRIAL_ROLE" default:"agent"`
	GraceDays      int    `envconfig:"KENTRA_BILLING_GRACE_DAYS" default:"7"`
	ReminderDays   []int  `envconfig:"KENTRA_BILLING_REMINDER_DAYS" default:"3,5,7"`
	Currency       string `envconfig:"KENTRA_BILLING_CURRENCY" default:"mxn"`
	ValidatePrices bool   `envconfig:"KENTRA_BILLING_VALIDATE_PRICES" default:"true"`
}

func (b BillingConfig) validate() error {
	if b.CooldownDays < 0 {
		return fmt.Errorf("%s must not be negative", EnvBillingCooldownDays)
	}
	if b.TrialDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvBillingTrialDays)
	}
	if b.GraceDays <= 0 {
		return fmt.Errorf("%s must be positive", EnvBillingGraceDays)
	}
	return nil
}

type ResilienceConfig struct {
	RetryMaxAttempts     int           `envconfig:"KENTRA_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialDelay    time.Duration `envconfig:"KENTRA_RETRY_INITIAL_DELAY" default:"1s"`
	RetryMaxDelay        time.Duration `envconfig:"KENTRA_RETRY_MAX_DELAY" default:"30s"`
	RetryMultiplier      float64       `envconfig:"KENTRA_RETRY_MULTIPLIER" default:"2"`
	BreakerFailures      int           `envconfig:"KENTRA_BREAKER_FAILURE_THRESHOLD" default:"5"`
	BreakerResetTimeout  time.Duration `envconfig:"KENTRA_BREAKER_RESET_TIMEOUT" default:"60s"`
	BreakerHalfOpenProbe int           `envconfig:"KENTRA_BREAKER_HALF_OPEN_MAX_ATTEMPTS" default:"3"`
}

type PlanCacheConfig struct {
	Size int           `envconfig:"KENTRA_PLAN_CACHE_SIZE" default:"64"`
	TTL  time.Duration `envconfig:"KENTRA_PLAN_CACHE_TTL" default:"5m"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"KENTRA_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"KENTRA_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"KENTRA_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	DunningSchedule      string        `envconfig:"KENTRA_CRON_DUNNING_SCHEDULE" default:"@every 1h"`
	ReconcileSchedule    string        `envconfig:"KENTRA_CRON_RECONCILE_SCHEDULE" default:"@every 15m"`
	TrialExpirySchedule  string        `envconfig:"KENTRA_CRON_TRIAL_EXPIRY_SCHEDULE" default:"@every 1h"`
	CounterResetSchedule string        `envconfig:"KENTRA_CRON_COUNTER_RESET_SCHEDULE" default:"5 0 1 * *"`
	RetentionSchedule    string        `envconfig:"KENTRA_CRON_OUTBOX_RETENTION_SCHEDULE" default:"@daily"`
	OutboxRetention      time.Duration `envconfig:"KENTRA_CRON_OUTBOX_RETENTION" default:"720h"`
	BatchSize            int           `envconfig:"KENTRA_CRON_BATCH_SIZE" default:"200"`
	LockTTL              time.Duration `envconfig:"KENTRA_CRON_LOCK_TTL" default:"10m"`
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

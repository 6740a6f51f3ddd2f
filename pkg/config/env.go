package config

const EnvPrefix = "KENTRA"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	RateLimitBackendRedis = "redis"
)

const (
	EnvAppEnv   = "KENTRA_APP_ENV"
	EnvPort     = "KENTRA_APP_PORT"
	EnvLogLevel = "KENTRA_LOG_LEVEL"

	EnvDBDSN  = "KENTRA_DB_DSN"
	EnvDBHost = "KENTRA_DB_HOST"
	EnvDBUser = "KENTRA_DB_USER"
	EnvDBName = "KENTRA_DB_NAME"

	EnvRedisURL = "KENTRA_REDIS_URL"

	EnvJWTSecret = "KENTRA_JWT_SECRET"
	EnvJWTIssuer = "KENTRA_JWT_ISSUER"

	EnvGCPProjectID = "KENTRA_GCP_PROJECT_ID"

	EnvPubSubBillingTopic      = "KENTRA_PUBSUB_BILLING_TOPIC"
	EnvPubSubNotificationTopic = "KENTRA_PUBSUB_NOTIFICATION_TOPIC"

	EnvStripeAPIKey = "KENTRA_STRIPE_API_KEY"
	EnvStripeSecret = "KENTRA_STRIPE_SECRET"

	EnvBillingCooldownDays = "KENTRA_BILLING_COOLDOWN_DAYS"
	EnvBillingTrialDays    = "KENTRA_BILLING_TRIAL_DAYS"
	EnvBillingGraceDays    = "KENTRA_BILLING_GRACE_DAYS"
	EnvBillingReminderDays = "KENTRA_BILLING_REMINDER_DAYS"

	EnvRateLimitBackend  = "KENTRA_RATE_LIMIT_BACKEND"
	EnvBreakerFailures   = "KENTRA_BREAKER_FAILURE_THRESHOLD"
	EnvRetryInitialDelay = "KENTRA_RETRY_INITIAL_DELAY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

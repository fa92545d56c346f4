package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "SOURCING"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	LockBackendLocal = "local"
	LockBackendRedis = "redis"
)

const (
	EnvAppEnv      = "SOURCING_APP_ENV"
	EnvPort        = "SOURCING_APP_PORT"
	EnvDBDSN       = "SOURCING_DB_DSN"
	EnvDBHost      = "SOURCING_DB_HOST"
	EnvDBUser      = "SOURCING_DB_USER"
	EnvDBName      = "SOURCING_DB_NAME"
	EnvRedisURL    = "SOURCING_REDIS_URL"
	EnvLockBackend = "SOURCING_LOCK_BACKEND"
	EnvFXRates     = "SOURCING_FX_RATES"
	EnvUseSQLite   = "SOURCING_USE_SQLITE"
	EnvOpTimeout   = "SOURCING_OP_TIMEOUT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

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
	Lock         LockConfig
	Engine       EngineConfig
	FX           FXConfig
	SMTP         SMTPConfig
	Notifier     NotifierConfig
	Diagnostics  DiagnosticsConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
		if cfg.DB.DSN == "" {
			cfg.DB.DSN = cfg.FeatureFlags.SQLitePath
		}
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Lock.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SOURCING_APP_ENV" required:"true"`
	Port         string `envconfig:"SOURCING_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"SOURCING_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"SOURCING_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"SOURCING_LOG_WARN_STACK" default:"false"`

	CORSOrigins    []string      `envconfig:"SOURCING_CORS_ORIGINS" default:"http://localhost:3000"`
	IdempotencyTTL time.Duration `envconfig:"SOURCING_IDEMPOTENCY_TTL" default:"24h"`
	ShutdownGrace  time.Duration `envconfig:"SOURCING_SHUTDOWN_GRACE" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SOURCING_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SOURCING_DB_DSN"`
	Driver string `envconfig:"SOURCING_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SOURCING_DB_HOST"`
	LegacyPort     int    `envconfig:"SOURCING_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SOURCING_DB_USER"`
	LegacyPassword string `envconfig:"SOURCING_DB_PASSWORD"`
	LegacyName     string `envconfig:"SOURCING_DB_NAME"`
	LegacySSLMode  string `envconfig:"SOURCING_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SOURCING_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SOURCING_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SOURCING_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SOURCING_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SOURCING_REDIS_URL"`
	Address      string        `envconfig:"SOURCING_REDIS_ADDR"`
	Password     string        `envconfig:"SOURCING_REDIS_PASSWORD"`
	DB           int           `envconfig:"SOURCING_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SOURCING_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SOURCING_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SOURCING_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SOURCING_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SOURCING_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

// LockConfig selects how winner selection is serialized per request.
type LockConfig struct {
	Backend     string        `envconfig:"SOURCING_LOCK_BACKEND" default:"local"`
	TTL         time.Duration `envconfig:"SOURCING_LOCK_TTL" default:"30s"`
	WaitTimeout time.Duration `envconfig:"SOURCING_LOCK_WAIT_TIMEOUT" default:"5s"`
	RetryEvery  time.Duration `envconfig:"SOURCING_LOCK_RETRY_EVERY" default:"50ms"`
}

// UsesRedis reports whether the distributed lock backend was requested.
func (l LockConfig) UsesRedis() bool {
	return strings.EqualFold(strings.TrimSpace(l.Backend), LockBackendRedis)
}

func (l LockConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(l.Backend)) {
	case LockBackendLocal, LockBackendRedis:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvLockBackend, LockBackendLocal, LockBackendRedis)
	}
}

// EngineConfig bounds every lifecycle operation.
type EngineConfig struct {
	OpTimeout        time.Duration `envconfig:"SOURCING_OP_TIMEOUT" default:"10s"`
	RetryMaxAttempts uint64        `envconfig:"SOURCING_RETRY_MAX_ATTEMPTS" default:"3"`
	RetryBaseDelay   time.Duration `envconfig:"SOURCING_RETRY_BASE_DELAY" default:"50ms"`
	RetryMaxDelay    time.Duration `envconfig:"SOURCING_RETRY_MAX_DELAY" default:"1s"`
}

// FXConfig lists the recorded conversion rates used by financial summaries.
// Rates use the form "GBP:EUR=1.17,USD:EUR=0.92".
type FXConfig struct {
	ReportingCurrency string `envconfig:"SOURCING_FX_REPORTING_CURRENCY" default:"EUR"`
	Rates             string `envconfig:"SOURCING_FX_RATES"`
}

type SMTPConfig struct {
	Host     string `envconfig:"SOURCING_SMTP_HOST"`
	Port     int    `envconfig:"SOURCING_SMTP_PORT" default:"587"`
	User     string `envconfig:"SOURCING_SMTP_USER"`
	Password string `envconfig:"SOURCING_SMTP_PASSWORD"`
	From     string `envconfig:"SOURCING_SMTP_FROM"`
}

// Enabled reports whether an SMTP relay is configured.
func (s SMTPConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

type NotifierConfig struct {
	BatchSize      int           `envconfig:"SOURCING_NOTIFIER_BATCH_SIZE" default:"50"`
	PollInterval   time.Duration `envconfig:"SOURCING_NOTIFIER_POLL_INTERVAL" default:"2s"`
	MaxAttempts    int           `envconfig:"SOURCING_NOTIFIER_MAX_ATTEMPTS" default:"10"`
	SendTimeout    time.Duration `envconfig:"SOURCING_NOTIFIER_SEND_TIMEOUT" default:"15s"`
	ConsoleBaseURL string        `envconfig:"SOURCING_CONSOLE_BASE_URL" default:"http://localhost:3000"`
}

type DiagnosticsConfig struct {
	Interval time.Duration `envconfig:"SOURCING_DIAGNOSTICS_INTERVAL" default:"1h"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool   `envconfig:"SOURCING_USE_SQLITE" default:"false"`
	SQLitePath  string `envconfig:"SOURCING_SQLITE_PATH" default:"sourcing.db"`
	AutoMigrate bool   `envconfig:"SOURCING_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if db.DSN != "" || useSQLite {
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

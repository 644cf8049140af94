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
	DB           DBConfig
	Redis        RedisConfig
	Moyasar      MoyasarConfig
	Orders       OrdersConfig
	Wallets      WalletsConfig
	Exchange     ExchangeConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"MUKHTABAR_APP_ENV" required:"true"`
	Port         string `envconfig:"MUKHTABAR_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MUKHTABAR_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MUKHTABAR_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MUKHTABAR_DB_DSN"`
	Driver string `envconfig:"MUKHTABAR_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MUKHTABAR_DB_HOST"`
	LegacyPort     int    `envconfig:"MUKHTABAR_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MUKHTABAR_DB_USER"`
	LegacyPassword string `envconfig:"MUKHTABAR_DB_PASSWORD"`
	LegacyName     string `envconfig:"MUKHTABAR_DB_NAME"`
	LegacySSLMode  string `envconfig:"MUKHTABAR_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MUKHTABAR_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MUKHTABAR_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MUKHTABAR_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MUKHTABAR_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MUKHTABAR_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MUKHTABAR_REDIS_ADDR"`
	Password     string        `envconfig:"MUKHTABAR_REDIS_PASSWORD"`
	DB           int           `envconfig:"MUKHTABAR_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MUKHTABAR_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MUKHTABAR_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MUKHTABAR_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MUKHTABAR_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MUKHTABAR_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// MoyasarConfig holds the payment-provider credentials. The core only fetches
// payments by id and verifies webhook signatures; everything else about the
// provider is out of scope.
type MoyasarConfig struct {
	APIKey         string        `envconfig:"MUKHTABAR_MOYASAR_API_KEY"`
	WebhookSecret  string        `envconfig:"MUKHTABAR_MOYASAR_WEBHOOK_SECRET"`
	BaseURL        string        `envconfig:"MUKHTABAR_MOYASAR_BASE_URL" default:"https://api.moyasar.com"`
	RequestTimeout time.Duration `envconfig:"MUKHTABAR_MOYASAR_REQUEST_TIMEOUT" default:"15s"`
	IdempotencyTTL time.Duration `envconfig:"MUKHTABAR_MOYASAR_IDEMPOTENCY_TTL" default:"720h"`
}

// OrdersConfig drives order total computation. Amounts are halalas.
type OrdersConfig struct {
	VATRate               string `envconfig:"MUKHTABAR_ORDERS_VAT_RATE" default:"0.15"`
	FreeShippingThreshold int64  `envconfig:"MUKHTABAR_ORDERS_FREE_SHIPPING_THRESHOLD" default:"50000"`
	ShippingFee           int64  `envconfig:"MUKHTABAR_ORDERS_SHIPPING_FEE" default:"2500"`
}

// WalletsConfig provides the default limits applied when a lab wallet is
// first provisioned. Amounts are halalas; zero means unlimited.
type WalletsConfig struct {
	DefaultDailyWithdrawal   int64 `envconfig:"MUKHTABAR_WALLETS_DAILY_WITHDRAWAL" default:"5000000"`
	DefaultMinimumWithdrawal int64 `envconfig:"MUKHTABAR_WALLETS_MINIMUM_WITHDRAWAL" default:"10000"`
	DefaultMaximumBalance    int64 `envconfig:"MUKHTABAR_WALLETS_MAXIMUM_BALANCE" default:"0"`
}

type ExchangeConfig struct {
	RequestTTL  time.Duration `envconfig:"MUKHTABAR_EXCHANGE_REQUEST_TTL" default:"168h"`
	ExchangeTTL time.Duration `envconfig:"MUKHTABAR_EXCHANGE_TTL" default:"336h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MUKHTABAR_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"MUKHTABAR_CRON_LOCK_TTL" default:"55m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MUKHTABAR_AUTO_MIGRATE" default:"false"`
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

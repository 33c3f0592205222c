package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SPLITTAB"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "SPLITTAB_APP_ENV"
	EnvDBDSN  = "SPLITTAB_DB_DSN"
	EnvDBHost = "SPLITTAB_DB_HOST"
	EnvDBUser = "SPLITTAB_DB_USER"
	EnvDBName = "SPLITTAB_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Claims       ClaimsConfig
	Feed         FeedConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Vision       VisionConfig
	Receipts     ReceiptsConfig
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
	Env          string `envconfig:"SPLITTAB_APP_ENV" required:"true"`
	Port         string `envconfig:"SPLITTAB_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SPLITTAB_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SPLITTAB_LOG_WARN_STACK" default:"false"`
	BaseURL      string `envconfig:"SPLITTAB_APP_BASE_URL" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SPLITTAB_DB_DSN"`
	Driver string `envconfig:"SPLITTAB_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SPLITTAB_DB_HOST"`
	LegacyPort     int    `envconfig:"SPLITTAB_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SPLITTAB_DB_USER"`
	LegacyPassword string `envconfig:"SPLITTAB_DB_PASSWORD"`
	LegacyName     string `envconfig:"SPLITTAB_DB_NAME"`
	LegacySSLMode  string `envconfig:"SPLITTAB_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SPLITTAB_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SPLITTAB_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SPLITTAB_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SPLITTAB_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SPLITTAB_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SPLITTAB_REDIS_ADDR"`
	Password     string        `envconfig:"SPLITTAB_REDIS_PASSWORD"`
	DB           int           `envconfig:"SPLITTAB_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SPLITTAB_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SPLITTAB_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SPLITTAB_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SPLITTAB_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SPLITTAB_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SPLITTAB_AUTO_MIGRATE" default:"false"`
}

// ClaimsConfig tunes the live-claim lifecycle.
type ClaimsConfig struct {
	LiveClaimTTL time.Duration `envconfig:"SPLITTAB_LIVE_CLAIM_TTL" default:"2m"`
}

// FeedConfig tunes the per-bill change feed.
type FeedConfig struct {
	ChannelPrefix     string        `envconfig:"SPLITTAB_FEED_CHANNEL_PREFIX" default:"feed"`
	KeepAliveInterval time.Duration `envconfig:"SPLITTAB_FEED_KEEPALIVE_INTERVAL" default:"25s"`
	SubscriberBuffer  int           `envconfig:"SPLITTAB_FEED_SUBSCRIBER_BUFFER" default:"16"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SPLITTAB_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SPLITTAB_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SPLITTAB_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName        string        `envconfig:"SPLITTAB_GCS_BUCKET_NAME"`
	UploadURLExpiry   time.Duration `envconfig:"SPLITTAB_GCS_UPLOAD_URL_EXPIRY" default:"15m"`
	DownloadURLExpiry time.Duration `envconfig:"SPLITTAB_GCS_DOWNLOAD_URL_EXPIRY" default:"1h"`
}

type PubSubConfig struct {
	ScanTopic        string `envconfig:"SPLITTAB_PUBSUB_SCAN_TOPIC" default:"receipt-scan-jobs"`
	ScanSubscription string `envconfig:"SPLITTAB_PUBSUB_SCAN_SUBSCRIPTION" default:"receipt-scan-worker"`
}

// VisionConfig points at the receipt-extraction model endpoint.
type VisionConfig struct {
	APIKey  string        `envconfig:"SPLITTAB_VISION_API_KEY"`
	BaseURL string        `envconfig:"SPLITTAB_VISION_BASE_URL" default:"https://api.openai.com/v1"`
	Model   string        `envconfig:"SPLITTAB_VISION_MODEL" default:"gpt-4o-mini"`
	Timeout time.Duration `envconfig:"SPLITTAB_VISION_TIMEOUT" default:"60s"`
}

type ReceiptsConfig struct {
	MaxUploadMB int `envconfig:"SPLITTAB_RECEIPT_MAX_UPLOAD_MB" default:"20"`
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

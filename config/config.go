package config

import (
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" env-default:"clover-sync"`
	Port                          int      `env:"PORT" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`

	// ERP (Novasoft) endpoints and credentials
	ERPAuthURL        string        `env:"ERP_AUTH_URL" env-default:"" validate:"required,url"`
	ERPItemsURL       string        `env:"ERP_ITEMS_URL" env-default:"" validate:"required,url"`
	ERPPricesURL      string        `env:"ERP_PRICES_URL" env-default:"" validate:"required,url"`
	ERPUsername       string        `env:"ERP_USERNAME" env-default:"" validate:"required"`
	ERPPassword       string        `env:"ERP_PASSWORD" env-default:"" validate:"required"`
	ERPBranch         string        `env:"ERP_BRANCH" env-default:"" validate:"required"`
	ERPWarehouse      string        `env:"ERP_WAREHOUSE" env-default:"" validate:"required"`
	ERPCompany        string        `env:"ERP_COMPANY" env-default:""`
	ERPItemsKey       string        `env:"ERP_ITEMS_KEY" env-default:"items"`
	ERPPricesKey      string        `env:"ERP_PRICES_KEY" env-default:"precios"`
	ERPRequestTimeout time.Duration `env:"ERP_REQUEST_TIMEOUT" env-default:"30s"`

	// Catalog store (PostgreSQL)
	DatabaseDriver              string        `env:"DB_DRIVER" env-default:"postgres"`
	DatabaseHost                string        `env:"DB_HOST" env-default:"" validate:"required"`
	DatabasePort                string        `env:"DB_PORT" env-default:"5432"`
	DatabaseUserName            string        `env:"DB_USER_NAME" env-default:"" validate:"required"`
	DatabasePassword            string        `env:"DB_PASSWORD" env-default:""`
	DatabaseName                string        `env:"DB_NAME" env-default:"catalog"`
	DatabaseSSLMode             string        `env:"DB_SQL_MODE" env-default:"disable"`
	DatabaseReconnectRetryCount int           `env:"DB_RECONNECT_RETRY_COUNT" env-default:"3"`
	DatabaseMaxOpenConns        int           `env:"DB_MAX_OPEN_CONNS" env-default:"100"`
	DatabaseMaxIdleConns        int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime     time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationFolderPath string        `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	DatabaseMigrationVersion    int           `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce      int           `env:"DB_MIGRATION_FORCE" env-default:"0"`

	// Catalog schema
	CatalogTablePrefix string `env:"CATALOG_TABLE_PREFIX" env-default:"wp_"`
	CatalogCachePrefix string `env:"CATALOG_CACHE_PREFIX" env-default:"wc"`

	// Reconciliation
	CatalogPageSize  int `env:"CATALOG_PAGE_SIZE" env-default:"500"`
	ApplyChunkSize   int `env:"APPLY_CHUNK_SIZE" env-default:"250"`
	ApplyConcurrency int `env:"APPLY_CONCURRENCY" env-default:"4"`

	// Scheduler (internal trigger; production runs are triggered externally)
	SchedulerEnabled bool          `env:"SCHEDULER_ENABLED" env-default:"false"`
	SyncInterval     time.Duration `env:"SYNC_INTERVAL" env-default:"30m"`

	// Redis (run single-flight lock)
	RedisHost     string        `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int           `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string        `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int           `env:"REDIS_DB" env-default:"0"`
	RunLockTTL    time.Duration `env:"RUN_LOCK_TTL" env-default:"30m"`

	// Kafka (run event producer)
	KafkaEnabled       bool   `env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers       string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaRunEventTopic string `env:"KAFKA_RUN_EVENT_TOPIC" env-default:"catalog-sync-events"`

	// Auth
	AuthEnabled   bool   `env:"AUTH_ENABLED" env-default:"false"`
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	AuthClientID  string `env:"AUTH_CLIENT_ID" env-default:""`

	// Tracing
	OTLPEnabled  bool   `env:"OTLP_ENABLED" env-default:"false"`
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	OTLPInsecure bool   `env:"OTLP_INSECURE" env-default:"true"`
}

// Load reads the environment (and an optional .env file) into a Config and
// validates the fields the engine cannot run without.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

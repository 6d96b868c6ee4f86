package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	App      AppConfig
	Auth     AuthConfig
	LedgerDB LedgerDBConfig
	Cache    CacheConfig
	Rates    RatesConfig
	Notify   NotifyConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	CORSOrigins     []string      `envconfig:"CORS_ORIGINS" default:"*"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"accountmart-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// AuthConfig holds session and operator credential settings.
type AuthConfig struct {
	JWTSecret        string        `envconfig:"JWT_SECRET" default:""`
	SessionTTL       time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	BcryptCost       int           `envconfig:"BCRYPT_COST" default:"10"`
	OperatorUsername string        `envconfig:"OPERATOR_USERNAME" default:"admin"`
	OperatorPassword string        `envconfig:"OPERATOR_PASSWORD" default:""`
	OperatorEmail    string        `envconfig:"OPERATOR_EMAIL" default:"admin@platform.com"`
}

// LedgerDBConfig holds ledger store settings.
type LedgerDBConfig struct {
	Type string `envconfig:"LEDGER_DB_TYPE" default:"sqlite"` // sqlite, postgres, mysql, mongodb or memory
	Path string `envconfig:"LEDGER_DB_PATH" default:"./data/ledger.db"`
	// PostgreSQL / MySQL settings
	Host     string `envconfig:"LEDGER_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"LEDGER_DB_PORT" default:"0"`
	Name     string `envconfig:"LEDGER_DB_NAME" default:"accountmart"`
	User     string `envconfig:"LEDGER_DB_USER" default:""`
	Password string `envconfig:"LEDGER_DB_PASS" default:""`
	SSLMode  string `envconfig:"LEDGER_DB_SSLMODE" default:"disable"`
	// MongoDB settings
	MongoURI      string `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"accountmart"`
}

// CacheConfig holds cache and Redis settings.
type CacheConfig struct {
	Type string `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis

	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	RedisPrefix   string `envconfig:"REDIS_PREFIX" default:"accountmart"`
}

// RatesConfig holds Rate Oracle settings.
type RatesConfig struct {
	URL             string        `envconfig:"RATE_API_URL" default:"https://api.exchangerate-api.com/v4/latest/USD"`
	Target          string        `envconfig:"RATE_TARGET_CURRENCY" default:"TRY"`
	Fallback        string        `envconfig:"RATE_FALLBACK" default:"34.5"`
	Timeout         time.Duration `envconfig:"RATE_TIMEOUT" default:"3s"`
	CacheTTL        time.Duration `envconfig:"RATE_CACHE_TTL" default:"5m"`
	RefreshInterval time.Duration `envconfig:"RATE_REFRESH_INTERVAL" default:"4m"`
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	TelegramBaseURL  string        `envconfig:"TELEGRAM_API_URL" default:"https://api.telegram.org"`
	TelegramBotToken string        `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	TelegramChatID   string        `envconfig:"TELEGRAM_CHAT_ID" default:""`
	TelegramTimeout  time.Duration `envconfig:"TELEGRAM_TIMEOUT" default:"5s"`
	QueueType        string        `envconfig:"NOTIFY_QUEUE_TYPE" default:"memory"` // memory or redis
	QueueSize        int           `envconfig:"NOTIFY_QUEUE_SIZE" default:"256"`
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PostgresDSN returns the PostgreSQL connection string.
func (l *LedgerDBConfig) PostgresDSN() string {
	port := l.Port
	if port == 0 {
		port = 5432
	}
	user := l.User
	if user == "" {
		user = "postgres"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		user, l.Password, l.Host, port, l.Name, l.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (l *LedgerDBConfig) MySQLDSN() string {
	port := l.Port
	if port == 0 {
		port = 3306
	}
	user := l.User
	if user == "" {
		user = "root"
	}
	c := mysql.NewConfig()
	c.User = user
	c.Passwd = l.Password
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%d", l.Host, port)
	c.DBName = l.Name
	return c.FormatDSN()
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// NeedsRedis reports whether any component is configured to use Redis.
func (c *Config) NeedsRedis() bool {
	return strings.EqualFold(c.Cache.Type, "redis") || strings.EqualFold(c.Notify.QueueType, "redis")
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Validate checks settings that have no safe default.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		if c.App.IsProduction() {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		c.Auth.JWTSecret = "accountmart-dev-secret"
	}
	switch strings.ToLower(c.LedgerDB.Type) {
	case "sqlite", "postgres", "postgresql", "mysql", "mongodb", "mongo", "memory":
	default:
		return fmt.Errorf("unknown LEDGER_DB_TYPE %q", c.LedgerDB.Type)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

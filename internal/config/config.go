package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/samber/oops"
)

type Config struct {
	ServerAddr string
	LogLevel   string

	DBDriver    string
	DatabaseURL string
	AutoMigrate bool

	JWTSecret       []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	BcryptCost      int

	RefreshStore string
	RedisAddr    string
	RedisPrefix  string

	KafkaBrokers []string
	KafkaTopic   string

	CSRFEnabled bool
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	StoreSQL   = "sql"
	StoreRedis = "redis"
)

// Load reads .env when present and then the process environment.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("Notice: .env file not loaded: %v. Using system environment variables", err)
	}

	return Config{
		ServerAddr: EnvDefault("SERVER_ADDR", ":8080"),
		LogLevel:   EnvDefault("LOG_LEVEL", "info"),

		DBDriver:    EnvDefault("DB_DRIVER", DriverPostgres),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AutoMigrate: EnvBoolDefault("AUTO_MIGRATE", false),

		JWTSecret:       []byte(os.Getenv("JWT_SECRET")),
		AccessTokenTTL:  EnvDurationDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: EnvDurationDefault("REFRESH_TOKEN_TTL", 15*24*time.Hour),
		BcryptCost:      EnvIntDefault("BCRYPT_COST", 0),

		RefreshStore: EnvDefault("REFRESH_STORE", StoreSQL),
		RedisAddr:    EnvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPrefix:  EnvDefault("REDIS_PREFIX", "authsession"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvDefault("KAFKA_TOPIC", "account_events"),

		CSRFEnabled: EnvBoolDefault("CSRF_ENABLED", true),
	}
}

func (c Config) Validate() error {
	invalid := oops.Code("CONFIG_INVALID")

	if len(c.JWTSecret) == 0 {
		return invalid.With("field", "JWT_SECRET").Errorf("missing required env JWT_SECRET")
	}
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return invalid.With("field", "DB_DRIVER").Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return invalid.With("field", "DATABASE_URL").Errorf("missing required env DATABASE_URL")
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return invalid.With("field", "TOKEN_TTL").Errorf("token lifetimes must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return invalid.With("field", "ACCESS_TOKEN_TTL").
			Errorf("access token lifetime %s must be shorter than refresh lifetime %s", c.AccessTokenTTL, c.RefreshTokenTTL)
	}
	switch c.RefreshStore {
	case StoreSQL:
	case StoreRedis:
		if c.RedisAddr == "" {
			return invalid.With("field", "REDIS_ADDR").Errorf("missing required env REDIS_ADDR")
		}
	default:
		return invalid.With("field", "REFRESH_STORE").Errorf("unsupported REFRESH_STORE %q", c.RefreshStore)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type Config struct {
	ServerPort int
	Server     ServerConfig
	Database   DatabaseConfig
	Auth       AuthConfig
	AI         AIConfig
	Log        LogConfig
	Redis      RedisConfig
	MQ         MQConfig
	Storage    StorageConfig
}

type ServerConfig struct {
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	CORSOrigins     []string
	RateLimit       int
	AuthRateLimit   int
	RateLimitWindow time.Duration
}

type DatabaseConfig struct {
	Driver     string
	SQLitePath string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	UseSSL     bool
}

type AuthConfig struct {
	JWTSecret        string
	TokenTTL         time.Duration
	SessionTTL       time.Duration
	BcryptCost       int
	CleanupInterval  time.Duration
	MaxLoginAttempts int
	LockoutDuration  time.Duration
}

type AIConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MQConfig struct {
	Backend       string
	EventsChannel string
	RabbitMQ      RabbitMQConfig
	PubSub        PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	ExchangeDurable bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type StorageConfig struct {
	Backend string
	Minio   MinioConfig
	GCS     GCSConfig
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Driver:     strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		SQLitePath: getEnv("DB_PATH", "data/calmspace.db"),
		Host:       getEnv("DB_HOST", "localhost"),
		Port:       getEnvInt("DB_PORT", 5432),
		User:       getEnv("DB_USER", "calmspace"),
		Password:   getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "calmspace_db"),
		UseSSL:     getEnvBool("DB_SSL", false),
	}

	return Config{
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		Server: ServerConfig{
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:  getEnvDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			CORSOrigins:     getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
			RateLimit:       getEnvInt("RATE_LIMIT", 100),
			AuthRateLimit:   getEnvInt("AUTH_RATE_LIMIT", 20),
			RateLimitWindow: getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Database: dbConfig,
		Auth: AuthConfig{
			JWTSecret:        strings.TrimSpace(getEnv("JWT_SECRET", "")),
			TokenTTL:         getEnvDuration("JWT_EXPIRES_IN", 7*24*time.Hour),
			SessionTTL:       getEnvDuration("SESSION_TTL", 7*24*time.Hour),
			BcryptCost:       getEnvInt("BCRYPT_COST", 12),
			CleanupInterval:  getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour),
			MaxLoginAttempts: getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
			LockoutDuration:  getEnvDuration("LOGIN_LOCKOUT_DURATION", 30*time.Minute),
		},
		AI: AIConfig{
			APIKey:    getEnv("AI_API_KEY", ""),
			Model:     getEnv("AI_MODEL", "gpt-3.5-turbo"),
			BaseURL:   getEnv("AI_BASE_URL", ""),
			Timeout:   getEnvDuration("AI_TIMEOUT", 30*time.Second),
			MaxTokens: getEnvInt("AI_MAX_TOKENS", 200),
		},
		Log: LogConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			File:       getEnv("LOG_FILE", ""),
			MaxSizeMB:  getEnvInt("LOG_FILE_MAX_SIZE_MB", 100),
			MaxBackups: getEnvInt("LOG_FILE_MAX_BACKUPS", 5),
			MaxAgeDays: getEnvInt("LOG_FILE_MAX_AGE_DAYS", 28),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MQ: MQConfig{
			Backend:       strings.ToLower(getEnv("MQ_BACKEND", "")),
			EventsChannel: getEnv("MQ_EVENTS_CHANNEL", "calmspace.events"),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				ExchangeDurable: getEnvBool("RABBITMQ_EXCHANGE_DURABLE", true),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
		},
		Storage: StorageConfig{
			Backend: strings.ToLower(getEnv("STORAGE_BACKEND", "")),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "calmspace-exports"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
		},
	}
}

// Validate reports configuration that the server cannot start with.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Database.SQLitePath) == "" {
			return errors.New("DB_PATH is required for the sqlite3 driver")
		}
	case DriverPostgres:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Auth.TokenTTL <= 0 || c.Auth.SessionTTL <= 0 {
		return errors.New("JWT_EXPIRES_IN and SESSION_TTL must be positive")
	}
	if c.Auth.BcryptCost < 10 {
		return errors.New("BCRYPT_COST must be at least 10")
	}
	switch c.MQ.Backend {
	case "", "none", "rabbitmq", "pubsub":
	default:
		return fmt.Errorf("unsupported MQ_BACKEND %q", c.MQ.Backend)
	}
	switch c.Storage.Backend {
	case "", "none", "minio", "gcs":
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90m") and the "<n>d" day shorthand.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueStr = strings.TrimSpace(valueStr)
	if days, ok := strings.CutSuffix(valueStr, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return defaultValue
		}
		return time.Duration(n) * 24 * time.Hour
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var values []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}

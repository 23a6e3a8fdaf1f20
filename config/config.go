package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env        string        `env:"ENV" envDefault:"prod"`
	ServerPort int           `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel   string        `env:"LOG_LEVEL" envDefault:"info"`
	JWT        JWTConfig
	Database   DatabaseConfig
	Storage    StorageConfig
	Queue      QueueConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig

	// OverdueAfter is the age at which an unresolved complaint turns critical.
	OverdueAfter time.Duration `env:"OVERDUE_AFTER" envDefault:"48h"`
}

type JWTConfig struct {
	Secret   string        `env:"JWT_SECRET"`
	TokenTTL time.Duration `env:"JWT_TOKEN_TTL" envDefault:"24h"`
}

type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"hazardwatch"`
	Password string `env:"DB_PASSWORD" envDefault:"password"`
	DBName   string `env:"DB_NAME" envDefault:"hazardwatch_db"`
	UseSSL   bool   `env:"DB_USE_SSL" envDefault:"false"`
}

// URL returns the postgres connection URL for the database.
func (d DatabaseConfig) URL() string {
	sslmode := "disable"
	if d.UseSSL {
		sslmode = "require"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		User:   url.UserPassword(d.User, d.Password),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

// StorageConfig selects the object store for complaint photos.
type StorageConfig struct {
	// Backend is one of "minio", "gcs" or "none".
	Backend string `env:"STORAGE_BACKEND" envDefault:"none"`

	// PublicBaseURL is prefixed to object keys to form image references.
	PublicBaseURL string `env:"STORAGE_PUBLIC_BASE_URL"`

	// MaxPhotoBytes caps a single photo upload.
	MaxPhotoBytes int64 `env:"STORAGE_MAX_PHOTO_BYTES" envDefault:"10485760"`

	Minio MinioConfig
	GCS   GCSConfig
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"complaint-photos"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"GCS_BUCKET"`
	ProjectID       string `env:"GCS_PROJECT_ID"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

// QueueConfig selects the broker complaint events are published to.
type QueueConfig struct {
	// Backend is one of "rabbitmq", "pubsub" or "none".
	Backend  string `env:"QUEUE_BACKEND" envDefault:"none"`
	Channel  string `env:"QUEUE_CHANNEL" envDefault:"complaint-events"`
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	QueueDurable    bool   `env:"RABBITMQ_QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"RABBITMQ_QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"RABBITMQ_PREFETCH_COUNT" envDefault:"10"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string `env:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"PUBSUB_SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDRESS"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// RateLimitConfig caps how many complaints one user may submit per window
// and how fast one address may hit the auth endpoints.
type RateLimitConfig struct {
	Submissions int           `env:"RATE_LIMIT_SUBMISSIONS" envDefault:"20"`
	Window      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"24h"`
	KeyPrefix   string        `env:"RATE_LIMIT_KEY_PREFIX" envDefault:"complaint-submissions"`
	AuthRPS     float64       `env:"RATE_LIMIT_AUTH_RPS" envDefault:"1"`
	AuthBurst   int           `env:"RATE_LIMIT_AUTH_BURST" envDefault:"5"`
}

func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = 8080
	}
	return cfg, nil
}

package config

import (
	"os"
	"strings"
	"time"

	"github.com/gogotex/gogotex/backend/go-collab/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Keycloak  KeycloakConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Collab    CollabConfig
	MinIO     MinIOConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
	// ConnectAttempts is how many times startup tries to reach MongoDB.
	ConnectAttempts int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type KeycloakConfig struct {
	URL          string
	Realm        string
	ClientID     string
	ClientSecret string
}

type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// CollabConfig tunes the realtime collaboration endpoint.
type CollabConfig struct {
	Path            string
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	SendBuffer      int
	MaxMessageBytes int64
	MailboxSize     int
	FlushTimeout    time.Duration
	EventRPS        float64
	EventBurst      int
	AllowedOrigins  []string
	PresenceTTL     time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "9091")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 15)
	viper.SetDefault("MONGODB_DATABASE", "gogotex")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("MONGODB_CONNECT_ATTEMPTS", 5)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_USE_REDIS", false)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	viper.SetDefault("COLLAB_PATH", "/ws")
	viper.SetDefault("COLLAB_PING_INTERVAL", 25)
	viper.SetDefault("COLLAB_PONG_WAIT", 60)
	viper.SetDefault("COLLAB_WRITE_WAIT", 10)
	viper.SetDefault("COLLAB_SEND_BUFFER", 64)
	viper.SetDefault("COLLAB_MAX_MESSAGE_BYTES", 1<<20)
	viper.SetDefault("COLLAB_MAILBOX_SIZE", 128)
	viper.SetDefault("COLLAB_FLUSH_TIMEOUT", 10)
	viper.SetDefault("COLLAB_EVENT_RPS", 20.0)
	viper.SetDefault("COLLAB_EVENT_BURST", 40)
	viper.SetDefault("COLLAB_PRESENCE_TTL", 120)
	viper.SetDefault("MINIO_BUCKET", "gogotex")

	cfg := &Config{
		Server: ServerConfig{
			Port:            viper.GetString("SERVER_PORT"),
			Host:            viper.GetString("SERVER_HOST"),
			Environment:     viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: time.Duration(viper.GetInt("SERVER_SHUTDOWN_TIMEOUT")) * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:             viper.GetString("MONGODB_URI"),
			Database:        viper.GetString("MONGODB_DATABASE"),
			Timeout:         time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
			ConnectAttempts: viper.GetInt("MONGODB_CONNECT_ATTEMPTS"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Keycloak: KeycloakConfig{
			URL:          viper.GetString("KEYCLOAK_URL"),
			Realm:        viper.GetString("KEYCLOAK_REALM"),
			ClientID:     viper.GetString("KEYCLOAK_CLIENT_ID"),
			ClientSecret: viper.GetString("KEYCLOAK_CLIENT_SECRET"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			Issuer:         viper.GetString("JWT_ISSUER"),
			AccessTokenTTL: time.Duration(viper.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Collab: CollabConfig{
			Path:            viper.GetString("COLLAB_PATH"),
			PingInterval:    time.Duration(viper.GetInt("COLLAB_PING_INTERVAL")) * time.Second,
			PongWait:        time.Duration(viper.GetInt("COLLAB_PONG_WAIT")) * time.Second,
			WriteWait:       time.Duration(viper.GetInt("COLLAB_WRITE_WAIT")) * time.Second,
			SendBuffer:      viper.GetInt("COLLAB_SEND_BUFFER"),
			MaxMessageBytes: viper.GetInt64("COLLAB_MAX_MESSAGE_BYTES"),
			MailboxSize:     viper.GetInt("COLLAB_MAILBOX_SIZE"),
			FlushTimeout:    time.Duration(viper.GetInt("COLLAB_FLUSH_TIMEOUT")) * time.Second,
			EventRPS:        viper.GetFloat64("COLLAB_EVENT_RPS"),
			EventBurst:      viper.GetInt("COLLAB_EVENT_BURST"),
			AllowedOrigins:  splitList(viper.GetString("COLLAB_ALLOWED_ORIGINS")),
			PresenceTTL:     time.Duration(viper.GetInt("COLLAB_PRESENCE_TTL")) * time.Second,
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
	}

	// Basic validation
	if cfg.JWT.Secret == "" && cfg.Keycloak.URL == "" {
		logger.Warn("JWT_SECRET is not set and Keycloak is not configured; every realtime connection will be refused")
	}
	if cfg.Collab.PingInterval >= cfg.Collab.PongWait {
		// pings must arrive before the read deadline fires
		cfg.Collab.PingInterval = cfg.Collab.PongWait * 9 / 10
	}

	return cfg, nil
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

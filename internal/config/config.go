package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"canvas-backend/internal/logx"
)

// Config holds all application settings.
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Auth      AuthConfig
	CORS      CORSConfig
	Redis     RedisConfig
	Sync      SyncConfig
	Log       LogConfig
}

// ServerConfig HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// WebSocketConfig WebSocket transport settings.
type WebSocketConfig struct {
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// AuthConfig token validation settings.
type AuthConfig struct {
	JWTSecret         string
	AccessTokenExpiry time.Duration
}

// CORSConfig CORS settings.
type CORSConfig struct {
	AllowOrigins string
	AllowHeaders string
}

// RedisConfig presence mirror settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// SyncConfig tunables for the collaboration core.
type SyncConfig struct {
	SaveDebounce    time.Duration // quiet period before a dirty document is flushed
	HistoryCapacity int
	DefaultGridSize float64
}

// LogConfig logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logx.L().Info("no .env file found, using environment variables")
	}

	jwtSecret := getRequiredEnv("JWT_SECRET")
	if jwtSecret == "change-this-secret-in-production" {
		logx.L().Fatal("JWT_SECRET must be changed from default value in production")
	}

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8080"),
			ReadTimeout:  getDuration("READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("IDLE_TIMEOUT", 120*time.Second),
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:   getInt("WS_READ_BUFFER_SIZE", 16*1024),
			WriteBufferSize:  getInt("WS_WRITE_BUFFER_SIZE", 16*1024),
			HandshakeTimeout: getDuration("WS_HANDSHAKE_TIMEOUT", 10*time.Second),
			WriteTimeout:     getDuration("WS_WRITE_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getDuration("ACCESS_TOKEN_EXPIRY", 1*time.Hour),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnv("CORS_ALLOW_ORIGINS", "*"),
			AllowHeaders: getEnv("CORS_ALLOW_HEADERS", "Origin, Content-Type, Accept, Authorization"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
			Enabled:  getBool("REDIS_ENABLED", false),
		},
		Sync: SyncConfig{
			SaveDebounce:    getDuration("SYNC_SAVE_DEBOUNCE", 2*time.Second),
			HistoryCapacity: getInt("SYNC_HISTORY_CAPACITY", 50),
			DefaultGridSize: float64(getInt("SYNC_GRID_SIZE", 25)),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}
}

func getRequiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		logx.L().Fatalf("required environment variable %s is not set", key)
	}
	return value
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		// bare numbers are seconds
		if !strings.ContainsAny(value, "smh") {
			if secs, err := strconv.Atoi(value); err == nil {
				return time.Duration(secs) * time.Second
			}
		}
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

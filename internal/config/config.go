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

// Config aggregates runtime configuration for the scan terminal.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Camera       CameraConfig
	Scanner      ScannerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
	ConnectRetries int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level  string
	Format string
}

// AuthConfig defines operator authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	OperatorPINHash       string
}

// NotificationConfig holds notification endpoints.
type NotificationConfig struct {
	WebhookURL       string
	WebhookTimeoutMS int
	QueueSize        int
}

// CameraConfig selects the capture device.
type CameraConfig struct {
	Facing      string
	RearDevice  string
	FrontDevice string
	Width       int
	Height      int
}

// ScannerConfig tunes the scan loop and the action state machine.
type ScannerConfig struct {
	MerchantID         string
	PollIntervalMS     int
	ResetDelayMS       int
	LookupTimeoutMS    int
	ActionLockTTLSec   int
	ProgramCacheTTLSec int
	StatsIntervalSec   int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "loyalty-scanner"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "127.0.0.1"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 4)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 1)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnectRetries: getEnvAsInt("POSTGRES_CONNECT_RETRIES", 5),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 480),
			OperatorPINHash:       os.Getenv("AUTH_OPERATOR_PIN_HASH"),
		},
		Notification: NotificationConfig{
			WebhookURL:       getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeoutMS: getEnvAsInt("NOTIFY_WEBHOOK_TIMEOUT_MS", 3000),
			QueueSize:        getEnvAsInt("NOTIFY_QUEUE_SIZE", 64),
		},
		Camera: CameraConfig{
			Facing:      strings.ToLower(getEnv("CAMERA_FACING", "rear")),
			RearDevice:  getEnv("CAMERA_REAR_DEVICE", "/dev/video0"),
			FrontDevice: getEnv("CAMERA_FRONT_DEVICE", "/dev/video1"),
			Width:       getEnvAsInt("CAMERA_WIDTH", 640),
			Height:      getEnvAsInt("CAMERA_HEIGHT", 480),
		},
		Scanner: ScannerConfig{
			MerchantID:         os.Getenv("MERCHANT_ID"),
			PollIntervalMS:     getEnvAsInt("SCANNER_POLL_INTERVAL_MS", 33),
			ResetDelayMS:       getEnvAsInt("SCANNER_RESET_DELAY_MS", 4000),
			LookupTimeoutMS:    getEnvAsInt("SCANNER_LOOKUP_TIMEOUT_MS", 5000),
			ActionLockTTLSec:   getEnvAsInt("SCANNER_ACTION_LOCK_TTL_SECONDS", 30),
			ProgramCacheTTLSec: getEnvAsInt("SCANNER_PROGRAM_CACHE_TTL_SECONDS", 60),
			StatsIntervalSec:   getEnvAsInt("SCANNER_STATS_INTERVAL_SECONDS", 300),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the terminal cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Scanner.MerchantID) == "" {
		return errors.New("MERCHANT_ID is required")
	}
	if c.Camera.Facing != "rear" && c.Camera.Facing != "front" {
		return fmt.Errorf("invalid CAMERA_FACING %q (must be rear or front)", c.Camera.Facing)
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		return fmt.Errorf("invalid camera resolution %dx%d", c.Camera.Width, c.Camera.Height)
	}
	if c.Scanner.PollIntervalMS <= 0 {
		return fmt.Errorf("invalid SCANNER_POLL_INTERVAL_MS %d", c.Scanner.PollIntervalMS)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func (s ScannerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

func (s ScannerConfig) ResetDelay() time.Duration {
	return time.Duration(s.ResetDelayMS) * time.Millisecond
}

func (s ScannerConfig) LookupTimeout() time.Duration {
	return time.Duration(s.LookupTimeoutMS) * time.Millisecond
}

func (s ScannerConfig) ActionLockTTL() time.Duration {
	return time.Duration(s.ActionLockTTLSec) * time.Second
}

func (s ScannerConfig) ProgramCacheTTL() time.Duration {
	return time.Duration(s.ProgramCacheTTLSec) * time.Second
}

// WebhookTimeout bounds one webhook delivery.
func (n NotificationConfig) WebhookTimeout() time.Duration {
	return time.Duration(n.WebhookTimeoutMS) * time.Millisecond
}

// StatsInterval is how often the stats reporter logs; zero disables it.
func (s ScannerConfig) StatsInterval() time.Duration {
	return time.Duration(s.StatsIntervalSec) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

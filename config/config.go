package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultServerPort          = 8080
	defaultPaymentAPIURL       = "https://api.mercadopago.com"
	defaultPaymentTimeout      = 15 * time.Second
	defaultPaymentMaxAttempts  = 1
	defaultPaymentSyncInterval = 2 * time.Minute
	defaultRedisChannel        = "tcg:live-status"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL    string
	JWTSecretKey   string
	ServerPort     int
	LogLevel       slog.Level
	AllowedOrigins []string

	// Mercado Pago. Пустой токен не мешает старту: ошибка конфигурации
	// всплывает при первой попытке создать платеж.
	MercadoPagoAccessToken string
	PaymentAPIURL          string
	PaymentTimeout         time.Duration
	PaymentMaxAttempts     int
	PaymentSyncInterval    time.Duration

	// Redis включает ретрансляцию событий между инстансами.
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	// Cloudflare R2 для архива результатов. Опционально.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// R2Enabled сообщает, заданы ли все параметры R2.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intFromEnv("SERVER_PORT", defaultServerPort)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	var level slog.Level
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL environment variable: %w", err)
		}
	}

	paymentTimeout, err := durationFromEnv("PAYMENT_TIMEOUT", defaultPaymentTimeout)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := intFromEnv("PAYMENT_MAX_ATTEMPTS", defaultPaymentMaxAttempts)
	if err != nil {
		return nil, err
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("PAYMENT_MAX_ATTEMPTS must be at least 1, got %d", maxAttempts)
	}
	syncInterval, err := durationFromEnv("PAYMENT_SYNC_INTERVAL", defaultPaymentSyncInterval)
	if err != nil {
		return nil, err
	}

	redisDB, err := intFromEnv("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:            dbURL,
		JWTSecretKey:           jwtKey,
		ServerPort:             port,
		LogLevel:               level,
		AllowedOrigins:         splitList(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:5173")),
		MercadoPagoAccessToken: os.Getenv("MERCADO_PAGO_ACCESS_TOKEN"),
		PaymentAPIURL:          strings.TrimRight(getEnvOrDefault("PAYMENT_API_URL", defaultPaymentAPIURL), "/"),
		PaymentTimeout:         paymentTimeout,
		PaymentMaxAttempts:     maxAttempts,
		PaymentSyncInterval:    syncInterval,
		RedisURL:               os.Getenv("REDIS_URL"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                redisDB,
		RedisChannel:           getEnvOrDefault("REDIS_CHANNEL", defaultRedisChannel),
		R2AccountID:            os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:          os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey:      os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:           os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:        os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func intFromEnv(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func durationFromEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

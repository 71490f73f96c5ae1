package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicBaseURL   string
}

// FallbackDefaults применяются, когда оператор не передал свою конфигурацию запасного алгоритма.
type FallbackDefaults struct {
	Enabled          bool
	TriggerThreshold int
	Strategy         string
	NotifyAdmins     bool
	AdminEmails      []string
}

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL    string
	DBMaxOpenConns int
	DBMaxIdleConns int
	JWTSecretKey   string
	ServerPort     int

	PairingServiceURL    string
	PairingServiceAPIKey string
	PairingMaxAttempts   int
	PairingRetryDelay    time.Duration

	MonitorInterval time.Duration
	RecheckDelay    time.Duration

	RedisURL           string
	CORSAllowedOrigins []string

	SMTP     SMTPConfig
	R2       R2Config
	Fallback FallbackDefaults
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

	pairingURL := os.Getenv("PAIRING_SERVICE_URL")
	if pairingURL == "" {
		return nil, fmt.Errorf("PAIRING_SERVICE_URL environment variable is not set")
	}

	port, err := getInt("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	cfg := &Config{
		DatabaseURL:          dbURL,
		JWTSecretKey:         jwtKey,
		ServerPort:           port,
		PairingServiceURL:    pairingURL,
		PairingServiceAPIKey: os.Getenv("PAIRING_SERVICE_API_KEY"),
		RedisURL:             os.Getenv("REDIS_URL"),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		R2: R2Config{
			AccountID:       os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			BucketName:      os.Getenv("R2_BUCKET_NAME"),
			PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
		Fallback: FallbackDefaults{
			Strategy:    getString("FALLBACK_STRATEGY", "ranking_based"),
			AdminEmails: getList("FALLBACK_ADMIN_EMAILS", nil),
		},
	}

	if cfg.DBMaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", 25); err != nil {
		return nil, err
	}
	if cfg.DBMaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", 25); err != nil {
		return nil, err
	}
	if cfg.PairingMaxAttempts, err = getInt("PAIRING_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}
	if cfg.PairingRetryDelay, err = getDuration("PAIRING_RETRY_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.MonitorInterval, err = getDuration("MONITOR_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.RecheckDelay, err = getDuration("RECHECK_DELAY", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SMTP.Port, err = getInt("SMTP_PORT", 587); err != nil {
		return nil, err
	}
	if cfg.Fallback.Enabled, err = getBool("FALLBACK_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.Fallback.NotifyAdmins, err = getBool("FALLBACK_NOTIFY_ADMINS", true); err != nil {
		return nil, err
	}
	if cfg.Fallback.TriggerThreshold, err = getInt("FALLBACK_TRIGGER_THRESHOLD", 3); err != nil {
		return nil, err
	}
	if cfg.Fallback.TriggerThreshold < 1 {
		return nil, fmt.Errorf("FALLBACK_TRIGGER_THRESHOLD must be positive, got %d", cfg.Fallback.TriggerThreshold)
	}
	if cfg.MonitorInterval <= 0 || cfg.RecheckDelay <= 0 {
		return nil, fmt.Errorf("MONITOR_INTERVAL and RECHECK_DELAY must be positive")
	}

	return cfg, nil
}

func getString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return b, nil
}

// getDuration accepts Go durations ("45s") and plain seconds ("45").
func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return d, nil
}

func getList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

package config

import (
	"fmt"
	"log"
	"os"
	"time"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env              string
	HTTPPort         string
	DBPath           string
	DBConnectRetries int
	DBConnectBackoff time.Duration
	RedisAddr        string
	JWTIssuer        string
	JWTSigningKey    string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	OTPWindow        time.Duration
	TimestampSkew    time.Duration
	RateLimitPerMin  int
	RateLimitBackend string
	QueueBackend     string
	BotServiceURL    string
	BotPush          bool
	TargetPhone      string
	MessageTemplate  string
	RetentionDays    int
}

// Load returns application config populated from environment variables with sensible defaults.
func Load() App {
	return App{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPPort:         getEnv("HTTP_PORT", "8081"),
		DBPath:           getEnv("DB_PATH", "otpattend.db"),
		DBConnectRetries: intEnv("DB_CONNECT_RETRIES", 5),
		DBConnectBackoff: durationEnv("DB_CONNECT_BACKOFF", 2*time.Second),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		JWTIssuer:        getEnv("JWT_ISSUER", "otpattend"),
		JWTSigningKey:    getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:        durationEnv("ACCESS_TTL", 15*time.Minute),
		RefreshTTL:       durationEnv("REFRESH_TTL", 24*time.Hour),
		OTPWindow:        time.Duration(intEnv("OTP_WINDOW_MS", 30000)) * time.Millisecond,
		TimestampSkew:    durationEnv("TIMESTAMP_SKEW", 5*time.Minute),
		RateLimitPerMin:  intEnv("RATE_LIMIT_PER_MIN", 120),
		RateLimitBackend: getEnv("RATELIMIT_BACKEND", "memory"),
		QueueBackend:     getEnv("QUEUE_BACKEND", "memory"),
		BotServiceURL:    getEnv("BOT_SERVICE_URL", "http://localhost:8000"),
		BotPush:          boolEnv("BOT_PUSH", false),
		TargetPhone:      getEnv("TARGET_PHONE", ""),
		MessageTemplate:  getEnv("MESSAGE_TEMPLATE", "Attendance code: %s"),
		RetentionDays:    intEnv("RETENTION_DAYS", 90),
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

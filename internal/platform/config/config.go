// Package config builds the explicit configuration object handed to services
// at construction time. Nothing in the core reads the environment at call time.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// OTP captures the passcode protocol knobs.
type OTP struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
	ReceiptTTL  time.Duration
}

// RateLimit captures the request budget per client within a window.
type RateLimit struct {
	Budget int
	Window time.Duration
}

// Notify selects and configures the outbound SMS provider.
type Notify struct {
	Provider string // "twilio" or "msg91"
	Timeout  time.Duration

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	MSG91AuthKey string
	MSG91FlowID  string
}

// RedisConfig configures the optional Redis connection.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Config is the root configuration for the server binary.
type Config struct {
	Addr        string
	PostgresURL string
	Redis       RedisConfig

	KafkaBrokers []string
	AuditTopic   string

	JWTSigningKey string

	OTP       OTP
	RateLimit RateLimit
	Notify    Notify
}

// FromEnv builds a Config from environment variables so main stays lean.
// Defaults mirror the portal's production settings: 6-digit codes, 5 minute
// TTL, 5 attempts, 6 requests per minute per client.
func FromEnv() Config {
	return Config{
		Addr:        envStr("OTPGATE_ADDR", ":8080"),
		PostgresURL: os.Getenv("OTPGATE_POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("OTPGATE_REDIS_URL"),
			PoolSize:     envInt("OTPGATE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("OTPGATE_REDIS_MIN_IDLE", 2),
			DialTimeout:  envDur("OTPGATE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDur("OTPGATE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDur("OTPGATE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		KafkaBrokers:  envList("OTPGATE_KAFKA_BROKERS"),
		AuditTopic:    envStr("OTPGATE_AUDIT_TOPIC", "otp-audit"),
		JWTSigningKey: envStr("OTPGATE_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		OTP: OTP{
			Length:      envInt("OTPGATE_OTP_LENGTH", 6),
			TTL:         envDur("OTPGATE_OTP_TTL", 5*time.Minute),
			MaxAttempts: envInt("OTPGATE_OTP_MAX_ATTEMPTS", 5),
			ReceiptTTL:  envDur("OTPGATE_RECEIPT_TTL", 10*time.Minute),
		},
		RateLimit: RateLimit{
			Budget: envInt("OTPGATE_RATE_BUDGET", 6),
			Window: envDur("OTPGATE_RATE_WINDOW", time.Minute),
		},
		Notify: Notify{
			Provider:         envStr("OTPGATE_SMS_PROVIDER", "twilio"),
			Timeout:          envDur("OTPGATE_SMS_TIMEOUT", 10*time.Second),
			TwilioAccountSID: os.Getenv("OTPGATE_TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:  os.Getenv("OTPGATE_TWILIO_AUTH_TOKEN"),
			TwilioFromNumber: os.Getenv("OTPGATE_TWILIO_FROM"),
			MSG91AuthKey:     os.Getenv("OTPGATE_MSG91_AUTH_KEY"),
			MSG91FlowID:      os.Getenv("OTPGATE_MSG91_FLOW_ID"),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
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

package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env      string
	HTTPAddr string

	DatabaseDSN  string
	RedisAddr    string
	RedisTimeout time.Duration

	JWTIssuer       string
	JWTAudience     string
	JWTAccessSecret string

	AccessTokenTTL  time.Duration
	SessionTTL      time.Duration
	RememberMeTTL   time.Duration
	RefreshTokenTTL time.Duration

	LoginMaxAttempts   int
	LoginAttemptWindow time.Duration
	LoginBanDuration   time.Duration

	VerificationCodeTTL    time.Duration
	ResendCooldown         time.Duration
	PasswordResetTokenTTL  time.Duration
	ForgotPasswordCooldown time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	AppBaseURL   string

	SecureCookies bool

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:      getString("APP_ENV", "development"),
		HTTPAddr: getString("HTTP_ADDR", ":8080"),

		DatabaseDSN:  getString("DATABASE_DSN", ""),
		RedisAddr:    getString("REDIS_ADDR", "localhost:6379"),
		RedisTimeout: getDuration("REDIS_TIMEOUT", 3*time.Second),

		JWTIssuer:       getString("JWT_ISSUER", "session-authority-service"),
		JWTAudience:     getString("JWT_AUDIENCE", "session-authority-service"),
		JWTAccessSecret: getString("JWT_ACCESS_SECRET", ""),

		AccessTokenTTL:  getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		SessionTTL:      getDuration("SESSION_TTL", 7*time.Hour),
		RememberMeTTL:   getDuration("REMEMBER_ME_SESSION_TTL", 7*24*time.Hour),
		RefreshTokenTTL: getDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),

		LoginMaxAttempts:   getInt("LOGIN_MAX_ATTEMPTS", 3),
		LoginAttemptWindow: getDuration("LOGIN_ATTEMPT_WINDOW", 10*time.Minute),
		LoginBanDuration:   getDuration("LOGIN_BAN_DURATION", time.Hour),

		VerificationCodeTTL:    getDuration("VERIFICATION_CODE_TTL", 10*time.Minute),
		ResendCooldown:         getDuration("RESEND_COOLDOWN", 60*time.Second),
		PasswordResetTokenTTL:  getDuration("PASSWORD_RESET_TOKEN_TTL", time.Hour),
		ForgotPasswordCooldown: getDuration("FORGOT_PASSWORD_COOLDOWN", 60*time.Second),

		SMTPHost:     getString("SMTP_HOST", ""),
		SMTPPort:     getInt("SMTP_PORT", 587),
		SMTPUsername: getString("SMTP_USERNAME", ""),
		SMTPPassword: getString("SMTP_PASSWORD", ""),
		SMTPFrom:     getString("SMTP_FROM", ""),
		AppBaseURL:   getString("APP_BASE_URL", "http://localhost:3000"),

		SecureCookies: getBool("SECURE_COOKIES", true),

		OTELServiceName:           getString("OTEL_SERVICE_NAME", "session-authority-service"),
		OTELEnvironment:           getString("OTEL_ENVIRONMENT", "development"),
		OTELExporterOTLPEndpoint:  getString("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        getBool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        getBool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           getBool("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: getDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		recordConfigValidationEvent(context.Background(), cfg.Env, "invalid", classifyConfigError(err))
		return nil, fmt.Errorf("validate config: %w", err)
	}
	recordConfigValidationEvent(context.Background(), cfg.Env, "valid", "none")
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if len(c.JWTAccessSecret) < 32 {
		return fmt.Errorf("JWT_ACCESS_SECRET must be at least 32 bytes")
	}
	if c.DatabaseDSN == "" {
		return fmt.Errorf("DATABASE_DSN is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.LoginMaxAttempts <= 0 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be positive")
	}
	if c.SessionTTL <= 0 || c.RememberMeTTL <= 0 {
		return fmt.Errorf("session TTLs must be positive")
	}
	if c.AccessTokenTTL >= c.SessionTTL {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be shorter than SESSION_TTL")
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

func getString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

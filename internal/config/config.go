// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Port           string `mapstructure:"PORT"`
	Env            string `mapstructure:"APP_ENV"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	RedisURL string `mapstructure:"REDIS_URL"`

	// Four independent signing keys: the cross product of role and token
	// kind. Compromise of one cannot forge tokens for another.
	AccessSecretUser   string `mapstructure:"ACCESS_SECRET_USER"`
	AccessSecretAdmin  string `mapstructure:"ACCESS_SECRET_ADMIN"`
	RefreshSecretUser  string `mapstructure:"REFRESH_SECRET_USER"`
	RefreshSecretAdmin string `mapstructure:"REFRESH_SECRET_ADMIN"`

	AccessTokenTTL  time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`

	OTPTTL         time.Duration `mapstructure:"OTP_TTL"`
	OTPMaxAttempts int           `mapstructure:"OTP_MAX_ATTEMPTS"`

	SMTPHost     string        `mapstructure:"SMTP_HOST"`
	SMTPPort     int           `mapstructure:"SMTP_PORT"`
	SMTPUsername string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string        `mapstructure:"SMTP_PASSWORD"`
	SMTPTLSMode  string        `mapstructure:"SMTP_TLS_MODE"`
	FromName     string        `mapstructure:"MAIL_FROM_NAME"`
	FromEmail    string        `mapstructure:"MAIL_FROM_EMAIL"`
	EmailTimeout time.Duration `mapstructure:"EMAIL_TIMEOUT"`

	S3Endpoint       string        `mapstructure:"S3_ENDPOINT"`
	S3Region         string        `mapstructure:"S3_REGION"`
	S3Bucket         string        `mapstructure:"S3_BUCKET"`
	S3AccessKey      string        `mapstructure:"S3_ACCESS_KEY"`
	S3SecretKey      string        `mapstructure:"S3_SECRET_KEY"`
	S3PublicBaseURL  string        `mapstructure:"S3_PUBLIC_BASE_URL"`
	StorageTimeout   time.Duration `mapstructure:"STORAGE_TIMEOUT"`
	AvatarMaxSizeMB  int           `mapstructure:"AVATAR_MAX_SIZE_MB"`
	DefaultAvatarURL string        `mapstructure:"DEFAULT_AVATAR_URL"`

	GoogleClientID  string        `mapstructure:"GOOGLE_CLIENT_ID"`
	IdentityTimeout time.Duration `mapstructure:"IDENTITY_TIMEOUT"`

	TracingEnabled  bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSampler  float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The config file is optional; environment variables alone are enough.
	_ = viper.ReadInConfig()

	viper.SetDefault("PORT", "8460")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "whisperbox")
	viper.SetDefault("DB_SSLMODE", "disable")

	viper.SetDefault("REDIS_URL", "localhost:6379")

	viper.SetDefault("ACCESS_SECRET_USER", "dev-access-user-secret-change-me")
	viper.SetDefault("ACCESS_SECRET_ADMIN", "dev-access-admin-secret-change-me")
	viper.SetDefault("REFRESH_SECRET_USER", "dev-refresh-user-secret-change-me")
	viper.SetDefault("REFRESH_SECRET_ADMIN", "dev-refresh-admin-secret-change-me")
	viper.SetDefault("ACCESS_TOKEN_TTL", "15m")
	viper.SetDefault("REFRESH_TOKEN_TTL", "168h")

	viper.SetDefault("OTP_TTL", "2m")
	viper.SetDefault("OTP_MAX_ATTEMPTS", 3)

	viper.SetDefault("SMTP_HOST", "localhost")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("SMTP_TLS_MODE", "starttls")
	viper.SetDefault("MAIL_FROM_NAME", "Whisperbox")
	viper.SetDefault("MAIL_FROM_EMAIL", "no-reply@whisperbox.local")
	viper.SetDefault("EMAIL_TIMEOUT", "10s")

	viper.SetDefault("S3_REGION", "us-east-1")
	viper.SetDefault("S3_BUCKET", "whisperbox-avatars")
	viper.SetDefault("STORAGE_TIMEOUT", "30s")
	viper.SetDefault("AVATAR_MAX_SIZE_MB", 10)
	viper.SetDefault("DEFAULT_AVATAR_URL", "/static/default-avatar.png")

	viper.SetDefault("IDENTITY_TIMEOUT", "10s")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// IsProduction reports whether the app runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}

	secrets := map[string]string{
		"ACCESS_SECRET_USER":   c.AccessSecretUser,
		"ACCESS_SECRET_ADMIN":  c.AccessSecretAdmin,
		"REFRESH_SECRET_USER":  c.RefreshSecretUser,
		"REFRESH_SECRET_ADMIN": c.RefreshSecretAdmin,
	}
	seen := make(map[string]string, len(secrets))
	for name, value := range secrets {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
		if prev, dup := seen[value]; dup {
			return fmt.Errorf("%s and %s must not share the same value", prev, name)
		}
		seen[value] = name
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.OTPMaxAttempts <= 0 {
		return errors.New("OTP_MAX_ATTEMPTS must be positive")
	}

	if c.IsProduction() {
		for name, value := range secrets {
			if len(value) < 32 {
				return fmt.Errorf("%s must be at least 32 characters in production", name)
			}
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	}

	return nil
}

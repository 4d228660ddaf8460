package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	Server     ServerConfig
	Security   SecurityConfig
	Forum      ForumConfig
	Moderation ModerationConfig
	Media      MediaConfig
	Storage    StorageConfig
	Captcha    CaptchaConfig
	Email      EmailConfig
	RateLimit  RateLimitConfig
	Logging    LoggingConfig
	Telemetry  TelemetryConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL            string
	MaxIdleConns   int
	MaxOpenConns   int
	InitRetryDelay time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL     string
	Enabled bool
	TTL     time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Host        string
	CORSOrigins []string
}

// SecurityConfig holds token signing configuration
type SecurityConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	EmailTokenTTL time.Duration
}

// ForumConfig holds forum quotas and paging limits
type ForumConfig struct {
	MaxThreadsPerUser      int
	MaxReadingListsPerUser int
	DefaultPageSize        int
	MaxPageSize            int
}

// ModerationConfig holds settings for embedded image checks
type ModerationConfig struct {
	ImageExtensions     []string // empty means any extension
	HeadCheckEnabled    bool
	HeadTimeout         time.Duration
	RemoteMaxImageBytes int64
	RemoteMaxGIFBytes   int64
}

// MediaConfig holds upload limits
type MediaConfig struct {
	MaxImageBytes int64
	MaxGIFBytes   int64
	MaxImageDim   int
	MaxGIFDim     int
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
}

// CaptchaConfig holds reCAPTCHA configuration
type CaptchaConfig struct {
	Enabled   bool
	Secret    string
	VerifyURL string
	Timeout   time.Duration
}

// EmailConfig holds SMTP configuration
type EmailConfig struct {
	Host          string
	Port          int
	Username      string
	Password      string
	From          string
	VerifyURLBase string
	Timeout       time.Duration
}

// RateLimitConfig toggles per-route request limits
type RateLimitConfig struct {
	Enabled bool
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "json" or "text"
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled           bool
	JaegerURL         string
	PrometheusEnabled bool
	PrometheusPort    int
	ServiceName       string
	ServiceVersion    string
	Environment       string
	SampleRatio       float64 // fraction of new root traces kept, 0..1
}

const envPrefix = "TOON"

// Load loads configuration from .env, environment variables and config file
func Load() (*Config, error) {
	// A missing .env is fine; real deployments use the environment
	_ = godotenv.Load()

	setDefaults()

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.toonranks")
	viper.AddConfigPath("/etc/toonranks")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	redisURL := getString("redis_url", "")
	cfg := &Config{
		Database: DatabaseConfig{
			URL:            getString("database_url", "sqlite://toonranks.db"),
			MaxIdleConns:   getInt("db_max_idle_conns", 10),
			MaxOpenConns:   getInt("db_max_open_conns", 50),
			InitRetryDelay: getDuration("db_init_retry_delay", 3*time.Second),
		},
		Redis: RedisConfig{
			URL:     redisURL,
			Enabled: redisURL != "",
			TTL:     getDuration("redis_ttl", time.Minute),
		},
		Server: ServerConfig{
			Port:        getInt("http_server_port", 8000),
			Host:        getString("http_server_host", "0.0.0.0"),
			CORSOrigins: getStringSlice("cors_origins", []string{"http://localhost:5173"}),
		},
		Security: SecurityConfig{
			JWTSecret:     getString("secret_key", ""),
			TokenTTL:      getDuration("access_token_ttl", 72*time.Hour),
			EmailTokenTTL: getDuration("email_token_ttl", time.Hour),
		},
		Forum: ForumConfig{
			MaxThreadsPerUser:      getInt("forum_max_threads_per_user", 10),
			MaxReadingListsPerUser: getInt("max_reading_lists_per_user", 2),
			DefaultPageSize:        getInt("forum_default_page_size", 20),
			MaxPageSize:            getInt("forum_max_page_size", 100),
		},
		Moderation: ModerationConfig{
			ImageExtensions:     getStringSlice("image_extensions", nil),
			HeadCheckEnabled:    getBool("image_head_check", true),
			HeadTimeout:         getDuration("image_head_timeout", 3*time.Second),
			RemoteMaxImageBytes: int64(getInt("remote_max_image_bytes", 2<<20)),
			RemoteMaxGIFBytes:   int64(getInt("remote_max_gif_bytes", 5<<20)),
		},
		Media: MediaConfig{
			MaxImageBytes: int64(getInt("media_max_image_bytes", 300*1024)),
			MaxGIFBytes:   int64(getInt("media_max_gif_bytes", 1<<20)),
			MaxImageDim:   getInt("media_max_image_dim", 1024),
			MaxGIFDim:     getInt("media_max_gif_dim", 512),
		},
		Storage: StorageConfig{
			Bucket:          getString("s3_bucket", ""),
			Region:          getString("aws_region", "us-east-1"),
			Endpoint:        getString("s3_endpoint", ""),
			PublicBaseURL:   getString("s3_public_base_url", ""),
			AccessKeyID:     getString("aws_access_key_id", ""),
			SecretAccessKey: getString("aws_secret_access_key", ""),
		},
		Captcha: CaptchaConfig{
			Enabled:   getBool("captcha_enabled", true),
			Secret:    getString("recaptcha_secret", ""),
			VerifyURL: getString("recaptcha_verify_url", "https://www.google.com/recaptcha/api/siteverify"),
			Timeout:   getDuration("recaptcha_timeout", 5*time.Second),
		},
		Email: EmailConfig{
			Host:          getString("smtp_host", ""),
			Port:          getInt("smtp_port", 587),
			Username:      getString("smtp_username", ""),
			Password:      getString("smtp_password", ""),
			From:          getString("smtp_from", "no-reply@toonranks.com"),
			VerifyURLBase: getString("verify_url_base", "http://localhost:5173/verify-email"),
			Timeout:       getDuration("smtp_timeout", 10*time.Second),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBool("rate_limit_enabled", true),
		},
		Logging: LoggingConfig{
			Level:  getString("log_level", "INFO"),
			Format: getString("log_format", "json"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           getBool("telemetry_enabled", false),
			JaegerURL:         getString("jaeger_url", ""),
			PrometheusEnabled: getBool("prometheus_enabled", true),
			PrometheusPort:    getInt("prometheus_port", 9090),
			ServiceName:       getString("service_name", "toonranks-api"),
			ServiceVersion:    getString("service_version", "0.1.0"),
			Environment:       getString("environment", "development"),
			SampleRatio:       getFloat("trace_sample_ratio", 1.0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("database_url", "sqlite://toonranks.db")
	viper.SetDefault("http_server_port", 8000)
	viper.SetDefault("http_server_host", "0.0.0.0")
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("forum_max_threads_per_user", 10)
	viper.SetDefault("max_reading_lists_per_user", 2)
	viper.SetDefault("forum_default_page_size", 20)
	viper.SetDefault("forum_max_page_size", 100)
	viper.SetDefault("captcha_enabled", true)
	viper.SetDefault("rate_limit_enabled", true)
	viper.SetDefault("prometheus_enabled", true)
	viper.SetDefault("prometheus_port", 9090)
	viper.SetDefault("service_name", "toonranks-api")
}

func getString(key, defaultValue string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		return val
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if viper.IsSet(key) {
		return viper.GetFloat64(key)
	}
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	if val := os.Getenv(envPrefix + "_" + toEnvKey(key)); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultValue
}

// getStringSlice reads a comma separated list
func getStringSlice(key string, defaultValue []string) []string {
	raw := getString(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toEnvKey(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database_url is required")
	}
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("secret_key must be at least 32 characters")
	}
	if c.Forum.MaxThreadsPerUser <= 0 {
		return fmt.Errorf("forum_max_threads_per_user must be positive")
	}
	if c.Forum.MaxReadingListsPerUser <= 0 {
		return fmt.Errorf("max_reading_lists_per_user must be positive")
	}
	if c.Forum.DefaultPageSize <= 0 || c.Forum.DefaultPageSize > c.Forum.MaxPageSize {
		return fmt.Errorf("forum_default_page_size must be between 1 and forum_max_page_size")
	}
	if c.Media.MaxImageBytes <= 0 || c.Media.MaxGIFBytes <= 0 {
		return fmt.Errorf("media byte limits must be positive")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("trace_sample_ratio must be between 0 and 1")
	}
	return nil
}

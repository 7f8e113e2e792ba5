package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPlanConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	// BaseURL is the public origin used to build referral links.
	BaseURL    string
	BrandName  string
	CronSecret string

	Telemetry TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Stripe    StripeConfig
	Kafka     KafkaConfig
	Slack     SlackConfig
	Scheduler SchedulerConfig
}

// TelemetryConfig drives logging and OpenTelemetry export. The OTEL_*
// variable names follow the OpenTelemetry SDK conventions.
type TelemetryConfig struct {
	LogLevel      string
	LogFormat     string
	OtelEnabled   bool
	OtlpEndpoint  string
	OtlpProtocol  string
	SamplingRatio float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig holds per-route request budgets, counted per client IP.
type RateLimitConfig struct {
	Enabled       bool
	Window        time.Duration
	Signup        int
	ProjectCreate int
	Feedback      int
	Checkout      int
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
	ReplyTo      string
}

type StripeConfig struct {
	SecretKey       string
	WebhookSecret   string
	ProPriceID      string
	BusinessPriceID string
	APIBaseURL      string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// SlackConfig points feedback alerts at an incoming webhook.
type SlackConfig struct {
	WebhookURL string
	Channel    string
}

type SchedulerConfig struct {
	Enabled     bool
	RunInterval time.Duration
	BatchSize   int
	EnabledJobs []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "waitlist"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		NodeID:      getenvInt64("NODE_ID", 1),
		BaseURL:     strings.TrimRight(getenv("BASE_URL", "https://waitlist.ca"), "/"),
		BrandName:   getenv("BRAND_NAME", "WaitlistKit"),
		CronSecret:  strings.TrimSpace(getenv("CRON_SECRET", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "waitlist"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 10)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 50)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 300)),
		DBConnMaxIdleTime: int(getenvInt64("DATABASE_CONN_MAX_IDLE_TIME", 60)),

		Telemetry: TelemetryConfig{
			LogLevel:      strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:     strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:   getenvBool("OTEL_ENABLED", false),
			OtlpEndpoint:  strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")),
			OtlpProtocol:  otlpProtocol(),
			SamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       int(getenvInt64("REDIS_DB", 0)),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", true),
			Window:        time.Duration(getenvInt64("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
			Signup:        int(getenvInt64("RATE_LIMIT_SIGNUP", 10)),
			ProjectCreate: int(getenvInt64("RATE_LIMIT_PROJECT_CREATE", 5)),
			Feedback:      int(getenvInt64("RATE_LIMIT_FEEDBACK", 5)),
			Checkout:      int(getenvInt64("RATE_LIMIT_CHECKOUT", 10)),
		},
		Email: EmailConfig{
			SMTPHost:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			SMTPPort:     int(getenvInt64("SMTP_PORT", 587)),
			SMTPUsername: strings.TrimSpace(getenv("SMTP_USERNAME", "")),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			From:         getenv("EMAIL_FROM", "WaitlistKit <noreply@revive-hq.com>"),
			ReplyTo:      getenv("EMAIL_REPLY_TO", "gandalf@revive-hq.com"),
		},
		Stripe: StripeConfig{
			SecretKey:       strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:   strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			ProPriceID:      strings.TrimSpace(getenv("STRIPE_PRO_PRICE_ID", "")),
			BusinessPriceID: strings.TrimSpace(getenv("STRIPE_BUSINESS_PRICE_ID", "")),
			APIBaseURL:      strings.TrimRight(getenv("STRIPE_API_BASE_URL", "https://api.stripe.com"), "/"),
		},
		Kafka: KafkaConfig{
			Brokers: parseList(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_TOPIC", "waitlist.events"),
		},
		Slack: SlackConfig{
			WebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
			Channel:    strings.TrimSpace(getenv("SLACK_FEEDBACK_CHANNEL", "")),
		},
		Scheduler: SchedulerConfig{
			Enabled:     getenvBool("SCHEDULER_ENABLED", true),
			RunInterval: time.Duration(getenvInt64("SCHEDULER_INTERVAL_SECONDS", 30)) * time.Second,
			BatchSize:   int(getenvInt64("SCHEDULER_BATCH_SIZE", 100)),
			EnabledJobs: parseList(getenv("ENABLED_JOBS", "")),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

// otlpProtocol prefers the traces-specific override.
func otlpProtocol() string {
	protocol := getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))
	return strings.ToLower(strings.TrimSpace(protocol))
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

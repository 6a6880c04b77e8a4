package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	StoreGorm   = "gorm"
	StoreMemory = "memory"

	MailSMTP    = "smtp"
	MailSandbox = "sandbox"
)

// runLeaseMargin covers the guard release that follows a run hitting its
// timeout.
const runLeaseMargin = time.Minute

type Config struct {
	AppEnv   string `env:"APP_ENV,default=development"`
	HTTPAddr string `env:"HTTP_ADDR,default=:5000"`
	LogLevel string `env:"LOG_LEVEL,default=info"`

	StoreBackend      string        `env:"STORE_BACKEND,default=gorm"`
	DatabaseURL       string        `env:"DATABASE_URL,default=sqlite:./dev.db"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS,default=10"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME,default=30m"`

	MailTransport   string        `env:"MAIL_TRANSPORT"`
	MailFrom        string        `env:"MAIL_FROM,default=noreply@offmarket.local"`
	MailSendTimeout time.Duration `env:"MAIL_SEND_TIMEOUT,default=15s"`
	SMTPHost        string        `env:"SMTP_HOST,default=smtp.ethereal.email"`
	SMTPPort        int           `env:"SMTP_PORT,default=587"`
	SMTPSecure      bool          `env:"SMTP_SECURE,default=false"`
	SMTPUser        string        `env:"SMTP_USER"`
	SMTPPassword    string        `env:"SMTP_PASS"`
	FrontendURL     string        `env:"FRONTEND_URL,default=http://localhost:3000"`

	SchedulerInterval   time.Duration `env:"SCHEDULER_INTERVAL,default=5m"`
	SchedulerRunTimeout time.Duration `env:"SCHEDULER_RUN_TIMEOUT"`
	FetchTimeout        time.Duration `env:"EVALUATOR_FETCH_TIMEOUT,default=30s"`
	WriteTimeout        time.Duration `env:"EVALUATOR_WRITE_TIMEOUT,default=5s"`

	RedisURL           string        `env:"REDIS_URL"`
	RunLeaseTTL        time.Duration `env:"RUN_LEASE_TTL"`
	CheckRatePerMinute int           `env:"CHECK_RATE_PER_MINUTE,default=6"`

	KafkaBrokers     []string `env:"KAFKA_BROKERS"`
	KafkaAlertsTopic string   `env:"KAFKA_ALERTS_TOPIC,default=alerts.triggered"`

	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelServiceName string `env:"OTEL_SERVICE_NAME,default=offmarket-alerts"`
}

// Load reads .env when present and then the process environment.
func Load(ctx context.Context) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MailTransport == "" {
		c.MailTransport = MailSandbox
		if c.IsProduction() && c.SMTPUser != "" && c.SMTPPassword != "" {
			c.MailTransport = MailSMTP
		}
	}
	if c.SchedulerRunTimeout <= 0 {
		c.SchedulerRunTimeout = c.SchedulerInterval
	}
	if c.RunLeaseTTL <= 0 {
		c.RunLeaseTTL = c.SchedulerRunTimeout + runLeaseMargin
	}
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case StoreGorm, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.MailTransport {
	case MailSMTP, MailSandbox:
	default:
		return fmt.Errorf("unknown MAIL_TRANSPORT %q", c.MailTransport)
	}
	if c.SchedulerInterval <= 0 {
		return errors.New("SCHEDULER_INTERVAL must be positive")
	}
	// A lease that expires mid-run lets another instance start the same run.
	if c.RunLeaseTTL < c.SchedulerRunTimeout {
		return fmt.Errorf("RUN_LEASE_TTL (%s) must be at least SCHEDULER_RUN_TIMEOUT (%s)", c.RunLeaseTTL, c.SchedulerRunTimeout)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

package config

import (
	"errors"
	"fmt"
	"log"
	"time"
	_ "time/tzdata" // APPOINTMENT_TIMEZONE must resolve on minimal images

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/text/language"

	"github.com/zakariya2002/autisme-connect-sub000/internal/finance"
	"github.com/zakariya2002/autisme-connect-sub000/internal/policy"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	DBDSN       string `env:"DB_DSN,required"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	RabbitMQURL      string `env:"RABBITMQ_URL"`
	RabbitMQExchange string `env:"RABBITMQ_EXCHANGE" envDefault:"appointments"`

	MinioEndpoint  string `env:"MINIO_ENDPOINT"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY"`
	MinioBucket    string `env:"MINIO_BUCKET" envDefault:"invoices"`
	MinioUseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`

	TelegramToken string `env:"TELEGRAM_TOKEN"`

	PaymentBaseURL string `env:"PAYMENT_BASE_URL"`
	PaymentAPIKey  string `env:"PAYMENT_API_KEY"`
	SupportAPIKey  string `env:"SUPPORT_API_KEY"`

	Timezone                string        `env:"APPOINTMENT_TIMEZONE" envDefault:"Europe/Paris"`
	Language                string        `env:"APPOINTMENT_LANGUAGE" envDefault:"fr"`
	PlatformFeeRate         float64       `env:"PLATFORM_FEE_RATE" envDefault:"0.12"`
	CancellationCutoffHours int           `env:"CANCELLATION_CUTOFF_HOURS" envDefault:"48"`
	NoShowGraceMinutes      int           `env:"NO_SHOW_GRACE_MINUTES" envDefault:"60"`
	VideoJoinLeadMinutes    int           `env:"VIDEO_JOIN_LEAD_MINUTES" envDefault:"15"`
	MaxPinAttempts          int           `env:"MAX_PIN_ATTEMPTS" envDefault:"5"`
	NoShowFamilyChargeRatio float64       `env:"NO_SHOW_FAMILY_CHARGE_RATIO" envDefault:"0.5"`
	SettlementRetryInterval time.Duration `env:"SETTLEMENT_RETRY_INTERVAL" envDefault:"1m"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return Parse()
}

// Parse reads the environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.PlatformFeeRate < 0 || c.PlatformFeeRate > 1 {
		errs = append(errs, fmt.Errorf("PLATFORM_FEE_RATE must be within [0,1], got %v", c.PlatformFeeRate))
	}
	if c.NoShowFamilyChargeRatio < 0 || c.NoShowFamilyChargeRatio > 1 {
		errs = append(errs, fmt.Errorf("NO_SHOW_FAMILY_CHARGE_RATIO must be within [0,1], got %v", c.NoShowFamilyChargeRatio))
	}
	if c.CancellationCutoffHours < 0 {
		errs = append(errs, fmt.Errorf("CANCELLATION_CUTOFF_HOURS must not be negative"))
	}
	if c.NoShowGraceMinutes < 0 {
		errs = append(errs, fmt.Errorf("NO_SHOW_GRACE_MINUTES must not be negative"))
	}
	if c.VideoJoinLeadMinutes < 0 {
		errs = append(errs, fmt.Errorf("VIDEO_JOIN_LEAD_MINUTES must not be negative"))
	}
	if c.MaxPinAttempts < 1 {
		errs = append(errs, fmt.Errorf("MAX_PIN_ATTEMPTS must be at least 1"))
	}
	if c.SettlementRetryInterval <= 0 {
		errs = append(errs, fmt.Errorf("SETTLEMENT_RETRY_INTERVAL must be positive"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("APPOINTMENT_TIMEZONE: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) CancellationCutoff() time.Duration {
	return time.Duration(c.CancellationCutoffHours) * time.Hour
}

func (c *Config) NoShowGrace() time.Duration {
	return time.Duration(c.NoShowGraceMinutes) * time.Minute
}

func (c *Config) VideoJoinLead() time.Duration {
	return time.Duration(c.VideoJoinLeadMinutes) * time.Minute
}

func (c *Config) PolicyConfig() policy.Config {
	return policy.Config{
		Location:           c.Location(),
		CancellationCutoff: c.CancellationCutoff(),
		NoShowGrace:        c.NoShowGrace(),
		VideoJoinLead:      c.VideoJoinLead(),
	}
}

func (c *Config) FeeSchedule() (finance.FeeSchedule, error) {
	return finance.RatesToSchedule(c.PlatformFeeRate, c.NoShowFamilyChargeRatio)
}

// LanguageTag falls back to French for an unparsable value.
func (c *Config) LanguageTag() language.Tag {
	tag, err := language.Parse(c.Language)
	if err != nil {
		return language.French
	}
	return tag
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

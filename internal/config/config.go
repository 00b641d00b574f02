// Package config loads service configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/env"
)

type Config struct {
	Primary     Primary           `koanf:"primary"`
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Redis       RedisConfig       `koanf:"redis"`
	Storage     StorageConfig     `koanf:"storage"`
	Payment     PaymentConfig     `koanf:"payment"`
	Idempotency IdempotencyConfig `koanf:"idempotency"`
	Providers   ProvidersConfig   `koanf:"providers"`
	Worker      WorkerConfig      `koanf:"worker"`
	Overdue     OverdueConfig     `koanf:"overdue"`
	Logger      LoggerConfig      `koanf:"logger"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port         string        `koanf:"port" validate:"required"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout  time.Duration `koanf:"idle_timeout" validate:"required"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password" validate:"required"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

type RedisConfig struct {
	Addr        string        `koanf:"addr" validate:"required"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	MaxRetries  int           `koanf:"max_retries"`
	DialTimeout time.Duration `koanf:"dial_timeout"`
	Timeout     time.Duration `koanf:"timeout"`
	Prefix      string        `koanf:"prefix"`
}

type StorageConfig struct {
	Endpoint        string `koanf:"endpoint" validate:"required"`
	AccessKeyID     string `koanf:"access_key_id" validate:"required"`
	SecretAccessKey string `koanf:"secret_access_key" validate:"required"`
	Bucket          string `koanf:"bucket" validate:"required"`
	UseSSL          bool   `koanf:"use_ssl"`
	Region          string `koanf:"region"`
	Prefix          string `koanf:"prefix"`
}

type PaymentConfig struct {
	// ToleranceRatio is the fraction of the contractual rent below which a
	// payment amount draws a warning. Underpayment is never a hard reject.
	ToleranceRatio float64 `koanf:"tolerance_ratio" validate:"required,gt=0,lte=1"`
	ReceiptPrefix  string  `koanf:"receipt_prefix" validate:"required"`
}

type IdempotencyConfig struct {
	InFlightTTL  time.Duration `koanf:"in_flight_ttl" validate:"required"`
	ResolvedTTL  time.Duration `koanf:"resolved_ttl" validate:"required"`
	PollInterval time.Duration `koanf:"poll_interval" validate:"required"`
	WaitBudget   time.Duration `koanf:"wait_budget" validate:"required"`
}

// ProviderConfig bundles one provider's endpoint with its circuit breaker
// thresholds. Each provider gets its own values, never a shared set.
type ProviderConfig struct {
	BaseURL          string        `koanf:"base_url" validate:"required"`
	FailureThreshold int           `koanf:"failure_threshold" validate:"required"`
	SuccessThreshold int           `koanf:"success_threshold" validate:"required"`
	CallTimeout      time.Duration `koanf:"call_timeout" validate:"required"`
	ResetTimeout     time.Duration `koanf:"reset_timeout" validate:"required"`
}

type ProvidersConfig struct {
	Telebirr ProviderConfig `koanf:"telebirr"`
	CBEBirr  ProviderConfig `koanf:"cbebirr"`
	Chapa    ProviderConfig `koanf:"chapa"`
}

type WorkerConfig struct {
	Concurrency  int           `koanf:"concurrency" validate:"required"`
	QueueSize    int           `koanf:"queue_size" validate:"required"`
	MaxAttempts  int           `koanf:"max_attempts" validate:"required"`
	BaseBackoff  time.Duration `koanf:"base_backoff" validate:"required"`
	OverdueEvery time.Duration `koanf:"overdue_every" validate:"required"`
}

type OverdueConfig struct {
	GraceDays          int   `koanf:"grace_days" validate:"required"`
	BatchSize          int   `koanf:"batch_size" validate:"required"`
	ReminderMilestones []int `koanf:"reminder_milestones"`
	DryRun             bool  `koanf:"dry_run"`
}

type LoggerConfig struct {
	Level string `koanf:"level"`
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	err := k.Load(env.Provider("KIRAPAY_", ".", func(s string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, "KIRAPAY_")),
			"__",
			".",
		)
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	if err := k.Unmarshal("", mainConfig); err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	if mainConfig.Overdue.ReminderMilestones == nil {
		mainConfig.Overdue.ReminderMilestones = []int{3, 7, 14}
	}

	validate := validator.New()
	if err := validate.Struct(mainConfig); err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	return mainConfig, nil
}

// NewLogger builds the process-wide slog logger from the configured level.
func (c LoggerConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

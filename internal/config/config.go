package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	// BotToken authenticates the main tarot bot with the Telegram API.
	BotToken string `env:"BOT_TOKEN,required,notEmpty"`
	// PaymentBotToken authenticates the payment bot. Empty disables cmd/paybot.
	PaymentBotToken string `env:"PAYMENT_BOT_TOKEN"`
	// AdminIDs are Telegram user IDs allowed to run admin commands.
	AdminIDs []int64 `env:"ADMIN_ID" envSeparator:","`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"./users.db"`
	Timezone     string `env:"TZ" envDefault:"Europe/Moscow"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`

	// OpsAddr serves /healthz and /metrics for the deploy environment.
	OpsAddr string `env:"OPS_ADDR" envDefault:":8081"`

	GeminiAPIKey string        `env:"GEMINI_API_KEY"`
	GeminiModel  string        `env:"GEMINI_MODEL" envDefault:"gemini-1.5-flash"`
	LLMTimeout   time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	YookassaShopID    string `env:"YOOKASSA_SHOP_ID"`
	YookassaSecretKey string `env:"YOOKASSA_SECRET_KEY"`
	YookassaReturnURL string `env:"YOOKASSA_RETURN_URL" envDefault:"https://t.me/Milky_Tarot_bot"`

	// Backups are enabled when S3Bucket is set.
	S3Bucket    string `env:"S3_BUCKET"`
	S3Region    string `env:"S3_REGION" envDefault:"ru-central1"`
	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	BackupCron  string `env:"BACKUP_CRON" envDefault:"0 4 * * *"`
}

// Load loads configuration from environment variables or sets defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Location resolves the configured timezone. The whole bot runs on one
// clock: daily limits, pushes and backups all roll over on this location's
// midnight.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// IsAdmin reports whether the given Telegram user ID is in the admin list.
func (c *Config) IsAdmin(id int64) bool {
	for _, admin := range c.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// BackupEnabled reports whether scheduled database backups are configured.
func (c *Config) BackupEnabled() bool {
	return c.S3Bucket != ""
}

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds the whole service configuration. Everything is
// environment-supplied; the optional yaml file and the defaults below only
// cover what the environment leaves out.
type Config struct {
	TelegramToken string `mapstructure:"TELEGRAM_TOKEN" validate:"required"`
	MAPIKey       string `mapstructure:"MAPIKEY" validate:"required"`
	APIBase       string `mapstructure:"API_BASE" validate:"required,url"`
	WebhookSecret string `mapstructure:"WEBHOOK_SECRET"`
	AdminChatID   int64  `mapstructure:"ADMIN_CHAT_ID"`
	Port          int    `mapstructure:"PORT" validate:"min=1,max=65535"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	DataFile      string `mapstructure:"DATA_FILE" validate:"required"`

	UpstreamTimeoutSeconds int `mapstructure:"UPSTREAM_TIMEOUT_SECONDS" validate:"min=1"`
}

// Load reads configuration from the environment, layered over an optional
// config.defaults.yaml and the built-in defaults. Missing required keys are
// a startup error, not a runtime one.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config.defaults")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	// Every key needs a default registered so AutomaticEnv picks it up
	// during Unmarshal.
	v.SetDefault("TELEGRAM_TOKEN", "")
	v.SetDefault("MAPIKEY", "")
	v.SetDefault("API_BASE", "https://x.mnitnetwork.com")
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("ADMIN_CHAT_ID", 0)
	v.SetDefault("PORT", 5000)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DATA_FILE", "mappings.json")
	v.SetDefault("UPSTREAM_TIMEOUT_SECONDS", 20)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

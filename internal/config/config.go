package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	TelegramToken string  `env:"TELEGRAM_BOT_TOKEN"`
	TelegramRPS   float64 `env:"TELEGRAM_SEND_RPS" envDefault:"20"`

	BackendBaseURL string        `env:"BACKEND_BASE_URL"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"15s"`
	LoginURL       string        `env:"LOGIN_URL"`

	// api talks to the platform, stub fakes payment creation locally.
	PaymentBackend      string        `env:"PAYMENT_BACKEND" envDefault:"api"`
	FallbackProviders   []string      `env:"PAYMENT_FALLBACK_PROVIDERS" envSeparator:"," envDefault:"instructions"`
	PaymentReturnSecret string        `env:"PAYMENT_RETURN_SECRET" envDefault:"change-me"`
	ChoiceTimeout       time.Duration `env:"CHOICE_TIMEOUT" envDefault:"2m"`

	SpreadsheetID            string `env:"GOOGLE_SHEETS_SPREADSHEET_ID"`
	GoogleServiceAccountJSON string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`

	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	BasePublicURL string `env:"BASE_PUBLIC_URL"`
}

func FromEnv() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	return c.normalize()
}

func (c Config) normalize() (Config, error) {
	c.TelegramToken = strings.TrimSpace(c.TelegramToken)
	c.BackendBaseURL = strings.TrimRight(strings.TrimSpace(c.BackendBaseURL), "/")
	c.BasePublicURL = strings.TrimRight(strings.TrimSpace(c.BasePublicURL), "/")
	c.PaymentBackend = strings.ToLower(strings.TrimSpace(c.PaymentBackend))
	c.SpreadsheetID = strings.TrimSpace(c.SpreadsheetID)
	c.GoogleServiceAccountJSON = strings.TrimSpace(c.GoogleServiceAccountJSON)

	providers := make([]string, 0, len(c.FallbackProviders))
	for _, p := range c.FallbackProviders {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			providers = append(providers, p)
		}
	}
	if len(providers) == 0 {
		providers = []string{"instructions"}
	}
	c.FallbackProviders = providers

	if c.TelegramToken == "" {
		return c, fmt.Errorf("TELEGRAM_BOT_TOKEN is empty")
	}
	if c.BackendBaseURL == "" {
		return c, fmt.Errorf("BACKEND_BASE_URL is empty")
	}
	if c.PaymentBackend != "api" && c.PaymentBackend != "stub" {
		return c, fmt.Errorf("unknown PAYMENT_BACKEND: %s", c.PaymentBackend)
	}
	if (c.SpreadsheetID == "") != (c.GoogleServiceAccountJSON == "") {
		return c, fmt.Errorf("GOOGLE_SHEETS_SPREADSHEET_ID and GOOGLE_SERVICE_ACCOUNT_JSON must be set together")
	}
	if c.ChoiceTimeout <= 0 {
		c.ChoiceTimeout = 2 * time.Minute
	}
	if c.TelegramRPS <= 0 {
		c.TelegramRPS = 20
	}
	return c, nil
}

// JournalEnabled reports whether lifecycle events are mirrored to a spreadsheet.
func (c Config) JournalEnabled() bool {
	return c.SpreadsheetID != ""
}

// PublicURL prefixes path with the public base, falling back to the local listener.
func (c Config) PublicURL(path string) string {
	if c.BasePublicURL != "" {
		return c.BasePublicURL + path
	}
	return "http://localhost" + c.HTTPAddr + path
}

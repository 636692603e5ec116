// Package config contains the configuration of the membership service.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime parameters of the membership service.
type Config struct {
	RunAddress       string        `env:"RUN_ADDRESS"`
	DatabaseURI      string        `env:"DATABASE_URI"`
	MailProvider     string        `env:"MAIL_PROVIDER"`
	BrevoAddress     string        `env:"BREVO_ADDRESS"`
	BrevoAPIKey      string        `env:"BREVO_API_KEY"`
	MailchimpAddress string        `env:"MAILCHIMP_ADDRESS"`
	MailchimpAPIKey  string        `env:"MAILCHIMP_API_KEY"`
	MailListID       string        `env:"MAIL_LIST_ID"`
	MailSyncInterval time.Duration `env:"MAIL_SYNC_INTERVAL"`
	AdminUser        string        `env:"ADMIN_USER"`
	AdminPassword    string        `env:"ADMIN_PASSWORD"`
	SessionSecret    string        `env:"SESSION_SECRET"`
	DescriptorFile   string        `env:"DESCRIPTOR_FILE"`
}

// Parse reads the configuration from command-line flags and environment
// variables. Environment values take precedence over flags.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envValues := *cfg

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.MailProvider, "p", "none", "mail provider (brevo, mailchimp or none)")
	flag.StringVar(&cfg.BrevoAddress, "brevo-address", "https://api.brevo.com", "Brevo API base address")
	flag.StringVar(&cfg.BrevoAPIKey, "brevo-key", "", "Brevo API key")
	flag.StringVar(&cfg.MailchimpAddress, "mailchimp-address", "", "Mailchimp API base address")
	flag.StringVar(&cfg.MailchimpAPIKey, "mailchimp-key", "", "Mailchimp API key")
	flag.StringVar(&cfg.MailListID, "l", "", "mailing list identifier")
	flag.DurationVar(&cfg.MailSyncInterval, "sync-interval", 0, "background mail sync interval (0 disables)")
	flag.StringVar(&cfg.AdminUser, "admin-user", "admin", "admin login")
	flag.StringVar(&cfg.AdminPassword, "admin-password", "", "admin password")
	flag.StringVar(&cfg.SessionSecret, "session-secret", "", "session signing secret")
	flag.StringVar(&cfg.DescriptorFile, "descriptors", "", "optional YAML file overriding the field descriptor table")

	flag.Parse()

	if envValues.RunAddress != "" {
		cfg.RunAddress = envValues.RunAddress
	}
	if envValues.DatabaseURI != "" {
		cfg.DatabaseURI = envValues.DatabaseURI
	}
	if envValues.MailProvider != "" {
		cfg.MailProvider = envValues.MailProvider
	}
	if envValues.BrevoAddress != "" {
		cfg.BrevoAddress = envValues.BrevoAddress
	}
	if envValues.BrevoAPIKey != "" {
		cfg.BrevoAPIKey = envValues.BrevoAPIKey
	}
	if envValues.MailchimpAddress != "" {
		cfg.MailchimpAddress = envValues.MailchimpAddress
	}
	if envValues.MailchimpAPIKey != "" {
		cfg.MailchimpAPIKey = envValues.MailchimpAPIKey
	}
	if envValues.MailListID != "" {
		cfg.MailListID = envValues.MailListID
	}
	if envValues.MailSyncInterval != 0 {
		cfg.MailSyncInterval = envValues.MailSyncInterval
	}
	if envValues.AdminUser != "" {
		cfg.AdminUser = envValues.AdminUser
	}
	if envValues.AdminPassword != "" {
		cfg.AdminPassword = envValues.AdminPassword
	}
	if envValues.SessionSecret != "" {
		cfg.SessionSecret = envValues.SessionSecret
	}
	if envValues.DescriptorFile != "" {
		cfg.DescriptorFile = envValues.DescriptorFile
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}

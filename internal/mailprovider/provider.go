// Package mailprovider integrates the configured transactional email
// provider behind a single strategy interface.
package mailprovider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ramblersclub/membership-system/internal/config"
	"github.com/ramblersclub/membership-system/internal/model"
)

// Strategy is the provider-specific behaviour used by the bulk loader and
// the mailing-list updater.
type Strategy interface {
	Name() model.MailProvider
	// ApplyDefaults applies the provider's default mailing-list settings to
	// a member, mutating and returning it. Idempotent.
	ApplyDefaults(m *model.Member) *model.Member
	Subscribe(ctx context.Context, m *model.Member) error
	Unsubscribe(ctx context.Context, email string) error
	ListSubscribers(ctx context.Context) ([]model.MailSubscription, error)
}

var constructors = map[model.MailProvider]func(*config.Config) Strategy{
	model.MailProviderBrevo:     func(cfg *config.Config) Strategy { return NewBrevo(cfg.BrevoAddress, cfg.BrevoAPIKey, cfg.MailListID) },
	model.MailProviderMailchimp: func(cfg *config.Config) Strategy { return NewMailchimp(cfg.MailchimpAddress, cfg.MailchimpAPIKey, cfg.MailListID) },
	model.MailProviderNone:      func(*config.Config) Strategy { return None{} },
}

// ForProvider selects the strategy named by the configuration.
func ForProvider(cfg *config.Config) (Strategy, error) {
	name := model.MailProvider(cfg.MailProvider)
	if cfg.MailProvider == "" {
		name = model.MailProviderNone
	}

	construct, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unknown mail provider %q", cfg.MailProvider)
	}

	return construct(cfg), nil
}

// None is the strategy used when no mail provider is configured.
type None struct{}

func (None) Name() model.MailProvider { return model.MailProviderNone }

func (None) ApplyDefaults(m *model.Member) *model.Member {
	m.MailSubscribed = false
	return m
}

func (None) Subscribe(context.Context, *model.Member) error { return nil }

func (None) Unsubscribe(context.Context, string) error { return nil }

func (None) ListSubscribers(context.Context) ([]model.MailSubscription, error) {
	return nil, nil
}

// newHTTPClient builds the retrying HTTP client shared by the provider
// implementations. Retry-After on 429 responses is honoured by the client.
func newHTTPClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.HTTPClient.Timeout = 10 * time.Second
	client.Logger = nil
	return client
}

// normalizeBaseURL mirrors the address handling used for other external
// services: scheme defaulted to http, trailing slash stripped.
func normalizeBaseURL(address string) string {
	base := strings.TrimRight(address, "/")
	if base == "" {
		return base
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return base
}

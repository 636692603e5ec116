package mailprovider

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ramblersclub/membership-system/internal/model"
)

// Mailchimp talks to the legacy Mailchimp marketing API.
type Mailchimp struct {
	baseURL    string
	apiKey     string
	listID     string
	httpClient *retryablehttp.Client
}

// NewMailchimp creates a Mailchimp strategy for the given API address, key
// and audience list.
func NewMailchimp(address, apiKey, listID string) *Mailchimp {
	return &Mailchimp{
		baseURL:    normalizeBaseURL(address),
		apiKey:     apiKey,
		listID:     listID,
		httpClient: newHTTPClient(),
	}
}

func (c *Mailchimp) Name() model.MailProvider { return model.MailProviderMailchimp }

// ApplyDefaults subscribes a new member only when marketing consent was
// given along with an email address.
func (c *Mailchimp) ApplyDefaults(m *model.Member) *model.Member {
	m.MailSubscribed = m.Email != "" && m.MarketingConsent
	return m
}

// subscriberHash is the Mailchimp member identifier: md5 of the lowercased
// email address.
func subscriberHash(email string) string {
	sum := md5.Sum([]byte(strings.ToLower(email)))
	return hex.EncodeToString(sum[:])
}

type mailchimpMember struct {
	EmailAddress string `json:"email_address"`
	Status       string `json:"status"`
	MergeFields  struct {
		FName string `json:"FNAME"`
		LName string `json:"LNAME"`
	} `json:"merge_fields"`
}

type mailchimpMembersPage struct {
	Members    []mailchimpMember `json:"members"`
	TotalItems int               `json:"total_items"`
}

// ListSubscribers returns the subscribed members of the audience.
func (c *Mailchimp) ListSubscribers(ctx context.Context) ([]model.MailSubscription, error) {
	var subs []model.MailSubscription

	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		endpoint := fmt.Sprintf("%s/3.0/lists/%s/members?status=subscribed&count=%d&offset=%d",
			c.baseURL, url.PathEscape(c.listID), pageSize, offset)

		var page mailchimpMembersPage
		if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, fmt.Errorf("list mailchimp members: %w", err)
		}

		for _, m := range page.Members {
			subs = append(subs, model.MailSubscription{
				Email:     m.EmailAddress,
				FirstName: m.MergeFields.FName,
				LastName:  m.MergeFields.LName,
			})
		}

		if len(page.Members) < pageSize {
			return subs, nil
		}
	}
}

// Subscribe upserts the member with subscribed status.
func (c *Mailchimp) Subscribe(ctx context.Context, m *model.Member) error {
	payload := map[string]any{
		"email_address": m.Email,
		"status":        "subscribed",
		"merge_fields": map[string]string{
			"FNAME": m.FirstName,
			"LNAME": m.LastName,
		},
	}

	endpoint := fmt.Sprintf("%s/3.0/lists/%s/members/%s",
		c.baseURL, url.PathEscape(c.listID), subscriberHash(m.Email))
	if err := c.doJSON(ctx, http.MethodPut, endpoint, payload, nil); err != nil {
		return fmt.Errorf("subscribe %s: %w", m.Email, err)
	}
	return nil
}

// Unsubscribe archives the member.
func (c *Mailchimp) Unsubscribe(ctx context.Context, email string) error {
	endpoint := fmt.Sprintf("%s/3.0/lists/%s/members/%s",
		c.baseURL, url.PathEscape(c.listID), subscriberHash(email))
	if err := c.doJSON(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", email, err)
	}
	return nil
}

func (c *Mailchimp) doJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("mailchimp client not configured")
	}

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth("anystring", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

package mailprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/ramblersclub/membership-system/internal/model"
)

// Brevo talks to the Brevo contacts API.
type Brevo struct {
	baseURL    string
	apiKey     string
	listID     string
	httpClient *retryablehttp.Client
}

// NewBrevo creates a Brevo strategy for the given API address, key and
// contact list.
func NewBrevo(address, apiKey, listID string) *Brevo {
	return &Brevo{
		baseURL:    normalizeBaseURL(address),
		apiKey:     apiKey,
		listID:     listID,
		httpClient: newHTTPClient(),
	}
}

func (b *Brevo) Name() model.MailProvider { return model.MailProviderBrevo }

// ApplyDefaults subscribes a new member to the general list when an email
// address is known.
func (b *Brevo) ApplyDefaults(m *model.Member) *model.Member {
	m.MailSubscribed = m.Email != ""
	return m
}

type brevoContact struct {
	Email      string `json:"email"`
	Attributes struct {
		FirstName string `json:"FIRSTNAME"`
		LastName  string `json:"LASTNAME"`
	} `json:"attributes"`
}

type brevoContactsPage struct {
	Contacts []brevoContact `json:"contacts"`
	Count    int            `json:"count"`
}

// ListSubscribers returns the contacts on the configured list.
func (b *Brevo) ListSubscribers(ctx context.Context) ([]model.MailSubscription, error) {
	var subs []model.MailSubscription

	const pageSize = 500
	for offset := 0; ; offset += pageSize {
		endpoint := fmt.Sprintf("%s/v3/contacts/lists/%s/contacts?limit=%d&offset=%d",
			b.baseURL, url.PathEscape(b.listID), pageSize, offset)

		var page brevoContactsPage
		if err := b.doJSON(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, fmt.Errorf("list brevo contacts: %w", err)
		}

		for _, c := range page.Contacts {
			subs = append(subs, model.MailSubscription{
				Email:     c.Email,
				FirstName: c.Attributes.FirstName,
				LastName:  c.Attributes.LastName,
			})
		}

		if len(page.Contacts) < pageSize {
			return subs, nil
		}
	}
}

// Subscribe creates or updates the member's contact on the list.
func (b *Brevo) Subscribe(ctx context.Context, m *model.Member) error {
	listID, err := strconv.ParseInt(b.listID, 10, 64)
	if err != nil {
		return fmt.Errorf("brevo list id %q: %w", b.listID, err)
	}

	payload := map[string]any{
		"email": m.Email,
		"attributes": map[string]string{
			"FIRSTNAME": m.FirstName,
			"LASTNAME":  m.LastName,
		},
		"listIds":       []int64{listID},
		"updateEnabled": true,
	}

	endpoint := b.baseURL + "/v3/contacts"
	if err := b.doJSON(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		return fmt.Errorf("subscribe %s: %w", m.Email, err)
	}
	return nil
}

// Unsubscribe deletes the contact.
func (b *Brevo) Unsubscribe(ctx context.Context, email string) error {
	endpoint := b.baseURL + "/v3/contacts/" + url.PathEscape(email)
	if err := b.doJSON(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", email, err)
	}
	return nil
}

func (b *Brevo) doJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	if b.baseURL == "" {
		return fmt.Errorf("brevo client not configured")
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
	req.Header.Set("api-key", b.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
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

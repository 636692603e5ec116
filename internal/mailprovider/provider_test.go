package mailprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ramblersclub/membership-system/internal/config"
	"github.com/ramblersclub/membership-system/internal/model"
)

func TestForProvider(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		want     model.MailProvider
		wantErr  bool
	}{
		{name: "brevo", provider: "brevo", want: model.MailProviderBrevo},
		{name: "mailchimp", provider: "mailchimp", want: model.MailProviderMailchimp},
		{name: "none", provider: "none", want: model.MailProviderNone},
		{name: "empty defaults to none", provider: "", want: model.MailProviderNone},
		{name: "unknown", provider: "sendgrid", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ForProvider(&config.Config{MailProvider: tt.provider})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for provider %q", tt.provider)
				}
				return
			}
			if err != nil {
				t.Fatalf("ForProvider error: %v", err)
			}
			if s.Name() != tt.want {
				t.Fatalf("name = %s, want %s", s.Name(), tt.want)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	withEmail := func() *model.Member {
		return &model.Member{Email: "walker@example.com", MarketingConsent: true}
	}

	m := NewBrevo("https://api.brevo.com", "key", "1").ApplyDefaults(withEmail())
	if !m.MailSubscribed {
		t.Fatalf("brevo must subscribe a member with an email")
	}

	m = NewBrevo("https://api.brevo.com", "key", "1").ApplyDefaults(&model.Member{})
	if m.MailSubscribed {
		t.Fatalf("brevo must not subscribe a member without an email")
	}

	m = NewMailchimp("https://us1.api.mailchimp.com", "key", "abc").ApplyDefaults(withEmail())
	if !m.MailSubscribed {
		t.Fatalf("mailchimp must subscribe a consenting member")
	}

	m = NewMailchimp("https://us1.api.mailchimp.com", "key", "abc").ApplyDefaults(&model.Member{Email: "walker@example.com"})
	if m.MailSubscribed {
		t.Fatalf("mailchimp must not subscribe without marketing consent")
	}

	m = None{}.ApplyDefaults(withEmail())
	if m.MailSubscribed {
		t.Fatalf("none provider must not subscribe anyone")
	}

	// Defaults are idempotent.
	m = withEmail()
	NewBrevo("https://api.brevo.com", "key", "1").ApplyDefaults(m)
	NewBrevo("https://api.brevo.com", "key", "1").ApplyDefaults(m)
	if !m.MailSubscribed {
		t.Fatalf("re-applying defaults changed the outcome")
	}
}

func TestBrevoListSubscribers(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/contacts/lists/7/contacts" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if r.Header.Get("api-key") != "secret" {
			t.Fatalf("missing api key header")
		}

		resp := map[string]any{
			"contacts": []map[string]any{
				{"email": "a@example.com", "attributes": map[string]string{"FIRSTNAME": "A", "LASTNAME": "One"}},
				{"email": "b@example.com", "attributes": map[string]string{"FIRSTNAME": "B", "LASTNAME": "Two"}},
			},
			"count": 2,
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}))
	defer ts.Close()

	client := NewBrevo(ts.URL, "secret", "7")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	subs, err := client.ListSubscribers(ctx)
	if err != nil {
		t.Fatalf("ListSubscribers error: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("got %d subscribers, want 2", len(subs))
	}
	if subs[0].Email != "a@example.com" || subs[0].FirstName != "A" {
		t.Fatalf("unexpected subscriber: %+v", subs[0])
	}
}

func TestBrevoSubscribe(t *testing.T) {
	var got map[string]any

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/contacts" {
			t.Fatalf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer ts.Close()

	client := NewBrevo(ts.URL, "secret", "7")

	err := client.Subscribe(context.Background(), &model.Member{
		Email:     "a@example.com",
		FirstName: "A",
		LastName:  "One",
	})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	if got["email"] != "a@example.com" {
		t.Fatalf("payload = %v", got)
	}
	if got["updateEnabled"] != true {
		t.Fatalf("subscribe must upsert, payload = %v", got)
	}
}

func TestMailchimpSubscriberHash(t *testing.T) {
	// The identifier is case-insensitive on the email address.
	if subscriberHash("Walker@Example.com") != subscriberHash("walker@example.com") {
		t.Fatalf("hash must be case-insensitive")
	}
	if len(subscriberHash("walker@example.com")) != 32 {
		t.Fatalf("hash must be a 32-char md5 hex digest")
	}
}

func TestMailchimpSubscribeUsesHashedPath(t *testing.T) {
	wantPath := "/3.0/lists/abc/members/" + subscriberHash("a@example.com")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != wantPath {
			t.Fatalf("%s %s, want PUT %s", r.Method, r.URL.Path, wantPath)
		}
		if _, _, ok := r.BasicAuth(); !ok {
			t.Fatalf("missing basic auth")
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewMailchimp(ts.URL, "key", "abc")

	err := client.Subscribe(context.Background(), &model.Member{Email: "a@example.com"})
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
}

func TestBrevoUnconfigured(t *testing.T) {
	client := NewBrevo("", "", "")
	if _, err := client.ListSubscribers(context.Background()); err == nil {
		t.Fatalf("expected error for unconfigured client")
	}
}

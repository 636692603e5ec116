package maillist

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/ramblersclub/membership-system/internal/model"
)

type stubMembers struct {
	members []model.Member
	err     error
}

func (s *stubMembers) ListMembers(ctx context.Context) ([]model.Member, error) {
	return s.members, s.err
}

type stubStrategy struct {
	subscribers    []model.MailSubscription
	listErr        error
	subscribeErr   error
	unsubscribeErr error

	subscribedEmails   []string
	unsubscribedEmails []string
}

func (s *stubStrategy) Name() model.MailProvider { return model.MailProviderBrevo }

func (s *stubStrategy) ApplyDefaults(m *model.Member) *model.Member { return m }

func (s *stubStrategy) Subscribe(ctx context.Context, m *model.Member) error {
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.subscribedEmails = append(s.subscribedEmails, m.Email)
	return nil
}

func (s *stubStrategy) Unsubscribe(ctx context.Context, email string) error {
	if s.unsubscribeErr != nil {
		return s.unsubscribeErr
	}
	s.unsubscribedEmails = append(s.unsubscribedEmails, email)
	return nil
}

func (s *stubStrategy) ListSubscribers(ctx context.Context) ([]model.MailSubscription, error) {
	return s.subscribers, s.listErr
}

func TestSync_SubscribesMissingMembers(t *testing.T) {
	members := &stubMembers{members: []model.Member{
		{Email: "new@example.com", MailSubscribed: true},
		{Email: "existing@example.com", MailSubscribed: true},
		{Email: "", MailSubscribed: true},
	}}
	strategy := &stubStrategy{subscribers: []model.MailSubscription{
		{Email: "existing@example.com"},
	}}

	u := NewUpdater(strategy, members, zap.NewNop())

	report, err := u.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	if report.Subscribed != 1 || report.Unchanged != 1 || report.Removed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(strategy.subscribedEmails) != 1 || strategy.subscribedEmails[0] != "new@example.com" {
		t.Fatalf("subscribed = %v", strategy.subscribedEmails)
	}
}

func TestSync_RemovesIneligibleMembers(t *testing.T) {
	members := &stubMembers{members: []model.Member{
		{Email: "revoked@example.com", MailSubscribed: true, Revoked: true},
		{Email: "optout@example.com", MailSubscribed: false},
	}}
	strategy := &stubStrategy{subscribers: []model.MailSubscription{
		{Email: "revoked@example.com"},
		{Email: "optout@example.com"},
		{Email: "stranger@example.com"},
	}}

	u := NewUpdater(strategy, members, zap.NewNop())

	report, err := u.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync error: %v", err)
	}
	if report.Removed != 2 {
		t.Fatalf("removed = %d, want 2", report.Removed)
	}
	// Subscribers with no local member record are left alone.
	for _, email := range strategy.unsubscribedEmails {
		if email == "stranger@example.com" {
			t.Fatalf("unknown subscriber must not be removed")
		}
	}
}

func TestSync_CollectsFailuresAndContinues(t *testing.T) {
	members := &stubMembers{members: []model.Member{
		{Email: "a@example.com", MailSubscribed: true},
		{Email: "b@example.com", MailSubscribed: true},
	}}
	strategy := &stubStrategy{subscribeErr: errors.New("rate limited")}

	u := NewUpdater(strategy, members, zap.NewNop())

	report, err := u.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync must not fail on per-item errors: %v", err)
	}
	if len(report.Failures) != 2 {
		t.Fatalf("failures = %v, want 2 entries", report.Failures)
	}
	if report.Subscribed != 0 {
		t.Fatalf("subscribed = %d, want 0", report.Subscribed)
	}
}

func TestSync_ListFailureAborts(t *testing.T) {
	members := &stubMembers{err: errors.New("db down")}
	u := NewUpdater(&stubStrategy{}, members, zap.NewNop())

	if _, err := u.Sync(context.Background()); err == nil {
		t.Fatalf("expected error when member listing fails")
	}
}

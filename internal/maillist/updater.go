// Package maillist synchronises the club's mailing list with the configured
// email provider.
package maillist

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ramblersclub/membership-system/internal/mailprovider"
	"github.com/ramblersclub/membership-system/internal/model"
)

// MemberSource supplies the current member records.
type MemberSource interface {
	ListMembers(ctx context.Context) ([]model.Member, error)
}

// Updater diffs the local membership against the provider's subscriber list
// and applies the difference.
type Updater struct {
	strategy mailprovider.Strategy
	members  MemberSource
	logger   *zap.Logger
}

// NewUpdater creates an updater for the given provider strategy and member
// source.
func NewUpdater(strategy mailprovider.Strategy, members MemberSource, logger *zap.Logger) *Updater {
	return &Updater{
		strategy: strategy,
		members:  members,
		logger:   logger,
	}
}

// belongsOnList decides whether a member should be subscribed.
func belongsOnList(m model.Member) bool {
	return m.Email != "" && m.MailSubscribed && !m.Revoked
}

// Sync performs one synchronisation pass: members who belong on the list but
// are missing get subscribed, members known locally but no longer eligible
// get removed. Subscribers with no matching member record are left alone.
// Per-item provider failures are collected and never abort the pass.
func (u *Updater) Sync(ctx context.Context) (*model.MailSyncReport, error) {
	report := &model.MailSyncReport{
		Provider:  u.strategy.Name(),
		StartedAt: time.Now(),
	}

	members, err := u.members.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	subscribers, err := u.strategy.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	subscribed := make(map[string]bool, len(subscribers))
	for _, s := range subscribers {
		subscribed[strings.ToLower(s.Email)] = true
	}

	localByEmail := make(map[string]model.Member, len(members))
	for _, m := range members {
		if m.Email != "" {
			localByEmail[strings.ToLower(m.Email)] = m
		}
	}

	for _, m := range members {
		if !belongsOnList(m) {
			continue
		}
		if subscribed[strings.ToLower(m.Email)] {
			report.Unchanged++
			continue
		}

		member := m
		if err := u.strategy.Subscribe(ctx, &member); err != nil {
			u.logger.Warn("subscribe failed", zap.String("email", m.Email), zap.Error(err))
			report.Failures = append(report.Failures, fmt.Sprintf("subscribe %s: %v", m.Email, err))
			continue
		}
		report.Subscribed++
	}

	for _, s := range subscribers {
		key := strings.ToLower(s.Email)
		local, known := localByEmail[key]
		if !known || belongsOnList(local) {
			continue
		}

		if err := u.strategy.Unsubscribe(ctx, s.Email); err != nil {
			u.logger.Warn("unsubscribe failed", zap.String("email", s.Email), zap.Error(err))
			report.Failures = append(report.Failures, fmt.Sprintf("unsubscribe %s: %v", s.Email, err))
			continue
		}
		report.Removed++
	}

	report.FinishedAt = time.Now()

	return report, nil
}

// Package service implements the business logic of the membership service.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ramblersclub/membership-system/internal/maillist"
	"github.com/ramblersclub/membership-system/internal/mailprovider"
	"github.com/ramblersclub/membership-system/internal/model"
	"github.com/ramblersclub/membership-system/internal/reconcile"
)

// Repository describes the data access contract used by the service.
type Repository interface {
	Close() error
	CreateMember(ctx context.Context, m *model.Member) (*model.Member, error)
	UpdateMember(ctx context.Context, m *model.Member) (*model.Member, error)
	GetMember(ctx context.Context, id string) (*model.Member, error)
	ListMembers(ctx context.Context) ([]model.Member, error)
	DeleteMember(ctx context.Context, id string) error
	CreateAudit(ctx context.Context, a *model.AuditRecord) (*model.AuditRecord, error)
	ListAuditsByBatch(ctx context.Context, batchID string) ([]model.AuditRecord, error)
}

// Service contains the business logic of the membership service.
type Service struct {
	repo        Repository
	strategy    mailprovider.Strategy
	updater     *maillist.Updater
	descriptors []reconcile.FieldDescriptor
	logger      *zap.Logger
}

// NewService creates a service over the given repository, mail provider
// strategy and field descriptor table.
func NewService(repo Repository, strategy mailprovider.Strategy, descriptors []reconcile.FieldDescriptor, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
		strategy:    strategy,
		updater:     maillist.NewUpdater(strategy, repo, logger),
		descriptors: descriptors,
		logger:      logger,
	}
}

// Close releases the service's resources.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// CreateMember creates a member, applying the provider's default mail
// settings first.
func (s *Service) CreateMember(ctx context.Context, m *model.Member) (*model.Member, error) {
	s.strategy.ApplyDefaults(m)
	return s.repo.CreateMember(ctx, m)
}

// UpdateMember persists changes to an existing member.
func (s *Service) UpdateMember(ctx context.Context, m *model.Member) (*model.Member, error) {
	return s.repo.UpdateMember(ctx, m)
}

// GetMember returns the member with the given id.
func (s *Service) GetMember(ctx context.Context, id string) (*model.Member, error) {
	return s.repo.GetMember(ctx, id)
}

// ListMembers returns all members.
func (s *Service) ListMembers(ctx context.Context) ([]model.Member, error) {
	return s.repo.ListMembers(ctx)
}

// DeleteMember removes the member with the given id.
func (s *Service) DeleteMember(ctx context.Context, id string) error {
	return s.repo.DeleteMember(ctx, id)
}

// AuditsByBatch returns the audit records of one bulk-load batch.
func (s *Service) AuditsByBatch(ctx context.Context, batchID string) ([]model.AuditRecord, error) {
	return s.repo.ListAuditsByBatch(ctx, batchID)
}

// rowState carries one bulk-load row between the synchronous matching phase
// and the concurrent persistence phase.
type rowState struct {
	member  *model.Member
	created bool
	audit   model.UpdateAudit
}

// BulkLoad reconciles a batch of import rows against the existing members.
//
// Matching and rule evaluation run sequentially in row order, so members
// synthesised for earlier rows are visible to later ones before any network
// call starts. Persistence and audit writes then fan out concurrently and
// the batch completes when every row has settled. Row failures are
// downgraded to error audits and never abort the batch.
func (s *Service) BulkLoad(ctx context.Context, records []model.ImportRecord, contacts []*model.Contact) (*model.BatchSummary, error) {
	batchID := uuid.NewString()

	existing, err := s.repo.ListMembers(ctx)
	if err != nil {
		return nil, err
	}

	pool := make([]*model.Member, 0, len(existing)+len(records))
	for i := range existing {
		pool = append(pool, &existing[i])
	}

	rows := make([]rowState, len(records))
	for i, rec := range records {
		var contact *model.Contact
		if i < len(contacts) {
			contact = contacts[i]
		}

		var res reconcile.MatchResult
		res, pool = reconcile.Resolve(rec, contact, pool)

		row := &rows[i]
		row.member = res.Member
		row.created = res.Kind == reconcile.MatchCreated

		for _, d := range s.descriptors {
			reconcile.ApplyField(d, row.member, rec, &row.audit)
			// New members get the provider defaults re-applied per
			// descriptor pass; redundant but idempotent.
			if row.created {
				s.strategy.ApplyDefaults(row.member)
			}
		}
	}

	outcomes := make([]model.RowOutcome, len(rows))

	// Rows resolving to the same member run in order on one goroutine, so
	// the first row creates and later rows update; distinct members fan out
	// concurrently.
	groups := make(map[*model.Member][]int, len(rows))
	var members []*model.Member
	for i := range rows {
		m := rows[i].member
		if _, seen := groups[m]; !seen {
			members = append(members, m)
		}
		groups[m] = append(groups[m], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range members {
		indexes := groups[m]
		g.Go(func() error {
			for _, i := range indexes {
				outcomes[i] = s.persistRow(gctx, batchID, &rows[i])
			}
			return nil
		})
	}
	// Row errors are absorbed into outcomes, never returned.
	_ = g.Wait()

	summary := &model.BatchSummary{BatchID: batchID, Rows: outcomes}
	for _, o := range outcomes {
		switch o.Action {
		case model.RowActionCreated:
			summary.Created++
		case model.RowActionUpdated:
			summary.Updated++
		case model.RowActionSkipped:
			summary.Skipped++
		case model.RowActionError:
			summary.Errors++
		}
	}

	return summary, nil
}

func (s *Service) persistRow(ctx context.Context, batchID string, row *rowState) model.RowOutcome {
	action := model.RowActionSkipped
	switch {
	case row.created:
		action = model.RowActionCreated
	case row.audit.FieldsChanged > 0:
		action = model.RowActionUpdated
	}

	var (
		persisted *model.Member
		err       error
	)
	if row.member.ID == "" {
		persisted, err = s.repo.CreateMember(ctx, row.member)
	} else {
		persisted, err = s.repo.UpdateMember(ctx, row.member)
	}

	audit := &model.AuditRecord{
		BatchID:       batchID,
		Action:        action,
		Messages:      row.audit.ChangeMessages,
		FieldsChanged: row.audit.FieldsChanged,
		FieldsSkipped: row.audit.FieldsSkipped,
	}

	outcome := model.RowOutcome{Audit: row.audit}

	if err != nil {
		// The failing payload travels with the audit record so the row can
		// be re-submitted manually.
		audit.Action = model.RowActionError
		audit.ErrorBody = err.Error()
		if payload, marshalErr := json.Marshal(row.member); marshalErr == nil {
			audit.MemberPayload = payload
		}

		outcome.Action = model.RowActionError
		outcome.Error = err.Error()

		s.logger.Warn("bulk load row failed",
			zap.String("batchID", batchID),
			zap.String("userName", row.member.UserName),
			zap.Error(err))
	} else {
		audit.MemberID = persisted.ID

		outcome.Action = action
		outcome.MemberID = persisted.ID

		s.logger.Info("bulk load row processed",
			zap.String("batchID", batchID),
			zap.String("memberID", persisted.ID),
			zap.String("action", string(action)))
	}

	if _, auditErr := s.repo.CreateAudit(ctx, audit); auditErr != nil {
		s.logger.Error("write audit record", zap.String("batchID", batchID), zap.Error(auditErr))
	}

	return outcome
}

// SyncMailList runs one mailing-list synchronisation pass.
func (s *Service) SyncMailList(ctx context.Context) (*model.MailSyncReport, error) {
	return s.updater.Sync(ctx)
}

// StartMailSync launches the periodic mailing-list synchronisation loop.
func (s *Service) StartMailSync(ctx context.Context, interval time.Duration) {
	if interval <= 0 || s.strategy.Name() == model.MailProviderNone {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := s.updater.Sync(ctx)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						s.logger.Error("mail sync pass failed", zap.Error(err))
					}
					continue
				}
				s.logger.Info("mail sync pass complete",
					zap.Int("subscribed", report.Subscribed),
					zap.Int("removed", report.Removed),
					zap.Int("unchanged", report.Unchanged),
					zap.Int("failures", len(report.Failures)))
			}
		}
	}()
}

// Package repository contains the PostgreSQL data access layer.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ramblersclub/membership-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrMemberExists is returned when a member with the same username already exists.
var (
	ErrMemberExists = errors.New("member already exists")
	// ErrMemberNotFound is returned when no member matches the given id.
	ErrMemberNotFound = errors.New("member not found")
)

// PostgresRepository provides access to the membership store in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates the repository and initialises the schema
// through migrations.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Serialization failures and deadlocks are worth retrying; the pool
		// handles reconnects itself.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close closes the connection pool.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

const memberColumns = `id, first_name, last_name, display_name, user_name, email, mobile,
	postcode, membership_number, group_member, social_member, committee_member,
	revoked, marketing_consent, consent_updated_at, membership_expiry_date,
	joint_with, mail_subscribed, created_at, created_by, updated_at, updated_by`

func scanMember(row pgx.Row) (*model.Member, error) {
	var m model.Member
	err := row.Scan(
		&m.ID, &m.FirstName, &m.LastName, &m.DisplayName, &m.UserName, &m.Email, &m.Mobile,
		&m.Postcode, &m.MembershipNumber, &m.GroupMember, &m.SocialMember, &m.CommitteeMember,
		&m.Revoked, &m.MarketingConsent, &m.ConsentUpdatedAt, &m.MembershipExpiryDate,
		&m.JointWith, &m.MailSubscribed, &m.CreatedAt, &m.CreatedBy, &m.UpdatedAt, &m.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMember inserts a new member and returns it with its assigned id.
func (r *PostgresRepository) CreateMember(ctx context.Context, m *model.Member) (*model.Member, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now()
	m.CreatedAt = now
	m.UpdatedAt = now

	err := r.withRetry(ctx, func() error {
		_, execErr := r.pool.Exec(ctx,
			`INSERT INTO members (id, first_name, last_name, display_name, user_name, email, mobile,
				postcode, membership_number, group_member, social_member, committee_member,
				revoked, marketing_consent, consent_updated_at, membership_expiry_date,
				joint_with, mail_subscribed, created_at, created_by, updated_at, updated_by)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
			m.ID, m.FirstName, m.LastName, m.DisplayName, m.UserName, m.Email, m.Mobile,
			m.Postcode, m.MembershipNumber, m.GroupMember, m.SocialMember, m.CommitteeMember,
			m.Revoked, m.MarketingConsent, m.ConsentUpdatedAt, m.MembershipExpiryDate,
			m.JointWith, m.MailSubscribed, m.CreatedAt, m.CreatedBy, m.UpdatedAt, m.UpdatedBy,
		)
		return execErr
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrMemberExists, m.UserName)
		}
		return nil, fmt.Errorf("create member: %w", err)
	}

	return m, nil
}

// UpdateMember persists changes to an existing member.
func (r *PostgresRepository) UpdateMember(ctx context.Context, m *model.Member) (*model.Member, error) {
	m.UpdatedAt = time.Now()

	var tag pgconn.CommandTag
	err := r.withRetry(ctx, func() error {
		var execErr error
		tag, execErr = r.pool.Exec(ctx,
			`UPDATE members SET first_name = $2, last_name = $3, display_name = $4, user_name = $5,
				email = $6, mobile = $7, postcode = $8, membership_number = $9,
				group_member = $10, social_member = $11, committee_member = $12,
				revoked = $13, marketing_consent = $14, consent_updated_at = $15,
				membership_expiry_date = $16, joint_with = $17, mail_subscribed = $18,
				updated_at = $19, updated_by = $20
			 WHERE id = $1`,
			m.ID, m.FirstName, m.LastName, m.DisplayName, m.UserName,
			m.Email, m.Mobile, m.Postcode, m.MembershipNumber,
			m.GroupMember, m.SocialMember, m.CommitteeMember,
			m.Revoked, m.MarketingConsent, m.ConsentUpdatedAt,
			m.MembershipExpiryDate, m.JointWith, m.MailSubscribed,
			m.UpdatedAt, m.UpdatedBy,
		)
		return execErr
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, fmt.Errorf("%w: %s", ErrMemberExists, m.UserName)
		}
		return nil, fmt.Errorf("update member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrMemberNotFound
	}

	return m, nil
}

// GetMember returns the member with the given id.
func (r *PostgresRepository) GetMember(ctx context.Context, id string) (*model.Member, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id)

	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("get member: %w", err)
	}

	return m, nil
}

// ListMembers returns all members ordered by name.
func (r *PostgresRepository) ListMembers(ctx context.Context) ([]model.Member, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+memberColumns+` FROM members ORDER BY last_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("select members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return members, nil
}

// DeleteMember removes the member with the given id.
func (r *PostgresRepository) DeleteMember(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// CreateAudit persists one bulk-load audit record.
func (r *PostgresRepository) CreateAudit(ctx context.Context, a *model.AuditRecord) (*model.AuditRecord, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.CreatedAt = time.Now()

	messages, err := json.Marshal(a.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}

	payload := a.MemberPayload
	if len(payload) == 0 {
		payload = []byte("null")
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO member_audits (id, batch_id, member_id, action, messages,
			fields_changed, fields_skipped, member_payload, error_body, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.BatchID, a.MemberID, string(a.Action), messages,
		a.FieldsChanged, a.FieldsSkipped, payload, a.ErrorBody, a.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create audit: %w", err)
	}

	return a, nil
}

// ListAuditsByBatch returns the audit records of one bulk-load batch.
func (r *PostgresRepository) ListAuditsByBatch(ctx context.Context, batchID string) ([]model.AuditRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, batch_id, member_id, action, messages,
			fields_changed, fields_skipped, member_payload, error_body, created_at
		 FROM member_audits
		 WHERE batch_id = $1
		 ORDER BY created_at`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("select audits: %w", err)
	}
	defer rows.Close()

	var audits []model.AuditRecord
	for rows.Next() {
		var (
			a        model.AuditRecord
			action   string
			messages []byte
		)
		if err := rows.Scan(&a.ID, &a.BatchID, &a.MemberID, &action, &messages,
			&a.FieldsChanged, &a.FieldsSkipped, &a.MemberPayload, &a.ErrorBody, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}

		a.Action = model.RowAction(action)
		if err := json.Unmarshal(messages, &a.Messages); err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}

		audits = append(audits, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return audits, nil
}

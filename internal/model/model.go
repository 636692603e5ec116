// Package model contains the domain entities of the membership service.
package model

import "time"

// Member represents a persisted club member record.
type Member struct {
	ID                   string
	FirstName            string
	LastName             string
	DisplayName          string
	UserName             string
	Email                string
	Mobile               string
	Postcode             string
	MembershipNumber     string
	GroupMember          bool
	SocialMember         bool
	CommitteeMember      bool
	Revoked              bool
	MarketingConsent     bool
	ConsentUpdatedAt     int64 // date-only epoch milliseconds
	MembershipExpiryDate int64 // date-only epoch milliseconds
	JointWith            string
	MailSubscribed       bool
	CreatedAt            time.Time
	CreatedBy            string
	UpdatedAt            time.Time
	UpdatedBy            string
}

// ImportRecord is one row of a membership-registry export. Values are kept
// as read from the source; typed coercion happens in the rule engine.
type ImportRecord struct {
	MembershipNumber     string
	FirstName            string
	LastName             string
	Email                string
	Mobile               string
	Postcode             string
	MembershipExpiryDate string
	MarketingConsent     string
	ConsentUpdatedAt     string
	JointWith            string
}

// Contact carries the optional external contact-list data supplied alongside
// an import row. Mobile and free-text name matching is only attempted when a
// contact is present.
type Contact struct {
	Name   string
	Email  string
	Mobile string
}

// UpdateAudit accumulates the per-field outcome of reconciling one row.
type UpdateAudit struct {
	ChangeMessages []string
	FieldsChanged  int
	FieldsSkipped  int
}

// RowAction describes the overall outcome of one bulk-load row.
type RowAction string

const (
	RowActionCreated RowAction = "created"
	RowActionUpdated RowAction = "updated"
	RowActionSkipped RowAction = "skipped"
	RowActionError   RowAction = "error"
)

// AuditRecord is the persisted log entry for one reconciled row.
type AuditRecord struct {
	ID            string
	BatchID       string
	MemberID      string
	Action        RowAction
	Messages      []string
	FieldsChanged int
	FieldsSkipped int
	MemberPayload []byte
	ErrorBody     string
	CreatedAt     time.Time
}

// RowOutcome is the in-memory result of one bulk-load row.
type RowOutcome struct {
	Action   RowAction
	MemberID string
	Audit    UpdateAudit
	Error    string
}

// BatchSummary aggregates a completed bulk load.
type BatchSummary struct {
	BatchID string
	Created int
	Updated int
	Skipped int
	Errors  int
	Rows    []RowOutcome
}

// MailProvider identifies the configured transactional email provider.
type MailProvider string

const (
	MailProviderBrevo     MailProvider = "brevo"
	MailProviderMailchimp MailProvider = "mailchimp"
	MailProviderNone      MailProvider = "none"
)

// MailSubscription is one subscriber entry on the provider's list.
type MailSubscription struct {
	Email     string
	FirstName string
	LastName  string
}

// MailSyncReport summarises one mailing-list synchronisation pass.
type MailSyncReport struct {
	Provider   MailProvider
	Subscribed int
	Removed    int
	Unchanged  int
	Failures   []string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Package handler contains the HTTP handlers of the membership service API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ramblersclub/membership-system/internal/importfile"
	"github.com/ramblersclub/membership-system/internal/middleware"
	"github.com/ramblersclub/membership-system/internal/model"
	"github.com/ramblersclub/membership-system/internal/repository"
	"github.com/ramblersclub/membership-system/internal/validation"
)

// maxUploadSize caps bulk-load request bodies at 16 MiB.
const maxUploadSize = 16 << 20

// Service defines the business-logic contract used by the HTTP handlers.
type Service interface {
	CreateMember(ctx context.Context, m *model.Member) (*model.Member, error)
	UpdateMember(ctx context.Context, m *model.Member) (*model.Member, error)
	GetMember(ctx context.Context, id string) (*model.Member, error)
	ListMembers(ctx context.Context) ([]model.Member, error)
	DeleteMember(ctx context.Context, id string) error
	BulkLoad(ctx context.Context, records []model.ImportRecord, contacts []*model.Contact) (*model.BatchSummary, error)
	AuditsByBatch(ctx context.Context, batchID string) ([]model.AuditRecord, error)
	SyncMailList(ctx context.Context) (*model.MailSyncReport, error)
}

// Handler implements the HTTP handlers of the membership service API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	adminUser      string
	adminPassword  string
}

// NewHandler creates a new HTTP request handler.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, adminUser, adminPassword string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		adminUser:      adminUser,
		adminPassword:  adminPassword,
	}
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login authenticates the administrator and sets the session cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login != h.adminUser || req.Password != h.adminPassword {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	h.authMiddleware.SetSessionCookie(w, req.Login)
	w.WriteHeader(http.StatusOK)
}

type memberPayload struct {
	ID                   string `json:"id,omitempty"`
	FirstName            string `json:"firstName"`
	LastName             string `json:"lastName"`
	DisplayName          string `json:"displayName"`
	UserName             string `json:"userName"`
	Email                string `json:"email"`
	Mobile               string `json:"mobile"`
	Postcode             string `json:"postcode"`
	MembershipNumber     string `json:"membershipNumber"`
	GroupMember          bool   `json:"groupMember"`
	SocialMember         bool   `json:"socialMember"`
	CommitteeMember      bool   `json:"committeeMember"`
	Revoked              bool   `json:"revoked"`
	MarketingConsent     bool   `json:"marketingConsent"`
	ConsentUpdatedAt     int64  `json:"consentUpdatedAt"`
	MembershipExpiryDate int64  `json:"membershipExpiryDate"`
	JointWith            string `json:"jointWith"`
	MailSubscribed       bool   `json:"mailSubscribed"`
	CreatedAt            string `json:"createdAt,omitempty"`
	UpdatedAt            string `json:"updatedAt,omitempty"`
}

func toMemberPayload(m *model.Member) memberPayload {
	p := memberPayload{
		ID:                   m.ID,
		FirstName:            m.FirstName,
		LastName:             m.LastName,
		DisplayName:          m.DisplayName,
		UserName:             m.UserName,
		Email:                m.Email,
		Mobile:               m.Mobile,
		Postcode:             m.Postcode,
		MembershipNumber:     m.MembershipNumber,
		GroupMember:          m.GroupMember,
		SocialMember:         m.SocialMember,
		CommitteeMember:      m.CommitteeMember,
		Revoked:              m.Revoked,
		MarketingConsent:     m.MarketingConsent,
		ConsentUpdatedAt:     m.ConsentUpdatedAt,
		MembershipExpiryDate: m.MembershipExpiryDate,
		JointWith:            m.JointWith,
		MailSubscribed:       m.MailSubscribed,
	}
	if !m.CreatedAt.IsZero() {
		p.CreatedAt = m.CreatedAt.Format(time.RFC3339)
	}
	if !m.UpdatedAt.IsZero() {
		p.UpdatedAt = m.UpdatedAt.Format(time.RFC3339)
	}
	return p
}

func (p *memberPayload) toModel() *model.Member {
	return &model.Member{
		ID:                   p.ID,
		FirstName:            p.FirstName,
		LastName:             p.LastName,
		DisplayName:          p.DisplayName,
		UserName:             p.UserName,
		Email:                p.Email,
		Mobile:               p.Mobile,
		Postcode:             p.Postcode,
		MembershipNumber:     p.MembershipNumber,
		GroupMember:          p.GroupMember,
		SocialMember:         p.SocialMember,
		CommitteeMember:      p.CommitteeMember,
		Revoked:              p.Revoked,
		MarketingConsent:     p.MarketingConsent,
		ConsentUpdatedAt:     p.ConsentUpdatedAt,
		MembershipExpiryDate: p.MembershipExpiryDate,
		JointWith:            p.JointWith,
		MailSubscribed:       p.MailSubscribed,
	}
}

// CreateMember registers a single member record.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req memberPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email != "" && !validation.IsValidEmail(req.Email) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}
	if req.MembershipNumber != "" && !validation.IsValidMembershipNumber(req.MembershipNumber) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	created, err := h.service.CreateMember(r.Context(), req.toModel())
	if err != nil {
		if errors.Is(err, repository.ErrMemberExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("create member error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(toMemberPayload(created)); err != nil {
		h.logger.Error("encode member error", zap.Error(err))
	}
}

// UpdateMember replaces an existing member record.
func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req memberPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	req.ID = id

	updated, err := h.service.UpdateMember(r.Context(), req.toModel())
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("update member error", zap.Error(err), zap.String("memberID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toMemberPayload(updated)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// GetMember returns one member by identifier.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	member, err := h.service.GetMember(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get member error", zap.Error(err), zap.String("memberID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(toMemberPayload(member)); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// ListMembers returns every member record.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.ListMembers(r.Context())
	if err != nil {
		h.logger.Error("list members error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(members) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]memberPayload, 0, len(members))
	for i := range members {
		resp = append(resp, toMemberPayload(&members[i]))
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

// DeleteMember removes one member by identifier.
func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteMember(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("delete member error", zap.Error(err), zap.String("memberID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type contactPayload struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile string `json:"mobile"`
}

type rowOutcomeResponse struct {
	Action        string   `json:"action"`
	MemberID      string   `json:"memberId,omitempty"`
	Messages      []string `json:"messages,omitempty"`
	FieldsChanged int      `json:"fieldsChanged"`
	FieldsSkipped int      `json:"fieldsSkipped"`
	Error         string   `json:"error,omitempty"`
}

type batchSummaryResponse struct {
	BatchID string               `json:"batchId"`
	Created int                  `json:"created"`
	Updated int                  `json:"updated"`
	Skipped int                  `json:"skipped"`
	Errors  int                  `json:"errors"`
	Rows    []rowOutcomeResponse `json:"rows"`
}

// BulkLoad accepts a membership-registry export and reconciles it against the
// stored members. The upload is a multipart form with a "file" part (CSV or
// XLSX) and an optional "contacts" part holding a JSON array aligned with the
// file rows.
func (h *Handler) BulkLoad(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	defer file.Close()

	var records []model.ImportRecord
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".csv":
		records, err = importfile.ReadCSV(file)
	case ".xlsx":
		records, err = importfile.ReadXLSX(file)
	default:
		http.Error(w, "unsupported file type", http.StatusUnsupportedMediaType)
		return
	}
	if err != nil {
		h.logger.Warn("parse upload error", zap.Error(err), zap.String("filename", header.Filename))
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	contacts, err := h.readContacts(r, len(records))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	summary, err := h.service.BulkLoad(r.Context(), records, contacts)
	if err != nil {
		h.logger.Error("bulk load error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := batchSummaryResponse{
		BatchID: summary.BatchID,
		Created: summary.Created,
		Updated: summary.Updated,
		Skipped: summary.Skipped,
		Errors:  summary.Errors,
		Rows:    make([]rowOutcomeResponse, 0, len(summary.Rows)),
	}
	for _, row := range summary.Rows {
		resp.Rows = append(resp.Rows, rowOutcomeResponse{
			Action:        string(row.Action),
			MemberID:      row.MemberID,
			Messages:      row.Audit.ChangeMessages,
			FieldsChanged: row.Audit.FieldsChanged,
			FieldsSkipped: row.Audit.FieldsSkipped,
			Error:         row.Error,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

func (h *Handler) readContacts(r *http.Request, rows int) ([]*model.Contact, error) {
	part, _, err := r.FormFile("contacts")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return make([]*model.Contact, rows), nil
		}
		return nil, err
	}
	defer part.Close()

	body, err := io.ReadAll(part)
	if err != nil {
		return nil, err
	}

	var payloads []*contactPayload
	if err := json.Unmarshal(body, &payloads); err != nil {
		return nil, err
	}

	contacts := make([]*model.Contact, rows)
	for i, p := range payloads {
		if i >= rows || p == nil {
			continue
		}
		contacts[i] = &model.Contact{Name: p.Name, Email: p.Email, Mobile: p.Mobile}
	}
	return contacts, nil
}

type auditResponse struct {
	ID            string   `json:"id"`
	BatchID       string   `json:"batchId"`
	MemberID      string   `json:"memberId,omitempty"`
	Action        string   `json:"action"`
	Messages      []string `json:"messages,omitempty"`
	FieldsChanged int      `json:"fieldsChanged"`
	FieldsSkipped int      `json:"fieldsSkipped"`
	Error         string   `json:"error,omitempty"`
	CreatedAt     string   `json:"createdAt"`
}

// GetBatchAudits returns the persisted audit trail of one bulk load.
func (h *Handler) GetBatchAudits(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	audits, err := h.service.AuditsByBatch(r.Context(), batchID)
	if err != nil {
		h.logger.Error("get batch audits error", zap.Error(err), zap.String("batchID", batchID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(audits) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]auditResponse, 0, len(audits))
	for _, a := range audits {
		resp = append(resp, auditResponse{
			ID:            a.ID,
			BatchID:       a.BatchID,
			MemberID:      a.MemberID,
			Action:        string(a.Action),
			Messages:      a.Messages,
			FieldsChanged: a.FieldsChanged,
			FieldsSkipped: a.FieldsSkipped,
			Error:         a.ErrorBody,
			CreatedAt:     a.CreatedAt.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

type mailSyncResponse struct {
	Provider   string   `json:"provider"`
	Subscribed int      `json:"subscribed"`
	Removed    int      `json:"removed"`
	Unchanged  int      `json:"unchanged"`
	Failures   []string `json:"failures,omitempty"`
	StartedAt  string   `json:"startedAt"`
	FinishedAt string   `json:"finishedAt"`
}

// SyncMailList runs an immediate mailing-list synchronisation pass.
func (h *Handler) SyncMailList(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.SyncMailList(r.Context())
	if err != nil {
		h.logger.Error("mail sync error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := mailSyncResponse{
		Provider:   string(report.Provider),
		Subscribed: report.Subscribed,
		Removed:    report.Removed,
		Unchanged:  report.Unchanged,
		Failures:   report.Failures,
		StartedAt:  report.StartedAt.Format(time.RFC3339),
		FinishedAt: report.FinishedAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
}

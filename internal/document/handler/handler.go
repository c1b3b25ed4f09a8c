// Package handler exposes the document workflow over HTTP. Signer-facing
// routes require a JWT; the token redeem route is public because the token
// itself is the credential.
package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"paraph/internal/audit"
	"paraph/internal/document/models"
	"paraph/internal/platform/middleware"
	"paraph/internal/signature/capture"
	dErrors "paraph/pkg/domain-errors"
	"paraph/pkg/platform/httputil"
	"paraph/pkg/requestcontext"
)

// Service is the document workflow surface the handler needs.
type Service interface {
	Create(ctx context.Context, name, contentRef, mimeKind string, deadline time.Time) (*models.Document, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Document, error)
	List(ctx context.Context) ([]*models.Document, error)
	AddSigner(ctx context.Context, documentID uuid.UUID, name, address string) (*models.Signer, error)
	AddRecipient(ctx context.Context, documentID uuid.UUID, name, address string) (*models.Recipient, error)
	RecordSignature(ctx context.Context, documentID, signerID uuid.UUID, artifact capture.Artifact) (*models.Document, error)
	DeclineSignature(ctx context.Context, documentID, signerID uuid.UUID) (*models.Document, error)
	SendForSigning(ctx context.Context, documentID uuid.UUID) (*models.Document, error)
	RedeemAndSign(ctx context.Context, documentID uuid.UUID, tokenString string, artifact capture.Artifact) (*models.Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Download(ctx context.Context, id uuid.UUID) (io.ReadCloser, string, error)
	Trail(ctx context.Context, id uuid.UUID) ([]audit.Event, error)
}

// Handler handles document workflow endpoints.
type Handler struct {
	logger      *slog.Logger
	documents   Service
	validator   middleware.JWTValidator
	uploadLimit int64
}

// Option configures the handler.
type Option func(*Handler)

// WithUploadLimit overrides the default bound on uploaded signature files.
func WithUploadLimit(limit int64) Option {
	return func(h *Handler) {
		if limit > 0 {
			h.uploadLimit = limit
		}
	}
}

func New(documents Service, logger *slog.Logger, validator middleware.JWTValidator, opts ...Option) *Handler {
	h := &Handler{
		logger:      logger,
		documents:   documents,
		validator:   validator,
		uploadLimit: capture.DefaultUploadLimit,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the document routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/documents", h.handleCreate)
		r.Get("/documents", h.handleList)
		r.Get("/documents/{documentID}", h.handleGet)
		r.Delete("/documents/{documentID}", h.handleDelete)
		r.Get("/documents/{documentID}/download", h.handleDownload)
		r.Get("/documents/{documentID}/audit", h.handleTrail)
		r.Post("/documents/{documentID}/signers", h.handleAddSigner)
		r.Post("/documents/{documentID}/recipients", h.handleAddRecipient)
		r.Post("/documents/{documentID}/signers/{signerID}/signature", h.handleRecordSignature)
		r.Post("/documents/{documentID}/signers/{signerID}/decline", h.handleDecline)
		r.Post("/documents/{documentID}/send", h.handleSend)
	})

	// Possession of the token is the recipient's credential.
	r.Post("/documents/{documentID}/sign/{token}", h.handleRedeemAndSign)
}

type createDocumentRequest struct {
	Name       string     `json:"name"`
	ContentRef string     `json:"content_ref"`
	MimeKind   string     `json:"mime_kind"`
	Deadline   *time.Time `json:"deadline,omitempty"`
}

type documentResponse struct {
	*models.Document
	Overdue bool `json:"overdue"`
}

func (h *Handler) respondDocument(ctx context.Context, w http.ResponseWriter, status int, doc *models.Document) {
	httputil.WriteJSON(w, status, documentResponse{
		Document: doc,
		Overdue:  doc.Overdue(requestcontext.Now(ctx)),
	})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	deadline := time.Time{}
	if req.Deadline != nil {
		deadline = *req.Deadline
	}

	doc, err := h.documents.Create(ctx, req.Name, req.ContentRef, req.MimeKind, deadline)
	if err != nil {
		h.writeServiceError(ctx, w, "create document", err)
		return
	}
	h.respondDocument(ctx, w, http.StatusCreated, doc)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docs, err := h.documents.List(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "list documents", err)
		return
	}
	now := requestcontext.Now(ctx)
	out := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		out = append(out, documentResponse{Document: doc, Overdue: doc.Overdue(now)})
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.documents.Get(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "get document", err)
		return
	}
	h.respondDocument(ctx, w, http.StatusOK, doc)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.documents.Delete(ctx, id); err != nil {
		h.writeServiceError(ctx, w, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	reader, mime, err := h.documents.Download(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "download document", err)
		return
	}
	defer reader.Close()

	if mime != "" {
		w.Header().Set("Content-Type", mime)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.WarnContext(ctx, "download stream interrupted",
			"document_id", id, "error", err)
	}
}

func (h *Handler) handleTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	trail, err := h.documents.Trail(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "load audit trail", err)
		return
	}
	if trail == nil {
		trail = []audit.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, trail)
}

type partyRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *Handler) handleAddSigner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req partyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	signer, err := h.documents.AddSigner(ctx, id, req.Name, req.Email)
	if err != nil {
		h.writeServiceError(ctx, w, "add signer", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, signer)
}

func (h *Handler) handleAddRecipient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req partyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	recipient, err := h.documents.AddRecipient(ctx, id, req.Name, req.Email)
	if err != nil {
		h.writeServiceError(ctx, w, "add recipient", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, recipient)
}

// signatureRequest carries one committed capture in any of the three modes.
type signatureRequest struct {
	Mode    string               `json:"mode"`
	Strokes []capture.Stroke     `json:"strokes,omitempty"`
	Text    string               `json:"text,omitempty"`
	Style   *capture.TextStyle   `json:"style,omitempty"`
	Upload  *signatureUploadPart `json:"upload,omitempty"`
}

type signatureUploadPart struct {
	Mime string `json:"mime"`
	Data string `json:"data"` // base64
}

func (h *Handler) handleRecordSignature(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	signerID, err := uuid.Parse(chi.URLParam(r, "signerID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signer id"))
		return
	}

	artifact, err := h.captureArtifact(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.documents.RecordSignature(ctx, id, signerID, artifact)
	if err != nil {
		h.writeServiceError(ctx, w, "record signature", err)
		return
	}
	h.respondDocument(ctx, w, http.StatusOK, doc)
}

func (h *Handler) handleDecline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	signerID, err := uuid.Parse(chi.URLParam(r, "signerID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid signer id"))
		return
	}

	doc, err := h.documents.DeclineSignature(ctx, id, signerID)
	if err != nil {
		h.writeServiceError(ctx, w, "decline signature", err)
		return
	}
	h.respondDocument(ctx, w, http.StatusOK, doc)
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.documents.SendForSigning(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "send for signing", err)
		return
	}
	h.respondDocument(ctx, w, http.StatusOK, doc)
}

func (h *Handler) handleRedeemAndSign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	tokenString := chi.URLParam(r, "token")

	artifact, err := h.captureArtifact(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	doc, err := h.documents.RedeemAndSign(ctx, id, tokenString, artifact)
	if err != nil {
		h.writeServiceError(ctx, w, "redeem and sign", err)
		return
	}
	h.respondDocument(ctx, w, http.StatusOK, doc)
}

// captureArtifact replays the request payload through a capture session so
// every validation rule of the capture module applies to HTTP submissions.
func (h *Handler) captureArtifact(r *http.Request) (capture.Artifact, error) {
	var req signatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return capture.Artifact{}, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}

	session, err := capture.NewSession(capture.Mode(req.Mode), capture.WithUploadLimit(h.uploadLimit))
	if err != nil {
		return capture.Artifact{}, err
	}

	switch session.Mode() {
	case capture.ModeDraw:
		for _, stroke := range req.Strokes {
			if err := session.AddStroke(stroke); err != nil {
				return capture.Artifact{}, err
			}
		}
	case capture.ModeType:
		if req.Text != "" {
			if err := session.SetText(req.Text); err != nil {
				return capture.Artifact{}, err
			}
		}
		if req.Style != nil {
			if err := session.SetStyle(*req.Style); err != nil {
				return capture.Artifact{}, err
			}
		}
	case capture.ModeUpload:
		if req.Upload == nil {
			return capture.Artifact{}, dErrors.New(dErrors.CodeBadRequest, "upload payload is required")
		}
		data, err := base64.StdEncoding.DecodeString(req.Upload.Data)
		if err != nil {
			return capture.Artifact{}, dErrors.New(dErrors.CodeBadRequest, "upload data must be base64")
		}
		if err := session.AcceptUpload(req.Upload.Mime, int64(len(data)), bytes.NewReader(data)); err != nil {
			return capture.Artifact{}, err
		}
	}

	return session.Commit()
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid document id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "document operation failed",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, "document operation rejected",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

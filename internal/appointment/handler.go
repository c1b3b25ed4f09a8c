package appointment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"paraph/internal/platform/middleware"
	"paraph/internal/signature/capture"
	dErrors "paraph/pkg/domain-errors"
	"paraph/pkg/platform/httputil"
	"paraph/pkg/requestcontext"
)

// Handler exposes the appointment book over HTTP. Every route requires a JWT.
type Handler struct {
	logger       *slog.Logger
	appointments *Service
	validator    middleware.JWTValidator
}

func NewHandler(appointments *Service, logger *slog.Logger, validator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		appointments: appointments,
		validator:    validator,
	}
}

// Register mounts the appointment routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))
		r.Post("/appointments", h.handleCreate)
		r.Get("/appointments", h.handleList)
		r.Get("/appointments/{appointmentID}", h.handleGet)
		r.Post("/appointments/{appointmentID}/confirm", h.handleConfirm)
		r.Post("/appointments/{appointmentID}/documents", h.handleAttachDocument)
		r.Post("/appointments/{appointmentID}/documents/{uploadID}/finish", h.handleFinishUpload)
		r.Post("/appointments/{appointmentID}/documents/{uploadID}/request-verification", h.handleRequestVerification)
		r.Post("/appointments/{appointmentID}/documents/{uploadID}/verify", h.handleVerify)
	})
}

type createAppointmentRequest struct {
	ClientName    string    `json:"client_name"`
	WitnessName   string    `json:"witness_name,omitempty"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	DocumentNames []string  `json:"document_names,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	appointment, err := h.appointments.Create(ctx, req.ClientName, req.WitnessName, req.ScheduledAt, req.DocumentNames)
	if err != nil {
		h.writeServiceError(ctx, w, "create appointment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, appointment)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	appointments, err := h.appointments.List(ctx)
	if err != nil {
		h.writeServiceError(ctx, w, "list appointments", err)
		return
	}
	if appointments == nil {
		appointments = []Appointment{}
	}
	httputil.WriteJSON(w, http.StatusOK, appointments)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.appointmentID(w, r)
	if !ok {
		return
	}
	appointment, err := h.appointments.Get(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "get appointment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, appointment)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.appointmentID(w, r)
	if !ok {
		return
	}
	appointment, err := h.appointments.Confirm(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "confirm appointment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, appointment)
}

type attachDocumentRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleAttachDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.appointmentID(w, r)
	if !ok {
		return
	}
	var req attachDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	doc, err := h.appointments.AttachDocument(ctx, id, req.Name)
	if err != nil {
		h.writeServiceError(ctx, w, "attach document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

func (h *Handler) handleFinishUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, uploadID, ok := h.uploadIDs(w, r)
	if !ok {
		return
	}
	appointment, err := h.appointments.FinishUpload(ctx, id, uploadID)
	if err != nil {
		h.writeServiceError(ctx, w, "finish upload", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, appointment)
}

func (h *Handler) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, uploadID, ok := h.uploadIDs(w, r)
	if !ok {
		return
	}
	appointment, err := h.appointments.RequestVerification(ctx, id, uploadID)
	if err != nil {
		h.writeServiceError(ctx, w, "request verification", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, appointment)
}

// verifyRequest pairs the operator acknowledgment with the witness capture.
type verifyRequest struct {
	OperatorAck bool               `json:"operator_ack"`
	WitnessKey  string             `json:"witness_key,omitempty"`
	Signature   *signaturePayload  `json:"signature,omitempty"`
}

type signaturePayload struct {
	Mode    string             `json:"mode"`
	Strokes []capture.Stroke   `json:"strokes,omitempty"`
	Text    string             `json:"text,omitempty"`
	Style   *capture.TextStyle `json:"style,omitempty"`
	Upload  *uploadPart        `json:"upload,omitempty"`
}

type uploadPart struct {
	Mime string `json:"mime"`
	Data string `json:"data"` // base64
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, uploadID, ok := h.uploadIDs(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	var artifact *capture.Artifact
	if req.Signature != nil {
		committed, err := captureWitnessArtifact(*req.Signature)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		artifact = &committed
	}

	appointment, err := h.appointments.VerifyDocument(ctx, id, uploadID, req.OperatorAck, artifact, req.WitnessKey)
	if err != nil {
		h.writeServiceError(ctx, w, "verify document", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, appointment)
}

// captureWitnessArtifact replays the payload through a capture session so the
// witness signature obeys the same rules as any other capture.
func captureWitnessArtifact(payload signaturePayload) (capture.Artifact, error) {
	session, err := capture.NewSession(capture.Mode(payload.Mode))
	if err != nil {
		return capture.Artifact{}, err
	}

	switch session.Mode() {
	case capture.ModeDraw:
		for _, stroke := range payload.Strokes {
			if err := session.AddStroke(stroke); err != nil {
				return capture.Artifact{}, err
			}
		}
	case capture.ModeType:
		if payload.Text != "" {
			if err := session.SetText(payload.Text); err != nil {
				return capture.Artifact{}, err
			}
		}
		if payload.Style != nil {
			if err := session.SetStyle(*payload.Style); err != nil {
				return capture.Artifact{}, err
			}
		}
	case capture.ModeUpload:
		if payload.Upload == nil {
			return capture.Artifact{}, dErrors.New(dErrors.CodeBadRequest, "upload payload is required")
		}
		data, err := base64.StdEncoding.DecodeString(payload.Upload.Data)
		if err != nil {
			return capture.Artifact{}, dErrors.New(dErrors.CodeBadRequest, "upload data must be base64")
		}
		if err := session.AcceptUpload(payload.Upload.Mime, int64(len(data)), bytes.NewReader(data)); err != nil {
			return capture.Artifact{}, err
		}
	}

	return session.Commit()
}

func (h *Handler) appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid appointment id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) uploadIDs(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	id, ok := h.appointmentID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	uploadID, err := uuid.Parse(chi.URLParam(r, "uploadID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid document id"))
		return uuid.Nil, uuid.Nil, false
	}
	return id, uploadID, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "appointment operation failed",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, "appointment operation rejected",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

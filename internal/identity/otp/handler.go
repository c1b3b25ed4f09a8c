package otp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"paraph/internal/platform/middleware"
	dErrors "paraph/pkg/domain-errors"
	"paraph/pkg/platform/httputil"
	"paraph/pkg/requestcontext"
)

// Handler exposes the verification state machine over HTTP. Request and
// resend are throttled per client IP; submit is not, the attempt policy
// covers brute force there.
type Handler struct {
	logger    *slog.Logger
	verifier  *Service
	validator middleware.JWTValidator
	limiter   *middleware.RateLimiter
}

func NewHandler(verifier *Service, logger *slog.Logger, validator middleware.JWTValidator, limiter *middleware.RateLimiter) *Handler {
	return &Handler{
		logger:    logger,
		verifier:  verifier,
		validator: validator,
		limiter:   limiter,
	}
}

// Register mounts the verification routes.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Group(func(r chi.Router) {
			if h.limiter != nil {
				r.Use(h.limiter.Limit)
			}
			r.Post("/verification/otp", h.handleRequest)
			r.Post("/verification/otp/resend", h.handleResend)
		})

		r.Post("/verification/otp/submit", h.handleSubmit)
		r.Get("/verification/status", h.handleStatus)
	})
}

type requestOTPRequest struct {
	SubjectKey string `json:"subject_key"`
	IDNumber   string `json:"id_number"`
	Address    string `json:"address"`
}

func (h *Handler) handleRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req requestOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	subjectKey, ok := h.subjectKey(w, req.SubjectKey)
	if !ok {
		return
	}
	if err := h.verifier.RequestOTP(ctx, subjectKey, req.IDNumber, req.Address); err != nil {
		h.writeServiceError(ctx, w, "request otp", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"state": string(StateOTPSent)})
}

type submitOTPRequest struct {
	SubjectKey string `json:"subject_key"`
	Code       string `json:"code"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req submitOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	subjectKey, ok := h.subjectKey(w, req.SubjectKey)
	if !ok {
		return
	}
	if err := h.verifier.SubmitOTP(ctx, subjectKey, req.Code); err != nil {
		h.writeServiceError(ctx, w, "submit otp", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": string(StateVerified)})
}

type resendOTPRequest struct {
	SubjectKey string `json:"subject_key"`
}

func (h *Handler) handleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req resendOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	subjectKey, ok := h.subjectKey(w, req.SubjectKey)
	if !ok {
		return
	}
	if err := h.verifier.ResendOTP(ctx, subjectKey); err != nil {
		h.writeServiceError(ctx, w, "resend otp", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"state": string(StateOTPSent)})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectKey, ok := h.subjectKey(w, r.URL.Query().Get("subject_key"))
	if !ok {
		return
	}
	state, err := h.verifier.Status(ctx, subjectKey)
	if err != nil {
		h.writeServiceError(ctx, w, "verification status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"state": string(state)})
}

func (h *Handler) subjectKey(w http.ResponseWriter, key string) (string, bool) {
	if key == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "subject_key is required"))
		return "", false
	}
	return key, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "verification operation failed",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, "verification operation rejected",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

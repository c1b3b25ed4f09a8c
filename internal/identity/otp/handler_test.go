package otp

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paraph/internal/platform/middleware"
	"paraph/pkg/testutil"
)

const handlerSigningKey = "test-signing-key"

type handlerEnv struct {
	router   *chi.Mux
	notifier *recordingNotifier
	token    string
}

func newHandlerEnv(t *testing.T, limiter *middleware.RateLimiter) *handlerEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	notifier := &recordingNotifier{}
	svc, err := New(NewInMemoryStore(), notifier,
		WithGenerator(FixedGenerator{Value: "123456"}),
		WithLogger(logger),
	)
	require.NoError(t, err)

	h := NewHandler(svc, logger, middleware.NewHMACValidator(handlerSigningKey), limiter)
	router := chi.NewRouter()
	h.Register(router)

	bearer, err := middleware.SignToken(handlerSigningKey, "signer-1", time.Hour)
	require.NoError(t, err)
	return &handlerEnv{router: router, notifier: notifier, token: bearer}
}

func (e *handlerEnv) do(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, method, path, body)
	if authed {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func requestBody(subjectKey string) map[string]any {
	return map[string]any{
		"subject_key": subjectKey,
		"id_number":   "123456789012",
		"address":     "jane@example.com",
	}
}

func TestVerificationRoutesRequireAuth(t *testing.T) {
	e := newHandlerEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/verification/otp", requestBody("signer-1"), false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequestSubmitStatusFlow(t *testing.T) {
	e := newHandlerEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/verification/otp", requestBody("signer-1"), true)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, e.notifier.payloads, 1)
	assert.Contains(t, e.notifier.payloads[0], "123456")

	rec = e.do(t, http.MethodGet, "/verification/status?subject_key=signer-1", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		State string `json:"state"`
	}
	testutil.DecodeJSON(t, rec, &status)
	assert.Equal(t, "otp_sent", status.State)

	rec = e.do(t, http.MethodPost, "/verification/otp/submit",
		map[string]any{"subject_key": "signer-1", "code": "000000"}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/verification/otp/submit",
		map[string]any{"subject_key": "signer-1", "code": "123456"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = e.do(t, http.MethodGet, "/verification/status?subject_key=signer-1", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	testutil.DecodeJSON(t, rec, &status)
	assert.Equal(t, "verified", status.State)
}

func TestRequestRejectsBadIDNumber(t *testing.T) {
	e := newHandlerEnv(t, nil)

	body := requestBody("signer-1")
	body["id_number"] = "12345"
	rec := e.do(t, http.MethodPost, "/verification/otp", body, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitWithoutChallenge(t *testing.T) {
	e := newHandlerEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/verification/otp/submit",
		map[string]any{"subject_key": "signer-9", "code": "123456"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResendReopensChallenge(t *testing.T) {
	e := newHandlerEnv(t, nil)

	require.Equal(t, http.StatusAccepted,
		e.do(t, http.MethodPost, "/verification/otp", requestBody("signer-1"), true).Code)

	rec := e.do(t, http.MethodPost, "/verification/otp/resend",
		map[string]any{"subject_key": "signer-1"}, true)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, e.notifier.payloads, 2)
}

func TestRequestThrottledPerClient(t *testing.T) {
	e := newHandlerEnv(t, middleware.NewRateLimiter(2))

	for range 2 {
		rec := e.do(t, http.MethodPost, "/verification/otp", requestBody("signer-1"), true)
		require.Equal(t, http.StatusAccepted, rec.Code)
	}
	rec := e.do(t, http.MethodPost, "/verification/otp", requestBody("signer-1"), true)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestStatusRequiresSubjectKey(t *testing.T) {
	e := newHandlerEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/verification/status", nil, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

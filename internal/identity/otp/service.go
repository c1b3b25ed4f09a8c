// Package otp implements the local identity verifier: an ID-number check
// gated by a one-time code delivered out-of-band.
//
// States per subject: unverified -> otp_sent -> verified. Verification is a
// precondition for signature capture; the document service consults
// IsVerified before accepting an artifact.
package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dErrors "paraph/pkg/domain-errors"
	"paraph/pkg/platform/sentinel"
	"paraph/pkg/requestcontext"
)

// ChallengeStore persists in-flight challenges. Implementations return
// sentinel.ErrNotFound for unknown subjects.
type ChallengeStore interface {
	Save(ctx context.Context, challenge *Challenge) error
	Find(ctx context.Context, subjectKey string) (*Challenge, error)
	Delete(ctx context.Context, subjectKey string) error
}

// Notifier delivers the code out-of-band. Fire-and-forget: the workflow never
// awaits delivery confirmation, only the subject's subsequent action.
type Notifier interface {
	Notify(ctx context.Context, address, payload string) error
}

// Policy carries the optional hardening knobs. The zero value reproduces the
// reference behavior: no attempt limit, no challenge expiry.
type Policy struct {
	MaxAttempts  int
	ChallengeTTL time.Duration
}

// Errors surfaced by the verifier.
var (
	ErrInvalidIDFormat  = dErrors.New(dErrors.CodeValidation, "id number must be 12 digits")
	ErrInvalidOTPFormat = dErrors.New(dErrors.CodeValidation, "code must be 6 digits")
	ErrOTPMismatch      = dErrors.New(dErrors.CodeValidation, "code does not match")
	ErrNoChallenge      = dErrors.New(dErrors.CodeConflict, "no verification challenge issued")
	ErrChallengeExpired = dErrors.New(dErrors.CodeConflict, "verification challenge expired")
	ErrTooManyAttempts  = dErrors.New(dErrors.CodeConflict, "verification attempt limit reached")
	ErrAlreadyVerified  = dErrors.New(dErrors.CodeConflict, "subject already verified")
)

const idNumberLength = 12

// Service runs the OTP verification state machine.
type Service struct {
	store    ChallengeStore
	gen      Generator
	notifier Notifier
	policy   Policy
	logger   *slog.Logger
	metrics  *Metrics
}

// Option configures the service.
type Option func(*Service)

func WithGenerator(gen Generator) Option {
	return func(s *Service) { s.gen = gen }
}

func WithPolicy(policy Policy) Option {
	return func(s *Service) { s.policy = policy }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New constructs the verifier. The store and notifier are required; the
// generator defaults to random 6-digit codes.
func New(store ChallengeStore, notifier Notifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("challenge store is required")
	}
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	s := &Service{
		store:    store,
		gen:      RandomGenerator{},
		notifier: notifier,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RequestOTP validates the presented ID number and opens a challenge for the
// subject, dispatching the code to the given address.
func (s *Service) RequestOTP(ctx context.Context, subjectKey, idNumber, address string) error {
	if !digitsOfLength(idNumber, idNumberLength) {
		return ErrInvalidIDFormat
	}

	if existing, err := s.find(ctx, subjectKey); err == nil && existing.State == StateVerified {
		return ErrAlreadyVerified
	}

	code, err := s.gen.Code()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "generate verification code")
	}

	now := requestcontext.Now(ctx)
	challenge := &Challenge{
		SubjectKey: subjectKey,
		IDNumber:   idNumber,
		Address:    address,
		Code:       code,
		State:      StateOTPSent,
		IssuedAt:   now,
	}
	if s.policy.ChallengeTTL > 0 {
		challenge.ExpiresAt = now.Add(s.policy.ChallengeTTL)
	}

	if err := s.store.Save(ctx, challenge); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save verification challenge")
	}

	if s.metrics != nil {
		s.metrics.ChallengesIssued.Inc()
	}
	s.dispatch(ctx, address, code)
	return nil
}

// SubmitOTP checks a code against the subject's open challenge. On match the
// subject transitions to verified; on mismatch the challenge stays open.
func (s *Service) SubmitOTP(ctx context.Context, subjectKey, code string) error {
	if !digitsOfLength(code, 6) {
		return ErrInvalidOTPFormat
	}

	challenge, err := s.find(ctx, subjectKey)
	if err != nil {
		return err
	}
	if challenge.State == StateVerified {
		return ErrAlreadyVerified
	}

	now := requestcontext.Now(ctx)
	if challenge.Expired(now) {
		return ErrChallengeExpired
	}
	if s.policy.MaxAttempts > 0 && challenge.Attempts >= s.policy.MaxAttempts {
		return ErrTooManyAttempts
	}

	if code != challenge.Code {
		challenge.Attempts++
		if err := s.store.Save(ctx, challenge); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "record failed attempt")
		}
		if s.metrics != nil {
			s.metrics.VerificationsFailed.Inc()
		}
		return ErrOTPMismatch
	}

	challenge.State = StateVerified
	challenge.VerifiedAt = now
	if err := s.store.Save(ctx, challenge); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save verified challenge")
	}
	if s.metrics != nil {
		s.metrics.VerificationsSucceeded.Inc()
	}
	return nil
}

// ResendOTP re-enters otp_sent with a fresh code, clearing prior attempts.
// Throttling lives at the transport layer; the state machine itself has no
// backoff.
func (s *Service) ResendOTP(ctx context.Context, subjectKey string) error {
	challenge, err := s.find(ctx, subjectKey)
	if err != nil {
		return err
	}
	if challenge.State == StateVerified {
		return ErrAlreadyVerified
	}

	code, err := s.gen.Code()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "generate verification code")
	}

	now := requestcontext.Now(ctx)
	challenge.Code = code
	challenge.State = StateOTPSent
	challenge.Attempts = 0
	challenge.IssuedAt = now
	if s.policy.ChallengeTTL > 0 {
		challenge.ExpiresAt = now.Add(s.policy.ChallengeTTL)
	}

	if err := s.store.Save(ctx, challenge); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save verification challenge")
	}

	s.dispatch(ctx, challenge.Address, code)
	return nil
}

// IsVerified reports whether the subject reached the terminal verified state.
// Unknown subjects are simply unverified.
func (s *Service) IsVerified(ctx context.Context, subjectKey string) (bool, error) {
	challenge, err := s.store.Find(ctx, subjectKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "load verification challenge")
	}
	return challenge.State == StateVerified, nil
}

// Status returns the verifier state for the subject.
func (s *Service) Status(ctx context.Context, subjectKey string) (State, error) {
	challenge, err := s.store.Find(ctx, subjectKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return StateUnverified, nil
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "load verification challenge")
	}
	return challenge.State, nil
}

func (s *Service) find(ctx context.Context, subjectKey string) (*Challenge, error) {
	challenge, err := s.store.Find(ctx, subjectKey)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, ErrNoChallenge
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load verification challenge")
	}
	return challenge, nil
}

// dispatch sends the code without awaiting delivery. A failed send is logged,
// not surfaced: the subject can always request a resend.
func (s *Service) dispatch(ctx context.Context, address, code string) {
	payload := fmt.Sprintf("Your verification code is %s", code)
	if err := s.notifier.Notify(ctx, address, payload); err != nil {
		s.logger.WarnContext(ctx, "otp delivery failed",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}

func digitsOfLength(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paraph/pkg/requestcontext"
)

type recordingNotifier struct {
	addresses []string
	payloads  []string
	fail      bool
}

func (n *recordingNotifier) Notify(_ context.Context, address, payload string) error {
	if n.fail {
		return errors.New("smtp down")
	}
	n.addresses = append(n.addresses, address)
	n.payloads = append(n.payloads, payload)
	return nil
}

func newTestService(t *testing.T, opts ...Option) (*Service, *recordingNotifier) {
	t.Helper()
	notifier := &recordingNotifier{}
	base := []Option{WithGenerator(FixedGenerator{Value: "123456"})}
	svc, err := New(NewInMemoryStore(), notifier, append(base, opts...)...)
	require.NoError(t, err)
	return svc, notifier
}

func TestRequestOTP(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects malformed id number", func(t *testing.T) {
		svc, _ := newTestService(t)
		assert.ErrorIs(t, svc.RequestOTP(ctx, "signer-1", "12345", "jane@example.com"), ErrInvalidIDFormat)
		assert.ErrorIs(t, svc.RequestOTP(ctx, "signer-1", "12345678901a", "jane@example.com"), ErrInvalidIDFormat)
	})

	t.Run("opens challenge and dispatches code", func(t *testing.T) {
		svc, notifier := newTestService(t)
		require.NoError(t, svc.RequestOTP(ctx, "signer-1", "123456789012", "jane@example.com"))

		state, err := svc.Status(ctx, "signer-1")
		require.NoError(t, err)
		assert.Equal(t, StateOTPSent, state)
		require.Len(t, notifier.payloads, 1)
		assert.Contains(t, notifier.payloads[0], "123456")
		assert.Equal(t, "jane@example.com", notifier.addresses[0])
	})

	t.Run("delivery failure does not fail the request", func(t *testing.T) {
		notifier := &recordingNotifier{fail: true}
		svc, err := New(NewInMemoryStore(), notifier, WithGenerator(FixedGenerator{Value: "123456"}))
		require.NoError(t, err)

		require.NoError(t, svc.RequestOTP(ctx, "signer-1", "123456789012", "jane@example.com"))
		state, err := svc.Status(ctx, "signer-1")
		require.NoError(t, err)
		assert.Equal(t, StateOTPSent, state)
	})
}

func TestSubmitOTP(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects malformed code", func(t *testing.T) {
		svc, _ := newTestService(t)
		assert.ErrorIs(t, svc.SubmitOTP(ctx, "signer-1", "12x456"), ErrInvalidOTPFormat)
		assert.ErrorIs(t, svc.SubmitOTP(ctx, "signer-1", "1234"), ErrInvalidOTPFormat)
	})

	t.Run("mismatch leaves verifier in otp_sent", func(t *testing.T) {
		svc, _ := newTestService(t)
		require.NoError(t, svc.RequestOTP(ctx, "signer-1", "123456789012", "jane@example.com"))

		assert.ErrorIs(t, svc.SubmitOTP(ctx, "signer-1", "000000"), ErrOTPMismatch)

		state, err := svc.Status(ctx, "signer-1")
		require.NoError(t, err)
		assert.Equal(t, StateOTPSent, state)

		verified, err := svc.IsVerified(ctx, "signer-1")
		require.NoError(t, err)
		assert.False(t, verified)
	})

	t.Run("match transitions to verified", func(t *testing.T) {
		svc, _ := newTestService(t)
		require.NoError(t, svc.RequestOTP(ctx, "signer-1", "123456789012", "jane@example.com"))
		require.NoError(t, svc.SubmitOTP(ctx, "signer-1", "123456"))

		verified, err := svc.IsVerified(ctx, "signer-1")
		require.NoError(t, err)
		assert.True(t, verified)

		// Re-submitting after success is rejected.
		assert.ErrorIs(t, svc.SubmitOTP(ctx, "signer-1", "123456"), ErrAlreadyVerified)
	})

	t.Run("submit without a challenge fails", func(t *testing.T) {
		svc, _ := newTestService(t)
		assert.ErrorIs(t, svc.SubmitOTP(ctx, "signer-1", "123456"), ErrNoChallenge)
	})

	t.Run("attempt limit enforced when configured", func(t *testing.T) {
		svc, _ := newTestService(t, WithPolicy(Policy{MaxAttempts: 2}))
		require.NoError(t, svc.RequestOTP(ctx, "signer-1", "123456789012", "jane@example.com"))

		assert.ErrorIs(t, svc.SubmitOTP(ctx, "signer-1", "000000"), ErrOTPMismatch)
		assert.ErrorIs(t, svc.SubmitOTP(ctx, "signer-1", "000001"), ErrOTPMismatch)
		assert.ErrorIs(t, svc.SubmitOTP(ctx, "signer-1", "123456"), ErrTooManyAttempts)
	})

	t.Run("expired challenge rejected when ttl configured", func(t *testing.T) {
		svc, _ := newTestService(t, WithPolicy(Policy{ChallengeTTL: 10 * time.Minute}))

		issued := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
		require.NoError(t, svc.RequestOTP(requestcontext.WithTime(ctx, issued), "signer-1", "123456789012", "jane@example.com"))

		late := requestcontext.WithTime(ctx, issued.Add(11*time.Minute))
		assert.ErrorIs(t, svc.SubmitOTP(late, "signer-1", "123456"), ErrChallengeExpired)
	})
}

func TestResendOTP(t *testing.T) {
	ctx := context.Background()

	t.Run("resend issues fresh code and clears attempts", func(t *testing.T) {
		store := NewInMemoryStore()
		notifier := &recordingNotifier{}
		gen := &sequenceGenerator{codes: []string{"111111", "222222"}}
		svc, err := New(store, notifier, WithGenerator(gen), WithPolicy(Policy{MaxAttempts: 3}))
		require.NoError(t, err)

		require.NoError(t, svc.RequestOTP(ctx, "signer-1", "123456789012", "jane@example.com"))
		assert.ErrorIs(t, svc.SubmitOTP(ctx, "signer-1", "999999"), ErrOTPMismatch)

		require.NoError(t, svc.ResendOTP(ctx, "signer-1"))

		// Old code no longer matches; new one does.
		assert.ErrorIs(t, svc.SubmitOTP(ctx, "signer-1", "111111"), ErrOTPMismatch)
		require.NoError(t, svc.SubmitOTP(ctx, "signer-1", "222222"))

		challenge, err := store.Find(ctx, "signer-1")
		require.NoError(t, err)
		assert.Equal(t, StateVerified, challenge.State)
	})

	t.Run("resend without challenge fails", func(t *testing.T) {
		svc, _ := newTestService(t)
		assert.ErrorIs(t, svc.ResendOTP(ctx, "signer-1"), ErrNoChallenge)
	})
}

type sequenceGenerator struct {
	codes []string
	next  int
}

func (g *sequenceGenerator) Code() (string, error) {
	if g.next >= len(g.codes) {
		return g.codes[len(g.codes)-1], nil
	}
	code := g.codes[g.next]
	g.next++
	return code, nil
}

func TestRandomGeneratorShape(t *testing.T) {
	code, err := RandomGenerator{}.Code()
	require.NoError(t, err)
	assert.Len(t, code, 6)
	for _, r := range code {
		assert.True(t, r >= '0' && r <= '9')
	}
}

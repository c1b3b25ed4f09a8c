package otp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks verification outcomes.
type Metrics struct {
	ChallengesIssued       prometheus.Counter
	VerificationsSucceeded prometheus.Counter
	VerificationsFailed    prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		ChallengesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paraph_otp_challenges_issued_total",
			Help: "Number of OTP challenges opened or reissued.",
		}),
		VerificationsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paraph_otp_verifications_succeeded_total",
			Help: "Number of successful OTP verifications.",
		}),
		VerificationsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paraph_otp_verifications_failed_total",
			Help: "Number of rejected OTP submissions.",
		}),
	}
}

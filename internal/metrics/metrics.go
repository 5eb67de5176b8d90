package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"otpattend/internal/otp"
)

// Collector holds the process counters. It is injected into the engine and
// the check-in service so neither carries mutable diagnostic state of its own.
type Collector struct {
	codesIssued prometheus.Counter
	validations *prometheus.CounterVec
	attempts    *prometheus.CounterVec
}

// New registers the collectors on reg and returns them. Pass
// prometheus.DefaultRegisterer in main, a fresh registry in tests.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		codesIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "otp_codes_issued_total",
			Help: "Codes handed out via the current-code path.",
		}),
		validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "otp_validations_total",
			Help: "Code validations by outcome reason.",
		}, []string{"reason"}),
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "checkin_attempts_total",
			Help: "Persisted check-in attempts by recorded status.",
		}, []string{"status"}),
	}
}

// CodeDerived implements otp.Metrics.
func (c *Collector) CodeDerived() { c.codesIssued.Inc() }

// CodeValidated implements otp.Metrics.
func (c *Collector) CodeValidated(reason otp.Reason) {
	c.validations.WithLabelValues(string(reason)).Inc()
}

// AttemptRecorded counts a persisted attempt by its stored status.
func (c *Collector) AttemptRecorded(status string) {
	c.attempts.WithLabelValues(status).Inc()
}

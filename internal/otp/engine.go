package otp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Window bounds accepted at construction.
const (
	MinWindow = 30 * time.Second
	MaxWindow = 300 * time.Second

	// CodeLength is the fixed length of every derived code.
	CodeLength = 6

	// RecommendedSecretBytes is the minimum secret size we consider strong.
	RecommendedSecretBytes = 16
)

// Reason explains a validation outcome. Valid outcomes carry the window that
// matched; invalid ones carry why the code was refused.
type Reason string

const (
	ReasonCurrentWindow    Reason = "CURRENT_WINDOW"
	ReasonPreviousWindow   Reason = "PREVIOUS_WINDOW"
	ReasonFutureOTP        Reason = "FUTURE_OTP"
	ReasonExpiredOrInvalid Reason = "EXPIRED_OR_INVALID"
	ReasonInvalidFormat    Reason = "INVALID_FORMAT"
)

// Clock supplies the engine's notion of now; injected so tests can pin time.
type Clock func() time.Time

// Metrics receives engine events. Implementations must be safe for
// concurrent use; the engine itself keeps no counters.
type Metrics interface {
	CodeDerived()
	CodeValidated(reason Reason)
}

type nopMetrics struct{}

func (nopMetrics) CodeDerived()           {}
func (nopMetrics) CodeValidated(r Reason) {}

// Engine derives and validates time-slot codes. It is immutable after
// construction and safe for concurrent use.
type Engine struct {
	secret  []byte
	window  time.Duration
	clock   Clock
	metrics Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithMetrics attaches an observability collaborator.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds an engine for the given shared secret and slot window.
func New(secret string, window time.Duration, opts ...Option) (*Engine, error) {
	if secret == "" {
		return nil, errors.New("otp: secret must not be empty")
	}
	if window < MinWindow || window > MaxWindow {
		return nil, errors.New("otp: window must be between 30s and 300s")
	}
	e := &Engine{
		secret:  []byte(secret),
		window:  window,
		clock:   time.Now,
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Window returns the configured slot length.
func (e *Engine) Window() time.Duration { return e.window }

// Slot maps an instant onto its time-slot index.
func (e *Engine) Slot(t time.Time) int64 {
	return t.UnixMilli() / e.window.Milliseconds()
}

// DeriveCode computes the code for a slot: HMAC-SHA256 over the decimal slot
// index, first six hex characters, uppercased.
func (e *Engine) DeriveCode(slot int64) string {
	mac := hmac.New(sha256.New, e.secret)
	mac.Write([]byte(strconv.FormatInt(slot, 10)))
	sum := mac.Sum(nil)
	return strings.ToUpper(hex.EncodeToString(sum)[:CodeLength])
}

// Current describes the code that is live right now.
type Current struct {
	Code             string
	ExpiresAt        time.Time
	ExpiresInSeconds int
	// NextCode is the code of the following slot, precomputed so callers can
	// prefetch across the window boundary.
	NextCode string
}

// CurrentCode returns the live code at now. A zero or pre-epoch now falls
// back to the engine clock.
func (e *Engine) CurrentCode(now time.Time) Current {
	if now.IsZero() || now.UnixMilli() <= 0 {
		now = e.clock()
	}
	slot := e.Slot(now)
	e.metrics.CodeDerived()
	expiresAt := time.UnixMilli((slot + 1) * e.window.Milliseconds()).UTC()
	remainingMs := expiresAt.UnixMilli() - now.UnixMilli()
	return Current{
		Code:             e.DeriveCode(slot),
		ExpiresAt:        expiresAt,
		ExpiresInSeconds: int((remainingMs + 999) / 1000),
		NextCode:         e.DeriveCode(slot + 1),
	}
}

// Result reports a validation outcome. Invalid codes are normal results, not
// errors.
type Result struct {
	Valid  bool
	Reason Reason
}

// Validate checks a presented code against the current, previous and next
// slots, in that order. One slot of grace in each direction absorbs clock
// drift; a match on the next slot is refused as FUTURE_OTP so codes never
// validate before their window opens. A zero or pre-epoch ref falls back to
// the engine clock.
func (e *Engine) Validate(presented string, ref time.Time) Result {
	code := strings.ToUpper(strings.TrimSpace(presented))
	if len(code) != CodeLength {
		e.metrics.CodeValidated(ReasonInvalidFormat)
		return Result{Valid: false, Reason: ReasonInvalidFormat}
	}
	if ref.IsZero() || ref.UnixMilli() <= 0 {
		ref = e.clock()
	}
	slot := e.Slot(ref)

	var res Result
	switch code {
	case e.DeriveCode(slot):
		res = Result{Valid: true, Reason: ReasonCurrentWindow}
	case e.DeriveCode(slot - 1):
		res = Result{Valid: true, Reason: ReasonPreviousWindow}
	case e.DeriveCode(slot + 1):
		res = Result{Valid: false, Reason: ReasonFutureOTP}
	default:
		res = Result{Valid: false, Reason: ReasonExpiredOrInvalid}
	}
	e.metrics.CodeValidated(res.Reason)
	return res
}

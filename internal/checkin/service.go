package checkin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"otpattend/internal/fault"
	"otpattend/internal/otp"
)

// ConfigKeySecret is the system_config key holding the shared OTP secret.
const ConfigKeySecret = "otpSecret"

// Wire-level reasons beyond the engine's own. SYSTEM_ERROR covers faults
// during validation; INVALID_TIMESTAMP covers client clocks outside the
// accepted skew.
const (
	ReasonSystemError      = "SYSTEM_ERROR"
	ReasonInvalidTimestamp = "INVALID_TIMESTAMP"
)

// DefaultTimestampSkew bounds how far a client-supplied timestamp may sit
// from server time before the attempt is refused.
const DefaultTimestampSkew = 5 * time.Minute

// Store is the persistence surface the service needs. *Repository satisfies
// it; tests plug in fakes.
type Store interface {
	RecordAttempt(ctx context.Context, subjectID, presentedCode string, status Status, attemptedAt time.Time) (string, error)
	ByDateRange(ctx context.Context, start, end time.Time) ([]Record, error)
	ByPhone(ctx context.Context, subjectID string, limit int) ([]Record, error)
	StatsRange(ctx context.Context, start, end time.Time) (Stats, error)
	PurgeOlderThan(ctx context.Context, days int) (int64, error)
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
}

// Metrics receives service events; implementations must be concurrency-safe.
type Metrics interface {
	AttemptRecorded(status string)
}

type nopMetrics struct{}

func (nopMetrics) AttemptRecorded(string) {}

// Service runs the per-attempt pipeline: validate, classify, persist,
// report. It owns no state; engine and store are injected.
type Service struct {
	store   Store
	engine  *otp.Engine
	clock   func() time.Time
	skew    time.Duration
	metrics Metrics
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the service wall clock.
func WithClock(c func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// WithTimestampSkew overrides the accepted client clock skew.
func WithTimestampSkew(d time.Duration) ServiceOption {
	return func(s *Service) { s.skew = d }
}

// WithMetrics attaches an observability collaborator.
func WithMetrics(m Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the pipeline. Missing dependencies are a construction
// error, not something discovered per request.
func NewService(store Store, engine *otp.Engine, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fault.ServiceUnavailable("check-in store not initialized")
	}
	if engine == nil {
		return nil, fault.ServiceUnavailable("otp engine not initialized")
	}
	s := &Service{
		store:   store,
		engine:  engine,
		clock:   time.Now,
		skew:    DefaultTimestampSkew,
		metrics: nopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubmitResult is the terminal report for one attempt.
type SubmitResult struct {
	Accepted  bool      `json:"accepted"`
	Reason    string    `json:"reason_code"`
	RecordID  string    `json:"record_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Submit runs one attempt through the pipeline. Every attempt that reaches
// classification is persisted, valid or not; only the subject identity is
// validated up front because a record needs an owner.
func (s *Service) Submit(ctx context.Context, subjectID, presentedCode string, timestamp time.Time) (SubmitResult, error) {
	subject, err := NormalizeSubject(subjectID)
	if err != nil {
		return SubmitResult{}, err
	}

	now := s.clock()
	attemptedAt := timestamp
	skewed := false
	if attemptedAt.IsZero() || attemptedAt.UnixMilli() <= 0 {
		attemptedAt = now
	} else if d := attemptedAt.Sub(now); d > s.skew || d < -s.skew {
		skewed = true
	}

	status, reason := s.classify(presentedCode, attemptedAt, skewed)

	// Persistence runs to completion even if the caller walks away; a
	// started write is never rolled back by request cancellation.
	persistCtx := context.WithoutCancel(ctx)
	recordID, err := s.store.RecordAttempt(persistCtx, subject, presentedCode, status, attemptedAt.UTC())
	if err != nil {
		// Best-effort error record so the attempt stays in the audit trail,
		// then the original failure propagates unmodified.
		if _, recErr := s.store.RecordAttempt(persistCtx, subject, presentedCode, StatusError, attemptedAt.UTC()); recErr != nil {
			log.Printf("checkin: best-effort error record failed: %v", recErr)
		}
		return SubmitResult{}, err
	}
	s.metrics.AttemptRecorded(string(status))

	return SubmitResult{
		Accepted:  status == StatusValid,
		Reason:    reason,
		RecordID:  recordID,
		Timestamp: attemptedAt.UTC(),
	}, nil
}

// classify maps the engine verdict onto a storage status. A panic inside
// validation is caught and recorded as an error-status attempt rather than
// taking the request down.
func (s *Service) classify(presentedCode string, attemptedAt time.Time, skewed bool) (status Status, reason string) {
	if skewed {
		return StatusInvalid, ReasonInvalidTimestamp
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("checkin: validation panic: %v", r)
			status, reason = StatusError, ReasonSystemError
		}
	}()

	res := s.engine.Validate(presentedCode, attemptedAt)
	reason = string(res.Reason)
	switch {
	case res.Valid:
		status = StatusValid
	case res.Reason == otp.ReasonExpiredOrInvalid:
		status = StatusExpired
	default:
		// Format and future-window refusals.
		status = StatusInvalid
	}
	return status, reason
}

// CurrentCode exposes the engine's live code for the query boundary.
func (s *Service) CurrentCode() otp.Current {
	return s.engine.CurrentCode(s.clock())
}

const (
	defaultPhoneLimit = 50
	maxPhoneLimit     = 200
)

// ByPhone lists a subject's attempts, newest first, capped.
func (s *Service) ByPhone(ctx context.Context, subjectID string, limit int) ([]Record, error) {
	subject, err := NormalizeSubject(subjectID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPhoneLimit
	}
	if limit > maxPhoneLimit {
		limit = maxPhoneLimit
	}
	return s.store.ByPhone(ctx, subject, limit)
}

// ByDateRange lists attempts in [start, end).
func (s *Service) ByDateRange(ctx context.Context, start, end time.Time) ([]Record, error) {
	if start.IsZero() || end.IsZero() {
		return nil, fault.Validation("start and end are required")
	}
	if end.Before(start) {
		return nil, fault.Validation("end must not precede start")
	}
	return s.store.ByDateRange(ctx, start, end)
}

// ByDate lists one UTC day's attempts.
func (s *Service) ByDate(ctx context.Context, day time.Time) ([]Record, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	return s.store.ByDateRange(ctx, start, start.AddDate(0, 0, 1))
}

// Today lists the current UTC day's attempts.
func (s *Service) Today(ctx context.Context) ([]Record, error) {
	return s.ByDate(ctx, s.clock())
}

// StatsRange aggregates attempts over [start, end).
func (s *Service) StatsRange(ctx context.Context, start, end time.Time) (Stats, error) {
	if end.Before(start) {
		return Stats{}, fault.Validation("end must not precede start")
	}
	return s.store.StatsRange(ctx, start, end)
}

// Purge deletes attempts older than days.
func (s *Service) Purge(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fault.Validation("older_than_days must be positive")
	}
	return s.store.PurgeOlderThan(ctx, days)
}

// BootstrapResult reports what configuration bootstrap did.
type BootstrapResult struct {
	Generated bool
}

// Bootstrap ensures the OTP secret exists. Idempotent: an existing secret is
// never overwritten, so codes issued before a restart stay validatable for
// their open windows.
func Bootstrap(ctx context.Context, store Store) (BootstrapResult, error) {
	if _, ok, err := store.GetConfig(ctx, ConfigKeySecret); err != nil {
		return BootstrapResult{}, err
	} else if ok {
		return BootstrapResult{Generated: false}, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return BootstrapResult{}, fmt.Errorf("generate secret: %w", err)
	}
	if err := store.SetConfig(ctx, ConfigKeySecret, hex.EncodeToString(buf)); err != nil {
		return BootstrapResult{}, err
	}
	return BootstrapResult{Generated: true}, nil
}

// LoadSecret reads the persisted secret. Absence is fatal: validation
// traffic must never run against an ad-hoc in-memory default.
func LoadSecret(ctx context.Context, store Store) (string, error) {
	secret, ok, err := store.GetConfig(ctx, ConfigKeySecret)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fault.ServiceUnavailable("otp secret not configured; run bootstrap first")
	}
	return secret, nil
}

// Package service implements the passcode lifecycle: issuance and
// verification as a reactive state machine. Expiry and locking happen lazily
// at verification time, so correctness never depends on a background sweep.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"otpgate/internal/audit"
	"otpgate/internal/identity"
	"otpgate/internal/notify"
	"otpgate/internal/otp/metrics"
	"otpgate/internal/otp/models"
	"otpgate/internal/otp/secret"
	"otpgate/internal/otp/store"
	"otpgate/internal/receipt"
	"otpgate/pkg/domain"
	dErrors "otpgate/pkg/domain-errors"
	"otpgate/pkg/platform/sentinel"
)

// messageTemplate carries the plaintext passcode to the gateway only. It is
// never logged and never returned to the caller.
const messageTemplate = "Your Janhit Portal OTP is %s. Valid for %d min."

// Config is the explicit protocol configuration, fixed at construction.
type Config struct {
	TTL         time.Duration
	MaxAttempts int
}

// VerifyResult is returned on a successful verification. Receipt is a signed
// one-shot proof when a receipt issuer is configured, empty otherwise.
type VerifyResult struct {
	Receipt    string
	VerifiedAt time.Time
}

// Manager orchestrates issuance and verification.
type Manager struct {
	codec     *secret.Codec
	records   store.Store
	directory identity.Directory
	gateway   notify.Gateway
	cfg       Config
	logger    *slog.Logger

	publisher *audit.Publisher
	receipts  *receipt.Issuer
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Manager)

// WithAudit attaches the audit publisher.
func WithAudit(p *audit.Publisher) Option {
	return func(m *Manager) { m.publisher = p }
}

// WithReceipts enables signed verification receipts.
func WithReceipts(i *receipt.Issuer) Option {
	return func(m *Manager) { m.receipts = i }
}

// WithMetrics attaches protocol counters.
func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mx }
}

// WithNow overrides the time source for tests.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func New(codec *secret.Codec, records store.Store, directory identity.Directory, gateway notify.Gateway, cfg Config, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		codec:     codec,
		records:   records,
		directory: directory,
		gateway:   gateway,
		cfg:       cfg,
		logger:    logger,
		tracer:    otel.Tracer("otpgate/otp"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RequestOTP issues a fresh passcode for the identifier and delivers it to
// the registered mobile. It returns the mobile in masked form.
//
// A delivery failure leaves the persisted record in place: the caller may
// simply re-issue, and the new record supersedes this one by recency.
func (m *Manager) RequestOTP(ctx context.Context, nationalID domain.NationalID) (string, error) {
	ctx, span := m.tracer.Start(ctx, "otp.request",
		trace.WithAttributes(attribute.String("otp.subject", nationalID.Masked())))
	defer span.End()

	ident, err := m.directory.Lookup(ctx, nationalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeNotFound, "unknown identity")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "identity lookup failed")
	}

	passcode, err := m.codec.Generate()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate passcode")
	}
	salt, err := m.codec.NewSalt()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "generate salt")
	}

	now := m.now()
	rec := models.NewRecord(nationalID, m.codec.Digest(passcode, salt), salt, now, m.cfg.TTL)
	if err := m.records.Create(ctx, rec); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "persist passcode record")
	}

	if m.metrics != nil {
		m.metrics.RecordIssued()
	}
	m.emit(ctx, nationalID, audit.ActionRequested, "ok", "")
	m.logger.InfoContext(ctx, "otp issued",
		"national_id", nationalID.Masked(),
		"record_id", rec.ID,
		"expires_at", rec.ExpiresAt,
	)

	text := fmt.Sprintf(messageTemplate, passcode, int(m.cfg.TTL.Minutes()))
	if _, err := m.gateway.Send(ctx, ident.Mobile, text); err != nil {
		if m.metrics != nil {
			m.metrics.RecordDeliveryFailure()
		}
		m.emit(ctx, nationalID, audit.ActionDeliveryFailed, "error", "")
		m.logger.ErrorContext(ctx, "otp delivery failed",
			"national_id", nationalID.Masked(),
			"record_id", rec.ID,
			"error", err,
		)
		if errors.Is(err, notify.ErrTimeout) {
			return "", dErrors.Wrap(err, dErrors.CodeTimeout, "passcode delivery timed out")
		}
		return "", dErrors.Wrap(err, dErrors.CodeDeliveryFailed, "passcode delivery failed")
	}

	return ident.Mobile.Masked(), nil
}

// VerifyOTP checks a candidate against the identifier's most recent record.
// Every rejection is an enumerated transition; terminal records are never
// re-validated.
func (m *Manager) VerifyOTP(ctx context.Context, nationalID domain.NationalID, candidate string) (*VerifyResult, error) {
	ctx, span := m.tracer.Start(ctx, "otp.verify",
		trace.WithAttributes(attribute.String("otp.subject", nationalID.Masked())))
	defer span.End()

	rec, err := m.records.Latest(ctx, nationalID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNoActiveOTP, "no active passcode for identifier")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "fetch passcode record")
	}

	now := m.now()

	if rec.Pending() && rec.ExpiredAt(now) {
		rec.MarkExpired()
		if err := m.persist(ctx, rec); err != nil {
			return nil, err
		}
		m.reject(ctx, nationalID, "expired")
		return nil, dErrors.New(dErrors.CodeExpired, "passcode has expired")
	}

	// A locked record keeps rejecting with its own reason, even for the
	// correct passcode. Only Consumed and Expired answer not_active.
	if rec.State == models.StateLocked {
		m.reject(ctx, nationalID, "too_many_attempts")
		return nil, dErrors.New(dErrors.CodeTooManyAttempts, "too many failed attempts")
	}

	if !rec.Pending() {
		m.reject(ctx, nationalID, "not_active")
		return nil, dErrors.New(dErrors.CodeNotActive, "passcode is no longer active")
	}

	// Reachable only when the configured cap shrank under a live record;
	// the failure path below locks at the cap before this can trigger.
	if rec.AttemptsExhausted(m.cfg.MaxAttempts) {
		rec.MarkLocked()
		if err := m.persist(ctx, rec); err != nil {
			return nil, err
		}
		m.emit(ctx, nationalID, audit.ActionLocked, "rejected", "too_many_attempts")
		if m.metrics != nil {
			m.metrics.RecordVerification("too_many_attempts")
		}
		return nil, dErrors.New(dErrors.CodeTooManyAttempts, "too many failed attempts")
	}

	if m.codec.Match(candidate, rec.Salt, rec.Digest) {
		rec.MarkConsumed()
		if err := m.persist(ctx, rec); err != nil {
			return nil, err
		}
		m.emit(ctx, nationalID, audit.ActionVerified, "ok", "")
		if m.metrics != nil {
			m.metrics.RecordVerification("verified")
		}
		m.logger.InfoContext(ctx, "otp verified",
			"national_id", nationalID.Masked(),
			"record_id", rec.ID,
		)

		result := &VerifyResult{VerifiedAt: now}
		if m.receipts != nil {
			signed, err := m.receipts.Issue(nationalID, now)
			if err != nil {
				return nil, err
			}
			result.Receipt = signed
		}
		return result, nil
	}

	state := rec.RegisterFailure(m.cfg.MaxAttempts)
	if err := m.persist(ctx, rec); err != nil {
		return nil, err
	}
	m.reject(ctx, nationalID, "invalid_code")
	if state == models.StateLocked {
		m.emit(ctx, nationalID, audit.ActionLocked, "rejected", "attempts_exhausted")
	}
	return nil, dErrors.New(dErrors.CodeInvalidCode, "passcode does not match")
}

// persist writes a transition. A version conflict means another verification
// of the same record won the race; the caller's attempt must not also count
// as a success.
func (m *Manager) persist(ctx context.Context, rec *models.Record) error {
	if err := m.records.Update(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "record changed concurrently")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist passcode record")
	}
	return nil
}

func (m *Manager) reject(ctx context.Context, nationalID domain.NationalID, reason string) {
	m.emit(ctx, nationalID, audit.ActionRejected, "rejected", reason)
	if m.metrics != nil {
		m.metrics.RecordVerification(reason)
	}
}

func (m *Manager) emit(ctx context.Context, nationalID domain.NationalID, action, outcome, reason string) {
	if m.publisher == nil {
		return
	}
	err := m.publisher.Emit(ctx, audit.Event{
		Subject: nationalID.Masked(),
		Action:  action,
		Outcome: outcome,
		Reason:  reason,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}

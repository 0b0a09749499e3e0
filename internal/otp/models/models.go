// Package models defines the passcode record aggregate and its state machine.
//
// Domain purity: no I/O, no context.Context, no hidden time.Now() calls -
// every transition takes the observation time as a parameter so stores and
// tests control the clock.
package models

import (
	"time"

	"github.com/google/uuid"

	"otpgate/pkg/domain"
)

// State is the lifecycle state of a passcode record.
//
// Transitions (all evaluated lazily at verification time):
//
//	Pending -> Consumed   exactly once, on a successful digest match
//	Pending -> Expired    when observed past ExpiresAt
//	Pending -> Locked     when failed attempts reach the configured maximum
//
// Consumed, Expired and Locked are terminal: a record never leaves them, and
// a new issuance always creates a fresh Pending record.
type State string

const (
	StatePending  State = "pending"
	StateConsumed State = "consumed"
	StateExpired  State = "expired"
	StateLocked   State = "locked"
)

// Record is one passcode issuance. The plaintext passcode is never stored;
// only the salted digest is, and the salt is unique per record.
type Record struct {
	ID         uuid.UUID
	NationalID domain.NationalID
	Digest     []byte
	Salt       []byte
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Attempts   int
	State      State

	// Version supports optimistic concurrency in stores: Update succeeds only
	// when the persisted version matches, then increments it.
	Version int64
}

// NewRecord creates a Pending record for an issuance at the given time.
func NewRecord(nationalID domain.NationalID, digest, salt []byte, issuedAt time.Time, ttl time.Duration) *Record {
	return &Record{
		ID:         uuid.New(),
		NationalID: nationalID,
		Digest:     digest,
		Salt:       salt,
		IssuedAt:   issuedAt,
		ExpiresAt:  issuedAt.Add(ttl),
		Attempts:   0,
		State:      StatePending,
		Version:    1,
	}
}

// ExpiredAt reports whether the record's validity window has passed at now.
func (r *Record) ExpiredAt(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Pending reports whether the record can still be verified against.
func (r *Record) Pending() bool {
	return r.State == StatePending
}

// MarkExpired transitions a Pending record to Expired (lazy expiry).
func (r *Record) MarkExpired() {
	if r.State == StatePending {
		r.State = StateExpired
	}
}

// MarkConsumed transitions a Pending record to Consumed. Single-use: callers
// must have checked Pending() first; the transition is a no-op otherwise.
func (r *Record) MarkConsumed() {
	if r.State == StatePending {
		r.State = StateConsumed
	}
}

// MarkLocked transitions a Pending record to Locked.
func (r *Record) MarkLocked() {
	if r.State == StatePending {
		r.State = StateLocked
	}
}

// RegisterFailure counts a failed match against a Pending record and locks it
// once attempts reach maxAttempts. Returns the resulting state.
func (r *Record) RegisterFailure(maxAttempts int) State {
	if r.State != StatePending {
		return r.State
	}
	r.Attempts++
	if r.Attempts >= maxAttempts {
		r.State = StateLocked
	}
	return r.State
}

// AttemptsExhausted reports whether the record has already burned through the
// configured attempt budget.
func (r *Record) AttemptsExhausted(maxAttempts int) bool {
	return r.Attempts >= maxAttempts
}

// Clone returns a deep copy so stores can hand out snapshots without sharing
// mutable slices.
func (r *Record) Clone() *Record {
	cp := *r
	cp.Digest = append([]byte(nil), r.Digest...)
	cp.Salt = append([]byte(nil), r.Salt...)
	return &cp
}

package service

import (
	"context"
	"time"

	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/store"
)

// timePrecision matches Postgres timestamptz so stored and in-memory
// times compare equal.
const timePrecision = time.Microsecond

// Clock returns the current time.
type Clock func() time.Time

// DeadlineEnforcer derives a session's remaining time from its persisted
// start time and duration. Client-reported elapsed time is never used.
type DeadlineEnforcer struct {
	now Clock
}

func NewDeadlineEnforcer(now Clock) *DeadlineEnforcer {
	if now == nil {
		now = time.Now
	}
	return &DeadlineEnforcer{now: now}
}

// Deadline is StartedAt + DurationMinutes.
func (d *DeadlineEnforcer) Deadline(s *model.Session) time.Time {
	return s.StartedAt.Add(s.Duration())
}

// Remaining may be negative once the deadline has passed.
func (d *DeadlineEnforcer) Remaining(s *model.Session) time.Duration {
	return d.Deadline(s).Sub(d.now())
}

func (d *DeadlineEnforcer) Expired(s *model.Session) bool {
	return d.Remaining(s) <= 0
}

// RemainingSeconds is the advisory countdown value, never below zero.
func (d *DeadlineEnforcer) RemainingSeconds(s *model.Session) int64 {
	if s.Status == model.SessionStatusCompleted {
		return 0
	}
	rem := d.Remaining(s)
	if rem <= 0 {
		return 0
	}
	return int64(rem / time.Second)
}

// Admit decides whether a write may proceed against the session held by tx.
// It must run inside the locked transaction.
//
//   - (true, nil): the session is IN_PROGRESS and within its deadline.
//   - (false, nil): the deadline has passed; the session was completed with
//     EndedAt set to the deadline. The caller must let the transaction
//     commit and then report ErrSessionExpired.
//   - (false, ErrSessionExpired): the session was already completed.
func (d *DeadlineEnforcer) Admit(ctx context.Context, tx store.SessionTx) (bool, error) {
	s := tx.Session()
	if s.Status != model.SessionStatusInProgress {
		return false, ErrSessionExpired
	}
	if !d.Expired(s) {
		return true, nil
	}
	if err := tx.Complete(ctx, d.Deadline(s)); err != nil {
		return false, storageError("force complete session", err)
	}
	return false, nil
}

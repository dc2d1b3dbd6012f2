// Package lockout tracks failed authentication attempts per identifier and
// locks an identifier out for a fixed window once a threshold is reached.
//
// State lives behind the Store interface so the tracker can run against
// process memory, Redis or Postgres. Every backend performs Increment as a
// single atomic read-modify-write and bounds its footprint with an idle TTL.
package lockout

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultThreshold = 5
	DefaultDuration  = 300 * time.Second
	DefaultIdleTTL   = 30 * time.Minute
)

type State struct {
	Identifier   string
	AttemptCount int
	LockedUntil  *time.Time
	UpdatedAt    time.Time
}

// Locked reports whether the lock is still active at now.
func (s State) Locked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

type Policy struct {
	Threshold int
	Duration  time.Duration
}

// Apply returns s after one more failed attempt at now.
//
// An active lock is left as is. An expired lock restarts the count from zero,
// so an identifier is never re-locked by a single failure after its window.
func (p Policy) Apply(s State, now time.Time) State {
	if s.Locked(now) {
		return s
	}
	if s.LockedUntil != nil {
		s.AttemptCount = 0
		s.LockedUntil = nil
	}

	s.AttemptCount++
	if s.AttemptCount >= p.Threshold {
		until := now.Add(p.Duration)
		s.LockedUntil = &until
	}
	s.UpdatedAt = now
	return s
}

func (p Policy) normalized() Policy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultThreshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultDuration
	}
	return p
}

type Store interface {
	Get(ctx context.Context, identifier string, now time.Time) (State, error)
	Increment(ctx context.Context, identifier string, policy Policy, now time.Time) (State, error)
	Clear(ctx context.Context, identifier string) error
}

// Sweeper is implemented by stores that need an external trigger to drop
// stale entries.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int64, error)
}

type Tracker struct {
	store  Store
	policy Policy
	now    func() time.Time
}

func NewTracker(store Store, policy Policy) *Tracker {
	return &Tracker{
		store:  store,
		policy: policy.normalized(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (t *Tracker) Policy() Policy {
	return t.policy
}

func (t *Tracker) RecordFailure(ctx context.Context, identifier string) (State, error) {
	return t.store.Increment(ctx, Normalize(identifier), t.policy, t.now())
}

func (t *Tracker) RecordSuccess(ctx context.Context, identifier string) error {
	return t.store.Clear(ctx, Normalize(identifier))
}

func (t *Tracker) Check(ctx context.Context, identifier string, now time.Time) (State, error) {
	return t.store.Get(ctx, Normalize(identifier), now)
}

func (t *Tracker) IsLocked(ctx context.Context, identifier string, now time.Time) (bool, error) {
	state, err := t.Check(ctx, identifier, now)
	if err != nil {
		return false, err
	}
	return state.Locked(now), nil
}

func Normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// expired reports whether s can be forgotten at now.
func expired(s State, now time.Time, idleTTL time.Duration) bool {
	if s.Locked(now) {
		return false
	}
	return s.UpdatedAt.Before(now.Add(-idleTTL))
}

package lockout

import (
	"context"
	"slices"
	"sync"
	"time"
)

type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]State
	idleTTL    time.Duration
	maxEntries int
}

type MemoryOption func(*MemoryStore)

func WithMaxEntries(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxEntries = n
		}
	}
}

func NewMemoryStore(idleTTL time.Duration, opts ...MemoryOption) *MemoryStore {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}

	s := &MemoryStore{
		entries:    make(map[string]State),
		idleTTL:    idleTTL,
		maxEntries: 5000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, identifier string, now time.Time) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.entries[identifier]
	if !ok || expired(state, now, s.idleTTL) {
		return State{Identifier: identifier}, nil
	}
	return state, nil
}

func (s *MemoryStore) Increment(_ context.Context, identifier string, policy Policy, now time.Time) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.entries[identifier]
	if !ok || expired(state, now, s.idleTTL) {
		state = State{Identifier: identifier}
	}

	state = policy.Apply(state, now)
	s.entries[identifier] = state

	if len(s.entries) > s.maxEntries {
		s.sweepLocked(now)
		s.evictOldestLocked(now)
	}

	return state, nil
}

func (s *MemoryStore) Clear(_ context.Context, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, identifier)
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sweepLocked(now), nil
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *MemoryStore) sweepLocked(now time.Time) int64 {
	var removed int64
	for key, state := range s.entries {
		if expired(state, now, s.idleTTL) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// evictOldestLocked drops the least recently updated unlocked entries until the
// store is back at maxEntries. Active locks are never evicted.
func (s *MemoryStore) evictOldestLocked(now time.Time) {
	excess := len(s.entries) - s.maxEntries
	if excess <= 0 {
		return
	}

	candidates := make([]State, 0, len(s.entries))
	for _, state := range s.entries {
		if !state.Locked(now) {
			candidates = append(candidates, state)
		}
	}
	slices.SortFunc(candidates, func(a, b State) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})

	for i := 0; i < excess && i < len(candidates); i++ {
		delete(s.entries, candidates[i].Identifier)
	}
}

// StartJanitor sweeps the store every interval until ctx is done.
func (s *MemoryStore) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = s.Sweep(ctx, time.Now().UTC())
			}
		}
	}()
}

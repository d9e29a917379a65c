package trigger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"triggerpay/internal/model"
)

// DefaultTTL is how long a trigger stays claimable before it expires.
const DefaultTTL = 30 * 24 * time.Hour

var (
	ErrNotFound   = errors.New("trigger not found")
	ErrInvalid    = errors.New("invalid trigger")
	ErrNotActive  = errors.New("trigger is not active")
	ErrNotExpired = errors.New("trigger has not expired")
	ErrForbidden  = errors.New("caller is not the trigger owner")
)

// CreateParams carries already-validated creation input.
type CreateParams struct {
	Owner        string
	Condition    model.Condition
	Payout       model.Payout
	FundedAmount string
}

// Store is the in-process trigger registry. It is safe for concurrent use and
// hands out copies, never pointers into its own state.
type Store struct {
	mu       sync.RWMutex
	triggers map[string]*model.Trigger
	order    []string
	counter  uint64
	epoch    string
	ttl      time.Duration
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTTL overrides the expiry window. Non-positive values are ignored so that
// expires_at always lands after created_at.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithEpoch overrides the per-process id segment. Ids must not repeat across
// restarts because the payout journal and attestation archive outlive the
// store. An empty epoch yields bare counter ids, unique within one process only.
func WithEpoch(epoch string) Option {
	return func(s *Store) {
		s.epoch = epoch
	}
}

// NewStore returns an empty store whose ids carry a random epoch.
func NewStore(opts ...Option) *Store {
	s := &Store{
		triggers: make(map[string]*model.Trigger),
		epoch:    strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new Active trigger and returns it.
func (s *Store) Create(p CreateParams) model.Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter++
	id := fmt.Sprintf("trig_%08x", s.counter)
	if s.epoch != "" {
		id = fmt.Sprintf("trig_%s_%08x", s.epoch, s.counter)
	}
	now := s.now().UnixNano()

	funded := p.FundedAmount
	if funded == "" {
		funded = "0"
	}

	t := &model.Trigger{
		ID:           id,
		Owner:        p.Owner,
		Condition:    p.Condition,
		Payout:       p.Payout,
		FundedAmount: funded,
		Status:       model.StatusActive,
		CreatedAt:    now,
		ExpiresAt:    now + s.ttl.Nanoseconds(),
	}
	s.triggers[id] = t
	s.order = append(s.order, id)
	return t.Clone()
}

// Get returns the trigger with id, if present.
func (s *Store) Get(id string) (model.Trigger, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.triggers[id]
	if !ok {
		return model.Trigger{}, false
	}
	return t.Clone(), true
}

// List returns triggers in insertion order. An empty owner matches all.
func (s *Store) List(owner string) []model.Trigger {
	return s.filter(func(t *model.Trigger) bool {
		return owner == "" || t.Owner == owner
	})
}

// ListActive returns triggers whose stored status is Active.
func (s *Store) ListActive() []model.Trigger {
	return s.filter(func(t *model.Trigger) bool {
		return t.Status == model.StatusActive
	})
}

func (s *Store) filter(keep func(*model.Trigger) bool) []model.Trigger {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Trigger, 0, len(s.order))
	for _, id := range s.order {
		t := s.triggers[id]
		if keep(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// MarkExecuted moves an Active trigger to Executed and records txHash.
// It reports whether the transition happened; a missing or non-Active trigger
// is left alone.
func (s *Store) MarkExecuted(id, txHash string) bool {
	if txHash == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.triggers[id]
	if !ok || t.Status != model.StatusActive {
		return false
	}
	t.Status = model.StatusExecuted
	t.ExecutedTx = &txHash
	return true
}

// MarkRefunded moves an Active trigger to Refunded with the same no-op rule as
// MarkExecuted.
func (s *Store) MarkRefunded(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.triggers[id]
	if !ok || t.Status != model.StatusActive {
		return false
	}
	t.Status = model.StatusRefunded
	return true
}

// ClaimRefund applies an owner's refund claim: the trigger must belong to
// caller, still be Active, and be past its expiry.
func (s *Store) ClaimRefund(id, caller string) (model.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.triggers[id]
	if !ok {
		return model.Trigger{}, ErrNotFound
	}
	if t.Owner != caller {
		return model.Trigger{}, ErrForbidden
	}
	if t.Status != model.StatusActive {
		return model.Trigger{}, ErrNotActive
	}
	if !t.Expired(s.now()) {
		return model.Trigger{}, ErrNotExpired
	}
	t.Status = model.StatusRefunded
	return t.Clone(), nil
}

// IncrementAttestationCount bumps the check counter of a trigger.
func (s *Store) IncrementAttestationCount(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.triggers[id]
	if !ok {
		return false
	}
	t.AttestationCount++
	return true
}

// Delete removes a trigger and reports whether anything was removed.
// Ids are never reissued.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.triggers[id]; !ok {
		return false
	}
	delete(s.triggers, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Stats counts triggers by stored status.
func (s *Store) Stats() model.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := model.Stats{Total: len(s.triggers)}
	for _, t := range s.triggers {
		switch t.Status {
		case model.StatusActive:
			stats.Active++
		case model.StatusExecuted:
			stats.Executed++
		}
	}
	return stats
}

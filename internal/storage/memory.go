package storage

import (
	"context"
	"fmt"
	"sync"

	"triggerpay/internal/model"
)

// MemoryArchive keeps attestations in process memory.
type MemoryArchive struct {
	mu        sync.RWMutex
	byTrigger map[string][]model.Attestation
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{byTrigger: make(map[string][]model.Attestation)}
}

// PutAttestations appends atts.
func (a *MemoryArchive) PutAttestations(_ context.Context, atts []model.Attestation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, att := range atts {
		a.byTrigger[att.TriggerID] = append(a.byTrigger[att.TriggerID], att)
	}
	return nil
}

// ListAttestations returns a copy of the attestations for triggerID.
func (a *MemoryArchive) ListAttestations(_ context.Context, triggerID string) ([]model.Attestation, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	src := a.byTrigger[triggerID]
	out := make([]model.Attestation, len(src))
	copy(out, src)
	return out, nil
}

// MemoryJournal keeps pending submissions in process memory. It does not
// survive restarts and is meant for development and tests.
type MemoryJournal struct {
	mu      sync.Mutex
	pending map[string]model.PayoutSubmission
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{pending: make(map[string]model.PayoutSubmission)}
}

func (j *MemoryJournal) Pending(_ context.Context, triggerID string) (model.PayoutSubmission, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	sub, ok := j.pending[triggerID]
	return sub, ok, nil
}

func (j *MemoryJournal) RecordSubmitted(_ context.Context, sub model.PayoutSubmission) error {
	if sub.TriggerID == "" {
		return fmt.Errorf("submission trigger id required")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending[sub.TriggerID] = sub
	return nil
}

func (j *MemoryJournal) Resolve(_ context.Context, triggerID string, _ model.JournalOutcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.pending, triggerID)
	return nil
}

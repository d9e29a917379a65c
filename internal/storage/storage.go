package storage

import (
	"context"

	"triggerpay/internal/model"
)

// AttestationSink receives signed attestations as they are issued.
type AttestationSink interface {
	PutAttestations(ctx context.Context, atts []model.Attestation) error
}

// Archive is a sink that can also list what it stored, in issue order.
type Archive interface {
	AttestationSink
	ListAttestations(ctx context.Context, triggerID string) ([]model.Attestation, error)
}

// PayoutJournal records signed transfers before broadcast. At most one
// submission per trigger is pending at a time; recording a new one replaces
// the previous pending entry.
type PayoutJournal interface {
	Pending(ctx context.Context, triggerID string) (model.PayoutSubmission, bool, error)
	RecordSubmitted(ctx context.Context, sub model.PayoutSubmission) error
	Resolve(ctx context.Context, triggerID string, outcome model.JournalOutcome) error
}

package storage

import (
	"context"
	"errors"

	"triggerpay/internal/model"
)

// TeeArchive stores into a primary archive and mirrors every batch to extra
// sinks. Reads come from the primary.
type TeeArchive struct {
	Primary Archive
	Mirrors []AttestationSink
}

func (t *TeeArchive) PutAttestations(ctx context.Context, atts []model.Attestation) error {
	errs := []error{t.Primary.PutAttestations(ctx, atts)}
	for _, m := range t.Mirrors {
		errs = append(errs, m.PutAttestations(ctx, atts))
	}
	return errors.Join(errs...)
}

func (t *TeeArchive) ListAttestations(ctx context.Context, triggerID string) ([]model.Attestation, error) {
	return t.Primary.ListAttestations(ctx, triggerID)
}

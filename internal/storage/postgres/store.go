package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"triggerpay/internal/model"
)

// Schema creates the tables the store writes to.
const Schema = `
CREATE TABLE IF NOT EXISTS attestations (
	id                BIGSERIAL PRIMARY KEY,
	trigger_id        TEXT NOT NULL,
	ts_nanos          BIGINT NOT NULL,
	api_response_hash TEXT NOT NULL,
	observed_status   TEXT NOT NULL,
	condition_met     BOOLEAN NOT NULL,
	signature         TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS attestations_trigger_idx ON attestations (trigger_id, id);

CREATE TABLE IF NOT EXISTS payout_journal (
	trigger_id   TEXT PRIMARY KEY,
	chain        TEXT NOT NULL,
	from_address TEXT NOT NULL,
	to_address   TEXT NOT NULL,
	amount       NUMERIC(78, 0) NOT NULL,
	nonce        BIGINT NOT NULL,
	tx_hash      TEXT NOT NULL,
	raw_tx       TEXT NOT NULL,
	submitted_at BIGINT NOT NULL,
	outcome      TEXT,
	resolved_at  TIMESTAMPTZ,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for attestations and the payout journal.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PutAttestations inserts a batch of attestations.
func (s *Store) PutAttestations(ctx context.Context, atts []model.Attestation) error {
	if len(atts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range atts {
		batch.Queue(`
			INSERT INTO attestations (
				trigger_id, ts_nanos, api_response_hash, observed_status, condition_met, signature
			) VALUES ($1, $2, $3, $4, $5, $6)
		`,
			a.TriggerID,
			a.Timestamp,
			a.APIResponseHash,
			a.ObservedStatus,
			a.ConditionMet,
			a.Signature,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range atts {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListAttestations returns the attestations for triggerID in insert order.
func (s *Store) ListAttestations(ctx context.Context, triggerID string) ([]model.Attestation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT trigger_id, ts_nanos, api_response_hash, observed_status, condition_met, signature
		FROM attestations WHERE trigger_id = $1 ORDER BY id
	`, triggerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Attestation{}
	for rows.Next() {
		var a model.Attestation
		if err := rows.Scan(&a.TriggerID, &a.Timestamp, &a.APIResponseHash, &a.ObservedStatus, &a.ConditionMet, &a.Signature); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Pending returns the unresolved submission for triggerID.
func (s *Store) Pending(ctx context.Context, triggerID string) (model.PayoutSubmission, bool, error) {
	var sub model.PayoutSubmission
	var chain string
	var nonce int64
	row := s.pool.QueryRow(ctx, `
		SELECT trigger_id, chain, from_address, to_address, amount::text, nonce, tx_hash, raw_tx, submitted_at
		FROM payout_journal WHERE trigger_id = $1 AND outcome IS NULL
	`, triggerID)
	if err := row.Scan(&sub.TriggerID, &chain, &sub.From, &sub.To, &sub.Amount, &nonce, &sub.TxHash, &sub.RawTx, &sub.SubmittedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PayoutSubmission{}, false, nil
		}
		return model.PayoutSubmission{}, false, err
	}
	sub.Chain = model.Chain(chain)
	sub.Nonce = uint64(nonce)
	return sub, true, nil
}

// RecordSubmitted upserts the pending submission for a trigger.
func (s *Store) RecordSubmitted(ctx context.Context, sub model.PayoutSubmission) error {
	if sub.TriggerID == "" {
		return fmt.Errorf("submission trigger id required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payout_journal (
			trigger_id, chain, from_address, to_address, amount, nonce, tx_hash, raw_tx, submitted_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, now())
		ON CONFLICT (trigger_id) DO UPDATE SET
			chain = EXCLUDED.chain,
			from_address = EXCLUDED.from_address,
			to_address = EXCLUDED.to_address,
			amount = EXCLUDED.amount,
			nonce = EXCLUDED.nonce,
			tx_hash = EXCLUDED.tx_hash,
			raw_tx = EXCLUDED.raw_tx,
			submitted_at = EXCLUDED.submitted_at,
			outcome = NULL,
			resolved_at = NULL,
			updated_at = now()
	`,
		sub.TriggerID,
		string(sub.Chain),
		sub.From,
		sub.To,
		sub.Amount,
		int64(sub.Nonce),
		sub.TxHash,
		sub.RawTx,
		sub.SubmittedAt,
	)
	return err
}

// Resolve marks the pending submission for triggerID with outcome.
func (s *Store) Resolve(ctx context.Context, triggerID string, outcome model.JournalOutcome) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE payout_journal
		SET outcome = $2, resolved_at = now(), updated_at = now()
		WHERE trigger_id = $1 AND outcome IS NULL
	`, triggerID, string(outcome))
	return err
}

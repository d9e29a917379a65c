// Package attest issues and verifies signed observation records.
//
// The signed message is the UTF-8 string
//
//	trigger_id|timestamp_ns|sha256_hex(raw_body)|observed_status|condition_met
//
// Field order and delimiter are part of the verification contract with
// previously issued attestations.
package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"triggerpay/internal/model"
)

var (
	ErrNotInitialized   = errors.New("signing key not initialized")
	ErrSignatureInvalid = errors.New("attestation signature invalid")
)

// Signer holds the process-wide ed25519 attestation key.
type Signer struct {
	mu        sync.RWMutex
	key       ed25519.PrivateKey
	ephemeral bool
	now       func() time.Time
}

// NewSigner returns a signer with no key. Init or InitEphemeral must be called
// before Sign.
func NewSigner(now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{now: now}
}

// Init loads the key from a hex-encoded 32-byte seed.
func (s *Signer) Init(seedHex string) error {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(seedHex), "0x"))
	if err != nil {
		return fmt.Errorf("decode signing seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return fmt.Errorf("signing seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	s.mu.Lock()
	s.key = ed25519.NewKeyFromSeed(seed)
	s.ephemeral = false
	s.mu.Unlock()
	return nil
}

// InitEphemeral generates a throwaway key. Attestations it signs cannot be
// verified after the process exits; use only for local development.
func (s *Signer) InitEphemeral() error {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate signing key: %w", err)
	}

	s.mu.Lock()
	s.key = key
	s.ephemeral = true
	s.mu.Unlock()
	return nil
}

// Ready reports whether a key has been loaded.
func (s *Signer) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != nil
}

// Ephemeral reports whether the loaded key was generated at startup.
func (s *Signer) Ephemeral() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ephemeral
}

// PublicKeyHex returns the hex-encoded ed25519 public key.
func (s *Signer) PublicKeyHex() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return "", ErrNotInitialized
	}
	return hex.EncodeToString(s.key.Public().(ed25519.PublicKey)), nil
}

// Sign attests that observedStatus was read for triggerID, with rawBody being
// the exact source response.
func (s *Signer) Sign(triggerID, observedStatus string, rawBody []byte, conditionMet bool) (model.Attestation, error) {
	s.mu.RLock()
	key := s.key
	s.mu.RUnlock()
	if key == nil {
		return model.Attestation{}, ErrNotInitialized
	}

	att := model.Attestation{
		TriggerID:       triggerID,
		Timestamp:       s.now().UnixNano(),
		APIResponseHash: HashBody(rawBody),
		ObservedStatus:  observedStatus,
		ConditionMet:    conditionMet,
	}
	sig := ed25519.Sign(key, []byte(CanonicalMessage(att)))
	att.Signature = hex.EncodeToString(sig)
	return att, nil
}

// HashBody returns the hex SHA-256 digest of a raw observation payload.
func HashBody(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// CanonicalMessage builds the exact string that is signed for att.
// The signature field is ignored.
func CanonicalMessage(att model.Attestation) string {
	return strings.Join([]string{
		att.TriggerID,
		strconv.FormatInt(att.Timestamp, 10),
		att.APIResponseHash,
		att.ObservedStatus,
		strconv.FormatBool(att.ConditionMet),
	}, "|")
}

// Verify checks att against a hex-encoded ed25519 public key without any
// access to the signer's runtime state.
func Verify(publicKeyHex string, att model.Attestation) error {
	pub, err := hex.DecodeString(strings.TrimPrefix(publicKeyHex, "0x"))
	if err != nil {
		return fmt.Errorf("decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid ed25519 public key length: %d", len(pub))
	}
	sig, err := hex.DecodeString(att.Signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("invalid ed25519 signature length: %d", len(sig))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(CanonicalMessage(att)), sig) {
		return ErrSignatureInvalid
	}
	return nil
}

package attest

import (
	"errors"
	"testing"
	"time"

	"triggerpay/internal/model"
)

// RFC 8032 section 7.1, test 1.
const (
	testSeed   = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	testPubKey = "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
)

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	now := time.Unix(0, 1771142400123456789)
	s := NewSigner(func() time.Time { return now })
	if err := s.Init(testSeed); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s
}

func TestPublicKeyFromSeed(t *testing.T) {
	s := newTestSigner(t)
	pub, err := s.PublicKeyHex()
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	if pub != testPubKey {
		t.Fatalf("public key = %s, want %s", pub, testPubKey)
	}
	if s.Ephemeral() {
		t.Fatalf("seeded key reported as ephemeral")
	}
}

func TestSignNotInitialized(t *testing.T) {
	s := NewSigner(nil)
	if s.Ready() {
		t.Fatalf("fresh signer reported ready")
	}
	if _, err := s.Sign("trig_1", "scheduled", []byte("{}"), false); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := s.PublicKeyHex(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestInitRejectsBadSeed(t *testing.T) {
	s := NewSigner(nil)
	if err := s.Init("abcd"); err == nil {
		t.Fatalf("expected error for short seed")
	}
	if err := s.Init("zz"); err == nil {
		t.Fatalf("expected error for non-hex seed")
	}
	if s.Ready() {
		t.Fatalf("signer ready after failed init")
	}
}

func TestCanonicalMessageLayout(t *testing.T) {
	att := model.Attestation{
		TriggerID:       "trig_00000001",
		Timestamp:       1771142400123456789,
		APIResponseHash: "ab",
		ObservedStatus:  "cancelled",
		ConditionMet:    true,
		Signature:       "ignored",
	}
	want := "trig_00000001|1771142400123456789|ab|cancelled|true"
	if got := CanonicalMessage(att); got != want {
		t.Fatalf("message = %q, want %q", got, want)
	}
}

func TestSignVerify(t *testing.T) {
	s := newTestSigner(t)
	body := []byte(`{"flight_number":"AA1234","status":"cancelled"}`)

	att, err := s.Sign("trig_00000001", "cancelled", body, true)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if att.APIResponseHash != HashBody(body) || len(att.APIResponseHash) != 64 {
		t.Fatalf("hash mismatch: %s", att.APIResponseHash)
	}
	if att.Timestamp != 1771142400123456789 {
		t.Fatalf("timestamp = %d", att.Timestamp)
	}
	if err := Verify(testPubKey, att); err != nil {
		t.Fatalf("verify: %v", err)
	}

	again, err := s.Sign("trig_00000001", "cancelled", body, true)
	if err != nil {
		t.Fatalf("re-sign: %v", err)
	}
	if again.Signature != att.Signature {
		t.Fatalf("identical inputs produced different signatures")
	}
}

func TestVerifyDetectsFieldChanges(t *testing.T) {
	s := newTestSigner(t)
	att, err := s.Sign("trig_00000001", "scheduled", []byte(`{"status":"scheduled"}`), false)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	mutations := map[string]func(*model.Attestation){
		"trigger id": func(a *model.Attestation) { a.TriggerID = "trig_00000002" },
		"timestamp":  func(a *model.Attestation) { a.Timestamp++ },
		"hash":       func(a *model.Attestation) { a.APIResponseHash = HashBody([]byte("other")) },
		"status":     func(a *model.Attestation) { a.ObservedStatus = "cancelled" },
		"met flag":   func(a *model.Attestation) { a.ConditionMet = true },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			changed := att
			mutate(&changed)
			if err := Verify(testPubKey, changed); !errors.Is(err, ErrSignatureInvalid) {
				t.Fatalf("expected ErrSignatureInvalid, got %v", err)
			}
		})
	}
}

func TestEphemeralKey(t *testing.T) {
	s := NewSigner(nil)
	if err := s.InitEphemeral(); err != nil {
		t.Fatalf("init ephemeral: %v", err)
	}
	if !s.Ready() || !s.Ephemeral() {
		t.Fatalf("ephemeral signer state wrong")
	}
	pub, _ := s.PublicKeyHex()
	att, err := s.Sign("trig_1", "landed", nil, false)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := Verify(pub, att); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

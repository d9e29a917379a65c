package mpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// KeyTypeEcdsa is the signature scheme used for EVM chains.
const KeyTypeEcdsa = "Ecdsa"

var ErrBadSignature = errors.New("malformed mpc signature")

// SignRequest asks the network to sign a 32-byte payload with the key at Path.
type SignRequest struct {
	Path    string
	Payload [32]byte
	KeyType string
}

// Signature is a recoverable ECDSA signature with V in {0,1}.
type Signature struct {
	R [32]byte
	S [32]byte
	V byte
}

// Bytes returns the 65-byte R || S || V encoding go-ethereum expects.
func (s Signature) Bytes() []byte {
	out := make([]byte, 0, 65)
	out = append(out, s.R[:]...)
	out = append(out, s.S[:]...)
	return append(out, s.V)
}

// Signer requests signatures from the MPC network.
type Signer interface {
	Sign(ctx context.Context, req SignRequest) (Signature, error)
}

// normalize folds legacy V values and enforces low-S, flipping V to keep the
// signature recoverable to the same key.
func normalize(r, s []byte, v int) (Signature, error) {
	if len(r) > 32 || len(s) > 32 {
		return Signature{}, fmt.Errorf("%w: component too long", ErrBadSignature)
	}
	if v >= 27 {
		v -= 27
	}
	if v != 0 && v != 1 {
		return Signature{}, fmt.Errorf("%w: recovery id %d", ErrBadSignature, v)
	}

	var sScalar secp256k1.ModNScalar
	if overflow := sScalar.SetByteSlice(s); overflow || sScalar.IsZero() {
		return Signature{}, fmt.Errorf("%w: s out of range", ErrBadSignature)
	}
	if sScalar.IsOverHalfOrder() {
		sScalar.Negate()
		v ^= 1
	}

	var sig Signature
	copy(sig.R[32-len(r):], r)
	sig.S = sScalar.Bytes()
	sig.V = byte(v)
	return sig, nil
}

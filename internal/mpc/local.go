package mpc

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/crypto"
)

// LocalSigner holds a full root private key and signs as the network would.
// It exists for local development and tests; production uses Client.
type LocalSigner struct {
	root        *secp256k1.PrivateKey
	predecessor string
}

// NewLocalSigner parses a hex-encoded 32-byte root private key.
func NewLocalSigner(rootKeyHex, predecessor string) (*LocalSigner, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(rootKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("decode local root key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("local root key must be 32 bytes, got %d", len(raw))
	}
	return &LocalSigner{root: secp256k1.PrivKeyFromBytes(raw), predecessor: predecessor}, nil
}

// RootPublicKey returns the root public key in "secp256k1:" form.
func (l *LocalSigner) RootPublicKey() string {
	return FormatRootPublicKey(l.root.PubKey())
}

// Sign implements Signer.
func (l *LocalSigner) Sign(ctx context.Context, req SignRequest) (Signature, error) {
	if err := ctx.Err(); err != nil {
		return Signature{}, err
	}
	if req.KeyType != "" && req.KeyType != KeyTypeEcdsa {
		return Signature{}, fmt.Errorf("unsupported key type %q", req.KeyType)
	}
	child := DeriveChildPrivateKey(l.root, l.predecessor, req.Path)
	key, err := crypto.ToECDSA(child.Serialize())
	if err != nil {
		return Signature{}, fmt.Errorf("convert child key: %w", err)
	}
	sig, err := crypto.Sign(req.Payload[:], key)
	if err != nil {
		return Signature{}, fmt.Errorf("sign payload: %w", err)
	}
	return normalize(sig[:32], sig[32:64], int(sig[64]))
}

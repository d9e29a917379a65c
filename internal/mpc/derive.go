// Package mpc derives per-path child keys from the MPC network's root key and
// requests signatures over those keys.
package mpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

const (
	epsilonPrefix = "near-mpc-recovery v0.1.0 epsilon derivation:"
	rootKeyPrefix = "secp256k1:"
)

var ErrInvalidRootKey = errors.New("invalid mpc root public key")

// ParseRootPublicKey accepts the network's "secp256k1:<base58 x||y>" form or a
// hex encoded SEC1 point (compressed or uncompressed).
func ParseRootPublicKey(input string) (*secp256k1.PublicKey, error) {
	input = strings.TrimSpace(input)
	var raw []byte
	if strings.HasPrefix(input, rootKeyPrefix) {
		decoded, err := base58.Decode(strings.TrimPrefix(input, rootKeyPrefix))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRootKey, err)
		}
		if len(decoded) != 64 {
			return nil, fmt.Errorf("%w: expected 64 bytes, got %d", ErrInvalidRootKey, len(decoded))
		}
		raw = append([]byte{0x04}, decoded...)
	} else {
		decoded, err := hex.DecodeString(strings.TrimPrefix(input, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRootKey, err)
		}
		raw = decoded
	}

	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRootKey, err)
	}
	return pub, nil
}

// FormatRootPublicKey renders pub in the "secp256k1:<base58>" form.
func FormatRootPublicKey(pub *secp256k1.PublicKey) string {
	return rootKeyPrefix + base58.Encode(pub.SerializeUncompressed()[1:])
}

// DeriveEpsilon returns the tweak scalar for predecessor and path.
func DeriveEpsilon(predecessor, path string) *secp256k1.ModNScalar {
	h := sha3.Sum256([]byte(epsilonPrefix + predecessor + "," + path))
	var eps secp256k1.ModNScalar
	eps.SetByteSlice(h[:])
	return &eps
}

// DeriveChildPublicKey computes root + epsilon*G.
func DeriveChildPublicKey(root *secp256k1.PublicKey, predecessor, path string) (*secp256k1.PublicKey, error) {
	eps := DeriveEpsilon(predecessor, path)

	var tweak, parent, child secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(eps, &tweak)
	root.AsJacobian(&parent)
	secp256k1.AddNonConst(&parent, &tweak, &child)
	if (child.X.IsZero() && child.Y.IsZero()) || child.Z.IsZero() {
		return nil, fmt.Errorf("derived point at infinity for path %q", path)
	}
	child.ToAffine()
	return secp256k1.NewPublicKey(&child.X, &child.Y), nil
}

// DeriveChildPrivateKey computes root + epsilon mod n. Only holders of the
// full root key can do this, which in practice means tests and local dev.
func DeriveChildPrivateKey(root *secp256k1.PrivateKey, predecessor, path string) *secp256k1.PrivateKey {
	eps := DeriveEpsilon(predecessor, path)
	var k secp256k1.ModNScalar
	k.Set(&root.Key)
	k.Add(eps)
	return secp256k1.NewPrivateKey(&k)
}

// EVMAddress returns the Ethereum address for pub.
func EVMAddress(pub *secp256k1.PublicKey) (common.Address, error) {
	ecdsaPub, err := crypto.UnmarshalPubkey(pub.SerializeUncompressed())
	if err != nil {
		return common.Address{}, fmt.Errorf("convert public key: %w", err)
	}
	return crypto.PubkeyToAddress(*ecdsaPub), nil
}

// Deriver binds a root key to the account that requests signatures.
type Deriver struct {
	root        *secp256k1.PublicKey
	predecessor string
}

// NewDeriver parses rootKey and returns a Deriver for predecessor.
func NewDeriver(rootKey, predecessor string) (*Deriver, error) {
	if strings.TrimSpace(predecessor) == "" {
		return nil, errors.New("mpc predecessor account is required")
	}
	root, err := ParseRootPublicKey(rootKey)
	if err != nil {
		return nil, err
	}
	return &Deriver{root: root, predecessor: predecessor}, nil
}

// Predecessor returns the account id used in derivation.
func (d *Deriver) Predecessor() string {
	return d.predecessor
}

// Derive returns the child public key and EVM address for path.
func (d *Deriver) Derive(path string) (*secp256k1.PublicKey, common.Address, error) {
	pub, err := DeriveChildPublicKey(d.root, d.predecessor, path)
	if err != nil {
		return nil, common.Address{}, err
	}
	addr, err := EVMAddress(pub)
	if err != nil {
		return nil, common.Address{}, err
	}
	return pub, addr, nil
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transit

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"sort"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// AttesterKey wraps a secp256k1 key used to co-sign message digests. The
// attestation service proper lives off-chain; this type exists for the
// relayer, the CLI, and tests.
type AttesterKey struct {
	key *ecdsa.PrivateKey
}

// NewAttesterKey generates a fresh attester key.
func NewAttesterKey() (*AttesterKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attester key: %w", err)
	}
	return &AttesterKey{key: key}, nil
}

// AttesterKeyFromHex parses a hex-encoded private key.
func AttesterKeyFromHex(hexKey string) (*AttesterKey, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse attester key: %w", err)
	}
	return &AttesterKey{key: key}, nil
}

// Hex returns the hex-encoded private key.
func (k *AttesterKey) Hex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(k.key))
}

// Address returns the attester address recovered from signatures made with
// this key.
func (k *AttesterKey) Address() common.Address {
	return common.Address(crypto.PubkeyToAddress(k.key.PublicKey))
}

// SignMessage produces one 65-byte signature over keccak256(message).
func (k *AttesterKey) SignMessage(message []byte) ([]byte, error) {
	return crypto.Sign(crypto.Keccak256(message), k.key)
}

// Attest builds a full attestation over message with the given keys,
// sorting signatures into the ascending recovered-address order the
// verifier requires.
func Attest(message []byte, keys ...*AttesterKey) ([]byte, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("no attester keys provided")
	}
	sorted := make([]*AttesterKey, len(keys))
	copy(sorted, keys)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Address(), sorted[j].Address()
		return bytes.Compare(a[:], b[:]) < 0
	})

	attestation := make([]byte, 0, SignatureLen*len(sorted))
	for _, key := range sorted {
		sig, err := key.SignMessage(message)
		if err != nil {
			return nil, fmt.Errorf("failed to sign message: %w", err)
		}
		attestation = append(attestation, sig...)
	}
	return attestation, nil
}

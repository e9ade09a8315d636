// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transit

import (
	"bytes"
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// SignatureLen is the length of one attester signature: r(32) || s(32) || v(1).
const SignatureLen = 65

// VerifyAttestation checks a concatenated multi-signature over the raw
// message bytes. The attestation must contain exactly threshold signatures,
// each recovering to an enabled attester, with recovered addresses in
// strictly ascending order. The ordering requirement rejects duplicates and
// shuffled signatures in one pass with no auxiliary storage; callers
// assembling attestations must sort signatures by recovered address.
// Verification is all-or-nothing.
func (a *AttesterManager) VerifyAttestation(message, attestation []byte) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if len(attestation) != SignatureLen*a.threshold {
		return fmt.Errorf("%w: invalid attestation length %d, expected %d",
			ErrAuthorization, len(attestation), SignatureLen*a.threshold)
	}

	digest := crypto.Keccak256(message)

	var prev common.Address
	for i := 0; i < a.threshold; i++ {
		sig := attestation[i*SignatureLen : (i+1)*SignatureLen]
		signer, err := recoverAttester(digest, sig)
		if err != nil {
			return fmt.Errorf("%w: signature %d: %v", ErrAuthorization, i, err)
		}
		// Strict ordering: each recovered address must exceed its
		// predecessor, the first one the zero address.
		if bytes.Compare(signer[:], prev[:]) <= 0 {
			return fmt.Errorf("%w: signature %d out of order or duplicated", ErrAuthorization, i)
		}
		if !a.enabled.Contains(signer) {
			return fmt.Errorf("%w: signer %s is not an enabled attester", ErrAuthorization, signer)
		}
		prev = signer
	}
	return nil
}

// recoverAttester recovers the signer address from a 65-byte signature over
// digest. Both raw recovery ids (0/1) and EVM-style values (27/28) are
// accepted in the final byte.
func recoverAttester(digest, sig []byte) (common.Address, error) {
	normalized := make([]byte, SignatureLen)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pub, err := crypto.SigToPub(digest, normalized)
	if err != nil {
		return common.Address{}, err
	}
	return common.Address(crypto.PubkeyToAddress(*pub)), nil
}

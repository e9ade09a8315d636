// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/luxfi/transit"
)

// BurnMessageV2MinLen is the minimum length of a v2 burn message: the v1
// fields plus maxFee, feeExecuted, and expirationBlock. Hook data, when
// present, runs from HookDataIndex to the end of the buffer.
const (
	BurnMessageV2MinLen = 228
	HookDataIndex       = 228
)

// v2 extension offsets, continuing from the v1 layout.
const (
	maxFeeIndex          = 132
	feeExecutedIndex     = 164
	expirationBlockIndex = 196
)

// BurnMessageV2 extends the burn payload with fee and hook extensions.
// FeeExecuted and ExpirationBlock are zero when the sending messenger
// formats the payload; the attestation layer settles them before signing.
// MaxFee must be strictly below Amount, enforced by the bridge at deposit.
type BurnMessageV2 struct {
	Version         uint32
	BurnToken       ids.ID
	MintRecipient   ids.ID
	Amount          *uint256.Int
	MessageSender   ids.ID
	MaxFee          *uint256.Int
	FeeExecuted     *uint256.Int
	ExpirationBlock *uint256.Int
	HookData        []byte
}

// Bytes returns the canonical encoding, BurnMessageV2MinLen bytes plus the
// hook data.
func (m *BurnMessageV2) Bytes() []byte {
	buf := make([]byte, BurnMessageV2MinLen+len(m.HookData))
	binary.BigEndian.PutUint32(buf[versionIndex:], m.Version)
	copy(buf[burnTokenIndex:], m.BurnToken[:])
	copy(buf[mintRecipientIndex:], m.MintRecipient[:])
	putUint256(buf[amountIndex:], m.Amount)
	copy(buf[messageSenderIndex:], m.MessageSender[:])
	putUint256(buf[maxFeeIndex:], m.MaxFee)
	putUint256(buf[feeExecutedIndex:], m.FeeExecuted)
	putUint256(buf[expirationBlockIndex:], m.ExpirationBlock)
	copy(buf[HookDataIndex:], m.HookData)
	return buf
}

// ParseBurnMessageV2 decodes a v2 burn message, validating only the
// minimum length. The hook data offset is fixed; anything past it is the
// opaque hook payload.
func ParseBurnMessageV2(b []byte) (*BurnMessageV2, error) {
	if len(b) < BurnMessageV2MinLen {
		return nil, fmt.Errorf("%w: burn message too short (%d < %d)", transit.ErrFormat, len(b), BurnMessageV2MinLen)
	}
	msg := &BurnMessageV2{
		Version:         binary.BigEndian.Uint32(b[versionIndex:]),
		Amount:          getUint256(b[amountIndex:]),
		MaxFee:          getUint256(b[maxFeeIndex:]),
		FeeExecuted:     getUint256(b[feeExecutedIndex:]),
		ExpirationBlock: getUint256(b[expirationBlockIndex:]),
		HookData:        make([]byte, len(b)-HookDataIndex),
	}
	copy(msg.BurnToken[:], b[burnTokenIndex:mintRecipientIndex])
	copy(msg.MintRecipient[:], b[mintRecipientIndex:amountIndex])
	copy(msg.MessageSender[:], b[messageSenderIndex:BurnMessageLen])
	copy(msg.HookData, b[HookDataIndex:])
	return msg, nil
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package payload defines the token burn-to-mint payload carried in a
// message body. Encoding is fixed-offset big-endian concatenation, the
// same layout discipline as the envelope: integers left-zero-padded,
// 32-byte identifiers packed as-is, no length prefixes.
package payload

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/luxfi/transit"
)

// BurnMessageLen is the exact length of a v1 burn message.
const BurnMessageLen = 132

// v1 field offsets.
const (
	versionIndex       = 0
	burnTokenIndex     = 4
	mintRecipientIndex = 36
	amountIndex        = 68
	messageSenderIndex = 100
)

// BurnMessage is the v1 burn payload: burn Amount of BurnToken on the
// source domain, mint the mapped local token to MintRecipient on the
// destination. MessageSender is the identity that initiated the deposit.
type BurnMessage struct {
	Version       uint32
	BurnToken     ids.ID
	MintRecipient ids.ID
	Amount        *uint256.Int
	MessageSender ids.ID
}

// Bytes returns the canonical 132-byte encoding.
func (m *BurnMessage) Bytes() []byte {
	buf := make([]byte, BurnMessageLen)
	binary.BigEndian.PutUint32(buf[versionIndex:], m.Version)
	copy(buf[burnTokenIndex:], m.BurnToken[:])
	copy(buf[mintRecipientIndex:], m.MintRecipient[:])
	putUint256(buf[amountIndex:], m.Amount)
	copy(buf[messageSenderIndex:], m.MessageSender[:])
	return buf
}

// ParseBurnMessage decodes a v1 burn message. v1 carries no variable
// field, so the length must be exactly BurnMessageLen.
func ParseBurnMessage(b []byte) (*BurnMessage, error) {
	if len(b) != BurnMessageLen {
		return nil, fmt.Errorf("%w: burn message length %d, expected %d", transit.ErrFormat, len(b), BurnMessageLen)
	}
	msg := &BurnMessage{
		Version: binary.BigEndian.Uint32(b[versionIndex:]),
		Amount:  getUint256(b[amountIndex:]),
	}
	copy(msg.BurnToken[:], b[burnTokenIndex:mintRecipientIndex])
	copy(msg.MintRecipient[:], b[mintRecipientIndex:amountIndex])
	copy(msg.MessageSender[:], b[messageSenderIndex:BurnMessageLen])
	return msg, nil
}

func putUint256(dst []byte, v *uint256.Int) {
	if v == nil {
		v = new(uint256.Int)
	}
	b := v.Bytes32()
	copy(dst, b[:])
}

func getUint256(src []byte) *uint256.Int {
	return new(uint256.Int).SetBytes(src[:32])
}

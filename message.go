// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transit

import (
	"encoding/binary"
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

const (
	// MessageHeaderLen is the fixed header length of a v1 message. The body
	// runs from here to the end of the buffer.
	MessageHeaderLen = 116

	// MessageV2HeaderLen is the fixed header length of a v2 message.
	MessageV2HeaderLen = 148

	// DefaultMaxMessageBodySize bounds the variable-length body.
	DefaultMaxMessageBodySize = 8192
)

// v1 wire offsets. All integers are big-endian; 32-byte identifiers are
// packed as-is. Fields are never length-prefixed.
const (
	versionIndex           = 0
	sourceDomainIndex      = 4
	destinationDomainIndex = 8
	nonceIndex             = 12
	senderIndex            = 20
	recipientIndex         = 52
	destinationCallerIndex = 84
	bodyIndex              = 116
)

// v2 wire offsets. The nonce widens to 32 opaque bytes and two finality
// fields precede the body.
const (
	nonceV2Index                   = 12
	senderV2Index                  = 44
	recipientV2Index               = 76
	destinationCallerV2Index       = 108
	minFinalityThresholdIndex      = 140
	finalityThresholdExecutedIndex = 144
	bodyV2Index                    = 148
)

// Message is the v1 wire envelope. Nonces are issued monotonically per
// destination domain by the sending transmitter.
type Message struct {
	Version           uint32
	SourceDomain      uint32
	DestinationDomain uint32
	Nonce             uint64
	Sender            ids.ID
	Recipient         ids.ID
	DestinationCaller ids.ID
	Body              []byte
}

// Bytes returns the canonical wire encoding.
func (m *Message) Bytes() []byte {
	buf := make([]byte, MessageHeaderLen+len(m.Body))
	binary.BigEndian.PutUint32(buf[versionIndex:], m.Version)
	binary.BigEndian.PutUint32(buf[sourceDomainIndex:], m.SourceDomain)
	binary.BigEndian.PutUint32(buf[destinationDomainIndex:], m.DestinationDomain)
	binary.BigEndian.PutUint64(buf[nonceIndex:], m.Nonce)
	copy(buf[senderIndex:], m.Sender[:])
	copy(buf[recipientIndex:], m.Recipient[:])
	copy(buf[destinationCallerIndex:], m.DestinationCaller[:])
	copy(buf[bodyIndex:], m.Body)
	return buf
}

// ID returns the keccak256 hash of the wire encoding.
func (m *Message) ID() ids.ID {
	return ids.ID(crypto.Keccak256Hash(m.Bytes()))
}

// ParseMessage decodes a v1 message. The only validation is the minimum
// length check; re-encoding the result reproduces the input exactly.
func ParseMessage(b []byte) (*Message, error) {
	if len(b) < MessageHeaderLen {
		return nil, fmt.Errorf("%w: message too short (%d < %d)", ErrFormat, len(b), MessageHeaderLen)
	}
	msg := &Message{
		Version:           binary.BigEndian.Uint32(b[versionIndex:]),
		SourceDomain:      binary.BigEndian.Uint32(b[sourceDomainIndex:]),
		DestinationDomain: binary.BigEndian.Uint32(b[destinationDomainIndex:]),
		Nonce:             binary.BigEndian.Uint64(b[nonceIndex:]),
		Body:              make([]byte, len(b)-bodyIndex),
	}
	copy(msg.Sender[:], b[senderIndex:recipientIndex])
	copy(msg.Recipient[:], b[recipientIndex:destinationCallerIndex])
	copy(msg.DestinationCaller[:], b[destinationCallerIndex:bodyIndex])
	copy(msg.Body, b[bodyIndex:])
	return msg, nil
}

// MessageV2 is the v2 wire envelope. The nonce is an opaque 32-byte value
// assigned by the attestation layer; the sending transmitter emits it as
// zero. FinalityThresholdExecuted is likewise filled in before attestation.
type MessageV2 struct {
	Version                   uint32
	SourceDomain              uint32
	DestinationDomain         uint32
	Nonce                     ids.ID
	Sender                    ids.ID
	Recipient                 ids.ID
	DestinationCaller         ids.ID
	MinFinalityThreshold      uint32
	FinalityThresholdExecuted uint32
	Body                      []byte
}

// Bytes returns the canonical wire encoding.
func (m *MessageV2) Bytes() []byte {
	buf := make([]byte, MessageV2HeaderLen+len(m.Body))
	binary.BigEndian.PutUint32(buf[versionIndex:], m.Version)
	binary.BigEndian.PutUint32(buf[sourceDomainIndex:], m.SourceDomain)
	binary.BigEndian.PutUint32(buf[destinationDomainIndex:], m.DestinationDomain)
	copy(buf[nonceV2Index:], m.Nonce[:])
	copy(buf[senderV2Index:], m.Sender[:])
	copy(buf[recipientV2Index:], m.Recipient[:])
	copy(buf[destinationCallerV2Index:], m.DestinationCaller[:])
	binary.BigEndian.PutUint32(buf[minFinalityThresholdIndex:], m.MinFinalityThreshold)
	binary.BigEndian.PutUint32(buf[finalityThresholdExecutedIndex:], m.FinalityThresholdExecuted)
	copy(buf[bodyV2Index:], m.Body)
	return buf
}

// ID returns the keccak256 hash of the wire encoding.
func (m *MessageV2) ID() ids.ID {
	return ids.ID(crypto.Keccak256Hash(m.Bytes()))
}

// ParseMessageV2 decodes a v2 message, validating only the minimum length.
func ParseMessageV2(b []byte) (*MessageV2, error) {
	if len(b) < MessageV2HeaderLen {
		return nil, fmt.Errorf("%w: message too short (%d < %d)", ErrFormat, len(b), MessageV2HeaderLen)
	}
	msg := &MessageV2{
		Version:                   binary.BigEndian.Uint32(b[versionIndex:]),
		SourceDomain:              binary.BigEndian.Uint32(b[sourceDomainIndex:]),
		DestinationDomain:         binary.BigEndian.Uint32(b[destinationDomainIndex:]),
		MinFinalityThreshold:      binary.BigEndian.Uint32(b[minFinalityThresholdIndex:]),
		FinalityThresholdExecuted: binary.BigEndian.Uint32(b[finalityThresholdExecutedIndex:]),
		Body:                      make([]byte, len(b)-bodyV2Index),
	}
	copy(msg.Nonce[:], b[nonceV2Index:senderV2Index])
	copy(msg.Sender[:], b[senderV2Index:recipientV2Index])
	copy(msg.Recipient[:], b[recipientV2Index:destinationCallerV2Index])
	copy(msg.DestinationCaller[:], b[destinationCallerV2Index:minFinalityThresholdIndex])
	copy(msg.Body, b[bodyV2Index:])
	return msg, nil
}

// MessageDigest is the digest attesters sign: keccak256 of the raw message.
func MessageDigest(raw []byte) common.Hash {
	return common.Hash(crypto.Keccak256Hash(raw))
}

// AddressToIdentity left-pads a 20-byte address to the canonical 32-byte
// identity used in message fields.
func AddressToIdentity(addr common.Address) ids.ID {
	var id ids.ID
	copy(id[12:], addr[:])
	return id
}

// IdentityToAddress truncates a 32-byte identity to its low 20 bytes.
func IdentityToAddress(id ids.ID) common.Address {
	return common.BytesToAddress(id[12:])
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transit

import "github.com/luxfi/ids"

// EventSink receives protocol event records for off-chain pickup. Sent
// messages reach the attestation layer exclusively through this boundary.
// Emit is called after the emitting operation has committed its state.
type EventSink interface {
	Emit(event any)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Emit(any) {}

// MessageSent records an outbound message in wire form.
type MessageSent struct {
	Message []byte
}

// MessageReceived records a successful v1 delivery.
type MessageReceived struct {
	Caller       ids.ID
	SourceDomain uint32
	Nonce        uint64
	Sender       ids.ID
	Body         []byte
}

// MessageReceivedV2 records a successful v2 delivery.
type MessageReceivedV2 struct {
	Caller                    ids.ID
	SourceDomain              uint32
	Nonce                     ids.ID
	Sender                    ids.ID
	FinalityThresholdExecuted uint32
	Body                      []byte
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transit

import "github.com/luxfi/ids"

// MessageHandler is implemented by v1 recipients. An error return aborts
// the enclosing receive and rolls back its nonce reservation.
type MessageHandler interface {
	HandleReceiveMessage(sourceDomain uint32, sender ids.ID, body []byte) error
}

// MessageHandlerV2 splits delivery by the executed finality threshold,
// letting recipients apply different trust policies to fast, unfinalized
// delivery versus settled delivery.
type MessageHandlerV2 interface {
	// HandleReceiveFinalizedMessage delivers a message whose executed
	// finality threshold reached FinalityThresholdFinalized.
	HandleReceiveFinalizedMessage(sourceDomain uint32, sender ids.ID, finalityThresholdExecuted uint32, body []byte) error

	// HandleReceiveUnfinalizedMessage delivers a message attested below the
	// finalized threshold.
	HandleReceiveUnfinalizedMessage(sourceDomain uint32, sender ids.ID, finalityThresholdExecuted uint32, body []byte) error
}

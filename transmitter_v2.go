// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transit

import (
	"fmt"
	"sync"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/transit/roles"
)

// Finality thresholds. A message whose executed threshold reaches
// FinalityThresholdFinalized dispatches to the finalized handler entry
// point; anything lower dispatches to the unfinalized one.
const (
	FinalityThresholdConfirmed = 1000
	FinalityThresholdFinalized = 2000
)

// TransmitterV2Config configures a v2 protocol instance on a domain.
type TransmitterV2Config struct {
	Log                log.Logger
	LocalDomain        uint32
	Version            uint32
	MaxMessageBodySize int
	Attesters          *AttesterManager
	Pauser             *roles.Pauser
	Sink               EventSink
	Registerer         prometheus.Registerer
}

// TransmitterV2 is the v2 message-transit state machine. Nonces are opaque
// 32-byte values assigned off-chain by the attestation layer, so sent
// messages carry a zero nonce and the used-nonce ledger is a single global
// set. Nonce uniqueness on the issuing side is an external precondition;
// this transmitter only enforces used-forever semantics.
type TransmitterV2 struct {
	log                log.Logger
	localDomain        uint32
	version            uint32
	maxMessageBodySize int
	attesters          *AttesterManager
	pauser             *roles.Pauser
	sink               EventSink
	metrics            *transmitterMetrics

	mu         sync.Mutex
	handlers   map[ids.ID]MessageHandlerV2
	usedNonces map[ids.ID]struct{}
}

// NewTransmitterV2 creates a v2 transmitter.
func NewTransmitterV2(cfg TransmitterV2Config) (*TransmitterV2, error) {
	if cfg.Attesters == nil {
		return nil, fmt.Errorf("%w: no attester manager", ErrPolicy)
	}
	if cfg.Log == nil {
		cfg.Log = log.NewNoOpLogger()
	}
	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}
	if cfg.MaxMessageBodySize <= 0 {
		cfg.MaxMessageBodySize = DefaultMaxMessageBodySize
	}
	return &TransmitterV2{
		log:                cfg.Log,
		localDomain:        cfg.LocalDomain,
		version:            cfg.Version,
		maxMessageBodySize: cfg.MaxMessageBodySize,
		attesters:          cfg.Attesters,
		pauser:             cfg.Pauser,
		sink:               cfg.Sink,
		metrics:            newTransmitterMetrics(cfg.Registerer),
		handlers:           make(map[ids.ID]MessageHandlerV2),
		usedNonces:         make(map[ids.ID]struct{}),
	}, nil
}

// LocalDomain returns the domain this transmitter serves.
func (t *TransmitterV2) LocalDomain() uint32 {
	return t.localDomain
}

// Attesters returns the attester manager.
func (t *TransmitterV2) Attesters() *AttesterManager {
	return t.attesters
}

// RegisterHandler binds the handler invoked when a received message names
// recipient.
func (t *TransmitterV2) RegisterHandler(recipient ids.ID, handler MessageHandlerV2) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[recipient] = handler
}

// SendMessage builds and emits a v2 envelope. The nonce and executed
// finality threshold are left zero for the attestation layer to fill in
// before signing. A minFinalityThreshold above the finalized level is
// clamped to it.
func (t *TransmitterV2) SendMessage(
	caller ids.ID,
	destinationDomain uint32,
	recipient ids.ID,
	destinationCaller ids.ID,
	minFinalityThreshold uint32,
	body []byte,
) error {
	if t.pauser != nil {
		if err := t.pauser.RequireNotPaused(); err != nil {
			return err
		}
	}
	if destinationDomain == t.localDomain {
		return fmt.Errorf("%w: destination domain %d is the local domain", ErrPolicy, destinationDomain)
	}
	if recipient == (ids.ID{}) {
		return fmt.Errorf("%w: zero recipient", ErrPolicy)
	}
	if len(body) > t.maxMessageBodySize {
		return fmt.Errorf("%w: message body size %d exceeds maximum %d", ErrPolicy, len(body), t.maxMessageBodySize)
	}
	if minFinalityThreshold > FinalityThresholdFinalized {
		minFinalityThreshold = FinalityThresholdFinalized
	}

	msg := &MessageV2{
		Version:              t.version,
		SourceDomain:         t.localDomain,
		DestinationDomain:    destinationDomain,
		Sender:               caller,
		Recipient:            recipient,
		DestinationCaller:    destinationCaller,
		MinFinalityThreshold: minFinalityThreshold,
		Body:                 body,
	}

	t.sink.Emit(MessageSent{Message: msg.Bytes()})
	t.metrics.messagesSent.Inc()
	t.log.Debug("message sent",
		log.Uint32("destinationDomain", destinationDomain),
		log.Stringer("recipient", recipient),
		log.Uint32("minFinalityThreshold", minFinalityThreshold),
	)
	return nil
}

// ReceiveMessage verifies the attestation, validates the envelope, marks
// the nonce used, and dispatches to the finalized or unfinalized handler
// entry point depending on the executed finality threshold. The nonce is
// committed before dispatch and rolled back if the handler rejects.
func (t *TransmitterV2) ReceiveMessage(caller ids.ID, rawMessage, attestation []byte) error {
	if err := t.receiveMessage(caller, rawMessage, attestation); err != nil {
		t.metrics.receiveFailures.Inc()
		return err
	}
	t.metrics.messagesReceived.Inc()
	return nil
}

func (t *TransmitterV2) receiveMessage(caller ids.ID, rawMessage, attestation []byte) error {
	if t.pauser != nil {
		if err := t.pauser.RequireNotPaused(); err != nil {
			return err
		}
	}
	if err := t.attesters.VerifyAttestation(rawMessage, attestation); err != nil {
		return err
	}
	msg, err := ParseMessageV2(rawMessage)
	if err != nil {
		return err
	}
	if msg.DestinationDomain != t.localDomain {
		return fmt.Errorf("%w: destination domain %d, local domain %d", ErrSequencing, msg.DestinationDomain, t.localDomain)
	}
	if msg.Version != t.version {
		return fmt.Errorf("%w: message version %d, expected %d", ErrSequencing, msg.Version, t.version)
	}
	if msg.DestinationCaller != (ids.ID{}) && msg.DestinationCaller != caller {
		return fmt.Errorf("%w: caller %s is not the required destination caller", ErrAuthorization, caller)
	}
	if msg.Nonce == (ids.ID{}) {
		return fmt.Errorf("%w: message nonce not assigned", ErrFormat)
	}

	t.mu.Lock()
	if _, used := t.usedNonces[msg.Nonce]; used {
		t.mu.Unlock()
		return fmt.Errorf("%w: nonce %s already used", ErrSequencing, msg.Nonce)
	}
	t.usedNonces[msg.Nonce] = struct{}{}
	handler := t.handlers[msg.Recipient]
	t.mu.Unlock()

	if handler == nil {
		t.rollbackNonce(msg.Nonce)
		return fmt.Errorf("%w: no handler registered at recipient %s", ErrDispatch, msg.Recipient)
	}

	if msg.FinalityThresholdExecuted >= FinalityThresholdFinalized {
		err = handler.HandleReceiveFinalizedMessage(msg.SourceDomain, msg.Sender, msg.FinalityThresholdExecuted, msg.Body)
	} else {
		err = handler.HandleReceiveUnfinalizedMessage(msg.SourceDomain, msg.Sender, msg.FinalityThresholdExecuted, msg.Body)
	}
	if err != nil {
		t.rollbackNonce(msg.Nonce)
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	t.sink.Emit(MessageReceivedV2{
		Caller:                    caller,
		SourceDomain:              msg.SourceDomain,
		Nonce:                     msg.Nonce,
		Sender:                    msg.Sender,
		FinalityThresholdExecuted: msg.FinalityThresholdExecuted,
		Body:                      msg.Body,
	})
	t.log.Debug("message received",
		log.Uint32("sourceDomain", msg.SourceDomain),
		log.Stringer("nonce", msg.Nonce),
		log.Uint32("finalityThresholdExecuted", msg.FinalityThresholdExecuted),
	)
	return nil
}

// NonceUsed reports whether the opaque nonce was delivered.
func (t *TransmitterV2) NonceUsed(nonce ids.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, used := t.usedNonces[nonce]
	return used
}

func (t *TransmitterV2) rollbackNonce(nonce ids.ID) {
	t.mu.Lock()
	delete(t.usedNonces, nonce)
	t.mu.Unlock()
}

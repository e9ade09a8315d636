// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transit

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/luxfi/crypto"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/transit/roles"
)

// TransmitterConfig configures one protocol instance on a domain.
type TransmitterConfig struct {
	Log         log.Logger
	LocalDomain uint32
	// Version is the envelope version stamped on sent messages and
	// required of received ones.
	Version            uint32
	MaxMessageBodySize int
	Attesters          *AttesterManager
	// Pauser, when set, gates send and receive.
	Pauser     *roles.Pauser
	Sink       EventSink
	Registerer prometheus.Registerer
}

// Transmitter is the v1 message-transit state machine for a single domain.
// It owns the nonce ledger: a monotonic next-nonce counter per destination
// domain on the send side, and a used-forever set keyed by
// (sourceDomain, nonce) on the receive side. Every public operation is a
// single atomic transition; a failed operation leaves no state behind.
type Transmitter struct {
	log                log.Logger
	localDomain        uint32
	version            uint32
	maxMessageBodySize int
	attesters          *AttesterManager
	pauser             *roles.Pauser
	sink               EventSink
	metrics            *transmitterMetrics

	// mu guards the maps below. It is released before handler dispatch so a
	// re-entrant receive observes the nonce already used instead of
	// deadlocking; see ReceiveMessage.
	mu              sync.Mutex
	handlers        map[ids.ID]MessageHandler
	availableNonces map[uint32]uint64
	usedNonces      map[ids.ID]struct{}
}

// NewTransmitter creates a transmitter. An attester manager is required;
// sink and pauser are optional.
func NewTransmitter(cfg TransmitterConfig) (*Transmitter, error) {
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
	return &Transmitter{
		log:                cfg.Log,
		localDomain:        cfg.LocalDomain,
		version:            cfg.Version,
		maxMessageBodySize: cfg.MaxMessageBodySize,
		attesters:          cfg.Attesters,
		pauser:             cfg.Pauser,
		sink:               cfg.Sink,
		metrics:            newTransmitterMetrics(cfg.Registerer),
		handlers:           make(map[ids.ID]MessageHandler),
		availableNonces:    make(map[uint32]uint64),
		usedNonces:         make(map[ids.ID]struct{}),
	}, nil
}

// LocalDomain returns the domain this transmitter serves.
func (t *Transmitter) LocalDomain() uint32 {
	return t.localDomain
}

// Attesters returns the attester manager.
func (t *Transmitter) Attesters() *AttesterManager {
	return t.attesters
}

// RegisterHandler binds the handler invoked when a received message names
// recipient. At most one handler per recipient.
func (t *Transmitter) RegisterHandler(recipient ids.ID, handler MessageHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[recipient] = handler
}

// SendMessage reserves the next nonce for the destination domain, builds
// the envelope, and emits it for off-chain attestation. Any destination
// caller may execute the eventual receive.
func (t *Transmitter) SendMessage(caller ids.ID, destinationDomain uint32, recipient ids.ID, body []byte) (uint64, error) {
	return t.SendMessageWithCaller(caller, destinationDomain, recipient, ids.ID{}, body)
}

// SendMessageWithCaller is SendMessage with delivery restricted to
// destinationCaller on the destination domain.
func (t *Transmitter) SendMessageWithCaller(
	caller ids.ID,
	destinationDomain uint32,
	recipient ids.ID,
	destinationCaller ids.ID,
	body []byte,
) (uint64, error) {
	if t.pauser != nil {
		if err := t.pauser.RequireNotPaused(); err != nil {
			return 0, err
		}
	}
	if destinationDomain == t.localDomain {
		return 0, fmt.Errorf("%w: destination domain %d is the local domain", ErrPolicy, destinationDomain)
	}
	if recipient == (ids.ID{}) {
		return 0, fmt.Errorf("%w: zero recipient", ErrPolicy)
	}
	if len(body) > t.maxMessageBodySize {
		return 0, fmt.Errorf("%w: message body size %d exceeds maximum %d", ErrPolicy, len(body), t.maxMessageBodySize)
	}

	t.mu.Lock()
	nonce := t.availableNonces[destinationDomain]
	t.availableNonces[destinationDomain] = nonce + 1
	t.mu.Unlock()

	msg := &Message{
		Version:           t.version,
		SourceDomain:      t.localDomain,
		DestinationDomain: destinationDomain,
		Nonce:             nonce,
		Sender:            caller,
		Recipient:         recipient,
		DestinationCaller: destinationCaller,
		Body:              body,
	}

	t.sink.Emit(MessageSent{Message: msg.Bytes()})
	t.metrics.messagesSent.Inc()
	t.log.Debug("message sent",
		log.Uint32("destinationDomain", destinationDomain),
		log.Uint64("nonce", nonce),
		log.Stringer("recipient", recipient),
	)
	return nonce, nil
}

// ReceiveMessage verifies the attestation, validates the envelope against
// this domain, marks the nonce used, and dispatches the body to the
// handler registered at the recipient. The nonce is committed before the
// handler runs: a handler that re-enters with the same message observes it
// used and is rejected. A handler error rolls the reservation back and the
// whole operation aborts.
func (t *Transmitter) ReceiveMessage(caller ids.ID, rawMessage, attestation []byte) error {
	if err := t.receiveMessage(caller, rawMessage, attestation); err != nil {
		t.metrics.receiveFailures.Inc()
		return err
	}
	t.metrics.messagesReceived.Inc()
	return nil
}

func (t *Transmitter) receiveMessage(caller ids.ID, rawMessage, attestation []byte) error {
	if t.pauser != nil {
		if err := t.pauser.RequireNotPaused(); err != nil {
			return err
		}
	}
	if err := t.attesters.VerifyAttestation(rawMessage, attestation); err != nil {
		return err
	}
	msg, err := ParseMessage(rawMessage)
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

	nonceKey := hashSourceAndNonce(msg.SourceDomain, msg.Nonce)
	t.mu.Lock()
	if _, used := t.usedNonces[nonceKey]; used {
		t.mu.Unlock()
		return fmt.Errorf("%w: nonce %d already used", ErrSequencing, msg.Nonce)
	}
	t.usedNonces[nonceKey] = struct{}{}
	handler := t.handlers[msg.Recipient]
	t.mu.Unlock()

	if handler == nil {
		t.rollbackNonce(nonceKey)
		return fmt.Errorf("%w: no handler registered at recipient %s", ErrDispatch, msg.Recipient)
	}
	if err := handler.HandleReceiveMessage(msg.SourceDomain, msg.Sender, msg.Body); err != nil {
		t.rollbackNonce(nonceKey)
		return fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	t.sink.Emit(MessageReceived{
		Caller:       caller,
		SourceDomain: msg.SourceDomain,
		Nonce:        msg.Nonce,
		Sender:       msg.Sender,
		Body:         msg.Body,
	})
	t.log.Debug("message received",
		log.Uint32("sourceDomain", msg.SourceDomain),
		log.Uint64("nonce", msg.Nonce),
		log.Stringer("sender", msg.Sender),
	)
	return nil
}

// ReplaceMessage re-emits a previously sent, attested message with a new
// body and destination caller, reusing the original nonce. Only the
// original sender may replace. The original and every replacement stay
// independently receivable until the first delivery at that nonce, which
// invalidates the rest.
func (t *Transmitter) ReplaceMessage(
	caller ids.ID,
	originalMessage []byte,
	originalAttestation []byte,
	newBody []byte,
	newDestinationCaller ids.ID,
) error {
	if t.pauser != nil {
		if err := t.pauser.RequireNotPaused(); err != nil {
			return err
		}
	}
	if err := t.attesters.VerifyAttestation(originalMessage, originalAttestation); err != nil {
		return err
	}
	msg, err := ParseMessage(originalMessage)
	if err != nil {
		return err
	}
	if msg.SourceDomain != t.localDomain {
		return fmt.Errorf("%w: message source domain %d, local domain %d", ErrSequencing, msg.SourceDomain, t.localDomain)
	}
	if msg.Sender != caller {
		return fmt.Errorf("%w: caller %s is not the original sender", ErrAuthorization, caller)
	}
	if len(newBody) > t.maxMessageBodySize {
		return fmt.Errorf("%w: message body size %d exceeds maximum %d", ErrPolicy, len(newBody), t.maxMessageBodySize)
	}

	replacement := &Message{
		Version:           msg.Version,
		SourceDomain:      msg.SourceDomain,
		DestinationDomain: msg.DestinationDomain,
		Nonce:             msg.Nonce,
		Sender:            msg.Sender,
		Recipient:         msg.Recipient,
		DestinationCaller: newDestinationCaller,
		Body:              newBody,
	}

	t.sink.Emit(MessageSent{Message: replacement.Bytes()})
	t.metrics.messagesReplaced.Inc()
	t.log.Debug("message replaced",
		log.Uint32("destinationDomain", msg.DestinationDomain),
		log.Uint64("nonce", msg.Nonce),
	)
	return nil
}

// NonceUsed reports whether the (sourceDomain, nonce) pair was delivered.
func (t *Transmitter) NonceUsed(sourceDomain uint32, nonce uint64) bool {
	key := hashSourceAndNonce(sourceDomain, nonce)
	t.mu.Lock()
	defer t.mu.Unlock()
	_, used := t.usedNonces[key]
	return used
}

func (t *Transmitter) rollbackNonce(key ids.ID) {
	t.mu.Lock()
	delete(t.usedNonces, key)
	t.mu.Unlock()
}

func hashSourceAndNonce(sourceDomain uint32, nonce uint64) ids.ID {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:], sourceDomain)
	binary.BigEndian.PutUint64(buf[4:], nonce)
	return ids.ID(crypto.Keccak256Hash(buf[:]))
}

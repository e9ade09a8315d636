// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transit

import (
	"crypto/rand"
	"errors"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/transit/roles"
)

// generateTestID creates a random ID for testing
func generateTestID() ids.ID {
	var id ids.ID
	rand.Read(id[:])
	return id
}

// captureSink records every emitted event.
type captureSink struct {
	events []any
}

func (s *captureSink) Emit(event any) {
	s.events = append(s.events, event)
}

func (s *captureSink) lastSentMessage(t *testing.T) []byte {
	t.Helper()
	for i := len(s.events) - 1; i >= 0; i-- {
		if sent, ok := s.events[i].(MessageSent); ok {
			return sent.Message
		}
	}
	t.Fatal("no MessageSent event captured")
	return nil
}

// recordingHandler records received bodies and fails on demand.
type recordingHandler struct {
	sourceDomains []uint32
	senders       []ids.ID
	bodies        [][]byte
	err           error
}

func (h *recordingHandler) HandleReceiveMessage(sourceDomain uint32, sender ids.ID, body []byte) error {
	if h.err != nil {
		return h.err
	}
	h.sourceDomains = append(h.sourceDomains, sourceDomain)
	h.senders = append(h.senders, sender)
	h.bodies = append(h.bodies, body)
	return nil
}

func newTestTransmitter(t *testing.T, domain uint32, keys []*AttesterKey, sink EventSink) *Transmitter {
	t.Helper()
	addrs := make([]common.Address, len(keys))
	for i, key := range keys {
		addrs[i] = key.Address()
	}
	manager, err := NewAttesterManager(testManager, addrs, len(keys))
	require.NoError(t, err)
	transmitter, err := NewTransmitter(TransmitterConfig{
		LocalDomain: domain,
		Attesters:   manager,
		Sink:        sink,
	})
	require.NoError(t, err)
	return transmitter
}

func TestSendMessage(t *testing.T) {
	require := require.New(t)

	keys, _ := newTestKeys(t, 1)
	sink := &captureSink{}
	transmitter := newTestTransmitter(t, 0, keys, sink)

	sender := generateTestID()
	recipient := generateTestID()

	// Nonces are monotonic per destination domain.
	nonce, err := transmitter.SendMessage(sender, 1, recipient, []byte("one"))
	require.NoError(err)
	require.Equal(uint64(0), nonce)

	nonce, err = transmitter.SendMessage(sender, 1, recipient, []byte("two"))
	require.NoError(err)
	require.Equal(uint64(1), nonce)

	nonce, err = transmitter.SendMessage(sender, 2, recipient, []byte("three"))
	require.NoError(err)
	require.Equal(uint64(0), nonce)

	msg, err := ParseMessage(sink.lastSentMessage(t))
	require.NoError(err)
	require.Equal(sender, msg.Sender)
	require.Equal(recipient, msg.Recipient)
	require.Equal([]byte("three"), msg.Body)
}

func TestSendMessageRejections(t *testing.T) {
	require := require.New(t)

	keys, _ := newTestKeys(t, 1)
	transmitter := newTestTransmitter(t, 0, keys, nil)
	sender := generateTestID()
	recipient := generateTestID()

	_, err := transmitter.SendMessage(sender, 0, recipient, nil)
	require.ErrorIs(err, ErrPolicy)

	_, err = transmitter.SendMessage(sender, 1, ids.ID{}, nil)
	require.ErrorIs(err, ErrPolicy)

	_, err = transmitter.SendMessage(sender, 1, recipient, make([]byte, DefaultMaxMessageBodySize+1))
	require.ErrorIs(err, ErrPolicy)
}

func TestReceiveMessage(t *testing.T) {
	require := require.New(t)

	keys, _ := newTestKeys(t, 2)
	sink := &captureSink{}
	source := newTestTransmitter(t, 0, keys, sink)
	destination := newTestTransmitter(t, 1, keys, nil)

	recipient := generateTestID()
	sender := generateTestID()
	handler := &recordingHandler{}
	destination.RegisterHandler(recipient, handler)

	nonce, err := source.SendMessage(sender, 1, recipient, []byte("payload"))
	require.NoError(err)

	raw := sink.lastSentMessage(t)
	attestation, err := Attest(raw, keys...)
	require.NoError(err)

	caller := generateTestID()
	require.NoError(destination.ReceiveMessage(caller, raw, attestation))
	require.Equal([][]byte{[]byte("payload")}, handler.bodies)
	require.Equal([]ids.ID{sender}, handler.senders)
	require.True(destination.NonceUsed(0, nonce))

	// Replay at the same nonce is rejected.
	err = destination.ReceiveMessage(caller, raw, attestation)
	require.ErrorIs(err, ErrSequencing)
	require.Len(handler.bodies, 1)
}

func TestReceiveMessageRejections(t *testing.T) {
	require := require.New(t)

	keys, _ := newTestKeys(t, 1)
	sink := &captureSink{}
	source := newTestTransmitter(t, 0, keys, sink)
	destination := newTestTransmitter(t, 1, keys, nil)
	other := newTestTransmitter(t, 2, keys, nil)

	recipient := generateTestID()
	caller := generateTestID()

	_, err := source.SendMessage(generateTestID(), 1, recipient, []byte("payload"))
	require.NoError(err)
	raw := sink.lastSentMessage(t)

	attestation, err := Attest(raw, keys...)
	require.NoError(err)

	// Tampered message fails attestation.
	tampered := append([]byte{}, raw...)
	tampered[len(tampered)-1] ^= 0xff
	require.ErrorIs(destination.ReceiveMessage(caller, tampered, attestation), ErrAuthorization)

	// Wrong destination domain.
	require.ErrorIs(other.ReceiveMessage(caller, raw, attestation), ErrSequencing)

	// No handler registered at the recipient; the nonce stays unused.
	require.ErrorIs(destination.ReceiveMessage(caller, raw, attestation), ErrDispatch)
	require.False(destination.NonceUsed(0, 0))
}

func TestReceiveMessageDestinationCaller(t *testing.T) {
	require := require.New(t)

	keys, _ := newTestKeys(t, 1)
	sink := &captureSink{}
	source := newTestTransmitter(t, 0, keys, sink)
	destination := newTestTransmitter(t, 1, keys, nil)

	recipient := generateTestID()
	requiredCaller := generateTestID()
	handler := &recordingHandler{}
	destination.RegisterHandler(recipient, handler)

	_, err := source.SendMessageWithCaller(generateTestID(), 1, recipient, requiredCaller, nil)
	require.NoError(err)
	raw := sink.lastSentMessage(t)
	attestation, err := Attest(raw, keys...)
	require.NoError(err)

	err = destination.ReceiveMessage(generateTestID(), raw, attestation)
	require.ErrorIs(err, ErrAuthorization)

	require.NoError(destination.ReceiveMessage(requiredCaller, raw, attestation))
}

func TestReceiveMessageHandlerFailureRollsBackNonce(t *testing.T) {
	require := require.New(t)

	keys, _ := newTestKeys(t, 1)
	sink := &captureSink{}
	source := newTestTransmitter(t, 0, keys, sink)
	destination := newTestTransmitter(t, 1, keys, nil)

	recipient := generateTestID()
	handler := &recordingHandler{err: errors.New("handler rejected")}
	destination.RegisterHandler(recipient, handler)

	nonce, err := source.SendMessage(generateTestID(), 1, recipient, []byte("payload"))
	require.NoError(err)
	raw := sink.lastSentMessage(t)
	attestation, err := Attest(raw, keys...)
	require.NoError(err)

	caller := generateTestID()
	err = destination.ReceiveMessage(caller, raw, attestation)
	require.ErrorIs(err, ErrDispatch)
	require.False(destination.NonceUsed(0, nonce))

	// Delivery succeeds once the handler accepts.
	handler.err = nil
	require.NoError(destination.ReceiveMessage(caller, raw, attestation))
	require.True(destination.NonceUsed(0, nonce))
}

func TestReplaceMessage(t *testing.T) {
	require := require.New(t)

	keys, _ := newTestKeys(t, 1)
	sink := &captureSink{}
	source := newTestTransmitter(t, 0, keys, sink)
	destination := newTestTransmitter(t, 1, keys, nil)

	recipient := generateTestID()
	sender := generateTestID()
	handler := &recordingHandler{}
	destination.RegisterHandler(recipient, handler)

	nonce, err := source.SendMessage(sender, 1, recipient, []byte("original"))
	require.NoError(err)
	original := sink.lastSentMessage(t)
	originalAttestation, err := Attest(original, keys...)
	require.NoError(err)

	// Only the original sender may replace.
	err = source.ReplaceMessage(generateTestID(), original, originalAttestation, []byte("replacement"), ids.ID{})
	require.ErrorIs(err, ErrAuthorization)

	require.NoError(source.ReplaceMessage(sender, original, originalAttestation, []byte("replacement"), ids.ID{}))

	replacement := sink.lastSentMessage(t)
	msg, err := ParseMessage(replacement)
	require.NoError(err)
	require.Equal(nonce, msg.Nonce)
	require.Equal([]byte("replacement"), msg.Body)

	replacementAttestation, err := Attest(replacement, keys...)
	require.NoError(err)

	caller := generateTestID()
	require.NoError(destination.ReceiveMessage(caller, replacement, replacementAttestation))

	// The original shares the nonce and is now unreceivable.
	err = destination.ReceiveMessage(caller, original, originalAttestation)
	require.ErrorIs(err, ErrSequencing)
	require.Equal([][]byte{[]byte("replacement")}, handler.bodies)
}

func TestTransmitterPaused(t *testing.T) {
	require := require.New(t)

	keys, _ := newTestKeys(t, 1)
	addrs := []common.Address{keys[0].Address()}
	manager, err := NewAttesterManager(testManager, addrs, 1)
	require.NoError(err)

	pauserIdentity := generateTestID()
	pauser := roles.NewPauser(pauserIdentity)
	transmitter, err := NewTransmitter(TransmitterConfig{
		LocalDomain: 0,
		Attesters:   manager,
		Pauser:      pauser,
	})
	require.NoError(err)

	require.NoError(pauser.Pause(pauserIdentity))
	_, err = transmitter.SendMessage(generateTestID(), 1, generateTestID(), nil)
	require.ErrorIs(err, roles.ErrPaused)

	require.NoError(pauser.Unpause(pauserIdentity))
	_, err = transmitter.SendMessage(generateTestID(), 1, generateTestID(), nil)
	require.NoError(err)
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transit

import (
	"errors"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

// recordingHandlerV2 records which entry point each delivery took.
type recordingHandlerV2 struct {
	finalized   [][]byte
	unfinalized [][]byte
	thresholds  []uint32
	err         error
}

func (h *recordingHandlerV2) HandleReceiveFinalizedMessage(sourceDomain uint32, sender ids.ID, finalityThresholdExecuted uint32, body []byte) error {
	if h.err != nil {
		return h.err
	}
	h.finalized = append(h.finalized, body)
	h.thresholds = append(h.thresholds, finalityThresholdExecuted)
	return nil
}

func (h *recordingHandlerV2) HandleReceiveUnfinalizedMessage(sourceDomain uint32, sender ids.ID, finalityThresholdExecuted uint32, body []byte) error {
	if h.err != nil {
		return h.err
	}
	h.unfinalized = append(h.unfinalized, body)
	h.thresholds = append(h.thresholds, finalityThresholdExecuted)
	return nil
}

func newTestTransmitterV2(t *testing.T, domain uint32, keys []*AttesterKey, sink EventSink) *TransmitterV2 {
	t.Helper()
	addrs := make([]common.Address, len(keys))
	for i, key := range keys {
		addrs[i] = key.Address()
	}
	manager, err := NewAttesterManager(testManager, addrs, len(keys))
	require.NoError(t, err)
	transmitter, err := NewTransmitterV2(TransmitterV2Config{
		LocalDomain: domain,
		Attesters:   manager,
		Sink:        sink,
	})
	require.NoError(t, err)
	return transmitter
}

// finalize fills the attestation-layer fields of a sent v2 message.
func finalize(t *testing.T, raw []byte, nonce ids.ID, executed uint32) []byte {
	t.Helper()
	msg, err := ParseMessageV2(raw)
	require.NoError(t, err)
	msg.Nonce = nonce
	msg.FinalityThresholdExecuted = executed
	return msg.Bytes()
}

func TestSendMessageV2EmitsZeroNonce(t *testing.T) {
	require := require.New(t)

	keys, _ := newTestKeys(t, 1)
	sink := &captureSink{}
	transmitter := newTestTransmitterV2(t, 0, keys, sink)

	sender := generateTestID()
	recipient := generateTestID()
	err := transmitter.SendMessage(sender, 1, recipient, ids.ID{}, FinalityThresholdConfirmed, []byte("payload"))
	require.NoError(err)

	msg, err := ParseMessageV2(sink.lastSentMessage(t))
	require.NoError(err)
	require.Equal(ids.ID{}, msg.Nonce)
	require.Zero(msg.FinalityThresholdExecuted)
	require.Equal(uint32(FinalityThresholdConfirmed), msg.MinFinalityThreshold)

	// A threshold above finalized is clamped.
	require.NoError(transmitter.SendMessage(sender, 1, recipient, ids.ID{}, 5000, nil))
	msg, err = ParseMessageV2(sink.lastSentMessage(t))
	require.NoError(err)
	require.Equal(uint32(FinalityThresholdFinalized), msg.MinFinalityThreshold)
}

func TestReceiveMessageV2FinalitySplit(t *testing.T) {
	require := require.New(t)

	keys, _ := newTestKeys(t, 1)
	sink := &captureSink{}
	source := newTestTransmitterV2(t, 0, keys, sink)
	destination := newTestTransmitterV2(t, 1, keys, nil)

	recipient := generateTestID()
	handler := &recordingHandlerV2{}
	destination.RegisterHandler(recipient, handler)
	caller := generateTestID()

	require.NoError(source.SendMessage(generateTestID(), 1, recipient, ids.ID{}, FinalityThresholdFinalized, []byte("slow")))
	finalized := finalize(t, sink.lastSentMessage(t), generateTestID(), FinalityThresholdFinalized)
	attestation, err := Attest(finalized, keys...)
	require.NoError(err)
	require.NoError(destination.ReceiveMessage(caller, finalized, attestation))
	require.Equal([][]byte{[]byte("slow")}, handler.finalized)

	require.NoError(source.SendMessage(generateTestID(), 1, recipient, ids.ID{}, FinalityThresholdConfirmed, []byte("fast")))
	unfinalized := finalize(t, sink.lastSentMessage(t), generateTestID(), FinalityThresholdConfirmed)
	attestation, err = Attest(unfinalized, keys...)
	require.NoError(err)
	require.NoError(destination.ReceiveMessage(caller, unfinalized, attestation))
	require.Equal([][]byte{[]byte("fast")}, handler.unfinalized)
	require.Equal([]uint32{FinalityThresholdFinalized, FinalityThresholdConfirmed}, handler.thresholds)
}

func TestReceiveMessageV2NonceLedger(t *testing.T) {
	require := require.New(t)

	keys, _ := newTestKeys(t, 1)
	sink := &captureSink{}
	source := newTestTransmitterV2(t, 0, keys, sink)
	destination := newTestTransmitterV2(t, 1, keys, nil)

	recipient := generateTestID()
	handler := &recordingHandlerV2{}
	destination.RegisterHandler(recipient, handler)
	caller := generateTestID()

	require.NoError(source.SendMessage(generateTestID(), 1, recipient, ids.ID{}, FinalityThresholdFinalized, nil))
	raw := sink.lastSentMessage(t)

	// An unfinalized message still carrying the zero nonce is rejected.
	attestation, err := Attest(raw, keys...)
	require.NoError(err)
	err = destination.ReceiveMessage(caller, raw, attestation)
	require.ErrorIs(err, ErrFormat)

	nonce := generateTestID()
	finalized := finalize(t, raw, nonce, FinalityThresholdFinalized)
	attestation, err = Attest(finalized, keys...)
	require.NoError(err)
	require.NoError(destination.ReceiveMessage(caller, finalized, attestation))
	require.True(destination.NonceUsed(nonce))

	err = destination.ReceiveMessage(caller, finalized, attestation)
	require.ErrorIs(err, ErrSequencing)
}

func TestReceiveMessageV2HandlerFailureRollsBackNonce(t *testing.T) {
	require := require.New(t)

	keys, _ := newTestKeys(t, 1)
	sink := &captureSink{}
	source := newTestTransmitterV2(t, 0, keys, sink)
	destination := newTestTransmitterV2(t, 1, keys, nil)

	recipient := generateTestID()
	handler := &recordingHandlerV2{err: errors.New("handler rejected")}
	destination.RegisterHandler(recipient, handler)
	caller := generateTestID()

	require.NoError(source.SendMessage(generateTestID(), 1, recipient, ids.ID{}, FinalityThresholdFinalized, nil))
	nonce := generateTestID()
	finalized := finalize(t, sink.lastSentMessage(t), nonce, FinalityThresholdFinalized)
	attestation, err := Attest(finalized, keys...)
	require.NoError(err)

	err = destination.ReceiveMessage(caller, finalized, attestation)
	require.ErrorIs(err, ErrDispatch)
	require.False(destination.NonceUsed(nonce))

	handler.err = nil
	require.NoError(destination.ReceiveMessage(caller, finalized, attestation))
	require.True(destination.NonceUsed(nonce))
}

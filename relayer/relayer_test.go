// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package relayer

import (
	"crypto/rand"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/transit"
	"github.com/luxfi/transit/payload"
)

// generateTestID creates a random ID for testing
func generateTestID() ids.ID {
	var id ids.ID
	rand.Read(id[:])
	return id
}

type recordingHandler struct {
	bodies [][]byte
}

func (h *recordingHandler) HandleReceiveMessage(sourceDomain uint32, sender ids.ID, body []byte) error {
	h.bodies = append(h.bodies, body)
	return nil
}

type recordingHandlerV2 struct {
	finalized   [][]byte
	unfinalized [][]byte
}

func (h *recordingHandlerV2) HandleReceiveFinalizedMessage(sourceDomain uint32, sender ids.ID, finalityThresholdExecuted uint32, body []byte) error {
	h.finalized = append(h.finalized, body)
	return nil
}

func (h *recordingHandlerV2) HandleReceiveUnfinalizedMessage(sourceDomain uint32, sender ids.ID, finalityThresholdExecuted uint32, body []byte) error {
	h.unfinalized = append(h.unfinalized, body)
	return nil
}

func newAttesterSet(t *testing.T, n int) ([]*transit.AttesterKey, *transit.AttesterManager) {
	t.Helper()
	keys := make([]*transit.AttesterKey, n)
	addrs := make([]common.Address, n)
	for i := range keys {
		key, err := transit.NewAttesterKey()
		require.NoError(t, err)
		keys[i] = key
		addrs[i] = key.Address()
	}
	manager, err := transit.NewAttesterManager(common.Address{0x01}, addrs, n)
	require.NoError(t, err)
	return keys, manager
}

func TestChannelSink(t *testing.T) {
	require := require.New(t)

	sink := NewChannelSink(1)
	sink.Emit("not a message")
	sink.Emit(transit.MessageSent{Message: []byte("one")})
	// Buffer full; the second message is dropped, not blocked on.
	sink.Emit(transit.MessageSent{Message: []byte("two")})

	require.Equal([]byte("one"), <-sink.Messages())
	select {
	case raw := <-sink.Messages():
		t.Fatalf("unexpected message %q", raw)
	default:
	}
}

func TestRelayV1(t *testing.T) {
	require := require.New(t)

	keys, manager := newAttesterSet(t, 2)
	sink := NewChannelSink(8)
	source, err := transit.NewTransmitter(transit.TransmitterConfig{
		LocalDomain: 0,
		Attesters:   manager,
		Sink:        sink,
	})
	require.NoError(err)
	destination, err := transit.NewTransmitter(transit.TransmitterConfig{
		LocalDomain: 1,
		Attesters:   manager,
	})
	require.NoError(err)

	recipient := generateTestID()
	handler := &recordingHandler{}
	destination.RegisterHandler(recipient, handler)

	r, err := New(Config{
		Identity:         generateTestID(),
		Keys:             keys,
		MessageVersionV2: 1,
	})
	require.NoError(err)
	r.RegisterDestination(1, destination)

	nonce, err := source.SendMessage(generateTestID(), 1, recipient, []byte("payload"))
	require.NoError(err)

	require.NoError(r.Relay(<-sink.Messages()))
	require.Equal([][]byte{[]byte("payload")}, handler.bodies)
	require.True(destination.NonceUsed(0, nonce))
}

func TestRelayV1DestinationCaller(t *testing.T) {
	require := require.New(t)

	keys, manager := newAttesterSet(t, 1)
	sink := NewChannelSink(8)
	source, err := transit.NewTransmitter(transit.TransmitterConfig{
		LocalDomain: 0,
		Attesters:   manager,
		Sink:        sink,
	})
	require.NoError(err)
	destination, err := transit.NewTransmitter(transit.TransmitterConfig{
		LocalDomain: 1,
		Attesters:   manager,
	})
	require.NoError(err)

	recipient := generateTestID()
	handler := &recordingHandler{}
	destination.RegisterHandler(recipient, handler)

	r, err := New(Config{Keys: keys, MessageVersionV2: 1})
	require.NoError(err)
	r.RegisterDestination(1, destination)

	// The relayer delivers under the required caller identity.
	requiredCaller := generateTestID()
	_, err = source.SendMessageWithCaller(generateTestID(), 1, recipient, requiredCaller, []byte("restricted"))
	require.NoError(err)
	require.NoError(r.Relay(<-sink.Messages()))
	require.Equal([][]byte{[]byte("restricted")}, handler.bodies)
}

func TestRelayV2Finalize(t *testing.T) {
	require := require.New(t)

	keys, manager := newAttesterSet(t, 1)
	sink := NewChannelSink(8)
	source, err := transit.NewTransmitterV2(transit.TransmitterV2Config{
		LocalDomain: 0,
		Version:     1,
		Attesters:   manager,
		Sink:        sink,
	})
	require.NoError(err)

	r, err := New(Config{Keys: keys, MessageVersionV2: 1})
	require.NoError(err)

	recipient := generateTestID()
	require.NoError(source.SendMessage(generateTestID(), 1, recipient, ids.ID{}, transit.FinalityThresholdConfirmed, []byte("payload")))

	finalized, err := r.Finalize(<-sink.Messages())
	require.NoError(err)

	msg, err := transit.ParseMessageV2(finalized)
	require.NoError(err)
	require.NotEqual(ids.ID{}, msg.Nonce)
	require.Equal(uint32(transit.FinalityThresholdFinalized), msg.FinalityThresholdExecuted)

	// Distinct sends get distinct nonces.
	require.NoError(source.SendMessage(generateTestID(), 1, recipient, ids.ID{}, transit.FinalityThresholdConfirmed, []byte("payload")))
	other, err := r.Finalize(<-sink.Messages())
	require.NoError(err)
	otherMsg, err := transit.ParseMessageV2(other)
	require.NoError(err)
	require.NotEqual(msg.Nonce, otherMsg.Nonce)
}

func TestRelayV2EndToEnd(t *testing.T) {
	require := require.New(t)

	keys, manager := newAttesterSet(t, 1)
	sink := NewChannelSink(8)
	source, err := transit.NewTransmitterV2(transit.TransmitterV2Config{
		LocalDomain: 0,
		Version:     1,
		Attesters:   manager,
		Sink:        sink,
	})
	require.NoError(err)
	destination, err := transit.NewTransmitterV2(transit.TransmitterV2Config{
		LocalDomain: 1,
		Version:     1,
		Attesters:   manager,
	})
	require.NoError(err)

	recipient := generateTestID()
	handler := &recordingHandlerV2{}
	destination.RegisterHandler(recipient, handler)

	r, err := New(Config{
		Identity:         generateTestID(),
		Keys:             keys,
		MessageVersionV2: 1,
	})
	require.NoError(err)
	r.RegisterDestinationV2(1, destination)

	require.NoError(source.SendMessage(generateTestID(), 1, recipient, ids.ID{}, transit.FinalityThresholdFinalized, []byte("payload")))
	require.NoError(r.Relay(<-sink.Messages()))
	require.Equal([][]byte{[]byte("payload")}, handler.finalized)
}

func TestRelayV2FeeCalculator(t *testing.T) {
	require := require.New(t)

	keys, manager := newAttesterSet(t, 1)
	sink := NewChannelSink(8)
	source, err := transit.NewTransmitterV2(transit.TransmitterV2Config{
		LocalDomain: 0,
		Version:     1,
		Attesters:   manager,
		Sink:        sink,
	})
	require.NoError(err)

	fee := uint256.NewInt(5)
	r, err := New(Config{
		Keys:             keys,
		MessageVersionV2: 1,
		Fees: func(burn *payload.BurnMessageV2) *uint256.Int {
			return fee
		},
	})
	require.NoError(err)

	burn := &payload.BurnMessageV2{
		Version:         1,
		BurnToken:       generateTestID(),
		MintRecipient:   generateTestID(),
		Amount:          uint256.NewInt(100),
		MessageSender:   generateTestID(),
		MaxFee:          uint256.NewInt(10),
		FeeExecuted:     new(uint256.Int),
		ExpirationBlock: new(uint256.Int),
	}
	require.NoError(source.SendMessage(generateTestID(), 1, generateTestID(), ids.ID{}, transit.FinalityThresholdFinalized, burn.Bytes()))
	raw := <-sink.Messages()

	finalized, err := r.Finalize(raw)
	require.NoError(err)
	msg, err := transit.ParseMessageV2(finalized)
	require.NoError(err)
	settled, err := payload.ParseBurnMessageV2(msg.Body)
	require.NoError(err)
	require.Equal(uint256.NewInt(5), settled.FeeExecuted)

	// A fee above the max fee fails finalization.
	fee = uint256.NewInt(11)
	_, err = r.Finalize(raw)
	require.ErrorIs(err, transit.ErrPolicy)
}

func TestFinalizeConcurrentNonces(t *testing.T) {
	require := require.New(t)

	keys, _ := newAttesterSet(t, 1)
	r, err := New(Config{Keys: keys, MessageVersionV2: 1})
	require.NoError(err)

	raw := (&transit.MessageV2{
		Version:           1,
		DestinationDomain: 1,
		Sender:            generateTestID(),
		Recipient:         generateTestID(),
		Body:              []byte("payload"),
	}).Bytes()

	// Concurrent finalizations of the same message must still produce
	// distinct nonces.
	const workers, perWorker = 4, 16
	nonces := make(chan ids.ID, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				finalized, err := r.Finalize(raw)
				if err != nil {
					t.Error(err)
					return
				}
				msg, err := transit.ParseMessageV2(finalized)
				if err != nil {
					t.Error(err)
					return
				}
				nonces <- msg.Nonce
			}
		}()
	}
	wg.Wait()
	close(nonces)

	seen := make(map[ids.ID]struct{}, workers*perWorker)
	for nonce := range nonces {
		_, dup := seen[nonce]
		require.False(dup)
		seen[nonce] = struct{}{}
	}
	require.Len(seen, workers*perWorker)
}

func TestRelayUnknownVersion(t *testing.T) {
	keys, _ := newAttesterSet(t, 1)
	r, err := New(Config{Keys: keys, MessageVersion: 0, MessageVersionV2: 1})
	require.NoError(t, err)

	msg := &transit.Message{Version: 9, DestinationDomain: 1}
	require.ErrorIs(t, r.Relay(msg.Bytes()), transit.ErrFormat)
}

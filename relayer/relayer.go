// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package relayer drains sent messages from a transmitter's event sink,
// finalizes and attests them with a local attester key set, and delivers
// them to the transmitter registered for the destination domain. It plays
// the role the off-chain attestation service plays in a full deployment.
package relayer

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/transit"
	"github.com/luxfi/transit/cache"
	"github.com/luxfi/transit/payload"
	"github.com/luxfi/transit/utils"
)

const (
	// DefaultAttestationTTL bounds how long a cached attestation is reused.
	DefaultAttestationTTL = 5 * time.Minute

	// DefaultRetryTimeout bounds the retry window for a failed delivery.
	DefaultRetryTimeout = 10 * time.Second
)

// FeeCalculator prices the delivery of a v2 burn message. The returned fee
// is stamped into the message as the executed fee; it must stay below the
// message's max fee or finalization fails.
type FeeCalculator func(burn *payload.BurnMessageV2) *uint256.Int

// Config wires a relayer.
type Config struct {
	Log log.Logger
	// Identity is the caller identity the relayer delivers under when the
	// message does not name a destination caller.
	Identity ids.ID
	// Keys signs attestations. Order does not matter; signatures are
	// emitted in ascending signer-address order.
	Keys []*transit.AttesterKey
	// MessageVersion and MessageVersionV2 route raw messages to the v1 or
	// v2 pipeline by their envelope version field.
	MessageVersion   uint32
	MessageVersionV2 uint32
	// Finality is the executed finality threshold stamped on finalized v2
	// messages. Defaults to transit.FinalityThresholdFinalized.
	Finality uint32
	// Fees, when set, prices v2 burn-message deliveries.
	Fees FeeCalculator
	// AttestationTTL is how long signed attestations are cached for reuse.
	// Defaults to DefaultAttestationTTL.
	AttestationTTL time.Duration
	// RetryTimeout bounds the exponential-backoff retry window for a
	// delivery. Defaults to DefaultRetryTimeout.
	RetryTimeout time.Duration
	Registerer   prometheus.Registerer
}

// Relayer attests and delivers messages between in-process transmitters.
type Relayer struct {
	log              log.Logger
	identity         ids.ID
	keys             []*transit.AttesterKey
	messageVersion   uint32
	messageVersionV2 uint32
	finality         uint32
	fees             FeeCalculator
	attestations     *cache.TTLCache[ids.ID, []byte]
	retryTimeout     time.Duration
	metrics          *relayerMetrics

	// mu guards the nonce counter and the destination registries, so
	// registration and Finalize are safe alongside a running Run loop.
	mu             sync.Mutex
	nonceCounter   uint64
	destinations   map[uint32]*transit.Transmitter
	destinationsV2 map[uint32]*transit.TransmitterV2
}

// New creates a relayer. At least one attester key is required.
func New(cfg Config) (*Relayer, error) {
	if len(cfg.Keys) == 0 {
		return nil, fmt.Errorf("%w: no attester keys", transit.ErrPolicy)
	}
	if cfg.Log == nil {
		cfg.Log = log.NewNoOpLogger()
	}
	if cfg.Finality == 0 {
		cfg.Finality = transit.FinalityThresholdFinalized
	}
	if cfg.AttestationTTL <= 0 {
		cfg.AttestationTTL = DefaultAttestationTTL
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = DefaultRetryTimeout
	}
	return &Relayer{
		log:              cfg.Log,
		identity:         cfg.Identity,
		keys:             cfg.Keys,
		messageVersion:   cfg.MessageVersion,
		messageVersionV2: cfg.MessageVersionV2,
		finality:         cfg.Finality,
		fees:             cfg.Fees,
		attestations:     cache.NewTTLCache[ids.ID, []byte](cfg.AttestationTTL),
		retryTimeout:     cfg.RetryTimeout,
		metrics:          newRelayerMetrics(cfg.Registerer),
		destinations:     make(map[uint32]*transit.Transmitter),
		destinationsV2:   make(map[uint32]*transit.TransmitterV2),
	}, nil
}

// RegisterDestination binds the v1 transmitter serving a domain.
func (r *Relayer) RegisterDestination(domain uint32, transmitter *transit.Transmitter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinations[domain] = transmitter
}

// RegisterDestinationV2 binds the v2 transmitter serving a domain.
func (r *Relayer) RegisterDestinationV2(domain uint32, transmitter *transit.TransmitterV2) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destinationsV2[domain] = transmitter
}

// Attest signs a raw message with every relayer key, signatures
// concatenated in ascending signer order. Attestations are cached by
// message digest, so re-relays within the freshness window reuse them.
func (r *Relayer) Attest(rawMessage []byte) ([]byte, error) {
	digest := ids.ID(transit.MessageDigest(rawMessage))
	return r.attestations.Get(digest, func(ids.ID) ([]byte, error) {
		return transit.Attest(rawMessage, r.keys...)
	})
}

// Finalize fills in the fields a v2 message leaves to the attestation
// layer: a fresh nonce, the executed finality threshold, and, for burn
// bodies with a configured fee calculator, the executed fee. Returns the
// finalized message, ready to attest.
func (r *Relayer) Finalize(rawMessage []byte) ([]byte, error) {
	msg, err := transit.ParseMessageV2(rawMessage)
	if err != nil {
		return nil, err
	}
	msg.Nonce = r.nextNonce(rawMessage)
	msg.FinalityThresholdExecuted = r.finality
	if msg.FinalityThresholdExecuted < msg.MinFinalityThreshold {
		msg.FinalityThresholdExecuted = msg.MinFinalityThreshold
	}

	if r.fees != nil {
		if burn, err := payload.ParseBurnMessageV2(msg.Body); err == nil {
			fee := r.fees(burn)
			if fee != nil && !fee.IsZero() {
				if fee.Gt(burn.MaxFee) {
					return nil, fmt.Errorf("%w: delivery fee exceeds max fee", transit.ErrPolicy)
				}
				burn.FeeExecuted = fee
				msg.Body = burn.Bytes()
			}
		}
	}
	return msg.Bytes(), nil
}

// Run drains the sink until the context is canceled, attesting and
// delivering each message. Transient delivery failures retry with
// exponential backoff; protocol rejections and exhausted retries are
// counted and logged, not fatal.
func (r *Relayer) Run(ctx context.Context, sink *ChannelSink) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rawMessage := <-sink.Messages():
			err := utils.WithRetriesTimeout(r.log, func() error {
				err := r.Relay(rawMessage)
				if isRejection(err) {
					return backoff.Permanent(err)
				}
				return err
			}, r.retryTimeout)
			if err != nil {
				r.metrics.relayFailures.Inc()
				r.log.Warn("failed to relay message", log.Err(err))
				continue
			}
			r.metrics.messagesRelayed.Inc()
		}
	}
}

// isRejection reports whether the delivery error is a protocol rejection
// that no amount of retrying will fix.
func isRejection(err error) bool {
	return errors.Is(err, transit.ErrFormat) ||
		errors.Is(err, transit.ErrAuthorization) ||
		errors.Is(err, transit.ErrSequencing) ||
		errors.Is(err, transit.ErrPolicy)
}

// Relay finalizes (v2), attests, and delivers one raw message.
func (r *Relayer) Relay(rawMessage []byte) error {
	if len(rawMessage) < transit.MessageHeaderLen {
		return fmt.Errorf("%w: message too short", transit.ErrFormat)
	}
	switch version := binary.BigEndian.Uint32(rawMessage[:4]); version {
	case r.messageVersionV2:
		return r.relayV2(rawMessage)
	case r.messageVersion:
		return r.relayV1(rawMessage)
	default:
		return fmt.Errorf("%w: unknown message version %d", transit.ErrFormat, version)
	}
}

func (r *Relayer) relayV1(rawMessage []byte) error {
	msg, err := transit.ParseMessage(rawMessage)
	if err != nil {
		return err
	}
	r.mu.Lock()
	destination, ok := r.destinations[msg.DestinationDomain]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no destination registered for domain %d", transit.ErrDispatch, msg.DestinationDomain)
	}
	attestation, err := r.Attest(rawMessage)
	if err != nil {
		return err
	}
	err = destination.ReceiveMessage(r.callerFor(msg.DestinationCaller), rawMessage, attestation)
	if err != nil {
		return err
	}
	r.log.Debug("relayed message",
		log.Uint32("destinationDomain", msg.DestinationDomain),
		log.Uint64("nonce", msg.Nonce),
	)
	return nil
}

func (r *Relayer) relayV2(rawMessage []byte) error {
	finalized, err := r.Finalize(rawMessage)
	if err != nil {
		return err
	}
	msg, err := transit.ParseMessageV2(finalized)
	if err != nil {
		return err
	}
	r.mu.Lock()
	destination, ok := r.destinationsV2[msg.DestinationDomain]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no destination registered for domain %d", transit.ErrDispatch, msg.DestinationDomain)
	}
	attestation, err := r.Attest(finalized)
	if err != nil {
		return err
	}
	err = destination.ReceiveMessage(r.callerFor(msg.DestinationCaller), finalized, attestation)
	if err != nil {
		return err
	}
	r.log.Debug("relayed message",
		log.Uint32("destinationDomain", msg.DestinationDomain),
		log.Stringer("nonce", msg.Nonce),
	)
	return nil
}

// callerFor picks the delivery caller: the required destination caller
// when the message names one, the relayer identity otherwise.
func (r *Relayer) callerFor(destinationCaller ids.ID) ids.ID {
	if destinationCaller != (ids.ID{}) {
		return destinationCaller
	}
	return r.identity
}

// nextNonce derives a fresh opaque nonce from the message contents and a
// counter, so repeated sends of identical messages stay distinct.
func (r *Relayer) nextNonce(rawMessage []byte) ids.ID {
	r.mu.Lock()
	counter := r.nonceCounter
	r.nonceCounter++
	r.mu.Unlock()

	var salt [8]byte
	binary.BigEndian.PutUint64(salt[:], counter)
	return ids.ID(crypto.Keccak256Hash(rawMessage, salt[:]))
}

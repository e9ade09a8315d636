// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/transit"
	"github.com/luxfi/transit/payload"
	"github.com/luxfi/transit/roles"
)

// TokenMessengerConfig wires a v1 messenger to its transmitter and minter.
type TokenMessengerConfig struct {
	Log log.Logger
	// Identity is the messenger's own 32-byte identity: the recipient its
	// remote counterparts address, and the spender deposits are approved
	// for.
	Identity           ids.ID
	Transmitter        *transit.Transmitter
	Minter             *TokenMinter
	MessageBodyVersion uint32
	Owner              ids.ID
	Sink               transit.EventSink
	Registerer         prometheus.Registerer
}

// TokenMessenger is the v1 bridge endpoint on one domain: depositForBurn
// on the send side, mint-and-withdraw as the transmitter's registered
// handler on the receive side. It performs no de-duplication of its own;
// the transmitter's nonce ledger is the sole replay protection.
type TokenMessenger struct {
	log                log.Logger
	identity           ids.ID
	transmitter        *transit.Transmitter
	minter             *TokenMinter
	messageBodyVersion uint32
	ownable            *roles.Ownable2Step
	sink               transit.EventSink
	metrics            *messengerMetrics

	mu               sync.Mutex
	remoteMessengers map[uint32]ids.ID
}

// NewTokenMessenger creates the messenger, registers it as the handler at
// its own identity, and binds it to the minter.
func NewTokenMessenger(cfg TokenMessengerConfig) (*TokenMessenger, error) {
	if cfg.Identity == (ids.ID{}) {
		return nil, fmt.Errorf("%w: zero messenger identity", transit.ErrPolicy)
	}
	if cfg.Transmitter == nil || cfg.Minter == nil {
		return nil, fmt.Errorf("%w: messenger requires a transmitter and a minter", transit.ErrPolicy)
	}
	if cfg.Log == nil {
		cfg.Log = log.NewNoOpLogger()
	}
	if cfg.Sink == nil {
		cfg.Sink = transit.NopSink{}
	}
	m := &TokenMessenger{
		log:                cfg.Log,
		identity:           cfg.Identity,
		transmitter:        cfg.Transmitter,
		minter:             cfg.Minter,
		messageBodyVersion: cfg.MessageBodyVersion,
		ownable:            roles.NewOwnable(cfg.Owner),
		sink:               cfg.Sink,
		metrics:            newMessengerMetrics(cfg.Registerer),
		remoteMessengers:   make(map[uint32]ids.ID),
	}
	if err := cfg.Minter.BindLocalMessenger(cfg.Identity); err != nil {
		return nil, err
	}
	cfg.Transmitter.RegisterHandler(cfg.Identity, m)
	return m, nil
}

// Identity returns the messenger identity.
func (m *TokenMessenger) Identity() ids.ID {
	return m.identity
}

// Owner returns the ownership role.
func (m *TokenMessenger) Owner() *roles.Ownable2Step {
	return m.ownable
}

// AddRemoteTokenMessenger registers the counterpart messenger for a remote
// domain. One messenger per domain.
func (m *TokenMessenger) AddRemoteTokenMessenger(caller ids.ID, domain uint32, messenger ids.ID) error {
	if err := m.ownable.RequireOwner(caller); err != nil {
		return err
	}
	if messenger == (ids.ID{}) {
		return fmt.Errorf("%w: zero remote messenger", transit.ErrPolicy)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.remoteMessengers[domain]; exists {
		return fmt.Errorf("%w: remote messenger already registered for domain %d", transit.ErrPolicy, domain)
	}
	m.remoteMessengers[domain] = messenger
	return nil
}

// RemoveRemoteTokenMessenger unregisters the counterpart for a domain.
func (m *TokenMessenger) RemoveRemoteTokenMessenger(caller ids.ID, domain uint32) error {
	if err := m.ownable.RequireOwner(caller); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.remoteMessengers[domain]; !exists {
		return fmt.Errorf("%w: no remote messenger registered for domain %d", transit.ErrPolicy, domain)
	}
	delete(m.remoteMessengers, domain)
	return nil
}

// RemoteTokenMessenger returns the registered counterpart for a domain.
func (m *TokenMessenger) RemoteTokenMessenger(domain uint32) (ids.ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	messenger, ok := m.remoteMessengers[domain]
	return messenger, ok
}

// DepositForBurn burns amount of burnToken from the caller and emits a
// burn message for the destination domain. Any destination caller may
// execute the eventual receive. Returns the reserved nonce.
func (m *TokenMessenger) DepositForBurn(
	caller ids.ID,
	amount *uint256.Int,
	destinationDomain uint32,
	mintRecipient ids.ID,
	burnToken ids.ID,
) (uint64, error) {
	return m.DepositForBurnWithCaller(caller, amount, destinationDomain, mintRecipient, burnToken, ids.ID{})
}

// DepositForBurnWithCaller is DepositForBurn with delivery restricted to
// destinationCaller.
func (m *TokenMessenger) DepositForBurnWithCaller(
	caller ids.ID,
	amount *uint256.Int,
	destinationDomain uint32,
	mintRecipient ids.ID,
	burnToken ids.ID,
	destinationCaller ids.ID,
) (uint64, error) {
	if amount == nil || amount.IsZero() {
		return 0, fmt.Errorf("%w: zero burn amount", transit.ErrPolicy)
	}
	if mintRecipient == (ids.ID{}) {
		return 0, fmt.Errorf("%w: zero mint recipient", transit.ErrPolicy)
	}
	m.mu.Lock()
	destinationMessenger, ok := m.remoteMessengers[destinationDomain]
	m.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: no remote messenger registered for domain %d", transit.ErrPolicy, destinationDomain)
	}
	token, ok := m.minter.Token(burnToken)
	if !ok {
		return 0, fmt.Errorf("%w: burn token %s not registered", transit.ErrPolicy, burnToken)
	}

	if err := token.TransferFrom(m.identity, caller, m.minter.Identity(), amount); err != nil {
		return 0, err
	}
	if err := m.minter.Burn(m.identity, burnToken, amount); err != nil {
		// Undo the custody transfer; a failed deposit must not move funds.
		if terr := token.Transfer(m.minter.Identity(), caller, amount); terr != nil {
			m.log.Error("failed to return custody transfer", log.Err(terr))
		}
		return 0, err
	}

	burnMessage := &payload.BurnMessage{
		Version:       m.messageBodyVersion,
		BurnToken:     burnToken,
		MintRecipient: mintRecipient,
		Amount:        amount,
		MessageSender: caller,
	}
	nonce, err := m.transmitter.SendMessageWithCaller(
		m.identity, destinationDomain, destinationMessenger, destinationCaller, burnMessage.Bytes())
	if err != nil {
		// The burn must not be observable when the send is rejected.
		if merr := token.Mint(caller, amount); merr != nil {
			m.log.Error("failed to restore burned deposit", log.Err(merr))
		}
		return 0, err
	}

	m.sink.Emit(DepositForBurn{
		Nonce:                nonce,
		BurnToken:            burnToken,
		Amount:               amount,
		Depositor:            caller,
		MintRecipient:        mintRecipient,
		DestinationDomain:    destinationDomain,
		DestinationMessenger: destinationMessenger,
		DestinationCaller:    destinationCaller,
	})
	m.metrics.deposits.Inc()
	m.log.Debug("deposit for burn",
		log.Uint32("destinationDomain", destinationDomain),
		log.Uint64("nonce", nonce),
		log.Stringer("burnToken", burnToken),
	)
	return nonce, nil
}

// ReplaceDepositForBurn re-emits a previously attested deposit with a new
// mint recipient and destination caller, reusing the original nonce. Only
// the identity that made the original deposit may replace it.
func (m *TokenMessenger) ReplaceDepositForBurn(
	caller ids.ID,
	originalMessage []byte,
	originalAttestation []byte,
	newDestinationCaller ids.ID,
	newMintRecipient ids.ID,
) error {
	if newMintRecipient == (ids.ID{}) {
		return fmt.Errorf("%w: zero mint recipient", transit.ErrPolicy)
	}
	original, err := transit.ParseMessage(originalMessage)
	if err != nil {
		return err
	}
	burn, err := payload.ParseBurnMessage(original.Body)
	if err != nil {
		return err
	}
	if burn.MessageSender != caller {
		return fmt.Errorf("%w: caller %s did not make the original deposit", transit.ErrAuthorization, caller)
	}

	burn.MintRecipient = newMintRecipient
	return m.transmitter.ReplaceMessage(
		m.identity, originalMessage, originalAttestation, burn.Bytes(), newDestinationCaller)
}

// HandleReceiveMessage implements transit.MessageHandler. Invoked by the
// transmitter after attestation and nonce bookkeeping; the sender must be
// the registered messenger for the source domain.
func (m *TokenMessenger) HandleReceiveMessage(sourceDomain uint32, sender ids.ID, body []byte) error {
	m.mu.Lock()
	remote, ok := m.remoteMessengers[sourceDomain]
	m.mu.Unlock()
	if !ok || remote != sender {
		return fmt.Errorf("%w: sender %s is not the remote messenger for domain %d", transit.ErrAuthorization, sender, sourceDomain)
	}
	burn, err := payload.ParseBurnMessage(body)
	if err != nil {
		return err
	}
	if burn.Version != m.messageBodyVersion {
		return fmt.Errorf("%w: burn message version %d, expected %d", transit.ErrSequencing, burn.Version, m.messageBodyVersion)
	}

	mintToken, err := m.minter.Mint(m.identity, sourceDomain, burn.BurnToken, burn.MintRecipient, burn.Amount)
	if err != nil {
		return err
	}

	m.sink.Emit(MintAndWithdraw{
		MintRecipient: burn.MintRecipient,
		Amount:        burn.Amount,
		MintToken:     mintToken,
		FeeCollected:  new(uint256.Int),
	})
	m.metrics.mints.Inc()
	m.log.Debug("mint and withdraw",
		log.Uint32("sourceDomain", sourceDomain),
		log.Stringer("mintToken", mintToken),
		log.Stringer("mintRecipient", burn.MintRecipient),
	)
	return nil
}

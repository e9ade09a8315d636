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

// BlockHeightSource reports the local domain's block height, used to
// enforce burn-message expiration.
type BlockHeightSource interface {
	BlockHeight() uint64
}

// HookExecutor runs the opaque hook payload carried by a v2 burn message
// after its mint settles. Execution failure does not unwind the mint.
type HookExecutor interface {
	ExecuteHook(sourceDomain uint32, sender ids.ID, hookData []byte) error
}

// TokenMessengerV2Config wires a v2 messenger.
type TokenMessengerV2Config struct {
	Log                log.Logger
	Identity           ids.ID
	Transmitter        *transit.TransmitterV2
	Minter             *TokenMinter
	MessageBodyVersion uint32
	Owner              ids.ID
	// FeeRecipient receives settled fees on delivery.
	FeeRecipient ids.ID
	// Blocks, when set, enforces expirationBlock on delivery.
	Blocks BlockHeightSource
	// Hooks, when set, executes hook data after a successful mint.
	Hooks      HookExecutor
	Sink       transit.EventSink
	Registerer prometheus.Registerer
}

// TokenMessengerV2 is the v2 bridge endpoint: deposits carry a max fee and
// a requested finality threshold, and deliveries settle the executed fee,
// honor expiration, and may run a hook. It implements
// transit.MessageHandlerV2 with both finalized and unfinalized entry
// points backed by the same mint path.
type TokenMessengerV2 struct {
	log                log.Logger
	identity           ids.ID
	transmitter        *transit.TransmitterV2
	minter             *TokenMinter
	messageBodyVersion uint32
	ownable            *roles.Ownable2Step
	feeRecipient       ids.ID
	blocks             BlockHeightSource
	hooks              HookExecutor
	sink               transit.EventSink
	metrics            *messengerMetrics

	mu               sync.Mutex
	remoteMessengers map[uint32]ids.ID
}

// NewTokenMessengerV2 creates the messenger, registers it as the handler
// at its own identity, and binds it to the minter.
func NewTokenMessengerV2(cfg TokenMessengerV2Config) (*TokenMessengerV2, error) {
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
	m := &TokenMessengerV2{
		log:                cfg.Log,
		identity:           cfg.Identity,
		transmitter:        cfg.Transmitter,
		minter:             cfg.Minter,
		messageBodyVersion: cfg.MessageBodyVersion,
		ownable:            roles.NewOwnable(cfg.Owner),
		feeRecipient:       cfg.FeeRecipient,
		blocks:             cfg.Blocks,
		hooks:              cfg.Hooks,
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
func (m *TokenMessengerV2) Identity() ids.ID {
	return m.identity
}

// Owner returns the ownership role.
func (m *TokenMessengerV2) Owner() *roles.Ownable2Step {
	return m.ownable
}

// AddRemoteTokenMessenger registers the counterpart messenger for a remote
// domain.
func (m *TokenMessengerV2) AddRemoteTokenMessenger(caller ids.ID, domain uint32, messenger ids.ID) error {
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
func (m *TokenMessengerV2) RemoveRemoteTokenMessenger(caller ids.ID, domain uint32) error {
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

// DepositForBurn burns amount of burnToken from the caller and emits a v2
// burn message. maxFee bounds the fee the attestation layer may settle and
// must be strictly below amount; minFinalityThreshold requests how settled
// the message must be before attestation.
func (m *TokenMessengerV2) DepositForBurn(
	caller ids.ID,
	amount *uint256.Int,
	destinationDomain uint32,
	mintRecipient ids.ID,
	burnToken ids.ID,
	destinationCaller ids.ID,
	maxFee *uint256.Int,
	minFinalityThreshold uint32,
) error {
	return m.DepositForBurnWithHook(
		caller, amount, destinationDomain, mintRecipient, burnToken,
		destinationCaller, maxFee, minFinalityThreshold, nil)
}

// DepositForBurnWithHook is DepositForBurn carrying an opaque hook payload
// executed on the destination domain after the mint.
func (m *TokenMessengerV2) DepositForBurnWithHook(
	caller ids.ID,
	amount *uint256.Int,
	destinationDomain uint32,
	mintRecipient ids.ID,
	burnToken ids.ID,
	destinationCaller ids.ID,
	maxFee *uint256.Int,
	minFinalityThreshold uint32,
	hookData []byte,
) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: zero burn amount", transit.ErrPolicy)
	}
	if mintRecipient == (ids.ID{}) {
		return fmt.Errorf("%w: zero mint recipient", transit.ErrPolicy)
	}
	if maxFee == nil {
		maxFee = new(uint256.Int)
	}
	// maxFee < amount must hold before any funds move.
	if !maxFee.Lt(amount) {
		return fmt.Errorf("%w: max fee must be less than burn amount", transit.ErrPolicy)
	}
	m.mu.Lock()
	destinationMessenger, ok := m.remoteMessengers[destinationDomain]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no remote messenger registered for domain %d", transit.ErrPolicy, destinationDomain)
	}
	token, ok := m.minter.Token(burnToken)
	if !ok {
		return fmt.Errorf("%w: burn token %s not registered", transit.ErrPolicy, burnToken)
	}

	if err := token.TransferFrom(m.identity, caller, m.minter.Identity(), amount); err != nil {
		return err
	}
	if err := m.minter.Burn(m.identity, burnToken, amount); err != nil {
		if terr := token.Transfer(m.minter.Identity(), caller, amount); terr != nil {
			m.log.Error("failed to return custody transfer", log.Err(terr))
		}
		return err
	}

	burnMessage := &payload.BurnMessageV2{
		Version:         m.messageBodyVersion,
		BurnToken:       burnToken,
		MintRecipient:   mintRecipient,
		Amount:          amount,
		MessageSender:   caller,
		MaxFee:          maxFee,
		FeeExecuted:     new(uint256.Int),
		ExpirationBlock: new(uint256.Int),
		HookData:        hookData,
	}
	err := m.transmitter.SendMessage(
		m.identity, destinationDomain, destinationMessenger, destinationCaller,
		minFinalityThreshold, burnMessage.Bytes())
	if err != nil {
		if merr := token.Mint(caller, amount); merr != nil {
			m.log.Error("failed to restore burned deposit", log.Err(merr))
		}
		return err
	}

	m.sink.Emit(DepositForBurnV2{
		BurnToken:            burnToken,
		Amount:               amount,
		Depositor:            caller,
		MintRecipient:        mintRecipient,
		DestinationDomain:    destinationDomain,
		DestinationMessenger: destinationMessenger,
		DestinationCaller:    destinationCaller,
		MaxFee:               maxFee,
		MinFinalityThreshold: minFinalityThreshold,
		HookData:             hookData,
	})
	m.metrics.deposits.Inc()
	m.log.Debug("deposit for burn",
		log.Uint32("destinationDomain", destinationDomain),
		log.Stringer("burnToken", burnToken),
		log.Uint32("minFinalityThreshold", minFinalityThreshold),
	)
	return nil
}

// HandleReceiveFinalizedMessage implements transit.MessageHandlerV2.
func (m *TokenMessengerV2) HandleReceiveFinalizedMessage(sourceDomain uint32, sender ids.ID, finalityThresholdExecuted uint32, body []byte) error {
	return m.mintAndWithdraw(sourceDomain, sender, body)
}

// HandleReceiveUnfinalizedMessage implements transit.MessageHandlerV2. The
// mint path is shared with finalized delivery; the split exists so
// recipients with stricter trust policies can gate fast delivery, and so
// the fee and expiration checks run against the settled values either way.
func (m *TokenMessengerV2) HandleReceiveUnfinalizedMessage(sourceDomain uint32, sender ids.ID, finalityThresholdExecuted uint32, body []byte) error {
	return m.mintAndWithdraw(sourceDomain, sender, body)
}

func (m *TokenMessengerV2) mintAndWithdraw(sourceDomain uint32, sender ids.ID, body []byte) error {
	m.mu.Lock()
	remote, ok := m.remoteMessengers[sourceDomain]
	m.mu.Unlock()
	if !ok || remote != sender {
		return fmt.Errorf("%w: sender %s is not the remote messenger for domain %d", transit.ErrAuthorization, sender, sourceDomain)
	}
	burn, err := payload.ParseBurnMessageV2(body)
	if err != nil {
		return err
	}
	if burn.Version != m.messageBodyVersion {
		return fmt.Errorf("%w: burn message version %d, expected %d", transit.ErrSequencing, burn.Version, m.messageBodyVersion)
	}
	if burn.FeeExecuted.Gt(burn.MaxFee) {
		return fmt.Errorf("%w: executed fee exceeds max fee", transit.ErrPolicy)
	}
	if !burn.FeeExecuted.Lt(burn.Amount) {
		return fmt.Errorf("%w: executed fee not less than amount", transit.ErrPolicy)
	}
	if !burn.FeeExecuted.IsZero() && m.feeRecipient == (ids.ID{}) {
		return fmt.Errorf("%w: no fee recipient configured", transit.ErrPolicy)
	}
	if !burn.ExpirationBlock.IsZero() && m.blocks != nil {
		height := uint256.NewInt(m.blocks.BlockHeight())
		if !height.Lt(burn.ExpirationBlock) {
			return fmt.Errorf("%w: message expired at block %s", transit.ErrPolicy, burn.ExpirationBlock)
		}
	}

	mintAmount := new(uint256.Int).Sub(burn.Amount, burn.FeeExecuted)
	mintToken, err := m.minter.Mint(m.identity, sourceDomain, burn.BurnToken, burn.MintRecipient, mintAmount)
	if err != nil {
		return err
	}
	if !burn.FeeExecuted.IsZero() {
		if _, err := m.minter.Mint(m.identity, sourceDomain, burn.BurnToken, m.feeRecipient, burn.FeeExecuted); err != nil {
			// A failed fee mint must leave nothing behind: burn the
			// recipient mint back so the delivery can retry cleanly.
			if token, ok := m.minter.Token(mintToken); ok {
				if berr := token.Burn(burn.MintRecipient, mintAmount); berr != nil {
					m.log.Error("failed to unwind recipient mint", log.Err(berr))
				}
			}
			return err
		}
	}

	if len(burn.HookData) > 0 && m.hooks != nil {
		// The mint has settled; a failing hook is reported, not unwound.
		if err := m.hooks.ExecuteHook(sourceDomain, sender, burn.HookData); err != nil {
			m.log.Warn("hook execution failed",
				log.Uint32("sourceDomain", sourceDomain),
				log.Err(err),
			)
		}
	}

	m.sink.Emit(MintAndWithdraw{
		MintRecipient: burn.MintRecipient,
		Amount:        mintAmount,
		MintToken:     mintToken,
		FeeCollected:  burn.FeeExecuted,
	})
	m.metrics.mints.Inc()
	m.log.Debug("mint and withdraw",
		log.Uint32("sourceDomain", sourceDomain),
		log.Stringer("mintToken", mintToken),
		log.Stringer("mintRecipient", burn.MintRecipient),
	)
	return nil
}

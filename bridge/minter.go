// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/transit"
	"github.com/luxfi/transit/roles"
)

type remoteTokenKey struct {
	domain uint32
	token  ids.ID
}

// TokenMinter owns the token registry: the remote-to-local token links, the
// per-message burn limits, and the custody identity deposits are parked in
// before burning. Registry mutations are gated to the token controller;
// mint and burn are gated to the one local messenger bound at wiring time.
// A burn limit of zero (or none) marks the token unsupported.
type TokenMinter struct {
	log      log.Logger
	identity ids.ID
	pauser   *roles.Pauser

	mu              sync.Mutex
	tokenController ids.ID
	localMessenger  ids.ID
	tokens          map[ids.ID]*Token
	burnLimits      map[ids.ID]*uint256.Int
	remoteToLocal   map[remoteTokenKey]ids.ID
}

// NewTokenMinter creates a minter. identity is the custody account;
// pauser, when set, gates mint and burn.
func NewTokenMinter(logger log.Logger, identity, tokenController ids.ID, pauser *roles.Pauser) (*TokenMinter, error) {
	if identity == (ids.ID{}) {
		return nil, fmt.Errorf("%w: zero minter identity", transit.ErrPolicy)
	}
	if tokenController == (ids.ID{}) {
		return nil, fmt.Errorf("%w: zero token controller", transit.ErrPolicy)
	}
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	return &TokenMinter{
		log:             logger,
		identity:        identity,
		pauser:          pauser,
		tokenController: tokenController,
		tokens:          make(map[ids.ID]*Token),
		burnLimits:      make(map[ids.ID]*uint256.Int),
		remoteToLocal:   make(map[remoteTokenKey]ids.ID),
	}, nil
}

// Identity returns the custody identity.
func (m *TokenMinter) Identity() ids.ID {
	return m.identity
}

// TokenController returns the current controller identity.
func (m *TokenMinter) TokenController() ids.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokenController
}

// SetTokenController rotates the controller identity.
func (m *TokenMinter) SetTokenController(caller, newController ids.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireController(caller); err != nil {
		return err
	}
	if newController == (ids.ID{}) {
		return fmt.Errorf("%w: zero token controller", transit.ErrPolicy)
	}
	m.tokenController = newController
	return nil
}

// AddLocalToken registers a local token ledger under its identity.
func (m *TokenMinter) AddLocalToken(caller, localToken ids.ID, token *Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireController(caller); err != nil {
		return err
	}
	if localToken == (ids.ID{}) || token == nil {
		return fmt.Errorf("%w: invalid local token", transit.ErrPolicy)
	}
	if _, exists := m.tokens[localToken]; exists {
		return fmt.Errorf("%w: local token %s already registered", transit.ErrPolicy, localToken)
	}
	m.tokens[localToken] = token
	return nil
}

// Token returns the ledger registered for a local token identity.
func (m *TokenMinter) Token(localToken ids.ID) (*Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[localToken]
	return token, ok
}

// LinkTokenPair maps (remoteDomain, remoteToken) to a local token. At most
// one local token per remote pair.
func (m *TokenMinter) LinkTokenPair(caller, localToken ids.ID, remoteDomain uint32, remoteToken ids.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireController(caller); err != nil {
		return err
	}
	key := remoteTokenKey{domain: remoteDomain, token: remoteToken}
	if linked, exists := m.remoteToLocal[key]; exists {
		return fmt.Errorf("%w: remote token already linked to %s", transit.ErrPolicy, linked)
	}
	if _, exists := m.tokens[localToken]; !exists {
		return fmt.Errorf("%w: local token %s not registered", transit.ErrPolicy, localToken)
	}
	m.remoteToLocal[key] = localToken
	return nil
}

// UnlinkTokenPair removes a remote-to-local link.
func (m *TokenMinter) UnlinkTokenPair(caller, localToken ids.ID, remoteDomain uint32, remoteToken ids.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireController(caller); err != nil {
		return err
	}
	key := remoteTokenKey{domain: remoteDomain, token: remoteToken}
	linked, exists := m.remoteToLocal[key]
	if !exists || linked != localToken {
		return fmt.Errorf("%w: remote token not linked to %s", transit.ErrPolicy, localToken)
	}
	delete(m.remoteToLocal, key)
	return nil
}

// GetLocalToken resolves the local token for a remote pair.
func (m *TokenMinter) GetLocalToken(remoteDomain uint32, remoteToken ids.ID) (ids.ID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	localToken, ok := m.remoteToLocal[remoteTokenKey{domain: remoteDomain, token: remoteToken}]
	return localToken, ok
}

// SetMaxBurnAmountPerMessage sets the per-message burn ceiling for a local
// token. Zero disables burning for the token.
func (m *TokenMinter) SetMaxBurnAmountPerMessage(caller, localToken ids.ID, limit *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireController(caller); err != nil {
		return err
	}
	m.burnLimits[localToken] = new(uint256.Int).Set(limit)
	return nil
}

// BurnLimit returns a copy of the configured limit, zero if none.
func (m *TokenMinter) BurnLimit(localToken ids.ID) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit, ok := m.burnLimits[localToken]; ok {
		return new(uint256.Int).Set(limit)
	}
	return new(uint256.Int)
}

// BindLocalMessenger wires the one messenger allowed to mint and burn.
// Called once when the messenger is constructed.
func (m *TokenMinter) BindLocalMessenger(messenger ids.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.localMessenger != (ids.ID{}) {
		return fmt.Errorf("%w: local messenger already bound", transit.ErrPolicy)
	}
	if messenger == (ids.ID{}) {
		return fmt.Errorf("%w: zero messenger identity", transit.ErrPolicy)
	}
	m.localMessenger = messenger
	return nil
}

// Mint resolves the local token for (sourceDomain, burnToken) and credits
// amount to the recipient. Returns the minted local token identity.
func (m *TokenMinter) Mint(caller ids.ID, sourceDomain uint32, burnToken, to ids.ID, amount *uint256.Int) (ids.ID, error) {
	if m.pauser != nil {
		if err := m.pauser.RequireNotPaused(); err != nil {
			return ids.ID{}, err
		}
	}
	m.mu.Lock()
	if caller != m.localMessenger {
		m.mu.Unlock()
		return ids.ID{}, fmt.Errorf("%w: caller %s is not the local messenger", transit.ErrAuthorization, caller)
	}
	localToken, ok := m.remoteToLocal[remoteTokenKey{domain: sourceDomain, token: burnToken}]
	if !ok {
		m.mu.Unlock()
		return ids.ID{}, fmt.Errorf("%w: no local token for remote token %s on domain %d", transit.ErrPolicy, burnToken, sourceDomain)
	}
	token := m.tokens[localToken]
	m.mu.Unlock()

	if err := token.Mint(to, amount); err != nil {
		return ids.ID{}, err
	}
	return localToken, nil
}

// Burn destroys amount of localToken held in custody, enforcing the
// per-message limit. An unset or zero limit rejects as unsupported.
func (m *TokenMinter) Burn(caller, localToken ids.ID, amount *uint256.Int) error {
	if m.pauser != nil {
		if err := m.pauser.RequireNotPaused(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	if caller != m.localMessenger {
		m.mu.Unlock()
		return fmt.Errorf("%w: caller %s is not the local messenger", transit.ErrAuthorization, caller)
	}
	limit, ok := m.burnLimits[localToken]
	if !ok || limit.IsZero() {
		m.mu.Unlock()
		return fmt.Errorf("%w: burn token %s unsupported", transit.ErrPolicy, localToken)
	}
	if amount.Gt(limit) {
		m.mu.Unlock()
		return fmt.Errorf("%w: burn amount exceeds per-message limit", transit.ErrPolicy)
	}
	token, exists := m.tokens[localToken]
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: local token %s not registered", transit.ErrPolicy, localToken)
	}
	return token.Burn(m.identity, amount)
}

// requireController checks the caller; callers hold the lock.
func (m *TokenMinter) requireController(caller ids.ID) error {
	if caller != m.tokenController {
		return fmt.Errorf("%w: caller %s is not the token controller", transit.ErrAuthorization, caller)
	}
	return nil
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package bridge provides burn-and-mint token bridging over the message
// transit layer: a messenger that burns deposits and formats burn
// messages, and a minter owning the token registry and custody.
package bridge

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/luxfi/transit"
)

// Token is an in-memory mintable/burnable token ledger. Identities are the
// protocol's 32-byte values. All mutations are serialized.
type Token struct {
	mu          sync.Mutex
	name        string
	symbol      string
	decimals    uint8
	totalSupply *uint256.Int
	balances    map[ids.ID]*uint256.Int
	allowances  map[ids.ID]map[ids.ID]*uint256.Int
}

// NewToken creates an empty ledger.
func NewToken(name, symbol string, decimals uint8) *Token {
	return &Token{
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: new(uint256.Int),
		balances:    make(map[ids.ID]*uint256.Int),
		allowances:  make(map[ids.ID]map[ids.ID]*uint256.Int),
	}
}

// Name returns the token name.
func (t *Token) Name() string { return t.name }

// Symbol returns the token symbol.
func (t *Token) Symbol() string { return t.symbol }

// Decimals returns the token decimals.
func (t *Token) Decimals() uint8 { return t.decimals }

// TotalSupply returns a copy of the current supply.
func (t *Token) TotalSupply() *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(uint256.Int).Set(t.totalSupply)
}

// BalanceOf returns a copy of the account balance.
func (t *Token) BalanceOf(account ids.ID) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if balance, ok := t.balances[account]; ok {
		return new(uint256.Int).Set(balance)
	}
	return new(uint256.Int)
}

// Mint credits amount to the account.
func (t *Token) Mint(to ids.ID, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(t.totalSupply, amount)
	if overflow {
		return fmt.Errorf("%w: total supply overflow", transit.ErrPolicy)
	}
	balance, overflow := new(uint256.Int).AddOverflow(t.balance(to), amount)
	if overflow {
		return fmt.Errorf("%w: balance overflow", transit.ErrPolicy)
	}
	t.totalSupply = supply
	t.balances[to] = balance
	return nil
}

// Burn debits amount from the account.
func (t *Token) Burn(from ids.ID, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	balance := t.balance(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: burn amount exceeds balance", transit.ErrPolicy)
	}
	t.balances[from] = new(uint256.Int).Sub(balance, amount)
	t.totalSupply = new(uint256.Int).Sub(t.totalSupply, amount)
	return nil
}

// Transfer moves amount between accounts.
func (t *Token) Transfer(from, to ids.ID, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transfer(from, to, amount)
}

// Approve sets the spender allowance for the owner account.
func (t *Token) Approve(owner, spender ids.ID, amount *uint256.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[ids.ID]*uint256.Int)
	}
	t.allowances[owner][spender] = new(uint256.Int).Set(amount)
}

// Allowance returns a copy of the spender allowance for the owner account.
func (t *Token) Allowance(owner, spender ids.ID) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if allowance, ok := t.allowances[owner][spender]; ok {
		return new(uint256.Int).Set(allowance)
	}
	return new(uint256.Int)
}

// TransferFrom moves amount from the owner account on behalf of spender,
// consuming allowance.
func (t *Token) TransferFrom(spender, from, to ids.ID, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowance, ok := t.allowances[from][spender]
	if !ok || allowance.Lt(amount) {
		return fmt.Errorf("%w: transfer amount exceeds allowance", transit.ErrPolicy)
	}
	if err := t.transfer(from, to, amount); err != nil {
		return err
	}
	t.allowances[from][spender] = new(uint256.Int).Sub(allowance, amount)
	return nil
}

func (t *Token) transfer(from, to ids.ID, amount *uint256.Int) error {
	balance := t.balance(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%w: transfer amount exceeds balance", transit.ErrPolicy)
	}
	toBalance, overflow := new(uint256.Int).AddOverflow(t.balance(to), amount)
	if overflow {
		return fmt.Errorf("%w: balance overflow", transit.ErrPolicy)
	}
	t.balances[from] = new(uint256.Int).Sub(balance, amount)
	t.balances[to] = toBalance
	return nil
}

// balance returns the live balance entry; callers hold the lock.
func (t *Token) balance(account ids.ID) *uint256.Int {
	if balance, ok := t.balances[account]; ok {
		return balance
	}
	return new(uint256.Int)
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

// DepositForBurn records a completed deposit: the burn happened locally
// and the burn message was emitted for the destination domain.
type DepositForBurn struct {
	Nonce                uint64
	BurnToken            ids.ID
	Amount               *uint256.Int
	Depositor            ids.ID
	MintRecipient        ids.ID
	DestinationDomain    uint32
	DestinationMessenger ids.ID
	DestinationCaller    ids.ID
}

// DepositForBurnV2 records a v2 deposit. The nonce is assigned off-chain,
// so none is reported here.
type DepositForBurnV2 struct {
	BurnToken            ids.ID
	Amount               *uint256.Int
	Depositor            ids.ID
	MintRecipient        ids.ID
	DestinationDomain    uint32
	DestinationMessenger ids.ID
	DestinationCaller    ids.ID
	MaxFee               *uint256.Int
	MinFinalityThreshold uint32
	HookData             []byte
}

// MintAndWithdraw records a completed mint on the destination domain.
// FeeCollected is zero for v1 deliveries.
type MintAndWithdraw struct {
	MintRecipient ids.ID
	Amount        *uint256.Int
	MintToken     ids.ID
	FeeCollected  *uint256.Int
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"crypto/rand"
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/transit"
)

// generateTestID creates a random ID for testing
func generateTestID() ids.ID {
	var id ids.ID
	rand.Read(id[:])
	return id
}

func TestTokenMintBurn(t *testing.T) {
	require := require.New(t)

	token := NewToken("USD Coin", "USDC", 6)
	require.Equal("USD Coin", token.Name())
	require.Equal("USDC", token.Symbol())
	require.Equal(uint8(6), token.Decimals())

	account := generateTestID()
	require.NoError(token.Mint(account, uint256.NewInt(100)))
	require.Equal(uint256.NewInt(100), token.BalanceOf(account))
	require.Equal(uint256.NewInt(100), token.TotalSupply())

	require.NoError(token.Burn(account, uint256.NewInt(40)))
	require.Equal(uint256.NewInt(60), token.BalanceOf(account))
	require.Equal(uint256.NewInt(60), token.TotalSupply())

	err := token.Burn(account, uint256.NewInt(61))
	require.ErrorIs(err, transit.ErrPolicy)
	require.Equal(uint256.NewInt(60), token.BalanceOf(account))
}

func TestTokenTransfer(t *testing.T) {
	require := require.New(t)

	token := NewToken("USD Coin", "USDC", 6)
	from := generateTestID()
	to := generateTestID()

	require.NoError(token.Mint(from, uint256.NewInt(100)))
	require.NoError(token.Transfer(from, to, uint256.NewInt(30)))
	require.Equal(uint256.NewInt(70), token.BalanceOf(from))
	require.Equal(uint256.NewInt(30), token.BalanceOf(to))

	err := token.Transfer(from, to, uint256.NewInt(71))
	require.ErrorIs(err, transit.ErrPolicy)
}

func TestTokenTransferFrom(t *testing.T) {
	require := require.New(t)

	token := NewToken("USD Coin", "USDC", 6)
	owner := generateTestID()
	spender := generateTestID()
	to := generateTestID()

	require.NoError(token.Mint(owner, uint256.NewInt(100)))

	// No allowance.
	err := token.TransferFrom(spender, owner, to, uint256.NewInt(10))
	require.ErrorIs(err, transit.ErrPolicy)

	token.Approve(owner, spender, uint256.NewInt(50))
	require.Equal(uint256.NewInt(50), token.Allowance(owner, spender))

	require.NoError(token.TransferFrom(spender, owner, to, uint256.NewInt(30)))
	require.Equal(uint256.NewInt(20), token.Allowance(owner, spender))
	require.Equal(uint256.NewInt(30), token.BalanceOf(to))

	// Allowance exhausted.
	err = token.TransferFrom(spender, owner, to, uint256.NewInt(21))
	require.ErrorIs(err, transit.ErrPolicy)
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/transit"
)

func testKeyHexes(t *testing.T, n int) []string {
	t.Helper()
	hexes := make([]string, n)
	for i := range hexes {
		key, err := transit.NewAttesterKey()
		require.NoError(t, err)
		hexes[i] = key.Hex()
	}
	return hexes
}

func TestConfigValidate(t *testing.T) {
	require := require.New(t)

	feeRecipient := ids.ID{0x01}
	cfg := Config{
		LogLevel:           defaultLogLevel,
		SignatureThreshold: 2,
		AttesterKeys:       testKeyHexes(t, 3),
		FeeRecipient:       feeRecipient.String(),
	}
	require.NoError(cfg.Validate())
	require.Len(cfg.ParsedAttesterKeys(), 3)
	require.Equal(feeRecipient, cfg.ParsedFeeRecipient())
}

func TestConfigValidateRejections(t *testing.T) {
	keys := testKeyHexes(t, 2)

	tests := []struct {
		name string
		cfg  Config
	}{
		{
			name: "no attester keys",
			cfg:  Config{SignatureThreshold: 1},
		},
		{
			name: "zero threshold",
			cfg:  Config{AttesterKeys: keys},
		},
		{
			name: "threshold above key count",
			cfg:  Config{SignatureThreshold: 3, AttesterKeys: keys},
		},
		{
			name: "malformed key",
			cfg:  Config{SignatureThreshold: 1, AttesterKeys: []string{"not-hex"}},
		},
		{
			name: "malformed fee recipient",
			cfg: Config{
				SignatureThreshold: 1,
				AttesterKeys:       keys,
				FeeRecipient:       "!!!",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.cfg.Validate())
		})
	}
}

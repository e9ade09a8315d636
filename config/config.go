// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/transit"
)

const (
	defaultLogLevel       = "info"
	defaultMetricsPort    = 9090
	defaultMessageVersion = 0
)

// Config holds the attestation-service configuration: the local domain it
// serves, the attester key set it signs with, and the threshold remote
// transmitters verify against.
type Config struct {
	LogLevel           string   `mapstructure:"log-level" json:"log-level"`
	MetricsPort        uint16   `mapstructure:"metrics-port" json:"metrics-port"`
	LocalDomain        uint32   `mapstructure:"local-domain" json:"local-domain"`
	MessageVersion     uint32   `mapstructure:"message-version" json:"message-version"`
	MaxMessageBodySize uint32   `mapstructure:"max-message-body-size" json:"max-message-body-size"`
	SignatureThreshold int      `mapstructure:"signature-threshold" json:"signature-threshold"`
	AttesterKeys       []string `mapstructure:"attester-keys" json:"attester-keys"`
	FeeRecipient       string   `mapstructure:"fee-recipient" json:"fee-recipient"`

	// convenience fields populated by Validate
	attesterKeys []*transit.AttesterKey
	feeRecipient ids.ID
}

// Validate parses the key material and checks the threshold invariants.
func (c *Config) Validate() error {
	if len(c.AttesterKeys) == 0 {
		return fmt.Errorf("no attester keys configured")
	}
	if c.SignatureThreshold < 1 || c.SignatureThreshold > len(c.AttesterKeys) {
		return fmt.Errorf(
			"signature threshold %d out of range for %d attester keys",
			c.SignatureThreshold,
			len(c.AttesterKeys),
		)
	}
	c.attesterKeys = make([]*transit.AttesterKey, 0, len(c.AttesterKeys))
	for i, hexKey := range c.AttesterKeys {
		key, err := transit.AttesterKeyFromHex(hexKey)
		if err != nil {
			return fmt.Errorf("failed to parse attester key %d: %w", i, err)
		}
		c.attesterKeys = append(c.attesterKeys, key)
	}
	if c.FeeRecipient != "" {
		id, err := ids.FromString(c.FeeRecipient)
		if err != nil {
			return fmt.Errorf("failed to parse fee recipient: %w", err)
		}
		c.feeRecipient = id
	}
	return nil
}

// ParsedAttesterKeys returns the attester keys parsed by Validate.
func (c *Config) ParsedAttesterKeys() []*transit.AttesterKey {
	return c.attesterKeys
}

// ParsedFeeRecipient returns the fee recipient parsed by Validate, the
// zero identity if none was configured.
func (c *Config) ParsedFeeRecipient() ids.ID {
	return c.feeRecipient
}

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/luxfi/transit"
	"github.com/luxfi/transit/config"
	"github.com/luxfi/transit/payload"
	"github.com/luxfi/transit/relayer"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "transit",
	Short: "Cross-domain message transit CLI",
	Long: `Tools for the cross-domain message-transit protocol: generate attester
keys, attest and verify messages, and decode message and burn-message
envelopes.`,
	Version: fmt.Sprintf("%s (built %s)", version, buildDate),
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(attestCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(decodeBurnCmd)
	rootCmd.AddCommand(relayCmd)
}

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an attester key",
	Long:  `Generate a fresh secp256k1 attester key and print its address.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := transit.NewAttesterKey()
		if err != nil {
			return err
		}
		fmt.Printf("Private key: %s\n", key.Hex())
		fmt.Printf("Address:     %s\n", key.Address())
		return nil
	},
}

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Attest a message",
	Long:  `Sign a hex-encoded message with one or more attester keys. Signatures are concatenated in ascending signer-address order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		messageHex, _ := cmd.Flags().GetString("message")
		keyHexes, _ := cmd.Flags().GetStringSlice("key")

		message, err := decodeHex(messageHex)
		if err != nil {
			return fmt.Errorf("invalid message hex: %w", err)
		}
		keys := make([]*transit.AttesterKey, 0, len(keyHexes))
		for _, keyHex := range keyHexes {
			key, err := transit.AttesterKeyFromHex(keyHex)
			if err != nil {
				return fmt.Errorf("invalid attester key: %w", err)
			}
			keys = append(keys, key)
		}

		attestation, err := transit.Attest(message, keys...)
		if err != nil {
			return err
		}
		fmt.Printf("%x\n", attestation)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify an attestation",
	Long:  `Verify a concatenated attestation against an attester set and signature threshold.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		messageHex, _ := cmd.Flags().GetString("message")
		attestationHex, _ := cmd.Flags().GetString("attestation")
		attesterHexes, _ := cmd.Flags().GetStringSlice("attester")
		threshold, _ := cmd.Flags().GetInt("threshold")

		message, err := decodeHex(messageHex)
		if err != nil {
			return fmt.Errorf("invalid message hex: %w", err)
		}
		attestation, err := decodeHex(attestationHex)
		if err != nil {
			return fmt.Errorf("invalid attestation hex: %w", err)
		}
		attesters := make([]common.Address, 0, len(attesterHexes))
		for _, attesterHex := range attesterHexes {
			if !common.IsHexAddress(attesterHex) {
				return fmt.Errorf("invalid attester address %q", attesterHex)
			}
			attesters = append(attesters, common.HexToAddress(attesterHex))
		}

		manager, err := transit.NewAttesterManager(common.Address{1}, attesters, threshold)
		if err != nil {
			return err
		}
		if err := manager.VerifyAttestation(message, attestation); err != nil {
			return err
		}
		fmt.Println("attestation valid")
		return nil
	},
}

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode a message envelope",
	Long:  `Decode a hex-encoded message envelope and print its fields.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataHex, _ := cmd.Flags().GetString("data")
		v2, _ := cmd.Flags().GetBool("v2")

		data, err := decodeHex(dataHex)
		if err != nil {
			return fmt.Errorf("invalid hex data: %w", err)
		}

		if v2 {
			msg, err := transit.ParseMessageV2(data)
			if err != nil {
				return err
			}
			fmt.Printf("Version:                   %d\n", msg.Version)
			fmt.Printf("Source domain:             %d\n", msg.SourceDomain)
			fmt.Printf("Destination domain:        %d\n", msg.DestinationDomain)
			fmt.Printf("Nonce:                     %x\n", msg.Nonce)
			fmt.Printf("Sender:                    %x\n", msg.Sender)
			fmt.Printf("Recipient:                 %x\n", msg.Recipient)
			fmt.Printf("Destination caller:        %x\n", msg.DestinationCaller)
			fmt.Printf("Min finality threshold:    %d\n", msg.MinFinalityThreshold)
			fmt.Printf("Finality executed:         %d\n", msg.FinalityThresholdExecuted)
			fmt.Printf("Body:                      %x\n", msg.Body)
			return nil
		}

		msg, err := transit.ParseMessage(data)
		if err != nil {
			return err
		}
		fmt.Printf("Version:            %d\n", msg.Version)
		fmt.Printf("Source domain:      %d\n", msg.SourceDomain)
		fmt.Printf("Destination domain: %d\n", msg.DestinationDomain)
		fmt.Printf("Nonce:              %d\n", msg.Nonce)
		fmt.Printf("Sender:             %x\n", msg.Sender)
		fmt.Printf("Recipient:          %x\n", msg.Recipient)
		fmt.Printf("Destination caller: %x\n", msg.DestinationCaller)
		fmt.Printf("Body:               %x\n", msg.Body)
		return nil
	},
}

var decodeBurnCmd = &cobra.Command{
	Use:   "decode-burn",
	Short: "Decode a burn-message body",
	Long:  `Decode a hex-encoded burn-message body and print its fields.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataHex, _ := cmd.Flags().GetString("data")
		v2, _ := cmd.Flags().GetBool("v2")

		data, err := decodeHex(dataHex)
		if err != nil {
			return fmt.Errorf("invalid hex data: %w", err)
		}

		if v2 {
			burn, err := payload.ParseBurnMessageV2(data)
			if err != nil {
				return err
			}
			fmt.Printf("Version:          %d\n", burn.Version)
			fmt.Printf("Burn token:       %x\n", burn.BurnToken)
			fmt.Printf("Mint recipient:   %x\n", burn.MintRecipient)
			fmt.Printf("Amount:           %s\n", burn.Amount)
			fmt.Printf("Message sender:   %x\n", burn.MessageSender)
			fmt.Printf("Max fee:          %s\n", burn.MaxFee)
			fmt.Printf("Fee executed:     %s\n", burn.FeeExecuted)
			fmt.Printf("Expiration block: %s\n", burn.ExpirationBlock)
			fmt.Printf("Hook data:        %x\n", burn.HookData)
			return nil
		}

		burn, err := payload.ParseBurnMessage(data)
		if err != nil {
			return err
		}
		fmt.Printf("Version:        %d\n", burn.Version)
		fmt.Printf("Burn token:     %x\n", burn.BurnToken)
		fmt.Printf("Mint recipient: %x\n", burn.MintRecipient)
		fmt.Printf("Amount:         %s\n", burn.Amount)
		fmt.Printf("Message sender: %x\n", burn.MessageSender)
		return nil
	},
}

// sinkBufferSize bounds how many sent messages can queue for the relayer.
const sinkBufferSize = 1024

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the attestation relayer",
	Long: `Run the attestation relayer for the configured local domain: drain sent
messages, finalize and attest them with the configured key set, and
deliver them back to the local transmitters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := config.BuildViper(cmd.Flags())
		if err != nil {
			return fmt.Errorf("couldn't configure flags: %w", err)
		}
		cfg, err := config.NewConfig(v)
		if err != nil {
			return fmt.Errorf("couldn't build config: %w", err)
		}
		return runRelayer(cfg)
	},
}

func runRelayer(cfg config.Config) error {
	logLevel, err := log.ToLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := log.NewLogger(
		"transit-relayer",
		*log.NewWrappedCore(logLevel, os.Stdout, log.JSON.ConsoleEncoder()),
	)

	keys := cfg.ParsedAttesterKeys()
	attesters := make([]common.Address, 0, len(keys))
	for _, key := range keys {
		attesters = append(attesters, key.Address())
	}
	manager, err := transit.NewAttesterManager(attesters[0], attesters, cfg.SignatureThreshold)
	if err != nil {
		return err
	}

	sink := relayer.NewChannelSink(sinkBufferSize)
	transmitter, err := transit.NewTransmitter(transit.TransmitterConfig{
		Log:                logger,
		LocalDomain:        cfg.LocalDomain,
		Version:            cfg.MessageVersion,
		MaxMessageBodySize: int(cfg.MaxMessageBodySize),
		Attesters:          manager,
		Sink:               sink,
		Registerer:         prometheus.WrapRegistererWithPrefix("transit_", prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}
	transmitterV2, err := transit.NewTransmitterV2(transit.TransmitterV2Config{
		Log:                logger,
		LocalDomain:        cfg.LocalDomain,
		Version:            cfg.MessageVersion + 1,
		MaxMessageBodySize: int(cfg.MaxMessageBodySize),
		Attesters:          manager,
		Sink:               sink,
		Registerer:         prometheus.WrapRegistererWithPrefix("transit_v2_", prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	// The relayer delivers under the configured fee recipient identity when
	// one is set, the first attester's identity otherwise.
	identity := cfg.ParsedFeeRecipient()
	if identity == (ids.ID{}) {
		identity = transit.AddressToIdentity(attesters[0])
	}
	rel, err := relayer.New(relayer.Config{
		Log:              logger,
		Identity:         identity,
		Keys:             keys,
		MessageVersion:   cfg.MessageVersion,
		MessageVersionV2: cfg.MessageVersion + 1,
		Registerer:       prometheus.WrapRegistererWithPrefix("transit_relayer_", prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}
	rel.RegisterDestination(cfg.LocalDomain, transmitter)
	rel.RegisterDestinationV2(cfg.LocalDomain, transmitterV2)

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.MetricsPort), nil); err != nil {
			logger.Error("metrics server exited", log.Err(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("relayer running",
		log.Uint32("localDomain", cfg.LocalDomain),
		log.Int("attesters", len(keys)),
	)
	if err := rel.Run(ctx, sink); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func init() {
	attestCmd.Flags().StringP("message", "m", "", "Message to sign (hex)")
	attestCmd.Flags().StringSliceP("key", "k", nil, "Attester private key (hex, repeatable)")
	attestCmd.MarkFlagRequired("message")
	attestCmd.MarkFlagRequired("key")

	verifyCmd.Flags().StringP("message", "m", "", "Message (hex)")
	verifyCmd.Flags().StringP("attestation", "a", "", "Attestation (hex)")
	verifyCmd.Flags().StringSlice("attester", nil, "Enabled attester address (repeatable)")
	verifyCmd.Flags().IntP("threshold", "t", 1, "Signature threshold")
	verifyCmd.MarkFlagRequired("message")
	verifyCmd.MarkFlagRequired("attestation")
	verifyCmd.MarkFlagRequired("attester")

	decodeCmd.Flags().StringP("data", "d", "", "Message envelope (hex)")
	decodeCmd.Flags().Bool("v2", false, "Decode as a v2 envelope")
	decodeCmd.MarkFlagRequired("data")

	decodeBurnCmd.Flags().StringP("data", "d", "", "Burn-message body (hex)")
	decodeBurnCmd.Flags().Bool("v2", false, "Decode as a v2 burn message")
	decodeBurnCmd.MarkFlagRequired("data")

	relayCmd.Flags().String(config.ConfigFileKey, "", "Path to the JSON configuration file")
	relayCmd.MarkFlagRequired(config.ConfigFileKey)
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custodyctl/cli"
	"github.com/bureau-foundation/custody/lib/commitment"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/secret"
	"github.com/bureau-foundation/custody/lib/workflow"
)

func (a *app) secretCommand() *cli.Command {
	return &cli.Command{
		Name:    "secret",
		Summary: "Administer shipment secrets through custodyd",
		Description: `Generate, store, reveal, verify and destroy shipment secrets.

Every subcommand talks to the running daemon over its unix socket;
the master key never leaves custodyd. Secrets are read from a file or
from stdin (-), never from the command line, and are read without echo
when stdin is a terminal.`,
		Subcommands: []*cli.Command{
			a.secretGenerateCommand(),
			a.secretStoreCommand(),
			a.secretRevealCommand(),
			a.secretVerifyCommand(),
			a.secretDestroyCommand(),
			a.secretPurgeCommand(),
		},
	}
}

// secretResult mirrors the daemon's per-token secret response.
type secretResult struct {
	TokenID    custody.TokenID `cbor:"token_id" json:"tokenId"`
	Secret     string          `cbor:"secret,omitempty" json:"secret,omitempty"`
	Commitment string          `cbor:"commitment" json:"commitment"`
}

type generatedResult struct {
	Secret     string `cbor:"secret" json:"secret"`
	Commitment string `cbor:"commitment" json:"commitment"`
}

type verifyResult struct {
	TokenID  custody.TokenID `cbor:"token_id" json:"tokenId"`
	Matched  bool            `cbor:"matched" json:"matched"`
	Mismatch string          `cbor:"mismatch,omitempty" json:"mismatch,omitempty"`
	Status   string          `cbor:"status" json:"status"`
	TxHash   string          `cbor:"tx_hash,omitempty" json:"txHash,omitempty"`
}

type secretParams struct {
	connectionParams
	cli.JSONOutput
}

func parseTokenArg(args []string) (custody.TokenID, error) {
	if err := requireArgs(args, "token-id"); err != nil {
		return custody.TokenID{}, err
	}
	tokenID, err := custody.ParseTokenID(args[0])
	if err != nil {
		return custody.TokenID{}, cli.Validation("invalid token id %q: %v", args[0], err)
	}
	return tokenID, nil
}

// readSecretText reads a secret and returns it as label text. The
// value is checked locally so a typo fails before reaching the daemon.
func readSecretText(path string) (string, error) {
	raw, err := secret.ReadFromPath(path)
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	defer raw.Close()
	parsed, err := commitment.ParseSecret(raw.String())
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, custody.ErrPrecondition)
	}
	defer parsed.Close()
	return commitment.FormatSecret(parsed), nil
}

func (a *app) secretGenerateCommand() *cli.Command {
	var params secretParams
	return &cli.Command{
		Name:    "generate",
		Summary: "Generate a secret and its commitment without storing it",
		Description: `Generate a fresh random secret and print it with its commitment.
Nothing is stored: use "secret store" once the shipment has a token id.`,
		Usage: "custodyctl secret generate [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("generate", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			client, err := params.socketClient()
			if err != nil {
				return err
			}
			var result generatedResult
			if err := client.Call(ctx, "generate-secret", nil, &result); err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result); done {
				return err
			}
			fmt.Fprintf(a.stdout, "secret:     %s\ncommitment: %s\n", result.Secret, result.Commitment)
			return nil
		},
	}
}

type secretInputParams struct {
	secretParams
	SecretFile string `flag:"secret-file" desc:"file holding the hex secret, or - for stdin" default:"-"`
}

func (a *app) secretStoreCommand() *cli.Command {
	var params secretInputParams
	return &cli.Command{
		Name:    "store",
		Summary: "Encrypt and store the secret for a token",
		Description: `Store the secret for a token. A token holds at most one secret;
storing a second fails with a conflict.`,
		Usage: "custodyctl secret store <token-id> [--secret-file path|-]",
		Examples: []cli.Example{
			{
				Description: "Store a secret piped from another tool",
				Command:     "printf 0x9f2c... | custodyctl secret store 42",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("store", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			tokenID, err := parseTokenArg(args)
			if err != nil {
				return err
			}
			text, err := readSecretText(params.SecretFile)
			if err != nil {
				return err
			}
			client, err := params.socketClient()
			if err != nil {
				return err
			}
			var result secretResult
			if err := client.Call(ctx, "store-secret", map[string]any{"token_id": tokenID, "secret": text}, &result); err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result); done {
				return err
			}
			fmt.Fprintf(a.stdout, "stored secret for token %s (commitment %s)\n", result.TokenID, result.Commitment)
			return nil
		},
	}
}

func (a *app) secretRevealCommand() *cli.Command {
	var params secretParams
	return &cli.Command{
		Name:    "reveal",
		Summary: "Decrypt and print the secret for a token",
		Description: `Print the stored secret for a token. Every reveal is logged by the
daemon. Fails with an integrity error if the stored ciphertext has
been altered.`,
		Usage: "custodyctl secret reveal <token-id> [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("reveal", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			tokenID, err := parseTokenArg(args)
			if err != nil {
				return err
			}
			client, err := params.socketClient()
			if err != nil {
				return err
			}
			var result secretResult
			if err := client.Call(ctx, "reveal-secret", map[string]any{"token_id": tokenID}, &result); err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result); done {
				return err
			}
			fmt.Fprintln(a.stdout, result.Secret)
			return nil
		},
	}
}

type secretVerifyParams struct {
	secretInputParams
	Submit bool `flag:"submit" desc:"submit the secret to the ledger to complete delivery"`
}

func (a *app) secretVerifyCommand() *cli.Command {
	var params secretVerifyParams
	return &cli.Command{
		Name:    "verify",
		Summary: "Check a claimed secret against the stored one and the ledger",
		Description: `Compare a claimed secret with the stored secret and the on-chain
commitment. With --submit a matching secret is submitted to the ledger
to confirm delivery.

A mismatch is reported on stdout and the command exits 1.`,
		Usage: "custodyctl secret verify <token-id> [--secret-file path|-] [--submit]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("verify", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			tokenID, err := parseTokenArg(args)
			if err != nil {
				return err
			}
			text, err := readSecretText(params.SecretFile)
			if err != nil {
				return err
			}
			client, err := params.socketClient()
			if err != nil {
				return err
			}
			fields := map[string]any{"token_id": tokenID, "secret": text, "submit": params.Submit}
			var result verifyResult
			if err := client.Call(ctx, "verify-secret", fields, &result); err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result); done {
				if err == nil && !result.Matched {
					return &cli.ExitError{Code: 1}
				}
				return err
			}
			if !result.Matched {
				fmt.Fprintf(a.stdout, "token %s: secret does not match (%s)\n", result.TokenID, result.Mismatch)
				return &cli.ExitError{Code: 1}
			}
			fmt.Fprintf(a.stdout, "token %s: secret matches (status %s)\n", result.TokenID, result.Status)
			if result.TxHash != "" {
				fmt.Fprintf(a.stdout, "submitted in transaction %s\n", result.TxHash)
			}
			return nil
		},
	}
}

type secretDestroyParams struct {
	connectionParams
	Yes bool `flag:"yes,y" desc:"confirm destruction"`
}

func (a *app) secretDestroyCommand() *cli.Command {
	var params secretDestroyParams
	return &cli.Command{
		Name:    "destroy",
		Summary: "Permanently delete the secret for a token",
		Usage:   "custodyctl secret destroy <token-id> --yes",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("destroy", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			tokenID, err := parseTokenArg(args)
			if err != nil {
				return err
			}
			if !params.Yes {
				return cli.Validation("destroying the secret for token %s cannot be undone; pass --yes to confirm", tokenID)
			}
			client, err := params.socketClient()
			if err != nil {
				return err
			}
			if err := client.Call(ctx, "destroy-secret", map[string]any{"token_id": tokenID}, nil); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "destroyed secret for token %s\n", tokenID)
			return nil
		},
	}
}

func (a *app) secretPurgeCommand() *cli.Command {
	var params secretParams
	return &cli.Command{
		Name:    "purge",
		Summary: "Run a retention sweep now",
		Description: `Destroy the secrets of every shipment the ledger reports as
delivered, completed or disputed. Refused unless the daemon's retention
policy is purge-terminal.`,
		Usage: "custodyctl secret purge [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("purge", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			client, err := params.socketClient()
			if err != nil {
				return err
			}
			var result workflow.SweepResult
			if err := client.Call(ctx, "purge-terminal", nil, &result); err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result); done {
				return err
			}
			fmt.Fprintf(a.stdout, "checked %d, purged %d, failed %d\n", result.Checked, result.Purged, result.Failed)
			return nil
		},
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custodyctl/cli"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/sealed"
	"github.com/bureau-foundation/custody/lib/secret"
)

func (a *app) keyCommand() *cli.Command {
	return &cli.Command{
		Name:    "key",
		Summary: "Manage the sealed master key",
		Description: `Generate age identities and seal the master key to them.

The daemon loads the master key from an age-encrypted file
(master_key.sealed_file) using an identity file
(master_key.identity_file). Sealing to more than one recipient lets a
recovery identity held offline open the same file.`,
		Subcommands: []*cli.Command{
			a.keyGenerateCommand(),
			a.keySealCommand(),
			a.keyCheckCommand(),
		},
	}
}

type keyGenerateParams struct {
	Identity string `flag:"identity" desc:"file to write the new age identity to (mode 0600)"`
	Force    bool   `flag:"force" desc:"overwrite an existing identity file"`
}

func (a *app) keyGenerateCommand() *cli.Command {
	var params keyGenerateParams
	return &cli.Command{
		Name:    "generate",
		Summary: "Generate an age identity",
		Usage:   "custodyctl key generate --identity path [--force]",
		Examples: []cli.Example{
			{
				Description: "Create the daemon's identity and print its public key",
				Command:     "custodyctl key generate --identity /etc/custody/identity.age",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("generate", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			if params.Identity == "" {
				return cli.Validation("--identity is required")
			}
			keypair, err := sealed.GenerateKeypair()
			if err != nil {
				return err
			}
			defer keypair.Close()

			contents := append(append([]byte(nil), keypair.PrivateKey.Bytes()...), '\n')
			defer secret.Zero(contents)
			if err := writePrivateFile(params.Identity, contents, params.Force); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, keypair.PublicKey)
			return nil
		},
	}
}

type keySealParams struct {
	Recipients []string `flag:"recipient,r" desc:"age public key to seal to (repeatable)"`
	Output     string   `flag:"output,o" desc:"file to write the sealed master key to (mode 0600)"`
	KeyFile    string   `flag:"key-file" desc:"existing hex master key to seal, or - for stdin (default: generate a new key)"`
	Force      bool     `flag:"force" desc:"overwrite an existing output file"`
}

func (a *app) keySealCommand() *cli.Command {
	var params keySealParams
	return &cli.Command{
		Name:    "seal",
		Summary: "Seal a master key to age recipients",
		Description: `Seal a 32-byte master key to one or more age recipients.

Without --key-file a fresh random key is generated. The key is never
printed; an operator holding one of the identities can recover it
with the age command line tool.

Re-sealing an existing key (--key-file) is how recipients are rotated.
A new key cannot decrypt secrets stored under the old one.`,
		Usage: "custodyctl key seal --recipient age1... --output path [--key-file path|-]",
		Examples: []cli.Example{
			{
				Description: "Seal a new master key to the daemon and a recovery key",
				Command:     "custodyctl key seal -r age1daemon... -r age1recovery... -o /etc/custody/master.age",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("seal", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			if len(params.Recipients) == 0 {
				return cli.Validation("at least one --recipient is required")
			}
			if params.Output == "" {
				return cli.Validation("--output is required")
			}
			for _, recipient := range params.Recipients {
				if err := sealed.ParsePublicKey(recipient); err != nil {
					return fmt.Errorf("recipient %q: %v: %w", recipient, err, custody.ErrPrecondition)
				}
			}

			masterKey, generated, err := readOrGenerateMasterKey(params.KeyFile)
			if err != nil {
				return err
			}
			defer masterKey.Close()

			ciphertext, err := sealed.SealMasterKey(masterKey, params.Recipients)
			if err != nil {
				return err
			}
			if err := writePrivateFile(params.Output, ciphertext, params.Force); err != nil {
				return err
			}
			action := "sealed existing master key"
			if generated {
				action = "generated and sealed new master key"
			}
			fmt.Fprintf(a.stdout, "%s to %d recipient(s): %s\n", action, len(params.Recipients), params.Output)
			return nil
		},
	}
}

func readOrGenerateMasterKey(path string) (_ *secret.Buffer, generated bool, _ error) {
	if path == "" {
		key, err := sealed.GenerateMasterKey()
		return key, true, err
	}
	encoded, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, false, fmt.Errorf("reading master key: %w", err)
	}
	defer encoded.Close()
	key, err := secret.ParseHex(encoded.String(), sealed.MasterKeySize)
	if err != nil {
		return nil, false, fmt.Errorf("%v: %w", err, custody.ErrPrecondition)
	}
	return key, false, nil
}

type keyCheckParams struct {
	Sealed   string `flag:"sealed" desc:"sealed master key file"`
	Identity string `flag:"identity" desc:"age identity file that opens it"`
}

func (a *app) keyCheckCommand() *cli.Command {
	var params keyCheckParams
	return &cli.Command{
		Name:    "check",
		Summary: "Check that an identity opens a sealed master key",
		Usage:   "custodyctl key check --sealed path --identity path",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("check", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			if params.Sealed == "" || params.Identity == "" {
				return cli.Validation("--sealed and --identity are required")
			}
			masterKey, err := sealed.LoadMasterKey(params.Sealed, params.Identity)
			if err != nil {
				return err
			}
			masterKey.Close()
			fmt.Fprintf(a.stdout, "ok: %s opens %s\n", params.Identity, params.Sealed)
			return nil
		},
	}
}

// writePrivateFile writes data with mode 0600, refusing to replace an
// existing file unless force is set.
func writePrivateFile(path string, data []byte, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s already exists (use --force to replace it): %w", path, custody.ErrConflict)
		}
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

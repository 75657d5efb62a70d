// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/lib/custody"
)

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var called string
	var receivedArgs []string

	root := &Command{
		Name: "custodyctl",
		Subcommands: []*Command{
			{Name: "version", Run: func(context.Context, []string) error { called = "version"; return nil }},
			{
				Name: "secret",
				Subcommands: []*Command{
					{
						Name: "reveal",
						Run: func(ctx context.Context, args []string) error {
							called = "secret reveal"
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute(context.Background(), []string{"secret", "reveal", "42"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "secret reveal" {
		t.Errorf("dispatched to %q, want %q", called, "secret reveal")
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "42" {
		t.Errorf("args = %v, want [42]", receivedArgs)
	}
}

func TestCommand_Execute_FlagParsing(t *testing.T) {
	var socketPath, target string
	command := &Command{
		Name: "reveal",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reveal", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", "/default.sock", "socket path")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				target = args[0]
			}
			return nil
		},
	}

	if err := command.Execute(context.Background(), []string{"--socket", "/custom.sock", "7"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if socketPath != "/custom.sock" || target != "7" {
		t.Errorf("socket = %q, target = %q", socketPath, target)
	}
}

func TestCommand_Execute_UnknownFlagSuggestion(t *testing.T) {
	command := &Command{
		Name: "resolve",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("resolve", pflag.ContinueOnError)
			flagSet.String("origin", "", "origin node")
			flagSet.String("destination", "", "destination node")
			return flagSet
		},
		Run: func(context.Context, []string) error { return nil },
	}

	err := command.Execute(context.Background(), []string{"--orgin", "WH-1"})
	if err == nil {
		t.Fatal("Execute() = nil, want error for unknown flag")
	}
	if !strings.Contains(err.Error(), "did you mean --origin") {
		t.Errorf("error = %q, want suggestion for --origin", err)
	}
	if !strings.Contains(err.Error(), "--help") {
		t.Errorf("error = %q, should point to --help", err)
	}
	if !errors.Is(err, custody.ErrPrecondition) {
		t.Errorf("unknown flag error should match ErrPrecondition")
	}
}

func TestCommand_Execute_UnknownSubcommand(t *testing.T) {
	root := &Command{
		Name:        "custodyctl",
		Subcommands: []*Command{{Name: "secret"}, {Name: "route"}, {Name: "track"}},
	}

	err := root.Execute(context.Background(), []string{"secrte"})
	if err == nil || !strings.Contains(err.Error(), `did you mean "secret"`) {
		t.Errorf("error = %v, want suggestion for secret", err)
	}

	err = root.Execute(context.Background(), []string{"zzzzzzzz"})
	if err == nil || strings.Contains(err.Error(), "did you mean") {
		t.Errorf("error = %v, want no suggestion", err)
	}
}

func TestCommand_Execute_HelpFlag(t *testing.T) {
	for _, helpArg := range []string{"-h", "--help", "help"} {
		t.Run(helpArg, func(t *testing.T) {
			var output bytes.Buffer
			ran := false
			command := &Command{
				Name:        "track",
				Summary:     "Show a shipment",
				HelpOutput:  &output,
				Examples:    []Example{{Description: "Track shipment 7", Command: "custodyctl track 7"}},
				Subcommands: []*Command{{Name: "watch", Summary: "Follow custody events"}},
				Run:         func(context.Context, []string) error { ran = true; return nil },
			}
			if err := command.Execute(context.Background(), []string{helpArg}); err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if ran {
				t.Error("Run called for help flag")
			}
			for _, want := range []string{"Show a shipment", "watch", "Follow custody events", "custodyctl track 7"} {
				if !strings.Contains(output.String(), want) {
					t.Errorf("help output missing %q:\n%s", want, output.String())
				}
			}
		})
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	root := &Command{
		Name:        "custodyctl",
		HelpOutput:  &bytes.Buffer{},
		Subcommands: []*Command{{Name: "secret"}},
	}
	err := root.Execute(context.Background(), nil)
	if !errors.Is(err, custody.ErrPrecondition) {
		t.Errorf("error = %v, want usage error", err)
	}
}

func TestExitError(t *testing.T) {
	var err error = &ExitError{Code: 1}
	var exit interface{ ExitCode() int }
	if !errors.As(err, &exit) || exit.ExitCode() != 1 {
		t.Errorf("ExitError does not expose its code")
	}
}

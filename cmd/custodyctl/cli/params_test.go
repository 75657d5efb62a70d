// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/lib/custody"
)

type socketFlag struct {
	Path string
}

func (s *socketFlag) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&s.Path, "socket", "/run/custody.sock", "socket path")
}

type testParams struct {
	JSONOutput
	Socket   socketFlag
	Origin   string        `flag:"origin,o" desc:"origin node id"`
	Submit   bool          `flag:"submit" desc:"submit on chain"`
	Limit    int           `flag:"limit" default:"10" desc:"row limit"`
	Amount   uint64        `flag:"amount" default:"1000" desc:"payment"`
	Timeout  time.Duration `flag:"timeout" default:"30s" desc:"deadline"`
	Nodes    []string      `flag:"node" desc:"node ids"`
	Internal string
}

func TestBindFlagsDefaults(t *testing.T) {
	var params testParams
	flagSet := FlagsFromParams("test", &params)
	if err := flagSet.Parse(nil); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.Limit != 10 || params.Amount != 1000 || params.Timeout != 30*time.Second {
		t.Errorf("defaults = %+v", params)
	}
	if params.Socket.Path != "/run/custody.sock" {
		t.Errorf("FlagBinder default = %q", params.Socket.Path)
	}
	if flagSet.Lookup("internal") != nil {
		t.Error("untagged field bound as a flag")
	}
}

func TestBindFlagsParse(t *testing.T) {
	var params testParams
	flagSet := FlagsFromParams("test", &params)
	args := []string{"-o", "WH-1", "--submit", "--json", "--node", "HUB,DC-1", "--socket", "/tmp/c.sock", "--amount", "7"}
	if err := flagSet.Parse(args); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if params.Origin != "WH-1" || !params.Submit || !params.OutputJSON || params.Amount != 7 {
		t.Errorf("params = %+v", params)
	}
	if strings.Join(params.Nodes, "|") != "HUB|DC-1" {
		t.Errorf("nodes = %v", params.Nodes)
	}
	if params.Socket.Path != "/tmp/c.sock" {
		t.Errorf("socket = %q", params.Socket.Path)
	}
}

func TestBindFlagsRejectsBadInput(t *testing.T) {
	if err := BindFlags(testParams{}, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("non-pointer params accepted")
	}

	var unsupported struct {
		Ratio float32 `flag:"ratio"`
	}
	if err := BindFlags(&unsupported, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("unsupported field type accepted")
	}

	var badDefault struct {
		Count int `flag:"count" default:"many"`
	}
	if err := BindFlags(&badDefault, pflag.NewFlagSet("x", pflag.ContinueOnError)); err == nil {
		t.Error("unparseable default accepted")
	}
}

func TestEmitJSON(t *testing.T) {
	var output bytes.Buffer
	off := JSONOutput{}
	if done, _ := off.EmitJSON(&output, []string{"a"}); done || output.Len() != 0 {
		t.Fatal("EmitJSON wrote output without --json")
	}

	on := JSONOutput{OutputJSON: true}
	var nodes []string
	done, err := on.EmitJSON(&output, nodes)
	if !done || err != nil {
		t.Fatalf("EmitJSON = %v, %v", done, err)
	}
	if strings.TrimSpace(output.String()) != "[]" {
		t.Errorf("nil slice encoded as %q, want []", output.String())
	}
}

type shipperParams struct {
	Shipper custody.Address `flag:"shipper" desc:"shipper address"`
	Token   custody.TokenID `flag:"token" default:"5" desc:"token id"`
}

func TestBindFlagsTextValues(t *testing.T) {
	var params shipperParams
	flagSet := FlagsFromParams("test", &params)
	if params.Token != custody.NewTokenID(5) {
		t.Errorf("default token = %s, want 5", params.Token)
	}
	if err := flagSet.Parse([]string{"--shipper", "0x00000000000000000000000000000000000000aa"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.EqualFold(params.Shipper.String(), "0x00000000000000000000000000000000000000aa") {
		t.Errorf("shipper = %s", params.Shipper)
	}

	flagSet = FlagsFromParams("test", &params)
	if err := flagSet.Parse([]string{"--shipper", "warehouse"}); err == nil {
		t.Error("malformed address accepted")
	}
}

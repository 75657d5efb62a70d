// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custodyctl/cli"
	"github.com/bureau-foundation/custody/lib/custody"
)

func (a *app) shipmentCommand() *cli.Command {
	return &cli.Command{
		Name:    "shipment",
		Summary: "Create shipments on the ledger through custodyd",
		Subcommands: []*cli.Command{
			a.shipmentCreateCommand(),
		},
	}
}

type createdShipment struct {
	TokenID     custody.TokenID   `cbor:"token_id" json:"tokenId"`
	TxHash      string            `cbor:"tx_hash" json:"txHash"`
	RouteID     string            `cbor:"route_id" json:"routeId"`
	Route       []custody.Address `cbor:"route" json:"route"`
	Fingerprint string            `cbor:"fingerprint" json:"fingerprint"`
	Commitment  string            `cbor:"commitment" json:"commitment"`
	Secret      string            `cbor:"secret" json:"secret"`
}

type shipmentCreateParams struct {
	connectionParams
	cli.JSONOutput
	Origin      string `flag:"origin" desc:"origin node id"`
	Destination string `flag:"destination" desc:"destination node id"`
	Shipper     string `flag:"shipper" desc:"shipper ledger address"`
	Recipient   string `flag:"recipient" desc:"recipient ledger address"`
	Cargo       string `flag:"cargo" desc:"cargo description"`
	Amount      string `flag:"amount" desc:"payment amount in wei" default:"0"`
}

func (a *app) shipmentCreateCommand() *cli.Command {
	var params shipmentCreateParams
	return &cli.Command{
		Name:    "create",
		Summary: "Resolve a route, generate a secret, and create the shipment",
		Description: `Create a shipment end to end: the daemon resolves the route from
origin to destination, generates a secret, submits the shipment with
the secret's commitment, and stores the secret under the new token id.

The secret is printed once, for the package label. It can be read back
later with "secret reveal".`,
		Usage: "custodyctl shipment create --origin id --destination id --shipper 0x... --recipient 0x... [--cargo text] [--amount wei]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("create", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			if params.Origin == "" || params.Destination == "" {
				return cli.Validation("--origin and --destination are required")
			}
			shipper, err := custody.ParseAddress(params.Shipper)
			if err != nil {
				return cli.Validation("--shipper: %v", err)
			}
			recipient, err := custody.ParseAddress(params.Recipient)
			if err != nil {
				return cli.Validation("--recipient: %v", err)
			}

			client, err := params.socketClient()
			if err != nil {
				return err
			}
			fields := map[string]any{
				"origin_id":      params.Origin,
				"destination_id": params.Destination,
				"shipper":        shipper,
				"recipient":      recipient,
				"cargo_details":  params.Cargo,
				"payment_amount": params.Amount,
			}
			var result createdShipment
			if err := client.Call(ctx, "create-shipment", fields, &result); err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, result); done {
				return err
			}
			fmt.Fprintf(a.stdout, "created shipment %s in transaction %s\n", result.TokenID, result.TxHash)
			fmt.Fprintf(a.stdout, "route:      %s (%d stops)\n", result.RouteID, len(result.Route))
			fmt.Fprintf(a.stdout, "commitment: %s\n", result.Commitment)
			fmt.Fprintf(a.stdout, "secret:     %s\n", result.Secret)
			return nil
		},
	}
}

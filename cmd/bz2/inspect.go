// Copyright 2021 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"

	bzcodec "github.com/cosnicolaou/bzcodec"
	"github.com/cosnicolaou/bzcodec/internal/netio"
	"github.com/spf13/cobra"
)

// newScanCmd returns the "scan" subcommand: a passthrough to the block
// scanner for inspecting a bzip2 file's block layout without decoding it,
// useful for debugging truncated or hand-edited streams.
func newScanCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [file ...]",
		Short: "print the block layout of one or more bzip2 files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				if err := scanFile(ctx, name); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}
			return nil
		},
	}
}

func scanFile(ctx context.Context, name string) error {
	rd, _, closeIn, err := netio.Open(ctx, name, netio.Opts{})
	if err != nil {
		return err
	}
	defer closeIn(ctx)

	sc := bzcodec.NewScanner(rd)
	for sc.Scan(ctx) {
		fmt.Println(name, sc.Block().String())
	}
	return sc.Err()
}

// Copyright 2021 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Command bz2 compresses and decompresses bzip2 streams, reading and
// writing local files, S3 objects and HTTP(S) URLs. Its flags follow the
// reference bzip2 command line tool.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/spf13/cobra"
	"v.io/x/lib/textutil"
)

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

// wrap reflows text to width columns, the way vanadium's cmdline package
// formats command documentation.
func wrap(text string, width int) string {
	var buf bytes.Buffer
	w := textutil.NewUTF8LineWriter(&buf, width)
	io.WriteString(w, text)
	w.Close()
	return buf.String()
}

func newRootCmd(ctx context.Context) *cobra.Command {
	f := &commonFlags{}

	cmd := &cobra.Command{
		Use:   "bz2 [flags] [file ...]",
		Short: "compress or decompress files using the bzip2 block-sorting algorithm",
		Long: wrap(
			"bz2 compresses files using the Burrows-Wheeler block-sorting "+
				"text compression algorithm and Huffman coding, producing files "+
				"compatible with the reference bzip2 tool. Each file is replaced "+
				"by a compressed (or decompressed) version of itself unless -c or "+
				"-k is given; files may be local paths, s3:// objects or http(s) "+
				"URLs.", 78),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.progressBar = !f.quiet
			return run(ctx, f, args)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&f.decompress, "decompress", "d", false, "decompress")
	flags.BoolVarP(&f.test, "test", "t", false, "test compressed file integrity")
	flags.BoolVarP(&f.stdout, "stdout", "c", false, "write output to stdout")
	flags.BoolVarP(&f.keep, "keep", "k", false, "keep (don't delete) input files")
	flags.BoolVarP(&f.force, "force", "f", false, "overwrite existing output files")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "suppress noncritical error messages")
	flags.BoolVarP(&f.small, "small", "s", false, "use less memory during decompression")
	flags.BoolVar(&f.fast, "fast", false, "alias for -1")
	flags.BoolVar(&f.best, "best", false, "alias for -9")
	flags.IntVar(&f.concurrency, "concurrency", runtime.GOMAXPROCS(-1), "decompression concurrency")
	flags.IntVar(&f.maxBlockOverhead, "max-block-overhead", 0, "max size of the per-block coding tables, 0 for the default")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "verbose debug/trace information")

	for n := 1; n <= 9; n++ {
		name := fmt.Sprintf("%d", n)
		flags.BoolVarP(&f.levels[n], name, name, false, fmt.Sprintf("use a %d00k block size when compressing", n))
	}

	// --repetitive-best/--repetitive-fast are accepted but ignored, as in
	// the reference bzip2.c, which treated them as no-ops once the block
	// sorting algorithm stopped needing a hint.
	var legacyNoOp bool
	flags.BoolVar(&legacyNoOp, "repetitive-best", false, "no-op, kept for command line compatibility")
	flags.BoolVar(&legacyNoOp, "repetitive-fast", false, "no-op, kept for command line compatibility")

	cmd.AddCommand(newScanCmd(ctx))
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	args := applyEnvironment(os.Args[1:])

	cmd := newRootCmd(ctx)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "bz2:", err)
		os.Exit(exitCode(err))
	}
}

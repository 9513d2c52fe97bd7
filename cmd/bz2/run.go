// Copyright 2021 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"

	bzcodec "github.com/cosnicolaou/bzcodec"
	"github.com/cosnicolaou/bzcodec/internal/netio"
	"github.com/schollz/progressbar/v2"
	"golang.org/x/crypto/ssh/terminal"
)

// exitCode maps a run error to bzip2.c's exit status convention: 0
// success, 1 I/O or argument error, 2 data error, 3 internal consistency
// violation.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var bzErr *bzcodec.Error
	if errors.As(err, &bzErr) {
		switch bzErr.Kind {
		case bzcodec.DataError, bzcodec.DataErrorMagic:
			return 2
		default:
			return 3
		}
	}
	return 1
}

func run(ctx context.Context, f *commonFlags, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if f.test {
		f.decompress = true
		f.stdout = false
	}

	if len(args) == 0 {
		return runOne(ctx, f, "")
	}
	for _, name := range args {
		if err := runOne(ctx, f, name); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// runOne processes a single named input (or stdin, if name is empty).
func runOne(ctx context.Context, f *commonFlags, name string) error {
	in, size, closeIn, err := openInput(ctx, f, name)
	if err != nil {
		return err
	}
	defer closeIn(ctx)

	outName, toStdout := outputName(f, name)

	if f.test {
		dc := bzcodec.NewReader(ctx, in,
			bzcodec.DecompressionOptions(decompressorOpts(f)...),
			bzcodec.ScannerOptions(scannerOpts(f)...))
		_, err := io.Copy(ioutil.Discard, dc)
		return err
	}

	out, closeOut, err := openOutput(ctx, toStdout, outName, f.force)
	if err != nil {
		return err
	}

	var progressCh chan bzcodec.Progress
	var progressWg progressWaiter
	if f.decompress && f.progressBar && !toStdout && size > 0 {
		progressCh = make(chan bzcodec.Progress, f.concurrency)
		progressWg = startProgressBar(ctx, progressCh, size)
	}

	var copyErr error
	if f.decompress {
		opts := decompressorOpts(f)
		if progressCh != nil {
			opts = append(opts, bzcodec.BZSendUpdates(progressCh))
		}
		dc := bzcodec.NewReader(ctx, in,
			bzcodec.DecompressionOptions(opts...),
			bzcodec.ScannerOptions(scannerOpts(f)...))
		_, copyErr = io.Copy(out, dc)
	} else {
		wr, werr := bzcodec.NewWriter(out, f.blockSize100k(), 0)
		if werr != nil {
			return werr
		}
		if _, copyErr = io.Copy(wr, in); copyErr == nil {
			copyErr = wr.Close()
		}
	}

	if progressCh != nil {
		close(progressCh)
		progressWg.wait()
	}

	if cerr := closeOut(ctx); copyErr == nil {
		copyErr = cerr
	}
	if copyErr != nil {
		return copyErr
	}

	if name != "" && !toStdout && !f.keep {
		if rerr := os.Remove(name); rerr != nil && f.verbose {
			log.Printf("failed to remove %s: %v", name, rerr)
		}
	}
	return nil
}

func decompressorOpts(f *commonFlags) []bzcodec.DecompressorOption {
	return []bzcodec.DecompressorOption{
		bzcodec.BZConcurrency(f.concurrency),
		bzcodec.BZVerbose(f.verbose),
		bzcodec.BZSmall(f.small),
	}
}

func scannerOpts(f *commonFlags) []bzcodec.ScannerOption {
	if f.maxBlockOverhead > 0 {
		return []bzcodec.ScannerOption{bzcodec.ScanBlockOverhead(f.maxBlockOverhead)}
	}
	return nil
}

func openInput(ctx context.Context, f *commonFlags, name string) (io.Reader, int64, func(context.Context) error, error) {
	if name == "" {
		return os.Stdin, 0, func(context.Context) error { return nil }, nil
	}
	return netio.Open(ctx, name, netio.Opts{})
}

func outputName(f *commonFlags, name string) (out string, stdout bool) {
	if f.stdout || name == "" {
		return "", true
	}
	if f.decompress {
		n, _ := decompressedName(name)
		return n, false
	}
	return compressedName(name), false
}

func openOutput(ctx context.Context, stdout bool, name string, force bool) (io.Writer, func(context.Context) error, error) {
	if stdout {
		return os.Stdout, func(context.Context) error { return nil }, nil
	}
	if !force {
		if _, err := os.Stat(name); err == nil {
			return nil, nil, fmt.Errorf("output file %s already exists, use -f to overwrite", name)
		}
	}
	return netio.Create(ctx, name, netio.Opts{})
}

type progressWaiter struct {
	done chan struct{}
}

func (p progressWaiter) wait() {
	if p.done != nil {
		<-p.done
	}
}

func startProgressBar(ctx context.Context, ch chan bzcodec.Progress, size int64) progressWaiter {
	w := os.Stdout
	if !terminal.IsTerminal(int(os.Stdout.Fd())) {
		w = os.Stderr
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetBytes64(size),
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetPredictTime(true))
		bar.RenderBlank()
		for {
			select {
			case p, ok := <-ch:
				if !ok {
					fmt.Fprintln(w)
					return
				}
				bar.Add(p.Compressed)
			case <-ctx.Done():
				return
			}
		}
	}()
	return progressWaiter{done: done}
}

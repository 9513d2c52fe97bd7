// Copyright 2021 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package netio wraps grailbio/base/file's local/S3/URL file abstraction
// with cenkalti/backoff retries, for the CLI's input/output paths. Object
// storage opens and creates can fail transiently (throttling, connection
// resets); the codec core never retries anything, only this collaborator
// does.
package netio

import (
	"context"
	"io"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/grailbio/base/file"
)

// Opts controls the retry policy applied to Open and Create.
type Opts struct {
	MaxElapsedTime time.Duration
}

func (o Opts) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if o.MaxElapsedTime > 0 {
		eb.MaxElapsedTime = o.MaxElapsedTime
	}
	return backoff.WithContext(eb, ctx)
}

// Open opens name (local path, s3:// or http(s):// URL, per grailbio/base/
// file's registered implementations) for reading, retrying transient
// failures. It returns the reader, the file's size (0 if unknown), and a
// close function.
func Open(ctx context.Context, name string, opts Opts) (io.Reader, int64, func(context.Context) error, error) {
	var (
		f    file.File
		size int64
	)
	op := func() error {
		info, err := file.Stat(ctx, name)
		if err != nil {
			return err
		}
		size = info.Size()
		f, err = file.Open(ctx, name)
		return err
	}
	if err := backoff.Retry(op, opts.backOff(ctx)); err != nil {
		return nil, 0, nil, err
	}
	return f.Reader(ctx), size, f.Close, nil
}

// Create creates name for writing, retrying transient failures, and
// returns the writer and a close function.
func Create(ctx context.Context, name string, opts Opts) (io.Writer, func(context.Context) error, error) {
	var f file.File
	op := func() error {
		var err error
		f, err = file.Create(ctx, name)
		return err
	}
	if err := backoff.Retry(op, opts.backOff(ctx)); err != nil {
		return nil, nil, err
	}
	return f.Writer(ctx), f.Close, nil
}

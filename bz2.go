// Copyright 2021 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzcodec

import (
	"io"

	"github.com/cosnicolaou/bzcodec/internal/bzcore"
)

// Re-export the core's action/code/error vocabulary so collaborators never
// need to import the internal package directly.
type (
	// Action selects what a Compress.Process call should attempt.
	Action = bzcore.Action
	// Code reports the outcome of a Process call.
	Code = bzcore.Code
	// ErrorKind classifies a *Error.
	ErrorKind = bzcore.ErrorKind
	// Error is returned by Compress/Decompress Init and Process.
	Error = bzcore.Error
)

const (
	Run    = bzcore.Run
	Flush  = bzcore.Flush
	Finish = bzcore.Finish

	RunOK     = bzcore.RunOK
	FlushOK   = bzcore.FlushOK
	FinishOK  = bzcore.FinishOK
	StreamEnd = bzcore.StreamEnd
	Ok        = bzcore.Ok

	ConfigError    = bzcore.ConfigError
	ParamError     = bzcore.ParamError
	SequenceError  = bzcore.SequenceError
	DataError      = bzcore.DataError
	DataErrorMagic = bzcore.DataErrorMagic
	UnexpectedEOF  = bzcore.UnexpectedEOF
	OutBuffFull    = bzcore.OutBuffFull
)

// Compress is the C9 streaming compression façade: Init/Process/End wraps
// the C7 engine, matching bzlib's BZ2_bzCompressInit/BZ2_bzCompress/
// BZ2_bzCompressEnd triple.
type Compress struct {
	c *bzcore.Compressor
}

// Init creates a compression stream for the given block-size level (1..9)
// and sort work factor (0 selects the default of 30, per bzlib's
// BZ2_bzCompressInit).
func (cp *Compress) Init(blockSize100k, workFactor int) error {
	c, err := bzcore.NewCompressor(blockSize100k, workFactor)
	if err != nil {
		return err
	}
	cp.c = c
	return nil
}

// Process consumes in and produces compressed output into out. action
// selects whether to keep accumulating (Run), flush the current block
// without ending the stream (Flush), or terminate the stream (Finish).
func (cp *Compress) Process(in, out []byte, action Action) (inUsed, outUsed int, code Code, err error) {
	return cp.c.Process(in, out, action)
}

// End releases the stream's workspace. The stream is invalid after End.
func (cp *Compress) End() {
	cp.c.End()
	cp.c = nil
}

// Decompress is the C9 streaming decompression façade, wrapping the C8
// engine.
type Decompress struct {
	d *bzcore.Decompressor
}

// Init creates a decompression stream. small selects the memory-frugal
// inverse-BWT representation over the faster default.
func (dc *Decompress) Init(small bool) error {
	dc.d = bzcore.NewDecompressor(small)
	return nil
}

// Process consumes compressed bits from in and produces decompressed
// bytes into out.
func (dc *Decompress) Process(in, out []byte) (inUsed, outUsed int, code Code, err error) {
	return dc.d.Process(in, out)
}

// End releases the stream's workspace. The stream is invalid after End.
func (dc *Decompress) End() {
	dc.d = nil
}

// CompressBuffer is the one-shot buffer-to-buffer compression convenience
// wrapper: BZ2_bzBuffToBuffCompress's equivalent.
func CompressBuffer(dst, src []byte, blockSize100k, workFactor int) ([]byte, error) {
	var cp Compress
	if err := cp.Init(blockSize100k, workFactor); err != nil {
		return nil, err
	}
	defer cp.End()

	out := dst[:0]
	buf := make([]byte, 64*1024)
	in := src
	for len(in) > 0 {
		n, m, _, err := cp.Process(in, buf, Run)
		if err != nil {
			return nil, err
		}
		in = in[n:]
		out = append(out, buf[:m]...)
	}
	for {
		_, m, code, err := cp.Process(nil, buf, Finish)
		if err != nil {
			return nil, err
		}
		out = append(out, buf[:m]...)
		if code == StreamEnd {
			break
		}
	}
	return out, nil
}

// DecompressBuffer is the one-shot buffer-to-buffer decompression
// convenience wrapper: BZ2_bzBuffToBuffDecompress's equivalent.
func DecompressBuffer(dst, src []byte, small bool) ([]byte, error) {
	var dc Decompress
	if err := dc.Init(small); err != nil {
		return nil, err
	}
	defer dc.End()

	out := dst[:0]
	buf := make([]byte, 64*1024)
	in := src
	for {
		n, m, code, err := dc.Process(in, buf)
		if err != nil {
			return nil, err
		}
		in = in[n:]
		out = append(out, buf[:m]...)
		if code == StreamEnd {
			return out, nil
		}
		if n == 0 && m == 0 {
			return nil, newUnexpectedEOF()
		}
	}
}

func newUnexpectedEOF() error {
	return &Error{Kind: bzcore.UnexpectedEOF, Msg: "input exhausted before stream end"}
}

// writer is the stdio-style compressing io.WriteCloser: writes flow
// through a single Compress stream and Close drives Finish.
type writer struct {
	w   io.Writer
	cp  Compress
	buf []byte
}

// NewWriter returns an io.WriteCloser that compresses everything written
// to it into w as a single bzip2 stream. Close must be called to flush
// the trailer.
func NewWriter(w io.Writer, blockSize100k, workFactor int) (io.WriteCloser, error) {
	wr := &writer{w: w, buf: make([]byte, 64*1024)}
	if err := wr.cp.Init(blockSize100k, workFactor); err != nil {
		return nil, err
	}
	return wr, nil
}

func (w *writer) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n, m, _, err := w.cp.Process(p, w.buf, Run)
		if err != nil {
			return total, err
		}
		if m > 0 {
			if _, werr := w.w.Write(w.buf[:m]); werr != nil {
				return total, werr
			}
		}
		p = p[n:]
		total += n
	}
	return total, nil
}

func (w *writer) Close() error {
	defer w.cp.End()
	for {
		_, m, code, err := w.cp.Process(nil, w.buf, Finish)
		if err != nil {
			return err
		}
		if m > 0 {
			if _, werr := w.w.Write(w.buf[:m]); werr != nil {
				return werr
			}
		}
		if code == StreamEnd {
			return nil
		}
	}
}

// singleStreamReader is the stdio-style decompressing io.Reader for a
// single (non-parallel) bzip2 stream, as opposed to NewReader's
// scanner/goroutine-pool pipeline.
type singleStreamReader struct {
	r   io.Reader
	dc  Decompress
	in  []byte
	eof bool
	err error
}

// NewSingleStreamReader returns an io.Reader that decompresses a single
// bzip2 stream read from r, serially, with no internal concurrency — the
// stdio-style counterpart to the concurrent NewReader.
func NewSingleStreamReader(r io.Reader, small bool) (io.Reader, error) {
	sr := &singleStreamReader{r: r}
	if err := sr.dc.Init(small); err != nil {
		return nil, err
	}
	return sr, nil
}

func (sr *singleStreamReader) fill() {
	if sr.eof {
		return
	}
	buf := make([]byte, 64*1024)
	n, err := sr.r.Read(buf)
	sr.in = append(sr.in, buf[:n]...)
	if err != nil {
		sr.eof = true
		if err != io.EOF {
			sr.err = err
		}
	}
}

func (sr *singleStreamReader) Read(p []byte) (int, error) {
	if sr.err != nil {
		return 0, sr.err
	}
	for {
		n, m, code, err := sr.dc.Process(sr.in, p)
		sr.in = sr.in[n:]
		if err != nil {
			sr.err = err
			return m, err
		}
		if m > 0 || code == StreamEnd {
			if code == StreamEnd && m == 0 {
				return 0, io.EOF
			}
			return m, nil
		}
		if sr.eof {
			return 0, io.ErrUnexpectedEOF
		}
		sr.fill()
	}
}

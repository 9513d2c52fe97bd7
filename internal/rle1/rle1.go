// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package rle1 implements bzip2's first run-length stage: a reversible
// byte-level pre-encoding applied before the Burrows-Wheeler transform.
// Runs of a single byte value are capped at four literal copies, with a
// fifth "extra count" byte carrying the remainder of the run length when
// it reaches four or more. This bounds the worst case the BWT sort has to
// handle and caps pathological single-byte-repeat inputs.
package rle1

import "github.com/cosnicolaou/bzcodec/internal/crc32bz"

// NoCarry is the state_in_ch sentinel meaning "no pending run".
const NoCarry = 256

// Block is the destination for RLE-1 encoder output: the compressor's
// pre-BWT block buffer, its in-use alphabet bitmap, and the running block
// CRC (which is computed over the original, pre-encoding byte stream, so
// it is updated once per original byte rather than once per emitted byte).
type Block struct {
	Data  []byte
	InUse *[256]bool
	CRC   *crc32bz.CRC
}

func (b *Block) appendRun(ch byte, length int) {
	for i := 0; i < length; i++ {
		b.CRC.UpdateByte(ch)
	}
	b.InUse[ch] = true
	if length <= 3 {
		for i := 0; i < length; i++ {
			b.Data = append(b.Data, ch)
		}
		return
	}
	for i := 0; i < 4; i++ {
		b.Data = append(b.Data, ch)
	}
	extra := byte(length - 4)
	b.Data = append(b.Data, extra)
	b.InUse[extra] = true
}

// Encoder holds the single pending (byte, run-length) carry that persists
// across calls to Append, so that a caller feeding input in arbitrarily
// small chunks gets byte-identical output to one fed in a single call.
type Encoder struct {
	ch uint32 // NoCarry means empty
	ln int
}

// Reset clears the carry (bzlib's init_RL).
func (e *Encoder) Reset() {
	e.ch = NoCarry
	e.ln = 0
}

// Empty reports whether there is no pending run to flush.
func (e *Encoder) Empty() bool {
	return !(e.ch < NoCarry && e.ln > 0)
}

// Append feeds one input byte through the run-length encoder, writing
// completed runs to blk. It fast-tracks the common case of a singleton
// run followed by a different byte.
func (e *Encoder) Append(blk *Block, b byte) {
	zchh := uint32(b)
	switch {
	case zchh != e.ch && e.ln == 1:
		ch := byte(e.ch)
		blk.CRC.UpdateByte(ch)
		blk.InUse[ch] = true
		blk.Data = append(blk.Data, ch)
		e.ch = zchh
	case zchh != e.ch || e.ln == 255:
		if e.ch < NoCarry {
			blk.appendRun(byte(e.ch), e.ln)
		}
		e.ch = zchh
		e.ln = 1
	default:
		e.ln++
	}
}

// Flush writes any pending run to blk and clears the carry (bzlib's
// flush_RL), called at block boundaries and on Finish/Flush.
func (e *Encoder) Flush(blk *Block) {
	if e.ch < NoCarry {
		blk.appendRun(byte(e.ch), e.ln)
	}
	e.Reset()
}

// Decoder expands the run-length encoding back into the original byte
// stream, pulling source bytes (the inverse-BWT L-column) on demand via
// pull. It is resumable: Fill may be called repeatedly with a fresh
// output buffer each time, and never loses a partially-emitted run.
type Decoder struct {
	lastByte    int // -1 means "no byte seen yet"
	byteRepeats uint
	repeats     uint
}

// Reset returns the decoder to its initial, block-start state.
func (d *Decoder) Reset() {
	d.lastByte = -1
	d.byteRepeats = 0
	d.repeats = 0
}

// Fill writes expanded bytes into out, pulling raw (post-inverse-BWT)
// bytes from pull as needed. It returns the number of bytes written and
// whether pull signalled exhaustion (ok=false), meaning the block's data
// has been fully expanded.
func (d *Decoder) Fill(out []byte, pull func() (b byte, ok bool)) (n int, blockDone bool) {
	for n < len(out) {
		if d.repeats > 0 {
			out[n] = byte(d.lastByte)
			n++
			d.repeats--
			if d.repeats == 0 {
				d.lastByte = -1
			}
			continue
		}

		b, ok := pull()
		if !ok {
			return n, true
		}

		if d.byteRepeats == 3 {
			d.repeats = uint(b)
			d.byteRepeats = 0
			continue
		}

		if d.lastByte == int(b) {
			d.byteRepeats++
		} else {
			d.byteRepeats = 0
		}
		d.lastByte = int(b)

		out[n] = b
		n++
	}
	return n, false
}

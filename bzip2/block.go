// Copyright 2019 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bzip2 adapts the generalised, streaming bzcore decompressor to
// the scanner/parallel decompressor's need to decode a single already
// block-magic-delimited block in isolation: given the raw bit-aligned
// block payload the scanner found, it reconstructs a minimal standalone
// bzip2 stream around it (header, block magic, end-of-stream trailer) and
// drives bzcore.Decompressor over that, rather than maintaining a second,
// independent block decoder.
package bzip2

import (
	"fmt"
	"io"

	"github.com/cosnicolaou/bzcodec/internal/bitio"
	"github.com/cosnicolaou/bzcodec/internal/bzcore"
	"github.com/cosnicolaou/bzcodec/internal/crc32bz"
)

var (
	// FileMagic is the bzip2 file magic number.
	FileMagic = bzcore.FileMagic[:]

	// BlockMagic is the magic number for each bzip data block.
	BlockMagic = bzcore.BlockMagic

	// EOSMagic is the magic number for each bzip end of stream block.
	EOSMagic = bzcore.EOSMagic
)

// repackBlock copies sizeInBits bits from src, starting at the bit offset
// start, into a fresh byte slice aligned at a byte boundary. It re-uses
// bitio's bit packer/unpacker so the relocated bits are identical to the
// source regardless of their original alignment.
func repackBlock(src []byte, start, sizeInBits int) []byte {
	var r bitio.Reader
	var w bitio.Writer
	pos := 0
	feed := func() bool {
		if pos >= len(src) {
			return false
		}
		r.Feed(src[pos])
		pos++
		return true
	}
	need := func(n uint) bool {
		for r.LiveBits() < n {
			if !feed() {
				return false
			}
		}
		return true
	}

	if start > 0 {
		if need(uint(start)) {
			r.TryReadBits(uint(start))
		}
	}

	out := make([]byte, 0, (sizeInBits+7)/8)
	remaining := sizeInBits
	for remaining > 0 {
		n := uint(24)
		if uint(remaining) < n {
			n = uint(remaining)
		}
		if !need(n) {
			break
		}
		v, _ := r.TryReadBits(n)
		w.WriteBits(n, v)
		for w.HasWholeByte() {
			out = append(out, w.Drain())
		}
		remaining -= int(n)
	}
	if b, ok := w.FinishPending(); ok {
		out = append(out, b)
	}
	return out
}

// BlockReader decodes a single bzip2 block in isolation, independent of
// the stream it was scanned from.
type BlockReader struct {
	dc   *bzcore.Decompressor
	in   []byte
	pos  int
	err  error
	done bool
}

// NewBlockReader returns an io.Reader that decodes the single compressed
// block in src starting at bit offset start, whose level-scaled block size
// (in bytes, as bzip2 encodes it: 100000*level) is blockSize. small selects
// the memory-frugal inverse-BWT representation, as bzip2's -s flag does.
func NewBlockReader(blockSize int, src []byte, start int, small bool) io.Reader {
	level := blockSize / 100000
	if level < 1 {
		level = 1
	}
	if level > 9 {
		level = 9
	}
	if len(src) == 0 {
		return &BlockReader{err: io.EOF}
	}

	sizeInBits := len(src)*8 - start
	payload := repackBlock(src, start, sizeInBits)

	blockCRC := readBlockCRC(payload)
	combined := crc32bz.Rotl1XorFold(0, blockCRC)

	var w bitio.Writer
	var stream []byte
	emitByte := func(b byte) {
		w.WriteBits(8, uint32(b))
		for w.HasWholeByte() {
			stream = append(stream, w.Drain())
		}
	}
	stream = append(stream, 'B', 'Z', 'h', byte('0'+level))
	for _, b := range BlockMagic {
		stream = append(stream, b)
	}
	stream = append(stream, payload...)
	for _, b := range EOSMagic {
		emitByte(b)
	}
	w.WriteBits(32, combined)
	for w.HasWholeByte() {
		stream = append(stream, w.Drain())
	}
	if b, ok := w.FinishPending(); ok {
		stream = append(stream, b)
	}

	return &BlockReader{dc: bzcore.NewDecompressor(small), in: stream}
}

// readBlockCRC extracts the 32-bit stored block CRC from the first 4 bytes
// of a block's bit-aligned payload (the block header always starts with
// the CRC field immediately after the block magic).
func readBlockCRC(payload []byte) uint32 {
	var r bitio.Reader
	for i := 0; i < 4 && i < len(payload); i++ {
		r.Feed(payload[i])
	}
	v, _ := r.TryReadBits(32)
	return v
}

// Read implements io.Reader.
func (br *BlockReader) Read(buf []byte) (int, error) {
	if br.err != nil {
		return 0, br.err
	}
	if br.done {
		return 0, io.EOF
	}
	n, m, code, err := br.dc.Process(br.in[br.pos:], buf)
	br.pos += n
	if err != nil {
		br.err = fmt.Errorf("bzip2: %w", err)
		return m, br.err
	}
	if code == bzcore.StreamEnd {
		br.done = true
	}
	if m == 0 && code != bzcore.StreamEnd {
		return 0, fmt.Errorf("bzip2: block decode stalled")
	}
	return m, nil
}

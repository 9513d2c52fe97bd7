// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package crc32bz implements the bit-reversed CRC-32 used by bzip2 for
// per-block and combined-stream checksums. bzip2 processes its checksum
// MSB-first, whereas the standard library's crc32.IEEETable is built for
// LSB-first (reflected) input; rather than hand-roll a second 256-entry
// table, every byte in and out of the running value is bit-reversed so the
// reflected table can be reused unmodified.
package crc32bz

import (
	"hash/crc32"
	"math/bits"
)

// CRC accumulates the bzip2 variant of CRC-32. The zero value is ready to
// use and matches BZ_INITIALISE_CRC.
type CRC struct {
	val uint32
	buf [256]byte
}

// Update folds buf into the running checksum.
func (c *CRC) Update(buf []byte) {
	cval := bits.Reverse32(c.val)
	for len(buf) > 0 {
		n := copy(c.buf[:], buf)
		buf = buf[n:]
		for i, b := range c.buf[:n] {
			c.buf[i] = bits.Reverse8(b)
		}
		cval = crc32.Update(cval, crc32.IEEETable, c.buf[:n])
	}
	c.val = bits.Reverse32(cval)
}

// UpdateByte folds a single byte into the running checksum; the resumable
// equivalent of the BZ_UPDATE_CRC macro, used on the RLE-1 append hot path.
func (c *CRC) UpdateByte(b byte) {
	c.buf[0] = b
	c.Update(c.buf[:1])
}

// Value returns the final (post-BZ_FINALISE_CRC) checksum.
func (c *CRC) Value() uint32 {
	return c.val
}

// Reset returns the accumulator to BZ_INITIALISE_CRC (the zero value).
func (c *CRC) Reset() {
	*c = CRC{}
}

// Rotl1XorFold implements the stream-level fold C <- rotl1(C) XOR blockCRC
// used to combine per-block CRCs into the trailer's combined CRC.
func Rotl1XorFold(combined, blockCRC uint32) uint32 {
	return (combined<<1 | combined>>31) ^ blockCRC
}

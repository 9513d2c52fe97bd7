// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package mtfrle2 implements bzip2's second pipeline stage: a move-to-front
// transform of the BWT output column, with runs of rank-zero (the most
// recently used byte repeating) collapsed by a bijective base-2 run-length
// code using two meta-symbols, RUNA and RUNB. The forward side is grounded
// on bzlib's compress.c generateMoveToFrontValues; the inverse side mirrors
// the decode loop inlined into the reference Go decoder's block reader.
package mtfrle2

// RUNA and RUNB are the two meta-symbols bzip2's Huffman alphabet reserves
// for run-length-encoded zero ranks, always symbols 0 and 1.
const (
	RUNA = 0
	RUNB = 1
)

// Encode performs the move-to-front transform of column (the BWT output
// bytes) against the alphabet used (the distinct byte values present in
// column, in ascending order — the same ordering the block header's
// symbol-map bitmap reconstructs on decode), combined with RUNA/RUNB
// run-length coding of zero ranks. It returns the MTF/RLE2 symbol stream,
// terminated with the end-of-block symbol (len(used)+1), and the
// per-symbol frequency table needed to build the block's Huffman tables.
func Encode(column []byte, used []byte) (mtfv []uint16, freq []uint32) {
	n := len(used)
	eob := uint16(n + 1)
	freq = make([]uint32, n+2)

	var rank [256]byte
	for i, b := range used {
		rank[b] = byte(i)
	}

	yy := make([]byte, n)
	for i := range yy {
		yy[i] = byte(i)
	}

	zPend := 0
	flushRun := func() {
		if zPend == 0 {
			return
		}
		zPend--
		for {
			if zPend&1 != 0 {
				mtfv = append(mtfv, RUNB)
				freq[RUNB]++
			} else {
				mtfv = append(mtfv, RUNA)
				freq[RUNA]++
			}
			if zPend < 2 {
				break
			}
			zPend = (zPend - 2) / 2
		}
		zPend = 0
	}

	for _, b := range column {
		r := rank[b]
		if yy[0] == r {
			zPend++
			continue
		}
		flushRun()

		j := 0
		for yy[j] != r {
			j++
		}
		copy(yy[1:j+1], yy[0:j])
		yy[0] = r

		mtfv = append(mtfv, uint16(j+1))
		freq[j+1]++
	}
	flushRun()

	mtfv = append(mtfv, eob)
	freq[eob]++
	return mtfv, freq
}

// Decoder expands a stream of Huffman-decoded MTF/RLE2 symbols back into
// the BWT output column, one symbol at a time, so that it can be driven
// directly from a resumable Huffman decode loop. Run-length and
// move-to-front state persist across calls: Decoder has no notion of
// "call boundaries" at all, only of the symbol sequence.
type Decoder struct {
	yy          []byte
	repeat      uint32
	repeatPower uint32
}

// NewDecoder creates a decoder whose move-to-front list starts as used,
// the same ascending alphabet the encoder was given.
func NewDecoder(used []byte) *Decoder {
	d := &Decoder{}
	d.Reset(used)
	return d
}

// Reset reinitialises the decoder for a new block using alphabet used.
func (d *Decoder) Reset(used []byte) {
	if cap(d.yy) < len(used) {
		d.yy = make([]byte, len(used))
	}
	d.yy = d.yy[:len(used)]
	copy(d.yy, used)
	d.repeat = 0
	d.repeatPower = 0
}

// First returns the byte currently at the front of the move-to-front
// list: the value a RUNA/RUNB-encoded run repeats.
func (d *Decoder) First() byte {
	return d.yy[0]
}

// AccumulateRun folds one RUNA (v=0) or RUNB (v=1) meta-symbol into the
// pending run length. The run is not complete until FlushRun is called;
// MaxRun bounds it the same way the reference decoder does, to catch
// corrupt streams before repeat overflows.
const MaxRun = 2 * 1024 * 1024

func (d *Decoder) AccumulateRun(v int) (tooLarge bool) {
	if d.repeat == 0 {
		d.repeatPower = 1
	}
	d.repeat += d.repeatPower << uint(v)
	d.repeatPower <<= 1
	return d.repeat > MaxRun
}

// PendingRun reports whether a run is currently being accumulated.
func (d *Decoder) PendingRun() bool {
	return d.repeat > 0
}

// FlushRun returns the accumulated run length and clears it. The caller is
// expected to append that many copies of First() to the output and update
// its own per-symbol counters accordingly, then advance past the run.
func (d *Decoder) FlushRun() uint32 {
	r := d.repeat
	d.repeat = 0
	d.repeatPower = 0
	return r
}

// Decode moves the list entry at position rank (0-based, into the
// move-to-front list excluding the implicit zero rank already handled by
// RUNA/RUNB) to the front and returns its value: the inverse of one
// non-run Encode step.
func (d *Decoder) Decode(rank int) byte {
	b := d.yy[rank]
	copy(d.yy[1:rank+1], d.yy[0:rank])
	d.yy[0] = b
	return b
}

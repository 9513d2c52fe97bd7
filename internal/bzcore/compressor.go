// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.
package bzcore

import (
	"github.com/cosnicolaou/bzcodec/internal/bitio"
	"github.com/cosnicolaou/bzcodec/internal/bwt"
	"github.com/cosnicolaou/bzcodec/internal/crc32bz"
	"github.com/cosnicolaou/bzcodec/internal/huffman"
	"github.com/cosnicolaou/bzcodec/internal/mtfrle2"
	"github.com/cosnicolaou/bzcodec/internal/rle1"
)

type compressMode int

const (
	csIdle compressMode = iota
	csRunning
	csFlushing
	csFinishing
)

// Compressor is the C7 driver: it accumulates RLE-1 output into a block
// workspace and, at block boundaries or on Flush/Finish, runs the
// BWT/MTF-RLE2/Huffman pipeline and packs the result through a bitio.Writer
// into an internal pending-output queue that Process drains into the
// caller's buffer across as many calls as it takes.
type Compressor struct {
	level      int
	workFactor int
	mode       compressMode

	blockCapacity int
	rleEnc        rle1.Encoder
	block         rle1.Block
	inUse         [256]bool
	blockCRC      crc32bz.CRC

	blockNo       int
	headerWritten bool
	combinedCRC   uint32

	availInExpect int
	haveExpect    bool

	pending    []byte
	pendingPos int

	bw bitio.Writer
}

// NewCompressor creates a compressor for the given block-size level
// (1..9) and sort work factor (0 meaning the default of 30).
func NewCompressor(level, workFactor int) (*Compressor, error) {
	if level < 1 || level > 9 {
		return nil, newError(ParamError, "block size level must be 1..9")
	}
	if workFactor < 0 || workFactor > 250 {
		return nil, newError(ParamError, "work factor must be 0..250")
	}
	if workFactor == 0 {
		workFactor = 30
	}
	c := &Compressor{
		level:         level,
		workFactor:    workFactor,
		mode:          csRunning,
		blockCapacity: 100000*level - 19,
	}
	c.block.InUse = &c.inUse
	c.block.CRC = &c.blockCRC
	return c, nil
}

func (c *Compressor) drain(out []byte) int {
	n := copy(out, c.pending[c.pendingPos:])
	c.pendingPos += n
	if c.pendingPos == len(c.pending) {
		c.pending = c.pending[:0]
		c.pendingPos = 0
	}
	return n
}

func (c *Compressor) pendingEmpty() bool {
	return c.pendingPos == len(c.pending)
}

func (c *Compressor) emitByte(b byte) {
	c.bw.WriteBits(8, uint32(b))
	for c.bw.HasWholeByte() {
		c.pending = append(c.pending, c.bw.Drain())
	}
}

func (c *Compressor) emitBits(n uint, v uint32) {
	if n > 24 {
		// bitio.Writer takes at most 24 bits per call.
		c.emitBits(n-16, v>>16)
		c.emitBits(16, v&0xffff)
		return
	}
	c.bw.WriteBits(n, v)
	for c.bw.HasWholeByte() {
		c.pending = append(c.pending, c.bw.Drain())
	}
}

func (c *Compressor) emitHeader() {
	c.emitByte(hdrB)
	c.emitByte(hdrZ)
	c.emitByte(hdrh)
	c.emitByte(byte(hdr0 + c.level))
	c.headerWritten = true
}

// finalizeBlock flushes the RLE-1 carry, and if the block has any data,
// runs BWT -> MTF/RLE2 -> Huffman and packs the result, emitting the
// stream header first if this is the first block.
func (c *Compressor) finalizeBlock() {
	c.rleEnc.Flush(&c.block)

	if !c.headerWritten {
		c.emitHeader()
	}

	if len(c.block.Data) == 0 {
		return
	}
	c.blockNo++

	column, origPtr := bwt.Transform(c.block.Data)

	var used []byte
	for i := 0; i < 256; i++ {
		if c.inUse[i] {
			used = append(used, byte(i))
		}
	}

	mtfv, freq := mtfrle2.Encode(column, used)
	plan := huffman.Select(mtfv, freq, len(used)+2)

	blockCRC := c.blockCRC.Value()
	c.combinedCRC = crc32bz.Rotl1XorFold(c.combinedCRC, blockCRC)

	c.emitByte(0x31)
	c.emitByte(0x41)
	c.emitByte(0x59)
	c.emitByte(0x26)
	c.emitByte(0x53)
	c.emitByte(0x59)
	c.emitBits(32, blockCRC)
	c.emitBits(1, 0) // randomised: never produced by this encoder
	c.emitBits(24, origPtr)

	c.emitMapping(used)
	c.emitSelectorsAndTables(plan)
	c.emitSymbols(mtfv, plan)

	c.block = rle1.Block{InUse: &c.inUse, CRC: &c.blockCRC}
	c.inUse = [256]bool{}
	c.blockCRC.Reset()
}

func (c *Compressor) emitMapping(used []byte) {
	var inUse16 [16]bool
	for _, b := range used {
		inUse16[b/16] = true
	}
	for i := 0; i < 16; i++ {
		if inUse16[i] {
			c.emitBits(1, 1)
		} else {
			c.emitBits(1, 0)
		}
	}
	usedSet := make(map[byte]bool, len(used))
	for _, b := range used {
		usedSet[b] = true
	}
	for i := 0; i < 16; i++ {
		if !inUse16[i] {
			continue
		}
		for j := 0; j < 16; j++ {
			if usedSet[byte(i*16+j)] {
				c.emitBits(1, 1)
			} else {
				c.emitBits(1, 0)
			}
		}
	}
}

func (c *Compressor) emitSelectorsAndTables(plan huffman.Plan) {
	nGroups := len(plan.Tables)
	c.emitBits(3, uint32(nGroups))
	c.emitBits(15, uint32(len(plan.Selectors)))

	mtf := huffman.NewSelectorMTF(nGroups)
	for _, sel := range plan.Selectors {
		j := mtf.Encode(sel)
		for i := 0; i < j; i++ {
			c.emitBits(1, 1)
		}
		c.emitBits(1, 0)
	}

	for _, t := range plan.Tables {
		curr := int(t.Lengths[0])
		c.emitBits(5, uint32(curr))
		for _, l := range t.Lengths {
			for curr < int(l) {
				c.emitBits(2, 2)
				curr++
			}
			for curr > int(l) {
				c.emitBits(2, 3)
				curr--
			}
			c.emitBits(1, 0)
		}
	}
}

func (c *Compressor) emitSymbols(mtfv []uint16, plan huffman.Plan) {
	gs := 0
	selCtr := 0
	for gs < len(mtfv) {
		ge := gs + huffman.GroupSize - 1
		if ge >= len(mtfv) {
			ge = len(mtfv) - 1
		}
		tbl := &plan.Tables[plan.Selectors[selCtr]]
		for i := gs; i <= ge; i++ {
			v := mtfv[i]
			c.emitBits(uint(tbl.Lengths[v]), uint32(tbl.Codes[v]))
		}
		gs = ge + 1
		selCtr++
	}
}

func (c *Compressor) emitTrailer() {
	if !c.headerWritten {
		c.emitHeader()
	}
	c.emitByte(0x17)
	c.emitByte(0x72)
	c.emitByte(0x45)
	c.emitByte(0x38)
	c.emitByte(0x50)
	c.emitByte(0x90)
	c.emitBits(32, c.combinedCRC)
	if b, ok := c.bw.FinishPending(); ok {
		c.pending = append(c.pending, b)
	}
}

// Process feeds in into the compressor and drains ready output into out,
// per the mode machine in SPEC_FULL.md/spec.md §4.7. It returns how much
// of in was consumed, how much of out was filled, and the resulting code.
func (c *Compressor) Process(in []byte, out []byte, action Action) (inUsed, outUsed int, code Code, err error) {
	switch c.mode {
	case csIdle:
		return 0, 0, 0, newError(SequenceError, "Process called after End or before Init")

	case csFlushing, csFinishing:
		if c.haveExpect && len(in) != c.availInExpect {
			return 0, 0, 0, newError(SequenceError, "avail_in changed while flushing/finishing")
		}
		outUsed = c.drain(out)
		if !c.pendingEmpty() {
			if c.mode == csFlushing {
				return 0, outUsed, FlushOK, nil
			}
			return 0, outUsed, FinishOK, nil
		}
		if c.mode == csFlushing {
			c.mode = csRunning
			c.haveExpect = false
			return 0, outUsed, RunOK, nil
		}
		c.mode = csIdle
		c.haveExpect = false
		return 0, outUsed, StreamEnd, nil
	}

	// csRunning
	switch action {
	case Run:
		for inUsed < len(in) {
			c.rleEnc.Append(&c.block, in[inUsed])
			inUsed++
			if len(c.block.Data) >= c.blockCapacity {
				c.finalizeBlock()
				n := c.drain(out[outUsed:])
				outUsed += n
				if !c.pendingEmpty() {
					return inUsed, outUsed, RunOK, nil
				}
			}
		}
		outUsed += c.drain(out[outUsed:])
		return inUsed, outUsed, RunOK, nil

	case Flush:
		inUsed = len(in)
		for _, b := range in {
			c.rleEnc.Append(&c.block, b)
		}
		c.finalizeBlock()
		outUsed = c.drain(out)
		if !c.pendingEmpty() {
			c.mode = csFlushing
			c.availInExpect = 0
			c.haveExpect = true
			return inUsed, outUsed, FlushOK, nil
		}
		return inUsed, outUsed, RunOK, nil

	case Finish:
		inUsed = len(in)
		for _, b := range in {
			c.rleEnc.Append(&c.block, b)
		}
		c.finalizeBlock()
		c.emitTrailer()
		outUsed = c.drain(out)
		if !c.pendingEmpty() {
			c.mode = csFinishing
			c.availInExpect = 0
			c.haveExpect = true
			return inUsed, outUsed, FinishOK, nil
		}
		c.mode = csIdle
		return inUsed, outUsed, StreamEnd, nil
	}

	return 0, 0, 0, newError(ParamError, "unknown action")
}

// End releases the compressor's workspace. After End, Process returns
// SequenceError.
func (c *Compressor) End() {
	c.mode = csIdle
	c.pending = nil
}

// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.
package huffman

// MaxGroups is the largest number of Huffman tables a block may use.
const MaxGroups = 6

// GroupSize is the number of MTF/RLE2 symbols coded by a single table
// selector entry before the selector may switch tables.
const GroupSize = 50

// RefineIters is the number of times the encoder recomputes each table's
// code lengths from the frequencies of the symbols it was actually chosen
// to encode, matching bzip2's BZ_N_ITERS.
const RefineIters = 4

const (
	lesserICost  = 0
	greaterICost = 15
)

// ChooseNumGroups picks the number of Huffman tables for a block from its
// MTF/RLE2 symbol count, following bzlib's fixed breakpoints: more
// symbols justify the bit-overhead of extra tables and selectors.
func ChooseNumGroups(nMTF int) int {
	switch {
	case nMTF < 200:
		return 2
	case nMTF < 600:
		return 3
	case nMTF < 1200:
		return 4
	case nMTF < 2400:
		return 5
	default:
		return 6
	}
}

// Table is one block's Huffman table: code lengths and canonical codes for
// every symbol in the alphabet, ready to be transmitted or used to encode
// symbols.
type Table struct {
	Lengths        []byte
	Codes          []int32
	MinLen, MaxLen int
}

func (t *Table) assign() {
	t.MinLen, t.MaxLen = MinMaxLen(t.Lengths)
	t.Codes = AssignCodes(t.Lengths, t.MinLen, t.MaxLen)
}

// Plan is the result of selecting and refining a block's Huffman tables:
// one Table per group, and one selector (table index) per GroupSize-sized
// run of mtfv.
type Plan struct {
	Tables    []Table
	Selectors []byte
}

// initialPartition assigns each group an even share of total symbol
// frequency, in alphabet order, the same partitioning
// sendMoveToFrontValues uses to seed its first refinement iteration.
func initialPartition(freq []uint32, alphaSize, nGroups int) [][]byte {
	lens := make([][]byte, nGroups)
	for t := range lens {
		lens[t] = make([]byte, alphaSize)
		for v := range lens[t] {
			lens[t][v] = greaterICost
		}
	}

	remF := 0
	for _, f := range freq {
		remF += int(f)
	}
	nPart := nGroups
	gs := 0
	for nPart > 0 {
		tFreq := remF / nPart
		ge := gs - 1
		aFreq := 0
		for aFreq < tFreq && ge < alphaSize-1 {
			ge++
			aFreq += int(freq[ge])
		}

		if ge > gs && nPart != nGroups && nPart != 1 && (nGroups-nPart)%2 == 1 {
			aFreq -= int(freq[ge])
			ge--
		}

		for v := 0; v < alphaSize; v++ {
			if v >= gs && v <= ge {
				lens[nPart-1][v] = lesserICost
			} else {
				lens[nPart-1][v] = greaterICost
			}
		}

		nPart--
		gs = ge + 1
		remF -= aFreq
	}
	return lens
}

// Select builds a block's Huffman table plan from its MTF/RLE2 symbol
// stream (mtfv) and per-symbol frequency table (freq), both already
// computed by package mtfrle2. alphaSize is len(freq) (the in-use alphabet
// plus RUNA/RUNB/EOB).
func Select(mtfv []uint16, freq []uint32, alphaSize int) Plan {
	nGroups := ChooseNumGroups(len(mtfv))
	lens := initialPartition(freq, alphaSize, nGroups)

	var selectors []byte
	for iter := 0; iter < RefineIters; iter++ {
		rfreq := make([][]uint32, nGroups)
		for t := range rfreq {
			rfreq[t] = make([]uint32, alphaSize)
		}

		selectors = selectors[:0]
		gs := 0
		for gs < len(mtfv) {
			ge := gs + GroupSize - 1
			if ge >= len(mtfv) {
				ge = len(mtfv) - 1
			}

			cost := make([]int, nGroups)
			for i := gs; i <= ge; i++ {
				icv := mtfv[i]
				for t := 0; t < nGroups; t++ {
					cost[t] += int(lens[t][icv])
				}
			}

			bt, bc := 0, cost[0]
			for t := 1; t < nGroups; t++ {
				if cost[t] < bc {
					bc = cost[t]
					bt = t
				}
			}
			selectors = append(selectors, byte(bt))

			for i := gs; i <= ge; i++ {
				rfreq[bt][mtfv[i]]++
			}
			gs = ge + 1
		}

		for t := 0; t < nGroups; t++ {
			lens[t] = MakeCodeLengths(rfreq[t], alphaSize, EncodeMaxLen)
		}
	}

	tables := make([]Table, nGroups)
	for t := range tables {
		tables[t] = Table{Lengths: lens[t]}
		tables[t].assign()
	}

	out := make([]byte, len(selectors))
	copy(out, selectors)
	return Plan{Tables: tables, Selectors: out}
}

// SelectorMTF performs (and, symmetrically, undoes) the move-to-front
// transform bzip2 applies to the per-group table selector sequence itself
// before transmitting it as unary codes.
type SelectorMTF struct {
	pos []byte
}

// NewSelectorMTF creates a selector MTF list for nGroups tables, seeded in
// ascending order as both the encoder and decoder must.
func NewSelectorMTF(nGroups int) *SelectorMTF {
	pos := make([]byte, nGroups)
	for i := range pos {
		pos[i] = byte(i)
	}
	return &SelectorMTF{pos: pos}
}

// Encode moves table to the front of the list and returns its previous
// position (the unary code length to transmit).
func (m *SelectorMTF) Encode(table byte) int {
	j := 0
	for m.pos[j] != table {
		j++
	}
	tmp := m.pos[j]
	copy(m.pos[1:j+1], m.pos[0:j])
	m.pos[0] = tmp
	return j
}

// Decode is the inverse of Encode: given a unary code length j, returns
// the table index it names and moves it to the front.
func (m *SelectorMTF) Decode(j int) byte {
	tmp := m.pos[j]
	copy(m.pos[1:j+1], m.pos[0:j])
	m.pos[0] = tmp
	return tmp
}

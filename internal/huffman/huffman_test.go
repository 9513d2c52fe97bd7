// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.
package huffman

import (
	"math/rand"
	"testing"

	"github.com/cosnicolaou/bzcodec/internal/bitio"
)

func encodeSymbols(t *testing.T, table *Table, symbols []int) []byte {
	t.Helper()
	var w bitio.Writer
	var out []byte
	for _, s := range symbols {
		w.WriteBits(uint(table.Lengths[s]), uint32(table.Codes[s]))
		for w.HasWholeByte() {
			out = append(out, w.Drain())
		}
	}
	if b, ok := w.FinishPending(); ok {
		out = append(out, b)
	}
	return out
}

func decodeSymbols(t *testing.T, dt *DecodeTable, encoded []byte, n int) []int32 {
	t.Helper()
	var r bitio.Reader
	pos := 0
	var dec Decoder
	var got []int32
	for len(got) < n {
		sym, ok := dec.TryDecode(&r, dt)
		if !ok {
			if pos >= len(encoded) {
				t.Fatalf("ran out of input before decoding %d symbols (got %d)", n, len(got))
			}
			r.Feed(encoded[pos])
			pos++
			continue
		}
		if sym < 0 {
			t.Fatalf("corrupt code at symbol %d", len(got))
		}
		got = append(got, sym)
	}
	return got
}

func TestLengthsAssignDecodeRoundtrip(t *testing.T) {
	freq := []uint32{100, 1, 1, 50, 0, 20, 5, 5}
	lens := MakeCodeLengths(freq, len(freq), EncodeMaxLen)
	for _, l := range lens {
		if int(l) > EncodeMaxLen || l == 0 {
			t.Fatalf("length out of range: %d", l)
		}
	}
	minLen, maxLen := MinMaxLen(lens)
	codes := AssignCodes(lens, minLen, maxLen)
	tbl := Table{Lengths: lens, Codes: codes, MinLen: minLen, MaxLen: maxLen}

	var dt DecodeTable
	dt.Build(lens)

	symbols := []int{0, 3, 5, 0, 0, 7, 6, 1, 2, 3, 0}
	enc := encodeSymbols(t, &tbl, symbols)
	got := decodeSymbols(t, &dt, enc, len(symbols))
	for i, s := range symbols {
		if int(got[i]) != s {
			t.Fatalf("symbol %d: got %d want %d", i, got[i], s)
		}
	}
}

func TestLengthsAreUniquelyDecodable(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for trial := 0; trial < 30; trial++ {
		n := 2 + rng.Intn(250)
		freq := make([]uint32, n)
		for i := range freq {
			freq[i] = uint32(rng.Intn(500))
		}
		lens := MakeCodeLengths(freq, n, EncodeMaxLen)
		minLen, maxLen := MinMaxLen(lens)
		codes := AssignCodes(lens, minLen, maxLen)
		tbl := Table{Lengths: lens, Codes: codes}

		var dt DecodeTable
		dt.Build(lens)

		symbols := make([]int, 200)
		for i := range symbols {
			symbols[i] = rng.Intn(n)
		}
		enc := encodeSymbols(t, &tbl, symbols)
		got := decodeSymbols(t, &dt, enc, len(symbols))
		for i, s := range symbols {
			if int(got[i]) != s {
				t.Fatalf("trial %d symbol %d: got %d want %d", trial, i, got[i], s)
			}
		}
	}
}

func TestSelectProducesUsableTables(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	alphaSize := 20
	mtfv := make([]uint16, 3000)
	freq := make([]uint32, alphaSize)
	for i := range mtfv {
		v := uint16(rng.Intn(alphaSize))
		mtfv[i] = v
		freq[v]++
	}

	plan := Select(mtfv, freq, alphaSize)
	if len(plan.Tables) < 2 || len(plan.Tables) > MaxGroups {
		t.Fatalf("unexpected group count: %d", len(plan.Tables))
	}
	wantSelectors := (len(mtfv) + GroupSize - 1) / GroupSize
	if len(plan.Selectors) != wantSelectors {
		t.Fatalf("got %d selectors want %d", len(plan.Selectors), wantSelectors)
	}
	for _, sel := range plan.Selectors {
		if int(sel) >= len(plan.Tables) {
			t.Fatalf("selector %d out of range for %d tables", sel, len(plan.Tables))
		}
	}
}

func TestSelectorMTFRoundtrip(t *testing.T) {
	enc := NewSelectorMTF(6)
	dec := NewSelectorMTF(6)
	tables := []byte{3, 3, 0, 5, 5, 5, 1, 4}
	for _, tb := range tables {
		j := enc.Encode(tb)
		got := dec.Decode(j)
		if got != tb {
			t.Fatalf("got %d want %d", got, tb)
		}
	}
}

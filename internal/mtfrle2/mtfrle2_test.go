// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.
package mtfrle2

import (
	"bytes"
	"math/rand"
	"testing"
)

func usedAlphabet(column []byte) []byte {
	var seen [256]bool
	for _, b := range column {
		seen[b] = true
	}
	var used []byte
	for i := 0; i < 256; i++ {
		if seen[i] {
			used = append(used, byte(i))
		}
	}
	return used
}

// decodeAll drives Decoder exactly the way bzcore's Huffman decode loop
// would: one symbol at a time, expanding runs and literal ranks.
func decodeAll(t *testing.T, mtfv []uint16, used []byte) []byte {
	t.Helper()
	dec := NewDecoder(used)
	eob := uint16(len(used) + 1)
	var out []byte
	for _, v := range mtfv {
		if v == eob {
			break
		}
		if v < 2 {
			if dec.AccumulateRun(int(v)) {
				t.Fatalf("run too large")
			}
			continue
		}
		if dec.PendingRun() {
			n := dec.FlushRun()
			b := dec.First()
			for i := uint32(0); i < n; i++ {
				out = append(out, b)
			}
		}
		out = append(out, dec.Decode(int(v-1)))
	}
	if dec.PendingRun() {
		n := dec.FlushRun()
		b := dec.First()
		for i := uint32(0); i < n; i++ {
			out = append(out, b)
		}
	}
	return out
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	cases := [][]byte{
		[]byte("a"),
		[]byte("banana"),
		bytes.Repeat([]byte{'z'}, 1000),
		[]byte("mississippi river systems are interesting"),
	}
	for _, tc := range cases {
		used := usedAlphabet(tc)
		mtfv, freq := Encode(tc, used)
		if len(freq) != len(used)+2 {
			t.Fatalf("freq table wrong size: got %d want %d", len(freq), len(used)+2)
		}
		got := decodeAll(t, mtfv, used)
		if !bytes.Equal(got, tc) {
			t.Fatalf("roundtrip: got %q want %q", got, tc)
		}
	}
}

func TestEncodeDecodeRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		n := rng.Intn(2000)
		alphaSize := 1 + rng.Intn(10)
		data := make([]byte, n)
		for i := range data {
			data[i] = byte('a' + rng.Intn(alphaSize))
		}
		used := usedAlphabet(data)
		mtfv, _ := Encode(data, used)
		got := decodeAll(t, mtfv, used)
		if !bytes.Equal(got, data) {
			t.Fatalf("trial %d: roundtrip mismatch, n=%d alphaSize=%d", trial, n, alphaSize)
		}
	}
}

func TestRunLengthCollapsesLongRepeats(t *testing.T) {
	data := bytes.Repeat([]byte{'x'}, 5000)
	used := usedAlphabet(data)
	mtfv, _ := Encode(data, used)
	// a single-symbol block should collapse almost entirely into RUNA/RUNB
	// meta-symbols plus the trailing EOB symbol.
	if len(mtfv) > 40 {
		t.Fatalf("expected heavy run-length collapse, got %d symbols for %d bytes", len(mtfv), len(data))
	}
}

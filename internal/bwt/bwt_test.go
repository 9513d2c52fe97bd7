// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.
package bwt

import (
	"bytes"
	"math/rand"
	"testing"
)

func countOf(data []byte) *[256]uint32 {
	var c [256]uint32
	for _, b := range data {
		c[b]++
	}
	return &c
}

func TestForwardInverseFastRoundtrip(t *testing.T) {
	cases := [][]byte{
		[]byte("a"),
		[]byte("banana"),
		[]byte("mississippi"),
		bytes.Repeat([]byte("abcabcabc"), 50),
		bytes.Repeat([]byte{'q'}, 500),
	}
	for _, tc := range cases {
		column, origPtr := Transform(tc)
		count := countOf(tc)
		fi := NewFast(len(tc))
		fi.Build(column, count, origPtr)
		got := make([]byte, len(tc))
		for i := range got {
			got[i] = fi.Next()
		}
		if !bytes.Equal(got, tc) {
			t.Fatalf("fast roundtrip: got %q want %q", got, tc)
		}
	}
}

func TestForwardInverseSmallRoundtrip(t *testing.T) {
	cases := [][]byte{
		[]byte("a"),
		[]byte("banana"),
		[]byte("mississippi"),
		bytes.Repeat([]byte("abcabcabc"), 50),
	}
	for _, tc := range cases {
		column, origPtr := Transform(tc)
		count := countOf(tc)
		si := NewSmall(len(tc))
		si.Build(column, count, origPtr)
		got := make([]byte, len(tc))
		for i := range got {
			got[i] = si.Next()
		}
		if !bytes.Equal(got, tc) {
			t.Fatalf("small roundtrip: got %q want %q", got, tc)
		}
	}
}

func TestFastAndSmallAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	data := make([]byte, 4000)
	for i := range data {
		data[i] = byte(rng.Intn(6) + 'a')
	}
	column, origPtr := Transform(data)
	count := countOf(data)

	fi := NewFast(len(data))
	fi.Build(column, count, origPtr)
	si := NewSmall(len(data))
	si.Build(column, count, origPtr)

	for i := range data {
		fb, sb := fi.Next(), si.Next()
		if fb != sb || fb != data[i] {
			t.Fatalf("at %d: fast=%q small=%q want=%q", i, fb, sb, data[i])
		}
	}
}

func TestDerandomiserMatchesInitialMask(t *testing.T) {
	var d Derandomiser
	d.Reset()
	// The first mask bit comes from Rand512[0]-1 == 618 countdown,
	// so the very first few bits must all be zero for this table.
	for i := 0; i < 10; i++ {
		if m := d.Mask(); m != 0 {
			t.Fatalf("unexpected early mask bit at %d: %d", i, m)
		}
	}
}

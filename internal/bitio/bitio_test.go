// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.
package bitio

import (
	"math/rand"
	"testing"
)

func TestWriterReaderRoundtrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	type field struct {
		n uint
		v uint32
	}
	var fields []field
	var w Writer
	var out []byte
	for i := 0; i < 2000; i++ {
		n := uint(1 + rng.Intn(24))
		v := uint32(rng.Int63()) & ((1 << n) - 1)
		fields = append(fields, field{n, v})
		w.WriteBits(n, v)
		for w.HasWholeByte() {
			out = append(out, w.Drain())
		}
	}
	if b, ok := w.FinishPending(); ok {
		out = append(out, b)
	}

	var r Reader
	pos := 0
	feedOne := func() bool {
		if pos >= len(out) {
			return false
		}
		r.Feed(out[pos])
		pos++
		return true
	}
	for _, f := range fields {
		for {
			v, ok := r.TryReadBits(f.n)
			if ok {
				if v != f.v {
					t.Fatalf("got %x want %x", v, f.v)
				}
				break
			}
			if !feedOne() {
				t.Fatalf("ran out of input mid-field")
			}
		}
	}
}

func TestWriterByteAlignment(t *testing.T) {
	var w Writer
	w.WriteBits(3, 0b101)
	w.WriteBits(5, 0b11001)
	if !w.HasWholeByte() {
		t.Fatalf("expected a whole byte after 8 bits")
	}
	if got, want := w.Drain(), byte(0b10111001); got != want {
		t.Fatalf("got %08b want %08b", got, want)
	}
	w.WriteBits(3, 0b110)
	if w.HasWholeByte() {
		t.Fatalf("did not expect a whole byte yet")
	}
	b, ok := w.FinishPending()
	if !ok {
		t.Fatalf("expected pending bits")
	}
	if got, want := b, byte(0b11000000); got != want {
		t.Fatalf("got %08b want %08b", got, want)
	}
}

func TestReaderSuspendsCleanly(t *testing.T) {
	var r Reader
	if _, ok := r.TryReadBits(9); ok {
		t.Fatalf("expected suspension with no bytes fed")
	}
	r.Feed(0xff)
	if _, ok := r.TryReadBits(9); ok {
		t.Fatalf("expected suspension with only 8 bits live")
	}
	if r.LiveBits() != 8 {
		t.Fatalf("Feed must not lose bits across a failed read: got %d", r.LiveBits())
	}
	r.Feed(0x00)
	v, ok := r.TryReadBits(9)
	if !ok || v != 0x1fe {
		t.Fatalf("got %x, %v", v, ok)
	}
}

func Test48BitMagic(t *testing.T) {
	var w Writer
	magic := uint64(0x314159265359)
	var out []byte
	for i := 0; i < 6; i++ {
		w.WriteBits(8, uint32(magic>>(40-8*i))&0xff)
		for w.HasWholeByte() {
			out = append(out, w.Drain())
		}
	}
	var r Reader
	for _, b := range out {
		r.Feed(b)
	}
	got, ok := r.TryReadBits64(48)
	if !ok || got != magic {
		t.Fatalf("got %x, %v, want %x", got, ok, magic)
	}
}

// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.
package bzcore

import (
	"bytes"
	"math/rand"
	"testing"
)

// compressAll runs data through a Compressor in chunkSize-sized feeds,
// mimicking a caller that may not have the whole input available at once.
func compressAll(t *testing.T, data []byte, level int, chunkSize int) []byte {
	t.Helper()
	c, err := NewCompressor(level, 0)
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	defer c.End()

	var out bytes.Buffer
	buf := make([]byte, 4096)

	pos := 0
	for pos < len(data) {
		end := pos + chunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[pos:end]
		for {
			n, m, _, err := c.Process(chunk, buf, Run)
			if err != nil {
				t.Fatalf("Process(Run): %v", err)
			}
			out.Write(buf[:m])
			chunk = chunk[n:]
			if len(chunk) == 0 {
				break
			}
		}
		pos = end
	}

	for {
		_, m, code, err := c.Process(nil, buf, Finish)
		if err != nil {
			t.Fatalf("Process(Finish): %v", err)
		}
		out.Write(buf[:m])
		if code == StreamEnd {
			break
		}
	}
	return out.Bytes()
}

// decompressAll runs a compressed stream through a Decompressor, feeding
// inChunk bytes of input and draining into outChunk-sized output buffers
// each Process call, to exercise arbitrary streaming granularities.
func decompressAll(t *testing.T, data []byte, small bool, inChunk, outChunk int) []byte {
	t.Helper()
	d := NewDecompressor(small)

	var out bytes.Buffer
	buf := make([]byte, outChunk)

	pos := 0
	for {
		var feed []byte
		if pos < len(data) {
			end := pos + inChunk
			if end > len(data) {
				end = len(data)
			}
			feed = data[pos:end]
		}
		n, m, code, err := d.Process(feed, buf)
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		out.Write(buf[:m])
		pos += n
		if code == StreamEnd {
			break
		}
		if n == 0 && m == 0 && pos >= len(data) {
			t.Fatalf("decompressor stalled with no more input at pos %d", pos)
		}
	}
	return out.Bytes()
}

func roundtrip(t *testing.T, data []byte, level int, small bool, inChunk, outChunk, compChunk int) {
	t.Helper()
	compressed := compressAll(t, data, level, compChunk)
	got := decompressAll(t, compressed, small, inChunk, outChunk)
	if !bytes.Equal(got, data) {
		t.Fatalf("roundtrip mismatch: got %d bytes, want %d bytes", len(got), len(data))
	}
}

func TestRoundtripBasic(t *testing.T) {
	cases := map[string][]byte{
		"empty":        {},
		"single byte":  {'x'},
		"short":        []byte("hello, world"),
		"all same":     bytes.Repeat([]byte{'a'}, 1000),
		"long run":     bytes.Repeat([]byte{'z'}, 1 << 16),
		"alphabet rep": bytes.Repeat([]byte("abcdefghijklmnopqrstuvwxyz"), 500),
	}
	for name, data := range cases {
		for _, small := range []bool{false, true} {
			t.Run(name, func(t *testing.T) {
				roundtrip(t, data, 1, small, 4096, 4096, 4096)
			})
		}
	}
}

func TestRoundtripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	data := make([]byte, 200000)
	rng.Read(data)
	for _, small := range []bool{false, true} {
		roundtrip(t, data, 3, small, 4096, 4096, 65536)
	}
}

func TestRoundtripStreamingChunkSizes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	data := make([]byte, 50000)
	for i := range data {
		data[i] = byte(rng.Intn(6) + 'a')
	}
	compressed := compressAll(t, data, 2, 65536)

	chunkSizes := [][2]int{{1, 1}, {1, 7}, {3, 1}, {17, 999}, {4096, 4096}}
	for _, cs := range chunkSizes {
		got := decompressAll(t, compressed, false, cs[0], cs[1])
		if !bytes.Equal(got, data) {
			t.Fatalf("chunking in=%d out=%d: mismatch", cs[0], cs[1])
		}
	}
}

func TestRoundtripMultipleBlocks(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	data := make([]byte, 350000) // spans multiple 100k-scaled blocks at level 1
	rng.Read(data)
	roundtrip(t, data, 1, false, 8192, 8192, 4096)
}

func TestRoundtripOutputBufferIndependence(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeated many times. ")
	data = bytes.Repeat(data, 200)
	compressed := compressAll(t, data, 1, 4096)

	got1 := decompressAll(t, compressed, false, 1024, 1)
	got2 := decompressAll(t, compressed, false, 37, 4096)
	if !bytes.Equal(got1, data) || !bytes.Equal(got2, data) {
		t.Fatalf("output chunk granularity changed the decoded result")
	}
}

func TestCompressedOutputIsSmallerForCompressibleData(t *testing.T) {
	data := bytes.Repeat([]byte("abababababababab"), 10000)
	compressed := compressAll(t, data, 9, 65536)
	if len(compressed) >= len(data) {
		t.Fatalf("compressed size %d not smaller than input %d", len(compressed), len(data))
	}
}

func TestDecompressRejectsBadMagic(t *testing.T) {
	d := NewDecompressor(false)
	buf := make([]byte, 64)
	_, _, _, err := d.Process([]byte("not a bzip2 stream at all"), buf)
	if err == nil {
		t.Fatalf("expected an error for bad magic")
	}
	var bzErr *Error
	if !asError(err, &bzErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if bzErr.Kind != DataErrorMagic {
		t.Fatalf("got kind %v want DataErrorMagic", bzErr.Kind)
	}
}

func TestDecompressRejectsCorruptedBlockCRC(t *testing.T) {
	data := []byte("corruption should be detected by the block checksum check")
	data = bytes.Repeat(data, 50)
	compressed := compressAll(t, data, 1, 65536)

	// Flip a bit well inside the block payload, after the header/magic.
	corrupted := append([]byte(nil), compressed...)
	idx := len(corrupted) / 2
	corrupted[idx] ^= 0x40

	d := NewDecompressor(false)
	buf := make([]byte, 64)
	pos := 0
	var lastErr error
	for pos < len(corrupted) {
		n, m, code, err := d.Process(corrupted[pos:], buf)
		pos += n
		if err != nil {
			lastErr = err
			break
		}
		if code == StreamEnd {
			break
		}
		if n == 0 && m == 0 {
			break
		}
	}
	if lastErr == nil {
		t.Fatalf("expected corruption to be detected")
	}
}

func TestNewCompressorValidatesParams(t *testing.T) {
	if _, err := NewCompressor(0, 0); err == nil {
		t.Fatalf("expected error for level 0")
	}
	if _, err := NewCompressor(10, 0); err == nil {
		t.Fatalf("expected error for level 10")
	}
	if _, err := NewCompressor(1, 300); err == nil {
		t.Fatalf("expected error for work factor 300")
	}
	if _, err := NewCompressor(9, 30); err != nil {
		t.Fatalf("unexpected error for valid params: %v", err)
	}
}

func asError(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}

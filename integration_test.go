// Copyright 2021 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzcodec_test

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"testing"

	bzcodec "github.com/cosnicolaou/bzcodec"
	"github.com/cosnicolaou/bzcodec/bzip2"
	"github.com/cosnicolaou/bzcodec/internal/bzcore"
)

// buildStream compresses data into a complete, self-contained bzip2 stream
// using the core compressor directly, in chunks to exercise Process's
// resumable buffering the way a real writer would.
func buildStream(t *testing.T, data []byte, level int, chunk int) []byte {
	t.Helper()
	c, err := bzcore.NewCompressor(level, 0)
	if err != nil {
		t.Fatalf("NewCompressor: %v", err)
	}
	var out bytes.Buffer
	buf := make([]byte, 4096)
	pos := 0
	for pos < len(data) {
		end := pos + chunk
		if end > len(data) {
			end = len(data)
		}
		in := data[pos:end]
		for len(in) > 0 {
			n, m, _, err := c.Process(in, buf, bzcore.Run)
			if err != nil {
				t.Fatalf("Process(Run): %v", err)
			}
			in = in[n:]
			out.Write(buf[:m])
		}
		pos = end
	}
	for {
		_, m, code, err := c.Process(nil, buf, bzcore.Finish)
		if err != nil {
			t.Fatalf("Process(Finish): %v", err)
		}
		out.Write(buf[:m])
		if code == bzcore.StreamEnd {
			break
		}
	}
	c.End()
	return out.Bytes()
}

var sampleTexts = [][]byte{
	[]byte(""),
	[]byte("a"),
	[]byte("hello, hello, hello, world world world"),
	bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 500),
}

// TestReaderRoundtrip drives the scanner/parallel decompressor pair that
// NewReader wires together end-to-end against synthetic streams, with no
// external fixtures.
func TestReaderRoundtrip(t *testing.T) {
	for i, want := range sampleTexts {
		want := want
		stream := buildStream(t, want, 1, 17)
		ctx := context.Background()
		rd := bzcodec.NewReader(ctx, bytes.NewReader(stream))
		got, err := ioutil.ReadAll(rd)
		if err != nil {
			t.Fatalf("case %d: ReadAll: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("case %d: got %d bytes, want %d bytes", i, len(got), len(want))
		}
	}
}

// TestScannerFindsBlocks checks that the Scanner discovers every block the
// compressor emitted, the last one flagged EOS.
func TestScannerFindsBlocks(t *testing.T) {
	want := bytes.Repeat([]byte("scanner probe data, "), 20000)
	stream := buildStream(t, want, 1, 4096)

	sc := bzcodec.NewScanner(bytes.NewReader(stream))
	ctx := context.Background()
	var blocks []bzcodec.CompressedBlock
	for sc.Scan(ctx) {
		blocks = append(blocks, sc.Block())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scanner error: %v", err)
	}
	if len(blocks) == 0 {
		t.Fatal("no blocks found")
	}
	if !blocks[len(blocks)-1].EOS {
		t.Fatal("last block not marked EOS")
	}
}

// TestBlockReaderDecodesSingleBlock exercises bzip2.NewBlockReader directly
// on a block the Scanner found, independent of the parallel reassembly path.
func TestBlockReaderDecodesSingleBlock(t *testing.T) {
	want := bytes.Repeat([]byte("isolated block content 0123456789. "), 50)
	stream := buildStream(t, want, 1, len(want))

	sc := bzcodec.NewScanner(bytes.NewReader(stream))
	ctx := context.Background()
	if !sc.Scan(ctx) {
		t.Fatalf("expected at least one block, err: %v", sc.Err())
	}
	block := sc.Block()
	if !block.EOS {
		t.Fatal("only block of a single-block stream not flagged EOS")
	}

	rd := bzip2.NewBlockReader(block.StreamBlockSize, block.Data, block.BitOffset, false)
	got, err := io.ReadAll(rd)
	if err != nil {
		t.Fatalf("BlockReader.Read: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// TestReaderDetectsCorruption ensures a corrupted stream surfaces an error
// through the reader rather than silently truncating output.
func TestReaderDetectsCorruption(t *testing.T) {
	want := bytes.Repeat([]byte("corruption target data "), 2000)
	stream := buildStream(t, want, 1, 4096)
	// Invert every bit of a byte inside the first block's payload.
	stream[20] ^= 0xff

	ctx := context.Background()
	rd := bzcodec.NewReader(ctx, bytes.NewReader(stream))
	_, err := ioutil.ReadAll(rd)
	if err == nil {
		t.Fatal("expected an error decoding corrupted stream")
	}
}

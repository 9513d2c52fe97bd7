// Copyright 2021 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bzcodec_test

import (
	"bytes"
	"io/ioutil"
	"testing"

	bzcodec "github.com/cosnicolaou/bzcodec"
)

func TestCompressBufferRoundtrip(t *testing.T) {
	want := bytes.Repeat([]byte("facade roundtrip content. "), 3000)
	compressed, err := bzcodec.CompressBuffer(nil, want, 9, 0)
	if err != nil {
		t.Fatalf("CompressBuffer: %v", err)
	}
	if len(compressed) >= len(want) {
		t.Fatalf("compressed (%d) not smaller than input (%d)", len(compressed), len(want))
	}
	got, err := bzcodec.DecompressBuffer(nil, compressed, false)
	if err != nil {
		t.Fatalf("DecompressBuffer: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("roundtrip mismatch")
	}
}

func TestWriterAndSingleStreamReaderRoundtrip(t *testing.T) {
	want := bytes.Repeat([]byte("stdio-style wrapper content "), 1000)

	var buf bytes.Buffer
	wr, err := bzcodec.NewWriter(&buf, 3, 0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for i := 0; i < len(want); i += 37 {
		end := i + 37
		if end > len(want) {
			end = len(want)
		}
		if _, err := wr.Write(want[i:end]); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := wr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rd, err := bzcodec.NewSingleStreamReader(&buf, false)
	if err != nil {
		t.Fatalf("NewSingleStreamReader: %v", err)
	}
	got, err := ioutil.ReadAll(rd)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("roundtrip mismatch")
	}
}

func TestDecompressBufferRejectsGarbage(t *testing.T) {
	_, err := bzcodec.DecompressBuffer(nil, []byte("not a bzip2 stream"), false)
	if err == nil {
		t.Fatal("expected an error")
	}
}

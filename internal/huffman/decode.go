// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.
package huffman

import "github.com/cosnicolaou/bzcodec/internal/bitio"

// DecodeTable is the canonical-Huffman decode table bzlib builds with
// BZ2_hbCreateDecodeTables: limit[l] is the largest code value that is l
// bits long, base[l] lets a code value be turned into an index into perm,
// and perm lists symbols in order of (length, symbol value), the order
// AssignCodes hands out codes in. It deliberately does not build a binary
// tree: a length-limited canonical code is fully described by these three
// arrays, and constructing them directly is what the wire format's
// encoder side (package-level AssignCodes) assumes the decoder mirrors.
type DecodeTable struct {
	limit          []int32
	base           []int32
	perm           []int32
	minLen, maxLen int
}

// Build constructs the decode table for the given code lengths.
func (d *DecodeTable) Build(lengths []byte) {
	minLen, maxLen := MinMaxLen(lengths)
	d.minLen, d.maxLen = minLen, maxLen

	d.perm = make([]int32, len(lengths))
	pp := 0
	for i := minLen; i <= maxLen; i++ {
		for j, l := range lengths {
			if int(l) == i {
				d.perm[pp] = int32(j)
				pp++
			}
		}
	}

	d.base = make([]int32, MaxCodeLen+2)
	for _, l := range lengths {
		d.base[l+1]++
	}
	for i := 1; i < len(d.base); i++ {
		d.base[i] += d.base[i-1]
	}

	d.limit = make([]int32, MaxCodeLen+2)
	vec := int32(0)
	for i := minLen; i <= maxLen; i++ {
		vec += d.base[i+1] - d.base[i]
		d.limit[i] = vec - 1
		vec <<= 1
	}
	for i := minLen + 1; i <= maxLen; i++ {
		d.base[i] = ((d.limit[i-1] + 1) << 1) - d.base[i]
	}
}

// Decoder decodes symbols against a DecodeTable one bit at a time, so that
// it can be suspended and resumed at any bit boundary when the underlying
// bitio.Reader runs out of buffered input. The zero value is ready to
// decode the first symbol.
type Decoder struct {
	code   int32
	length int
}

// Reset clears any partially-decoded symbol, for use between blocks or
// after an error.
func (d *Decoder) Reset() {
	d.code = 0
	d.length = 0
}

// TryDecode attempts to decode the next symbol using table, consuming bits
// from r. If r runs out of buffered bits mid-symbol it returns ok=false;
// the Decoder retains the bits already consumed so the same call can be
// retried once r.Feed has been called again. If the bit sequence read so
// far cannot be a prefix of any valid code (a corrupt stream), it returns
// sym=-1, ok=true; the caller should treat that as a structural error.
func (d *Decoder) TryDecode(r *bitio.Reader, table *DecodeTable) (sym int32, ok bool) {
	for {
		if d.length == 0 {
			v, ok := r.TryReadBits(uint(table.minLen))
			if !ok {
				return 0, false
			}
			d.code = int32(v)
			d.length = table.minLen
		} else {
			bit, ok := r.TryReadBits(1)
			if !ok {
				return 0, false
			}
			d.code = (d.code << 1) | int32(bit)
			d.length++
		}

		if d.length > table.maxLen {
			d.length = 0
			return -1, true
		}

		if d.code <= table.limit[d.length] {
			s := table.perm[d.code-table.base[d.length]]
			d.Reset()
			return s, true
		}
	}
}

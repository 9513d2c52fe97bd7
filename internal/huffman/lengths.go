// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package huffman implements bzip2's length-limited, multi-table canonical
// Huffman stage: code-length construction from symbol frequencies, code
// assignment, table selection and iterative refinement for the encoder,
// and the limit/base/perm canonical decode-table scheme plus a
// byte-boundary-agnostic, bit-at-a-time decoder for the decompressor.
// Every algorithm here is grounded on bzlib's huffman.c and the table
// selection logic inlined into compress.c's sendMoveToFrontValues, since
// the wire format fixes these exactly: a tree-shaped decoder (as some Go
// bzip2 implementations use) would desync from a canonical-Huffman
// encoder that orders same-length codes by symbol order.
package huffman

// MaxCodeLen is the longest code length a decoder must be able to parse,
// preserved for compatibility with bzip2 streams older than 1.0.3.
const MaxCodeLen = 23

// EncodeMaxLen is the length ceiling this package's encoder enforces,
// matching bzip2 1.0.3 onward.
const EncodeMaxLen = 17

// MakeCodeLengths builds a set of length-limited (<= maxLen) Huffman code
// lengths for the given symbol frequencies, via the same weighted Huffman
// tree construction as BZ2_hbMakeCodeLengths: a binary min-heap merge with
// an 8-bit depth counter packed into the low byte of each node's 32-bit
// weight, and iterative weight-halving when a resulting code length
// exceeds maxLen.
//
// The packed weight for a merged node is the sum of the two children's
// high 24 bits (their frequency-derived weight), concatenated in the low
// byte with one more than the larger of the two children's low-byte depth
// counters — preventing underflow/overflow of the depth field while still
// preferring, among equal-frequency merges, the shallower subtree.
func MakeCodeLengths(freq []uint32, alphaSize, maxLen int) []byte {
	len := make([]byte, alphaSize)

	heap := make([]int32, alphaSize+2)
	weight := make([]int32, alphaSize*2)
	parent := make([]int32, alphaSize*2)

	for i := 0; i < alphaSize; i++ {
		f := freq[i]
		if f == 0 {
			f = 1
		}
		weight[i+1] = int32(f) << 8
	}

	for {
		nNodes := alphaSize
		nHeap := 0

		heap[0] = 0
		weight[0] = 0
		parent[0] = -2

		siftUp := func(zz int32) {
			tmp := heap[zz]
			for weight[tmp] < weight[heap[zz>>1]] {
				heap[zz] = heap[zz>>1]
				zz >>= 1
			}
			heap[zz] = tmp
		}

		for i := 1; i <= alphaSize; i++ {
			parent[i] = -1
			nHeap++
			heap[nHeap] = int32(i)
			siftUp(int32(nHeap))
		}

		siftDown := func(nHeap int32) {
			zz := int32(1)
			tmp := heap[zz]
			for {
				yy := zz << 1
				if yy > nHeap {
					break
				}
				if yy < nHeap && weight[heap[yy+1]] < weight[heap[yy]] {
					yy++
				}
				if weight[tmp] < weight[heap[yy]] {
					break
				}
				heap[zz] = heap[yy]
				zz = yy
			}
			heap[zz] = tmp
		}

		for nHeap > 1 {
			n1 := heap[1]
			heap[1] = heap[nHeap]
			nHeap--
			siftDown(int32(nHeap))

			n2 := heap[1]
			heap[1] = heap[nHeap]
			nHeap--
			siftDown(int32(nHeap))

			nNodes++
			parent[n1] = int32(nNodes)
			parent[n2] = int32(nNodes)

			w1hi, w1lo := weight[n1]&^0xff, weight[n1]&0xff
			w2hi, w2lo := weight[n2]&^0xff, weight[n2]&0xff
			lo := w1lo
			if w2lo > lo {
				lo = w2lo
			}
			weight[nNodes] = (w1hi + w2hi) | (1 + lo)

			parent[nNodes] = -1
			nHeap++
			heap[nHeap] = int32(nNodes)
			siftUp(int32(nHeap))
		}

		tooLong := false
		for i := 1; i <= alphaSize; i++ {
			j := 0
			k := int32(i)
			for parent[k] >= 0 {
				k = parent[k]
				j++
			}
			len[i-1] = byte(j)
			if j > maxLen {
				tooLong = true
			}
		}

		if !tooLong {
			break
		}

		for i := 1; i <= alphaSize; i++ {
			j := weight[i] >> 8
			j = 1 + j/2
			weight[i] = j << 8
		}
	}

	return len
}

// AssignCodes assigns canonical Huffman codes to lengths, in order of
// increasing length and, within a length, increasing symbol index — the
// BZ2_hbAssignCodes algorithm. minLen/maxLen narrow the scan to the
// lengths actually present.
func AssignCodes(lengths []byte, minLen, maxLen int) []int32 {
	codes := make([]int32, len(lengths))
	vec := int32(0)
	for n := minLen; n <= maxLen; n++ {
		for i, l := range lengths {
			if int(l) == n {
				codes[i] = vec
				vec++
			}
		}
		vec <<= 1
	}
	return codes
}

// MinMaxLen returns the shortest and longest code length present in
// lengths.
func MinMaxLen(lengths []byte) (minLen, maxLen int) {
	minLen, maxLen = 32, 0
	for _, l := range lengths {
		if int(l) > maxLen {
			maxLen = int(l)
		}
		if int(l) < minLen {
			minLen = int(l)
		}
	}
	return minLen, maxLen
}

// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bwt implements the Burrows-Wheeler transform stage of the bzip2
// block pipeline and its inverse. The forward transform is treated as a
// black-box collaborator: only its output contract (the sorted last-column
// permutation plus the origin pointer) is load-bearing for the wire format,
// so the sort itself is an ordinary, idiomatic suffix sort rather than the
// hand-tuned radix/quicksort/fallback hybrid the reference encoder uses.
// The inverse transform, by contrast, is wire-format-critical and is
// grounded directly on the reference decoder's two representations.
package bwt

import "sort"

// MaxBlockSize is bzip2's 900k-byte block ceiling (level 9). Transform
// itself does not check its input against it.
const MaxBlockSize = 900 * 1000

// Transform computes the Burrows-Wheeler transform of data: the lexically
// sorted rotation index with the smallest Int, combined with the byte
// immediately preceding each sorted rotation's start. It returns the
// permuted column (same length as data) and the origin pointer: the row
// index, in the sorted order, of the unrotated input.
//
// Rotations that compare equal are broken by rotation index, which is what
// makes the transform reversible: the sort is over a doubled buffer so that
// every rotation has a well-defined total order without wraparound special
// casing.
func Transform(data []byte) (out []byte, origPtr uint32) {
	n := len(data)
	if n == 0 {
		return nil, 0
	}
	doubled := make([]byte, 2*n)
	copy(doubled, data)
	copy(doubled[n:], data)

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		ia, ib := idx[a], idx[b]
		if ia == ib {
			return false
		}
		ra := doubled[ia : ia+n]
		rb := doubled[ib : ib+n]
		for k := 0; k < n; k++ {
			if ra[k] != rb[k] {
				return ra[k] < rb[k]
			}
		}
		return ia < ib
	})

	out = make([]byte, n)
	for row, i := range idx {
		if i == 0 {
			out[row] = data[n-1]
			origPtr = uint32(row)
		} else {
			out[row] = data[i-1]
		}
	}
	return out, origPtr
}

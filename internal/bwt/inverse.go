// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.
package bwt

// Fast is the inverse Burrows-Wheeler transform using the "fast" encoding:
// one uint32 per block byte (the permutation threaded through the upper 24
// bits, the byte value in the low 8), grounded on the reference Go
// decoder's tt array and inverseBWT function. It uses 4 bytes of state per
// input byte, trading memory for a branch-free Next.
type Fast struct {
	tt   []uint32
	tPos uint32
}

// NewFast allocates a Fast inverter with room for up to capacity block
// bytes; capacity is typically the stream's block size (100k..900k).
func NewFast(capacity int) *Fast {
	return &Fast{tt: make([]uint32, capacity)}
}

// Build prepares the inverter to emit column's original byte order, given
// the per-symbol occurrence counts count (count[b] is the number of times
// byte b appears in column) and the origin pointer. It mirrors the
// cumulative-sum pass and scatter loop of the reference inverseBWT: pass 1
// turns count into the "C array" (cumulative position of the first
// occurrence of each byte), pass 2 threads each row's predecessor index
// into the matching output slot.
func (f *Fast) Build(column []byte, count *[256]uint32, origPtr uint32) {
	n := len(column)
	if cap(f.tt) < n {
		f.tt = make([]uint32, n)
	}
	tt := f.tt[:n]

	var c [256]uint32
	sum := uint32(0)
	for i := 0; i < 256; i++ {
		sum += count[i]
		c[i] = sum - count[i]
	}

	for i := 0; i < n; i++ {
		tt[i] = uint32(column[i])
	}
	for i := 0; i < n; i++ {
		b := tt[i] & 0xff
		tt[c[b]] |= uint32(i) << 8
		c[b]++
	}

	f.tPos = tt[origPtr] >> 8
}

// Next returns the next byte of the original (pre-transform) data.
func (f *Fast) Next() byte {
	v := f.tt[f.tPos]
	b := byte(v)
	f.tPos = v >> 8
	return b
}

// Small is the inverse Burrows-Wheeler transform using the memory-frugal
// "small" encoding: a 16-bit predecessor index per byte (ll16) plus a
// packed nibble extension (ll4) carrying bits 16..19, for a combined
// 2.25 bytes of state per input byte. It is grounded directly on
// bzlib_private.h's ll16/ll4 fields and the GET_LL/GET_LL4/BZ_GET_SMALL
// macros, and on BZ2_indexIntoF's binary search through the cumulative
// frequency table.
type Small struct {
	ll16  []uint16
	ll4   []byte
	cftab [257]int32
	tPos  uint32
}

// NewSmall allocates a Small inverter with room for up to capacity block
// bytes.
func NewSmall(capacity int) *Small {
	return &Small{
		ll16: make([]uint16, capacity),
		ll4:  make([]byte, (capacity+1)/2),
	}
}

func (s *Small) setLL(i int, v uint32) {
	s.ll16[i] = uint16(v & 0xffff)
	nib := byte((v >> 16) & 0xf)
	if i&1 == 0 {
		s.ll4[i>>1] = (s.ll4[i>>1] & 0xf0) | nib
	} else {
		s.ll4[i>>1] = (s.ll4[i>>1] & 0x0f) | (nib << 4)
	}
}

func (s *Small) getLL(i int) uint32 {
	var nib byte
	if i&1 == 0 {
		nib = s.ll4[i>>1] & 0xf
	} else {
		nib = (s.ll4[i>>1] >> 4) & 0xf
	}
	return uint32(s.ll16[i]) | (uint32(nib) << 16)
}

// Build prepares the inverter as Fast.Build does, but using the
// linked-list-in-an-array representation instead of the threaded tt array.
func (s *Small) Build(column []byte, count *[256]uint32, origPtr uint32) {
	n := len(column)
	if cap(s.ll16) < n {
		s.ll16 = make([]uint16, n)
		s.ll4 = make([]byte, (n+1)/2)
	}
	s.ll16 = s.ll16[:n]
	s.ll4 = s.ll4[:(n+1)/2]

	s.cftab[0] = 0
	for i := 1; i <= 256; i++ {
		s.cftab[i] = s.cftab[i-1] + int32(count[i-1])
	}
	cftabCopy := s.cftab
	for i := 0; i < n; i++ {
		b := column[i]
		s.setLL(int(cftabCopy[b]), uint32(i))
		cftabCopy[b]++
	}

	s.tPos = uint32(origPtr)
}

// indexIntoF finds the byte value whose cumulative range contains indx,
// the Go equivalent of BZ2_indexIntoF's binary search over cftab.
func (s *Small) indexIntoF(indx int32) byte {
	lo, hi := 0, 255
	for lo <= hi {
		mid := (lo + hi) / 2
		if indx >= s.cftab[mid] && indx < s.cftab[mid+1] {
			return byte(mid)
		}
		if indx < s.cftab[mid] {
			hi = mid - 1
		} else {
			lo = mid + 1
		}
	}
	return 0
}

// Next returns the next byte of the original (pre-transform) data.
func (s *Small) Next() byte {
	b := s.indexIntoF(int32(s.tPos))
	s.tPos = s.getLL(int(s.tPos))
	return b
}

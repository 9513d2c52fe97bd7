// Copyright 2020 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bzcore implements the bzip2 streaming engines: the compressor
// driver (C7) that orchestrates RLE-1, BWT, MTF/RLE-2 and Huffman coding
// per block, and the decompressor (C8), a byte-incremental resumable
// state machine that mirrors it. Both are grounded on bzlib.c's
// BZ2_bzCompress/handle_compress mode machine and the reference Go
// decoder's per-block parsing, generalised to the canonical multi-table
// Huffman scheme this module's internal/huffman package implements.
package bzcore

const (
	hdrB = 'B'
	hdrZ = 'Z'
	hdrh = 'h'
	hdr0 = '0'

	blockMagic = 0x314159265359
	endMagic   = 0x177245385090

	// maxSelectorsPerBlock bounds a block's selector count, matching
	// BZ_MAX_SELECTORS = 2 + 900000/BZ_G_SIZE.
	maxSelectorsPerBlock = 2 + 900000/50
)

// FileMagic, BlockMagic and EOSMagic are the byte-array forms of the
// stream's fixed magic sequences, exported for callers (the block scanner,
// single-block adapters) that need to search for or splice around them at
// the byte level rather than parse them bit by bit.
var (
	FileMagic  = [2]byte{hdrB, hdrZ}
	BlockMagic = [6]byte{0x31, 0x41, 0x59, 0x26, 0x53, 0x59}
	EOSMagic   = [6]byte{0x17, 0x72, 0x45, 0x38, 0x50, 0x90}
)

// Action selects what a Compressor's Process call should attempt: keep
// accepting input, flush the current block without ending the stream, or
// terminate the stream.
type Action int

const (
	Run Action = iota
	Flush
	Finish
)

// Code reports the outcome of a Process call.
type Code int

const (
	RunOK Code = iota
	FlushOK
	FinishOK
	StreamEnd
	Ok
)

func (c Code) String() string {
	switch c {
	case RunOK:
		return "RunOK"
	case FlushOK:
		return "FlushOK"
	case FinishOK:
		return "FinishOK"
	case StreamEnd:
		return "StreamEnd"
	case Ok:
		return "Ok"
	default:
		return "Unknown"
	}
}

// ErrorKind classifies failures returned at Process/Init boundaries, per
// the core's error taxonomy: structural/sequencing mistakes the caller
// made versus data the decompressor found to be invalid.
type ErrorKind int

const (
	_ ErrorKind = iota
	ConfigError
	ParamError
	SequenceError
	DataError
	DataErrorMagic
	UnexpectedEOF
	OutBuffFull
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigError:
		return "ConfigError"
	case ParamError:
		return "ParamError"
	case SequenceError:
		return "SequenceError"
	case DataError:
		return "DataError"
	case DataErrorMagic:
		return "DataErrorMagic"
	case UnexpectedEOF:
		return "UnexpectedEof"
	case OutBuffFull:
		return "OutBuffFull"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by this package's Process/Init calls.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Msg
}

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

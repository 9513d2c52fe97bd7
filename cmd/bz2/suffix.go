// Copyright 2021 Cosmos Nicolaou. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import "strings"

// defaultSuffix is appended to the input name when compressing and no
// explicit output name was given, matching bzip2.c's zSuffix[0].
const defaultSuffix = ".bz2"

// decompressSuffixes maps a recognised compressed-file suffix to the name
// the decompressed output should use, per bzip2.c's unzSuffix table. An
// entry mapping to "" means: strip the suffix and use what remains.
var decompressSuffixes = []struct {
	suffix      string
	replacement string
}{
	{".tbz2", ".tar"},
	{".tbz", ".tar"},
	{".bz2", ""},
	{".bz", ""},
}

// compressedName returns the name to use when compressing name for
// output, appending defaultSuffix.
func compressedName(name string) string {
	return name + defaultSuffix
}

// decompressedName returns the name to use when decompressing name for
// output, and whether name carried a suffix this tool recognises. If it
// doesn't recognise the suffix, it returns name with ".out" appended and
// recognised=false (decompression always attempts the content
// regardless; this only controls the output file name).
func decompressedName(name string) (out string, recognised bool) {
	for _, s := range decompressSuffixes {
		if strings.HasSuffix(name, s.suffix) {
			trimmed := strings.TrimSuffix(name, s.suffix)
			if s.replacement == "" {
				return trimmed, true
			}
			return trimmed + s.replacement, true
		}
	}
	return name + ".out", false
}

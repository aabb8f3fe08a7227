//go:build !unix

package codec

import "os"

// statNlink is unsupported on this platform; the hard-link guard
// (spec.md §4.1 FileHasHardLinks) is simply not enforced there.
func statNlink(_ os.FileInfo) (uint64, bool) {
	return 0, false
}

//go:build unix

package codec

import (
	"os"
	"syscall"
)

// statNlink reports the hard-link count of info, when the underlying
// FileInfo carries a *syscall.Stat_t (all unix platforms).
func statNlink(info os.FileInfo) (uint64, bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Nlink), true
}

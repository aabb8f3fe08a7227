// Package histname derives the sibling file names used around a history
// file: the p-file, z-lock, x-write-ahead, d/u-reconstruction, l-summary
// and g-file (working copy) names, per spec.md §6.2.
package histname

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Name identifies the base name component shared by a history file and
// its siblings, plus the directory they live in.
type Name struct {
	Dir  string
	Base string // the NAME in s.NAME
}

// Parse splits a history-file path "dir/s.NAME" into its Name. Returns an
// error if the file name does not begin with "s.".
func Parse(path string) (Name, error) {
	dir, file := filepath.Split(path)
	if !strings.HasPrefix(file, "s.") {
		return Name{}, fmt.Errorf("histname: %q does not begin with s.", file)
	}
	return Name{Dir: dir, Base: file[2:]}, nil
}

func (n Name) join(prefix string) string {
	return filepath.Join(n.Dir, prefix+n.Base)
}

// History is the s.NAME history file path.
func (n Name) History() string { return n.join("s.") }

// PFile is the p.NAME checkout-lock-entries path.
func (n Name) PFile() string { return n.join("p.") }

// ZLock is the z.NAME mutation lock path.
func (n Name) ZLock() string { return n.join("z.") }

// XFile is the x.NAME write-ahead path used during mutation.
func (n Name) XFile() string { return n.join("x.") }

// DFile is the d.NAME reconstructed-baseline path used during delta
// recording.
func (n Name) DFile() string { return n.join("d.") }

// UFile is the u.NAME re-encoded-working-copy path used during delta
// recording when the body is encoded.
func (n Name) UFile() string { return n.join("u.") }

// LFile is the l.NAME delta-summary-stream path.
func (n Name) LFile() string { return n.join("l.") }

// GFile is the extracted working-copy path (no prefix).
func (n Name) GFile() string { return filepath.Join(n.Dir, n.Base) }

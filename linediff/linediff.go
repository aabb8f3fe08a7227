// Package linediff provides the default LineDiff capability implementation
// backed by github.com/pmezard/go-difflib, converting its opcode output
// into the classical ed-style hunks DeltaRecord.Apply consumes (spec.md
// §4.5, §9).
package linediff

import (
	difflib "github.com/pmezard/go-difflib/difflib"

	"github.com/sccsgo/sccsgo/engine"
)

// Differ is the default engine.LineDiff implementation.
type Differ struct{}

// New returns a ready-to-use Differ.
func New() Differ { return Differ{} }

// Diff implements engine.LineDiff using difflib.SequenceMatcher, turning
// each of its "replace" opcodes into one OpChange hunk (the change
// spec.md §4.5 names "NcM").
func (Differ) Diff(oldLines, newLines []string) ([]engine.Hunk, error) {
	m := difflib.NewMatcher(oldLines, newLines)
	var hunks []engine.Hunk
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e': // equal
			continue
		case 'd': // delete
			hunks = append(hunks, engine.Hunk{
				Op:    engine.OpDelete,
				Line:  op.I1 + 1,
				Count: op.I2 - op.I1,
			})
		case 'i': // insert
			hunks = append(hunks, engine.Hunk{
				Op:    engine.OpAdd,
				Line:  op.I1, // insert after old line I1 (0 means "before the first line")
				Lines: append([]string(nil), newLines[op.J1:op.J2]...),
			})
		case 'r': // replace
			hunks = append(hunks, engine.Hunk{
				Op:    engine.OpChange,
				Line:  op.I1 + 1,
				Count: op.I2 - op.I1,
				Lines: append([]string(nil), newLines[op.J1:op.J2]...),
			})
		}
	}
	return hunks, nil
}

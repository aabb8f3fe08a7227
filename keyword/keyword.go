// Package keyword implements %X% keyword substitution over extracted
// lines, per spec.md §4.3.
package keyword

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sccsgo/sccsgo/sdate"
	"github.com/sccsgo/sccsgo/sid"
)

// Context carries everything a substitution needs to resolve a keyword
// letter for one gotten delta.
type Context struct {
	ModuleFlag  string   // "m" flag, falls back to the g-file base name when empty
	GFileBase   string
	SFileBase   string
	SFilePath   string   // canonical absolute path
	GottenSid   sid.Sid
	TypeFlag    string   // "t" flag
	UserDef     string   // "q" flag
	GottenDate  sdate.Date
	Restrict    string   // "y" flag: letters expansion is restricted to; empty means unrestricted
	WOverride   string   // Extract's "wstring" override for the %W% expansion, empty means use the default formula
}

// Subst performs %X% substitution over a single line. lineNo is the
// output line number for %C%. When keywords is false the line is emitted
// verbatim (the "-k" / for_edit case, spec.md §4.3's last paragraph).
// The second return reports whether any keyword was actually expanded,
// for the "id keywords required" check.
func Subst(ctx Context, line string, lineNo int, keywords bool) (string, bool) {
	if !keywords {
		return line, false
	}
	var out strings.Builder
	found := false
	usedW := false
	i := 0
	for i < len(line) {
		if line[i] == '%' {
			if end := strings.IndexByte(line[i+1:], '%'); end == 1 {
				letter := line[i+1]
				if ctx.allowed(letter) {
					if expansion, ok := ctx.expand(letter, lineNo, &usedW); ok {
						out.WriteString(expansion)
						found = true
						i += 3
						continue
					}
				}
			}
		}
		out.WriteByte(line[i])
		i++
	}
	return out.String(), found
}

// allowed reports whether letter may be expanded given the "y" flag
// restriction. An empty Restrict means every letter is allowed.
func (c Context) allowed(letter byte) bool {
	if c.Restrict == "" {
		return true
	}
	return strings.IndexByte(c.Restrict, letter) >= 0
}

func (c Context) expand(letter byte, lineNo int, usedW *bool) (string, bool) {
	switch letter {
	case 'M':
		if c.ModuleFlag != "" {
			return c.ModuleFlag, true
		}
		return c.GFileBase, true
	case 'I':
		return c.GottenSid.String(), true
	case 'R':
		return strconv.Itoa(int(c.GottenSid.Release)), true
	case 'L':
		return strconv.Itoa(c.GottenSid.Level), true
	case 'B':
		return strconv.Itoa(c.GottenSid.Branch), true
	case 'S':
		return strconv.Itoa(c.GottenSid.Sequence), true
	case 'D', 'H', 'T':
		return sdate.Now().Keyword(letter), true
	case 'E', 'G', 'U':
		return c.GottenDate.Keyword(letter), true
	case 'Y':
		return c.TypeFlag, true
	case 'F':
		return c.SFileBase, true
	case 'P':
		return c.SFilePath, true
	case 'Q':
		return c.UserDef, true
	case 'C':
		return strconv.Itoa(lineNo), true
	case 'Z':
		return "@(#)", true
	case 'W':
		if *usedW {
			return "", false
		}
		*usedW = true
		if c.WOverride != "" {
			return c.WOverride, true
		}
		return fmt.Sprintf("@(#)%s\t%s", moduleOrGFile(c), c.GottenSid.String()), true
	case 'A':
		return fmt.Sprintf("@(#)%s %s %s@(#)", c.TypeFlag, moduleOrGFile(c), c.GottenSid.String()), true
	default:
		return "", false
	}
}

func moduleOrGFile(c Context) string {
	if c.ModuleFlag != "" {
		return c.ModuleFlag
	}
	return c.GFileBase
}

// Scan reports whether line contains any recognised %X% keyword, without
// performing substitution — used by the "no id keywords" admin check
// (spec.md §4.6) which must detect keywords even when a create is running
// with keyword expansion suppressed.
func Scan(line string) bool {
	i := 0
	for i < len(line) {
		if line[i] == '%' && i+2 < len(line) && line[i+2] == '%' {
			if isKnownLetter(line[i+1]) {
				return true
			}
		}
		i++
	}
	return false
}

func isKnownLetter(b byte) bool {
	return strings.IndexByte("MIRLBSDHTEGUYFPQCZWA", b) >= 0
}

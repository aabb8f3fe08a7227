// Package report implements the metadata-reporting and small in-place
// mutation operations spec.md's component table groups as
// "Prs/Prt/Rmdel/Cdc/Val": selecting and formatting delta history (Prs),
// dumping a file's full metadata (Prt), soft-deleting a delta (Rmdel),
// editing a delta's commentary (Cdc), and structural validation (Val).
// Grounded on original_source/prs.cc (the cutoff/when selection model and
// its ":TOKEN:" format language) and sf-admin.cc (flag rendering order,
// in-place mutation under a held lock, matching package admin's style).
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/sccsgo/sccsgo/codec"
	"github.com/sccsgo/sccsgo/delta"
	"github.com/sccsgo/sccsgo/engine"
	"github.com/sccsgo/sccsgo/sdate"
	"github.com/sccsgo/sccsgo/sid"
)

// When selects how Prs interprets Cutoff, mirroring
// original_source/prs.cc's sccs_file::when enum (SIDONLY/EARLIER/LATER).
type When int

const (
	SidOnly When = iota
	Earlier
	Later
)

// PrsOptions mirrors prs.cc's option set: -r (an explicit Sid, SidOnly
// mode only), -c (cutoff date), -e/-l (Earlier/Later), -a (AllDeltas:
// report every qualifying delta instead of just the nearest one).
type PrsOptions struct {
	Sid       sid.Sid
	Cutoff    sdate.Date
	Selected  When
	AllDeltas bool
}

// Entry is one reported delta: the fields prs(1)'s default format renders.
type Entry struct {
	Sid                          sid.Sid
	Date                         sdate.Date
	User                         string
	Removed                      bool
	Inserted, Deleted, Unchanged int
	MRs                          []string
	Comments                     []string
}

// Prs selects and reports delta metadata. In SidOnly mode it reports
// exactly the named Sid, defaulting to the newest non-removed delta when
// Sid is null. In Earlier/Later mode it reports every delta on or before
// (Earlier) / after (Later) Cutoff, narrowed to just the nearest one
// unless AllDeltas is set — exactly prs.cc's selection logic.
func Prs(tbl *delta.Table, opts PrsOptions) ([]Entry, error) {
	switch opts.Selected {
	case Earlier, Later:
		if opts.Cutoff.IsZero() {
			return nil, engine.New(engine.InvalidFlagValue, "a cutoff date is required with Earlier or Later selection")
		}
		var matches []*delta.Record
		for _, r := range tbl.All() {
			after := opts.Cutoff.Before(r.Date)
			if (opts.Selected == Earlier && !after) || (opts.Selected == Later && after) {
				matches = append(matches, r)
			}
		}
		sort.Slice(matches, func(i, j int) bool { return matches[i].Sid.Less(matches[j].Sid) })
		if !opts.AllDeltas && len(matches) > 0 {
			if opts.Selected == Earlier {
				matches = matches[len(matches)-1:]
			} else {
				matches = matches[:1]
			}
		}
		out := make([]Entry, len(matches))
		for i, r := range matches {
			out[i] = toEntry(r)
		}
		return out, nil
	default:
		target := opts.Sid
		if target.IsNull() {
			s, ok := tbl.MostRecentSid(0, nil)
			if !ok {
				return nil, engine.New(engine.SidNotFound, "history file has no deltas")
			}
			target = s
		}
		rec, ok := tbl.BySid(target)
		if !ok {
			return nil, engine.New(engine.SidNotFound, target.String())
		}
		return []Entry{toEntry(rec)}, nil
	}
}

func toEntry(r *delta.Record) Entry {
	return Entry{
		Sid: r.Sid, Date: r.Date, User: r.User, Removed: r.Kind == delta.Removed,
		Inserted: r.Inserted, Deleted: r.Deleted, Unchanged: r.Unchanged,
		MRs: r.MRs, Comments: r.Comments,
	}
}

// Render formats entries using prs(1)'s ":TOKEN:" format language, e.g.
// the original's default format ":Dt:\t:DL:\nMRs:\n:MR:COMMENTS:\n:C:".
// An unrecognised token passes through unchanged, matching the original's
// lenient behaviour.
func Render(entries []Entry, format string) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(renderOne(e, format))
	}
	return b.String()
}

func renderOne(e Entry, format string) string {
	var b strings.Builder
	i := 0
	for i < len(format) {
		if format[i] == ':' {
			if end := strings.IndexByte(format[i+1:], ':'); end >= 0 {
				token := format[i+1 : i+1+end]
				if val, ok := expandToken(e, token); ok {
					b.WriteString(val)
					i += end + 2
					continue
				}
			}
		}
		b.WriteByte(format[i])
		i++
	}
	return b.String()
}

func expandToken(e Entry, token string) (string, bool) {
	switch token {
	case "I":
		return e.Sid.String(), true
	case "R":
		return strconv.Itoa(int(e.Sid.Release)), true
	case "L":
		return strconv.Itoa(e.Sid.Level), true
	case "D":
		return e.Date.String(), true
	case "Dt":
		kind := "D"
		if e.Removed {
			kind = "R"
		}
		return fmt.Sprintf("%s %s %s %s", kind, e.Sid, e.Date, e.User), true
	case "DL":
		return fmt.Sprintf("%d inserted, %d deleted, %d unchanged", e.Inserted, e.Deleted, e.Unchanged), true
	case "MR":
		return strings.Join(e.MRs, "\n"), true
	case "C":
		return strings.Join(e.Comments, "\n"), true
	default:
		return "", false
	}
}

// FlagLine is one rendered "^Af" line, in the fixed order of spec.md §6.1.
type FlagLine struct {
	Letter byte
	Value  string // empty for boolean flags
}

// PrtReport is prt(1)'s full metadata dump, grounded on sf-admin.cc's flag
// table (print_flag/print_flag2, SPEC_FULL.md §C.5).
type PrtReport struct {
	Flags  []FlagLine
	Users  []string
	Deltas []Entry
}

// Prt renders hdr's full metadata report.
func Prt(hdr *codec.Header) PrtReport {
	all := hdr.Deltas.All()
	deltas := make([]Entry, len(all))
	for i, r := range all {
		deltas[i] = toEntry(r)
	}
	return PrtReport{
		Flags:  prtFlags(hdr.Flags),
		Users:  hdr.Users,
		Deltas: deltas,
	}
}

// prtFlags renders set flags in the fixed order of spec.md §6.1 — a fixed
// table walk, not the struct's field order, matching the original's
// print_flag/print_flag2.
func prtFlags(f codec.Flags) []FlagLine {
	var out []FlagLine
	if f.Branch {
		out = append(out, FlagLine{'b', ""})
	}
	if f.Ceiling != 0 {
		out = append(out, FlagLine{'c', strconv.Itoa(int(f.Ceiling))})
	}
	if f.Floor != 0 {
		out = append(out, FlagLine{'f', strconv.Itoa(int(f.Floor))})
	}
	if !f.Default.IsNull() {
		out = append(out, FlagLine{'d', f.Default.String()})
	}
	if f.IDKeywordFatal {
		out = append(out, FlagLine{'i', ""})
	}
	if f.JointEdit {
		out = append(out, FlagLine{'j', ""})
	}
	if f.LockedAll {
		out = append(out, FlagLine{'l', "a"})
	} else if len(f.Locked) > 0 {
		parts := make([]string, len(f.Locked))
		for i, r := range f.Locked {
			parts[i] = strconv.Itoa(int(r))
		}
		out = append(out, FlagLine{'l', strings.Join(parts, ",")})
	}
	if f.Module != "" {
		out = append(out, FlagLine{'m', f.Module})
	}
	if f.NullDeltas {
		out = append(out, FlagLine{'n', ""})
	}
	if f.UserDef != "" {
		out = append(out, FlagLine{'q', f.UserDef})
	}
	if f.Encoded {
		out = append(out, FlagLine{'e', "1"})
	}
	if f.Type != "" {
		out = append(out, FlagLine{'t', f.Type})
	}
	if f.MRChecker != "" {
		out = append(out, FlagLine{'v', f.MRChecker})
	}
	if f.Executable {
		out = append(out, FlagLine{'x', ""})
	}
	if f.SubstLetters != "" {
		out = append(out, FlagLine{'y', f.SubstLetters})
	}
	return out
}

// Rmdel marks the delta named by target as removed (Kind -> Removed) and
// rewrites the history file. Per spec.md line 80 a delta record is never
// destroyed, only mutated in place. Classical rmdel(1) additionally
// refuses to remove a delta that already has successors (it must be the
// most recent delta on its branch); that check is reproduced here rather
// than leaving the weave in a state no extraction can resolve. The caller
// is responsible for holding the z. lock (spec.md §3.5), matching
// package admin's locking contract.
func Rmdel(c *codec.Codec, path string, target sid.Sid) error {
	hdr, body, err := readAll(c, path)
	if err != nil {
		return err
	}
	rec, ok := hdr.Deltas.BySid(target)
	if !ok {
		return engine.New(engine.SidNotFound, target.String())
	}
	if rec.Kind == delta.Removed {
		return engine.New(engine.InvalidFlagValue, target.String()+" is already removed")
	}
	if len(hdr.Deltas.Children(rec.Seq)) > 0 {
		return engine.New(engine.InvalidFlagValue, target.String()+" has successors and cannot be removed")
	}
	rec.Kind = delta.Removed
	return c.Write(path, codec.WriteInput{Header: *hdr, Body: body})
}

// CdcOptions mirrors cdc(1) ("change delta commentary"): editing the MR
// list and/or comments of an existing delta. A nil field means "leave
// unchanged".
type CdcOptions struct {
	Sid      sid.Sid
	MRs      []string
	Comments []string
}

// Cdc replaces a delta's MR list and/or comments in place.
func Cdc(c *codec.Codec, path string, opts CdcOptions) error {
	hdr, body, err := readAll(c, path)
	if err != nil {
		return err
	}
	rec, ok := hdr.Deltas.BySid(opts.Sid)
	if !ok {
		return engine.New(engine.SidNotFound, opts.Sid.String())
	}
	if opts.MRs != nil {
		rec.MRs = opts.MRs
	}
	if opts.Comments != nil {
		rec.Comments = opts.Comments
	}
	return c.Write(path, codec.WriteInput{Header: *hdr, Body: body})
}

func readAll(c *codec.Codec, path string) (*codec.Header, []codec.BodyLine, error) {
	hdr, cursor, closeFn, err := c.Read(path)
	if err != nil {
		return nil, nil, err
	}
	defer closeFn()
	var body []codec.BodyLine
	for {
		bl, err := cursor.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		body = append(body, bl)
	}
	cp := *hdr
	return &cp, body, nil
}

// Problem is one structural issue Val found. Val collects every problem
// it can rather than stopping at the first, matching val(1)'s behaviour
// of reporting all defects in one pass.
type Problem struct {
	Sid     sid.Sid // zero when the problem is file-wide rather than per-delta
	Message string
}

// Val validates an existing history file: checksum (codec.VerifyChecksum),
// delta-table structure (delta.Table.ValidateStructure), and the
// included/excluded-vs-ancestry isomorphism original_source/sf-val.cc's
// validate_isomorphism additionally checks (SPEC_FULL.md §C.7): every
// Excluded seq of a delta must actually be one of that delta's ancestors
// by the PrevSeq chain, since excluding a delta only makes sense for one
// that would otherwise be included by the ancestry walk.
func Val(c *codec.Codec, path string) ([]Problem, error) {
	var problems []Problem

	ok, err := codec.VerifyChecksum(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		problems = append(problems, Problem{Message: "checksum mismatch"})
	}

	hdr, _, closeFn, err := c.Read(path)
	if err != nil {
		return nil, err
	}
	closeFn()

	if err := hdr.Deltas.ValidateStructure(); err != nil {
		problems = append(problems, Problem{Message: err.Error()})
	}

	for _, r := range hdr.Deltas.All() {
		ancestors := map[sid.SeqNo]bool{}
		for _, a := range hdr.Deltas.Ancestors(r.Seq) {
			ancestors[a] = true
		}
		for _, excl := range r.Excluded.Seqs {
			if !ancestors[excl] {
				problems = append(problems, Problem{
					Sid:     r.Sid,
					Message: fmt.Sprintf("excludes seq %d which is not one of its ancestors", excl),
				})
			}
		}
	}

	return problems, nil
}

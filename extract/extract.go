// Package extract implements the public Extract (get) operation, per
// spec.md §4.4: resolve a requested Sid against a history file's delta
// table, stream its text through the weave reader, optionally apply
// keyword substitution, and optionally register a p-file checkout entry.
package extract

import (
	"fmt"
	"io"

	"github.com/sccsgo/sccsgo/codec"
	"github.com/sccsgo/sccsgo/delta"
	"github.com/sccsgo/sccsgo/engine"
	"github.com/sccsgo/sccsgo/histname"
	"github.com/sccsgo/sccsgo/keyword"
	"github.com/sccsgo/sccsgo/pfile"
	"github.com/sccsgo/sccsgo/sdate"
	"github.com/sccsgo/sccsgo/sid"
	"github.com/sccsgo/sccsgo/weave"
)

// Options controls one Extract call, mirroring spec.md §4.4's input list.
type Options struct {
	RequestedSid sid.Sid // null means "default"
	CutoffDate   sdate.Date
	IncludeList  []sid.Range
	ExcludeList  []sid.Range
	Keywords     bool
	ForEdit      bool
	Branch       bool
	WString      string
	User         string // identity recording the p-file entry when ForEdit
	GFileBase    string // for %M%/%F% fallback when no module flag is set
	SFilePath    string // canonical absolute path, for %P%
	IncludeIgnored bool // the "-a" option
}

// Result is Extract's output: spec.md §4.4's "line count, list of Sids
// whose included/excluded was effectively applied, and an optional
// per-line summary stream".
type Result struct {
	Lines         []string
	GottenSid     sid.Sid
	AssignedSid   sid.Sid // set only when ForEdit
	IncludedSids  []sid.Sid
	ExcludedSids  []sid.Sid
	FoundKeyword  bool
	LineSummary   []sid.Sid // parallel to Lines: the author delta of each line
}

// resolve implements spec.md §4.4's resolution order.
func resolve(tbl *delta.Table, requested sid.Sid, cutoff sdate.Date) (sid.Sid, error) {
	cutoffFn := func(r *delta.Record) bool {
		return !cutoff.IsZero() && cutoff.Before(r.Date)
	}
	if requested.IsNull() {
		if s, ok := tbl.MostRecentSid(0, cutoffFn); ok {
			return s, nil
		}
		return sid.Null, engine.New(engine.SidNotFound, "history file has no deltas")
	}
	if requested.Partial() {
		if s, ok := tbl.MostRecentSid(requested.Release, cutoffFn); ok {
			return s, nil
		}
		return sid.Null, engine.New(engine.SidNotFound, fmt.Sprintf("no delta found in release %d", requested.Release))
	}
	if r, ok := tbl.BySid(requested); ok && r.Kind != delta.Removed {
		return requested, nil
	}
	return sid.Null, engine.New(engine.SidNotFound, fmt.Sprintf("sid %s not found", requested))
}

// nextAssignable implements spec.md §4.4's next-Sid algorithm for edit.
func nextAssignable(tbl *delta.Table, gotten sid.Sid, seq sid.SeqNo, branch bool) sid.Sid {
	children := tbl.Children(seq)
	hasTrunkChild := false
	usedBranches := []int{}
	for _, c := range children {
		cr, ok := tbl.BySeq(c)
		if !ok {
			continue
		}
		if cr.Sid.Release == gotten.Release && cr.Sid.Level == gotten.Level+1 && cr.Sid.OnTrunk() {
			hasTrunkChild = true
		}
		if cr.Sid.Release == gotten.Release && cr.Sid.Level == gotten.Level && !cr.Sid.OnTrunk() {
			usedBranches = append(usedBranches, cr.Sid.Branch)
		}
	}
	return gotten.Successor(branch || hasTrunkChild, usedBranches)
}

// Run performs the extraction described by opts against the history file
// at path.
func Run(c *codec.Codec, pfilePath, path string, opts Options) (*Result, error) {
	hdr, cursor, closeFn, err := c.Read(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	gotten, err := resolve(hdr.Deltas, opts.RequestedSid, opts.CutoffDate)
	if err != nil {
		return nil, err
	}
	rec, _ := hdr.Deltas.BySid(gotten)

	var extraIncl, extraExcl []sid.SeqNo
	for _, r := range hdr.Deltas.All() {
		if sid.AnyContains(opts.IncludeList, r.Sid) {
			extraIncl = append(extraIncl, r.Seq)
		}
		if sid.AnyContains(opts.ExcludeList, r.Sid) {
			extraExcl = append(extraExcl, r.Seq)
		}
	}
	state := weave.NewSeqState(hdr.Deltas, rec.Seq, extraIncl, extraExcl)

	reader := weave.NewReader(cursor, state, opts.IncludeIgnored, rootSeqNo)

	res := &Result{GottenSid: gotten}
	lineNo := 0
	keywords := opts.Keywords && !opts.ForEdit
	restrict := hdr.Flags.SubstLetters

	for {
		l, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		lineNo++
		authorRec, _ := hdr.Deltas.BySeq(l.Author)
		ctx := keyword.Context{
			ModuleFlag: hdr.Flags.Module,
			GFileBase:  opts.GFileBase,
			SFileBase:  baseOf(path),
			SFilePath:  opts.SFilePath,
			GottenSid:  gotten,
			GottenDate: rec.Date,
			TypeFlag:   hdr.Flags.Type,
			UserDef:    hdr.Flags.UserDef,
			Restrict:   restrict,
			WOverride:  opts.WString,
		}
		out, found := keyword.Subst(ctx, string(l.Text), lineNo, keywords)
		if found {
			res.FoundKeyword = true
		}
		res.Lines = append(res.Lines, out)
		res.LineSummary = append(res.LineSummary, sidOrNull(authorRec))
	}

	res.IncludedSids, res.ExcludedSids = state.EffectiveSids(hdr.Deltas)

	if opts.ForEdit {
		assigned := nextAssignable(hdr.Deltas, gotten, rec.Seq, opts.Branch)
		res.AssignedSid = assigned
		entry := pfile.Entry{
			Got:      gotten,
			Assigned: assigned,
			User:     opts.User,
			Date:     sdate.Now(),
			Include:  rangesToSids(opts.IncludeList),
			Exclude:  rangesToSids(opts.ExcludeList),
		}
		if err := pfile.Add(pfilePath, entry); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// rootSeqNo is the sequence number of the first (root) delta in any
// history file: the codec always writes the body's opening marker as the
// literal "^AI 1" (spec.md §4.1), so the root delta is always assigned
// sequence 1.
const rootSeqNo sid.SeqNo = 1

func sidOrNull(r *delta.Record) sid.Sid {
	if r == nil {
		return sid.Null
	}
	return r.Sid
}

func baseOf(path string) string {
	n, err := histname.Parse(path)
	if err != nil {
		return path
	}
	return "s." + n.Base
}

func rangesToSids(ranges []sid.Range) []sid.Sid {
	var out []sid.Sid
	for _, r := range ranges {
		out = append(out, r.From)
	}
	return out
}

// Package record implements DeltaRecord.Apply: diffing a checked-out
// working file against its freshly reconstructed baseline and splicing the
// result into a new delta, per spec.md §4.5 and
// original_source/src/sf-delta.cc's sccs_file::add_delta.
package record

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/sccsgo/sccsgo/admin"
	"github.com/sccsgo/sccsgo/codec"
	"github.com/sccsgo/sccsgo/delta"
	"github.com/sccsgo/sccsgo/engine"
	"github.com/sccsgo/sccsgo/extract"
	"github.com/sccsgo/sccsgo/filelock"
	"github.com/sccsgo/sccsgo/histname"
	"github.com/sccsgo/sccsgo/keyword"
	"github.com/sccsgo/sccsgo/linediff"
	"github.com/sccsgo/sccsgo/pfile"
	"github.com/sccsgo/sccsgo/sdate"
	"github.com/sccsgo/sccsgo/sid"
	"github.com/sccsgo/sccsgo/weave"
)

// Options describes one DeltaRecord.Apply call.
type Options struct {
	SFilePath string // the s.NAME history file
	PFilePath string // the p.NAME checkout-lock file
	Got       sid.Sid // the delta the working copy was checked out against

	NewContent io.Reader // the edited working file

	User     string
	MRs      []string
	Comments []string

	// Differ is the LineDiff capability (spec.md §9); a difflib-backed
	// default is used when nil.
	Differ engine.LineDiff
	// MrValidator runs the v-flag MR checker program, if the file has one
	// configured; nil skips validation even when the flag is set.
	MrValidator engine.MrValidator
}

// Result reports the counts DeltaRecord.Apply computed for the new delta.
type Result struct {
	NewSid               sid.Sid
	Inserted, Deleted, Unchanged int
}

// Apply performs the full protocol of spec.md §4.5, steps 1-9.
func Apply(c *codec.Codec, opts Options) (*Result, error) {
	n, err := histname.Parse(opts.SFilePath)
	if err != nil {
		return nil, engine.New(engine.NotAnSccsHistoryFileName, err.Error())
	}

	lock := filelock.New(n.ZLock(), nil)
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, filelock.ErrHeld) {
			return nil, engine.New(engine.LockHeld, n.ZLock())
		}
		return nil, engine.Wrap(err, "acquiring lock "+n.ZLock())
	}
	defer lock.Release()

	entry, found, err := pfile.Find(opts.PFilePath, opts.Got)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, engine.New(engine.SidNotFound, fmt.Sprintf("no outstanding edit based on %s", opts.Got))
	}

	hdr, err := readHeader(c, opts.SFilePath)
	if err != nil {
		return nil, err
	}
	if len(hdr.Users) > 0 && !containsUser(hdr.Users, opts.User) {
		return nil, engine.New(engine.NoAuthorisation, opts.User+" is not in the users list")
	}
	if hdr.Flags.MRChecker != "" {
		if len(opts.MRs) == 0 {
			return nil, engine.New(engine.MrRequired, "MRs are required by the v flag")
		}
		if opts.MrValidator != nil {
			if err := opts.MrValidator.Validate(hdr.Flags.MRChecker, opts.MRs); err != nil {
				return nil, err
			}
		}
	}

	gottenRec, ok := hdr.Deltas.BySid(entry.Got)
	if !ok {
		return nil, engine.New(engine.SidNotFound, fmt.Sprintf("locked delta %s no longer exists", entry.Got))
	}

	baseline, err := extract.Run(c, opts.PFilePath, opts.SFilePath, extract.Options{
		RequestedSid: entry.Got,
		IncludeList:  toRanges(entry.Include),
		ExcludeList:  toRanges(entry.Exclude),
		Keywords:     false,
	})
	if err != nil {
		return nil, err
	}

	newLines, err := readNewLines(opts.NewContent, hdr.Flags.Encoded)
	if err != nil {
		return nil, err
	}
	if hdr.Flags.IDKeywordFatal && !anyKeyword(newLines) {
		return nil, engine.New(engine.InvalidFlagValue, "no id keywords found in working file")
	}

	differ := opts.Differ
	if differ == nil {
		differ = linediff.New()
	}
	hunks, err := differ.Diff(baseline.Lines, newLines)
	if err != nil {
		return nil, err
	}

	var extraIncl, extraExcl []sid.SeqNo
	for _, s := range entry.Include {
		if r, ok := hdr.Deltas.BySid(s); ok {
			extraIncl = append(extraIncl, r.Seq)
		}
	}
	for _, s := range entry.Exclude {
		if r, ok := hdr.Deltas.BySid(s); ok {
			extraExcl = append(extraExcl, r.Seq)
		}
	}

	predecessorSeq := gottenRec.Seq
	nextSeq := hdr.Deltas.MaxSeq()
	var nullDeltas []*delta.Record
	if hdr.Flags.NullDeltas {
		nullDeltas, predecessorSeq, nextSeq = synthesizeNullDeltas(nextSeq, gottenRec.Sid, entry.Assigned, predecessorSeq, opts.User, opts.MRs)
	}
	newSeq := nextSeq + 1

	newRec := &delta.Record{
		Kind:     delta.Normal,
		Sid:      entry.Assigned,
		Date:     sdate.Now(),
		User:     opts.User,
		Seq:      newSeq,
		PrevSeq:  predecessorSeq,
		Included: delta.SeqSet{HasList: len(extraIncl) > 0, Seqs: extraIncl},
		Excluded: delta.SeqSet{HasList: len(extraExcl) > 0, Seqs: extraExcl},
		MRs:      opts.MRs,
		Comments: opts.Comments,
	}

	newTable, err := cloneAndExtend(hdr.Deltas, append(nullDeltas, newRec)...)
	if err != nil {
		return nil, err
	}

	body, inserted, deleted, unchanged, err := splice(c, opts.SFilePath, hdr.Deltas, gottenRec.Seq, extraIncl, extraExcl, hunks, newSeq)
	if err != nil {
		return nil, err
	}
	newRec.Inserted, newRec.Deleted, newRec.Unchanged = inserted, deleted, unchanged

	hdr.Deltas = newTable
	if err := c.Write(opts.SFilePath, codec.WriteInput{Header: *hdr, Body: body}); err != nil {
		return nil, err
	}

	// Per spec.md §4.5 error-handling boundary: the history file is now
	// updated; a failure removing the p-file entry is non-fatal.
	if _, err := pfile.Remove(opts.PFilePath, opts.Got); err != nil {
		return &Result{NewSid: entry.Assigned, Inserted: inserted, Deleted: deleted, Unchanged: unchanged},
			engine.Wrap(err, "history file updated but p-file entry was not removed")
	}

	return &Result{NewSid: entry.Assigned, Inserted: inserted, Deleted: deleted, Unchanged: unchanged}, nil
}

func readHeader(c *codec.Codec, path string) (*codec.Header, error) {
	hdr, _, closeFn, err := c.Read(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	cp := *hdr
	return &cp, nil
}

func containsUser(users []string, user string) bool {
	for _, u := range users {
		if u == user {
			return true
		}
	}
	return false
}

func toRanges(sids []sid.Sid) []sid.Range {
	out := make([]sid.Range, len(sids))
	for i, s := range sids {
		out[i] = sid.Range{From: s, To: s}
	}
	return out
}

// readNewLines reads the edited working file's content, uuencoding it first
// when the history file's body is encoded (spec.md §4.5 step 2).
func readNewLines(r io.Reader, encoded bool) ([]string, error) {
	if r == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, engine.Wrap(err, "reading working file")
	}
	if encoded {
		return admin.Uuencode(raw), nil
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, engine.Wrap(err, "reading working file")
	}
	return lines, nil
}

func anyKeyword(lines []string) bool {
	for _, l := range lines {
		if keyword.Scan(l) {
			return true
		}
	}
	return false
}

// synthesizeNullDeltas fills the release gap between the baseline's release
// and the new delta's release with zero-change "AUTO NULL DELTA" records,
// per spec.md §4.5 step 5 / sf-delta.cc's add_delta.
func synthesizeNullDeltas(maxSeq sid.SeqNo, gotten, assigned sid.Sid, predecessorSeq sid.SeqNo, user string, mrs []string) ([]*delta.Record, sid.SeqNo, sid.SeqNo) {
	var out []*delta.Record
	seq := maxSeq
	for rel := gotten.Release + 1; rel < assigned.Release; rel++ {
		seq++
		nd := &delta.Record{
			Kind:     delta.Normal,
			Sid:      sid.Sid{Release: rel, Level: 1},
			Date:     sdate.Now(),
			User:     user,
			Seq:      seq,
			PrevSeq:  predecessorSeq,
			MRs:      mrs,
			Comments: []string{"AUTO NULL DELTA"},
		}
		out = append(out, nd)
		predecessorSeq = seq
	}
	return out, predecessorSeq, seq
}

// cloneAndExtend builds a fresh table containing tbl's records (already in
// valid dependency order) followed by extra, added in order.
func cloneAndExtend(tbl *delta.Table, extra ...*delta.Record) (*delta.Table, error) {
	out := delta.NewTable()
	for _, r := range tbl.All() {
		if err := out.Add(r); err != nil {
			return nil, err
		}
	}
	for _, r := range extra {
		if err := out.Add(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// splice re-reads the old body and produces the new one, per spec.md §4.5
// step 7: original control lines pass through verbatim, and the baseline's
// data lines are wrapped with new ^AI/^AD/^AE regions per the diff script.
func splice(c *codec.Codec, path string, tbl *delta.Table, baselineSeq sid.SeqNo, extraIncl, extraExcl []sid.SeqNo, hunks []engine.Hunk, newSeq sid.SeqNo) (body []codec.BodyLine, inserted, deleted, unchanged int, err error) {
	_, cursor, closeFn, err := c.Read(path)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	defer closeFn()

	state := weave.NewSeqState(tbl, baselineSeq, extraIncl, extraExcl)
	w := weave.NewWalker(cursor, state, false, rootSeqNo)
	sp := &splicer{hunks: hunks}

	for {
		bl, suppressed, err := w.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, 0, err
		}
		if bl.Kind != codec.BodyData {
			body = append(body, bl)
			continue
		}
		if suppressed {
			body = append(body, bl)
			continue
		}

		for _, ins := range sp.insertsBefore(sp.consumed) {
			body = append(body, openInsert(newSeq))
			for _, l := range ins {
				body = append(body, dataLine(l))
				inserted++
			}
			body = append(body, closeRegion(newSeq))
		}

		if sp.activeRemaining == 0 {
			if h, ok := sp.startDeleteAt(sp.consumed); ok {
				body = append(body, openDelete(newSeq))
				sp.active = h
				sp.activeRemaining = h.Count
			}
		}

		if sp.activeRemaining > 0 {
			body = append(body, bl)
			deleted++
			sp.activeRemaining--
			sp.consumed++
			if sp.activeRemaining == 0 {
				body = append(body, closeRegion(newSeq))
				if sp.active.Op == engine.OpChange {
					body = append(body, openInsert(newSeq))
					for _, l := range sp.active.Lines {
						body = append(body, dataLine(l))
						inserted++
					}
					body = append(body, closeRegion(newSeq))
				}
				sp.active = nil
			}
		} else {
			body = append(body, bl)
			unchanged++
			sp.consumed++
		}
	}

	for _, ins := range sp.insertsBefore(sp.consumed) {
		body = append(body, openInsert(newSeq))
		for _, l := range ins {
			body = append(body, dataLine(l))
			inserted++
		}
		body = append(body, closeRegion(newSeq))
	}

	return body, inserted, deleted, unchanged, nil
}

// rootSeqNo mirrors extract's convention: the body's implicit outermost
// region is always sequence 1 (the codec hardcodes "^AI 1" as the opening
// marker).
const rootSeqNo sid.SeqNo = 1

// splicer walks a diff script (engine.Hunk, in old-file order) alongside the
// baseline line counter (consumed). It is the structured-hunk counterpart
// of sf-delta.cc's diff_state, adapted to operate over engine.Hunk values
// rather than raw diff(1) text.
type splicer struct {
	hunks           []engine.Hunk
	idx             int
	consumed        int
	active          *engine.Hunk
	activeRemaining int
}

// insertsBefore returns the Lines of every OpAdd hunk anchored at
// consumedCount (0-based count of baseline lines already emitted),
// advancing past them.
func (s *splicer) insertsBefore(consumedCount int) [][]string {
	var out [][]string
	for s.idx < len(s.hunks) && s.hunks[s.idx].Op == engine.OpAdd && s.hunks[s.idx].Line == consumedCount {
		out = append(out, s.hunks[s.idx].Lines)
		s.idx++
	}
	return out
}

// startDeleteAt reports whether a Delete/Change hunk starts at the baseline
// line about to be emitted (1-based: consumedCount+1).
func (s *splicer) startDeleteAt(consumedCount int) (*engine.Hunk, bool) {
	if s.idx < len(s.hunks) {
		h := s.hunks[s.idx]
		if (h.Op == engine.OpDelete || h.Op == engine.OpChange) && h.Line == consumedCount+1 {
			s.idx++
			return &h, true
		}
	}
	return nil, false
}

func openInsert(seq sid.SeqNo) codec.BodyLine {
	return codec.BodyLine{Kind: codec.BodyOpenInsert, Seq: seq}
}

func openDelete(seq sid.SeqNo) codec.BodyLine {
	return codec.BodyLine{Kind: codec.BodyOpenDelete, Seq: seq}
}

func closeRegion(seq sid.SeqNo) codec.BodyLine {
	return codec.BodyLine{Kind: codec.BodyClose, Seq: seq}
}

func dataLine(s string) codec.BodyLine {
	return codec.BodyLine{Kind: codec.BodyData, Data: []byte(s)}
}

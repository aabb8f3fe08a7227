// Package delta defines the delta record and the ordered table of delta
// records that make up a history file's metadata (spec.md §3.2).
package delta

import (
	"fmt"

	"github.com/sccsgo/sccsgo/sdate"
	"github.com/sccsgo/sccsgo/sid"
)

// Kind distinguishes a normal delta from a soft-deleted or reserved one.
type Kind int

const (
	Normal Kind = iota
	Removed
	Unknown
)

// SeqSet is a set of sequence numbers together with a "has-list" flag, so
// that an empty-but-present list (§3.2) is distinguishable from an absent
// one.
type SeqSet struct {
	HasList bool
	Seqs    []sid.SeqNo
}

// Contains reports whether seq is a member of the set.
func (s SeqSet) Contains(seq sid.SeqNo) bool {
	for _, v := range s.Seqs {
		if v == seq {
			return true
		}
	}
	return false
}

// Record is one historical revision: spec.md §3.2.
type Record struct {
	Kind Kind
	Sid  sid.Sid
	Date sdate.Date
	User string

	Seq     sid.SeqNo
	PrevSeq sid.SeqNo // 0 for the root

	Inserted, Deleted, Unchanged int

	Included, Excluded, Ignored SeqSet

	MRs      []string
	Comments []string
}

// Table is the ordered collection of delta Records in a history file,
// indexed by SeqNo and Sid (spec.md §3.2).
type Table struct {
	// records holds the records in the order they were added, which is
	// oldest-first (Add requires each PrevSeq to be present already);
	// codec writes and reads them in this same order, so newest-first
	// on-disk ordering is not produced. bySeq and bySid map SeqNo and Sid
	// to an index into records.
	records []*Record
	bySeq   map[sid.SeqNo]int
	bySid   map[sid.Sid]int
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{bySeq: map[sid.SeqNo]int{}, bySid: map[sid.Sid]int{}}
}

// Add appends and indexes a record. It rejects a duplicate seq and a
// non-zero PrevSeq that is not already in the table, so records must be
// added oldest-first.
func (t *Table) Add(r *Record) error {
	if _, exists := t.bySeq[r.Seq]; exists {
		return fmt.Errorf("delta: duplicate seq %d", r.Seq)
	}
	if r.PrevSeq != 0 {
		if _, ok := t.bySeq[r.PrevSeq]; !ok {
			return fmt.Errorf("delta: seq %d has undefined prev_seq %d", r.Seq, r.PrevSeq)
		}
	}
	idx := len(t.records)
	t.records = append(t.records, r)
	t.bySeq[r.Seq] = idx
	t.bySid[r.Sid] = idx
	return nil
}

// BySeq looks up a record by its sequence number.
func (t *Table) BySeq(seq sid.SeqNo) (*Record, bool) {
	idx, ok := t.bySeq[seq]
	if !ok {
		return nil, false
	}
	return t.records[idx], true
}

// BySid looks up a record by its exact Sid.
func (t *Table) BySid(s sid.Sid) (*Record, bool) {
	idx, ok := t.bySid[s]
	if !ok {
		return nil, false
	}
	return t.records[idx], true
}

// All returns every record in table (storage) order.
func (t *Table) All() []*Record {
	return t.records
}

// MaxSeq returns the highest sequence number in the table, or 0 if empty.
func (t *Table) MaxSeq() sid.SeqNo {
	var max sid.SeqNo
	for seq := range t.bySeq {
		if seq > max {
			max = seq
		}
	}
	return max
}

// Ancestors returns the prev_seq chain from seq up to and including the
// root, nearest-first.
func (t *Table) Ancestors(seq sid.SeqNo) []sid.SeqNo {
	var out []sid.SeqNo
	for seq != 0 {
		r, ok := t.BySeq(seq)
		if !ok {
			break
		}
		out = append(out, seq)
		seq = r.PrevSeq
	}
	return out
}

// Children returns the sequence numbers whose PrevSeq is seq.
func (t *Table) Children(seq sid.SeqNo) []sid.SeqNo {
	var out []sid.SeqNo
	for _, r := range t.records {
		if r.PrevSeq == seq {
			out = append(out, r.Seq)
		}
	}
	return out
}

// MostRecentSid returns the highest-ordered non-removed Sid within
// release (or any release if release is zero), not excluded by cutoff
// (a nil cutoff means "no cutoff"). Supplemented from
// original_source/src/sccsfile.h's find_most_recent_sid (SPEC_FULL.md §C.2).
func (t *Table) MostRecentSid(release sid.Release, cutoff func(*Record) bool) (sid.Sid, bool) {
	var best *Record
	for _, r := range t.records {
		if r.Kind == Removed {
			continue
		}
		if release != 0 && r.Sid.Release != release {
			continue
		}
		if cutoff != nil && cutoff(r) {
			continue
		}
		if best == nil || best.Sid.Less(r.Sid) {
			best = r
		}
	}
	if best == nil {
		return sid.Null, false
	}
	return best.Sid, true
}

// ValidateStructure checks the invariants of spec.md §3.2: unique seq
// (guaranteed by Add), prev_seq < seq, every referenced seq exists, and
// distinct trunk Sids sharing a (release,level) path.
func (t *Table) ValidateStructure() error {
	seen := map[[2]int]sid.Sid{}
	for _, r := range t.records {
		if r.PrevSeq != 0 && r.PrevSeq >= r.Seq {
			return fmt.Errorf("delta: seq %d has prev_seq %d >= seq", r.Seq, r.PrevSeq)
		}
		for _, set := range []SeqSet{r.Included, r.Excluded, r.Ignored} {
			for _, s := range set.Seqs {
				if _, ok := t.bySeq[s]; !ok {
					return fmt.Errorf("delta: seq %d references undefined delta %d", r.Seq, s)
				}
			}
		}
		if r.Sid.OnTrunk() {
			key := [2]int{int(r.Sid.Release), r.Sid.Level}
			if _, ok := seen[key]; ok {
				return fmt.Errorf("delta: trunk sid collision at release %d level %d", r.Sid.Release, r.Sid.Level)
			}
			seen[key] = r.Sid
		}
	}
	return nil
}

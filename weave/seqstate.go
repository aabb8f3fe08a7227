// Package weave implements the per-extraction include/exclude/ignore
// resolution (SeqState) and the streaming reconstruction of a target
// revision's text from the interleaved body (WeaveReader), per spec.md
// §4.2.
package weave

import (
	"github.com/sccsgo/sccsgo/delta"
	"github.com/sccsgo/sccsgo/sid"
)

// SeqState holds, for a single extraction, which sequences are resolved
// as included, excluded, or ignored.
type SeqState struct {
	included map[sid.SeqNo]bool
	excluded map[sid.SeqNo]bool
	ignored  map[sid.SeqNo]bool
}

// NewSeqState resolves the state for target, per spec.md §4.2: every
// ancestor of target (by prev_seq chain, inclusive) starts included; then
// for each such ancestor's own recorded Included/Excluded/Ignored sets,
// Included is unioned in, Excluded is subtracted, and Ignored is recorded
// separately. extraIncl/extraExcl let a caller layer an -i/-x option list
// (by SeqNo, already resolved from Sid ranges by the caller) on top.
func NewSeqState(tbl *delta.Table, target sid.SeqNo, extraIncl, extraExcl []sid.SeqNo) *SeqState {
	s := &SeqState{
		included: map[sid.SeqNo]bool{},
		excluded: map[sid.SeqNo]bool{},
		ignored:  map[sid.SeqNo]bool{},
	}
	ancestors := tbl.Ancestors(target)
	for _, a := range ancestors {
		s.included[a] = true
	}
	for _, a := range ancestors {
		rec, ok := tbl.BySeq(a)
		if !ok {
			continue
		}
		for _, inc := range rec.Included.Seqs {
			s.included[inc] = true
		}
		for _, exc := range rec.Excluded.Seqs {
			s.excluded[exc] = true
		}
		for _, ign := range rec.Ignored.Seqs {
			s.ignored[ign] = true
		}
	}
	for _, s2 := range extraIncl {
		s.included[s2] = true
	}
	for _, s2 := range extraExcl {
		s.excluded[s2] = true
	}
	return s
}

// Included reports whether seq is included and not excluded.
func (s *SeqState) Included(seq sid.SeqNo) bool {
	return s.included[seq] && !s.excluded[seq]
}

// Excluded reports whether seq was explicitly excluded.
func (s *SeqState) Excluded(seq sid.SeqNo) bool {
	return s.excluded[seq]
}

// Ignored reports whether seq is in some ancestor's ignored list.
func (s *SeqState) Ignored(seq sid.SeqNo) bool {
	return s.ignored[seq]
}

// Effective reports whether seq's text should be treated as present for
// this extraction. When includeIgnored is true, an otherwise-unselected
// but explicitly ignored sequence is also treated as present (spec.md
// §4.2 "Ignored lines are emitted only if the caller explicitly opted
// in").
func (s *SeqState) Effective(seq sid.SeqNo, includeIgnored bool) bool {
	if s.Included(seq) {
		return true
	}
	if includeIgnored && s.ignored[seq] && !s.excluded[seq] {
		return true
	}
	return false
}

// EffectiveSids returns the Sids whose Included/Excluded were effectively
// applied for this extraction (for Extract's get_status.included/excluded,
// spec.md §4.4).
func (s *SeqState) EffectiveSids(tbl *delta.Table) (included, excluded []sid.Sid) {
	for seq := range s.included {
		if s.excluded[seq] {
			continue
		}
		if rec, ok := tbl.BySeq(seq); ok {
			included = append(included, rec.Sid)
		}
	}
	for seq := range s.excluded {
		if rec, ok := tbl.BySeq(seq); ok {
			excluded = append(excluded, rec.Sid)
		}
	}
	return included, excluded
}

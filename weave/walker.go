package weave

import (
	"github.com/sccsgo/sccsgo/codec"
	"github.com/sccsgo/sccsgo/sid"
)

// Walker streams the raw body — control lines and data lines alike —
// annotating each data line with whether it is suppressed for the SeqState
// it was built with. Unlike Reader, it never drops a line: DeltaRecord.Apply
// (spec.md §4.5 step 7) needs every original control line copied through
// verbatim while it splices new regions around the baseline's data lines.
type Walker struct {
	src            BodySource
	state          *SeqState
	includeIgnored bool
	stack          *regionStack
	rootSeq        sid.SeqNo
}

// NewWalker constructs a Walker over src, using the same root-region
// convention as NewReader.
func NewWalker(src BodySource, state *SeqState, includeIgnored bool, rootSeq sid.SeqNo) *Walker {
	return &Walker{
		src:            src,
		state:          state,
		includeIgnored: includeIgnored,
		rootSeq:        rootSeq,
		stack:          newRegionStack(rootSeq, !state.Effective(rootSeq, includeIgnored)),
	}
}

// Next returns the next raw body line, or io.EOF when the body ends. The
// bool result is meaningful only when line.Kind == codec.BodyData: it
// reports whether the line is suppressed (not part of the baseline this
// Walker's SeqState resolves).
func (w *Walker) Next() (codec.BodyLine, bool, error) {
	bl, err := w.src.Next()
	if err != nil {
		return codec.BodyLine{}, false, err
	}
	switch bl.Kind {
	case codec.BodyOpenInsert:
		w.stack.open(regionInsert, bl.Seq, !w.state.Effective(bl.Seq, w.includeIgnored))
		return bl, false, nil
	case codec.BodyOpenDelete:
		w.stack.open(regionDelete, bl.Seq, w.state.Effective(bl.Seq, w.includeIgnored))
		return bl, false, nil
	case codec.BodyClose:
		if err := w.stack.pop(bl.Seq); err != nil {
			return codec.BodyLine{}, false, err
		}
		return bl, false, nil
	default:
		return bl, w.stack.suppressed(), nil
	}
}

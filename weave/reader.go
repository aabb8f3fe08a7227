package weave

import (
	"fmt"
	"io"

	"github.com/sccsgo/sccsgo/codec"
	"github.com/sccsgo/sccsgo/engine"
	"github.com/sccsgo/sccsgo/sid"
)

type regionKind int

const (
	regionInsert regionKind = iota
	regionDelete
)

type region struct {
	kind     regionKind
	seq      sid.SeqNo
	suppress bool
}

// regionStack is the open-region tracking shared by Reader and Walker: an
// explicit stack (not recursion) over nested ^AI/^AD...^AE regions, mirroring
// original_source/src/get.cc's iterative inclusion-state walk.
type regionStack struct {
	frames []region
}

func newRegionStack(rootSeq sid.SeqNo, rootSuppress bool) *regionStack {
	return &regionStack{frames: []region{{kind: regionInsert, seq: rootSeq, suppress: rootSuppress}}}
}

func (s *regionStack) open(kind regionKind, seq sid.SeqNo, suppress bool) {
	s.frames = append(s.frames, region{kind: kind, seq: seq, suppress: suppress})
}

func (s *regionStack) pop(seq sid.SeqNo) error {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].seq == seq {
			s.frames = append(s.frames[:i], s.frames[i+1:]...)
			return nil
		}
	}
	return engine.New(engine.NotAnSccsHistoryFile, fmt.Sprintf("weave: ^AE %d closes a region that was never opened", seq))
}

func (s *regionStack) suppressed() bool {
	for _, reg := range s.frames {
		if reg.suppress {
			return true
		}
	}
	return false
}

func (s *regionStack) author(rootSeq sid.SeqNo) sid.SeqNo {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if s.frames[i].kind == regionInsert {
			return s.frames[i].seq
		}
	}
	return rootSeq
}

// Line is one emitted data line together with its author delta — the
// innermost open ^AI region, used by keyword substitution and by
// delta-summary output (spec.md §4.2).
type Line struct {
	Text   []byte
	Author sid.SeqNo
}

// BodySource is the subset of codec.BodyCursor the reader needs; codec's
// concrete *BodyCursor satisfies it.
type BodySource interface {
	Next() (codec.BodyLine, error)
}

// Reader streams emitted data lines for a target revision by walking the
// whole body once and tracking open-region suppression, per spec.md §4.2.
type Reader struct {
	src            BodySource
	state          *SeqState
	includeIgnored bool
	stack          *regionStack
	rootSeq        sid.SeqNo
}

// NewReader constructs a Reader. rootSeq is the seq named by the body's
// implicit outermost "^AI 1" region (always 1 for a well-formed history
// file); it is pushed onto the stack before reading begins, since the
// codec consumes that opening marker itself rather than surfacing it as a
// BodyLine.
func NewReader(src BodySource, state *SeqState, includeIgnored bool, rootSeq sid.SeqNo) *Reader {
	return &Reader{
		src:            src,
		state:          state,
		includeIgnored: includeIgnored,
		rootSeq:        rootSeq,
		stack:          newRegionStack(rootSeq, !state.Effective(rootSeq, includeIgnored)),
	}
}

// Next returns the next emitted data line, or io.EOF when the body ends.
func (r *Reader) Next() (Line, error) {
	for {
		bl, err := r.src.Next()
		if err != nil {
			return Line{}, err
		}
		switch bl.Kind {
		case codec.BodyOpenInsert:
			r.stack.open(regionInsert, bl.Seq, !r.state.Effective(bl.Seq, r.includeIgnored))
		case codec.BodyOpenDelete:
			r.stack.open(regionDelete, bl.Seq, r.state.Effective(bl.Seq, r.includeIgnored))
		case codec.BodyClose:
			if err := r.stack.pop(bl.Seq); err != nil {
				return Line{}, err
			}
		default: // BodyData
			if r.stack.suppressed() {
				continue
			}
			return Line{Text: bl.Data, Author: r.stack.author(r.rootSeq)}, nil
		}
	}
}

// ReadAll drains the reader, returning every emitted line's text.
func ReadAll(r *Reader) ([][]byte, error) {
	var out [][]byte
	for {
		l, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, l.Text)
	}
}

// Package historygraph renders a history file's delta table as a
// Graphviz dot graph: one node per delta, PrevSeq edges forming the
// trunk/branch tree, and optional dashed edges for each delta's
// Included/Excluded cross-references. A supplemental reporting extra
// beyond spec.md's Prt (SPEC_FULL.md §B), adapted directly from the
// teacher's commit-graph renderer,
// rcowham-gitp4transfer/cmd/gitgraph/gitgraph.go: its GitCommit node
// bookkeeping (gNode/hasNode, built lazily via a nodeFor-style lookup)
// becomes one node per Sid instead of one node per git commit mark.
package historygraph

import (
	"fmt"
	"io"

	"github.com/emicklei/dot"
	"github.com/sirupsen/logrus"

	"github.com/sccsgo/sccsgo/delta"
	"github.com/sccsgo/sccsgo/sid"
)

// Options controls one Render call.
type Options struct {
	// ShowIncludeExclude draws dashed edges for each delta's
	// Included/Excluded cross-references, beyond the plain PrevSeq tree.
	ShowIncludeExclude bool
}

// node mirrors the teacher's GitCommit: the graph bookkeeping for one
// delta, with its dot.Node created on the first nodeFor lookup
// (gitgraph.go's hasNode/gNode pattern); Render looks up every delta
// before it draws any edge.
type node struct {
	rec     *delta.Record
	label   string
	gNode   dot.Node
	hasNode bool
}

// Grapher accumulates delta-table renders, mirroring the teacher's
// GitGraph struct (a logger plus a map keyed by the entity's numeric id).
type Grapher struct {
	logger *logrus.Logger
	nodes  map[sid.SeqNo]*node
	graph  *dot.Graph
}

// New returns a Grapher. If logger is nil, a discarding logger is used.
func New(logger *logrus.Logger) *Grapher {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Grapher{logger: logger, nodes: map[sid.SeqNo]*node{}}
}

// Render builds a Graphviz dot document for tbl.
func (g *Grapher) Render(tbl *delta.Table, opts Options) string {
	g.graph = dot.NewGraph(dot.Directed)
	g.nodes = map[sid.SeqNo]*node{}

	for _, r := range tbl.All() {
		g.nodeFor(r)
	}
	for _, r := range tbl.All() {
		if r.PrevSeq != 0 {
			if parent, ok := tbl.BySeq(r.PrevSeq); ok {
				g.graph.Edge(g.nodeFor(parent).gNode, g.nodeFor(r).gNode, "")
			}
		}
		if !opts.ShowIncludeExclude {
			continue
		}
		for _, inc := range r.Included.Seqs {
			if other, ok := tbl.BySeq(inc); ok {
				e := g.graph.Edge(g.nodeFor(other).gNode, g.nodeFor(r).gNode, "include")
				e.Attr("style", "dashed")
				e.Attr("color", "darkgreen")
			}
		}
		for _, exc := range r.Excluded.Seqs {
			if other, ok := tbl.BySeq(exc); ok {
				e := g.graph.Edge(g.nodeFor(other).gNode, g.nodeFor(r).gNode, "exclude")
				e.Attr("style", "dashed")
				e.Attr("color", "firebrick")
			}
		}
	}
	g.logger.Debugf("rendered %d delta nodes", len(g.nodes))
	return g.graph.String()
}

func (g *Grapher) nodeFor(r *delta.Record) *node {
	n, ok := g.nodes[r.Seq]
	if !ok {
		n = &node{rec: r, label: label(r)}
		g.nodes[r.Seq] = n
	}
	if !n.hasNode {
		n.gNode = g.graph.Node(n.label)
		n.hasNode = true
	}
	return n
}

func label(r *delta.Record) string {
	if r.Kind == delta.Removed {
		return fmt.Sprintf("%s\n%s (removed)", r.Sid.String(), r.User)
	}
	return fmt.Sprintf("%s\n%s", r.Sid.String(), r.User)
}

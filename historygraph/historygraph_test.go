package historygraph

import (
	"strings"
	"testing"

	"github.com/sccsgo/sccsgo/delta"
	"github.com/sccsgo/sccsgo/sdate"
	"github.com/sccsgo/sccsgo/sid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTable(t *testing.T) *delta.Table {
	t.Helper()
	tbl := delta.NewTable()
	now := sdate.Now()
	require.NoError(t, tbl.Add(&delta.Record{
		Sid: sid.Sid{Release: 1, Level: 1}, Date: now, User: "alice", Seq: 1,
	}))
	require.NoError(t, tbl.Add(&delta.Record{
		Sid: sid.Sid{Release: 1, Level: 2}, Date: now, User: "bob", Seq: 2, PrevSeq: 1,
	}))
	require.NoError(t, tbl.Add(&delta.Record{
		Sid: sid.Sid{Release: 1, Level: 3}, Date: now, User: "carol", Seq: 3, PrevSeq: 2,
		Excluded: delta.SeqSet{HasList: true, Seqs: []sid.SeqNo{1}},
	}))
	return tbl
}

func TestRenderIncludesEveryDeltaLabel(t *testing.T) {
	tbl := buildTable(t)
	g := New(nil)
	out := g.Render(tbl, Options{})
	assert.True(t, strings.Contains(out, "digraph"))
	assert.Contains(t, out, "1.1")
	assert.Contains(t, out, "1.2")
	assert.Contains(t, out, "1.3")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "bob")
	assert.Contains(t, out, "carol")
}

func TestRenderShowsExcludeEdgeOnlyWhenRequested(t *testing.T) {
	tbl := buildTable(t)
	g := New(nil)

	plain := g.Render(tbl, Options{})
	assert.NotContains(t, plain, "exclude")

	withExcl := g.Render(tbl, Options{ShowIncludeExclude: true})
	assert.Contains(t, withExcl, "exclude")
}

func TestRenderIsReusableAcrossCalls(t *testing.T) {
	tbl := buildTable(t)
	g := New(nil)
	first := g.Render(tbl, Options{})
	second := g.Render(tbl, Options{})
	assert.Equal(t, first, second)
}

package extract

import (
	"path/filepath"
	"testing"

	"github.com/sccsgo/sccsgo/codec"
	"github.com/sccsgo/sccsgo/delta"
	"github.com/sccsgo/sccsgo/sdate"
	"github.com/sccsgo/sccsgo/sid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildHistory writes a two-delta history file: 1.1 has "one"/"two", and
// 1.2 inserts "inserted" between them.
func buildHistory(t *testing.T, path string) {
	t.Helper()
	tbl := delta.NewTable()
	now := sdate.FromTime(sdate.Now().Time())
	require.NoError(t, tbl.Add(&delta.Record{
		Kind: delta.Normal, Sid: sid.Sid{Release: 1, Level: 1}, Date: now,
		User: "alice", Seq: 1, PrevSeq: 0, Inserted: 2,
	}))
	require.NoError(t, tbl.Add(&delta.Record{
		Kind: delta.Normal, Sid: sid.Sid{Release: 1, Level: 2}, Date: now,
		User: "bob", Seq: 2, PrevSeq: 1, Inserted: 1,
	}))

	c := codec.New(nil)
	in := codec.WriteInput{
		Header: codec.Header{
			Deltas:   tbl,
			Users:    []string{"alice", "bob"},
			Flags:    codec.Flags{Module: "foo.c"},
			Comments: []string{"root"},
		},
		Body: []codec.BodyLine{
			{Kind: codec.BodyData, Data: []byte("one")},
			{Kind: codec.BodyOpenInsert, Seq: 2},
			{Kind: codec.BodyData, Data: []byte("inserted")},
			{Kind: codec.BodyClose, Seq: 2},
			{Kind: codec.BodyData, Data: []byte("two")},
		},
	}
	require.NoError(t, c.Write(path, in))
}

func TestExtractBaseline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo.c")
	buildHistory(t, path)

	c := codec.New(nil)
	res, err := Run(c, filepath.Join(dir, "p.foo.c"), path, Options{
		RequestedSid: sid.Sid{Release: 1, Level: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, res.Lines)
}

func TestExtractLatest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo.c")
	buildHistory(t, path)

	c := codec.New(nil)
	res, err := Run(c, filepath.Join(dir, "p.foo.c"), path, Options{
		RequestedSid: sid.Sid{Release: 1, Level: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "inserted", "two"}, res.Lines)
}

func TestExtractDefaultPicksMostRecent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo.c")
	buildHistory(t, path)

	c := codec.New(nil)
	res, err := Run(c, filepath.Join(dir, "p.foo.c"), path, Options{})
	require.NoError(t, err)
	assert.Equal(t, sid.Sid{Release: 1, Level: 2}, res.GottenSid)
}

func TestExtractKeywordSubstitution(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo.c")
	tbl := delta.NewTable()
	now := sdate.FromTime(sdate.Now().Time())
	require.NoError(t, tbl.Add(&delta.Record{
		Kind: delta.Normal, Sid: sid.Sid{Release: 1, Level: 2}, Date: now,
		User: "alice", Seq: 1, PrevSeq: 0, Inserted: 1,
	}))
	c := codec.New(nil)
	require.NoError(t, c.Write(path, codec.WriteInput{
		Header: codec.Header{Deltas: tbl, Users: []string{"alice"}, Flags: codec.Flags{}},
		Body: []codec.BodyLine{
			{Kind: codec.BodyData, Data: []byte("id=%I%")},
		},
	}))

	res, err := Run(c, filepath.Join(dir, "p.foo.c"), path, Options{
		RequestedSid: sid.Sid{Release: 1, Level: 2},
		Keywords:     true,
	})
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, "id=1.2", res.Lines[0])
	assert.True(t, res.FoundKeyword)
}

func TestExtractForEditRegistersPFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo.c")
	pfilePath := filepath.Join(dir, "p.foo.c")
	buildHistory(t, path)

	c := codec.New(nil)
	res, err := Run(c, pfilePath, path, Options{
		RequestedSid: sid.Sid{Release: 1, Level: 2},
		ForEdit:      true,
		User:         "carol",
	})
	require.NoError(t, err)
	assert.Equal(t, sid.Sid{Release: 1, Level: 3}, res.AssignedSid)
	assert.FileExists(t, pfilePath)
}

func TestExtractSidNotFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo.c")
	buildHistory(t, path)

	c := codec.New(nil)
	_, err := Run(c, filepath.Join(dir, "p.foo.c"), path, Options{
		RequestedSid: sid.Sid{Release: 9, Level: 9},
	})
	assert.Error(t, err)
}

package record

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/sccsgo/sccsgo/codec"
	"github.com/sccsgo/sccsgo/delta"
	"github.com/sccsgo/sccsgo/extract"
	"github.com/sccsgo/sccsgo/filelock"
	"github.com/sccsgo/sccsgo/pfile"
	"github.com/sccsgo/sccsgo/sdate"
	"github.com/sccsgo/sccsgo/sid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildBaseline writes a single-delta (1.1) history file with the given
// lines, and registers a matching p-file checkout entry for editing into
// 1.2.
func buildBaseline(t *testing.T, dir string, lines []string) (sfile, pfileName string) {
	t.Helper()
	sfile = filepath.Join(dir, "s.foo.c")
	pfileName = filepath.Join(dir, "p.foo.c")

	tbl := delta.NewTable()
	now := sdate.FromTime(sdate.Now().Time())
	require.NoError(t, tbl.Add(&delta.Record{
		Kind: delta.Normal, Sid: sid.Sid{Release: 1, Level: 1}, Date: now,
		User: "alice", Seq: 1, PrevSeq: 0, Inserted: len(lines),
	}))

	var body []codec.BodyLine
	for _, l := range lines {
		body = append(body, codec.BodyLine{Kind: codec.BodyData, Data: []byte(l)})
	}

	c := codec.New(nil)
	require.NoError(t, c.Write(sfile, codec.WriteInput{
		Header: codec.Header{Deltas: tbl, Users: []string{"alice"}, Flags: codec.Flags{}},
		Body:   body,
	}))

	require.NoError(t, pfile.Add(pfileName, pfile.Entry{
		Got:      sid.Sid{Release: 1, Level: 1},
		Assigned: sid.Sid{Release: 1, Level: 2},
		User:     "alice",
		Date:     now,
	}))
	return sfile, pfileName
}

func TestApplyNoChangeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sfile, pfileName := buildBaseline(t, dir, []string{"one", "two"})

	c := codec.New(nil)
	res, err := Apply(c, Options{
		SFilePath:  sfile,
		PFilePath:  pfileName,
		Got:        sid.Sid{Release: 1, Level: 1},
		NewContent: strings.NewReader("one\ntwo\n"),
		User:       "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, sid.Sid{Release: 1, Level: 2}, res.NewSid)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, 2, res.Unchanged)

	out, err := extract.Run(c, pfileName, sfile, extract.Options{RequestedSid: sid.Sid{Release: 1, Level: 2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, out.Lines)

	// the p-file entry should have been consumed.
	_, found, err := pfile.Find(pfileName, sid.Sid{Release: 1, Level: 1})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestApplyInsertedLine(t *testing.T) {
	dir := t.TempDir()
	sfile, pfileName := buildBaseline(t, dir, []string{"one", "two"})

	c := codec.New(nil)
	res, err := Apply(c, Options{
		SFilePath:  sfile,
		PFilePath:  pfileName,
		Got:        sid.Sid{Release: 1, Level: 1},
		NewContent: strings.NewReader("one\ninserted\ntwo\n"),
		User:       "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, 2, res.Unchanged)

	out, err := extract.Run(c, pfileName, sfile, extract.Options{RequestedSid: sid.Sid{Release: 1, Level: 2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "inserted", "two"}, out.Lines)

	baseline, err := extract.Run(c, pfileName, sfile, extract.Options{RequestedSid: sid.Sid{Release: 1, Level: 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, baseline.Lines)
}

func TestApplyDeletedLine(t *testing.T) {
	dir := t.TempDir()
	sfile, pfileName := buildBaseline(t, dir, []string{"one", "two", "three"})

	c := codec.New(nil)
	res, err := Apply(c, Options{
		SFilePath:  sfile,
		PFilePath:  pfileName,
		Got:        sid.Sid{Release: 1, Level: 1},
		NewContent: strings.NewReader("one\nthree\n"),
		User:       "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 1, res.Deleted)
	assert.Equal(t, 2, res.Unchanged)

	out, err := extract.Run(c, pfileName, sfile, extract.Options{RequestedSid: sid.Sid{Release: 1, Level: 2}})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "three"}, out.Lines)
}

func TestApplyNoOutstandingEditErrors(t *testing.T) {
	dir := t.TempDir()
	sfile, pfileName := buildBaseline(t, dir, []string{"one"})
	// consume the only entry first so none remain.
	_, err := pfile.Remove(pfileName, sid.Sid{Release: 1, Level: 1})
	require.NoError(t, err)

	c := codec.New(nil)
	_, err = Apply(c, Options{
		SFilePath:  sfile,
		PFilePath:  pfileName,
		Got:        sid.Sid{Release: 1, Level: 1},
		NewContent: strings.NewReader("one\n"),
		User:       "alice",
	})
	assert.Error(t, err)
}

func TestApplyBranchCreatesSubBranchSid(t *testing.T) {
	dir := t.TempDir()
	sfile := filepath.Join(dir, "s.foo.c")
	pfileName := filepath.Join(dir, "p.foo.c")

	tbl := delta.NewTable()
	now := sdate.FromTime(sdate.Now().Time())
	require.NoError(t, tbl.Add(&delta.Record{
		Kind: delta.Normal, Sid: sid.Sid{Release: 1, Level: 1}, Date: now,
		User: "alice", Seq: 1, PrevSeq: 0, Inserted: 2,
	}))
	c := codec.New(nil)
	require.NoError(t, c.Write(sfile, codec.WriteInput{
		Header: codec.Header{Deltas: tbl, Users: []string{"alice"}, Flags: codec.Flags{}},
		Body: []codec.BodyLine{
			{Kind: codec.BodyData, Data: []byte("one")},
			{Kind: codec.BodyData, Data: []byte("two")},
		},
	}))

	// spec.md §8 scenario 3: extracting 1.1 for edit with Branch requested
	// assigns a new sub-branch Sid (1.1.1.1) rather than the trunk
	// successor (1.2), per extract.nextAssignable.
	got, err := extract.Run(c, pfileName, sfile, extract.Options{
		RequestedSid: sid.Sid{Release: 1, Level: 1},
		ForEdit:      true,
		Branch:       true,
		User:         "alice",
	})
	require.NoError(t, err)
	require.Equal(t, sid.Sid{Release: 1, Level: 1, Branch: 1, Sequence: 1}, got.AssignedSid)

	res, err := Apply(c, Options{
		SFilePath:  sfile,
		PFilePath:  pfileName,
		Got:        sid.Sid{Release: 1, Level: 1},
		NewContent: strings.NewReader("one\nbranched\ntwo\n"),
		User:       "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, sid.Sid{Release: 1, Level: 1, Branch: 1, Sequence: 1}, res.NewSid)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 0, res.Deleted)
	assert.Equal(t, 2, res.Unchanged)

	out, err := extract.Run(c, pfileName, sfile, extract.Options{RequestedSid: res.NewSid})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "branched", "two"}, out.Lines)

	trunk, err := extract.Run(c, pfileName, sfile, extract.Options{RequestedSid: sid.Sid{Release: 1, Level: 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, trunk.Lines)
}

func TestApplyLockHeldLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	sfile, pfileName := buildBaseline(t, dir, []string{"one", "two"})

	lock := filelock.New(filepath.Join(dir, "z.foo.c"), nil)
	require.NoError(t, lock.Acquire())
	defer lock.Release()

	c := codec.New(nil)
	_, err := Apply(c, Options{
		SFilePath:  sfile,
		PFilePath:  pfileName,
		Got:        sid.Sid{Release: 1, Level: 1},
		NewContent: strings.NewReader("one\nchanged\n"),
		User:       "alice",
	})
	assert.Error(t, err)

	out, err := extract.Run(c, pfileName, sfile, extract.Options{RequestedSid: sid.Sid{Release: 1, Level: 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, out.Lines)
}

package codec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sccsgo/sccsgo/delta"
	"github.com/sccsgo/sccsgo/sdate"
	"github.com/sccsgo/sccsgo/sid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendGarbage(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString("garbage\n")
	return err
}

func writeRaw(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}

func sampleInput() WriteInput {
	tbl := delta.NewTable()
	rec := &delta.Record{
		Kind:      delta.Normal,
		Sid:       sid.Sid{Release: 1, Level: 1},
		Date:      sdate.FromTime(sdate.Now().Time()),
		User:      "alice",
		Seq:       1,
		Inserted:  2,
		Deleted:   0,
		Unchanged: 0,
	}
	_ = tbl.Add(rec)
	return WriteInput{
		Header: Header{
			Deltas:   tbl,
			Users:    []string{"alice", "bob"},
			Flags:    Flags{Module: "foo", Branch: true},
			Comments: []string{"first file"},
		},
		Body: []BodyLine{
			{Kind: BodyOpenInsert, Seq: 1},
			{Kind: BodyData, Data: []byte("hello")},
			{Kind: BodyData, Data: []byte("world")},
			{Kind: BodyClose, Seq: 1},
		},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo")
	c := New(nil)
	require.NoError(t, c.Write(path, sampleInput()))

	hdr, cursor, closeFn, err := c.Read(path)
	require.NoError(t, err)
	defer closeFn()

	assert.Equal(t, []string{"alice", "bob"}, hdr.Users)
	assert.Equal(t, "foo", hdr.Flags.Module)
	assert.True(t, hdr.Flags.Branch)
	assert.Equal(t, []string{"first file"}, hdr.Comments)

	rec, ok := hdr.Deltas.BySeq(1)
	require.True(t, ok)
	assert.Equal(t, "alice", rec.User)
	assert.Equal(t, 2, rec.Inserted)

	var lines []BodyLine
	for {
		l, err := cursor.Next()
		if err != nil {
			break
		}
		lines = append(lines, l)
	}
	require.Len(t, lines, 4)
	assert.Equal(t, BodyOpenInsert, lines[0].Kind)
	assert.Equal(t, "hello", string(lines[1].Data))
	assert.Equal(t, "world", string(lines[2].Data))
	assert.Equal(t, BodyClose, lines[3].Kind)
}

func TestChecksumInvariant(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo")
	c := New(nil)
	require.NoError(t, c.Write(path, sampleInput()))

	ok, err := VerifyChecksum(path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestChecksumMismatchDetected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo")
	c := New(nil)
	require.NoError(t, c.Write(path, sampleInput()))

	require.NoError(t, appendGarbage(path))
	ok, err := VerifyChecksum(path)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFixChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo")
	c := New(nil)
	require.NoError(t, c.Write(path, sampleInput()))
	require.NoError(t, appendGarbage(path))

	require.NoError(t, FixChecksum(path))
	ok, err := VerifyChecksum(path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNotAnSccsHistoryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.bad")
	require.NoError(t, writeRaw(path, "not a history file\n"))
	c := New(nil)
	_, _, _, err := c.Read(path)
	assert.Error(t, err)
}

func TestBadFileName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.name")
	c := New(nil)
	_, _, _, err := c.Read(path)
	assert.Error(t, err)
}

package admin

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sccsgo/sccsgo/codec"
	"github.com/sccsgo/sccsgo/config"
	"github.com/sccsgo/sccsgo/sid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetFlagModule(t *testing.T) {
	var f codec.Flags
	require.NoError(t, SetFlag(&f, 'm', "foo.c"))
	assert.Equal(t, "foo.c", f.Module)
}

func TestSetFlagInvalidCeiling(t *testing.T) {
	var f codec.Flags
	assert.Error(t, SetFlag(&f, 'c', "notanumber"))
}

func TestUnsetFlagLockedAllRefusesSingleRelease(t *testing.T) {
	f := codec.Flags{LockedAll: true}
	assert.Error(t, UnsetFlag(&f, 'l', "1"))
}

func TestSetUnsetFlagLockedReleases(t *testing.T) {
	var f codec.Flags
	require.NoError(t, SetFlag(&f, 'l', "1,2,3"))
	assert.Equal(t, []sid.Release{1, 2, 3}, f.Locked)
	require.NoError(t, UnsetFlag(&f, 'l', "2"))
	assert.Equal(t, []sid.Release{1, 3}, f.Locked)
}

func TestCreateTextBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo.c")
	cfg := config.Default()

	err := Create(codec.New(nil), cfg, path, CreateOptions{
		Input: strings.NewReader("id=%I%\nsecond line\n"),
		User:  "alice",
	}, nil)
	require.NoError(t, err)

	c := codec.New(nil)
	hdr, cursor, closeFn, err := c.Read(path)
	require.NoError(t, err)
	defer closeFn()

	rec, ok := hdr.Deltas.BySeq(1)
	require.True(t, ok)
	assert.Equal(t, sid.Sid{Release: 1, Level: 1}, rec.Sid)
	assert.Equal(t, "alice", rec.User)

	var lines []string
	for {
		bl, err := cursor.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		lines = append(lines, string(bl.Data))
	}
	assert.Equal(t, []string{"id=%I%", "second line"}, lines)
	assert.False(t, hdr.Flags.Encoded)
}

func TestCreateFatalMissingIDKeyword(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo.c")
	cfg := config.Default()

	err := Create(codec.New(nil), cfg, path, CreateOptions{
		Input: strings.NewReader("no keyword here\n"),
		User:  "alice",
		Flags: codec.Flags{IDKeywordFatal: true},
	}, nil)
	assert.Error(t, err)
}

func TestCreateBinaryFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo.bin")
	cfg := config.Default()
	cfg.BinaryFileCreateAllow = true

	binary := "\x01bad control line\nfollowed by more\n"
	err := Create(codec.New(nil), cfg, path, CreateOptions{
		Input: strings.NewReader(binary),
		User:  "alice",
	}, nil)
	require.NoError(t, err)

	c := codec.New(nil)
	hdr, cursor, closeFn, err := c.Read(path)
	require.NoError(t, err)
	defer closeFn()
	assert.True(t, hdr.Flags.Encoded)

	count := 0
	for {
		_, err := cursor.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Greater(t, count, 0)
}

func TestCreateBinaryRejectedWhenDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo.bin")
	cfg := config.Default()
	cfg.BinaryFileCreateAllow = false

	err := Create(codec.New(nil), cfg, path, CreateOptions{
		Input: strings.NewReader("\x01bad control line\n"),
		User:  "alice",
	}, nil)
	assert.Error(t, err)
}

func TestUuencodeEndsWithZeroLengthLine(t *testing.T) {
	lines := Uuencode([]byte("hello world"))
	require.NotEmpty(t, lines)
	assert.Equal(t, " ", lines[len(lines)-1])
}

func TestAdminMutatesFlagsAndUsers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s.foo.c")
	cfg := config.Default()
	require.NoError(t, Create(codec.New(nil), cfg, path, CreateOptions{
		Input: strings.NewReader("id=%I%\n"),
		User:  "alice",
	}, nil))

	c := codec.New(nil)
	err := Admin(c, path, AdminOptions{
		SetFlags: map[byte]string{'m': "foo.c", 'b': ""},
		AddUsers: []string{"bob"},
	})
	require.NoError(t, err)

	hdr, _, closeFn, err := c.Read(path)
	require.NoError(t, err)
	defer closeFn()
	assert.Equal(t, "foo.c", hdr.Flags.Module)
	assert.True(t, hdr.Flags.Branch)
	assert.Equal(t, []string{"bob"}, hdr.Users)
}

package linediff

import (
	"testing"

	"github.com/sccsgo/sccsgo/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffNoChange(t *testing.T) {
	d := New()
	hunks, err := d.Diff([]string{"a", "b"}, []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, hunks)
}

func TestDiffInsert(t *testing.T) {
	d := New()
	hunks, err := d.Diff([]string{"a", "c"}, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	assert.Equal(t, engine.OpAdd, hunks[0].Op)
	assert.Equal(t, []string{"b"}, hunks[0].Lines)
}

func TestDiffDelete(t *testing.T) {
	d := New()
	hunks, err := d.Diff([]string{"a", "b", "c"}, []string{"a", "c"})
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	assert.Equal(t, engine.OpDelete, hunks[0].Op)
	assert.Equal(t, 1, hunks[0].Count)
}

func TestDiffReplace(t *testing.T) {
	d := New()
	hunks, err := d.Diff([]string{"a", "b"}, []string{"a", "x"})
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	assert.Equal(t, engine.OpChange, hunks[0].Op)
	assert.Equal(t, []string{"x"}, hunks[0].Lines)
}

package linebuf

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadLineBasic(t *testing.T) {
	lb := New(strings.NewReader("hello\nworld\n"), nil)
	l1, err := lb.ReadLine()
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(l1))
	l2, err := lb.ReadLine()
	assert.NoError(t, err)
	assert.Equal(t, "world", string(l2))
	_, err = lb.ReadLine()
	assert.Equal(t, io.EOF, err)
}

func TestEmbeddedNUL(t *testing.T) {
	lb := New(strings.NewReader("a\x00b\n"), nil)
	line, err := lb.ReadLine()
	assert.NoError(t, err)
	assert.Equal(t, "a\x00b", string(line))
	assert.Equal(t, 1, lb.EmbeddedNULs())
}

func TestMissingTrailingNewline(t *testing.T) {
	lb := New(strings.NewReader("abc"), nil)
	_, err := lb.ReadLine()
	assert.Equal(t, ErrUnexpectedEOF, err)
}

// Package linebuf provides a growable line reader over an io.Reader that
// tolerates embedded NUL bytes in a line, the way the classical SCCS tools
// do (a NUL mid-line is data, not a terminator).
package linebuf

import (
	"bufio"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
)

// ErrUnexpectedEOF is returned by ReadLine when the underlying reader ends
// mid-line (a final line with no trailing newline).
var ErrUnexpectedEOF = errors.New("linebuf: unexpected EOF")

// LineBuf wraps a bufio.Reader, growing its internal buffer as needed and
// returning each line without its trailing newline.
type LineBuf struct {
	r       *bufio.Reader
	logger  *logrus.Logger
	lineNo  int
	lastNul int // count of embedded NULs tolerated, for diagnostics
}

// New wraps r. If logger is nil, a logger that discards output is used.
func New(r io.Reader, logger *logrus.Logger) *LineBuf {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &LineBuf{r: bufio.NewReaderSize(r, 4096), logger: logger}
}

// ReadLine reads one line, stripping the trailing "\n" (and a preceding
// "\r" if present). Embedded NUL bytes are preserved verbatim in the
// returned slice. Returns io.EOF when no more data is available and no
// partial line was read.
func (lb *LineBuf) ReadLine() ([]byte, error) {
	line, err := lb.r.ReadBytes('\n')
	if err != nil {
		if err == io.EOF {
			if len(line) == 0 {
				return nil, io.EOF
			}
			lb.logger.Debugf("linebuf: line %d has no trailing newline", lb.lineNo+1)
			return nil, ErrUnexpectedEOF
		}
		return nil, err
	}
	lb.lineNo++
	n := len(line)
	if n > 0 && line[n-1] == '\n' {
		n--
	}
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	for _, b := range line[:n] {
		if b == 0 {
			lb.lastNul++
		}
	}
	out := make([]byte, n)
	copy(out, line[:n])
	return out, nil
}

// LineNo returns the 1-based number of the last line successfully read.
func (lb *LineBuf) LineNo() int { return lb.lineNo }

// EmbeddedNULs returns the count of NUL bytes tolerated so far, for
// diagnostics only.
func (lb *LineBuf) EmbeddedNULs() int { return lb.lastNul }

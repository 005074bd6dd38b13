package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophchat/internal/common"
)

// DefaultMaxFrameSize bounds a single line read from a peer.
const DefaultMaxFrameSize = 64 * 1024

// Reader splits a byte stream into newline-delimited frames.
type Reader struct {
	r   *bufio.Reader
	max int
}

// NewReader returns a Reader over r. Lines longer than maxFrameSize bytes are
// consumed and reported as ErrMalformedFrame; maxFrameSize <= 0 disables the
// limit.
func NewReader(r io.Reader, maxFrameSize int) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 4096), max: maxFrameSize}
}

// ReadFrame returns the next line without its terminator. A final line not
// followed by '\n' is still returned; the next call then reports io.EOF.
func (r *Reader) ReadFrame() ([]byte, error) {
	var (
		buf       []byte
		oversized bool
	)

	for {
		chunk, err := r.r.ReadSlice('\n')

		if !oversized {
			if r.max > 0 && len(buf)+len(chunk) > r.max+1 {
				oversized = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		switch {
		case err == nil:
			if oversized {
				return nil, fmt.Errorf("%w: frame exceeds %d bytes", common.ErrMalformedFrame, r.max)
			}
			return bytes.TrimRight(buf, "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(buf) > 0 && !oversized:
			return bytes.TrimRight(buf, "\r"), nil
		default:
			return nil, err
		}
	}
}

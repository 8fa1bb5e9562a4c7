package server

import (
	"errors"
	"io"
)

const (
	bodyChunkSize = 16 << 10
	// maxEmptyReads bounds consecutive zero-byte reads before the body is considered stalled.
	maxEmptyReads = 100
)

// bodyReadError reports a request body that could not be read to completion.
type bodyReadError struct {
	err error
}

func (e *bodyReadError) Error() string {
	return "read request body: " + e.err.Error()
}

func (e *bodyReadError) Unwrap() error {
	return e.err
}

// readBody drains r into a single buffer. io.EOF ends the body; zero-byte reads are
// retried; any other failure is returned instead of a truncated buffer.
func readBody(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}

	buf := make([]byte, 0, bodyChunkSize)
	chunk := make([]byte, bodyChunkSize)
	empty := 0
	for {
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)

		switch {
		case errors.Is(err, io.EOF):
			return buf, nil
		case err != nil:
			return nil, &bodyReadError{err: err}
		case n == 0:
			empty++
			if empty >= maxEmptyReads {
				return nil, &bodyReadError{err: io.ErrNoProgress}
			}
		default:
			empty = 0
		}
	}
}

// Package sse splits an upstream server-sent-event byte stream into frames
// and writes frames back out in the same "data: ...\n\n" convention.
package sse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// Delimiter separates frames in the stream.
	Delimiter = "\n\n"

	// MaxFrameSize caps the remainder carried over between reads.
	MaxFrameSize = 4 * 1024 * 1024

	readChunkSize = 4096
)

var ErrFrameTooLarge = errors.New("sse: frame exceeds maximum size")

// Split extracts every complete frame from buf and returns the remainder
// that has not been terminated by a delimiter yet.
func Split(buf string) (frames []string, rest string) {
	for {
		i := strings.Index(buf, Delimiter)
		if i < 0 {
			return frames, buf
		}
		frames = append(frames, buf[:i])
		buf = buf[i+len(Delimiter):]
	}
}

// Framer pulls frames out of an io.Reader one at a time. Data read past the
// last delimiter is kept until the next read completes it.
//
// A Framer is a single-pass cursor and is not safe for concurrent use.
type Framer struct {
	src     io.Reader
	buf     []byte
	pending []string
	chunk   []byte
	err     error
}

func NewFramer(src io.Reader) *Framer {
	return &Framer{
		src:   src,
		chunk: make([]byte, readChunkSize),
	}
}

// Next returns the next complete frame. It blocks on the underlying reader
// until a delimiter arrives. At end of stream a non-empty unterminated
// remainder is returned as a final frame, then io.EOF.
func (f *Framer) Next() (string, error) {
	for {
		if len(f.pending) > 0 {
			frame := f.pending[0]
			f.pending = f.pending[1:]
			return frame, nil
		}
		if f.err != nil {
			return "", f.err
		}

		n, err := f.src.Read(f.chunk)
		if n > 0 {
			f.buf = append(f.buf, f.chunk[:n]...)
			f.drain()
			if len(f.buf) > MaxFrameSize {
				f.buf = nil
				f.err = fmt.Errorf("%w (%d bytes)", ErrFrameTooLarge, MaxFrameSize)
			}
		}
		if err != nil {
			if err == io.EOF {
				if tail := f.buf; len(bytes.TrimSpace(tail)) > 0 {
					f.pending = append(f.pending, string(tail))
				}
				f.buf = nil
			}
			if f.err == nil {
				f.err = err
			}
		}
	}
}

// drain moves complete frames from buf into pending.
func (f *Framer) drain() {
	for {
		i := bytes.Index(f.buf, []byte(Delimiter))
		if i < 0 {
			break
		}
		f.pending = append(f.pending, string(f.buf[:i]))
		f.buf = f.buf[i+len(Delimiter):]
	}
}

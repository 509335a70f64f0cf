package sse

import (
	"errors"
	"io"
	"strings"
)

// Decoder turns arbitrary byte chunks into frames. It keeps the trailing
// partial line between calls, so a frame split across chunks is decoded once
// the rest arrives.
type Decoder struct {
	buffer string
}

// Feed appends chunk to the buffer and returns the frames of every line it completes.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.buffer += string(chunk)
	lines := strings.Split(d.buffer, "\n")
	d.buffer = lines[len(lines)-1]

	var frames []Frame
	for _, line := range lines[:len(lines)-1] {
		if f, ok := parseLine(line); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

// Flush decodes whatever is left in the buffer. It is called once the input ends.
func (d *Decoder) Flush() []Frame {
	rest := d.buffer
	d.buffer = ""
	if f, ok := parseLine(rest); ok {
		return []Frame{f}
	}
	return nil
}

// Buffered returns the number of bytes held back as an incomplete line.
func (d *Decoder) Buffered() int {
	return len(d.buffer)
}

const readSize = 4096

// Reader yields the frames of an underlying byte stream one at a time. It can
// be consumed once.
type Reader struct {
	src     io.Reader
	dec     Decoder
	buf     []byte
	pending []Frame
	err     error
}

// NewReader returns a Reader over src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, buf: make([]byte, readSize)}
}

// Next returns the next frame. It returns io.EOF after the last frame of a
// cleanly ended stream, or the read error once buffered frames are drained.
func (r *Reader) Next() (Frame, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return Frame{}, r.err
		}
		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = append(r.pending, r.dec.Feed(r.buf[:n])...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				r.pending = append(r.pending, r.dec.Flush()...)
			}
			r.err = err
		}
	}

	f := r.pending[0]
	r.pending = r.pending[1:]
	return f, nil
}

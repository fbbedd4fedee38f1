// Package body provides the object body streams of OBEX GET and PUT
// operations.
//
// An object body travels in the Body headers of a sequence of packets,
// ending with an EndOfBody header. A Decoder reassembles the body as an
// io.Reader, pulling more packets on demand. An Encoder splits written
// data into packet sized chunks.
package body

import (
	"io"

	"github.com/andaru/obex/obexerr"
)

// Decoder is an object body reader, implementing io.ReadCloser.
//
// Fill is called by Read when no data is buffered and the body is not
// yet complete. It must Feed more data, Finish the body or return an
// error. A nil Fill means no more data will arrive.
type Decoder struct {
	Fill func() error

	buf    []byte
	done   bool
	closed bool
	err    error
}

// Feed appends body data received in a packet
func (d *Decoder) Feed(b []byte) { d.buf = append(d.buf, b...) }

// Finish marks the body complete. Buffered data remains readable.
func (d *Decoder) Finish() { d.done = true }

// Fail marks the body complete with an error, returned by Read once
// buffered data is exhausted.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
	d.done = true
}

// Done returns true once no more data will be fed to the Decoder
func (d *Decoder) Done() bool { return d.done }

// Buffered returns the number of bytes buffered but not yet read
func (d *Decoder) Buffered() int { return len(d.buf) }

// Read reads body data into p, implementing io.Reader.
func (d *Decoder) Read(p []byte) (n int, err error) {
	if d.closed {
		return 0, io.EOF
	}
	for len(d.buf) == 0 && !d.done {
		if d.Fill == nil {
			d.done = true
			break
		}
		if ferr := d.Fill(); ferr != nil {
			d.Fail(ferr)
		}
	}
	if len(d.buf) > 0 {
		n = copy(p, d.buf)
		d.buf = d.buf[n:]
		return
	}
	if d.err != nil {
		return 0, d.err
	}
	return 0, io.EOF
}

// Close closes the body. Further reads return EOF and buffered data
// is discarded.
func (d *Decoder) Close() error {
	d.closed = true
	d.buf = nil
	return nil
}

// Encoder is an object body writer, implementing io.WriteCloser.
//
// Written data is buffered. Whenever more than Capacity bytes are
// buffered, Flush is called with the first Capacity bytes. The last
// chunk is always held back, for the caller to send in its final
// packet. OnClose, if set, is called once by Close.
type Encoder struct {
	Capacity func() int
	Flush    func(chunk []byte) error
	OnClose  func() error

	buf     []byte
	written bool
	closed  bool
}

// Write buffers b, flushing full chunks, implementing io.Writer.
// Writing an empty slice marks the body as present.
func (e *Encoder) Write(b []byte) (int, error) {
	if e.closed {
		return 0, io.ErrClosedPipe
	}
	e.written = true
	e.buf = append(e.buf, b...)
	for {
		c := e.Capacity()
		if c <= 0 {
			return 0, obexerr.ErrBodyTooLarge
		}
		if len(e.buf) <= c {
			break
		}
		if err := e.Flush(e.Next(c)); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

// Next removes and returns up to n bytes from the front of the buffer
func (e *Encoder) Next(n int) []byte {
	if n > len(e.buf) {
		n = len(e.buf)
	}
	chunk := e.buf[:n:n]
	e.buf = e.buf[n:]
	return chunk
}

// Len returns the number of bytes buffered
func (e *Encoder) Len() int { return len(e.buf) }

// Opened returns true if anything, even nothing, was written
func (e *Encoder) Opened() bool { return e.written }

// Close closes the body, calling OnClose the first time.
func (e *Encoder) Close() (err error) {
	if !e.closed {
		e.closed = true
		if e.OnClose != nil {
			err = e.OnClose()
		}
	}
	return err
}

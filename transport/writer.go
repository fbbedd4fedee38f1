package transport

import (
	"io"
	"sync"

	"github.com/andaru/obex/framing"
)

// Writer is an OBEX packet encoder. Each packet is written to the
// destination with a single Write call, so packets sent by concurrent
// callers never interleave.
type Writer struct {
	mu  sync.Mutex
	dst io.Writer
}

// NewWriter returns a new Writer writing to the destination dst.
func NewWriter(dst io.Writer) *Writer { return &Writer{dst: dst} }

type flusher interface{ Flush() error }

// WritePacket frames and writes a packet with the given code whose
// contents are the concatenation of parts. It returns the number of
// bytes written to the destination, including the packet prefix.
func (w *Writer) WritePacket(code byte, parts ...[]byte) (n int, err error) {
	b, err := framing.Encode(code, parts...)
	if err != nil {
		return 0, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if n, err = w.dst.Write(b); err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if err == nil {
		if f, ok := w.dst.(flusher); ok {
			err = f.Flush()
		}
	}
	return n, err
}

// Close closes the underlying writer if it is an io.Closer
func (w *Writer) Close() error {
	if c, ok := w.dst.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

package transport

import (
	"bufio"
	"io"

	"github.com/andaru/obex/framing"
)

// Reader is an OBEX packet decoder.
//
// Each call to ReadPacket returns the next whole packet from the
// source. Data sent on the wire is always framed the same way: a code
// byte and a two byte length inclusive of the prefix. The Reader waits
// for the full declared length before returning the packet, draining
// the stream even when the packet is later rejected.
type Reader struct {
	src     io.Reader
	scanner *bufio.Scanner
}

// NewReader returns a new Reader given the source io.Reader
func NewReader(source io.Reader) *Reader {
	if source == nil {
		panic("NewReader: source must be non-nil")
	}
	return &Reader{src: source}
}

const (
	readerBufsize = 64 * 1024
)

// setup performs one time scanner setup
func (r *Reader) setup() {
	if r.scanner != nil {
		return
	}
	r.scanner = bufio.NewScanner(r.src)
	r.scanner.Buffer(make([]byte, 4096), readerBufsize)
	r.scanner.Split(framing.SplitPacket)
}

// ReadPacket reads the next packet. It returns io.EOF when the source
// ends at a packet boundary, and io.ErrUnexpectedEOF when it ends
// mid-packet. The returned packet does not alias the Reader's buffer.
func (r *Reader) ReadPacket() (p framing.Packet, err error) {
	r.setup()
	if !r.scanner.Scan() {
		if err = r.scanner.Err(); err == nil {
			err = io.EOF
		}
		return
	}
	in := r.scanner.Bytes()
	p.Code = in[0]
	p.Data = make([]byte, len(in)-framing.PrefixLength)
	copy(p.Data, in[framing.PrefixLength:])
	return
}

package transport

import (
	"io"
	"sync"
)

// Transport is an established connection carrying an OBEX session.
type Transport interface {
	// OpenInputStream returns the stream of bytes sent by the peer
	OpenInputStream() (io.ReadCloser, error)
	// OpenOutputStream returns the stream of bytes sent to the peer
	OpenOutputStream() (io.WriteCloser, error)
	// Close closes the connection and both of its streams
	Close() error
}

// PacketSizer is implemented by transports limiting the OBEX packet
// size below the negotiated value, such as L2CAP channels with a
// small MTU. A non-positive result means no limit.
type PacketSizer interface {
	MaxPacketSize() int
}

// MaxPacketSize returns the packet size limit of t, or 0 when t
// places no limit.
func MaxPacketSize(t Transport) int {
	if ps, ok := t.(PacketSizer); ok {
		if n := ps.MaxPacketSize(); n > 0 {
			return n
		}
	}
	return 0
}

// Stream is a Transport over a single bidirectional stream, such as
// a net.Conn. Closing either of its streams closes the connection.
type Stream struct {
	rwc       io.ReadWriteCloser
	maxPacket int

	once sync.Once
	err  error
}

// StreamOption is a constructor option for a Stream
type StreamOption func(*Stream)

// WithMaxPacketSize limits the OBEX packet size used over the Stream.
func WithMaxPacketSize(size int) StreamOption {
	return func(s *Stream) { s.maxPacket = size }
}

// NewStream returns a new Stream transport over rwc, configured by opts
func NewStream(rwc io.ReadWriteCloser, opts ...StreamOption) *Stream {
	s := &Stream{rwc: rwc}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenInputStream implements Transport
func (s *Stream) OpenInputStream() (io.ReadCloser, error) { return streamHalf{s}, nil }

// OpenOutputStream implements Transport
func (s *Stream) OpenOutputStream() (io.WriteCloser, error) { return streamHalf{s}, nil }

// MaxPacketSize implements PacketSizer
func (s *Stream) MaxPacketSize() int { return s.maxPacket }

// Close closes the underlying stream. It is safe to call more than once.
func (s *Stream) Close() error {
	s.once.Do(func() { s.err = s.rwc.Close() })
	return s.err
}

// Conn returns the stream the transport was created with
func (s *Stream) Conn() io.ReadWriteCloser { return s.rwc }

type streamHalf struct{ s *Stream }

func (h streamHalf) Read(b []byte) (int, error)  { return h.s.rwc.Read(b) }
func (h streamHalf) Write(b []byte) (int, error) { return h.s.rwc.Write(b) }
func (h streamHalf) Close() error                { return h.s.Close() }

var _ PacketSizer = &Stream{}

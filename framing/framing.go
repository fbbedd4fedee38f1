package framing

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

const (
	// PrefixLength is the fixed opcode and length prefix of every packet
	PrefixLength = 3
	// ConnectPrefixLength is the CONNECT packet prefix: the common prefix
	// plus version, flags and the two byte maximum packet size.
	ConnectPrefixLength = 7
	// MaxLength is the largest length a packet can declare
	MaxLength = 0xFFFF

	// Version is the OBEX protocol version sent in CONNECT packets (1.0)
	Version = 0x10

	// MinPacketSize is the packet size every session starts with
	MinPacketSize = 256
	// MaxPacketSize is the ceiling applied to a peer's proposed packet size
	MaxPacketSize = 0xFFFE
	// MaxClientPacketSize is the ceiling applied by clients to a server's
	// advertised packet size.
	MaxClientPacketSize = 0xFC00
	// ReducedClientPacketSize is the packet size forced by clients with
	// MTU reduction enabled (used alongside bandwidth heavy links).
	ReducedClientPacketSize = 0x2000
)

// ErrPacketTooLong is returned by Encode for packets above MaxLength
var ErrPacketTooLong = errors.New("packet longer than 65535 bytes")

// ErrBadPacket is a packet framing error
type ErrBadPacket struct {
	Message string
	Offset  int
}

func (e ErrBadPacket) Error() string {
	msg := "obex bad packet"
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	if e.Offset < 1 {
		return msg
	}
	return fmt.Sprintf("%s at input offset %d", msg, e.Offset)
}

// Packet is a single OBEX request or response packet.
type Packet struct {
	// Code is the opcode (requests) or response code (responses)
	Code byte
	// Data holds the packet contents following the three byte prefix
	Data []byte
}

// Len returns the packet's length on the wire
func (p Packet) Len() int { return PrefixLength + len(p.Data) }

// Opcode returns the packet code as a request Opcode
func (p Packet) Opcode() Opcode { return Opcode(p.Code) }

// Bytes returns the packet's wire encoding
func (p Packet) Bytes() ([]byte, error) { return Encode(p.Code, p.Data) }

// Encode returns the wire encoding of a packet with the given code,
// whose contents are the concatenation of parts.
func Encode(code byte, parts ...[]byte) ([]byte, error) {
	length := PrefixLength
	for _, part := range parts {
		length += len(part)
	}
	if length > MaxLength {
		return nil, errors.WithStack(ErrPacketTooLong)
	}
	b := make([]byte, PrefixLength, length)
	b[0] = code
	binary.BigEndian.PutUint16(b[1:], uint16(length))
	for _, part := range parts {
		b = append(b, part...)
	}
	return b, nil
}

// SplitPacket is a bufio.SplitFunc returning whole OBEX packets as tokens.
//
// The scanner using it must have a buffer of at least MaxLength bytes so
// that any declared length can be consumed in full.
func SplitPacket(b []byte, atEOF bool) (advance int, token []byte, err error) {
	switch {
	case atEOF && len(b) == 0:
		// end of stream at a packet boundary
		return
	case len(b) < PrefixLength:
		if atEOF {
			err = io.ErrUnexpectedEOF
		}
		return
	}
	length := int(binary.BigEndian.Uint16(b[1:PrefixLength]))
	switch {
	case length < PrefixLength:
		err = ErrBadPacket{Message: fmt.Sprintf("declared length %d shorter than packet prefix", length), Offset: 1}
	case len(b) < length:
		if atEOF {
			err = io.ErrUnexpectedEOF
		}
	default:
		advance = length
		token = b[:length]
	}
	return
}

// ParsePacket decodes a single packet held entirely in b.
func ParsePacket(b []byte) (Packet, error) {
	advance, token, err := SplitPacket(b, true)
	switch {
	case err != nil:
		return Packet{}, err
	case token == nil:
		return Packet{}, io.ErrUnexpectedEOF
	case advance != len(b):
		return Packet{}, ErrBadPacket{Message: "trailing data after packet", Offset: advance}
	}
	return Packet{Code: token[0], Data: token[PrefixLength:]}, nil
}

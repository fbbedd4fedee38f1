package header

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
)

// ErrMalformed is a header decoding error
type ErrMalformed struct {
	Message string
	Offset  int
}

func (e ErrMalformed) Error() string {
	msg := "obex malformed headers"
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	return fmt.Sprintf("%s at offset %d", msg, e.Offset)
}

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// Encode returns the wire encoding of the headers in s, in IDs order.
// A nil Set encodes to nothing.
func Encode(s *Set) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	var b []byte
	for _, id := range s.IDs() {
		var err error
		if b, err = appendHeader(b, id, s.values[id]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// EncodedLen returns the length of s's encoding
func EncodedLen(s *Set) (int, error) {
	b, err := Encode(s)
	return len(b), err
}

// AppendBody appends a Body (or, if final, EndOfBody) header carrying
// data to b.
func AppendBody(b []byte, data []byte, final bool) []byte {
	id := Body
	if final {
		id = EndOfBody
	}
	b, _ = appendHeader(b, id, data)
	return b
}

// BodyOverhead is the encoded size of a body header carrying nothing
const BodyOverhead = 3

func appendHeader(b []byte, id ID, v interface{}) ([]byte, error) {
	switch id.Kind() {
	case KindText:
		s := v.(string)
		var enc []byte
		if s != "" {
			u, err := utf16be.NewEncoder().Bytes([]byte(s))
			if err != nil {
				return nil, errors.Wrapf(err, "header %s", id)
			}
			enc = append(u, 0, 0)
		}
		return appendSeq(b, id, enc)
	case KindBytes:
		return appendSeq(b, id, v.([]byte))
	case KindByte:
		return append(b, byte(id), v.(byte)), nil
	default:
		b = append(b, byte(id), 0, 0, 0, 0)
		binary.BigEndian.PutUint32(b[len(b)-4:], v.(uint32))
		return b, nil
	}
}

func appendSeq(b []byte, id ID, v []byte) ([]byte, error) {
	n := 3 + len(v)
	if n > 0xFFFF {
		return nil, errors.Errorf("header %s value too long (%d bytes)", id, len(v))
	}
	b = append(b, byte(id), byte(n>>8), byte(n))
	return append(b, v...), nil
}

// Decode decodes the headers in data into s, returning any body
// carried by Body or EndOfBody headers. A returned body is prefixed by
// the ID of the header carrying it (Body or EndOfBody), telling the
// caller whether the object's body is complete.
func Decode(data []byte, s *Set) (body []byte, err error) {
	for off := 0; off < len(data); {
		id := ID(data[off])
		var size int
		switch id.Kind() {
		case KindByte:
			size = 2
		case KindUint32:
			size = 5
		default:
			if off+3 > len(data) {
				return nil, ErrMalformed{Message: fmt.Sprintf("truncated %s header length", id), Offset: off}
			}
			if size = int(binary.BigEndian.Uint16(data[off+1:])); size < 3 {
				return nil, ErrMalformed{Message: fmt.Sprintf("%s header length %d", id, size), Offset: off + 1}
			}
		}
		if off+size > len(data) {
			return nil, ErrMalformed{Message: fmt.Sprintf("truncated %s header", id), Offset: off}
		}
		h := data[off : off+size]
		switch id.Kind() {
		case KindByte:
			s.SetByte(id, h[1])
		case KindUint32:
			s.SetUint32(id, binary.BigEndian.Uint32(h[1:]))
		case KindText:
			v, derr := decodeText(h[3:])
			if derr != nil {
				return nil, ErrMalformed{Message: derr.Error(), Offset: off + 3}
			}
			s.SetText(id, v)
		default:
			switch id {
			case Body, EndOfBody:
				if body == nil {
					body = []byte{byte(id)}
				}
				body[0] = byte(id)
				body = append(body, h[3:]...)
			default:
				s.SetBytes(id, h[3:])
			}
		}
		off += size
	}
	return body, nil
}

func decodeText(v []byte) (string, error) {
	if len(v)%2 != 0 {
		return "", errors.New("odd length UTF-16 text")
	}
	if n := len(v); n >= 2 && v[n-2] == 0 && v[n-1] == 0 {
		v = v[:n-2]
	}
	b, err := utf16be.NewDecoder().Bytes(v)
	return string(b), err
}

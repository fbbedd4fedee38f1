package header

import (
	"fmt"
	"sort"
	"time"

	"github.com/andaru/obex/auth"
	"github.com/andaru/obex/obexerr"
	"github.com/pkg/errors"
)

// Set is a collection of OBEX headers holding at most one value per
// header ID. Setting a header replaces any previous value.
//
// The zero value is an empty Set ready to use. A Set is not safe for
// concurrent use.
type Set struct {
	// ResponseCode is the code of the response the headers arrived in
	// (received replies only; never encoded)
	ResponseCode obexerr.Code

	values map[ID]interface{}
	nonce  []byte
}

// New returns an empty Set
func New() *Set { return &Set{} }

func (s *Set) set(id ID, kind Kind, v interface{}) {
	if id.Kind() != kind {
		panic(fmt.Sprintf("header %s is not a %s header", id, kindNames[kind]))
	}
	if s.values == nil {
		s.values = make(map[ID]interface{})
	}
	s.values[id] = v
}

var kindNames = map[Kind]string{
	KindText:   "text",
	KindBytes:  "byte sequence",
	KindByte:   "single byte",
	KindUint32: "four byte",
}

// SetText sets a text header. It panics if id is not a text header.
func (s *Set) SetText(id ID, v string) { s.set(id, KindText, v) }

// SetBytes sets a byte sequence header. It panics if id is not a byte
// sequence header. The value is copied.
func (s *Set) SetBytes(id ID, v []byte) { s.set(id, KindBytes, append([]byte{}, v...)) }

// SetByte sets a single byte header. It panics if id is not a single
// byte header.
func (s *Set) SetByte(id ID, v byte) { s.set(id, KindByte, v) }

// SetUint32 sets a four byte header. It panics if id is not a four
// byte header.
func (s *Set) SetUint32(id ID, v uint32) { s.set(id, KindUint32, v) }

// Text returns a text header's value
func (s *Set) Text(id ID) (v string, ok bool) {
	v, ok = s.values[id].(string)
	return
}

// Bytes returns a byte sequence header's value
func (s *Set) Bytes(id ID) (v []byte, ok bool) {
	v, ok = s.values[id].([]byte)
	return
}

// Byte returns a single byte header's value
func (s *Set) Byte(id ID) (v byte, ok bool) {
	v, ok = s.values[id].(byte)
	return
}

// Uint32 returns a four byte header's value
func (s *Set) Uint32(id ID) (v uint32, ok bool) {
	v, ok = s.values[id].(uint32)
	return
}

// Has returns true if the header id is present
func (s *Set) Has(id ID) bool {
	_, ok := s.values[id]
	return ok
}

// Del removes the header id
func (s *Set) Del(id ID) { delete(s.values, id) }

// Len returns the number of headers present
func (s *Set) Len() int { return len(s.values) }

// IDs returns the IDs of all headers present, in encoding order.
func (s *Set) IDs() []ID {
	ids := make([]ID, 0, len(s.values))
	for id := range s.values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return order(ids[i]) < order(ids[j]) })
	return ids
}

// order ranks ConnectionID first and Target second, as required of
// the first headers of a request, and the body headers last.
func order(id ID) int {
	switch id {
	case ConnectionID:
		return -2
	case Target:
		return -1
	case Body:
		return 0x100
	case EndOfBody:
		return 0x101
	}
	return int(id)
}

// Clone returns a deep copy of s. A nil Set clones to an empty Set.
func (s *Set) Clone() *Set {
	c := &Set{}
	if s == nil {
		return c
	}
	c.ResponseCode = s.ResponseCode
	c.nonce = append([]byte(nil), s.nonce...)
	for id, v := range s.values {
		if b, ok := v.([]byte); ok {
			v = append([]byte{}, b...)
		}
		c.set(id, id.Kind(), v)
	}
	return c
}

// Merge copies every header of o into s, replacing values s holds for
// the same IDs.
func (s *Set) Merge(o *Set) {
	if o == nil {
		return
	}
	for id, v := range o.values {
		if b, ok := v.([]byte); ok {
			v = append([]byte{}, b...)
		}
		s.set(id, id.Kind(), v)
	}
}

// SetName sets the Name header
func (s *Set) SetName(name string) { s.SetText(Name, name) }

// Name returns the Name header
func (s *Set) Name() (string, bool) { return s.Text(Name) }

// SetType sets the Type header, a null terminated ASCII media type
func (s *Set) SetType(mediaType string) { s.SetBytes(Type, append([]byte(mediaType), 0)) }

// Type returns the Type header without its terminator
func (s *Set) Type() (string, bool) {
	b, ok := s.Bytes(Type)
	if n := len(b); n > 0 && b[n-1] == 0 {
		b = b[:n-1]
	}
	return string(b), ok
}

// ErrLengthRange is returned by SetLength for values the wire format
// cannot carry.
var ErrLengthRange = errors.New("length exceeds 32 bits")

// SetLength sets the Length header. Lengths are 64-bit at the API but
// only values up to 2^32-1 can be sent.
func (s *Set) SetLength(n uint64) error {
	if n > 0xFFFFFFFF {
		return errors.WithStack(ErrLengthRange)
	}
	s.SetUint32(Length, uint32(n))
	return nil
}

// Length returns the Length header
func (s *Set) Length() (uint64, bool) {
	v, ok := s.Uint32(Length)
	return uint64(v), ok
}

const (
	timeLayoutUTC   = "20060102T150405Z"
	timeLayoutLocal = "20060102T150405"
)

// SetTime sets the ISO 8601 Time header, in UTC
func (s *Set) SetTime(t time.Time) {
	s.SetBytes(TimeISO8601, []byte(t.UTC().Format(timeLayoutUTC)))
}

// Time returns the time from the ISO 8601 Time header, or failing
// that, the four byte Time header.
func (s *Set) Time() (time.Time, bool) {
	if b, ok := s.Bytes(TimeISO8601); ok {
		if t, err := time.Parse(timeLayoutUTC, string(b)); err == nil {
			return t, true
		}
		if t, err := time.ParseInLocation(timeLayoutLocal, string(b), time.Local); err == nil {
			return t, true
		}
	}
	if v, ok := s.Uint32(Time4Byte); ok {
		return time.Unix(int64(v), 0).UTC(), true
	}
	return time.Time{}, false
}

// SetConnectionID sets the ConnectionID header
func (s *Set) SetConnectionID(id uint32) { s.SetUint32(ConnectionID, id) }

// ConnectionID returns the ConnectionID header
func (s *Set) ConnectionID() (uint32, bool) { return s.Uint32(ConnectionID) }

// CreateAuthenticationChallenge attaches an AuthChallenge header with a
// fresh nonce to s. The nonce is recorded in s (see Nonce) so the
// session sending s can verify the peer's response.
func (s *Set) CreateAuthenticationChallenge(realm string, userIDRequired, fullAccess bool) error {
	c, err := auth.NewChallenge(realm, userIDRequired, fullAccess)
	if err != nil {
		return err
	}
	b, err := c.Encode()
	if err != nil {
		return err
	}
	s.SetBytes(AuthChallenge, b)
	s.nonce = c.Nonce[:]
	return nil
}

// Nonce returns the nonce of the challenge created with
// CreateAuthenticationChallenge, or nil.
func (s *Set) Nonce() []byte { return s.nonce }

package body

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/andaru/obex/obexerr"
	"github.com/stretchr/testify/assert"
)

func TestDecoder(t *testing.T) {
	for _, tc := range []struct {
		name   string
		chunks [][]byte
		err    error
		want   string
	}{
		{name: "empty"},
		{name: "single", chunks: [][]byte{[]byte("foo")}, want: "foo"},
		{name: "several", chunks: [][]byte{[]byte("foo"), nil, []byte("bar"), []byte("baz")}, want: "foobarbaz"},
		{name: "failure after data", chunks: [][]byte{[]byte("foo")}, err: errors.New("boom"), want: "foo"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			chunks := tc.chunks
			var fills int
			d := &Decoder{}
			d.Fill = func() error {
				fills++
				if len(chunks) == 0 {
					if tc.err != nil {
						return tc.err
					}
					d.Finish()
					return nil
				}
				d.Feed(chunks[0])
				chunks = chunks[1:]
				return nil
			}
			var b bytes.Buffer
			_, err := io.Copy(&b, d)
			if tc.err != nil {
				a.Equal(tc.err, err)
			} else {
				a.NoError(err)
			}
			a.Equal(tc.want, b.String())
			a.True(d.Done())
			a.Equal(len(tc.chunks)+1, fills)
		})
	}
}

func TestDecoderPrefed(t *testing.T) {
	a := assert.New(t)
	d := &Decoder{}
	d.Feed([]byte("hello"))
	d.Finish()
	a.Equal(5, d.Buffered())
	p := make([]byte, 3)
	n, err := d.Read(p)
	a.NoError(err)
	a.Equal("hel", string(p[:n]))
	a.NoError(d.Close())
	n, err = d.Read(p)
	a.Equal(0, n)
	a.Equal(io.EOF, err)

	// a nil Fill ends the body
	d = &Decoder{}
	_, err = d.Read(p)
	a.Equal(io.EOF, err)
}

func TestEncoder(t *testing.T) {
	for _, tc := range []struct {
		name     string
		capacity int
		writes   []string
		flushed  []string
		rest     string
		err      error
	}{
		{name: "held back", capacity: 4, writes: []string{"abcd"}, rest: "abcd"},
		{name: "one flush", capacity: 4, writes: []string{"abcde"}, flushed: []string{"abcd"}, rest: "e"},
		{
			name:     "many writes",
			capacity: 3,
			writes:   []string{"ab", "cd", "efgh", "i"},
			flushed:  []string{"abc", "def"},
			rest:     "ghi",
		},
		{name: "no room", capacity: 0, writes: []string{"a"}, err: obexerr.ErrBodyTooLarge, rest: "a"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			var flushed []string
			var closed int
			e := &Encoder{
				Capacity: func() int { return tc.capacity },
				Flush: func(chunk []byte) error {
					flushed = append(flushed, string(chunk))
					return nil
				},
				OnClose: func() error { closed++; return nil },
			}
			a.False(e.Opened())
			var err error
			for _, w := range tc.writes {
				if _, err = e.Write([]byte(w)); err != nil {
					break
				}
			}
			a.Equal(tc.err, err)
			a.Equal(tc.flushed, flushed)
			a.True(e.Opened())
			a.Equal(tc.rest, string(e.Next(e.Len())))
			a.NoError(e.Close())
			a.NoError(e.Close())
			a.Equal(1, closed)
			_, err = e.Write([]byte("x"))
			a.Equal(io.ErrClosedPipe, err)
		})
	}
}

func TestEncoderEmptyWrite(t *testing.T) {
	a := assert.New(t)
	e := &Encoder{Capacity: func() int { return 10 }}
	n, err := e.Write(nil)
	a.NoError(err)
	a.Equal(0, n)
	a.True(e.Opened())
	a.NoError(e.Close())
}

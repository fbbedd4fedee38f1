package framing

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitPacket(t *testing.T) {
	for _, tc := range []struct {
		name   string
		input  []byte
		want   []Packet
		hasErr bool
	}{
		{name: "empty"},
		{
			name:  "bare prefix",
			input: []byte{0xA0, 0x00, 0x03},
			want:  []Packet{{Code: 0xA0, Data: []byte{}}},
		},
		{
			name:  "connect",
			input: []byte{0x80, 0x00, 0x07, 0x10, 0x00, 0x01, 0x00},
			want:  []Packet{{Code: 0x80, Data: []byte{0x10, 0x00, 0x01, 0x00}}},
		},
		{
			name:  "two packets",
			input: []byte{0x83, 0x00, 0x05, 0xCB, 0x01, 0x90, 0x00, 0x04, 0x42},
			want: []Packet{
				{Code: 0x83, Data: []byte{0xCB, 0x01}},
				{Code: 0x90, Data: []byte{0x42}},
			},
		},
		{
			name:   "truncated prefix",
			input:  []byte{0x83, 0x00},
			hasErr: true,
		},
		{
			name:   "truncated data",
			input:  []byte{0x83, 0x00, 0x08, 0x01},
			hasErr: true,
		},
		{
			name:   "declared length too short",
			input:  []byte{0x83, 0x00, 0x02, 0x01},
			hasErr: true,
		},
		{
			name:   "trailing partial packet",
			input:  []byte{0xA0, 0x00, 0x03, 0xA0},
			want:   []Packet{{Code: 0xA0, Data: []byte{}}},
			hasErr: true,
		},
	} {
		for _, bsize := range []int{1, 2, 3, 7, 64} {
			t.Run(fmt.Sprintf("%s/%d", tc.name, bsize), func(t *testing.T) {
				ck := assert.New(t)
				scanner := bufio.NewScanner(&oneByteReader{r: bytes.NewReader(tc.input), n: bsize})
				scanner.Buffer(make([]byte, 16), MaxLength+1)
				scanner.Split(SplitPacket)
				var got []Packet
				for scanner.Scan() {
					tok := scanner.Bytes()
					got = append(got, Packet{Code: tok[0], Data: append([]byte{}, tok[PrefixLength:]...)})
				}
				serr := scanner.Err()
				ck.True(serr == nil && !tc.hasErr || serr != nil && tc.hasErr, "want an error only if hasErr true, got %v (hasErr %v)", serr, tc.hasErr)
				ck.Equal(tc.want, got)
			})
		}
	}
}

func TestEncode(t *testing.T) {
	ck := assert.New(t)

	b, err := Encode(byte(OpConnect), []byte{Version, 0x00}, []byte{0x01, 0x00})
	ck.NoError(err)
	ck.Equal([]byte{0x80, 0x00, 0x07, 0x10, 0x00, 0x01, 0x00}, b)

	b, err = Encode(0xA0)
	ck.NoError(err)
	ck.Equal([]byte{0xA0, 0x00, 0x03}, b)

	// the declared length always equals the encoded length
	for _, n := range []int{0, 1, 252, 253, 4096, MaxLength - PrefixLength} {
		b, err = Encode(byte(OpPut), make([]byte, n))
		if ck.NoError(err) {
			p, perr := ParsePacket(b)
			ck.NoError(perr)
			ck.Equal(len(b), p.Len())
			ck.Equal(n, len(p.Data))
		}
	}

	_, err = Encode(byte(OpPut), make([]byte, MaxLength-PrefixLength+1))
	ck.ErrorIs(err, ErrPacketTooLong)
}

func TestParsePacket(t *testing.T) {
	ck := assert.New(t)
	_, err := ParsePacket(nil)
	ck.ErrorIs(err, io.ErrUnexpectedEOF)
	_, err = ParsePacket([]byte{0xA0, 0x00, 0x03, 0x00})
	ck.EqualError(err, "obex bad packet: trailing data after packet at input offset 3")
	p, err := ParsePacket([]byte{0xA0, 0x00, 0x04, 0x42})
	ck.NoError(err)
	ck.Equal(Packet{Code: 0xA0, Data: []byte{0x42}}, p)
	_, err = ParsePacket([]byte{0xA0, 0x00, 0x01})
	ck.EqualError(err, "obex bad packet: declared length 1 shorter than packet prefix at input offset 1")
}

func TestOpcode(t *testing.T) {
	ck := assert.New(t)
	ck.Equal("GET_FINAL", OpGetFinal.String())
	ck.Equal("Opcode(0x10)", Opcode(0x10).String())
	ck.True(OpPutFinal.Final())
	ck.False(OpPut.Final())
	ck.True(OpConnect.Final())
}

// oneByteReader returns at most n bytes per Read, exercising
// the split function with partial input.
type oneByteReader struct {
	r io.Reader
	n int
}

func (o *oneByteReader) Read(b []byte) (int, error) {
	if len(b) > o.n {
		b = b[:o.n]
	}
	return o.r.Read(b)
}

package transport

import (
	"bufio"
	"bytes"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/andaru/obex/framing"
	"github.com/stretchr/testify/assert"
	"golang.org/x/net/context"
)

func TestWriter(t *testing.T) {
	for _, tc := range []struct {
		f func(*assert.Assertions)
	}{
		{
			f: func(a *assert.Assertions) {
				b := closeBuffer{&bytes.Buffer{}}
				w := NewWriter(b)
				n, err := w.WritePacket(0xA0)
				a.NoError(err)
				a.Equal(3, n)
				a.Equal([]byte{0xA0, 0x00, 0x03}, b.Bytes())
			},
		},
		{
			f: func(a *assert.Assertions) {
				b := closeBuffer{&bytes.Buffer{}}
				w := NewWriter(b)
				_, err := w.WritePacket(byte(framing.OpSetPath), []byte{0x02, 0x00}, []byte{0x01, 0x00, 0x03})
				a.NoError(err)
				a.Equal([]byte{0x85, 0x00, 0x08, 0x02, 0x00, 0x01, 0x00, 0x03}, b.Bytes())
			},
		},
		{
			f: func(a *assert.Assertions) {
				b := closeBuffer{&bytes.Buffer{}}
				w := NewWriter(b)
				_, err := w.WritePacket(byte(framing.OpPut), make([]byte, framing.MaxLength))
				a.ErrorIs(err, framing.ErrPacketTooLong)
				a.Equal(0, b.Len())
			},
		},
		{
			f: func(a *assert.Assertions) {
				var buf bytes.Buffer
				bw := bufio.NewWriter(&buf)
				w := NewWriter(bw)
				_, err := w.WritePacket(0xA0)
				a.NoError(err)
				// flushed by the writer
				a.Equal(3, buf.Len())
			},
		},
	} {
		t.Run("", func(t *testing.T) { tc.f(assert.New(t)) })
	}
}

func TestWriterConcurrent(t *testing.T) {
	a := assert.New(t)
	b := closeBuffer{&bytes.Buffer{}}
	w := NewWriter(b)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = w.WritePacket(byte(framing.OpPut), bytes.Repeat([]byte{byte(i)}, 100))
		}(i)
	}
	wg.Wait()
	r := NewReader(bytes.NewReader(b.Bytes()))
	for i := 0; i < 8; i++ {
		p, err := r.ReadPacket()
		if a.NoError(err) {
			a.Equal(bytes.Repeat(p.Data[:1], 100), p.Data)
		}
	}
}

func TestStream(t *testing.T) {
	a := assert.New(t)
	c1, c2 := net.Pipe()
	defer c2.Close()
	s := NewStream(c1, WithMaxPacketSize(512))
	a.Equal(512, MaxPacketSize(s))
	a.Equal(0, MaxPacketSize(NewStream(c2)))

	in, err := s.OpenInputStream()
	a.NoError(err)
	out, err := s.OpenOutputStream()
	a.NoError(err)

	go func() { _, _ = c2.Write([]byte{0xA0, 0x00, 0x03}) }()
	p, err := NewReader(in).ReadPacket()
	a.NoError(err)
	a.Equal(byte(0xA0), p.Code)

	// closing one half closes the connection
	a.NoError(out.Close())
	a.NoError(in.Close())
	a.NoError(s.Close())
	_, err = c2.Write([]byte{0})
	a.Error(err)
}

func TestDial(t *testing.T) {
	a := assert.New(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if !a.NoError(err) {
		return
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			_, _ = c.Write([]byte{0xA0, 0x00, 0x03})
			c.Close()
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Dial(ctx, "tcp", ln.Addr().String())
	if !a.NoError(err) {
		return
	}
	defer s.Close()
	in, _ := s.OpenInputStream()
	p, err := NewReader(in).ReadPacket()
	a.NoError(err)
	a.Equal(byte(0xA0), p.Code)
}

type closeBuffer struct{ *bytes.Buffer }

func (cb closeBuffer) Close() error { return nil }

package session

import (
	"bytes"
	"io"
	"math/rand"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/andaru/obex/auth"
	"github.com/andaru/obex/framing"
	"github.com/andaru/obex/header"
	"github.com/andaru/obex/obexerr"
	"github.com/andaru/obex/transport"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestSessionMinimal(t *testing.T) {
	a := assert.New(t)
	h := newMemHandler()
	var replies []obexerr.Code
	c, s := newSessionPair(t, h, ClientConfig{}, ServerConfig{
		OnReply: func(op framing.Opcode, code obexerr.Code) { replies = append(replies, code) },
	})
	a.Equal(State{Status: StatusOpen}, c.State())

	reply, err := c.Connect(nil)
	a.NoError(err)
	a.Equal(obexerr.OK, reply.ResponseCode)
	a.True(c.Connected())
	id, ok := c.ConnectionID()
	a.True(ok)
	a.Equal(uint32(1), id)

	_, err = c.Connect(nil)
	a.Equal(obexerr.ErrAlreadyConnected, errors.Cause(err))

	reply, err = c.Disconnect(nil)
	a.NoError(err)
	a.Equal(obexerr.OK, reply.ResponseCode)
	a.False(c.Connected())
	_, ok = c.ConnectionID()
	a.False(ok)

	waitDone(t, s)
	a.Equal([]obexerr.Code{obexerr.OK, obexerr.OK}, replies)
	a.True(h.closed)
	a.Equal(1, h.connects)

	_, err = c.SetPath(nil, false, true)
	a.Equal(obexerr.ErrNotConnected, errors.Cause(err))
}

func TestConnectNegotiation(t *testing.T) {
	for _, tc := range []struct {
		name       string
		client     ClientConfig
		server     ServerConfig
		opts       []transport.StreamOption
		wantClient int
		wantServer int
	}{
		{
			name:       "defaults",
			wantClient: framing.MaxClientPacketSize,
			wantServer: framing.MaxPacketSize,
		},
		{
			name:       "server limit",
			client:     ClientConfig{MaxPacketSize: 4096},
			server:     ServerConfig{MaxPacketSize: 1024},
			wantClient: 1024,
			wantServer: 1024,
		},
		{
			name:       "client limit",
			client:     ClientConfig{MaxPacketSize: 600},
			wantClient: 600,
			wantServer: 600,
		},
		{
			name:       "reduced mtu",
			client:     ClientConfig{ReduceMTU: true},
			wantClient: framing.ReducedClientPacketSize,
			wantServer: framing.MaxPacketSize,
		},
		{
			name:       "transport limit",
			opts:       []transport.StreamOption{transport.WithMaxPacketSize(512)},
			wantClient: 512,
			wantServer: framing.MaxPacketSize,
		},
		{
			name:       "below minimum",
			client:     ClientConfig{MaxPacketSize: 10},
			wantClient: framing.MinPacketSize,
			wantServer: framing.MinPacketSize,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			c, s := newSessionPair(t, newMemHandler(), tc.client, tc.server, tc.opts...)
			a.Equal(framing.MinPacketSize, c.MaxPacketSize())
			reply, err := c.Connect(nil)
			a.NoError(err)
			a.Equal(obexerr.OK, reply.ResponseCode)
			a.Equal(tc.wantClient, c.MaxPacketSize())
			_, err = c.Disconnect(nil)
			a.NoError(err)
			waitDone(t, s)
			a.Equal(tc.wantServer, s.MaxPacketSize())
		})
	}
}

func TestPutGet(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, tc := range []struct {
		name      string
		size      int
		clientSRM bool
		serverSRM bool
	}{
		{name: "empty", size: 0},
		{name: "small", size: 10},
		{name: "multi packet", size: 5000},
		{name: "large", size: 70000},
		{name: "empty srm", size: 0, clientSRM: true, serverSRM: true},
		{name: "multi packet srm", size: 5000, clientSRM: true, serverSRM: true},
		{name: "large srm", size: 70000, clientSRM: true, serverSRM: true},
		{name: "srm refused", size: 5000, clientSRM: true},
		{name: "srm unused", size: 5000, serverSRM: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			data := make([]byte, tc.size)
			rnd.Read(data)
			h := newMemHandler()
			c, s := newSessionPair(t, h,
				ClientConfig{MaxPacketSize: 1024, SRM: SRMConfig{Enabled: tc.clientSRM}},
				ServerConfig{SRM: SRMConfig{Enabled: tc.serverSRM}})
			_, err := c.Connect(nil)
			a.NoError(err)
			a.Equal(tc.serverSRM, c.RemoteSRM())
			wantSRM := tc.clientSRM && tc.serverSRM

			hs := header.New()
			hs.SetName("object")
			put, err := c.Put(hs)
			if !a.NoError(err) {
				return
			}
			n, err := put.Write(data)
			a.NoError(err)
			a.Equal(tc.size, n)
			a.NoError(put.Close())
			code, err := put.ResponseCode()
			a.NoError(err)
			a.Equal(obexerr.OK, code)
			a.Equal(wantSRM, put.SRMActive())

			get, err := c.Get(hs)
			if !a.NoError(err) {
				return
			}
			got, err := io.ReadAll(get)
			a.NoError(err)
			a.Equal(data, got)
			a.NoError(get.Close())
			a.Equal(wantSRM, get.SRMActive())
			reply, err := get.ReceivedHeaders()
			a.NoError(err)
			length, ok := reply.Length()
			a.True(ok)
			a.Equal(uint64(tc.size), length)
			code, err = get.ResponseCode()
			a.NoError(err)
			a.Equal(obexerr.OK, code)

			_, err = c.Disconnect(nil)
			a.NoError(err)
			waitDone(t, s)
			a.Equal(data, h.objects["object"])
		})
	}
}

func TestPutRefused(t *testing.T) {
	for _, srm := range []bool{false, true} {
		a := assert.New(t)
		c, _ := newSessionPair(t, newMemHandler(),
			ClientConfig{MaxPacketSize: 512, SRM: SRMConfig{Enabled: srm}},
			ServerConfig{SRM: SRMConfig{Enabled: srm}})
		_, err := c.Connect(nil)
		a.NoError(err)

		hs := header.New()
		hs.SetName("readonly")
		put, err := c.Put(hs)
		if !a.NoError(err) {
			return
		}
		_, err = put.Write(bytes.Repeat([]byte("x"), 4000))
		if err == nil {
			err = put.Close()
		}
		a.Equal(obexerr.ResponseError{Op: "put", Code: obexerr.Forbidden}, errors.Cause(err))
		code, _ := put.ResponseCode()
		a.Equal(obexerr.Forbidden, code)

		// the session remains usable
		reply, err := c.SetPath(nil, false, true)
		a.NoError(err)
		a.Equal(obexerr.OK, reply.ResponseCode)
	}
}

func TestDelete(t *testing.T) {
	a := assert.New(t)
	h := newMemHandler()
	h.objects["a"] = []byte("content")
	c, _ := newSessionPair(t, h, ClientConfig{}, ServerConfig{})
	_, err := c.Connect(nil)
	a.NoError(err)

	hs := header.New()
	hs.SetName("a")
	reply, err := c.Delete(hs)
	a.NoError(err)
	a.Equal(obexerr.OK, reply.ResponseCode)

	reply, err = c.Delete(hs)
	a.NoError(err)
	a.Equal(obexerr.NotFound, reply.ResponseCode)

	get, err := c.Get(hs)
	a.NoError(err)
	_, err = io.ReadAll(get)
	a.Equal(obexerr.ResponseError{Op: "get", Code: obexerr.NotFound}, err)
	a.NoError(get.Close())
	h.mu.Lock()
	a.Empty(h.objects)
	h.mu.Unlock()
}

func TestSetPathAndAction(t *testing.T) {
	a := assert.New(t)
	h := newMemHandler()
	c, _ := newSessionPair(t, h, ClientConfig{}, ServerConfig{})
	_, err := c.Connect(nil)
	a.NoError(err)

	for _, tc := range []struct {
		name string
		want obexerr.Code
	}{
		{name: "docs", want: obexerr.OK},
		{name: "panic", want: obexerr.InternalError},
		{name: "invalid", want: obexerr.InternalError},
	} {
		hs := header.New()
		hs.SetName(tc.name)
		reply, err := c.SetPath(hs, false, true)
		a.NoError(err)
		a.Equal(tc.want, reply.ResponseCode, tc.name)
	}

	hs := header.New()
	hs.SetName("old")
	hs.SetText(header.DestName, "new")
	reply, err := c.Action(hs, header.ActionMoveRename)
	a.NoError(err)
	a.Equal(obexerr.OK, reply.ResponseCode)

	reply, err = c.Action(hs, 0x7F)
	a.NoError(err)
	a.Equal(obexerr.NotImplemented, reply.ResponseCode)

	reply, err = c.Action(hs, header.ActionCopy)
	a.NoError(err)
	a.Equal(obexerr.NotImplemented, reply.ResponseCode)

	h.mu.Lock()
	a.Equal([]string{"docs"}, h.paths)
	a.Equal(map[string]string{"old": "new"}, h.renamed)
	h.mu.Unlock()
}

func TestRequestTooLarge(t *testing.T) {
	a := assert.New(t)
	h := newMemHandler()
	c, _ := newSessionPair(t, h, ClientConfig{}, ServerConfig{MaxPacketSize: 256})
	_, err := c.Connect(nil)
	a.NoError(err)
	a.Equal(256, c.MaxPacketSize())

	hs := header.New()
	hs.SetName(strings.Repeat("n", 200))
	_, err = c.SetPath(hs, false, true)
	a.Equal(obexerr.ErrPacketTooLarge, errors.Cause(err))

	// nothing was sent
	hs.SetName("small")
	reply, err := c.SetPath(hs, false, true)
	a.NoError(err)
	a.Equal(obexerr.OK, reply.ResponseCode)
	h.mu.Lock()
	a.Equal([]string{"small"}, h.paths)
	h.mu.Unlock()
}

func TestAuthentication(t *testing.T) {
	for _, tc := range []struct {
		name         string
		challenges   int
		retries      int
		clientPass   string
		want         obexerr.Code
		wantConnects int
		wantFailures int
	}{
		{name: "one challenge", challenges: 1, clientPass: "secret", want: obexerr.OK, wantConnects: 2},
		{name: "retry twice", challenges: 2, clientPass: "secret", want: obexerr.OK, wantConnects: 3},
		{name: "retries exhausted", challenges: 10, retries: 2, clientPass: "secret", want: obexerr.Unauthorized, wantConnects: 3},
		{name: "wrong password", challenges: 1, clientPass: "guess", want: obexerr.Unauthorized, wantConnects: 1, wantFailures: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			h := newMemHandler()
			h.challenges = tc.challenges
			c, s := newSessionPair(t, h,
				ClientConfig{
					MaxAuthRetries: tc.retries,
					Authenticator:  auth.StaticAuthenticator{Password: []byte(tc.clientPass)},
				},
				ServerConfig{Authenticator: auth.StaticAuthenticator{Password: []byte("secret")}})
			reply, err := c.Connect(nil)
			a.NoError(err)
			a.Equal(tc.want, reply.ResponseCode)
			a.Equal(tc.want == obexerr.OK, c.Connected())
			c.Close()
			waitDone(t, s)
			a.Equal(tc.wantConnects, h.connects)
			a.Equal(tc.wantFailures, h.authFailures)
		})
	}
}

func TestClientChallenge(t *testing.T) {
	a := assert.New(t)
	c, _ := newSessionPair(t, newMemHandler(),
		ClientConfig{},
		ServerConfig{Authenticator: auth.StaticAuthenticator{Password: []byte("pw")}})
	hs := header.New()
	a.NoError(hs.CreateAuthenticationChallenge("server", false, true))

	c.SetAuthenticator(auth.StaticAuthenticator{Password: []byte("pw")})
	reply, err := c.Connect(hs)
	a.NoError(err)
	a.Equal(obexerr.OK, reply.ResponseCode)
	a.False(reply.Has(header.AuthResponse))

	_, err = c.Disconnect(nil)
	a.NoError(err)
}

func TestClientChallengeFails(t *testing.T) {
	a := assert.New(t)
	c, _ := newSessionPair(t, newMemHandler(),
		ClientConfig{Authenticator: auth.StaticAuthenticator{Password: []byte("expected")}},
		ServerConfig{Authenticator: auth.StaticAuthenticator{Password: []byte("other")}})
	hs := header.New()
	a.NoError(hs.CreateAuthenticationChallenge("server", false, true))
	_, err := c.Connect(hs)
	a.Equal(obexerr.ErrAuthFailed, errors.Cause(err))
}

func TestRequestActive(t *testing.T) {
	a := assert.New(t)
	h := newMemHandler()
	h.objects["a"] = []byte("data")
	c, _ := newSessionPair(t, h, ClientConfig{}, ServerConfig{})
	_, err := c.Connect(nil)
	a.NoError(err)

	hs := header.New()
	hs.SetName("a")
	get, err := c.Get(hs)
	a.NoError(err)
	a.True(c.State().RequestActive)
	_, err = c.SetPath(nil, false, true)
	a.Equal(obexerr.ErrRequestActive, errors.Cause(err))
	_, err = c.Put(hs)
	a.Equal(obexerr.ErrRequestActive, errors.Cause(err))

	a.NoError(get.Close())
	a.False(c.State().RequestActive)
	reply, err := c.SetPath(nil, false, true)
	a.NoError(err)
	a.Equal(obexerr.OK, reply.ResponseCode)
}

func TestGetAbort(t *testing.T) {
	a := assert.New(t)
	h := newMemHandler()
	h.objects["big"] = bytes.Repeat([]byte("0123456789"), 1000)
	c, _ := newSessionPair(t, h, ClientConfig{MaxPacketSize: 512}, ServerConfig{})
	_, err := c.Connect(nil)
	a.NoError(err)

	hs := header.New()
	hs.SetName("big")
	get, err := c.Get(hs)
	a.NoError(err)
	buf := make([]byte, 10)
	n, err := get.Read(buf)
	a.NoError(err)
	a.Equal("0123456789", string(buf[:n]))
	a.NoError(get.Abort())
	// data received before the abort remains readable
	rest, err := io.ReadAll(get)
	a.Equal(obexerr.ErrAborted, errors.Cause(err))
	a.True(len(rest) < 1000)

	reply, err := c.SetPath(nil, false, true)
	a.NoError(err)
	a.Equal(obexerr.OK, reply.ResponseCode)
	h.mu.Lock()
	a.True(h.getAborted)
	h.mu.Unlock()
}

func TestAbortUnstarted(t *testing.T) {
	a := assert.New(t)
	c, _ := newSessionPair(t, newMemHandler(), ClientConfig{}, ServerConfig{})
	_, err := c.Connect(nil)
	a.NoError(err)
	get, err := c.Get(nil)
	a.NoError(err)
	a.NoError(get.Abort())
	a.False(c.State().RequestActive)
	_, err = get.Read(make([]byte, 1))
	a.Equal(obexerr.ErrAborted, errors.Cause(err))
}

func TestTimeout(t *testing.T) {
	a := assert.New(t)
	cconn, peer := net.Pipe()
	defer peer.Close()
	// a peer which never answers
	go io.Copy(io.Discard, peer)

	c, err := NewClient(transport.NewStream(cconn), ClientConfig{Timeout: 50 * time.Millisecond})
	a.NoError(err)
	_, err = c.Connect(nil)
	a.Equal(obexerr.ErrTimeout, errors.Cause(err))
	a.Equal(StatusClosed, c.State().Status)

	_, err = c.Connect(nil)
	a.Equal(obexerr.ErrClosed, errors.Cause(err))
}

func TestClientOversizeResponse(t *testing.T) {
	a := assert.New(t)
	cconn, peer := net.Pipe()
	defer peer.Close()
	go func() {
		r := transport.NewReader(peer)
		if _, err := r.ReadPacket(); err != nil {
			return
		}
		// a CONNECT response larger than the client accepts
		w := transport.NewWriter(peer)
		_, _ = w.WritePacket(byte(obexerr.OK), []byte{framing.Version, 0, 0x01, 0x00}, make([]byte, 400))
	}()
	c, err := NewClient(transport.NewStream(cconn), ClientConfig{MaxPacketSize: 300})
	a.NoError(err)
	_, err = c.Connect(nil)
	a.Equal(obexerr.ErrPacketTooLarge, errors.Cause(err))
	a.Equal(StatusClosed, c.State().Status)
}

func TestConnectLargeHeaders(t *testing.T) {
	for _, tc := range []struct {
		name    string
		client  ClientConfig
		wantErr error
	}{
		{name: "default proposal", client: ClientConfig{}},
		{name: "small proposal", client: ClientConfig{MaxPacketSize: 300}, wantErr: obexerr.ErrPacketTooLarge},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			h := newMemHandler()
			c, s := newSessionPair(t, h, tc.client, ServerConfig{})
			hs := header.New()
			// 312 byte CONNECT, larger than the initial packet size
			hs.SetName(strings.Repeat("n", 150))
			reply, err := c.Connect(hs)
			if tc.wantErr != nil {
				a.Equal(tc.wantErr, errors.Cause(err))
				a.False(c.Connected())
				c.Close()
				waitDone(t, s)
				a.Equal(0, h.connects)
				return
			}
			a.NoError(err)
			a.Equal(obexerr.OK, reply.ResponseCode)
			a.True(c.Connected())
		})
	}
}

func TestConnectionIDPropagation(t *testing.T) {
	a := assert.New(t)
	cconn, sconn := net.Pipe()
	c, err := NewClient(transport.NewStream(cconn), ClientConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	type request struct {
		op framing.Opcode
		id uint32
		ok bool
	}
	seen := make(chan request, 16)
	go func() {
		defer close(seen)
		defer sconn.Close()
		r, w := transport.NewReader(sconn), transport.NewWriter(sconn)
		for {
			p, err := r.ReadPacket()
			if err != nil {
				return
			}
			data := p.Data
			switch p.Opcode() {
			case framing.OpConnect:
				data = data[4:]
			case framing.OpSetPath:
				data = data[2:]
			}
			h := header.New()
			if _, err = header.Decode(data, h); err != nil {
				return
			}
			id, ok := h.ConnectionID()
			seen <- request{op: p.Opcode(), id: id, ok: ok}
			if p.Opcode() == framing.OpConnect {
				rh := header.New()
				rh.SetConnectionID(0x1234)
				hb, _ := header.Encode(rh)
				_, _ = w.WritePacket(byte(obexerr.OK), []byte{framing.Version, 0x00, 0x04, 0x00}, hb)
				continue
			}
			_, _ = w.WritePacket(byte(obexerr.OK))
		}
	}()

	reply, err := c.Connect(nil)
	a.NoError(err)
	a.Equal(obexerr.OK, reply.ResponseCode)

	hs := header.New()
	hs.SetName("docs")
	_, err = c.SetPath(hs, false, false)
	a.NoError(err)

	hs = header.New()
	hs.SetName("a")
	hs.SetText(header.DestName, "b")
	_, err = c.Action(hs, header.ActionMoveRename)
	a.NoError(err)

	hs = header.New()
	hs.SetName("a")
	op, err := c.Get(hs)
	a.NoError(err)
	_, err = io.ReadAll(op)
	a.NoError(err)
	a.NoError(op.Close())

	hs = header.New()
	hs.SetName("b")
	op, err = c.Put(hs)
	a.NoError(err)
	_, err = op.Write([]byte("data"))
	a.NoError(err)
	a.NoError(op.Close())

	_, err = c.Disconnect(nil)
	a.NoError(err)
	c.Close()

	var got []request
	for r := range seen {
		got = append(got, r)
	}
	a.Equal([]request{
		{op: framing.OpConnect},
		{op: framing.OpSetPath, id: 0x1234, ok: true},
		{op: framing.OpAction, id: 0x1234, ok: true},
		{op: framing.OpGetFinal, id: 0x1234, ok: true},
		{op: framing.OpPutFinal, id: 0x1234, ok: true},
		{op: framing.OpDisconnect, id: 0x1234, ok: true},
	}, got)
}

func TestPutAuthentication(t *testing.T) {
	for _, tc := range []struct {
		name       string
		challenges int
		want       error
		wantPuts   int
		wantStored bool
	}{
		{name: "one challenge", challenges: 1, wantPuts: 2, wantStored: true},
		{name: "challenged twice", challenges: 2, wantPuts: 3, wantStored: true},
		{
			name:       "retries exhausted",
			challenges: 10,
			want:       obexerr.ResponseError{Op: "put", Code: obexerr.Unauthorized},
			wantPuts:   DefaultMaxAuthRetries + 1,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			h := newMemHandler()
			h.putChallenges = tc.challenges
			c, s := newSessionPair(t, h,
				ClientConfig{Authenticator: auth.StaticAuthenticator{Password: []byte("secret")}},
				ServerConfig{Authenticator: auth.StaticAuthenticator{Password: []byte("secret")}})
			_, err := c.Connect(nil)
			a.NoError(err)

			hs := header.New()
			hs.SetName("greeting")
			op, err := c.Put(hs)
			a.NoError(err)
			_, err = op.Write([]byte("hello"))
			a.NoError(err)
			a.Equal(tc.want, op.Close())

			c.Close()
			waitDone(t, s)
			a.Equal(tc.wantPuts, h.puts)
			a.Equal(0, h.authFailures)
			stored, ok := h.objects["greeting"]
			a.Equal(tc.wantStored, ok)
			if tc.wantStored {
				a.Equal("hello", string(stored))
			}
		})
	}
}

func TestConnectRemoteSRM(t *testing.T) {
	for _, tc := range []struct {
		name       string
		srm        []byte
		wantRemote bool
	}{
		{name: "absent"},
		{name: "supported", srm: []byte{byte(header.SingleResponseMode), header.SRMSupported}, wantRemote: true},
		{name: "enabled", srm: []byte{byte(header.SingleResponseMode), header.SRMEnabled}, wantRemote: true},
		{name: "disabled", srm: []byte{byte(header.SingleResponseMode), header.SRMDisabled}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			cconn, sconn := net.Pipe()
			defer sconn.Close()
			c, err := NewClient(transport.NewStream(cconn), ClientConfig{})
			if err != nil {
				t.Fatal(err)
			}
			defer c.Close()
			go func() {
				r, w := transport.NewReader(sconn), transport.NewWriter(sconn)
				if _, err := r.ReadPacket(); err == nil {
					_, _ = w.WritePacket(byte(obexerr.OK), []byte{framing.Version, 0x00, 0x04, 0x00}, tc.srm)
				}
			}()
			reply, err := c.Connect(nil)
			a.NoError(err)
			a.Equal(obexerr.OK, reply.ResponseCode)
			a.Equal(tc.wantRemote, c.RemoteSRM())
		})
	}
}

func TestClientResponseLimit(t *testing.T) {
	a := assert.New(t)
	cconn, peer := net.Pipe()
	defer peer.Close()
	rh := header.New()
	rh.SetName(strings.Repeat("d", 290))
	hb, err := header.Encode(rh)
	a.NoError(err)
	go func() {
		r, w := transport.NewReader(peer), transport.NewWriter(peer)
		if _, err := r.ReadPacket(); err != nil {
			return
		}
		_, _ = w.WritePacket(byte(obexerr.OK), []byte{framing.Version, 0x00, 0x01, 0x00})
		if _, err := r.ReadPacket(); err != nil {
			return
		}
		// larger than negotiated, within what the client proposed
		_, _ = w.WritePacket(byte(obexerr.OK), hb)
	}()
	c, err := NewClient(transport.NewStream(cconn), ClientConfig{MaxPacketSize: 1024})
	a.NoError(err)
	defer c.Close()
	_, err = c.Connect(nil)
	a.NoError(err)
	a.Equal(framing.MinPacketSize, c.MaxPacketSize())

	reply, err := c.SetPath(nil, true, false)
	a.NoError(err)
	a.Equal(obexerr.OK, reply.ResponseCode)
	name, _ := reply.Name()
	a.Len(name, 290)
}

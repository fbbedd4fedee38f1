package session

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andaru/obex/auth"
	"github.com/andaru/obex/framing"
	"github.com/andaru/obex/header"
	"github.com/andaru/obex/obexerr"
	"github.com/andaru/obex/transport"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// ClientSession is the client side of an OBEX session.
//
// Requests are performed one at a time: starting a request while
// another, or a GET or PUT operation, is active fails with
// obexerr.ErrRequestActive. Each response is awaited for at most the
// configured timeout, after which the session is closed.
type ClientSession struct {
	config    ClientConfig
	transport transport.Transport
	in        io.ReadCloser
	out       io.WriteCloser
	reader    *transport.Reader
	writer    *transport.Writer
	auth      auth.State

	guard stateGuard

	mu        sync.Mutex
	maxPacket int
	connID    uint32
	hasConnID bool
	remoteSRM bool

	// rxTotal counts body bytes received in the current operation
	rxTotal uint64

	timedOut  int32
	closeOnce sync.Once
	closeErr  error
}

// NewClient returns a new ClientSession over the transport t
func NewClient(t transport.Transport, config ClientConfig) (*ClientSession, error) {
	config.setDefaults()
	in, err := t.OpenInputStream()
	if err != nil {
		return nil, errors.Wrap(err, "open input stream")
	}
	out, err := t.OpenOutputStream()
	if err != nil {
		in.Close()
		return nil, errors.Wrap(err, "open output stream")
	}
	c := &ClientSession{
		config:    config,
		transport: t,
		in:        in,
		out:       out,
		reader:    transport.NewReader(in),
		writer:    transport.NewWriter(out),
		maxPacket: framing.MinPacketSize,
	}
	c.auth.Authenticator = config.Authenticator
	return c, nil
}

// requestOptions modify a single request exchange
type requestOptions struct {
	// ignoreResponse returns after sending, without reading a response
	ignoreResponse bool
	// suppressSend reads a response without sending a request
	suppressSend bool
}

// bodySink receives the body data carried by a response
type bodySink func(data []byte, final bool)

// Connect establishes the OBEX connection, proposing our maximum
// packet size. It returns the server's reply headers, whose
// ResponseCode tells whether the connection was accepted.
func (c *ClientSession) Connect(headers *header.Set) (*header.Set, error) {
	if err := c.guard.begin(StatusOpen); err != nil {
		return nil, err
	}
	defer c.guard.end()

	hb, err := header.Encode(c.prepare(headers, false))
	if err != nil {
		return nil, err
	}
	size := c.config.MaxPacketSize
	data := append([]byte{framing.Version, 0x00, byte(size >> 8), byte(size)}, hb...)
	reply := header.New()
	if err = c.sendRequest(framing.OpConnect, data, reply, nil, requestOptions{}); err != nil {
		return nil, errors.Wrap(err, "connect")
	}
	if reply.ResponseCode == obexerr.OK {
		c.guard.setStatus(StatusConnected)
		srm, _ := reply.Byte(header.SingleResponseMode)
		remoteSRM := srm == header.SRMSupported || srm == header.SRMEnabled
		c.mu.Lock()
		c.remoteSRM = remoteSRM
		c.mu.Unlock()
		glog.V(1).Infof("obex client: connected, max packet size %d, remote SRM %v", c.MaxPacketSize(), remoteSRM)
	}
	return reply, nil
}

// Disconnect ends the OBEX connection. The session is no longer
// connected afterwards, whatever the server replied.
func (c *ClientSession) Disconnect(headers *header.Set) (*header.Set, error) {
	if err := c.guard.begin(StatusConnected); err != nil {
		return nil, err
	}
	defer c.guard.end()
	defer func() {
		c.guard.setStatus(StatusOpen)
		c.mu.Lock()
		c.hasConnID = false
		c.mu.Unlock()
	}()

	hb, err := header.Encode(c.prepare(headers, true))
	if err != nil {
		return nil, err
	}
	reply := header.New()
	if err = c.sendRequest(framing.OpDisconnect, hb, reply, nil, requestOptions{}); err != nil {
		return nil, errors.Wrap(err, "disconnect")
	}
	return reply, nil
}

// SetPath changes the server's current folder. With backup set, the
// server first moves to the parent folder. With create set, a missing
// folder is created.
func (c *ClientSession) SetPath(headers *header.Set, backup, create bool) (*header.Set, error) {
	if err := c.guard.begin(StatusConnected); err != nil {
		return nil, err
	}
	defer c.guard.end()

	hb, err := header.Encode(c.prepare(headers, true))
	if err != nil {
		return nil, err
	}
	var flags byte
	if backup {
		flags |= 0x01
	}
	if !create {
		flags |= 0x02
	}
	reply := header.New()
	data := append([]byte{flags, 0x00}, hb...)
	if err = c.sendRequest(framing.OpSetPath, data, reply, nil, requestOptions{}); err != nil {
		return nil, errors.Wrap(err, "setpath")
	}
	return reply, nil
}

// Action performs an ACTION request (copy, move/rename or set
// permissions, per header.Action constants) on the object named by
// headers.
func (c *ClientSession) Action(headers *header.Set, action byte) (*header.Set, error) {
	if err := c.guard.begin(StatusConnected); err != nil {
		return nil, err
	}
	defer c.guard.end()

	h := c.prepare(headers, true)
	h.Del(header.ActionID)
	hb, err := header.Encode(h)
	if err != nil {
		return nil, err
	}
	reply := header.New()
	data := append([]byte{byte(header.ActionID), action}, hb...)
	if err = c.sendRequest(framing.OpAction, data, reply, nil, requestOptions{}); err != nil {
		return nil, errors.Wrap(err, "action")
	}
	return reply, nil
}

// Get starts a GET operation for the object described by headers.
// Nothing is sent until the operation is read from or its response
// is requested. The session stays busy until the operation completes.
func (c *ClientSession) Get(headers *header.Set) (*ClientOperation, error) {
	if err := c.guard.begin(StatusConnected); err != nil {
		return nil, err
	}
	return newClientOperation(c, true, c.prepare(headers, true)), nil
}

// Put starts a PUT operation for the object described by headers.
// The object body is written to the returned operation, which must be
// closed to complete the transfer.
func (c *ClientSession) Put(headers *header.Set) (*ClientOperation, error) {
	if err := c.guard.begin(StatusConnected); err != nil {
		return nil, err
	}
	return newClientOperation(c, false, c.prepare(headers, true)), nil
}

// Delete deletes the object named by headers, by way of a PUT
// without a body.
func (c *ClientSession) Delete(headers *header.Set) (*header.Set, error) {
	op, err := c.Put(headers)
	if err != nil {
		return nil, err
	}
	if _, err = op.ResponseCode(); err != nil {
		op.Close()
		return nil, errors.Wrap(err, "delete")
	}
	reply, _ := op.ReceivedHeaders()
	op.Close()
	return reply, nil
}

// prepare returns a copy of a caller's headers ready to send,
// recording any authentication challenge they carry.
func (c *ClientSession) prepare(headers *header.Set, withConnID bool) *header.Set {
	h := headers.Clone()
	if n := h.Nonce(); n != nil {
		c.auth.SetNonce(n)
	}
	if withConnID {
		if id, ok := c.ConnectionID(); ok {
			h.SetConnectionID(id)
		}
	}
	return h
}

// sendRequest sends a request packet with contents data and reads the
// response, decoding its headers into reply and forwarding any body
// data to sink.
//
// A response of Unauthorized carrying a challenge is answered by
// sending the request again with our response attached, up to
// MaxAuthRetries times; the final Unauthorized reply is then returned.
func (c *ClientSession) sendRequest(op framing.Opcode, data []byte, reply *header.Set, sink bodySink, opts requestOptions) error {
	request := data
	for attempt := 0; ; attempt++ {
		if !opts.suppressSend {
			if err := c.writeRequest(op, request); err != nil {
				return err
			}
		}
		if opts.ignoreResponse {
			return nil
		}
		h, err := c.readResponse(op, sink)
		if err != nil {
			return err
		}
		reply.Merge(h)
		reply.ResponseCode = h.ResponseCode

		challenge, ok := h.Bytes(header.AuthChallenge)
		if h.ResponseCode != obexerr.Unauthorized || !ok {
			return nil
		}
		if attempt >= c.config.MaxAuthRetries {
			glog.Warningf("obex client: %s still unauthorized after %d authentication attempts", op, attempt)
			return nil
		}
		resp, err := c.auth.Respond(challenge)
		if err != nil {
			return errors.Wrap(err, "authentication challenge")
		}
		ah := header.New()
		ah.SetBytes(header.AuthResponse, resp)
		ab, err := header.Encode(ah)
		if err != nil {
			return err
		}
		glog.V(1).Infof("obex client: answering authentication challenge to %s", op)
		request = append(data[:len(data):len(data)], ab...)
		reply.Del(header.AuthChallenge)
		opts.suppressSend = false
	}
}

func (c *ClientSession) writeRequest(op framing.Opcode, data []byte) error {
	limit := c.MaxPacketSize()
	if op == framing.OpConnect {
		// not yet negotiated: CONNECT is bounded by our own proposal
		limit = c.config.MaxPacketSize
	}
	if n := framing.PrefixLength + len(data); n > limit {
		return errors.Wrapf(obexerr.ErrPacketTooLarge, "%s request of %d bytes", op, n)
	}
	if glog.V(2) {
		glog.Infof("obex client: sending %s (%d bytes)", op, framing.PrefixLength+len(data))
	}
	if _, err := c.writer.WritePacket(byte(op), data); err != nil {
		return c.fail(err)
	}
	return nil
}

// readResponse reads the response to a request of type op, arming the
// response timer for the duration of the read.
func (c *ClientSession) readResponse(op framing.Opcode, sink bodySink) (*header.Set, error) {
	timer := time.AfterFunc(c.config.Timeout, c.onTimeout)
	p, err := c.reader.ReadPacket()
	if !timer.Stop() && atomic.LoadInt32(&c.timedOut) == 1 {
		return nil, errors.WithStack(obexerr.ErrTimeout)
	}
	if err != nil {
		return nil, c.fail(err)
	}
	if glog.V(2) {
		glog.Infof("obex client: received %s response %s (%d bytes)", op, obexerr.Code(p.Code), p.Len())
	}
	// bounded by what we proposed, not the negotiated size
	if p.Len() > c.config.MaxPacketSize {
		return nil, c.fail(errors.Wrapf(obexerr.ErrPacketTooLarge, "%s response of %d bytes", op, p.Len()))
	}

	h := header.New()
	h.ResponseCode = obexerr.Code(p.Code)
	data := p.Data
	if op == framing.OpConnect {
		if len(data) < framing.ConnectPrefixLength-framing.PrefixLength {
			return nil, c.fail(framing.ErrBadPacket{Message: "short CONNECT response", Offset: p.Len()})
		}
		if h.ResponseCode == obexerr.OK {
			c.negotiate(int(data[2])<<8 | int(data[3]))
		}
		data = data[4:]
	}

	body, err := header.Decode(data, h)
	if err != nil {
		return nil, c.fail(err)
	}
	if body != nil && sink != nil {
		final := header.ID(body[0]) == header.EndOfBody
		c.rxTotal += uint64(len(body) - 1)
		if final {
			if !h.Has(header.Length) {
				_ = h.SetLength(c.rxTotal)
			}
			c.rxTotal = 0
		}
		sink(body[1:], final)
	}
	if id, ok := h.ConnectionID(); ok {
		c.SetConnectionID(id)
	}
	if resp, ok := h.Bytes(header.AuthResponse); ok {
		if ok, _ := c.auth.Verify(resp); !ok {
			return nil, errors.Wrapf(obexerr.ErrAuthFailed, "%s response", op)
		}
		h.Del(header.AuthResponse)
	}
	return h, nil
}

// negotiate applies the server's maximum packet size from a CONNECT
// response.
func (c *ClientSession) negotiate(peer int) {
	n := c.config.MaxPacketSize
	if peer < n {
		n = peer
	}
	if n > framing.MaxClientPacketSize {
		n = framing.MaxClientPacketSize
	}
	if c.config.ReduceMTU && n > framing.ReducedClientPacketSize {
		n = framing.ReducedClientPacketSize
	}
	if limit := transport.MaxPacketSize(c.transport); limit > 0 && n > limit {
		n = limit
	}
	c.mu.Lock()
	c.maxPacket = n
	c.mu.Unlock()
}

func (c *ClientSession) onTimeout() {
	atomic.StoreInt32(&c.timedOut, 1)
	glog.Warningf("obex client: no response within %v, closing session", c.config.Timeout)
	c.Close()
}

// fail closes the session after a protocol or transport failure,
// returning the error to report.
func (c *ClientSession) fail(err error) error {
	if c.State().Status == StatusClosed {
		if atomic.LoadInt32(&c.timedOut) == 1 {
			return errors.WithStack(obexerr.ErrTimeout)
		}
		return errors.WithStack(obexerr.ErrClosed)
	}
	glog.Warningf("obex client: %v; closing session", err)
	c.Close()
	return err
}

// Close closes the session and its transport. It is safe to call more
// than once.
func (c *ClientSession) Close() error {
	c.closeOnce.Do(func() {
		c.guard.setStatus(StatusClosed)
		c.in.Close()
		c.out.Close()
		if err := c.transport.Close(); err != nil && err != io.ErrClosedPipe {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// State returns a snapshot of the session state
func (c *ClientSession) State() State { return c.guard.get() }

// Connected returns true while the OBEX connection is established
func (c *ClientSession) Connected() bool { return c.State().Status == StatusConnected }

// MaxPacketSize returns the largest packet we may send
func (c *ClientSession) MaxPacketSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxPacket
}

// SetMaxPacketSize overrides the largest packet we may send. Values
// are clamped to the range allowed for clients.
func (c *ClientSession) SetMaxPacketSize(n int) {
	switch {
	case n < framing.MinPacketSize:
		n = framing.MinPacketSize
	case n > framing.MaxClientPacketSize:
		n = framing.MaxClientPacketSize
	}
	c.mu.Lock()
	c.maxPacket = n
	c.mu.Unlock()
}

// ConnectionID returns the connection ID sent with every request
func (c *ClientSession) ConnectionID() (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connID, c.hasConnID
}

// SetConnectionID sets the connection ID sent with every request
func (c *ClientSession) SetConnectionID(id uint32) {
	c.mu.Lock()
	c.connID, c.hasConnID = id, true
	c.mu.Unlock()
}

// RemoteSRM returns true if the server advertised Single Response Mode
// support when connecting.
func (c *ClientSession) RemoteSRM() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteSRM
}

// SetAuthenticator replaces the session's Authenticator. It must not
// be called while a request is active.
func (c *ClientSession) SetAuthenticator(a auth.Authenticator) { c.auth.Authenticator = a }

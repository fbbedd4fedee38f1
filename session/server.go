package session

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/andaru/obex/auth"
	"github.com/andaru/obex/framing"
	"github.com/andaru/obex/header"
	"github.com/andaru/obex/obexerr"
	"github.com/andaru/obex/transport"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// ServerSession is the server side of an OBEX session.
//
// A single goroutine reads requests from the transport and answers
// each in turn, calling the Handler. The session ends, closing the
// transport, after a DISCONNECT request, at end of stream, on a
// transport or protocol failure or when Close is called.
type ServerSession struct {
	config    ServerConfig
	handler   Handler
	transport transport.Transport
	in        io.ReadCloser
	out       io.WriteCloser
	reader    *transport.Reader
	writer    *transport.Writer
	auth      auth.State

	// maxPacket is the negotiated packet size, used by the processing
	// goroutine only.
	maxPacket int

	closed    int32
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewServer returns a new ServerSession over the transport t, serving
// requests with h. Requests are processed in a new goroutine.
func NewServer(t transport.Transport, h Handler, config ServerConfig) (*ServerSession, error) {
	if h == nil {
		panic("NewServer: handler must be non-nil")
	}
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
	s := &ServerSession{
		config:    config,
		handler:   h,
		transport: t,
		in:        in,
		out:       out,
		reader:    transport.NewReader(in),
		writer:    transport.NewWriter(out),
		maxPacket: framing.MinPacketSize,
		done:      make(chan struct{}),
	}
	s.auth.Authenticator = config.Authenticator
	go s.run()
	return s, nil
}

// Done returns a channel closed once the session has closed
func (s *ServerSession) Done() <-chan struct{} { return s.done }

// Close closes the session and its transport, then calls the
// handler's OnClose. It is safe to call more than once.
func (s *ServerSession) Close() error {
	s.closeOnce.Do(func() {
		atomic.StoreInt32(&s.closed, 1)
		s.in.Close()
		s.out.Close()
		if err := s.transport.Close(); err != nil && err != io.ErrClosedPipe {
			s.closeErr = err
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					glog.Warningf("obex server: OnClose panic: %v", r)
				}
			}()
			s.handler.OnClose()
		}()
		close(s.done)
	})
	return s.closeErr
}

func (s *ServerSession) isClosed() bool { return atomic.LoadInt32(&s.closed) == 1 }

// run is the request processing loop
func (s *ServerSession) run() {
	defer s.Close()
	for {
		p, err := s.reader.ReadPacket()
		switch {
		case err == io.EOF:
			glog.V(1).Info("obex server: end of stream")
			return
		case err != nil:
			if !s.isClosed() {
				glog.Warningf("obex server: read: %v", err)
			}
			return
		}
		if glog.V(2) {
			glog.Infof("obex server: received %s (%d bytes)", p.Opcode(), p.Len())
		}
		disconnect, err := s.dispatch(p)
		if err != nil {
			if !s.isClosed() {
				glog.Warningf("obex server: %s: %v", p.Opcode(), err)
			}
			return
		}
		if disconnect {
			return
		}
	}
}

func (s *ServerSession) dispatch(p framing.Packet) (disconnect bool, err error) {
	switch op := p.Opcode(); op {
	case framing.OpConnect:
		err = s.handleConnect(p)
	case framing.OpDisconnect:
		err = s.handleRequest(p, 0, func(_ []byte, request, reply *header.Set) obexerr.Code {
			s.handler.OnDisconnect(request, reply)
			return obexerr.OK
		})
		disconnect = true
	case framing.OpGet, framing.OpGetFinal, framing.OpPut, framing.OpPutFinal:
		err = s.handleOperation(p)
	case framing.OpSetPath:
		err = s.handleRequest(p, 2, func(prefix []byte, request, reply *header.Set) obexerr.Code {
			backup := prefix[0]&0x01 != 0
			create := prefix[0]&0x02 == 0
			return s.handler.OnSetPath(request, reply, backup, create)
		})
	case framing.OpAction:
		err = s.handleRequest(p, 0, s.action)
	case framing.OpAbort:
		err = s.handleRequest(p, 0, func(_ []byte, request, reply *header.Set) obexerr.Code {
			return s.handler.OnAbort(request, reply)
		})
	default:
		// the reader consumed the packet's declared length
		glog.V(1).Infof("obex server: %s not implemented", op)
		err = s.sendReply(op, obexerr.NotImplemented)
	}
	return
}

func (s *ServerSession) action(_ []byte, request, reply *header.Set) obexerr.Code {
	id, ok := request.Byte(header.ActionID)
	if !ok {
		return obexerr.BadRequest
	}
	switch id {
	case header.ActionCopy:
		return s.handler.OnCopy(request, reply)
	case header.ActionMoveRename:
		return s.handler.OnRename(request, reply)
	case header.ActionSetPermissions:
		return s.handler.OnSetPermissions(request, reply)
	}
	glog.V(1).Infof("obex server: unknown action 0x%02X", id)
	return obexerr.NotImplemented
}

// handleConnect answers CONNECT requests, whose packets carry the
// version, flags and maximum packet size ahead of their headers in
// both directions.
func (s *ServerSession) handleConnect(p framing.Packet) error {
	reply := header.New()
	code := s.connect(p, reply)
	hb, err := header.Encode(reply)
	if err != nil || framing.ConnectPrefixLength+len(hb) > s.maxPacket {
		glog.Warningf("obex server: CONNECT reply headers do not fit in %d bytes", s.maxPacket)
		code, hb = obexerr.InternalError, nil
	}
	size := s.config.MaxPacketSize
	return s.sendReply(framing.OpConnect, code, []byte{framing.Version, 0x00, byte(size >> 8), byte(size)}, hb)
}

func (s *ServerSession) connect(p framing.Packet, reply *header.Set) obexerr.Code {
	if len(p.Data) < framing.ConnectPrefixLength-framing.PrefixLength {
		return obexerr.BadRequest
	}
	if p.Data[0] != framing.Version {
		glog.V(1).Infof("obex server: client OBEX version 0x%02X", p.Data[0])
	}
	// the CONNECT request is sized by the client's own proposal
	s.negotiate(int(p.Data[2])<<8 | int(p.Data[3]))
	if p.Len() > s.maxPacket {
		return obexerr.RequestTooLarge
	}
	request, _, refused := s.readRequest(p.Data[4:], reply)
	if request == nil {
		return refused
	}
	if request.Has(header.SingleResponseMode) || request.Has(header.SingleResponseModeParameter) {
		// negotiated per operation, never at CONNECT
		glog.V(1).Info("obex server: ignoring SRM headers in CONNECT")
		request.Del(header.SingleResponseMode)
		request.Del(header.SingleResponseModeParameter)
	}
	code := s.invoke(framing.OpConnect, func() obexerr.Code { return s.handler.OnConnect(request, reply) })
	s.finishReply(reply)
	if s.config.SRM.Enabled && code == obexerr.OK {
		reply.SetByte(header.SingleResponseMode, header.SRMSupported)
	}
	glog.V(1).Infof("obex server: CONNECT %s, max packet size %d", code, s.maxPacket)
	return code
}

// negotiate applies the client's proposed maximum packet size
func (s *ServerSession) negotiate(proposed int) {
	n := proposed
	if n > s.config.MaxPacketSize {
		n = s.config.MaxPacketSize
	}
	if limit := transport.MaxPacketSize(s.transport); limit > 0 && n > limit {
		n = limit
	}
	s.maxPacket = n
}

// handleRequest answers requests taking a single response packet. The
// request's contents start with prefix bytes ahead of its headers.
func (s *ServerSession) handleRequest(p framing.Packet, prefix int, serve func(prefix []byte, request, reply *header.Set) obexerr.Code) error {
	op := p.Opcode()
	if p.Len() > s.maxPacket {
		return s.sendReply(op, obexerr.RequestTooLarge)
	}
	if len(p.Data) < prefix {
		return s.sendReply(op, obexerr.BadRequest)
	}
	reply := header.New()
	request, _, refused := s.readRequest(p.Data[prefix:], reply)
	if request == nil {
		return s.sendReply(op, refused)
	}
	code := s.invoke(op, func() obexerr.Code { return serve(p.Data[:prefix], request, reply) })
	s.finishReply(reply)
	hb, err := header.Encode(reply)
	if err != nil || framing.PrefixLength+len(hb) > s.maxPacket {
		glog.Warningf("obex server: %s reply headers do not fit in %d bytes", op, s.maxPacket)
		code, hb = obexerr.InternalError, nil
	}
	return s.sendReply(op, code, hb)
}

// readRequest decodes a request's headers, applying the connection ID
// and authentication policy common to all requests. A nil request is
// returned for refused requests, with the response code to refuse with.
func (s *ServerSession) readRequest(data []byte, reply *header.Set) (request *header.Set, body []byte, refused obexerr.Code) {
	request = header.New()
	body, err := header.Decode(data, request)
	if err != nil {
		glog.V(1).Infof("obex server: %v", err)
		return nil, nil, obexerr.BadRequest
	}
	s.useConnectionID(request)
	if resp, ok := request.Bytes(header.AuthResponse); ok {
		if ok, userID := s.auth.Verify(resp); !ok {
			glog.V(1).Infof("obex server: authentication failed for user %q", userID)
			s.invoke(framing.OpAbort, func() obexerr.Code {
				s.handler.OnAuthenticationFailure(userID)
				return obexerr.OK
			})
			return nil, nil, obexerr.Unauthorized
		}
	}
	if challenge, ok := request.Bytes(header.AuthChallenge); ok {
		resp, err := s.auth.Respond(challenge)
		if err != nil {
			glog.V(1).Infof("obex server: cannot answer challenge: %v", err)
			return nil, nil, obexerr.Unauthorized
		}
		reply.SetBytes(header.AuthResponse, resp)
	}
	return request, body, 0
}

// useConnectionID keeps the client's connection ID if one is in use,
// and otherwise establishes ID 1.
func (s *ServerSession) useConnectionID(request *header.Set) {
	if _, inUse := s.handler.ConnectionID(); inUse {
		if id, ok := request.ConnectionID(); ok {
			s.handler.SetConnectionID(id)
			return
		}
	}
	s.handler.SetConnectionID(1)
}

// finishReply adds the connection ID to reply headers, and records the
// nonce of any challenge the handler attached.
func (s *ServerSession) finishReply(reply *header.Set) {
	if n := reply.Nonce(); n != nil {
		s.auth.SetNonce(n)
	}
	if id, ok := s.handler.ConnectionID(); ok {
		reply.SetConnectionID(id)
	} else {
		reply.Del(header.ConnectionID)
	}
}

// invoke calls a handler, validating its response code. A panic is
// answered with obexerr.InternalError.
func (s *ServerSession) invoke(op framing.Opcode, f func() obexerr.Code) (code obexerr.Code) {
	defer func() {
		if r := recover(); r != nil {
			glog.Warningf("obex server: %s handler panic: %v", op, r)
			code = obexerr.InternalError
		}
	}()
	return obexerr.Validate(f())
}

// sendReply writes a response packet answering a request of type op
func (s *ServerSession) sendReply(op framing.Opcode, code obexerr.Code, parts ...[]byte) error {
	n, err := s.writer.WritePacket(byte(code), parts...)
	if err != nil {
		return errors.Wrapf(err, "%s response", op)
	}
	if glog.V(2) {
		glog.Infof("obex server: sent %s response %s (%d bytes)", op, code, n)
	}
	if s.config.OnReply != nil {
		s.config.OnReply(op, code)
	}
	return nil
}

// MaxPacketSize returns the negotiated packet size. It is only
// meaningful once the session has closed, or from a Handler.
func (s *ServerSession) MaxPacketSize() int { return s.maxPacket }

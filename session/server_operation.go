package session

import (
	"io"

	"github.com/andaru/obex/body"
	"github.com/andaru/obex/framing"
	"github.com/andaru/obex/header"
	"github.com/andaru/obex/obexerr"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// ServerOperation is a GET or PUT operation being served by a Handler.
//
// A GET handler writes the object body; each full packet is sent as a
// CONTINUE response and the rest goes in the final response, sent with
// the code the handler returns. A PUT handler reads the object body,
// which pulls further request packets from the client as needed.
type ServerOperation struct {
	s   *ServerSession
	get bool

	// opcode is the type of the request packet being answered
	opcode  framing.Opcode
	request *header.Set
	// reply holds the headers of the next response sent
	reply *header.Set

	final   bool
	srm     bool
	replied bool
	aborted bool
	// ended is set once the operation's last response has been sent
	ended bool
	fatal error

	dec body.Decoder
	enc body.Encoder
}

// handleOperation serves GET and PUT requests
func (s *ServerSession) handleOperation(p framing.Packet) error {
	op := p.Opcode()
	if p.Len() > s.maxPacket {
		return s.sendReply(op, obexerr.RequestTooLarge)
	}
	o := &ServerOperation{
		s:      s,
		get:    op == framing.OpGet || op == framing.OpGetFinal,
		opcode: op,
		reply:  header.New(),
		final:  op.Final(),
	}
	request, data, refused := s.readRequest(p.Data, o.reply)
	if request == nil {
		return s.sendReply(op, refused)
	}
	o.request = request
	o.srm = negotiateSRM(request, o.reply, s.config.SRM)
	s.finishReply(o.reply)
	o.dec.Fill = o.fill
	o.enc.Capacity = o.capacity
	o.enc.Flush = o.flush

	if o.get {
		return o.serveGet()
	}
	if o.final && data == nil {
		code := s.invoke(op, func() obexerr.Code { return s.handler.OnDelete(o.request, o.reply) })
		return o.send(code, nil)
	}
	o.feed(data)
	code := s.invoke(op, func() obexerr.Code { return s.handler.OnPut(o) })
	return o.complete(code)
}

// RequestHeaders returns the request headers received so far
func (o *ServerOperation) RequestHeaders() *header.Set { return o.request }

// ReplyHeaders returns the headers to send in the next response. Headers
// must be set before the body is written to be sent ahead of it.
func (o *ServerOperation) ReplyHeaders() *header.Set { return o.reply }

// Read reads the object body of a PUT request, implementing io.Reader.
// It returns obexerr.ErrAborted if the client aborts the operation.
func (o *ServerOperation) Read(p []byte) (int, error) {
	if o.get {
		return 0, errors.New("read from GET operation")
	}
	return o.dec.Read(p)
}

// Write writes the object body of a GET request, implementing
// io.Writer. It returns obexerr.ErrAborted if the client aborts the
// operation.
func (o *ServerOperation) Write(p []byte) (int, error) {
	if !o.get {
		return 0, errors.New("write to PUT operation")
	}
	if err := o.Err(); err != nil {
		return 0, err
	}
	return o.enc.Write(p)
}

// Final returns true once the final request packet has been received
func (o *ServerOperation) Final() bool { return o.final }

// Aborted returns true if the client aborted the operation
func (o *ServerOperation) Aborted() bool { return o.aborted }

// SRMActive returns true if Single Response Mode is in effect
func (o *ServerOperation) SRMActive() bool { return o.srm }

// Err returns the error ending the operation early, if any
func (o *ServerOperation) Err() error {
	switch {
	case o.fatal != nil:
		return o.fatal
	case o.aborted:
		return errors.WithStack(obexerr.ErrAborted)
	}
	return nil
}

func (o *ServerOperation) serveGet() error {
	// requests may span several packets before the final one
	for !o.final {
		if err := o.send(obexerr.Continue, nil); err != nil {
			return err
		}
		if err := o.next(); err != nil {
			return o.complete(0)
		}
	}
	code := o.s.invoke(o.opcode, func() obexerr.Code { return o.s.handler.OnGet(o) })
	return o.complete(code)
}

// complete sends the final response once the handler has returned
func (o *ServerOperation) complete(code obexerr.Code) error {
	switch {
	case o.fatal != nil:
		return o.fatal
	case o.ended:
		return nil
	}
	if o.get {
		if !code.Success() {
			return o.send(code, nil)
		}
		return o.finishGet(code)
	}
	if !o.final {
		if !code.Success() && (!o.srm || !o.replied) {
			return o.send(code, nil)
		}
		// the rest of the object is read and dropped
		io.Copy(io.Discard, &o.dec)
		switch {
		case o.fatal != nil:
			return o.fatal
		case o.ended:
			return nil
		}
	}
	return o.send(code, nil)
}

// finishGet sends the body held back by the encoder in the final
// response, preceded by as many CONTINUE responses as it takes.
func (o *ServerOperation) finishGet(code obexerr.Code) error {
	for {
		room := o.capacity()
		if room <= 0 {
			glog.Warningf("obex server: GET reply headers leave no room for the body")
			o.reply = header.New()
			return o.send(obexerr.InternalError, nil)
		}
		if o.enc.Len() <= room {
			break
		}
		if err := o.flush(o.enc.Next(room)); err != nil {
			return o.complete(code)
		}
	}
	if !o.enc.Opened() {
		return o.send(code, nil)
	}
	return o.send(code, header.AppendBody(nil, o.enc.Next(o.enc.Len()), true))
}

// capacity returns the room for body data in the next response
func (o *ServerOperation) capacity() int {
	n, err := header.EncodedLen(o.reply)
	if err != nil {
		return 0
	}
	return o.s.maxPacket - framing.PrefixLength - n - header.BodyOverhead
}

// flush sends a chunk of GET body in a CONTINUE response and, unless
// the client streams under Single Response Mode, waits for its request
// for more.
func (o *ServerOperation) flush(chunk []byte) error {
	if err := o.Err(); err != nil {
		return err
	}
	if err := o.send(obexerr.Continue, header.AppendBody(nil, chunk, false)); err != nil {
		return err
	}
	if o.srm {
		return nil
	}
	return o.next()
}

// fill pulls the next PUT packet into the body decoder. Under Single
// Response Mode, only the first packet is answered.
func (o *ServerOperation) fill() error {
	if err := o.Err(); err != nil {
		return err
	}
	if o.final {
		o.dec.Finish()
		return nil
	}
	if !o.srm || !o.replied {
		if err := o.send(obexerr.Continue, nil); err != nil {
			return err
		}
	}
	return o.next()
}

func (o *ServerOperation) feed(data []byte) {
	if len(data) > 0 {
		o.dec.Feed(data[1:])
		if header.ID(data[0]) == header.EndOfBody {
			o.dec.Finish()
		}
	}
	if o.final {
		o.dec.Finish()
	}
}

// next reads the client's next packet of the operation
func (o *ServerOperation) next() error {
	s := o.s
	p, err := s.reader.ReadPacket()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		o.fatal = errors.Wrap(err, "read request")
		return o.fatal
	}
	op := p.Opcode()
	if glog.V(2) {
		glog.Infof("obex server: received %s (%d bytes)", op, p.Len())
	}
	o.opcode = op
	switch {
	case p.Len() > s.maxPacket:
		o.aborted = true
		o.ended = true
		if err := s.sendReply(op, obexerr.RequestTooLarge); err != nil {
			o.fatal = err
			return err
		}
		return errors.WithStack(obexerr.ErrPacketTooLarge)
	case op == framing.OpAbort:
		o.aborted = true
		o.ended = true
		if err := s.sendReply(op, obexerr.OK); err != nil {
			o.fatal = err
			return err
		}
		glog.V(1).Infof("obex server: operation aborted by client")
		return errors.WithStack(obexerr.ErrAborted)
	case o.get && (op == framing.OpGet || op == framing.OpGetFinal),
		!o.get && (op == framing.OpPut || op == framing.OpPutFinal):
	default:
		o.fatal = errors.Errorf("%s request during operation", op)
		return o.fatal
	}

	h := header.New()
	data, err := header.Decode(p.Data, h)
	if err != nil {
		o.aborted = true
		o.ended = true
		glog.V(1).Infof("obex server: %v", err)
		if err := s.sendReply(op, obexerr.BadRequest); err != nil {
			o.fatal = err
			return err
		}
		return err
	}
	s.useConnectionID(h)
	o.request.Merge(h)
	o.final = op.Final()
	if !o.get {
		o.feed(data)
	}
	return nil
}

// send sends a response with the pending reply headers followed by
// data, the encoded body header if any.
func (o *ServerOperation) send(code obexerr.Code, data []byte) error {
	if n := o.reply.Nonce(); n != nil {
		o.s.auth.SetNonce(n)
	}
	hb, err := header.Encode(o.reply)
	if err != nil || framing.PrefixLength+len(hb)+len(data) > o.s.maxPacket {
		glog.Warningf("obex server: %s response does not fit in %d bytes", o.opcode, o.s.maxPacket)
		code, hb, data = obexerr.InternalError, nil, nil
	}
	o.reply = header.New()
	o.replied = true
	if code != obexerr.Continue {
		o.ended = true
	}
	if err := o.s.sendReply(o.opcode, code, hb, data); err != nil {
		o.fatal = err
		return err
	}
	return nil
}

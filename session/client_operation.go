package session

import (
	"github.com/andaru/obex/body"
	"github.com/andaru/obex/framing"
	"github.com/andaru/obex/header"
	"github.com/andaru/obex/obexerr"
	"github.com/pkg/errors"
)

// ClientOperation is a GET or PUT operation in progress on a
// ClientSession.
//
// A GET operation is read from: its request is sent on the first call
// to Read, ResponseCode or ReceivedHeaders. A PUT operation is written
// to, and sends its final packet when closed. Under Single Response
// Mode, body packets are streamed without waiting for a response to
// each one.
//
// Operations are not safe for concurrent use. The session accepts no
// other request until the operation completes or is aborted.
type ClientOperation struct {
	c    *ClientSession
	get  bool
	name string

	// pending holds headers not yet sent
	pending *header.Set
	reply   *header.Set

	started  bool
	done     bool
	srm      bool
	aborted  bool
	released bool
	err      error

	dec body.Decoder
	enc body.Encoder
}

func newClientOperation(c *ClientSession, get bool, h *header.Set) *ClientOperation {
	requestSRM(h, c.config.SRM)
	o := &ClientOperation{c: c, get: get, name: "put", pending: h, reply: header.New()}
	if get {
		o.name = "get"
	}
	c.rxTotal = 0
	o.dec.Fill = o.fill
	o.enc.Capacity = o.capacity
	o.enc.Flush = func(chunk []byte) error { return o.sendPut(chunk, false, true) }
	o.enc.OnClose = o.finishPut
	return o
}

// Read reads the object body of a GET operation, implementing
// io.Reader. It returns an obexerr.ResponseError if the server ended
// the operation unsuccessfully.
func (o *ClientOperation) Read(p []byte) (int, error) {
	if !o.get {
		return 0, errors.New("read from PUT operation")
	}
	return o.dec.Read(p)
}

// Write writes object body data to a PUT operation, implementing
// io.Writer. Writing, even nothing, means a body is sent: a PUT
// closed without a write deletes the object instead.
func (o *ClientOperation) Write(p []byte) (int, error) {
	if o.get {
		return 0, errors.New("write to GET operation")
	}
	return o.enc.Write(p)
}

// ResponseCode completes the operation and returns the final
// response code. A GET operation's remaining body is buffered for
// Read. Only transport and protocol failures are returned as errors.
func (o *ClientOperation) ResponseCode() (obexerr.Code, error) {
	if o.get {
		for !o.done {
			if err := o.fill(); err != nil {
				return o.reply.ResponseCode, err
			}
		}
	} else {
		o.enc.Close()
	}
	return o.reply.ResponseCode, o.err
}

// ReceivedHeaders returns the headers received so far. For a GET
// operation, the request is sent first if need be.
func (o *ClientOperation) ReceivedHeaders() (*header.Set, error) {
	if o.get {
		o.start()
	}
	return o.reply, o.err
}

// SRMActive returns true if Single Response Mode is in effect
func (o *ClientOperation) SRMActive() bool { return o.srm }

// Abort abandons the operation, sending ABORT if the operation is in
// progress. A GET streaming under Single Response Mode leaves no gap
// for an ABORT, so the rest of its body is read and discarded.
func (o *ClientOperation) Abort() error {
	if o.done {
		return nil
	}
	defer o.release()
	if !o.started {
		o.aborted = true
		o.finish()
		o.dec.Fail(obexerr.ErrAborted)
		return nil
	}
	if o.get && o.srm {
		for !o.done {
			if err := o.fill(); err != nil {
				return err
			}
		}
		o.dec.Close()
		return nil
	}

	h := header.New()
	if id, ok := o.c.ConnectionID(); ok {
		h.SetConnectionID(id)
	}
	hb, err := header.Encode(h)
	if err != nil {
		return o.fail(err)
	}
	reply := header.New()
	err = o.c.sendRequest(framing.OpAbort, hb, reply, nil, requestOptions{})
	o.aborted = true
	o.finish()
	o.dec.Fail(obexerr.ErrAborted)
	switch {
	case err != nil:
		o.err = err
		return err
	case !reply.ResponseCode.Success():
		return obexerr.ResponseError{Op: "abort", Code: reply.ResponseCode}
	}
	return nil
}

// Close completes the operation. A PUT sends its final packet and
// returns an obexerr.ResponseError if the server did not accept the
// object. A GET reads and discards the rest of the object.
func (o *ClientOperation) Close() error {
	defer o.release()
	if o.get {
		_, err := o.ResponseCode()
		o.dec.Close()
		return err
	}
	o.enc.Close()
	return o.result()
}

// start sends the GET request
func (o *ClientOperation) start() error {
	if o.started || o.done {
		return o.err
	}
	o.started = true
	hb, err := header.Encode(o.pending)
	if err != nil {
		return o.fail(err)
	}
	o.pending = header.New()
	return o.exchange(framing.OpGetFinal, hb, requestOptions{})
}

// fill pulls the next GET response, requesting it unless the server
// is streaming the body.
func (o *ClientOperation) fill() error {
	switch {
	case o.done:
		o.dec.Finish()
		return nil
	case !o.started:
		return o.start()
	}
	return o.exchange(framing.OpGetFinal, nil, requestOptions{suppressSend: o.srm})
}

func (o *ClientOperation) receive(data []byte, final bool) {
	o.dec.Feed(data)
	if final {
		o.dec.Finish()
	}
}

// exchange performs one request exchange of the operation
func (o *ClientOperation) exchange(op framing.Opcode, data []byte, opts requestOptions) error {
	h := header.New()
	if err := o.c.sendRequest(op, data, h, o.receive, opts); err != nil {
		return o.fail(err)
	}
	if opts.ignoreResponse {
		return nil
	}
	o.reply.Merge(h)
	o.reply.ResponseCode = h.ResponseCode
	if !o.srm && o.c.config.SRM.Enabled && !o.c.config.SRM.Wait && srmEnabled(h) && !srmWaits(h) {
		o.srm = true
	}
	switch code := h.ResponseCode; {
	case code == obexerr.Continue:
	case code.Success():
		o.finish()
	default:
		o.finish()
		o.dec.Fail(obexerr.ResponseError{Op: o.name, Code: code})
	}
	return nil
}

// capacity returns the room for body data in the next PUT packet
func (o *ClientOperation) capacity() int {
	n, err := header.EncodedLen(o.pending)
	if err != nil {
		return 0
	}
	return o.c.MaxPacketSize() - framing.PrefixLength - n - header.BodyOverhead
}

// sendPut sends a PUT packet carrying the pending headers and, if
// withBody is set, chunk in a Body (or for the final packet,
// EndOfBody) header.
func (o *ClientOperation) sendPut(chunk []byte, final, withBody bool) error {
	if o.done {
		return o.result()
	}
	hb, err := header.Encode(o.pending)
	if err != nil {
		return o.fail(err)
	}
	o.pending = header.New()
	if withBody {
		hb = header.AppendBody(hb, chunk, final)
	}
	op := framing.OpPut
	if final {
		op = framing.OpPutFinal
	}
	opts := requestOptions{ignoreResponse: !final && o.started && o.srm}
	o.started = true
	if err = o.exchange(op, hb, opts); err != nil {
		return err
	}
	if o.done {
		return o.result()
	}
	return nil
}

// finishPut sends the rest of the body, ending with the final packet,
// and waits for the final response.
func (o *ClientOperation) finishPut() (err error) {
	if o.get || o.done {
		return o.result()
	}
	if o.enc.Opened() {
		for {
			room := o.capacity()
			if room <= 0 {
				return o.fail(errors.WithStack(obexerr.ErrBodyTooLarge))
			}
			if o.enc.Len() <= room {
				break
			}
			if err = o.sendPut(o.enc.Next(room), false, true); err != nil || o.done {
				return o.result()
			}
		}
		err = o.sendPut(o.enc.Next(o.enc.Len()), true, true)
	} else {
		err = o.sendPut(nil, true, false)
	}
	for err == nil && !o.done {
		err = o.exchange(framing.OpPutFinal, nil, requestOptions{})
	}
	return o.result()
}

// result returns the outcome of a completed operation
func (o *ClientOperation) result() error {
	switch code := o.reply.ResponseCode; {
	case o.err != nil:
		return o.err
	case o.aborted:
		return errors.WithStack(obexerr.ErrAborted)
	case o.done && !code.Success():
		return obexerr.ResponseError{Op: o.name, Code: code}
	}
	return nil
}

func (o *ClientOperation) fail(err error) error {
	if o.err == nil {
		o.err = err
	}
	o.dec.Fail(err)
	o.finish()
	return err
}

// finish marks the operation complete, freeing the session for the
// next request.
func (o *ClientOperation) finish() {
	o.done = true
	o.dec.Finish()
	o.release()
}

func (o *ClientOperation) release() {
	if !o.released {
		o.released = true
		o.c.guard.end()
	}
}

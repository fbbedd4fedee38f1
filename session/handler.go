package session

import (
	"github.com/andaru/obex/header"
	"github.com/andaru/obex/obexerr"
)

// Handler is the ServerSession request handler interface.
// Server applications implement this interface, usually by embedding
// DefaultHandler and overriding the requests they serve.
//
// Handler methods are called from the session's processing goroutine,
// one request at a time. Request headers are read only; reply headers
// are sent back with the returned response code, which is replaced by
// obexerr.InternalError unless valid. A panicking handler is treated
// as returning obexerr.InternalError.
type Handler interface {
	// ConnectionID returns the connection ID in use, if any.
	ConnectionID() (id uint32, ok bool)
	// SetConnectionID sets the connection ID in use. It is called for
	// every request: with the request's connection ID if one is in use
	// and the request carries one, otherwise with 1.
	SetConnectionID(id uint32)

	// OnConnect is called for CONNECT requests
	OnConnect(request, reply *header.Set) obexerr.Code
	// OnDisconnect is called for DISCONNECT requests, which are always
	// answered with obexerr.OK.
	OnDisconnect(request, reply *header.Set)
	// OnSetPath is called for SETPATH requests. With backup set the
	// client asks to move to the parent folder first; with create set,
	// a missing folder may be created.
	OnSetPath(request, reply *header.Set, backup, create bool) obexerr.Code
	// OnGet is called for GET requests. The handler writes the object
	// body to op.
	OnGet(op *ServerOperation) obexerr.Code
	// OnPut is called for PUT requests carrying a body. The handler
	// reads the object body from op.
	OnPut(op *ServerOperation) obexerr.Code
	// OnDelete is called for PUT requests without a body
	OnDelete(request, reply *header.Set) obexerr.Code
	// OnAbort is called for ABORT requests outside an operation
	OnAbort(request, reply *header.Set) obexerr.Code
	// OnCopy is called for ACTION requests copying an object
	OnCopy(request, reply *header.Set) obexerr.Code
	// OnRename is called for ACTION requests moving or renaming an object
	OnRename(request, reply *header.Set) obexerr.Code
	// OnSetPermissions is called for ACTION requests setting permissions
	OnSetPermissions(request, reply *header.Set) obexerr.Code
	// OnAuthenticationFailure is called when a client's response to our
	// authentication challenge fails verification.
	OnAuthenticationFailure(userID []byte)
	// OnClose is called once, after the session closes.
	OnClose()
}

// DefaultHandler implements Handler, accepting connections and
// refusing object requests with obexerr.NotImplemented.
type DefaultHandler struct {
	connID    uint32
	hasConnID bool
}

// ConnectionID implements Handler
func (h *DefaultHandler) ConnectionID() (uint32, bool) { return h.connID, h.hasConnID }

// SetConnectionID implements Handler
func (h *DefaultHandler) SetConnectionID(id uint32) { h.connID, h.hasConnID = id, true }

// OnConnect implements Handler
func (h *DefaultHandler) OnConnect(request, reply *header.Set) obexerr.Code { return obexerr.OK }

// OnDisconnect implements Handler
func (h *DefaultHandler) OnDisconnect(request, reply *header.Set) {}

// OnSetPath implements Handler
func (h *DefaultHandler) OnSetPath(request, reply *header.Set, backup, create bool) obexerr.Code {
	return obexerr.NotImplemented
}

// OnGet implements Handler
func (h *DefaultHandler) OnGet(op *ServerOperation) obexerr.Code { return obexerr.NotImplemented }

// OnPut implements Handler
func (h *DefaultHandler) OnPut(op *ServerOperation) obexerr.Code { return obexerr.NotImplemented }

// OnDelete implements Handler
func (h *DefaultHandler) OnDelete(request, reply *header.Set) obexerr.Code {
	return obexerr.NotImplemented
}

// OnAbort implements Handler
func (h *DefaultHandler) OnAbort(request, reply *header.Set) obexerr.Code { return obexerr.OK }

// OnCopy implements Handler
func (h *DefaultHandler) OnCopy(request, reply *header.Set) obexerr.Code {
	return obexerr.NotImplemented
}

// OnRename implements Handler
func (h *DefaultHandler) OnRename(request, reply *header.Set) obexerr.Code {
	return obexerr.NotImplemented
}

// OnSetPermissions implements Handler
func (h *DefaultHandler) OnSetPermissions(request, reply *header.Set) obexerr.Code {
	return obexerr.NotImplemented
}

// OnAuthenticationFailure implements Handler
func (h *DefaultHandler) OnAuthenticationFailure(userID []byte) {}

// OnClose implements Handler
func (h *DefaultHandler) OnClose() {}

var _ Handler = &DefaultHandler{}

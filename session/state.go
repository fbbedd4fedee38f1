package session

import (
	"sync"

	"github.com/andaru/obex/obexerr"
	"github.com/pkg/errors"
)

// Status is a ClientSession's connection status.
type Status int

const (
	// StatusOpen is the initial status: the transport is open, but no
	// OBEX connection has been established.
	StatusOpen Status = iota
	// StatusConnected is set after a successful CONNECT exchange, until
	// DISCONNECT completes.
	StatusConnected
	// StatusClosed is terminal. The transport has been closed, whether
	// explicitly, by response timeout or by a protocol failure.
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusConnected:
		return "connected"
	case StatusClosed:
		return "closed"
	}
	return "unknown"
}

// State contains runtime ClientSession state
type State struct {
	// Status is the session status
	Status Status
	// RequestActive is set while a request or operation is in progress
	RequestActive bool
}

// stateGuard holds a State behind a mutex. At most one request may be
// active at a time; a second request fails instead of waiting.
type stateGuard struct {
	mu    sync.Mutex
	state State
}

func (g *stateGuard) get() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// begin marks a request active, given the status it requires
func (g *stateGuard) begin(want Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.state.Status == StatusClosed:
		return errors.WithStack(obexerr.ErrClosed)
	case g.state.RequestActive:
		return errors.WithStack(obexerr.ErrRequestActive)
	case want == StatusConnected && g.state.Status != StatusConnected:
		return errors.WithStack(obexerr.ErrNotConnected)
	case want == StatusOpen && g.state.Status == StatusConnected:
		return errors.WithStack(obexerr.ErrAlreadyConnected)
	}
	g.state.RequestActive = true
	return nil
}

// end marks the active request complete
func (g *stateGuard) end() {
	g.mu.Lock()
	g.state.RequestActive = false
	g.mu.Unlock()
}

// setStatus changes the status, unless the session has closed.
// It returns false if the session was already closed.
func (g *stateGuard) setStatus(s Status) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.Status == StatusClosed {
		return false
	}
	g.state.Status = s
	return true
}

package obexerr

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrClosed is returned by operations on a session whose transport
	// has been closed, whether explicitly, by timeout or by a protocol failure.
	ErrClosed = errors.New("connection closed")
	// ErrNotConnected is returned when an OBEX connection is required
	ErrNotConnected = errors.New("not connected to the server")
	// ErrAlreadyConnected is returned by CONNECT on a connected session
	ErrAlreadyConnected = errors.New("already connected to server")
	// ErrRequestActive is returned when a second request is started
	// while one is in progress on the same session.
	ErrRequestActive = errors.New("OBEX request is already being performed")
	// ErrPacketTooLarge indicates a packet exceeding the negotiated
	// maximum packet size, whether built locally or received.
	ErrPacketTooLarge = errors.New("packet size exceeds max packet size")
	// ErrAuthFailed indicates the peer's authentication response did not
	// match the challenge we issued.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrTimeout indicates no response arrived before the response timer fired
	ErrTimeout = errors.New("response timed out")
	// ErrAborted is returned by operation I/O after the transfer was aborted
	ErrAborted = errors.New("operation aborted")
	// ErrBodyTooLarge indicates headers leave no room for body data in a packet
	ErrBodyTooLarge = errors.New("headers leave no room for body in packet")
)

// ResponseError is returned by operation I/O when the peer answers an
// intermediate request packet with a code other than Continue.
type ResponseError struct {
	Op   string
	Code Code
}

func (e ResponseError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("obex response %s (0x%02X)", e.Code, byte(e.Code))
	}
	return fmt.Sprintf("obex %s response %s (0x%02X)", e.Op, e.Code, byte(e.Code))
}

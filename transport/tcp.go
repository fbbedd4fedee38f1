package transport

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

// DefaultPort is the well known TCP port for OBEX (IrOBEX over TCP)
const DefaultPort = 650

// Dial connects to an OBEX server at address over network (typically
// "tcp"), returning a Stream transport for the connection. An address
// lacking a port uses DefaultPort.
func Dial(ctx context.Context, network, address string, opts ...StreamOption) (*Stream, error) {
	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(DefaultPort))
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, errors.Wrap(err, "obex dial")
	}
	return NewStream(conn, opts...), nil
}

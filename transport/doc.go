/*
Package transport provides the OBEX transport layer.

OBEX runs over any reliable, ordered byte stream: an RFCOMM or L2CAP
socket, an IrDA link or a TCP connection. A Transport supplies the
input and output streams of one such connection, already opened.

The Reader and Writer offer a packet oriented view of those streams
to the session layer. The Reader always consumes the full length a
packet declares, so a peer's request can be rejected without losing
framing on the stream.
*/
package transport

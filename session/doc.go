/*
Package session offers OBEX client and server session implementations.

Both peers run over a transport.Transport, an established, reliable
byte stream such as an RFCOMM socket or TCP connection.

Client sessions

A ClientSession is created using NewClient. Its methods each perform
one request and return the server's reply headers, whose ResponseCode
holds the server's response code. Errors are returned only for
transport and protocol failures, which close the session.

CONNECT negotiates the packet size used for the rest of the session:
the smaller of the two peers' proposals, further capped for clients
and, optionally, by the transport. Requests which cannot fit in a
packet fail before anything is written.

GET and PUT are performed as operations, which stream an object body
over as many packets as it takes. When both peers enable Single
Response Mode, body packets flow without a response to each.

Only one request may be active at a time. A response not received
within ClientConfig.Timeout closes the session.

Server sessions

A ServerSession is created using NewServer, with an application's
Handler. The session reads requests in its own goroutine, calling the
Handler for each in turn and sending its response, until the client
disconnects or the transport closes.

The session answers malformed, oversized and unknown requests itself,
negotiates Single Response Mode and verifies authentication responses
before any Handler method is called.

Authentication

Either peer may challenge the other by attaching a challenge to its
request or reply headers with header.Set.CreateAuthenticationChallenge.
The challenged side answers using its configured auth.Authenticator,
and the challenger verifies the answer against the password its own
Authenticator supplies.
*/
package session

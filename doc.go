/*
Package obex is a set of OBEX (Object Exchange) session libraries.

Doing the heavy lifting of packet framing, header encoding and the
request/response state machines of both peers, these libraries allow
OBEX client and server application development over any reliable,
ordered byte stream, such as a Bluetooth RFCOMM socket or a TCP
connection.

Client sessions drive CONNECT, GET, PUT, SETPATH, ACTION and DISCONNECT
requests, handling authentication challenges, response timeouts,
Single Response Mode and packet size negotiation. Server sessions run a
processing loop which reads one request at a time and dispatches it to
an application supplied Handler.

See the session sub-directory for more information about session
objects and Handler implementations, and the ftp sub-directory for a
Folder Browsing service built upon them.
*/
package obex

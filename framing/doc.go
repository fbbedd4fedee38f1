/*
Package framing offers OBEX packet framing.

Every OBEX request and response is a packet starting with a one byte
opcode or response code and a two byte, big-endian length inclusive of
those three bytes. SplitPacket returns a bufio.SplitFunc compatible
function for use with a *bufio.Scanner, which returns io.ErrUnexpectedEOF
when input terminates other than at a packet boundary.
*/
package framing

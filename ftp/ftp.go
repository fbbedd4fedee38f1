// Package ftp implements the OBEX Folder Browsing service: a client
// and a server browsing and transferring the objects of a folder tree.
//
// The service is reached by connecting with its Target UUID; all
// further requests carry the connection ID the server assigns.
package ftp

import (
	"github.com/andaru/obex/obexerr"
	"github.com/gofrs/uuid/v5"
)

// Target identifies the Folder Browsing service in CONNECT requests,
// and the service in the server's Who reply header.
var Target = uuid.Must(uuid.FromString("F9EC7BC4-953C-11D2-984E-525400DC9E09"))

// Permission bits of the Permissions header, repeated in the user
// (bits 0-7), group (8-15) and other (16-23) bytes.
const (
	PermRead   uint32 = 0x01
	PermWrite  uint32 = 0x02
	PermDelete uint32 = 0x04
	PermModify uint32 = 0x80
)

// check returns an obexerr.ResponseError for unsuccessful codes
func check(op string, code obexerr.Code) error {
	if code.Success() {
		return nil
	}
	return obexerr.ResponseError{Op: op, Code: code}
}

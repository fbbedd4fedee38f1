package ftp

import (
	"bytes"
	"io"

	"github.com/andaru/obex/folderlisting"
	"github.com/andaru/obex/header"
	"github.com/andaru/obex/session"
	"github.com/pkg/errors"
)

// ErrWrongService is returned by Connect when the server's Who header
// names another service.
var ErrWrongService = errors.New("connected to another service")

// Client browses a Folder Browsing server over a ClientSession.
// Failed requests return an obexerr.ResponseError.
type Client struct {
	s *session.ClientSession
}

// NewClient returns a Client using the session s
func NewClient(s *session.ClientSession) *Client { return &Client{s: s} }

// Session returns the client's session
func (c *Client) Session() *session.ClientSession { return c.s }

// Connect connects to the Folder Browsing service
func (c *Client) Connect() error {
	h := header.New()
	h.SetBytes(header.Target, Target.Bytes())
	reply, err := c.s.Connect(h)
	if err != nil {
		return err
	}
	if err = check("connect", reply.ResponseCode); err != nil {
		return err
	}
	if who, ok := reply.Bytes(header.Who); ok && !bytes.Equal(who, Target.Bytes()) {
		return errors.WithStack(ErrWrongService)
	}
	return nil
}

// Disconnect ends the connection
func (c *Client) Disconnect() error {
	reply, err := c.s.Disconnect(nil)
	if err != nil {
		return err
	}
	return check("disconnect", reply.ResponseCode)
}

// List returns the listing of the current folder
func (c *Client) List() (*folderlisting.Listing, error) { return c.ListFolder("") }

// ListFolder returns the listing of a sub-folder of the current folder,
// or the current folder if name is empty.
func (c *Client) ListFolder(name string) (*folderlisting.Listing, error) {
	h := header.New()
	h.SetType(folderlisting.MediaType)
	if name != "" {
		h.SetName(name)
	}
	var buf bytes.Buffer
	if _, err := c.get(h, &buf); err != nil {
		return nil, err
	}
	return folderlisting.Parse(&buf)
}

// ChangeDir moves to a sub-folder of the current folder
func (c *Client) ChangeDir(name string) error {
	h := header.New()
	h.SetName(name)
	return c.setPath("cd", h, false, false)
}

// Up moves to the parent folder
func (c *Client) Up() error { return c.setPath("cd ..", nil, true, false) }

// Root moves to the root folder
func (c *Client) Root() error {
	h := header.New()
	h.SetName("")
	return c.setPath("cd /", h, false, false)
}

// Mkdir creates a sub-folder of the current folder
func (c *Client) Mkdir(name string) error {
	h := header.New()
	h.SetName(name)
	if err := c.setPath("mkdir", h, false, true); err != nil {
		return err
	}
	// creating a folder enters it
	return c.Up()
}

func (c *Client) setPath(op string, h *header.Set, backup, create bool) error {
	reply, err := c.s.SetPath(h, backup, create)
	if err != nil {
		return err
	}
	return check(op, reply.ResponseCode)
}

// Get copies the object name in the current folder to w, returning
// the number of bytes copied.
func (c *Client) Get(name string, w io.Writer) (int64, error) {
	h := header.New()
	h.SetName(name)
	return c.get(h, w)
}

func (c *Client) get(h *header.Set, w io.Writer) (int64, error) {
	op, err := c.s.Get(h)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(w, op)
	if cerr := op.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// Put stores the contents of r as the object name in the current
// folder. The size, if not negative, is sent ahead of the object.
func (c *Client) Put(name string, r io.Reader, size int64) error {
	h := header.New()
	h.SetName(name)
	if size >= 0 {
		if err := h.SetLength(uint64(size)); err != nil {
			return err
		}
	}
	op, err := c.s.Put(h)
	if err != nil {
		return err
	}
	// an empty object is still sent with a body, unlike a delete
	if _, err = op.Write(nil); err == nil {
		_, err = io.Copy(op, r)
	}
	if err != nil {
		op.Abort()
		return err
	}
	return op.Close()
}

// Delete deletes the object name in the current folder
func (c *Client) Delete(name string) error {
	h := header.New()
	h.SetName(name)
	reply, err := c.s.Delete(h)
	if err != nil {
		return err
	}
	return check("delete", reply.ResponseCode)
}

// Copy copies the file name to dest, a path relative to the current
// folder or, with a leading slash, the root folder.
func (c *Client) Copy(name, dest string) error {
	return c.action("copy", name, dest, header.ActionCopy)
}

// Rename moves or renames the object name to dest, a path relative to
// the current folder or, with a leading slash, the root folder.
func (c *Client) Rename(name, dest string) error {
	return c.action("rename", name, dest, header.ActionMoveRename)
}

// SetPermissions sets the permissions of the object name, per the
// Perm constants.
func (c *Client) SetPermissions(name string, perm uint32) error {
	h := header.New()
	h.SetName(name)
	h.SetUint32(header.Permissions, perm)
	reply, err := c.s.Action(h, header.ActionSetPermissions)
	if err != nil {
		return err
	}
	return check("set permissions", reply.ResponseCode)
}

func (c *Client) action(op, name, dest string, action byte) error {
	h := header.New()
	h.SetName(name)
	h.SetText(header.DestName, dest)
	reply, err := c.s.Action(h, action)
	if err != nil {
		return err
	}
	return check(op, reply.ResponseCode)
}

package ftp

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/andaru/obex/folderlisting"
	"github.com/andaru/obex/header"
	"github.com/andaru/obex/obexerr"
	"github.com/andaru/obex/session"
	"github.com/golang/glog"
)

// Server serves a directory tree to one Folder Browsing client,
// implementing session.Handler. Objects outside the root directory
// cannot be reached.
type Server struct {
	session.DefaultHandler

	// ReadOnly refuses requests modifying the tree
	ReadOnly bool
	// Realm, if set, makes connecting clients authenticate. The
	// session's Authenticator supplies the expected password.
	Realm string

	root string
	// cwd is the current folder, a slash separated path relative to root
	cwd string
}

// NewServer returns a Server for the directory root
func NewServer(root string) *Server {
	return &Server{root: filepath.Clean(root)}
}

// Dir returns the current folder, relative to the root
func (s *Server) Dir() string { return s.cwd }

// OnConnect implements session.Handler, accepting connections to the
// Folder Browsing service only.
func (s *Server) OnConnect(request, reply *header.Set) obexerr.Code {
	target, ok := request.Bytes(header.Target)
	if !ok || !bytes.Equal(target, Target.Bytes()) {
		glog.V(1).Infof("ftp: refusing connection to target %x", target)
		return obexerr.ServiceUnavailable
	}
	// a response present here has been verified by the session
	if s.Realm != "" && !request.Has(header.AuthResponse) {
		if err := reply.CreateAuthenticationChallenge(s.Realm, false, !s.ReadOnly); err != nil {
			glog.Warningf("ftp: %v", err)
			return obexerr.InternalError
		}
		return obexerr.Unauthorized
	}
	reply.SetBytes(header.Who, Target.Bytes())
	s.cwd = ""
	return obexerr.OK
}

// OnSetPath implements session.Handler. An empty or missing name
// moves to the root folder, or with backup set to the parent folder.
func (s *Server) OnSetPath(request, reply *header.Set, backup, create bool) obexerr.Code {
	name, _ := request.Name()
	cwd := s.cwd
	if backup {
		if cwd == "" {
			return obexerr.NotFound
		}
		cwd = parent(cwd)
	}
	switch {
	case name == "" && !backup:
		cwd = ""
	case name == "":
	default:
		if !validName(name) {
			return obexerr.BadRequest
		}
		p := path.Join(cwd, name)
		host := s.host(p)
		fi, err := os.Stat(host)
		switch {
		case err == nil && !fi.IsDir():
			return obexerr.Forbidden
		case os.IsNotExist(err) && create:
			if s.ReadOnly {
				return obexerr.Forbidden
			}
			if err = os.Mkdir(host, 0o755); err != nil {
				return codeOf("mkdir", err)
			}
			glog.V(1).Infof("ftp: created folder %q", p)
		case err != nil:
			return codeOf("setpath", err)
		}
		cwd = p
	}
	s.cwd = cwd
	glog.V(2).Infof("ftp: current folder %q", cwd)
	return obexerr.OK
}

// OnGet implements session.Handler, serving folder listings and files
func (s *Server) OnGet(op *session.ServerOperation) obexerr.Code {
	request := op.RequestHeaders()
	name, _ := request.Name()
	if mt, _ := request.Type(); mt == folderlisting.MediaType {
		return s.getListing(op, name)
	}
	host, ok := s.resolve(name)
	if !ok {
		return obexerr.BadRequest
	}
	f, err := os.Open(host)
	if err != nil {
		return codeOf("get", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return codeOf("get", err)
	}
	if fi.IsDir() {
		return obexerr.Forbidden
	}
	reply := op.ReplyHeaders()
	_ = reply.SetLength(uint64(fi.Size()))
	reply.SetTime(fi.ModTime())
	if _, err = op.Write(nil); err == nil {
		_, err = io.Copy(op, f)
	}
	if err != nil {
		glog.V(1).Infof("ftp: get %q: %v", name, err)
		return obexerr.InternalError
	}
	return obexerr.OK
}

func (s *Server) getListing(op *session.ServerOperation, name string) obexerr.Code {
	dir := s.cwd
	if name != "" {
		if !validName(name) {
			return obexerr.BadRequest
		}
		dir = path.Join(dir, name)
	}
	l, err := s.list(dir)
	if err != nil {
		return codeOf("list", err)
	}
	var buf bytes.Buffer
	if err = folderlisting.Encode(&buf, l); err != nil {
		glog.Warningf("ftp: %v", err)
		return obexerr.InternalError
	}
	reply := op.ReplyHeaders()
	reply.SetType(folderlisting.MediaType)
	_ = reply.SetLength(uint64(buf.Len()))
	if _, err = op.Write(buf.Bytes()); err != nil {
		return obexerr.InternalError
	}
	return obexerr.OK
}

// list returns the listing of a folder, given relative to the root
func (s *Server) list(dir string) (*folderlisting.Listing, error) {
	entries, err := os.ReadDir(s.host(dir))
	if err != nil {
		return nil, err
	}
	l := &folderlisting.Listing{ParentFolder: dir != ""}
	for _, de := range entries {
		fi, err := de.Info()
		if err != nil {
			continue
		}
		e := folderlisting.Entry{
			Name:        de.Name(),
			Modified:    fi.ModTime(),
			Permissions: s.permissions(fi.Mode()),
		}
		switch {
		case fi.IsDir():
			e.Kind = folderlisting.KindFolder
		case fi.Mode().IsRegular():
			e.Size, e.HasSize = uint64(fi.Size()), true
		default:
			continue
		}
		l.Entries = append(l.Entries, e)
	}
	return l, nil
}

func (s *Server) permissions(mode fs.FileMode) string {
	var p string
	if mode&0o400 != 0 {
		p += "R"
	}
	if !s.ReadOnly && mode&0o200 != 0 {
		p += "WD"
	}
	return p
}

// OnPut implements session.Handler. The object is written to a
// temporary file, which replaces any existing object once complete.
func (s *Server) OnPut(op *session.ServerOperation) obexerr.Code {
	request := op.RequestHeaders()
	name, _ := request.Name()
	host, ok := s.resolve(name)
	if !ok {
		return obexerr.BadRequest
	}
	if s.ReadOnly {
		return obexerr.Forbidden
	}
	if fi, err := os.Stat(host); err == nil && fi.IsDir() {
		return obexerr.Forbidden
	}
	tmp, err := os.CreateTemp(filepath.Dir(host), ".obex-put-*")
	if err != nil {
		return codeOf("put", err)
	}
	n, err := io.Copy(tmp, op)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		glog.V(1).Infof("ftp: put %q: %v", name, err)
		return obexerr.InternalError
	}
	if mt, ok := request.Time(); ok {
		_ = os.Chtimes(tmp.Name(), mt, mt)
	}
	if err = os.Rename(tmp.Name(), host); err != nil {
		os.Remove(tmp.Name())
		return codeOf("put", err)
	}
	glog.V(1).Infof("ftp: stored %q (%d bytes)", path.Join(s.cwd, name), n)
	return obexerr.OK
}

// OnDelete implements session.Handler. Folders must be empty.
func (s *Server) OnDelete(request, reply *header.Set) obexerr.Code {
	name, _ := request.Name()
	host, ok := s.resolve(name)
	if !ok {
		return obexerr.BadRequest
	}
	if s.ReadOnly {
		return obexerr.Forbidden
	}
	fi, err := os.Stat(host)
	if err != nil {
		return codeOf("delete", err)
	}
	if err = os.Remove(host); err != nil {
		if fi.IsDir() {
			return obexerr.PreconditionFail
		}
		return codeOf("delete", err)
	}
	glog.V(1).Infof("ftp: deleted %q", path.Join(s.cwd, name))
	return obexerr.OK
}

// OnCopy implements session.Handler, copying a file
func (s *Server) OnCopy(request, reply *header.Set) obexerr.Code {
	src, dst, code := s.actionPaths(request)
	if code != obexerr.OK {
		return code
	}
	in, err := os.Open(src)
	if err != nil {
		return codeOf("copy", err)
	}
	defer in.Close()
	if fi, err := in.Stat(); err != nil || !fi.Mode().IsRegular() {
		return obexerr.Forbidden
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return codeOf("copy", err)
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return codeOf("copy", err)
	}
	return obexerr.OK
}

// OnRename implements session.Handler, moving or renaming an object
func (s *Server) OnRename(request, reply *header.Set) obexerr.Code {
	src, dst, code := s.actionPaths(request)
	if code != obexerr.OK {
		return code
	}
	if _, err := os.Lstat(src); err != nil {
		return codeOf("rename", err)
	}
	if _, err := os.Lstat(dst); err == nil {
		return obexerr.Conflict
	}
	if err := os.Rename(src, dst); err != nil {
		return codeOf("rename", err)
	}
	return obexerr.OK
}

// OnSetPermissions implements session.Handler, mapping the read and
// write permission bits onto the file mode.
func (s *Server) OnSetPermissions(request, reply *header.Set) obexerr.Code {
	name, _ := request.Name()
	host, ok := s.resolve(name)
	perm, hasPerm := request.Uint32(header.Permissions)
	if !ok || !hasPerm {
		return obexerr.BadRequest
	}
	if s.ReadOnly {
		return obexerr.Forbidden
	}
	fi, err := os.Stat(host)
	if err != nil {
		return codeOf("set permissions", err)
	}
	mode := fi.Mode().Perm() &^ 0o666
	for shift := 0; shift < 3; shift++ {
		bits := perm >> (8 * uint(shift))
		unix := fs.FileMode(0o400 >> (3 * uint(shift)))
		if bits&PermRead != 0 {
			mode |= unix
		}
		if bits&PermWrite != 0 {
			mode |= unix >> 1
		}
	}
	if err = os.Chmod(host, mode); err != nil {
		return codeOf("set permissions", err)
	}
	return obexerr.OK
}

func (s *Server) actionPaths(request *header.Set) (src, dst string, code obexerr.Code) {
	name, _ := request.Name()
	dest, _ := request.Text(header.DestName)
	src, ok := s.resolve(name)
	if !ok {
		return "", "", obexerr.BadRequest
	}
	if dst, ok = s.resolveDest(dest); !ok {
		return "", "", obexerr.BadRequest
	}
	if s.ReadOnly {
		return "", "", obexerr.Forbidden
	}
	return src, dst, obexerr.OK
}

// host returns the host path of a path relative to the root
func (s *Server) host(p string) string {
	return filepath.Join(s.root, filepath.FromSlash(path.Clean("/"+p)))
}

// resolve returns the host path of an object in the current folder
func (s *Server) resolve(name string) (string, bool) {
	if !validName(name) {
		return "", false
	}
	return s.host(path.Join(s.cwd, name)), true
}

// resolveDest returns the host path of a destination name, a path
// relative to the current folder or, with a leading slash, the root.
func (s *Server) resolveDest(dest string) (string, bool) {
	if dest == "" || strings.ContainsRune(dest, '\\') {
		return "", false
	}
	p := dest
	if !strings.HasPrefix(dest, "/") {
		p = s.cwd + "/" + dest
	}
	if p = path.Clean("/" + p); p == "/" {
		return "", false
	}
	return s.host(p), true
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

func parent(p string) string {
	if p = path.Dir(p); p == "." {
		return ""
	}
	return p
}

// codeOf maps a filesystem error onto a response code
func codeOf(op string, err error) obexerr.Code {
	switch {
	case os.IsNotExist(err):
		return obexerr.NotFound
	case os.IsPermission(err):
		return obexerr.Forbidden
	case os.IsExist(err):
		return obexerr.Conflict
	}
	glog.Warningf("ftp: %s: %v", op, err)
	return obexerr.InternalError
}

var _ session.Handler = &Server{}

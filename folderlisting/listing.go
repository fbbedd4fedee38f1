// Package folderlisting reads and writes x-obex/folder-listing objects,
// the XML documents describing a folder's contents in the OBEX Folder
// Browsing service.
package folderlisting

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/pkg/errors"
)

// MediaType is the Type header value of folder listing objects
const MediaType = "x-obex/folder-listing"

// TimeFormat is the layout of listing timestamps, which are UTC when
// suffixed with Z and local time otherwise.
const TimeFormat = "20060102T150405"

// Kind is the kind of a listing entry
type Kind int

const (
	// KindFile is a file entry
	KindFile Kind = iota
	// KindFolder is a folder entry
	KindFolder
)

func (k Kind) String() string {
	if k == KindFolder {
		return "folder"
	}
	return "file"
}

// Entry describes one object of a folder
type Entry struct {
	Kind Kind
	Name string
	// Size is the object size in bytes; HasSize is false when not given
	Size    uint64
	HasSize bool
	// Modified is the last modification time; zero when not given
	Modified time.Time
	// Permissions holds the user-perm attribute, some of "RWD"
	Permissions string
}

// Listing is the contents of a folder
type Listing struct {
	// ParentFolder is set when the folder has a parent to move up to
	ParentFolder bool
	Entries      []Entry
}

var (
	xpListing = xpath.MustCompile(`/folder-listing`)
	xpParent  = xpath.MustCompile(`/folder-listing/parent-folder`)
	xpEntries = xpath.MustCompile(`/folder-listing/*`)
)

// Parse reads a folder listing document
func Parse(r io.Reader) (*Listing, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "folder listing")
	}
	if xmlquery.QuerySelector(doc, xpListing) == nil {
		return nil, errors.New("missing <folder-listing> element")
	}
	l := &Listing{ParentFolder: xmlquery.QuerySelector(doc, xpParent) != nil}
	for _, n := range xmlquery.QuerySelectorAll(doc, xpEntries) {
		if n.Data != "file" && n.Data != "folder" {
			continue
		}
		e := Entry{Name: n.SelectAttr("name"), Permissions: n.SelectAttr("user-perm")}
		if e.Name == "" {
			return nil, errors.Errorf("<%s> element without name", n.Data)
		}
		if n.Data == "folder" {
			e.Kind = KindFolder
		}
		if v := strings.TrimSpace(n.SelectAttr("size")); v != "" {
			size, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return nil, errors.Errorf("invalid size %q for %q", v, e.Name)
			}
			e.Size, e.HasSize = size, true
		}
		if v := strings.TrimSpace(n.SelectAttr("modified")); v != "" {
			if e.Modified, err = parseTime(v); err != nil {
				return nil, errors.Errorf("invalid modified time %q for %q", v, e.Name)
			}
		}
		l.Entries = append(l.Entries, e)
	}
	return l, nil
}

func parseTime(v string) (time.Time, error) {
	if strings.HasSuffix(v, "Z") {
		return time.Parse(TimeFormat+"Z", v)
	}
	return time.ParseInLocation(TimeFormat, v, time.Local)
}

var (
	seListing = xml.StartElement{
		Name: xn("folder-listing"),
		Attr: []xml.Attr{{Name: xn("version"), Value: "1.0"}},
	}
	seParent = xml.StartElement{Name: xn("parent-folder")}
)

// Encode writes l as a folder listing document
func Encode(w io.Writer, l *Listing) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	xe := xml.NewEncoder(w)
	xe.Indent("", "  ")
	err := xe.EncodeToken(xml.Directive(`DOCTYPE folder-listing SYSTEM "obex-folder-listing.dtd"`))
	if err == nil {
		err = xe.EncodeToken(seListing)
	}
	if err == nil && l.ParentFolder {
		if err = xe.EncodeToken(seParent); err == nil {
			err = xe.EncodeToken(seParent.End())
		}
	}
	for _, e := range l.Entries {
		if err != nil {
			break
		}
		se := entryElement(e)
		if err = xe.EncodeToken(se); err == nil {
			err = xe.EncodeToken(se.End())
		}
	}
	if err == nil {
		err = xe.EncodeToken(seListing.End())
	}
	if err == nil {
		err = xe.Flush()
	}
	return errors.Wrap(err, "folder listing")
}

func entryElement(e Entry) xml.StartElement {
	se := xml.StartElement{
		Name: xn(e.Kind.String()),
		Attr: []xml.Attr{{Name: xn("name"), Value: e.Name}},
	}
	if e.HasSize {
		se.Attr = append(se.Attr, xml.Attr{Name: xn("size"), Value: strconv.FormatUint(e.Size, 10)})
	}
	if !e.Modified.IsZero() {
		se.Attr = append(se.Attr, xml.Attr{Name: xn("modified"), Value: e.Modified.UTC().Format(TimeFormat + "Z")})
	}
	if e.Permissions != "" {
		se.Attr = append(se.Attr, xml.Attr{Name: xn("user-perm"), Value: e.Permissions})
	}
	return se
}

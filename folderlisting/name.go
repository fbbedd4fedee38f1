package folderlisting

import "encoding/xml"

// xn is a shortcut for creating an xml.Name, with a local name and
// perhaps a namespace value as well.
func xn(local string, spaces ...string) xml.Name {
	n := xml.Name{Local: local}
	if len(spaces) > 0 {
		n.Space = spaces[0]
	}
	return n
}

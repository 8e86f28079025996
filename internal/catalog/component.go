package catalog

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Component is a kind of file belonging to a segment.
type Component uint8

const (
	Postings Component = iota
	Positions
	FastFields
	FieldNorms
	Terms
	Store
	TempStore
	Delete

	numComponents
)

// fileComponents are the components stored directly on an entry; Delete lives in
// the entry's delete record.
var fileComponents = [...]Component{Postings, Positions, FastFields, FieldNorms, Terms, Store, TempStore}

var componentExt = [numComponents]string{
	Postings:   "idx",
	Positions:  "pos",
	FastFields: "fast",
	FieldNorms: "fieldnorm",
	Terms:      "term",
	Store:      "store",
	TempStore:  "store.temp",
	Delete:     "del",
}

// Ext returns the file extension of the component.
func (c Component) Ext() string {
	if c >= numComponents {
		return "unknown"
	}
	return componentExt[c]
}

func (c Component) String() string {
	return c.Ext()
}

// Path returns the file name of component c of segment id. Delete files always use
// opstamp 0 in their name; the real opstamp is kept in the delete record.
func Path(id SegmentID, c Component) string {
	if c == Delete {
		return id.String() + ".0.del"
	}
	return id.String() + "." + c.Ext()
}

// ParsePath splits a component file name into its segment id and component.
func ParsePath(path string) (SegmentID, Component, error) {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		path = path[i+1:]
	}
	head, rest, ok := strings.Cut(path, ".")
	if !ok || rest == "" {
		return SegmentID{}, 0, errors.AssertionFailedf("catalog: malformed component path %q", path)
	}
	id, err := ParseSegmentID(head)
	if err != nil {
		return SegmentID{}, 0, errors.NewAssertionErrorWithWrappedErrf(err, "catalog: malformed component path %q", path)
	}
	if strings.HasSuffix(rest, ".del") || rest == "del" {
		return id, Delete, nil
	}
	for _, c := range fileComponents {
		if rest == c.Ext() {
			return id, c, nil
		}
	}
	return SegmentID{}, 0, errors.AssertionFailedf("catalog: unknown component in path %q", path)
}

// Package codec centralizes the JSON encoding of index metadata handed to the
// search library.
//
// The schema and settings blobs are raw JSON owned by the search library; the
// codec only shapes the envelope around them, so switching codecs never changes
// what is stored in pages.
package codec

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name, as written in config files.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

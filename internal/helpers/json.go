// Package helpers holds encoding utilities shared by the compilers.
package helpers

import (
	"bytes"
	"encoding/json"
)

// MarshalJSON encodes v without HTML escaping and without the trailing
// newline of json.Encoder, so embedded sources keep their < > and &.
func MarshalJSON(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(v)
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), err
}

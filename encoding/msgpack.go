// Package encoding provides the binary serialization used for values the
// reactivator keeps in local storage (cursor records in the pebble store).
// All msgpack operations go through this package so records written by one
// version stay readable by the next.
//
// Thread Safety: Marshal and Unmarshal are safe for concurrent use.
package encoding

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Marshal encodes a value to msgpack format.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("msgpack")

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal decodes msgpack data using loose interface decoding.
// When decoding into interface{}, strings are preserved as Go strings (not
// []byte), so cursor tokens round-trip with their original type.
func Unmarshal(data []byte, v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)

	return dec.Decode(v)
}

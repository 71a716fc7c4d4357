package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	EncodingJSON    = "json"
	EncodingMsgpack = "msgpack"
)

func ValidEncoding(enc string) bool {
	return enc == "" || enc == EncodingJSON || enc == EncodingMsgpack
}

// Marshal encodes v for the wire. msgpack reuses the json struct tags so both
// encodings carry the same field names.
func Marshal(enc string, v any) ([]byte, error) {
	switch enc {
	case "", EncodingJSON:
		return json.Marshal(v)
	case EncodingMsgpack:
		var buf bytes.Buffer
		e := msgpack.NewEncoder(&buf)
		e.SetCustomStructTag("json")
		e.UseCompactInts(true)
		if err := e.Encode(v); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}

func Unmarshal(enc string, b []byte, v any) error {
	switch enc {
	case "", EncodingJSON:
		return json.Unmarshal(b, v)
	case EncodingMsgpack:
		d := msgpack.NewDecoder(bytes.NewReader(b))
		d.SetCustomStructTag("json")
		return d.Decode(v)
	default:
		return fmt.Errorf("unknown encoding %q", enc)
	}
}

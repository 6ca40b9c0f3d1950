package codec

import (
	"mini-jsonrpc/value"
)

// JSONCodec writes payloads as JSON text, keeping object member order.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v value.Value) ([]byte, error) {
	return v.MarshalJSON()
}

func (c *JSONCodec) Decode(data []byte) (value.Value, error) {
	return value.Parse(data)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}

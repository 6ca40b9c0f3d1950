// Package codec turns structured payloads into bytes and back.
//
// The core never touches bytes; transports pick a Codec to put payloads on the
// wire. JSON is the format JSON-RPC peers expect, MessagePack is offered for
// peers on the framed TCP transport that agree on it.
package codec

import (
	"fmt"
	"strings"

	"mini-jsonrpc/value"
)

type CodecType byte

const (
	CodecTypeJSON    CodecType = 0
	CodecTypeMsgpack CodecType = 1
)

func (t CodecType) String() string {
	switch t {
	case CodecTypeJSON:
		return "json"
	case CodecTypeMsgpack:
		return "msgpack"
	}
	return fmt.Sprintf("codec(%d)", byte(t))
}

type Codec interface {
	Encode(v value.Value) ([]byte, error)
	Decode(data []byte) (value.Value, error)
	Type() CodecType // 0=JSON, 1=MessagePack
}

// GetCodec returns the codec for codecType. Unknown types fall back to JSON.
func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeMsgpack {
		return &MsgpackCodec{}
	}

	return &JSONCodec{}
}

// ParseCodecType maps a configuration name to a codec type.
func ParseCodecType(name string) (CodecType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return CodecTypeJSON, nil
	case "msgpack", "messagepack":
		return CodecTypeMsgpack, nil
	}
	return 0, fmt.Errorf("unknown codec %q", name)
}

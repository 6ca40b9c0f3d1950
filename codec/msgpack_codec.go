package codec

import (
	"errors"
	"fmt"
	"math"

	"github.com/tinylib/msgp/msgp"

	"mini-jsonrpc/value"
)

// MsgpackCodec writes payloads as MessagePack. Objects become maps with their
// members in order, integers stay integers.
type MsgpackCodec struct{}

// maxDepth bounds nesting on decode so hostile input cannot exhaust the stack.
const maxDepth = 512

var errTooDeep = errors.New("msgpack: payload nested too deeply")

func (c *MsgpackCodec) Encode(v value.Value) ([]byte, error) {
	return appendValue(make([]byte, 0, 128), v)
}

func (c *MsgpackCodec) Decode(data []byte) (value.Value, error) {
	v, rest, err := readValue(data, 0)
	if err != nil {
		return value.Value{}, err
	}
	if len(rest) != 0 {
		return value.Value{}, fmt.Errorf("msgpack: %d trailing bytes", len(rest))
	}
	return v, nil
}

func (c *MsgpackCodec) Type() CodecType {
	return CodecTypeMsgpack
}

func appendValue(b []byte, v value.Value) ([]byte, error) {
	switch v.Kind() {
	case value.KindNull:
		return msgp.AppendNil(b), nil
	case value.KindBool:
		t, _ := v.AsBool()
		return msgp.AppendBool(b, t), nil
	case value.KindNumber:
		if v.IsInteger() {
			i, _ := v.AsInt()
			return msgp.AppendInt64(b, i), nil
		}
		f, _ := v.AsFloat()
		return msgp.AppendFloat64(b, f), nil
	case value.KindString:
		s, _ := v.AsString()
		return msgp.AppendString(b, s), nil
	case value.KindArray:
		items, _ := v.AsArray()
		b = msgp.AppendArrayHeader(b, uint32(len(items)))
		var err error
		for _, item := range items {
			if b, err = appendValue(b, item); err != nil {
				return nil, err
			}
		}
		return b, nil
	case value.KindObject:
		obj, _ := v.AsObject()
		b = msgp.AppendMapHeader(b, uint32(obj.Len()))
		var err error
		for _, m := range obj.Members() {
			b = msgp.AppendString(b, m.Key)
			if b, err = appendValue(b, m.Value); err != nil {
				return nil, err
			}
		}
		return b, nil
	}
	return nil, fmt.Errorf("msgpack: cannot encode %v", v.Kind())
}

func readValue(b []byte, depth int) (value.Value, []byte, error) {
	if depth > maxDepth {
		return value.Value{}, nil, errTooDeep
	}
	switch msgp.NextType(b) {
	case msgp.NilType:
		rest, err := msgp.ReadNilBytes(b)
		return value.Null(), rest, err
	case msgp.BoolType:
		t, rest, err := msgp.ReadBoolBytes(b)
		return value.Bool(t), rest, err
	case msgp.IntType:
		i, rest, err := msgp.ReadInt64Bytes(b)
		return value.Int(i), rest, err
	case msgp.UintType:
		u, rest, err := msgp.ReadUint64Bytes(b)
		if err != nil {
			return value.Value{}, nil, err
		}
		if u > math.MaxInt64 {
			return value.Float(float64(u)), rest, nil
		}
		return value.Int(int64(u)), rest, nil
	case msgp.Float32Type:
		f, rest, err := msgp.ReadFloat32Bytes(b)
		return value.Float(float64(f)), rest, err
	case msgp.Float64Type:
		f, rest, err := msgp.ReadFloat64Bytes(b)
		return value.Float(f), rest, err
	case msgp.StrType:
		s, rest, err := msgp.ReadStringBytes(b)
		return value.String(s), rest, err
	case msgp.BinType:
		raw, rest, err := msgp.ReadBytesBytes(b, nil)
		return value.String(string(raw)), rest, err
	case msgp.ArrayType:
		n, rest, err := msgp.ReadArrayHeaderBytes(b)
		if err != nil {
			return value.Value{}, nil, err
		}
		items := make([]value.Value, 0, min(int(n), len(rest)))
		for i := uint32(0); i < n; i++ {
			var item value.Value
			item, rest, err = readValue(rest, depth+1)
			if err != nil {
				return value.Value{}, nil, err
			}
			items = append(items, item)
		}
		return value.Array(items...), rest, nil
	case msgp.MapType:
		n, rest, err := msgp.ReadMapHeaderBytes(b)
		if err != nil {
			return value.Value{}, nil, err
		}
		members := make([]value.Member, 0, min(int(n), len(rest)))
		for i := uint32(0); i < n; i++ {
			var key []byte
			key, rest, err = msgp.ReadMapKeyZC(rest)
			if err != nil {
				return value.Value{}, nil, err
			}
			var item value.Value
			item, rest, err = readValue(rest, depth+1)
			if err != nil {
				return value.Value{}, nil, err
			}
			members = append(members, value.M(string(key), item))
		}
		return value.ObjectOf(members...), rest, nil
	case msgp.InvalidType:
		if len(b) == 0 {
			return value.Value{}, nil, msgp.ErrShortBytes
		}
	}
	return value.Value{}, nil, fmt.Errorf("msgpack: unsupported type %v", msgp.NextType(b))
}

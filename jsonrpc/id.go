package jsonrpc

import (
	"strconv"

	"mini-jsonrpc/value"
)

type idKind uint8

const (
	idAbsent idKind = iota
	idNumber
	idString
)

// ID correlates a request with its response. It holds either a number or a
// string; the zero ID is absent and marks a notification.
//
// IDs are comparable with ==. A number never equals a string, even when the
// string holds the same digits.
type ID struct {
	kind idKind
	num  int64
	str  string
}

func NumberID(n int64) ID { return ID{kind: idNumber, num: n} }

func StringID(s string) ID { return ID{kind: idString, str: s} }

// IDFromValue reads the id member of a response. Integral numbers and
// strings produce an ID; null, a missing member or any other shape is absent.
func IDFromValue(v value.Value) ID {
	switch v.Kind() {
	case value.KindNumber:
		if n, ok := v.AsInt(); ok {
			return NumberID(n)
		}
	case value.KindString:
		s, _ := v.AsString()
		return StringID(s)
	}
	return ID{}
}

func (id ID) IsAbsent() bool { return id.kind == idAbsent }

func (id ID) IsNumber() bool { return id.kind == idNumber }

func (id ID) IsString() bool { return id.kind == idString }

// Number returns the numeric id.
func (id ID) Number() (int64, bool) { return id.num, id.kind == idNumber }

// Text returns the string id.
func (id ID) Text() (string, bool) { return id.str, id.kind == idString }

// Value is the id as it appears on the wire. Absent ids become null.
func (id ID) Value() value.Value {
	switch {
	case id.IsNumber():
		return value.Int(id.num)
	case id.IsString():
		return value.String(id.str)
	}
	return value.Null()
}

func (id ID) String() string {
	switch {
	case id.IsNumber():
		return strconv.FormatInt(id.num, 10)
	case id.IsString():
		return strconv.Quote(id.str)
	}
	return "<absent>"
}

func (id ID) MarshalJSON() ([]byte, error) {
	return id.Value().MarshalJSON()
}

func (id *ID) UnmarshalJSON(data []byte) error {
	v, err := value.Parse(data)
	if err != nil {
		return err
	}
	*id = IDFromValue(v)
	return nil
}

// Package jsonrpc builds JSON-RPC calls and matches responses back to them.
//
// An Element pairs a Request with a protocol version and an ID. It encodes the
// request object and decodes the reply, whether the peer answered with a single
// response object or with a batch array:
//
//	Element{req, "2.0", 1}.Body()  ──►  {"jsonrpc":"2.0","method":"m","params":…,"id":1}
//
//	[{"id":2,…}, {"id":1,"result":…}]  ──ResponseFromArray──►  scan by id ──► unit {"id":1,…}
//	                                                                          │
//	version ─► result/error present ─► error object ─► ParseResult ◄──────────┘
//
// Matching is by id only, never by position. Every failure is one of the six
// types listed in errors.go.
package jsonrpc

import "mini-jsonrpc/value"

// Member names of the request and response objects.
const (
	fieldVersion = "jsonrpc"
	fieldMethod  = "method"
	fieldParams  = "params"
	fieldID      = "id"
	fieldResult  = "result"
	fieldError   = "error"
	fieldCode    = "code"
	fieldMessage = "message"
	fieldData    = "data"
)

// Version is the protocol version this package speaks by default.
const Version = "2.0"

// Element is one call ready to be encoded and later matched with its response.
// It holds no mutable state and may be shared between goroutines.
type Element[R any] struct {
	request Request[R]
	version string
	id      ID
}

// NewElement builds an element. Notifications get an absent id regardless of id.
func NewElement[R any](req Request[R], version string, id ID) *Element[R] {
	if isNotification(req) {
		id = ID{}
	}
	return &Element[R]{request: req, version: version, id: id}
}

func (e *Element[R]) Request() Request[R] { return e.request }

func (e *Element[R]) Version() string { return e.version }

func (e *Element[R]) ID() ID { return e.id }

func (e *Element[R]) Method() string { return e.request.Method() }

// IsNotification reports whether no response is expected for this element.
func (e *Element[R]) IsNotification() bool { return e.id.IsAbsent() }

// Body returns the request object for this call.
func (e *Element[R]) Body() value.Value {
	members := []value.Member{
		value.M(fieldVersion, value.String(e.version)),
		value.M(fieldMethod, value.String(e.request.Method())),
	}
	if params, ok := e.request.Params(); ok {
		members = append(members, value.M(fieldParams, params))
	}
	if !e.id.IsAbsent() {
		members = append(members, value.M(fieldID, e.id.Value()))
	}
	return value.ObjectOf(members...)
}

// ResponseFrom decodes either shape of reply: arrays go to ResponseFromArray,
// anything else to ResponseFromObject.
func (e *Element[R]) ResponseFrom(v value.Value) (R, error) {
	if items, ok := v.AsArray(); ok {
		return e.ResponseFromArray(items)
	}
	return e.ResponseFromObject(v)
}

// ResponseFromObject decodes a single response object.
//
// Checks run in order and the first failure is returned: version, id, presence
// of result or error, the error object, then the result parser.
func (e *Element[R]) ResponseFromObject(v value.Value) (R, error) {
	if err := e.checkVersion(v); err != nil {
		var zero R
		return zero, err
	}
	if !e.matches(v) {
		var zero R
		return zero, &ResponseNotFoundError{ID: e.id, Payload: v}
	}
	return e.decodeUnit(v)
}

// ResponseFromArray finds the unit answering this element in a batch reply
// and decodes it. Other units in the batch are not inspected.
func (e *Element[R]) ResponseFromArray(items []value.Value) (R, error) {
	for _, item := range items {
		if !e.matches(item) {
			continue
		}
		if err := e.checkVersion(item); err != nil {
			var zero R
			return zero, err
		}
		return e.decodeUnit(item)
	}
	var zero R
	return zero, &ResponseNotFoundError{ID: e.id, Payload: value.Array(items...)}
}

// Check decodes v and discards the typed result.
func (e *Element[R]) Check(v value.Value) error {
	_, err := e.ResponseFrom(v)
	return err
}

// matches reports whether unit answers this element. Notifications never match.
func (e *Element[R]) matches(unit value.Value) bool {
	if e.id.IsAbsent() {
		return false
	}
	raw, _ := unit.Field(fieldID)
	return IDFromValue(raw) == e.id
}

func (e *Element[R]) checkVersion(unit value.Value) error {
	raw, ok := unit.Field(fieldVersion)
	if !ok {
		return nil
	}
	version, ok := raw.AsString()
	if !ok {
		// a non-string version is reported as its JSON text
		return &UnsupportedVersionError{Version: raw.String()}
	}
	if version != e.version {
		return &UnsupportedVersionError{Version: version}
	}
	return nil
}

func (e *Element[R]) decodeUnit(unit value.Value) (R, error) {
	var zero R
	result, hasResult := unit.Field(fieldResult)
	errObj, hasError := unit.Field(fieldError)

	if !hasResult && !hasError {
		return zero, &MissingBothResultAndError{}
	}
	// error wins when a malformed unit carries both
	if hasError {
		return zero, parseErrorObject(errObj)
	}

	parsed, err := e.request.ParseResult(result)
	if err != nil {
		return zero, &ResultObjectParseError{Err: err}
	}
	return parsed, nil
}

func parseErrorObject(v value.Value) error {
	rawCode, ok := v.Field(fieldCode)
	if !ok {
		return &ErrorObjectParseError{}
	}
	code, ok := rawCode.AsInt()
	if !ok || int64(int(code)) != code {
		return &ErrorObjectParseError{}
	}
	rawMessage, ok := v.Field(fieldMessage)
	if !ok {
		return &ErrorObjectParseError{}
	}
	message, ok := rawMessage.AsString()
	if !ok {
		return &ErrorObjectParseError{}
	}

	respErr := &ResponseError{Code: int(code), Message: message}
	if data, ok := v.Field(fieldData); ok {
		respErr.Data = &data
	}
	return respErr
}

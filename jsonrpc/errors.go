package jsonrpc

import (
	"errors"
	"fmt"

	"mini-jsonrpc/value"
)

// ErrorKind names one of the ways decoding a response can fail.
type ErrorKind uint8

const (
	KindResponseNotFound ErrorKind = iota + 1
	KindUnsupportedVersion
	KindMissingBothResultAndError
	KindErrorObjectParseError
	KindResponseError
	KindResultObjectParseError
)

func (k ErrorKind) String() string {
	switch k {
	case KindResponseNotFound:
		return "ResponseNotFound"
	case KindUnsupportedVersion:
		return "UnsupportedVersion"
	case KindMissingBothResultAndError:
		return "MissingBothResultAndError"
	case KindErrorObjectParseError:
		return "ErrorObjectParseError"
	case KindResponseError:
		return "ResponseError"
	case KindResultObjectParseError:
		return "ResultObjectParseError"
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

// Error is implemented only by the six decode failures of this package, so a
// switch over Kind() covers every case.
type Error interface {
	error
	Kind() ErrorKind
	sealed()
}

// KindOf reports the decode failure kind carried by err, looking through wrapping.
func KindOf(err error) (ErrorKind, bool) {
	var e Error
	if errors.As(err, &e) {
		return e.Kind(), true
	}
	return 0, false
}

// ResponseNotFoundError means no response unit carried the expected id.
// Payload is the unmatched object, or the whole batch array.
type ResponseNotFoundError struct {
	ID      ID
	Payload value.Value
}

func (e *ResponseNotFoundError) Error() string {
	return fmt.Sprintf("jsonrpc: no response for id %v", e.ID)
}

func (e *ResponseNotFoundError) Kind() ErrorKind { return KindResponseNotFound }
func (*ResponseNotFoundError) sealed() {}

// UnsupportedVersionError means the matched unit declared another protocol version.
type UnsupportedVersionError struct {
	Version string
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("jsonrpc: unsupported version %q", e.Version)
}

func (e *UnsupportedVersionError) Kind() ErrorKind { return KindUnsupportedVersion }
func (*UnsupportedVersionError) sealed() {}

// MissingBothResultAndError means the matched unit had neither member.
type MissingBothResultAndError struct{}

func (*MissingBothResultAndError) Error() string {
	return "jsonrpc: response has neither result nor error"
}

func (*MissingBothResultAndError) Kind() ErrorKind { return KindMissingBothResultAndError }
func (*MissingBothResultAndError) sealed() {}

// ErrorObjectParseError means the error member lacked an integer code or a
// string message.
type ErrorObjectParseError struct{}

func (*ErrorObjectParseError) Error() string {
	return "jsonrpc: malformed error object"
}

func (*ErrorObjectParseError) Kind() ErrorKind { return KindErrorObjectParseError }
func (*ErrorObjectParseError) sealed() {}

// ResponseError is a well-formed error returned by the remote peer.
type ResponseError struct {
	Code    int
	Message string
	// Data is nil when the error object had no data member.
	Data *value.Value
}

func (e *ResponseError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("jsonrpc: error %d: %s (data: %v)", e.Code, e.Message, *e.Data)
	}
	return fmt.Sprintf("jsonrpc: error %d: %s", e.Code, e.Message)
}

func (e *ResponseError) Kind() ErrorKind { return KindResponseError }
func (*ResponseError) sealed() {}

// ResultObjectParseError wraps the failure returned by Request.ParseResult.
type ResultObjectParseError struct {
	Err error
}

func (e *ResultObjectParseError) Error() string {
	return fmt.Sprintf("jsonrpc: parse result: %v", e.Err)
}

func (e *ResultObjectParseError) Unwrap() error { return e.Err }

func (e *ResultObjectParseError) Kind() ErrorKind { return KindResultObjectParseError }
func (*ResultObjectParseError) sealed() {}

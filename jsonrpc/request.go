package jsonrpc

import "mini-jsonrpc/value"

// Request describes one remote call: the method to invoke, its parameters and
// how to turn the result member of a successful response into R.
//
// ParseResult must be free of side effects. Decoding calls it at most once per
// matched response.
type Request[R any] interface {
	Method() string
	// Params returns false when the call carries no params member.
	Params() (value.Value, bool)
	ParseResult(result value.Value) (R, error)
}

// Notification is implemented by requests that never expect a reply. Their
// elements always carry an absent id, whatever id they were built with.
type Notification interface {
	IsNotification() bool
}

func isNotification(x any) bool {
	n, ok := x.(Notification)
	return ok && n.IsNotification()
}

// funcRequest is a Request backed by a parse function.
type funcRequest[R any] struct {
	method string
	params *value.Value
	parse  func(value.Value) (R, error)
	notify bool
}

func (r *funcRequest[R]) Method() string { return r.method }

func (r *funcRequest[R]) Params() (value.Value, bool) {
	if r.params == nil {
		return value.Value{}, false
	}
	return *r.params, true
}

func (r *funcRequest[R]) ParseResult(result value.Value) (R, error) { return r.parse(result) }

func (r *funcRequest[R]) IsNotification() bool { return r.notify }

// NewRequest builds a Request from a method name, optional params and a
// result parser. Pass nil params to omit the params member.
func NewRequest[R any](method string, params *value.Value, parse func(value.Value) (R, error)) Request[R] {
	return &funcRequest[R]{method: method, params: params, parse: parse}
}

// Raw builds a request whose result is returned untouched.
func Raw(method string, params *value.Value) Request[value.Value] {
	return NewRequest(method, params, func(v value.Value) (value.Value, error) { return v, nil })
}

// NewNotification builds a request that expects no response.
func NewNotification(method string, params *value.Value) Request[struct{}] {
	return &funcRequest[struct{}]{
		method: method,
		params: params,
		parse:  func(value.Value) (struct{}, error) { return struct{}{}, nil },
		notify: true,
	}
}

// JSONResult returns a parser that decodes the result into R through
// encoding/json, for struct-typed results.
func JSONResult[R any]() func(value.Value) (R, error) {
	return func(v value.Value) (R, error) {
		var out R
		err := value.Unmarshal(v, &out)
		return out, err
	}
}

// ParamsOf returns a pointer to v for NewRequest.
func ParamsOf(v value.Value) *value.Value { return &v }
